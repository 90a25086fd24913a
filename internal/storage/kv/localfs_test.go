package kv

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/newthinker/candlescope/internal/core"
)

func TestLocalFS_ImplementsStorage(t *testing.T) {
	var _ Storage = (*LocalFS)(nil)
}

func TestLocalFS_WriteRead(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewLocalFS(dir)
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}

	ctx := context.Background()
	data := []byte(`{"data":[],"timestamp":1}`)

	if err := fs.Write(ctx, "browse/all.json", data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := fs.Read(ctx, "browse/all.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("got %q, want %q", got, data)
	}
}

func TestLocalFS_ReadMissing(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	_, err := fs.Read(context.Background(), "missing.json")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalFS_RejectsEscapingKeys(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()

	for _, key := range []string{"../outside.json", "/etc/passwd", ".."} {
		err := fs.Write(ctx, key, []byte("x"))
		if !errors.Is(err, core.ErrStorageFailed) {
			t.Errorf("Write(%q): expected storage error, got %v", key, err)
		}
	}
}

func TestLocalFS_Exists(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()

	exists, _ := fs.Exists(ctx, "nonexistent.json")
	if exists {
		t.Error("expected false for nonexistent file")
	}

	fs.Write(ctx, "exists.json", []byte("data"))
	exists, _ = fs.Exists(ctx, "exists.json")
	if !exists {
		t.Error("expected true for existing file")
	}
}

func TestLocalFS_List(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()

	fs.Write(ctx, "patterns_TCS.json", []byte("a"))
	fs.Write(ctx, "patterns_INFY.json", []byte("b"))
	fs.Write(ctx, "candles_TCS.json", []byte("c"))

	keys, err := fs.List(ctx, "patterns_")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "patterns_INFY.json" || keys[1] != "patterns_TCS.json" {
		t.Errorf("unexpected keys %v", keys)
	}
}

func TestLocalFS_Delete(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()

	fs.Write(ctx, "delete.json", []byte("data"))
	if err := fs.Delete(ctx, "delete.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	exists, _ := fs.Exists(ctx, "delete.json")
	if exists {
		t.Error("file should be deleted")
	}

	if err := fs.Delete(ctx, "delete.json"); err != nil {
		t.Errorf("deleting a missing key should succeed, got %v", err)
	}
}
