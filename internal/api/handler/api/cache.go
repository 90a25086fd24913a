// internal/api/handler/api/cache.go
package api

import (
	"net/http"

	"github.com/newthinker/candlescope/internal/api/response"
	"github.com/newthinker/candlescope/internal/cache"
	"go.uber.org/zap"
)

// CacheHandler exposes cache administration.
type CacheHandler struct {
	store   *cache.Store
	persist *cache.Persistent
	logger  *zap.Logger
}

// NewCacheHandler creates a cache handler. persist may be nil.
func NewCacheHandler(store *cache.Store, persist *cache.Persistent, logger *zap.Logger) *CacheHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheHandler{store: store, persist: persist, logger: logger}
}

// CacheStats is the body of a stats response.
type CacheStats struct {
	cache.Stats
	Persistent bool `json:"persistent"`
}

// Stats handles GET /api/v1/cache/stats
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, CacheStats{
		Stats:      h.store.Stats(),
		Persistent: h.persist.Enabled(),
	})
}

// Clear handles POST /api/v1/cache/clear. The persisted browse list goes too
// so the next page load refetches.
func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	n := h.store.Clear()
	if err := h.persist.Delete(r.Context(), cache.Key(cache.KindBrowse, cache.BrowseKey)); err != nil {
		response.Fail(w, err)
		return
	}
	h.logger.Info("cache cleared", zap.Int("entries", n))
	response.JSON(w, http.StatusOK, map[string]int{"cleared": n})
}

// Cleanup handles POST /api/v1/cache/cleanup
func (h *CacheHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	n := h.store.Cleanup()
	persisted, err := h.persist.Cleanup(r.Context())
	if err != nil {
		response.Fail(w, err)
		return
	}
	h.logger.Info("cache cleanup", zap.Int("memory", n), zap.Int("persisted", persisted))
	response.JSON(w, http.StatusOK, map[string]int{"removed": n, "persisted_removed": persisted})
}
