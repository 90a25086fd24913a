package kv

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStorage implements Storage on top of a Redis server. Keys are
// namespaced by the configured prefix.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis-backed storage. The connection is lazy; the first
// failing call reports an unreachable server.
func NewRedis(cfg RedisConfig) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MinIdleConns: 1,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return NewRedisWithClient(client, cfg.Prefix), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string) *RedisStorage {
	return &RedisStorage{client: client, prefix: strings.Trim(prefix, ":")}
}

func (r *RedisStorage) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *RedisStorage) relative(redisKey string) string {
	if r.prefix == "" {
		return redisKey
	}
	return strings.TrimPrefix(redisKey, r.prefix+":")
}

// Ping checks connectivity.
func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return storageErr("ping", r.client.Options().Addr, err)
	}
	return nil
}

func (r *RedisStorage) Write(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, r.key(key), data, 0).Err(); err != nil {
		return storageErr("set", key, err)
	}
	return nil
}

func (r *RedisStorage) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get", key, err)
	}
	return data, nil
}

func (r *RedisStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.key(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, r.relative(iter.Val()))
	}
	if err := iter.Err(); err != nil {
		return nil, storageErr("scan", prefix, err)
	}
	return keys, nil
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return storageErr("del", key, err)
	}
	return nil
}

func (r *RedisStorage) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, storageErr("exists", key, err)
	}
	return n > 0, nil
}

// Close releases the connection pool.
func (r *RedisStorage) Close() error {
	return r.client.Close()
}
