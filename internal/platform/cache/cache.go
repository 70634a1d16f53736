package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/inkwell-backend/internal/platform/envutil"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

// Cache stores JSON documents under string keys with a TTL.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	KeyPrefix   string
}

func RedisConfigFromEnv() RedisConfig {
	return RedisConfig{
		Addr:        envutil.String("REDIS_ADDR", ""),
		Password:    envutil.String("REDIS_PASSWORD", ""),
		DB:          envutil.Int("REDIS_DB", 0),
		DialTimeout: envutil.Duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		KeyPrefix:   envutil.String("REDIS_KEY_PREFIX", "inkwell:"),
	}
}

// NewRedisClient dials and pings redis. An empty Addr is an error; callers
// decide whether to fall back to in-process implementations.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*goredis.Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

type redisCache struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string
}

func NewRedis(log *logger.Logger, rdb goredis.UniversalClient, prefix string) Cache {
	return &redisCache{log: log.With("component", "RedisCache"), rdb: rdb, prefix: prefix}
}

func (c *redisCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.log.Warn("dropping undecodable cache entry", "key", key, "error", err)
		_ = c.rdb.Del(ctx, c.prefix+key).Err()
		return false, nil
	}
	return true, nil
}

func (c *redisCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.prefix+key, raw, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	return c.rdb.Del(ctx, full...).Err()
}

type memoryEntry struct {
	raw     []byte
	expires time.Time
}

// Memory is an in-process Cache for single-instance deployments and tests.
type Memory struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]memoryEntry
}

func NewMemory() *Memory {
	return &Memory{now: time.Now, items: map[string]memoryEntry{}}
}

func (m *Memory) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	e, ok := m.items[key]
	if ok && !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.items, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(e.raw, dst)
}

func (m *Memory) SetJSON(_ context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e := memoryEntry{raw: raw}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.items, k)
	}
	m.mu.Unlock()
	return nil
}
