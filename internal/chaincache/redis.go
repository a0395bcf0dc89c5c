package chaincache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"pokeindex/internal/genealogy"
)

const (
	DefaultKeyPrefix = "pokeindex:genealogy:"
	DefaultTTL       = 24 * time.Hour
)

// kv is the subset of the redis client the snapshot tier uses.
type kv interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

// RedisSnapshots stores entity snapshots as JSON under prefix+token.
type RedisSnapshots struct {
	client kv
	closer func() error
	prefix string
	ttl    time.Duration
}

// RedisConfig addresses the snapshot tier.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// NewRedisSnapshots dials and pings redis.
func NewRedisSnapshots(ctx context.Context, cfg RedisConfig) (*RedisSnapshots, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	s := newRedisSnapshots(rdb, cfg.KeyPrefix, cfg.TTL)
	s.closer = rdb.Close
	return s, nil
}

func newRedisSnapshots(client kv, prefix string, ttl time.Duration) *RedisSnapshots {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisSnapshots{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisSnapshots) key(token string) string { return r.prefix + token }

// Load returns ok=false when the token has no snapshot.
func (r *RedisSnapshots) Load(ctx context.Context, token string) ([]genealogy.Entity, bool, error) {
	raw, err := r.client.Get(ctx, r.key(token)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get snapshot: %w", err)
	}
	var entities []genealogy.Entity
	if err := json.Unmarshal(raw, &entities); err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return entities, true, nil
}

func (r *RedisSnapshots) Save(ctx context.Context, token string, entities []genealogy.Entity) error {
	raw, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.key(token), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *RedisSnapshots) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
