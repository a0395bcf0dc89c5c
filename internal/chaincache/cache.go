// Package chaincache memoizes the genealogy graph per store freshness token.
// A sync bumps the token (row count or latest updated_at), which invalidates
// the cached graph on the next lookup.
package chaincache

import (
	"context"
	"fmt"
	"sync"

	"pokeindex/internal/genealogy"
	"pokeindex/internal/platform/logger"
)

// Loader produces the entity snapshot the graph is built from.
type Loader func(ctx context.Context) ([]genealogy.Entity, error)

// Snapshots is an optional shared tier holding parsed entity snapshots so
// several processes avoid re-parsing species documents.
type Snapshots interface {
	Load(ctx context.Context, token string) ([]genealogy.Entity, bool, error)
	Save(ctx context.Context, token string, entities []genealogy.Entity) error
}

// Cache holds at most one graph, for the most recent token.
type Cache struct {
	mu        sync.Mutex
	token     string
	graph     *genealogy.Graph
	builds    int
	snapshots Snapshots
	log       *logger.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithSnapshots adds a shared snapshot tier.
func WithSnapshots(s Snapshots) Option { return func(c *Cache) { c.snapshots = s } }

// WithLogger sets the logger used for snapshot tier failures.
func WithLogger(l *logger.Logger) Option { return func(c *Cache) { c.log = l } }

// New returns an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{log: logger.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "chaincache")
	return c
}

// Graph returns the graph for token, building it from the snapshot tier or
// load when the token changed. Concurrent callers share one build.
func (c *Cache) Graph(ctx context.Context, token string, load Loader) (*genealogy.Graph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.graph != nil && c.token == token {
		return c.graph, nil
	}
	entities, err := c.entities(ctx, token, load)
	if err != nil {
		return nil, err
	}
	c.graph = genealogy.NewGraph(entities)
	c.token = token
	c.builds++
	c.log.Debug("genealogy graph rebuilt", "token", token, "nodes", c.graph.Len())
	return c.graph, nil
}

func (c *Cache) entities(ctx context.Context, token string, load Loader) ([]genealogy.Entity, error) {
	if c.snapshots != nil {
		entities, ok, err := c.snapshots.Load(ctx, token)
		switch {
		case err != nil:
			c.log.Warn("snapshot load failed", "token", token, "error", err)
		case ok:
			return entities, nil
		}
	}
	entities, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load genealogy snapshot: %w", err)
	}
	if c.snapshots != nil {
		if err := c.snapshots.Save(ctx, token, entities); err != nil {
			c.log.Warn("snapshot save failed", "token", token, "error", err)
		}
	}
	return entities, nil
}

// Invalidate drops the cached graph.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.graph = nil
	c.token = ""
}

// Builds reports how many graphs have been built.
func (c *Cache) Builds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}
