// Package core is the consumer-facing read API over the persisted mirror:
// profiles, child collections, genealogy chains and search.
package core

import (
	"context"
	"fmt"
	"strings"

	"pokeindex/internal/chaincache"
	"pokeindex/internal/genealogy"
	"pokeindex/internal/platform/logger"
	"pokeindex/pkg/domain"
)

// Service reads the store and owns the genealogy cache.
type Service struct {
	store domain.Reader
	cache *chaincache.Cache
	log   *logger.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *logger.Logger) ServiceOption { return func(s *Service) { s.log = l } }

// WithCache replaces the default in-process genealogy cache.
func WithCache(c *chaincache.Cache) ServiceOption { return func(s *Service) { s.cache = c } }

// NewService constructs a service backed by store.
func NewService(store domain.Reader, opts ...ServiceOption) *Service {
	s := &Service{store: store, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = chaincache.New(chaincache.WithLogger(s.log))
	}
	s.log = s.log.With("component", "core")
	return s
}

// Store returns the underlying reader.
func (s *Service) Store() domain.Reader { return s.store }

// Entities lists every core row ordered by identity.
func (s *Service) Entities(ctx context.Context) ([]domain.Entity, error) {
	return s.store.ListEntities(ctx)
}

// Entity fetches one core row.
func (s *Service) Entity(ctx context.Context, id int) (domain.Entity, bool, error) {
	return s.store.GetEntity(ctx, id)
}

// Collections reads every child collection of one entity.
func (s *Service) Collections(ctx context.Context, id int) (domain.Collections, error) {
	c, err := domain.LoadCollections(ctx, s.store, id)
	if err != nil {
		return domain.Collections{}, fmt.Errorf("load collections %d: %w", id, err)
	}
	return c, nil
}

// Freshness reports the store freshness snapshot.
func (s *Service) Freshness(ctx context.Context) (domain.Freshness, error) {
	return s.store.Freshness(ctx)
}

// Profiles builds the presentation view of every entity, ordered by identity.
func (s *Service) Profiles(ctx context.Context) ([]Profile, error) {
	entities, err := s.store.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(entities))
	for _, e := range entities {
		p, err := BuildProfile(e)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", e.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Profile builds the presentation view of one entity.
func (s *Service) Profile(ctx context.Context, id int) (Profile, bool, error) {
	e, ok, err := s.store.GetEntity(ctx, id)
	if err != nil || !ok {
		return Profile{}, ok, err
	}
	p, err := BuildProfile(e)
	if err != nil {
		return Profile{}, false, fmt.Errorf("profile %s: %w", e.Name, err)
	}
	return p, true, nil
}

// Graph returns the genealogy graph for the current store contents,
// rebuilding it only after the store changed.
func (s *Service) Graph(ctx context.Context) (*genealogy.Graph, error) {
	fresh, err := s.store.Freshness(ctx)
	if err != nil {
		return nil, err
	}
	return s.cache.Graph(ctx, fresh.Token(), s.genealogySnapshot)
}

func (s *Service) genealogySnapshot(ctx context.Context) ([]genealogy.Entity, error) {
	profiles, err := s.Profiles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]genealogy.Entity, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p.GenealogyEntity())
	}
	return out, nil
}

// Chain returns the staged evolution chain for a species slug. An entity
// slug (e.g. a form like "venusaur-mega") resolves through its species.
// Unknown slugs yield an empty list.
func (s *Service) Chain(ctx context.Context, slug string) ([]genealogy.Stage, error) {
	g, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	key, ok := g.Resolve(strings.ToLower(strings.TrimSpace(slug)))
	if !ok {
		return []genealogy.Stage{}, nil
	}
	return g.Chain(key), nil
}

// ChainForEntity returns the chain of the species an entity belongs to.
func (s *Service) ChainForEntity(ctx context.Context, id int) ([]genealogy.Stage, error) {
	p, ok, err := s.Profile(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []genealogy.Stage{}, nil
	}
	g, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return g.Chain(p.SpeciesKey), nil
}
