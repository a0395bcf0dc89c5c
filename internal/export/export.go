// Package export flattens the mirror into the static JSON payload consumed by
// the browser frontend and writes it to a blob store.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"pokeindex/internal/blob"
	"pokeindex/internal/core"
	"pokeindex/internal/genealogy"
	"pokeindex/internal/localize"
	"pokeindex/internal/platform/logger"
	"pokeindex/pkg/domain"
)

const (
	// DefaultKey is the blob key the frontend fetches.
	DefaultKey = "data/pokemon.json"
	// ContentType of the payload.
	ContentType = "application/json"
)

// Ability is one ability of an exported entry.
type Ability struct {
	Name     string `json:"name"`
	IsHidden bool   `json:"is_hidden"`
}

// StatLine is one base stat in canonical order.
type StatLine struct {
	Label string `json:"label"`
	Base  int    `json:"base"`
}

// Entry is one entity of the payload.
type Entry struct {
	ID             int               `json:"id"`
	Slug           string            `json:"slug"`
	Names          localize.Names    `json:"names"`
	Sprite         string            `json:"sprite"`
	Description    string            `json:"description"`
	Types          []string          `json:"types"`
	Abilities      []Ability         `json:"abilities"`
	Stats          []StatLine        `json:"stats"`
	EggGroups      []string          `json:"egg_groups"`
	Height         *int              `json:"height"`
	Weight         *int              `json:"weight"`
	BaseExperience *int              `json:"base_experience"`
	EvolutionChain []genealogy.Stage `json:"evolution_chain"`
}

// Payload is the exported document.
type Payload struct {
	GeneratedAt string  `json:"generated_at"`
	Total       int     `json:"total"`
	Pokemon     []Entry `json:"pokemon"`
}

// Artifact describes a stored payload.
type Artifact struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url,omitempty"`
	Total       int       `json:"total"`
	CreatedAt   time.Time `json:"created_at"`
}

// Source is the read surface the exporter needs.
type Source interface {
	Profiles(ctx context.Context) ([]core.Profile, error)
	Graph(ctx context.Context) (*genealogy.Graph, error)
	Store() domain.Reader
}

// Exporter renders and stores payloads.
type Exporter struct {
	src   Source
	store blob.Store
	log   *logger.Logger
	now   func() time.Time
	newID func() string
}

// Option configures an Exporter.
type Option func(*Exporter)

func WithLogger(l *logger.Logger) Option { return func(e *Exporter) { e.log = l } }

// WithClock overrides the generated_at clock.
func WithClock(now func() time.Time) Option { return func(e *Exporter) { e.now = now } }

// New constructs an exporter writing to store.
func New(src Source, store blob.Store, opts ...Option) *Exporter {
	e := &Exporter{
		src:   src,
		store: store,
		log:   logger.Nop(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "export")
	return e
}

// StatLabel renders a stat name for display: "special-attack" => "SPECIAL ATTACK".
func StatLabel(name string) string {
	return strings.ReplaceAll(strings.ToUpper(name), "-", " ")
}

// StatLines orders stats canonically. Missing stats render with base 0.
func StatLines(stats []domain.Stat) []StatLine {
	base := make(map[string]int, len(stats))
	for _, s := range stats {
		if s.BaseStat != nil {
			base[s.Name] = *s.BaseStat
		}
	}
	out := make([]StatLine, 0, len(domain.CanonicalStatOrder))
	for _, name := range domain.CanonicalStatOrder {
		out = append(out, StatLine{Label: StatLabel(name), Base: base[name]})
	}
	return out
}

// Build assembles the payload from the current store contents, ordered by id.
func (e *Exporter) Build(ctx context.Context) (Payload, error) {
	profiles, err := e.src.Profiles(ctx)
	if err != nil {
		return Payload{}, fmt.Errorf("load profiles: %w", err)
	}
	graph, err := e.src.Graph(ctx)
	if err != nil {
		return Payload{}, fmt.Errorf("build genealogy: %w", err)
	}
	store := e.src.Store()
	entries := make([]Entry, 0, len(profiles))
	for _, p := range profiles {
		entry, err := e.entry(ctx, store, graph, p)
		if err != nil {
			return Payload{}, err
		}
		entries = append(entries, entry)
	}
	return Payload{
		GeneratedAt: e.now().UTC().Format(time.RFC3339),
		Total:       len(entries),
		Pokemon:     entries,
	}, nil
}

func (e *Exporter) entry(ctx context.Context, store domain.Reader, graph *genealogy.Graph, p core.Profile) (Entry, error) {
	id := p.Entity.ID
	types, err := store.ListTypes(ctx, id)
	if err != nil {
		return Entry{}, fmt.Errorf("list types of %d: %w", id, err)
	}
	abilities, err := store.ListAbilities(ctx, id)
	if err != nil {
		return Entry{}, fmt.Errorf("list abilities of %d: %w", id, err)
	}
	stats, err := store.ListStats(ctx, id)
	if err != nil {
		return Entry{}, fmt.Errorf("list stats of %d: %w", id, err)
	}
	entry := Entry{
		ID:             id,
		Slug:           p.Entity.Name,
		Names:          p.Names,
		Sprite:         p.Sprite,
		Description:    p.Description,
		Types:          make([]string, 0, len(types)),
		Abilities:      make([]Ability, 0, len(abilities)),
		Stats:          StatLines(stats),
		EggGroups:      p.EggGroups,
		Height:         p.Entity.Height,
		Weight:         p.Entity.Weight,
		BaseExperience: p.Entity.BaseExperience,
		EvolutionChain: graph.Chain(p.SpeciesKey),
	}
	for _, t := range types {
		entry.Types = append(entry.Types, t.TypeName)
	}
	for _, a := range abilities {
		entry.Abilities = append(entry.Abilities, Ability{Name: a.Name, IsHidden: a.IsHidden})
	}
	if entry.EggGroups == nil {
		entry.EggGroups = []string{}
	}
	return entry, nil
}

// Encode renders p as indented UTF-8 JSON without HTML escaping.
func Encode(p Payload) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return buf.Bytes(), nil
}

// Export builds the payload and replaces the object at key.
func (e *Exporter) Export(ctx context.Context, key string) (Artifact, error) {
	if strings.TrimSpace(key) == "" {
		key = DefaultKey
	}
	payload, err := e.Build(ctx)
	if err != nil {
		return Artifact{}, err
	}
	data, err := Encode(payload)
	if err != nil {
		return Artifact{}, err
	}
	id := e.newID()
	info, err := blob.Replace(ctx, e.store, key, data, blob.PutOptions{
		ContentType: ContentType,
		Metadata: map[string]string{
			"artifact_id":  id,
			"generated_at": payload.GeneratedAt,
			"total":        strconv.Itoa(payload.Total),
		},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("store export: %w", err)
	}
	artifact := Artifact{
		ID:          id,
		Key:         info.Key,
		ContentType: ContentType,
		SizeBytes:   info.Size,
		URL:         info.URL,
		Total:       payload.Total,
		CreatedAt:   info.LastModified,
	}
	if artifact.Key == "" {
		artifact.Key = key
	}
	if artifact.SizeBytes == 0 {
		artifact.SizeBytes = int64(len(data))
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = e.now().UTC()
	}
	if artifact.URL == "" {
		url, err := e.store.PresignURL(ctx, key, blob.SignedURLOptions{})
		switch {
		case err == nil:
			artifact.URL = url
		case !errors.Is(err, blob.ErrUnsupported):
			e.log.Warn("presign export", "key", key, "error", err)
		}
	}
	e.log.Info("export written",
		"artifact_id", id,
		"key", artifact.Key,
		"entries", artifact.Total,
		"size_bytes", artifact.SizeBytes,
		"driver", string(e.store.Driver()))
	return artifact, nil
}
