package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pokeindex/internal/genealogy"
	"pokeindex/pkg/domain"
)

type seedSpec struct {
	id      int
	name    string
	species string
	parent  string
	zh      string
	types   []string
}

func newMemoryStore(t *testing.T) domain.PersistentStore {
	t.Helper()
	store, err := OpenPersistentStore(context.Background(), StorageConfig{Driver: StorageMemory})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func seed(t *testing.T, store domain.PersistentStore, specs ...seedSpec) {
	t.Helper()
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		for _, sp := range specs {
			names := []map[string]any{{"name": "EN-" + sp.species, "language": map[string]string{"name": "en"}}}
			if sp.zh != "" {
				names = append(names, map[string]any{"name": sp.zh, "language": map[string]string{"name": "zh-Hans"}})
			}
			species := map[string]any{
				"name":                sp.species,
				"names":               names,
				"egg_groups":          []map[string]string{{"name": "monster"}},
				"flavor_text_entries": []map[string]any{{"flavor_text": "A\nseed.", "language": map[string]string{"name": "en"}}},
			}
			if sp.parent != "" {
				species["evolves_from_species"] = map[string]string{"name": sp.parent}
			}
			speciesName := sp.species
			e := domain.Entity{
				ID:          sp.id,
				Name:        sp.name,
				SpeciesName: &speciesName,
				PokemonJSON: mustJSON(t, map[string]any{"id": sp.id, "name": sp.name, "sprites": map[string]any{"front_default": sp.name + ".png"}}),
				SpeciesJSON: mustJSON(t, species),
			}
			if err := tx.UpsertEntity(context.Background(), e); err != nil {
				return err
			}
			var c domain.Collections
			for i, ty := range sp.types {
				c.Types = append(c.Types, domain.TypeSlot{PokemonID: sp.id, Slot: i + 1, TypeName: ty})
			}
			if err := tx.ReplaceCollections(context.Background(), sp.id, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func stageSlugs(stages []genealogy.Stage) [][]string {
	out := [][]string{}
	for _, st := range stages {
		level := []string{}
		for _, n := range st {
			level = append(level, n.Slug)
		}
		out = append(out, level)
	}
	return out
}

func TestChainBySpeciesAndEntitySlug(t *testing.T) {
	store := newMemoryStore(t)
	seed(t, store,
		seedSpec{id: 1, name: "bulbasaur", species: "bulbasaur"},
		seedSpec{id: 2, name: "ivysaur", species: "ivysaur", parent: "bulbasaur"},
		seedSpec{id: 3, name: "venusaur", species: "venusaur", parent: "ivysaur"},
		seedSpec{id: 10033, name: "venusaur-mega", species: "venusaur", parent: "ivysaur"},
	)
	svc := NewService(store)
	ctx := context.Background()
	want := [][]string{{"bulbasaur"}, {"ivysaur"}, {"venusaur"}}
	for _, slug := range []string{"bulbasaur", "Venusaur ", "venusaur-mega"} {
		chain, err := svc.Chain(ctx, slug)
		if err != nil {
			t.Fatalf("chain %s: %v", slug, err)
		}
		if diff := cmp.Diff(want, stageSlugs(chain)); diff != "" {
			t.Fatalf("chain(%q) mismatch (-want +got):\n%s", slug, diff)
		}
	}
	chain, err := svc.ChainForEntity(ctx, 10033)
	if err != nil {
		t.Fatalf("chain for entity: %v", err)
	}
	if diff := cmp.Diff(want, stageSlugs(chain)); diff != "" {
		t.Fatalf("chain for entity mismatch (-want +got):\n%s", diff)
	}
	unknown, err := svc.Chain(ctx, "missingno")
	if err != nil || len(unknown) != 0 {
		t.Fatalf("expected empty chain, got %v err=%v", unknown, err)
	}
	none, err := svc.ChainForEntity(ctx, 999)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty chain for unknown id, got %v err=%v", none, err)
	}
}

type countingReader struct {
	domain.Reader
	listCalls int
}

func (r *countingReader) ListEntities(ctx context.Context) ([]domain.Entity, error) {
	r.listCalls++
	return r.Reader.ListEntities(ctx)
}

func TestChainByEntitySlugUsesCachedGraph(t *testing.T) {
	store := newMemoryStore(t)
	seed(t, store,
		seedSpec{id: 3, name: "venusaur", species: "venusaur"},
		seedSpec{id: 10033, name: "venusaur-mega", species: "venusaur"},
	)
	reader := &countingReader{Reader: store}
	svc := NewService(reader)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		chain, err := svc.Chain(ctx, "venusaur-mega")
		if err != nil {
			t.Fatalf("chain: %v", err)
		}
		if diff := cmp.Diff([][]string{{"venusaur"}}, stageSlugs(chain)); diff != "" {
			t.Fatalf("chain mismatch (-want +got):\n%s", diff)
		}
	}
	if reader.listCalls != 1 {
		t.Fatalf("expected entities listed once for the graph build, got %d", reader.listCalls)
	}
}

func TestGraphRebuiltAfterStoreChanges(t *testing.T) {
	store := newMemoryStore(t)
	seed(t, store, seedSpec{id: 1, name: "bulbasaur", species: "bulbasaur"})
	svc := NewService(store)
	ctx := context.Background()
	g1, err := svc.Graph(ctx)
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	g2, _ := svc.Graph(ctx)
	if g1 != g2 {
		t.Fatalf("expected cached graph while store unchanged")
	}
	seed(t, store, seedSpec{id: 2, name: "ivysaur", species: "ivysaur", parent: "bulbasaur"})
	chain, err := svc.Chain(ctx, "bulbasaur")
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected new child visible after sync, got %v", stageSlugs(chain))
	}
}

func TestProfileLocalization(t *testing.T) {
	store := newMemoryStore(t)
	seed(t, store, seedSpec{id: 1, name: "bulbasaur", species: "bulbasaur", zh: "妙蛙种子"})
	svc := NewService(store)
	p, ok, err := svc.Profile(context.Background(), 1)
	if err != nil || !ok {
		t.Fatalf("profile: ok=%v err=%v", ok, err)
	}
	if p.Names.EN != "EN-bulbasaur" || p.Names.ZH != "妙蛙种子" || p.Names.JA != "EN-bulbasaur" {
		t.Fatalf("unexpected names %+v", p.Names)
	}
	if p.Description != "A seed." || p.Sprite != "bulbasaur.png" {
		t.Fatalf("unexpected presentation %+v", p)
	}
	if diff := cmp.Diff([]string{"monster"}, p.EggGroups); diff != "" {
		t.Fatalf("egg groups mismatch (-want +got):\n%s", diff)
	}
}

func TestProfileWithoutSpeciesDocument(t *testing.T) {
	p, err := BuildProfile(domain.Entity{ID: 7, Name: "squirtle", PokemonJSON: json.RawMessage(`{"id":7,"name":"squirtle"}`)})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.SpeciesKey != "squirtle" || p.Names.EN != "squirtle" || p.Description != "" || len(p.EggGroups) != 0 {
		t.Fatalf("unexpected fallback profile %+v", p)
	}
	_, err = BuildProfile(domain.Entity{ID: 7, Name: "squirtle", PokemonJSON: json.RawMessage(`{`)})
	var perr *domain.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	store := newMemoryStore(t)
	seed(t, store,
		seedSpec{id: 1, name: "bulbasaur", species: "bulbasaur", zh: "妙蛙种子", types: []string{"grass", "poison"}},
		seedSpec{id: 4, name: "charmander", species: "charmander", types: []string{"fire"}},
	)
	svc := NewService(store)
	ctx := context.Background()
	cases := map[string][]int{
		"":      {1, 4},
		"BULBA": {1},
		"妙蛙":    {1},
		"4":     {4},
		"zzz":   {},
	}
	for term, want := range cases {
		cards, err := svc.Search(ctx, term)
		if err != nil {
			t.Fatalf("search %q: %v", term, err)
		}
		got := []int{}
		for _, c := range cards {
			got = append(got, c.ID)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("search %q mismatch (-want +got):\n%s", term, diff)
		}
	}
	cards, _ := svc.Search(ctx, "bulbasaur")
	if diff := cmp.Diff([]string{"grass", "poison"}, cards[0].Types); diff != "" {
		t.Fatalf("types mismatch (-want +got):\n%s", diff)
	}
}

func TestMatches(t *testing.T) {
	e := domain.Entity{ID: 25, Name: "pikachu"}
	if !Matches("", e, namesOf("Pikachu")) || !Matches("25", e, namesOf("")) || !Matches("chu", e, namesOf("")) {
		t.Fatalf("expected matches")
	}
	if Matches("raichu", e, namesOf("Pikachu")) {
		t.Fatalf("unexpected match")
	}
}

func TestCollectionsRoundTrip(t *testing.T) {
	store := newMemoryStore(t)
	seed(t, store, seedSpec{id: 1, name: "bulbasaur", species: "bulbasaur", types: []string{"grass"}})
	c, err := NewService(store).Collections(context.Background(), 1)
	if err != nil {
		t.Fatalf("collections: %v", err)
	}
	if len(c.Types) != 1 || c.Types[0].TypeName != "grass" {
		t.Fatalf("unexpected collections %+v", c)
	}
}
