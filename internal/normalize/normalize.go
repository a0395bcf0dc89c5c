// Package normalize maps catalog documents onto the relational mirror: one
// core row plus eight child collections per entity.
package normalize

import (
	"errors"
	"fmt"

	"pokeindex/internal/catalog"
	"pokeindex/pkg/domain"
)

var errMissingKey = errors.New("missing natural key")

// Normalize builds the core row and child collections for one entity. UpdatedAt
// is left zero; the store stamps it on upsert. species may be nil, in which
// case every species-derived column is NULL.
func Normalize(p *catalog.PokemonDocument, s *catalog.SpeciesDocument) (domain.Record, error) {
	if p == nil || p.ID == nil || p.Name == nil || *p.Name == "" {
		return domain.Record{}, &domain.ParseError{What: "pokemon identity", Err: errMissingKey}
	}
	id := *p.ID
	entity := domain.Entity{
		ID:                     id,
		Name:                   *p.Name,
		BaseExperience:         p.BaseExperience,
		Height:                 p.Height,
		Weight:                 p.Weight,
		Order:                  p.Order,
		IsDefault:              p.IsDefault,
		LocationAreaEncounters: p.LocationAreaEncounters,
		SpeciesName:            p.Species.NamePtr(),
		PokemonJSON:            p.Raw,
	}
	if s != nil {
		if name := s.Name; name != nil && *name != "" {
			entity.SpeciesName = name
		}
		entity.SpeciesColor = s.Color.NamePtr()
		entity.CaptureRate = s.CaptureRate
		entity.BaseHappiness = s.BaseHappiness
		entity.GrowthRate = s.GrowthRate.NamePtr()
		entity.Habitat = s.Habitat.NamePtr()
		entity.Shape = s.Shape.NamePtr()
		entity.IsBaby = s.IsBaby
		entity.IsLegendary = s.IsLegendary
		entity.IsMythical = s.IsMythical
		entity.HatchCounter = s.HatchCounter
		entity.GenderRate = s.GenderRate
		entity.Generation = s.Generation.NamePtr()
		entity.SpeciesJSON = s.Raw
	}

	var (
		c   domain.Collections
		err error
	)
	steps := []func() error{
		func() error { c.Abilities, err = abilities(id, p.Abilities); return err },
		func() error { c.Types, err = types(id, p.Types); return err },
		func() error { c.Stats, err = stats(id, p.Stats); return err },
		func() error { c.Moves, err = moves(id, p.Moves); return err },
		func() error { c.HeldItems, err = heldItems(id, p.HeldItems); return err },
		func() error { c.GameIndices, err = gameIndices(id, p.GameIndices); return err },
		func() error { c.Forms, err = forms(id, p.Forms); return err },
		func() error { c.PastTypes, err = pastTypes(id, p.PastTypes); return err },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return domain.Record{}, err
		}
	}
	return domain.Record{Entity: entity, Collections: c}, nil
}

func missing(collection string, idx int, field string) error {
	return &domain.ParseError{What: fmt.Sprintf("%s[%d].%s", collection, idx, field), Err: errMissingKey}
}

// dedupe keeps the first row per natural key, preserving order.
func dedupe[T any, K comparable](rows []T, key func(T) K) []T {
	seen := make(map[K]struct{}, len(rows))
	out := rows[:0]
	for _, r := range rows {
		k := key(r)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

func abilities(id int, entries []catalog.AbilityEntry) ([]domain.Ability, error) {
	rows := make([]domain.Ability, 0, len(entries))
	for i, e := range entries {
		name := e.Ability.NamePtr()
		if name == nil {
			return nil, missing("abilities", i, "ability.name")
		}
		rows = append(rows, domain.Ability{
			PokemonID: id,
			Name:      *name,
			Slot:      e.Slot,
			IsHidden:  e.IsHidden != nil && *e.IsHidden,
		})
	}
	return dedupe(rows, func(r domain.Ability) string { return r.Name }), nil
}

func types(id int, entries []catalog.TypeEntry) ([]domain.TypeSlot, error) {
	rows := make([]domain.TypeSlot, 0, len(entries))
	for i, e := range entries {
		if e.Slot == nil {
			return nil, missing("types", i, "slot")
		}
		name := e.Type.NamePtr()
		if name == nil {
			return nil, missing("types", i, "type.name")
		}
		rows = append(rows, domain.TypeSlot{PokemonID: id, Slot: *e.Slot, TypeName: *name})
	}
	return dedupe(rows, func(r domain.TypeSlot) int { return r.Slot }), nil
}

func stats(id int, entries []catalog.StatEntry) ([]domain.Stat, error) {
	rows := make([]domain.Stat, 0, len(entries))
	for i, e := range entries {
		name := e.Stat.NamePtr()
		if name == nil {
			return nil, missing("stats", i, "stat.name")
		}
		rows = append(rows, domain.Stat{PokemonID: id, Name: *name, BaseStat: e.BaseStat, Effort: e.Effort})
	}
	return dedupe(rows, func(r domain.Stat) string { return r.Name }), nil
}

type moveKey struct {
	name, group, method string
	level               int
}

func moves(id int, entries []catalog.MoveEntry) ([]domain.Move, error) {
	var rows []domain.Move
	for i, e := range entries {
		name := e.Move.NamePtr()
		if name == nil {
			return nil, missing("moves", i, "move.name")
		}
		for j, d := range e.VersionGroupDetails {
			group := d.VersionGroup.NamePtr()
			method := d.MoveLearnMethod.NamePtr()
			if group == nil {
				return nil, missing("moves", i, fmt.Sprintf("version_group_details[%d].version_group.name", j))
			}
			if method == nil {
				return nil, missing("moves", i, fmt.Sprintf("version_group_details[%d].move_learn_method.name", j))
			}
			level := 0
			if d.LevelLearnedAt != nil {
				level = *d.LevelLearnedAt
			}
			rows = append(rows, domain.Move{
				PokemonID:      id,
				Name:           *name,
				VersionGroup:   *group,
				LearnMethod:    *method,
				LevelLearnedAt: level,
			})
		}
	}
	return dedupe(rows, func(r domain.Move) moveKey {
		return moveKey{r.Name, r.VersionGroup, r.LearnMethod, r.LevelLearnedAt}
	}), nil
}

func heldItems(id int, entries []catalog.HeldItemEntry) ([]domain.HeldItem, error) {
	var rows []domain.HeldItem
	for i, e := range entries {
		item := e.Item.NamePtr()
		if item == nil {
			return nil, missing("held_items", i, "item.name")
		}
		for j, d := range e.VersionDetails {
			version := d.Version.NamePtr()
			if version == nil {
				return nil, missing("held_items", i, fmt.Sprintf("version_details[%d].version.name", j))
			}
			rows = append(rows, domain.HeldItem{PokemonID: id, ItemName: *item, Version: *version, Rarity: d.Rarity})
		}
	}
	return dedupe(rows, func(r domain.HeldItem) [2]string { return [2]string{r.ItemName, r.Version} }), nil
}

func gameIndices(id int, entries []catalog.GameIndexEntry) ([]domain.GameIndex, error) {
	rows := make([]domain.GameIndex, 0, len(entries))
	for i, e := range entries {
		version := e.Version.NamePtr()
		if version == nil {
			return nil, missing("game_indices", i, "version.name")
		}
		rows = append(rows, domain.GameIndex{PokemonID: id, Version: *version, Index: e.GameIndex})
	}
	return dedupe(rows, func(r domain.GameIndex) string { return r.Version }), nil
}

func forms(id int, entries []catalog.NamedRef) ([]domain.Form, error) {
	rows := make([]domain.Form, 0, len(entries))
	for i := range entries {
		name := entries[i].NamePtr()
		if name == nil {
			return nil, missing("forms", i, "name")
		}
		rows = append(rows, domain.Form{PokemonID: id, Name: *name})
	}
	return dedupe(rows, func(r domain.Form) string { return r.Name }), nil
}

type pastTypeKey struct {
	generation string
	slot       int
}

func pastTypes(id int, entries []catalog.PastTypeEntry) ([]domain.PastType, error) {
	var rows []domain.PastType
	for i, e := range entries {
		gen := e.Generation.NamePtr()
		if gen == nil {
			return nil, missing("past_types", i, "generation.name")
		}
		for j, t := range e.Types {
			if t.Slot == nil {
				return nil, missing("past_types", i, fmt.Sprintf("types[%d].slot", j))
			}
			name := t.Type.NamePtr()
			if name == nil {
				return nil, missing("past_types", i, fmt.Sprintf("types[%d].type.name", j))
			}
			rows = append(rows, domain.PastType{PokemonID: id, Generation: *gen, Slot: *t.Slot, TypeName: *name})
		}
	}
	return dedupe(rows, func(r domain.PastType) pastTypeKey { return pastTypeKey{r.Generation, r.Slot} }), nil
}
