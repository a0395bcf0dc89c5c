package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pokeindex/pkg/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (domain.Entity, error) {
	var (
		e                                                    domain.Entity
		baseExp, height, weight, order, capture, happiness   sql.NullInt64
		hatch, gender                                        sql.NullInt64
		isDefault, isBaby, isLegendary, isMythical           sql.NullBool
		encounters, speciesName, color, growth, habitat      sql.NullString
		shape, generation, pokemonJSON, speciesJSON, updated sql.NullString
	)
	err := row.Scan(&e.ID, &e.Name, &baseExp, &height, &weight, &order, &isDefault,
		&encounters, &speciesName, &color, &capture, &happiness, &growth, &habitat,
		&shape, &isBaby, &isLegendary, &isMythical, &hatch, &gender, &generation,
		&pokemonJSON, &speciesJSON, &updated)
	if err != nil {
		return domain.Entity{}, err
	}
	e.BaseExperience = intPtr(baseExp)
	e.Height = intPtr(height)
	e.Weight = intPtr(weight)
	e.Order = intPtr(order)
	e.IsDefault = boolPtr(isDefault)
	e.LocationAreaEncounters = strPtr(encounters)
	e.SpeciesName = strPtr(speciesName)
	e.SpeciesColor = strPtr(color)
	e.CaptureRate = intPtr(capture)
	e.BaseHappiness = intPtr(happiness)
	e.GrowthRate = strPtr(growth)
	e.Habitat = strPtr(habitat)
	e.Shape = strPtr(shape)
	e.IsBaby = boolPtr(isBaby)
	e.IsLegendary = boolPtr(isLegendary)
	e.IsMythical = boolPtr(isMythical)
	e.HatchCounter = intPtr(hatch)
	e.GenderRate = intPtr(gender)
	e.Generation = strPtr(generation)
	if pokemonJSON.Valid {
		e.PokemonJSON = json.RawMessage(pokemonJSON.String)
	}
	if speciesJSON.Valid && speciesJSON.String != "" {
		e.SpeciesJSON = json.RawMessage(speciesJSON.String)
	}
	if updated.Valid {
		if ts, err := time.Parse(TimeLayout, updated.String); err == nil {
			e.UpdatedAt = ts
		} else if ts, err := time.Parse(time.RFC3339Nano, updated.String); err == nil {
			e.UpdatedAt = ts.UTC()
		}
	}
	return e, nil
}

func (s *Store) ListEntities(ctx context.Context) ([]domain.Entity, error) {
	rows, err := s.db.QueryContext(ctx, selectEntitySQL+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", domain.TablePokemon, err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", domain.TablePokemon, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", domain.TablePokemon, err)
	}
	return out, nil
}

func (s *Store) GetEntity(ctx context.Context, id int) (domain.Entity, bool, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(selectEntitySQL+" WHERE id = ?"), id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entity{}, false, nil
	}
	if err != nil {
		return domain.Entity{}, false, fmt.Errorf("get %s %d: %w", domain.TablePokemon, id, err)
	}
	return e, true, nil
}

// Freshness returns the row count and the latest updated_at.
func (s *Store) Freshness(ctx context.Context) (domain.Freshness, error) {
	var (
		count  int
		latest sql.NullString
	)
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), MAX(updated_at) FROM "+domain.TablePokemon).Scan(&count, &latest)
	if err != nil {
		return domain.Freshness{}, fmt.Errorf("freshness: %w", err)
	}
	return domain.Freshness{Count: count, UpdatedAt: latest.String}, nil
}

// queryChildren runs a per-entity child query and scans each row with scan.
func queryChildren[T any](ctx context.Context, s *Store, table, cols, orderBy string, id int, scan func(scanner) (T, error)) ([]T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE pokemon_id = ? ORDER BY %s", cols, table, orderBy)
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), id)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

func (s *Store) ListAbilities(ctx context.Context, id int) ([]domain.Ability, error) {
	return queryChildren(ctx, s, domain.TableAbilities, "pokemon_id, ability_name, slot, is_hidden", "slot IS NULL, slot, ability_name", id,
		func(r scanner) (domain.Ability, error) {
			var (
				a    domain.Ability
				slot sql.NullInt64
			)
			err := r.Scan(&a.PokemonID, &a.Name, &slot, &a.IsHidden)
			a.Slot = intPtr(slot)
			return a, err
		})
}

func (s *Store) ListTypes(ctx context.Context, id int) ([]domain.TypeSlot, error) {
	return queryChildren(ctx, s, domain.TableTypes, "pokemon_id, slot, type_name", "slot", id,
		func(r scanner) (domain.TypeSlot, error) {
			var t domain.TypeSlot
			err := r.Scan(&t.PokemonID, &t.Slot, &t.TypeName)
			return t, err
		})
}

func (s *Store) ListStats(ctx context.Context, id int) ([]domain.Stat, error) {
	return queryChildren(ctx, s, domain.TableStats, "pokemon_id, stat_name, base_stat, effort", statOrderExpr+", stat_name", id,
		func(r scanner) (domain.Stat, error) {
			var (
				st           domain.Stat
				base, effort sql.NullInt64
			)
			err := r.Scan(&st.PokemonID, &st.Name, &base, &effort)
			st.BaseStat = intPtr(base)
			st.Effort = intPtr(effort)
			return st, err
		})
}

func (s *Store) ListMoves(ctx context.Context, id int) ([]domain.Move, error) {
	return queryChildren(ctx, s, domain.TableMoves, "pokemon_id, move_name, version_group, learn_method, level_learned_at",
		"move_name, version_group, learn_method, level_learned_at", id,
		func(r scanner) (domain.Move, error) {
			var m domain.Move
			err := r.Scan(&m.PokemonID, &m.Name, &m.VersionGroup, &m.LearnMethod, &m.LevelLearnedAt)
			return m, err
		})
}

func (s *Store) ListHeldItems(ctx context.Context, id int) ([]domain.HeldItem, error) {
	return queryChildren(ctx, s, domain.TableHeldItems, "pokemon_id, item_name, version_name, rarity", "item_name, version_name", id,
		func(r scanner) (domain.HeldItem, error) {
			var (
				h      domain.HeldItem
				rarity sql.NullInt64
			)
			err := r.Scan(&h.PokemonID, &h.ItemName, &h.Version, &rarity)
			h.Rarity = intPtr(rarity)
			return h, err
		})
}

func (s *Store) ListGameIndices(ctx context.Context, id int) ([]domain.GameIndex, error) {
	return queryChildren(ctx, s, domain.TableGameIndices, "pokemon_id, version_name, game_index", "version_name", id,
		func(r scanner) (domain.GameIndex, error) {
			var (
				g   domain.GameIndex
				idx sql.NullInt64
			)
			err := r.Scan(&g.PokemonID, &g.Version, &idx)
			g.Index = intPtr(idx)
			return g, err
		})
}

func (s *Store) ListForms(ctx context.Context, id int) ([]domain.Form, error) {
	return queryChildren(ctx, s, domain.TableForms, "pokemon_id, form_name", "form_name", id,
		func(r scanner) (domain.Form, error) {
			var f domain.Form
			err := r.Scan(&f.PokemonID, &f.Name)
			return f, err
		})
}

func (s *Store) ListPastTypes(ctx context.Context, id int) ([]domain.PastType, error) {
	return queryChildren(ctx, s, domain.TablePastTypes, "pokemon_id, generation_name, slot, type_name", "generation_name, slot", id,
		func(r scanner) (domain.PastType, error) {
			var p domain.PastType
			err := r.Scan(&p.PokemonID, &p.Generation, &p.Slot, &p.TypeName)
			return p, err
		})
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func boolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
