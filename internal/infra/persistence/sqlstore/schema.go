package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	"pokeindex/pkg/domain"
)

// Dialect captures the differences between the supported SQL backends.
type Dialect struct {
	Name string
	// BoolType is the column type used for flags.
	BoolType string
	// Numbered placeholders ($1, $2, ...) instead of ?.
	Numbered bool
}

var (
	SQLite   = Dialect{Name: "sqlite", BoolType: "INTEGER"}
	Postgres = Dialect{Name: "postgres", BoolType: "BOOLEAN", Numbered: true}
)

// Rebind rewrites ? placeholders for dialects that number them.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Schema returns the DDL statements for the dialect, parent table first.
func (d Dialect) Schema() []string {
	b := d.BoolType
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	base_experience INTEGER,
	height INTEGER,
	weight INTEGER,
	pokemon_order INTEGER,
	is_default %[2]s,
	location_area_encounters TEXT,
	species_name TEXT,
	species_color TEXT,
	species_capture_rate INTEGER,
	species_base_happiness INTEGER,
	species_growth_rate TEXT,
	habitat TEXT,
	shape TEXT,
	is_baby %[2]s,
	is_legendary %[2]s,
	is_mythical %[2]s,
	hatch_counter INTEGER,
	gender_rate INTEGER,
	generation TEXT,
	pokemon_json TEXT NOT NULL,
	species_json TEXT,
	updated_at TEXT NOT NULL
)`, domain.TablePokemon, b),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	pokemon_id INTEGER NOT NULL REFERENCES pokemon(id) ON DELETE CASCADE,
	ability_name TEXT NOT NULL,
	slot INTEGER,
	is_hidden %s NOT NULL,
	PRIMARY KEY (pokemon_id, ability_name)
)`, domain.TableAbilities, b),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	pokemon_id INTEGER NOT NULL REFERENCES pokemon(id) ON DELETE CASCADE,
	slot INTEGER NOT NULL,
	type_name TEXT NOT NULL,
	PRIMARY KEY (pokemon_id, slot)
)`, domain.TableTypes),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	pokemon_id INTEGER NOT NULL REFERENCES pokemon(id) ON DELETE CASCADE,
	stat_name TEXT NOT NULL,
	base_stat INTEGER,
	effort INTEGER,
	PRIMARY KEY (pokemon_id, stat_name)
)`, domain.TableStats),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	pokemon_id INTEGER NOT NULL REFERENCES pokemon(id) ON DELETE CASCADE,
	move_name TEXT NOT NULL,
	version_group TEXT NOT NULL,
	learn_method TEXT NOT NULL,
	level_learned_at INTEGER NOT NULL,
	PRIMARY KEY (pokemon_id, move_name, version_group, learn_method, level_learned_at)
)`, domain.TableMoves),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	pokemon_id INTEGER NOT NULL REFERENCES pokemon(id) ON DELETE CASCADE,
	item_name TEXT NOT NULL,
	version_name TEXT NOT NULL,
	rarity INTEGER,
	PRIMARY KEY (pokemon_id, item_name, version_name)
)`, domain.TableHeldItems),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	pokemon_id INTEGER NOT NULL REFERENCES pokemon(id) ON DELETE CASCADE,
	version_name TEXT NOT NULL,
	game_index INTEGER,
	PRIMARY KEY (pokemon_id, version_name)
)`, domain.TableGameIndices),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	pokemon_id INTEGER NOT NULL REFERENCES pokemon(id) ON DELETE CASCADE,
	form_name TEXT NOT NULL,
	PRIMARY KEY (pokemon_id, form_name)
)`, domain.TableForms),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	pokemon_id INTEGER NOT NULL REFERENCES pokemon(id) ON DELETE CASCADE,
	generation_name TEXT NOT NULL,
	slot INTEGER NOT NULL,
	type_name TEXT NOT NULL,
	PRIMARY KEY (pokemon_id, generation_name, slot)
)`, domain.TablePastTypes),
		`CREATE INDEX IF NOT EXISTS idx_pokemon_species_name ON pokemon(species_name)`,
	}
}

// entityColumns is the column order used by every pokemon INSERT and SELECT.
var entityColumns = []string{
	"id", "name", "base_experience", "height", "weight", "pokemon_order", "is_default",
	"location_area_encounters", "species_name", "species_color", "species_capture_rate",
	"species_base_happiness", "species_growth_rate", "habitat", "shape", "is_baby",
	"is_legendary", "is_mythical", "hatch_counter", "gender_rate", "generation",
	"pokemon_json", "species_json", "updated_at",
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

var upsertEntitySQL = func() string {
	sets := make([]string, 0, len(entityColumns)-1)
	for _, col := range entityColumns[1:] {
		sets = append(sets, col+" = excluded."+col)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
		domain.TablePokemon, strings.Join(entityColumns, ", "), placeholders(len(entityColumns)), strings.Join(sets, ", "))
}()

var selectEntitySQL = fmt.Sprintf("SELECT %s FROM %s", strings.Join(entityColumns, ", "), domain.TablePokemon)

func insertSQL(table string, cols ...string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders(len(cols)))
}

var statOrderExpr = func() string {
	var b strings.Builder
	b.WriteString("CASE stat_name")
	for i, name := range domain.CanonicalStatOrder {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", name, i)
	}
	fmt.Fprintf(&b, " ELSE %d END", len(domain.CanonicalStatOrder))
	return b.String()
}()
