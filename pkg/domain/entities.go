// Package domain defines the persisted catalog rows, their child collections,
// the persistence contracts, and the error taxonomy shared by pokeindex.
package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// Table names of the persisted mirror.
const (
	TablePokemon     = "pokemon"
	TableAbilities   = "pokemon_abilities"
	TableTypes       = "pokemon_types"
	TableStats       = "pokemon_stats"
	TableMoves       = "pokemon_moves"
	TableHeldItems   = "pokemon_held_items"
	TableGameIndices = "pokemon_game_indices"
	TableForms       = "pokemon_forms"
	TablePastTypes   = "pokemon_past_types"
)

// ChildTables lists every child collection table in replacement order.
var ChildTables = []string{
	TableAbilities,
	TableTypes,
	TableStats,
	TableMoves,
	TableHeldItems,
	TableGameIndices,
	TableForms,
	TablePastTypes,
}

// Entity is the core row of the mirror. Optional scalars are pointers so an
// absent upstream field persists as NULL rather than a zero value.
type Entity struct {
	ID                     int             `json:"id"`
	Name                   string          `json:"name"`
	BaseExperience         *int            `json:"base_experience,omitempty"`
	Height                 *int            `json:"height,omitempty"`
	Weight                 *int            `json:"weight,omitempty"`
	Order                  *int            `json:"order,omitempty"`
	IsDefault              *bool           `json:"is_default,omitempty"`
	LocationAreaEncounters *string         `json:"location_area_encounters,omitempty"`
	SpeciesName            *string         `json:"species_name,omitempty"`
	SpeciesColor           *string         `json:"species_color,omitempty"`
	CaptureRate            *int            `json:"species_capture_rate,omitempty"`
	BaseHappiness          *int            `json:"species_base_happiness,omitempty"`
	GrowthRate             *string         `json:"species_growth_rate,omitempty"`
	Habitat                *string         `json:"habitat,omitempty"`
	Shape                  *string         `json:"shape,omitempty"`
	IsBaby                 *bool           `json:"is_baby,omitempty"`
	IsLegendary            *bool           `json:"is_legendary,omitempty"`
	IsMythical             *bool           `json:"is_mythical,omitempty"`
	HatchCounter           *int            `json:"hatch_counter,omitempty"`
	GenderRate             *int            `json:"gender_rate,omitempty"`
	Generation             *string         `json:"generation,omitempty"`
	PokemonJSON            json.RawMessage `json:"pokemon_json,omitempty"`
	SpeciesJSON            json.RawMessage `json:"species_json,omitempty"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// Ability is one row of pokemon_abilities, keyed by (pokemon_id, name).
type Ability struct {
	PokemonID int
	Name      string
	Slot      *int
	IsHidden  bool
}

// TypeSlot is one row of pokemon_types, keyed by (pokemon_id, slot).
type TypeSlot struct {
	PokemonID int
	Slot      int
	TypeName  string
}

// CanonicalStatOrder is the presentation order of the six base stats.
var CanonicalStatOrder = []string{"hp", "attack", "defense", "special-attack", "special-defense", "speed"}

// Stat is one row of pokemon_stats, keyed by (pokemon_id, name).
type Stat struct {
	PokemonID int
	Name      string
	BaseStat  *int
	Effort    *int
}

// Move is one learnable move per version group and learn method.
type Move struct {
	PokemonID      int
	Name           string
	VersionGroup   string
	LearnMethod    string
	LevelLearnedAt int
}

// HeldItem is one held item per game version.
type HeldItem struct {
	PokemonID int
	ItemName  string
	Version   string
	Rarity    *int
}

// GameIndex maps the entity to its index in one game version.
type GameIndex struct {
	PokemonID int
	Version   string
	Index     *int
}

// Form is one named form of the entity.
type Form struct {
	PokemonID int
	Name      string
}

// PastType is a type slot the entity held in an earlier generation.
type PastType struct {
	PokemonID  int
	Generation string
	Slot       int
	TypeName   string
}

// Collections groups every child collection of one entity. A sync replaces
// each collection wholesale.
type Collections struct {
	Abilities   []Ability
	Types       []TypeSlot
	Stats       []Stat
	Moves       []Move
	HeldItems   []HeldItem
	GameIndices []GameIndex
	Forms       []Form
	PastTypes   []PastType
}

// Len reports the total number of child rows.
func (c Collections) Len() int {
	return len(c.Abilities) + len(c.Types) + len(c.Stats) + len(c.Moves) +
		len(c.HeldItems) + len(c.GameIndices) + len(c.Forms) + len(c.PastTypes)
}

// Record is the normalized output for one target: its core row plus children.
type Record struct {
	Entity      Entity
	Collections Collections
}

// Freshness summarizes the mirror so caches can detect that a sync happened.
type Freshness struct {
	Count     int
	UpdatedAt string
}

// Token returns a stable cache key for the freshness snapshot.
func (f Freshness) Token() string {
	if f.Count == 0 && f.UpdatedAt == "" {
		return "empty"
	}
	return f.UpdatedAt + "#" + strconv.Itoa(f.Count)
}
