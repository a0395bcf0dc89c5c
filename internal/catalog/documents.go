package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"pokeindex/internal/localize"
	"pokeindex/pkg/domain"
)

// NamedRef is the {name, url} reference the catalog embeds everywhere.
type NamedRef struct {
	Name *string `json:"name"`
	URL  *string `json:"url"`
}

// NamePtr returns the referenced name, nil when the reference or name is absent.
func (r *NamedRef) NamePtr() *string {
	if r == nil || r.Name == nil || *r.Name == "" {
		return nil
	}
	return r.Name
}

// NameOr returns the referenced name or def.
func (r *NamedRef) NameOr(def string) string {
	if n := r.NamePtr(); n != nil {
		return *n
	}
	return def
}

// URLOr returns the referenced URL or def.
func (r *NamedRef) URLOr(def string) string {
	if r == nil || r.URL == nil || *r.URL == "" {
		return def
	}
	return *r.URL
}

type AbilityEntry struct {
	Ability  *NamedRef `json:"ability"`
	Slot     *int      `json:"slot"`
	IsHidden *bool     `json:"is_hidden"`
}

type TypeEntry struct {
	Slot *int      `json:"slot"`
	Type *NamedRef `json:"type"`
}

type StatEntry struct {
	BaseStat *int      `json:"base_stat"`
	Effort   *int      `json:"effort"`
	Stat     *NamedRef `json:"stat"`
}

type MoveVersionDetail struct {
	LevelLearnedAt  *int      `json:"level_learned_at"`
	MoveLearnMethod *NamedRef `json:"move_learn_method"`
	VersionGroup    *NamedRef `json:"version_group"`
}

type MoveEntry struct {
	Move                *NamedRef           `json:"move"`
	VersionGroupDetails []MoveVersionDetail `json:"version_group_details"`
}

type HeldItemVersion struct {
	Rarity  *int      `json:"rarity"`
	Version *NamedRef `json:"version"`
}

type HeldItemEntry struct {
	Item           *NamedRef         `json:"item"`
	VersionDetails []HeldItemVersion `json:"version_details"`
}

type GameIndexEntry struct {
	GameIndex *int      `json:"game_index"`
	Version   *NamedRef `json:"version"`
}

type PastTypeEntry struct {
	Generation *NamedRef   `json:"generation"`
	Types      []TypeEntry `json:"types"`
}

type SpriteSet struct {
	FrontDefault *string `json:"front_default"`
}

type OtherSprites struct {
	OfficialArtwork *SpriteSet `json:"official-artwork"`
	Home            *SpriteSet `json:"home"`
	DreamWorld      *SpriteSet `json:"dream_world"`
}

type Sprites struct {
	FrontDefault *string      `json:"front_default"`
	Other        *OtherSprites `json:"other"`
}

// PokemonDocument is the typed view of a /pokemon/{id} payload. Raw keeps the
// compacted original for verbatim storage.
type PokemonDocument struct {
	ID                     *int             `json:"id"`
	Name                   *string          `json:"name"`
	BaseExperience         *int             `json:"base_experience"`
	Height                 *int             `json:"height"`
	Weight                 *int             `json:"weight"`
	Order                  *int             `json:"order"`
	IsDefault              *bool            `json:"is_default"`
	LocationAreaEncounters *string          `json:"location_area_encounters"`
	Species                *NamedRef        `json:"species"`
	Abilities              []AbilityEntry   `json:"abilities"`
	Types                  []TypeEntry      `json:"types"`
	Stats                  []StatEntry      `json:"stats"`
	Moves                  []MoveEntry      `json:"moves"`
	HeldItems              []HeldItemEntry  `json:"held_items"`
	GameIndices            []GameIndexEntry `json:"game_indices"`
	Forms                  []NamedRef       `json:"forms"`
	PastTypes              []PastTypeEntry  `json:"past_types"`
	Sprites                *Sprites         `json:"sprites"`

	Raw json.RawMessage `json:"-"`
}

// Identifier returns the name, or the numeric id when the name is missing.
func (p *PokemonDocument) Identifier() string {
	if p.Name != nil && *p.Name != "" {
		return *p.Name
	}
	if p.ID != nil {
		return strconv.Itoa(*p.ID)
	}
	return ""
}

// SpeciesURL returns the embedded species reference URL, "" when missing.
func (p *PokemonDocument) SpeciesURL() string {
	return p.Species.URLOr("")
}

// Sprite picks official artwork, then home, then dream world, then the
// default front sprite.
func (p *PokemonDocument) Sprite() string {
	if p.Sprites == nil {
		return ""
	}
	if other := p.Sprites.Other; other != nil {
		for _, set := range []*SpriteSet{other.OfficialArtwork, other.Home, other.DreamWorld} {
			if set != nil && set.FrontDefault != nil && *set.FrontDefault != "" {
				return *set.FrontDefault
			}
		}
	}
	if p.Sprites.FrontDefault != nil {
		return *p.Sprites.FrontDefault
	}
	return ""
}

type LocalizedName struct {
	Name     string    `json:"name"`
	Language *NamedRef `json:"language"`
}

type FlavorTextEntry struct {
	FlavorText string    `json:"flavor_text"`
	Language   *NamedRef `json:"language"`
}

// SpeciesDocument is the typed view of a /pokemon-species/{id} payload.
type SpeciesDocument struct {
	ID                 *int              `json:"id"`
	Name               *string           `json:"name"`
	Color              *NamedRef         `json:"color"`
	CaptureRate        *int              `json:"capture_rate"`
	BaseHappiness      *int              `json:"base_happiness"`
	GrowthRate         *NamedRef         `json:"growth_rate"`
	Habitat            *NamedRef         `json:"habitat"`
	Shape              *NamedRef         `json:"shape"`
	IsBaby             *bool             `json:"is_baby"`
	IsLegendary        *bool             `json:"is_legendary"`
	IsMythical         *bool             `json:"is_mythical"`
	HatchCounter       *int              `json:"hatch_counter"`
	GenderRate         *int              `json:"gender_rate"`
	Generation         *NamedRef         `json:"generation"`
	EvolvesFromSpecies *NamedRef         `json:"evolves_from_species"`
	EggGroups          []NamedRef        `json:"egg_groups"`
	Names              []LocalizedName   `json:"names"`
	FlavorTextEntries  []FlavorTextEntry `json:"flavor_text_entries"`

	Raw json.RawMessage `json:"-"`
}

// Parent returns the species this one evolves from, "" for roots.
func (s *SpeciesDocument) Parent() string {
	if s == nil {
		return ""
	}
	return s.EvolvesFromSpecies.NameOr("")
}

// EggGroupNames lists egg group names in document order.
func (s *SpeciesDocument) EggGroupNames() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.EggGroups))
	for i := range s.EggGroups {
		if n := s.EggGroups[i].NamePtr(); n != nil {
			out = append(out, *n)
		}
	}
	return out
}

// LocalizedNames converts the names array for the localization policy.
func (s *SpeciesDocument) LocalizedNames() []localize.Entry {
	if s == nil {
		return nil
	}
	out := make([]localize.Entry, 0, len(s.Names))
	for _, n := range s.Names {
		out = append(out, localize.Entry{Language: n.Language.NameOr(""), Value: n.Name})
	}
	return out
}

// FlavorTexts converts the flavor text entries for the localization policy.
func (s *SpeciesDocument) FlavorTexts() []localize.Entry {
	if s == nil {
		return nil
	}
	out := make([]localize.Entry, 0, len(s.FlavorTextEntries))
	for _, f := range s.FlavorTextEntries {
		out = append(out, localize.Entry{Language: f.Language.NameOr(""), Value: f.FlavorText})
	}
	return out
}

var errMissingField = errors.New("missing required field")

// DecodePokemon parses an entity document. id and name are required.
func DecodePokemon(raw []byte) (*PokemonDocument, error) {
	var doc PokemonDocument
	compact, err := decode(raw, &doc)
	if err != nil {
		return nil, &domain.ParseError{What: "pokemon document", Err: err}
	}
	if doc.ID == nil {
		return nil, &domain.ParseError{What: "pokemon document id", Err: errMissingField}
	}
	if doc.Name == nil || *doc.Name == "" {
		return nil, &domain.ParseError{What: "pokemon document name", Err: errMissingField}
	}
	doc.Raw = compact
	return &doc, nil
}

// DecodeSpecies parses a species document. Every field is optional; a
// document stored before the species name was known still decodes.
func DecodeSpecies(raw []byte) (*SpeciesDocument, error) {
	var doc SpeciesDocument
	compact, err := decode(raw, &doc)
	if err != nil {
		return nil, &domain.ParseError{What: "species document", Err: err}
	}
	doc.Raw = compact
	return &doc, nil
}

func decode(raw []byte, into any) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("empty body")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("compact: %w", err)
	}
	return buf.Bytes(), nil
}
