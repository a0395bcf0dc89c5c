package core

import (
	"pokeindex/internal/catalog"
	"pokeindex/internal/genealogy"
	"pokeindex/internal/localize"
	"pokeindex/pkg/domain"
)

// Profile is the presentation view of one stored entity, derived from its
// columns and the stored documents.
type Profile struct {
	Entity      domain.Entity
	SpeciesKey  string
	Parent      string
	Names       localize.Names
	Sprite      string
	Description string
	EggGroups   []string
}

// BuildProfile decodes the stored documents of e. A missing species document
// leaves the species fields empty and names fall back to the slug.
func BuildProfile(e domain.Entity) (Profile, error) {
	p := Profile{Entity: e, SpeciesKey: e.Name}
	if len(e.PokemonJSON) > 0 {
		doc, err := catalog.DecodePokemon(e.PokemonJSON)
		if err != nil {
			return Profile{}, err
		}
		p.Sprite = doc.Sprite()
	}
	var species *catalog.SpeciesDocument
	if len(e.SpeciesJSON) > 0 {
		doc, err := catalog.DecodeSpecies(e.SpeciesJSON)
		if err != nil {
			return Profile{}, err
		}
		species = doc
	}
	if species != nil && species.Name != nil && *species.Name != "" {
		p.SpeciesKey = *species.Name
	} else if e.SpeciesName != nil && *e.SpeciesName != "" {
		p.SpeciesKey = *e.SpeciesName
	}
	p.Names = localize.ResolveNames(p.SpeciesKey, species.LocalizedNames())
	p.Description = localize.Description(species.FlavorTexts())
	p.EggGroups = species.EggGroupNames()
	if p.EggGroups == nil {
		p.EggGroups = []string{}
	}
	p.Parent = species.Parent()
	return p, nil
}

// GenealogyEntity projects the profile onto the graph builder's input.
func (p Profile) GenealogyEntity() genealogy.Entity {
	return genealogy.Entity{
		ID:     p.Entity.ID,
		Slug:   p.Entity.Name,
		Key:    p.SpeciesKey,
		Names:  p.Names,
		Parent: p.Parent,
	}
}
