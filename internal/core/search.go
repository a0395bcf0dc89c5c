package core

import (
	"context"
	"strconv"
	"strings"

	"pokeindex/internal/localize"
	"pokeindex/pkg/domain"
)

// Card is a search result.
type Card struct {
	ID          int            `json:"id"`
	Slug        string         `json:"slug"`
	Names       localize.Names `json:"names"`
	Types       []string       `json:"types"`
	Sprite      string         `json:"sprite"`
	Description string         `json:"description"`
}

// Matches reports whether term is a case-insensitive substring of the id,
// slug, or any localized name. An empty term matches everything.
func Matches(term string, e domain.Entity, names localize.Names) bool {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return true
	}
	for _, candidate := range []string{strconv.Itoa(e.ID), e.Name, names.EN, names.ZH, names.JA} {
		if candidate != "" && strings.Contains(strings.ToLower(candidate), needle) {
			return true
		}
	}
	return false
}

// Search returns the cards of every entity matching term, ordered by id.
func (s *Service) Search(ctx context.Context, term string) ([]Card, error) {
	profiles, err := s.Profiles(ctx)
	if err != nil {
		return nil, err
	}
	cards := []Card{}
	for _, p := range profiles {
		if !Matches(term, p.Entity, p.Names) {
			continue
		}
		types, err := s.store.ListTypes(ctx, p.Entity.ID)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(types))
		for _, t := range types {
			names = append(names, t.TypeName)
		}
		cards = append(cards, Card{
			ID:          p.Entity.ID,
			Slug:        p.Entity.Name,
			Names:       p.Names,
			Types:       names,
			Sprite:      p.Sprite,
			Description: p.Description,
		})
	}
	return cards, nil
}
