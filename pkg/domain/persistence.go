package domain

import "context"

// Transaction exposes the write operations a persistence implementation must
// support within an atomic scope.
type Transaction interface {
	// UpsertEntity inserts the row or overwrites every non-key column of the
	// existing row with the same ID, refreshing updated_at.
	UpsertEntity(ctx context.Context, e Entity) error
	// ReplaceCollections deletes every child row of the entity and inserts the
	// provided collections in their place.
	ReplaceCollections(ctx context.Context, pokemonID int, c Collections) error
}

// Batch is an open write transaction spanning several entities. Each Apply
// call is isolated so a failing entity discards only its own writes.
type Batch interface {
	Apply(ctx context.Context, fn func(Transaction) error) error
	// Pending reports how many Apply calls succeeded since the last commit.
	Pending() int
	Commit() error
	Rollback() error
}

// Reader provides the read-only query surface used by the read service and the
// exporter.
type Reader interface {
	ListEntities(ctx context.Context) ([]Entity, error)
	GetEntity(ctx context.Context, id int) (Entity, bool, error)
	ListAbilities(ctx context.Context, pokemonID int) ([]Ability, error)
	ListTypes(ctx context.Context, pokemonID int) ([]TypeSlot, error)
	ListStats(ctx context.Context, pokemonID int) ([]Stat, error)
	ListMoves(ctx context.Context, pokemonID int) ([]Move, error)
	ListHeldItems(ctx context.Context, pokemonID int) ([]HeldItem, error)
	ListGameIndices(ctx context.Context, pokemonID int) ([]GameIndex, error)
	ListForms(ctx context.Context, pokemonID int) ([]Form, error)
	ListPastTypes(ctx context.Context, pokemonID int) ([]PastType, error)
	Freshness(ctx context.Context) (Freshness, error)
}

// PersistentStore is the abstraction over durable backends.
type PersistentStore interface {
	Reader
	Begin(ctx context.Context) (Batch, error)
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	Close() error
}

// LoadCollections reads every child collection of one entity.
func LoadCollections(ctx context.Context, r Reader, pokemonID int) (Collections, error) {
	var (
		c   Collections
		err error
	)
	if c.Abilities, err = r.ListAbilities(ctx, pokemonID); err != nil {
		return Collections{}, err
	}
	if c.Types, err = r.ListTypes(ctx, pokemonID); err != nil {
		return Collections{}, err
	}
	if c.Stats, err = r.ListStats(ctx, pokemonID); err != nil {
		return Collections{}, err
	}
	if c.Moves, err = r.ListMoves(ctx, pokemonID); err != nil {
		return Collections{}, err
	}
	if c.HeldItems, err = r.ListHeldItems(ctx, pokemonID); err != nil {
		return Collections{}, err
	}
	if c.GameIndices, err = r.ListGameIndices(ctx, pokemonID); err != nil {
		return Collections{}, err
	}
	if c.Forms, err = r.ListForms(ctx, pokemonID); err != nil {
		return Collections{}, err
	}
	if c.PastTypes, err = r.ListPastTypes(ctx, pokemonID); err != nil {
		return Collections{}, err
	}
	return c, nil
}
