// Package sqlstore implements the persisted mirror on database/sql. The sqlite
// and postgres packages open the connection and pick the dialect; everything
// else lives here.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"pokeindex/pkg/domain"
)

// TimeLayout is the fixed-width UTC layout used for updated_at so that
// lexical MAX() matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

// Store persists the mirror through a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	spSeq   atomic.Uint64
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp updated_at.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New wraps an open database. Call Migrate before use.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: dialect, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies the schema idempotently.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema() {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect reports the backend dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Begin opens a batch transaction.
func (s *Store) Begin(ctx context.Context) (domain.Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	return &batch{store: s, tx: tx}, nil
}

// RunInTransaction applies fn in its own transaction and commits on success.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&txn{store: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type batch struct {
	store   *Store
	tx      *sql.Tx
	pending int
	closed  bool
}

// Apply runs fn under a savepoint. On error the savepoint is rolled back so
// earlier entities in the batch survive.
func (b *batch) Apply(ctx context.Context, fn func(domain.Transaction) error) error {
	if b.closed {
		return errors.New("batch already closed")
	}
	name := fmt.Sprintf("entity_%d", b.store.spSeq.Add(1))
	if _, err := b.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(&txn{store: b.store, tx: b.tx}); err != nil {
		// the caller's context may already be cancelled
		cleanup := context.WithoutCancel(ctx)
		if _, rbErr := b.tx.ExecContext(cleanup, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		_, _ = b.tx.ExecContext(cleanup, "RELEASE SAVEPOINT "+name)
		return err
	}
	if _, err := b.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	b.pending++
	return nil
}

func (b *batch) Pending() int { return b.pending }

func (b *batch) Commit() error {
	if b.closed {
		return errors.New("batch already closed")
	}
	b.closed = true
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (b *batch) Rollback() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback batch: %w", err)
	}
	return nil
}

type txn struct {
	store *Store
	tx    *sql.Tx
}

func (t *txn) exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, t.store.dialect.Rebind(query), args...)
	return err
}

func (t *txn) UpsertEntity(ctx context.Context, e domain.Entity) error {
	if e.ID == 0 || e.Name == "" {
		return errors.New("upsert entity: missing identity")
	}
	if len(e.PokemonJSON) == 0 {
		return fmt.Errorf("upsert entity %d: empty pokemon document", e.ID)
	}
	stamp := t.store.now().UTC()
	args := []any{
		e.ID, e.Name, nullInt(e.BaseExperience), nullInt(e.Height), nullInt(e.Weight),
		nullInt(e.Order), nullBool(e.IsDefault), nullString(e.LocationAreaEncounters),
		nullString(e.SpeciesName), nullString(e.SpeciesColor), nullInt(e.CaptureRate),
		nullInt(e.BaseHappiness), nullString(e.GrowthRate), nullString(e.Habitat),
		nullString(e.Shape), nullBool(e.IsBaby), nullBool(e.IsLegendary), nullBool(e.IsMythical),
		nullInt(e.HatchCounter), nullInt(e.GenderRate), nullString(e.Generation),
		string(e.PokemonJSON), nullJSON(e.SpeciesJSON), stamp.Format(TimeLayout),
	}
	if err := t.exec(ctx, upsertEntitySQL, args...); err != nil {
		return fmt.Errorf("upsert %s %d: %w", domain.TablePokemon, e.ID, err)
	}
	return nil
}

func (t *txn) ReplaceCollections(ctx context.Context, id int, c domain.Collections) error {
	for _, table := range domain.ChildTables {
		if err := t.exec(ctx, "DELETE FROM "+table+" WHERE pokemon_id = ?", id); err != nil {
			return fmt.Errorf("delete %s %d: %w", table, id, err)
		}
	}
	insert := func(table string, cols []string, args ...any) error {
		if err := t.exec(ctx, insertSQL(table, cols...), args...); err != nil {
			return fmt.Errorf("insert %s %d: %w", table, id, err)
		}
		return nil
	}
	for _, r := range c.Abilities {
		if err := insert(domain.TableAbilities, []string{"pokemon_id", "ability_name", "slot", "is_hidden"},
			id, r.Name, nullInt(r.Slot), r.IsHidden); err != nil {
			return err
		}
	}
	for _, r := range c.Types {
		if err := insert(domain.TableTypes, []string{"pokemon_id", "slot", "type_name"}, id, r.Slot, r.TypeName); err != nil {
			return err
		}
	}
	for _, r := range c.Stats {
		if err := insert(domain.TableStats, []string{"pokemon_id", "stat_name", "base_stat", "effort"},
			id, r.Name, nullInt(r.BaseStat), nullInt(r.Effort)); err != nil {
			return err
		}
	}
	for _, r := range c.Moves {
		if err := insert(domain.TableMoves, []string{"pokemon_id", "move_name", "version_group", "learn_method", "level_learned_at"},
			id, r.Name, r.VersionGroup, r.LearnMethod, r.LevelLearnedAt); err != nil {
			return err
		}
	}
	for _, r := range c.HeldItems {
		if err := insert(domain.TableHeldItems, []string{"pokemon_id", "item_name", "version_name", "rarity"},
			id, r.ItemName, r.Version, nullInt(r.Rarity)); err != nil {
			return err
		}
	}
	for _, r := range c.GameIndices {
		if err := insert(domain.TableGameIndices, []string{"pokemon_id", "version_name", "game_index"},
			id, r.Version, nullInt(r.Index)); err != nil {
			return err
		}
	}
	for _, r := range c.Forms {
		if err := insert(domain.TableForms, []string{"pokemon_id", "form_name"}, id, r.Name); err != nil {
			return err
		}
	}
	for _, r := range c.PastTypes {
		if err := insert(domain.TablePastTypes, []string{"pokemon_id", "generation_name", "slot", "type_name"},
			id, r.Generation, r.Slot, r.TypeName); err != nil {
			return err
		}
	}
	return nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
