// Package syncer drives the catalog client, the normalizer and the store
// across a target set. Each target is applied under its own savepoint inside
// the open batch, so a failing target discards only its own writes.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pokeindex/internal/catalog"
	"pokeindex/internal/normalize"
	"pokeindex/internal/observability"
	"pokeindex/internal/platform/logger"
	"pokeindex/pkg/domain"
)

// DefaultBatchSize is the number of successful targets per commit.
const DefaultBatchSize = 25

// Fetcher retrieves raw documents by URL.
type Fetcher interface {
	FetchDocument(ctx context.Context, url string) (json.RawMessage, error)
}

// Beginner opens write batches.
type Beginner interface {
	Begin(ctx context.Context) (domain.Batch, error)
}

// Config tunes batching and fetch concurrency.
type Config struct {
	BatchSize int
	// Workers > 1 fetches a window of targets concurrently; normalization and
	// writes stay sequential in target order.
	Workers int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return c
}

// Failure records one skipped target.
type Failure struct {
	Identifier string
	URL        string
	Err        error
}

// Report summarizes a run.
type Report struct {
	RunID     string
	Processed int
	Skipped   int
	Failures  []Failure
	Commits   int
	Duration  time.Duration
}

// Orchestrator runs syncs. It is not safe for concurrent Run calls.
type Orchestrator struct {
	fetcher Fetcher
	store   Beginner
	cfg     Config
	log     *logger.Logger
	rec     observability.Recorder
	now     func() time.Time
	state   atomic.Int32
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *logger.Logger) Option { return func(o *Orchestrator) { o.log = l } }

func WithRecorder(r observability.Recorder) Option {
	return func(o *Orchestrator) { o.rec = observability.OrNop(r) }
}

// WithClock overrides the clock used for durations.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// New constructs an orchestrator.
func New(fetcher Fetcher, store Beginner, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher: fetcher,
		store:   store,
		cfg:     cfg.withDefaults(),
		log:     logger.Nop(),
		rec:     observability.Nop{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With("component", "syncer")
	return o
}

// State returns the current pipeline state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

func (o *Orchestrator) setState(s State) {
	prev := State(o.state.Swap(int32(s)))
	if prev != s {
		o.log.Debug("sync state", "from", prev.String(), "to", s.String())
	}
}

// fetched carries one target's documents between the fetch window and the
// sequential apply loop.
type fetched struct {
	target  catalog.Target
	pokemon *catalog.PokemonDocument
	species *catalog.SpeciesDocument
	err     error
	started time.Time
}

// run holds the mutable state of one Run call.
type run struct {
	o      *Orchestrator
	log    *logger.Logger
	report Report
	batch  domain.Batch
}

// Run syncs every target src yields. A listing failure stops resolution,
// commits the open batch and returns the error with the partial report.
// Store failures (begin/commit) abort the run.
func (o *Orchestrator) Run(ctx context.Context, src catalog.TargetSource) (Report, error) {
	start := o.now()
	r := &run{o: o, report: Report{RunID: uuid.NewString()}}
	r.log = o.log.With("run_id", r.report.RunID)
	r.log.Info("sync started", "batch_size", o.cfg.BatchSize, "workers", o.cfg.Workers)

	err := r.loop(ctx, src)
	var listErr *listingError
	switch {
	case errors.As(err, &listErr):
		err = listErr.err
		if cerr := r.commit(ctx); cerr != nil {
			err = errors.Join(err, cerr)
		}
	case err != nil:
		if rbErr := r.rollback(); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
	default:
		err = r.commit(ctx)
	}
	r.report.Duration = o.now().Sub(start)
	if err != nil {
		o.setState(StateIdle)
		r.log.Error("sync aborted", "processed", r.report.Processed, "skipped", r.report.Skipped, "error", err)
		return r.report, err
	}
	o.setState(StateDone)
	r.log.Info("sync completed",
		"processed", r.report.Processed,
		"skipped", r.report.Skipped,
		"commits", r.report.Commits,
		"duration", r.report.Duration.String())
	return r.report, nil
}

type listingError struct{ err error }

func (e *listingError) Error() string { return e.err.Error() }
func (e *listingError) Unwrap() error { return e.err }

func (r *run) loop(ctx context.Context, src catalog.TargetSource) error {
	for {
		r.o.setState(StateResolving)
		window, exhausted, listErr := r.resolve(ctx, src)
		if len(window) > 0 {
			if err := r.process(ctx, window); err != nil {
				return err
			}
		}
		if listErr != nil {
			return &listingError{err: listErr}
		}
		if exhausted {
			return nil
		}
	}
}

// resolve pulls up to Workers targets from src.
func (r *run) resolve(ctx context.Context, src catalog.TargetSource) ([]catalog.Target, bool, error) {
	window := make([]catalog.Target, 0, r.o.cfg.Workers)
	for len(window) < r.o.cfg.Workers {
		t, ok, err := src.Next(ctx)
		if err != nil {
			return window, false, err
		}
		if !ok {
			return window, true, nil
		}
		window = append(window, t)
	}
	return window, false, nil
}

func (r *run) process(ctx context.Context, window []catalog.Target) error {
	r.o.setState(StateFetching)
	results := r.fetchWindow(ctx, window)
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, res := range results {
		if res.err != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.fail(ctx, res, res.err)
			continue
		}
		if err := r.apply(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) fetchWindow(ctx context.Context, window []catalog.Target) []fetched {
	results := make([]fetched, len(window))
	if len(window) == 1 {
		results[0] = r.fetchOne(ctx, window[0])
		return results
	}
	var g errgroup.Group
	g.SetLimit(r.o.cfg.Workers)
	for i, t := range window {
		g.Go(func() error {
			results[i] = r.fetchOne(ctx, t)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *run) fetchOne(ctx context.Context, t catalog.Target) fetched {
	res := fetched{target: t, started: r.o.now()}
	raw, err := r.o.fetcher.FetchDocument(ctx, t.URL)
	if err != nil {
		res.err = fmt.Errorf("fetch %s: %w", t.Identifier, err)
		return res
	}
	pokemon, err := catalog.DecodePokemon(raw)
	if err != nil {
		res.err = err
		return res
	}
	speciesURL := pokemon.SpeciesURL()
	if speciesURL == "" {
		res.err = &domain.DataIntegrityError{Target: t.Identifier, Reason: "missing species url"}
		return res
	}
	rawSpecies, err := r.o.fetcher.FetchDocument(ctx, speciesURL)
	if err != nil {
		res.err = fmt.Errorf("fetch species of %s: %w", t.Identifier, err)
		return res
	}
	species, err := catalog.DecodeSpecies(rawSpecies)
	if err != nil {
		res.err = err
		return res
	}
	res.pokemon, res.species = pokemon, species
	return res
}

// apply normalizes and writes one target. Only store-level failures (begin,
// commit) are returned; per-target errors are recorded as skips.
func (r *run) apply(ctx context.Context, res fetched) error {
	r.o.setState(StateNormalizing)
	record, err := normalize.Normalize(res.pokemon, res.species)
	if err != nil {
		r.fail(ctx, res, err)
		return nil
	}
	r.o.setState(StateCommitting)
	if r.batch == nil {
		b, err := r.o.store.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin batch: %w", err)
		}
		r.batch = b
	}
	err = r.batch.Apply(ctx, func(tx domain.Transaction) error {
		if err := tx.UpsertEntity(ctx, record.Entity); err != nil {
			return err
		}
		return tx.ReplaceCollections(ctx, record.Entity.ID, record.Collections)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		r.fail(ctx, res, err)
		return nil
	}
	r.report.Processed++
	r.o.rec.ObserveTarget(ctx, observability.OutcomeSynced, r.o.now().Sub(res.started))
	r.log.Debug("target synced", "target", res.target.Identifier, "id", record.Entity.ID, "children", record.Collections.Len())
	if r.batch.Pending() >= r.o.cfg.BatchSize {
		return r.commit(ctx)
	}
	r.o.setState(StateFetching)
	return nil
}

func (r *run) fail(ctx context.Context, res fetched, err error) {
	r.o.setState(StateFailed)
	r.report.Skipped++
	r.report.Failures = append(r.report.Failures, Failure{Identifier: res.target.Identifier, URL: res.target.URL, Err: err})
	r.o.rec.ObserveTarget(ctx, observability.OutcomeSkipped, r.o.now().Sub(res.started))
	r.log.Warn("target skipped", "target", res.target.Identifier, "error", err)
	r.o.setState(StateFetching)
}

// commit closes the open batch, if any. An empty batch is rolled back.
func (r *run) commit(ctx context.Context) error {
	if r.batch == nil {
		return nil
	}
	b := r.batch
	r.batch = nil
	rows := b.Pending()
	if rows == 0 {
		return b.Rollback()
	}
	if err := b.Commit(); err != nil {
		r.o.rec.ObserveCommit(ctx, rows, false)
		r.report.Processed -= rows
		return fmt.Errorf("commit %d entities: %w", rows, err)
	}
	r.o.rec.ObserveCommit(ctx, rows, true)
	r.report.Commits++
	r.log.Info("batch committed", "entities", rows, "processed", r.report.Processed)
	return nil
}

func (r *run) rollback() error {
	if r.batch == nil {
		return nil
	}
	b := r.batch
	r.batch = nil
	r.report.Processed -= b.Pending()
	return b.Rollback()
}
