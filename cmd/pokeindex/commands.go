package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pokeindex/internal/blob"
	"pokeindex/internal/catalog"
	"pokeindex/internal/chaincache"
	"pokeindex/internal/config"
	"pokeindex/internal/core"
	"pokeindex/internal/export"
	"pokeindex/internal/observability"
	"pokeindex/internal/syncer"
	"pokeindex/pkg/domain"
)

// storageFlags are shared by every command that opens the store.
type storageFlags struct {
	driver      string
	dbPath      string
	postgresDSN string
}

func (f *storageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.driver, "driver", "", "storage driver (sqlite, postgres, memory)")
	cmd.Flags().StringVar(&f.dbPath, "db-path", "", "sqlite database path")
	cmd.Flags().StringVar(&f.postgresDSN, "postgres-dsn", "", "postgres connection string")
}

func (f *storageFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.Storage.Driver = core.StorageDriver(strings.ToLower(f.driver))
	}
	if flags.Changed("db-path") {
		cfg.Storage.SQLitePath = f.dbPath
	}
	if flags.Changed("postgres-dsn") {
		cfg.Storage.PostgresDSN = f.postgresDSN
	}
}

func (a *app) openStore(ctx context.Context) (domain.PersistentStore, error) {
	store, err := core.OpenPersistentStore(ctx, a.cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.log.Debug("store opened", "driver", string(a.cfg.Storage.Driver))
	return store, nil
}

// newService wires the read service, attaching the redis snapshot tier when
// configured. An unreachable redis only costs the shared tier.
func (a *app) newService(ctx context.Context, store domain.Reader) (*core.Service, func()) {
	cacheOpts := []chaincache.Option{chaincache.WithLogger(a.log)}
	cleanup := func() {}
	if rc, ok := a.cfg.RedisConfig(); ok {
		snaps, err := chaincache.NewRedisSnapshots(ctx, rc)
		if err != nil {
			a.log.Warn("genealogy snapshot tier disabled", "addr", rc.Addr, "error", err)
		} else {
			cacheOpts = append(cacheOpts, chaincache.WithSnapshots(snaps))
			cleanup = func() { _ = snaps.Close() }
		}
	}
	svc := core.NewService(store, core.WithLogger(a.log), core.WithCache(chaincache.New(cacheOpts...)))
	return svc, cleanup
}

type syncFlags struct {
	storage     storageFlags
	names       []string
	limit       int
	offset      int
	pageSize    int
	sleep       float64
	batchSize   int
	maxRetries  int
	backoff     float64
	workers     int
	baseURL     string
	metricsFile string
}

func (a *app) syncCommand() *cobra.Command {
	f := &syncFlags{}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch catalog entries and upsert them into the store",
		Long: `Fetch catalog entries and upsert them into the store.

Without --names the whole catalog is crawled page by page. Entries that fail
are logged and skipped; the run only aborts when the store is unusable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSync(cmd, f)
		},
	}
	f.storage.register(cmd)
	fl := cmd.Flags()
	fl.StringSliceVar(&f.names, "names", nil, "explicit identifiers to sync (comma separated)")
	fl.IntVar(&f.limit, "limit", 0, "maximum entries to crawl (0 = all)")
	fl.IntVar(&f.offset, "offset", 0, "crawl start offset")
	fl.IntVar(&f.pageSize, "page-size", catalog.DefaultPageSize, "listing page size")
	fl.Float64Var(&f.sleep, "sleep", catalog.DefaultDelay.Seconds(), "seconds to wait after each document fetch")
	fl.IntVar(&f.batchSize, "batch-size", syncer.DefaultBatchSize, "successful entries per commit")
	fl.IntVar(&f.maxRetries, "max-retries", catalog.DefaultMaxRetries, "total attempts per request")
	fl.Float64Var(&f.backoff, "backoff", catalog.DefaultBackoffFactor, "exponential backoff factor in seconds")
	fl.IntVar(&f.workers, "workers", 1, "documents fetched concurrently")
	fl.StringVar(&f.baseURL, "base-url", catalog.DefaultBaseURL, "catalog API base URL")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write prometheus metrics to this textfile after the run")
	return cmd
}

func (f *syncFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	f.storage.apply(cmd, cfg)
	fl := cmd.Flags()
	if fl.Changed("names") {
		cfg.Catalog.Names = f.names
	}
	if fl.Changed("limit") {
		cfg.Catalog.Limit = f.limit
	}
	if fl.Changed("offset") {
		cfg.Catalog.Offset = f.offset
	}
	if fl.Changed("page-size") {
		cfg.Catalog.PageSize = f.pageSize
	}
	if fl.Changed("sleep") {
		cfg.Catalog.Delay = time.Duration(f.sleep * float64(time.Second))
	}
	if fl.Changed("batch-size") {
		cfg.Sync.BatchSize = f.batchSize
	}
	if fl.Changed("max-retries") {
		cfg.Catalog.MaxRetries = f.maxRetries
	}
	if fl.Changed("backoff") {
		cfg.Catalog.BackoffFactor = f.backoff
	}
	if fl.Changed("workers") {
		cfg.Sync.Workers = f.workers
	}
	if fl.Changed("base-url") {
		cfg.Catalog.BaseURL = f.baseURL
	}
	if fl.Changed("metrics-file") {
		cfg.Sync.MetricsFile = f.metricsFile
	}
}

func (a *app) runSync(cmd *cobra.Command, f *syncFlags) error {
	f.apply(cmd, &a.cfg)
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	ctx := cmd.Context()
	store, err := a.openStore(ctx)
	if err != nil {
		return runtimeFailure(fmt.Errorf("aborted before processing: %w", err))
	}
	defer store.Close()

	rec := observability.NewPrometheusRecorder()
	clientOpts := []catalog.Option{catalog.WithLogger(a.log), catalog.WithRecorder(rec)}
	if a.httpClient != nil {
		clientOpts = append(clientOpts, catalog.WithHTTPClient(a.httpClient))
	}
	client := catalog.NewClient(a.cfg.ClientConfig(), clientOpts...)
	orch := syncer.New(client, store, a.cfg.SyncerConfig(), syncer.WithLogger(a.log), syncer.WithRecorder(rec))

	report, runErr := orch.Run(ctx, catalog.NewTargetSource(client, a.cfg.Selection()))
	if path := a.cfg.Sync.MetricsFile; path != "" {
		if err := rec.WriteTextfile(path); err != nil {
			a.log.Warn("metrics not written", "path", path, "error", err)
		}
	}
	for _, fl := range report.Failures {
		fmt.Fprintf(a.stderr, "skipped %s: %v\n", fl.Identifier, fl.Err)
	}
	if runErr != nil {
		if report.Processed == 0 && report.Skipped == 0 {
			return runtimeFailure(fmt.Errorf("aborted before processing: %w", runErr))
		}
		return runtimeFailure(fmt.Errorf("aborted after %d successes, %d skipped: %w", report.Processed, report.Skipped, runErr))
	}
	fmt.Fprintf(a.stdout, "completed with %d successes, %d skipped\n", report.Processed, report.Skipped)
	return nil
}

type exportFlags struct {
	storage    storageFlags
	output     string
	blobDriver string
	blobRoot   string
}

func (a *app) exportCommand() *cobra.Command {
	f := &exportFlags{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the static JSON payload for the frontend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runExport(cmd, f)
		},
	}
	f.storage.register(cmd)
	cmd.Flags().StringVar(&f.output, "output", export.DefaultKey, "blob key of the payload")
	cmd.Flags().StringVar(&f.blobDriver, "blob-driver", "", "blob backend (fs, s3, memory)")
	cmd.Flags().StringVar(&f.blobRoot, "blob-root", "", "filesystem blob root")
	return cmd
}

func (a *app) runExport(cmd *cobra.Command, f *exportFlags) error {
	f.storage.apply(cmd, &a.cfg)
	fl := cmd.Flags()
	if fl.Changed("output") {
		a.cfg.Export.Key = f.output
	}
	if fl.Changed("blob-driver") {
		a.cfg.Export.BlobDriver = blob.Driver(strings.ToLower(f.blobDriver))
	}
	if fl.Changed("blob-root") {
		a.cfg.Export.BlobRoot = f.blobRoot
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	ctx := cmd.Context()
	store, err := a.openStore(ctx)
	if err != nil {
		return runtimeFailure(err)
	}
	defer store.Close()
	blobs, err := blob.Open(ctx, a.cfg.BlobConfig())
	if err != nil {
		return runtimeFailure(fmt.Errorf("open blob store: %w", err))
	}
	svc, cleanup := a.newService(ctx, store)
	defer cleanup()

	artifact, err := export.New(svc, blobs, export.WithLogger(a.log)).Export(ctx, a.cfg.Export.Key)
	if err != nil {
		return runtimeFailure(err)
	}
	target := artifact.Key
	if artifact.URL != "" {
		target = artifact.URL
	}
	fmt.Fprintf(a.stdout, "Exported %d entries to %s\n", artifact.Total, target)
	return nil
}

func (a *app) chainCommand() *cobra.Command {
	f := &storageFlags{}
	cmd := &cobra.Command{
		Use:   "chain <species-slug>",
		Short: "Print the evolution chain of a species as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.apply(cmd, &a.cfg)
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.runChain(cmd.Context(), args[0])
		},
	}
	f.register(cmd)
	return cmd
}

var errUnknownSpecies = errors.New("unknown species")

func (a *app) runChain(ctx context.Context, slug string) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return runtimeFailure(err)
	}
	defer store.Close()
	svc, cleanup := a.newService(ctx, store)
	defer cleanup()

	stages, err := svc.Chain(ctx, slug)
	if err != nil {
		return runtimeFailure(err)
	}
	if len(stages) == 0 {
		return runtimeFailure(fmt.Errorf("%w %q", errUnknownSpecies, slug))
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stages); err != nil {
		return runtimeFailure(fmt.Errorf("encode chain: %w", err))
	}
	return nil
}
