package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fleetinv/pkg/bus"
	"fleetinv/pkg/db"
	"fleetinv/pkg/render"
	gos3 "fleetinv/pkg/s3"
	"fleetinv/pkg/seal"
	"fleetinv/pkg/telemetry"
	"fleetinv/services/api"
	"fleetinv/services/api/internal/config"
	"fleetinv/services/eventlog"
	"fleetinv/services/inventory"
)

const (
	serviceName    = "inventory-api"
	snapshotStream = "FLEETINV_SNAPSHOTS"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Fleet inventory ingestion and query service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the snapshot ingestor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply catalog schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.MemoryCatalog() {
				return errors.New("the in-memory catalog has no schema to migrate")
			}

			pool, err := db.Open(ctx, cfg.CatalogDSN)
			if err != nil {
				return fmt.Errorf("connect catalog: %w", err)
			}
			defer pool.Close()

			return db.Migrate(ctx, pool)
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.NewLogger(serviceName, cfg.LogLevel, cfg.LogFormat, os.Stderr)
	log.Logger = logger

	shutdownTracing, middleware, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown tracing")
		}
	}()

	catalog, closeCatalog, err := openCatalog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCatalog()

	var source inventory.EventSource
	if cfg.EventsDSN != "" {
		events, err := eventlog.Open(cfg.EventsDSN)
		if err != nil {
			return fmt.Errorf("open event store: %w", err)
		}
		defer func() { _ = events.Close() }()
		source = events
	} else {
		logger.Warn().Msg("EVENTS_DSN not set; log correlation disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := inventory.NewMetrics(registry)
	if err != nil {
		return err
	}

	reconciler, err := inventory.NewReconciler(catalog, logger, metrics)
	if err != nil {
		return err
	}
	query, err := inventory.NewQueryService(catalog, inventory.SiteFilter{Codes: cfg.SiteCodes, Complement: cfg.ComplementSite})
	if err != nil {
		return err
	}
	correlator, err := inventory.NewCorrelator(catalog, source, inventory.CorrelatorConfig{
		Timeout: cfg.CorrelationTimeout,
		Limit:   cfg.CorrelationLimit,
	}, logger, metrics)
	if err != nil {
		return err
	}

	archiver, err := newArchiver(ctx, cfg, logger)
	if err != nil {
		return err
	}

	renderer, err := render.New()
	if err != nil {
		return err
	}

	a, err := api.New(&api.Store{
		Catalog:    catalog,
		Reconciler: reconciler,
		Query:      query,
		Correlator: correlator,
		Archiver:   archiver,
	}, api.Deps{
		Renderer:   renderer,
		Logger:     logger,
		Gatherer:   registry,
		Middleware: middleware,
	}, api.Config{
		AllowedOrigins:  cfg.AllowedOrigins,
		IngestRateLimit: cfg.IngestRateLimit,
	})
	if err != nil {
		return err
	}
	handler, err := a.Routes()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.NATSURL != "" {
		ingestor, closeBus, err := startIngestor(gctx, cfg, reconciler, archiver, logger)
		if err != nil {
			return err
		}
		defer closeBus()
		defer func() { _ = ingestor.Close() }()
	}

	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr).Msg("starting inventory-api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openCatalog(ctx context.Context, cfg config.Config, logger zerolog.Logger) (inventory.Catalog, func(), error) {
	if cfg.MemoryCatalog() {
		logger.Warn().Msg("using the in-memory catalog; data is lost on exit")
		return inventory.NewMemoryCatalog(), func() {}, nil
	}

	pool, err := db.Open(ctx, cfg.CatalogDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect catalog: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate catalog: %w", err)
	}
	orm, err := db.ORM(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	catalog, err := inventory.NewGormCatalog(orm, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return catalog, pool.Close, nil
}

func newArchiver(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*api.Archiver, error) {
	if cfg.ArchiveBucket == "" {
		return nil, nil
	}
	client, err := gos3.New(ctx, gos3.Options{
		Endpoint:       cfg.S3Endpoint,
		AccessKey:      cfg.S3AccessKey,
		SecretKey:      cfg.S3SecretKey,
		Region:         cfg.S3Region,
		DisableTLS:     cfg.S3DisableTLS,
		ForcePathStyle: cfg.S3ForcePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	sealer, err := seal.New(cfg.ArchiveSigningKey, cfg.ArchiveRecipients)
	if err != nil {
		return nil, fmt.Errorf("init archive sealer: %w", err)
	}
	return api.NewArchiver(client, cfg.ArchiveBucket, sealer, logger)
}

func startIngestor(ctx context.Context, cfg config.Config, reconciler *inventory.Reconciler, archiver *api.Archiver, logger zerolog.Logger) (*inventory.Ingestor, func(), error) {
	b, err := bus.New(cfg.NATSURL, nats.Name(serviceName), nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	if err := b.EnsureStream(snapshotStream, cfg.NATSSubject); err != nil {
		b.Close()
		return nil, nil, fmt.Errorf("ensure stream: %w", err)
	}

	ingestCfg := inventory.IngestorConfig{Subject: cfg.NATSSubject}
	if archiver != nil {
		ingestCfg.AfterCommit = archiver.Archive
	}
	ingestor, err := inventory.NewIngestor(reconciler, b, ingestCfg, logger)
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	if err := ingestor.Start(ctx); err != nil {
		b.Close()
		return nil, nil, err
	}
	return ingestor, b.Close, nil
}
