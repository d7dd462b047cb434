package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/curlens/curlens/pkg/awsauth"
	"github.com/curlens/curlens/pkg/config"
	"github.com/curlens/curlens/pkg/discovery"
	"github.com/curlens/curlens/pkg/engine"
	"github.com/curlens/curlens/pkg/export"
	"github.com/curlens/curlens/pkg/localcache"
	"github.com/curlens/curlens/pkg/observability"
	"github.com/curlens/curlens/pkg/query"
	"github.com/curlens/curlens/pkg/transfer"
	"github.com/curlens/curlens/pkg/views"
)

func main() {
	runOnce := flag.Bool("run-once", false, "Run one sync-and-materialize pass and exit")
	skipSync := flag.Bool("skip-sync", false, "Materialize without refreshing the local cache first")
	forceRemote := flag.Bool("force-remote", false, "Read the remote export even when the local cache is usable")
	manifestFlag := flag.String("manifest", "", "View manifest path (overrides CURLENS_VIEW_MANIFEST)")
	outputFlag := flag.String("output", "", "View output root (overrides CURLENS_VIEW_OUTPUT_ROOT)")
	scheduleFlag := flag.String("schedule", "", "Cron schedule (overrides CURLENS_MATERIALIZE_SCHEDULE)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	manifestPath := cfg.Views.ManifestPath
	if *manifestFlag != "" {
		manifestPath = *manifestFlag
	}
	outputRoot := cfg.Views.OutputRoot
	if *outputFlag != "" {
		outputRoot = *outputFlag
	}
	schedule := cfg.Views.Schedule
	if *scheduleFlag != "" {
		schedule = *scheduleFlag
	}
	if manifestPath == "" {
		log.Fatal("CURLENS_VIEW_MANIFEST is required")
	}
	if outputRoot == "" {
		log.Fatal("CURLENS_VIEW_OUTPUT_ROOT is required")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	var registry *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}
	defer func() {
		if err := observability.ShutdownOTel(context.Background(), otelProviders, logger); err != nil {
			log.Errorf("OpenTelemetry shutdown failed: %v", err)
		}
	}()

	layout, err := export.LayoutFor(cfg.DataSource.ExportType)
	if err != nil {
		log.Fatalf("Invalid export type: %v", err)
	}

	providerOpts := []awsauth.ProviderOption{awsauth.WithCacheSize(cfg.Query.ClientCache)}
	if metrics != nil {
		providerOpts = append(providerOpts, awsauth.WithMetrics(metrics))
	}
	provider := awsauth.NewProvider(cfg.DataSource.Region, logger, providerOpts...)
	client, err := provider.ClientFor(ctx, cfg.DataSource.Credentials)
	if err != nil {
		log.Fatalf("Failed to build object store client: %v", err)
	}

	listerOpts := []discovery.ListerOption{
		discovery.WithRetry(cfg.Sync.MaxRetries, cfg.Sync.RetryBase, cfg.Sync.RetryCap),
		discovery.WithCallTimeout(cfg.Sync.CallTimeout),
	}
	if metrics != nil {
		listerOpts = append(listerOpts, discovery.WithMetrics(metrics))
	}
	lister := discovery.NewLister(client, cfg.DataSource.Bucket, cfg.DataSource.Prefix, layout, logger, listerOpts...)

	var cache *localcache.Cache
	var syncer *transfer.Syncer
	if cfg.DataSource.LocalRoot != "" {
		cache = localcache.New(cfg.DataSource.LocalRoot, cfg.DataSource.Bucket, cfg.DataSource.Prefix, layout, logger)
		syncer = transfer.NewSyncer(client, lister, cache, cfg.DataSource.Bucket, cfg.DataSource.Prefix, layout,
			transfer.Options{
				Workers:     cfg.Sync.Workers,
				MaxRetries:  cfg.Sync.MaxRetries,
				RetryBase:   cfg.Sync.RetryBase,
				RetryCap:    cfg.Sync.RetryCap,
				CallTimeout: cfg.Sync.CallTimeout,
			}, logger, metrics)
	}

	var library *query.Library
	if cfg.Views.QueryLibrary != "" {
		library, err = query.NewLibrary(cfg.Views.QueryLibrary, cfg.Query.LibraryCache, logger)
		if err != nil {
			log.Fatalf("Failed to open the query library: %v", err)
		}
		defer library.Close()
	}

	dispatcher, err := query.NewDispatcher(query.DispatcherConfig{
		Factory:   engine.SQLiteFactory(logger),
		Resolver:  query.NewResolver(library, cache, cfg.DataSource.PreferLocal, cfg.DataSource.DateStart, cfg.DataSource.DateEnd),
		Validator: query.NewValidator(cfg.Query.MaxQueryLen, cfg.Query.MaxRows),
		Classifier: &query.Classifier{
			KnownTables: []string{cfg.DataSource.TableName},
			Diagnostics: cfg.Query.Diagnostics,
		},
		Cache:           cache,
		Lister:          lister,
		Client:          client,
		Bucket:          cfg.DataSource.Bucket,
		TableName:       cfg.DataSource.TableName,
		WindowStart:     cfg.DataSource.DateStart,
		WindowEnd:       cfg.DataSource.DateEnd,
		DefaultDeadline: cfg.Query.Deadline,
		Logger:          logger,
		Metrics:         metrics,
	})
	if err != nil {
		log.Fatalf("Failed to build the query dispatcher: %v", err)
	}
	defer dispatcher.Close()

	materializer := views.NewMaterializer(dispatcher, outputRoot, logger, metrics)

	pass := func(ctx context.Context) error {
		if syncer != nil && !*skipSync {
			report, err := syncer.Sync(ctx, cfg.DataSource.DateStart, cfg.DataSource.DateEnd)
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			log.WithFields(logrus.Fields{
				"transferred": len(report.Transferred),
				"skipped":     len(report.Skipped),
				"failed":      len(report.Failed),
			}).Info("Cache sync complete")
			if len(report.Failed) > 0 {
				return fmt.Errorf("sync left %d files unfetched", len(report.Failed))
			}
		}

		manifest, err := views.LoadManifest(manifestPath)
		if err != nil {
			return err
		}
		report, qerr := materializer.Run(ctx, manifest, *forceRemote)
		log.WithFields(logrus.Fields{
			"run_id":   report.RunID,
			"produced": len(report.Produced),
			"failed":   len(report.Failed),
			"skipped":  len(report.Skipped),
			"duration": report.Duration.String(),
		}).Info("Materializer pass finished")
		if qerr != nil {
			return qerr
		}
		return nil
	}

	if *runOnce {
		if err := pass(ctx); err != nil {
			log.Fatalf("Materializer pass failed: %v", err)
		}
		return
	}

	// Scheduled mode with the operational HTTP server
	checks := map[string]observability.DependencyCheck{
		"object_store": func(ctx context.Context) error {
			_, _, err := lister.ListPartitions(ctx)
			return err
		},
	}
	if cache != nil {
		checks["local_cache"] = func(ctx context.Context) error {
			if _, err := os.Stat(cache.Root()); err != nil {
				return fmt.Errorf("cache root unavailable: %w", err)
			}
			return nil
		}
	}
	router := observability.NewHealthRouter(observability.NewHealthChecker(checks), registry)
	server := &http.Server{Addr: ":" + cfg.Server.HealthPort, Handler: router}
	go func() {
		log.Infof("Operational server listening on :%s", cfg.Server.HealthPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Operational server failed: %v", err)
		}
	}()

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if err := pass(context.Background()); err != nil {
			log.Errorf("Scheduled pass failed: %v", err)
		}
	}); err != nil {
		log.Fatalf("Failed to schedule materializer passes: %v", err)
	}
	c.Start()
	log.Infof("Materializer started, schedule: %s", schedule)

	<-ctx.Done()
	log.Info("Shutting down gracefully...")

	cronCtx := c.Stop()
	<-cronCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Operational server shutdown failed: %v", err)
	}
	log.Info("Materializer stopped")
}
