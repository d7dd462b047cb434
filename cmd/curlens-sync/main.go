package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/curlens/curlens/pkg/awsauth"
	"github.com/curlens/curlens/pkg/config"
	"github.com/curlens/curlens/pkg/discovery"
	"github.com/curlens/curlens/pkg/export"
	"github.com/curlens/curlens/pkg/localcache"
	"github.com/curlens/curlens/pkg/observability"
	"github.com/curlens/curlens/pkg/transfer"
)

func main() {
	startFlag := flag.String("start", "", "Window start partition value (overrides CURLENS_DATE_START)")
	endFlag := flag.String("end", "", "Window end partition value (overrides CURLENS_DATE_END)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.DataSource.LocalRoot == "" {
		log.Fatal("CURLENS_LOCAL_ROOT is required to sync a local cache")
	}

	start := cfg.DataSource.DateStart
	if *startFlag != "" {
		start = *startFlag
	}
	end := cfg.DataSource.DateEnd
	if *endFlag != "" {
		end = *endFlag
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	layout, err := export.LayoutFor(cfg.DataSource.ExportType)
	if err != nil {
		log.Fatalf("Invalid export type: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider := awsauth.NewProvider(cfg.DataSource.Region, logger,
		awsauth.WithCacheSize(cfg.Query.ClientCache))
	client, err := provider.ClientFor(ctx, cfg.DataSource.Credentials)
	if err != nil {
		log.Fatalf("Failed to build object store client: %v", err)
	}

	lister := discovery.NewLister(client, cfg.DataSource.Bucket, cfg.DataSource.Prefix, layout, logger,
		discovery.WithRetry(cfg.Sync.MaxRetries, cfg.Sync.RetryBase, cfg.Sync.RetryCap),
		discovery.WithCallTimeout(cfg.Sync.CallTimeout))
	cache := localcache.New(cfg.DataSource.LocalRoot, cfg.DataSource.Bucket, cfg.DataSource.Prefix, layout, logger)

	syncer := transfer.NewSyncer(client, lister, cache, cfg.DataSource.Bucket, cfg.DataSource.Prefix, layout,
		transfer.Options{
			Workers:     cfg.Sync.Workers,
			MaxRetries:  cfg.Sync.MaxRetries,
			RetryBase:   cfg.Sync.RetryBase,
			RetryCap:    cfg.Sync.RetryCap,
			CallTimeout: cfg.Sync.CallTimeout,
		}, logger, nil)

	report, err := syncer.Sync(ctx, start, end)
	if err != nil {
		if errors.Is(err, localcache.ErrLocked) {
			log.Fatalf("Another sync holds the cache lock: %v", err)
		}
		log.Fatalf("Sync failed: %v", err)
	}

	log.WithFields(logrus.Fields{
		"transferred": len(report.Transferred),
		"skipped":     len(report.Skipped),
		"failed":      len(report.Failed),
		"bytes":       report.Bytes,
		"duration":    report.Duration.String(),
	}).Info("Sync complete")

	if len(report.Failed) > 0 {
		for _, f := range report.Failed {
			log.WithField("key", f.Key).Errorf("File failed: %v", f.Cause)
		}
		os.Exit(1)
	}
}
