package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/curlens/curlens/pkg/awsauth"
	"github.com/curlens/curlens/pkg/config"
	"github.com/curlens/curlens/pkg/discovery"
	"github.com/curlens/curlens/pkg/engine"
	"github.com/curlens/curlens/pkg/export"
	"github.com/curlens/curlens/pkg/localcache"
	"github.com/curlens/curlens/pkg/observability"
	"github.com/curlens/curlens/pkg/query"
)

func main() {
	format := flag.String("format", "json", "Output format: json or csv")
	limit := flag.Int("limit", 0, "Row limit (0 uses the configured cap)")
	forceRemote := flag.Bool("force-remote", false, "Read the remote export even when the local cache is usable")
	timeout := flag.Duration("timeout", 0, "Query deadline (0 uses the configured default)")
	meta := flag.Bool("meta", false, "Print query metadata to stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: curlens-query [flags] <sql | stored-query.sql | file.parquet>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	target := flag.Arg(0)

	log := logrus.New()
	log.SetOutput(os.Stderr)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Queries log to stderr so stdout stays clean for the result
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr)

	layout, err := export.LayoutFor(cfg.DataSource.ExportType)
	if err != nil {
		log.Fatalf("Invalid export type: %v", err)
	}

	ctx := context.Background()

	provider := awsauth.NewProvider(cfg.DataSource.Region, logger,
		awsauth.WithCacheSize(cfg.Query.ClientCache))
	client, err := provider.ClientFor(ctx, cfg.DataSource.Credentials)
	if err != nil {
		log.Fatalf("Failed to build object store client: %v", err)
	}

	lister := discovery.NewLister(client, cfg.DataSource.Bucket, cfg.DataSource.Prefix, layout, logger,
		discovery.WithRetry(cfg.Sync.MaxRetries, cfg.Sync.RetryBase, cfg.Sync.RetryCap),
		discovery.WithCallTimeout(cfg.Sync.CallTimeout))

	var cache *localcache.Cache
	if cfg.DataSource.LocalRoot != "" {
		cache = localcache.New(cfg.DataSource.LocalRoot, cfg.DataSource.Bucket, cfg.DataSource.Prefix, layout, logger)
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
	})
	if err != nil {
		log.Fatalf("Failed to build the query dispatcher: %v", err)
	}
	defer dispatcher.Close()

	result, qerr := dispatcher.Query(ctx, target, query.Options{
		ForceRemote:  *forceRemote,
		RowLimit:     *limit,
		OutputFormat: query.Format(*format),
		Deadline:     *timeout,
	})
	if qerr != nil {
		fmt.Fprintf(os.Stderr, "Error (%s): %s\n", qerr.Kind, qerr.Message)
		for _, s := range qerr.Suggestions {
			fmt.Fprintf(os.Stderr, "  hint: %s\n", s)
		}
		if qerr.CorrelationID != "" {
			fmt.Fprintf(os.Stderr, "  correlation id: %s\n", qerr.CorrelationID)
		}
		os.Exit(1)
	}

	os.Stdout.Write(result.Encoded)
	if *meta {
		enc := json.NewEncoder(os.Stderr)
		enc.SetIndent("", "  ")
		enc.Encode(result.Metadata)
	}
}
