package query

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/curlens/curlens/pkg/discovery"
	"github.com/curlens/curlens/pkg/engine"
	"github.com/curlens/curlens/pkg/localcache"
	"github.com/curlens/curlens/pkg/observability"
)

var tracer = otel.Tracer("curlens/query")

// Format selects the result encoding.
type Format string

const (
	FormatFrame Format = "frame"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// Options tunes one query.
type Options struct {
	ForceRemote  bool
	RowLimit     int // 0 means the configured cap
	OutputFormat Format
	Deadline     time.Duration // 0 means the configured default
}

// Metadata describes a successful query.
type Metadata struct {
	QueryID         string  `json:"query_id"`
	DataSource      Backing `json:"data_source"`
	Rows            int     `json:"rows"`
	ExecutionTimeMS int64   `json:"execution_time_ms"`
	Engine          string  `json:"engine"`
}

// Result is a successful query response. Encoded is set for the JSON and
// CSV output formats.
type Result struct {
	Frame    *engine.Frame
	Encoded  []byte
	Metadata Metadata
}

// ObjectGetter fetches single objects for remote-backed queries when the
// engine cannot read remote data itself.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Factory    engine.Factory
	Resolver   *Resolver
	Validator  *Validator
	Classifier *Classifier

	// Cache may be nil (remote only). Lister and Client may be nil
	// (local only).
	Cache  *localcache.Cache
	Lister *discovery.Lister
	Client ObjectGetter
	Bucket string

	TableName   string
	WindowStart string
	WindowEnd   string

	DefaultDeadline time.Duration

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Dispatcher runs the query pipeline: validate, resolve, bind the physical
// file set, register, execute, classify. Access to the shared adapter is
// serialized; adapters are not assumed thread-safe.
type Dispatcher struct {
	mu      sync.Mutex
	adapter engine.Adapter
	cfg     DispatcherConfig
}

// NewDispatcher creates a dispatcher with one shared adapter instance.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.TableName == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if cfg.DefaultDeadline <= 0 {
		cfg.DefaultDeadline = 5 * time.Minute
	}
	adapter, err := cfg.Factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create engine adapter: %w", err)
	}
	return &Dispatcher{adapter: adapter, cfg: cfg}, nil
}

// Close releases the shared adapter.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.adapter.Close()
}

// Query executes one target and returns a frame (or its encoding) plus
// metadata, or a classified error.
func (d *Dispatcher) Query(ctx context.Context, target string, opts Options) (*Result, *Error) {
	queryID := uuid.NewString()
	ctx = observability.WithQueryID(ctx, queryID)
	logger := d.cfg.Logger.WithField("query_id", queryID)

	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = d.cfg.DefaultDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ctx, span := tracer.Start(ctx, "query.Dispatch",
		trace.WithAttributes(attribute.String("query.id", queryID)))
	defer span.End()

	began := time.Now()
	result, qerr := d.run(ctx, target, opts, queryID)
	elapsed := time.Since(began)

	if qerr != nil {
		span.RecordError(qerr)
		span.SetStatus(codes.Error, string(qerr.Kind))
		d.observe(string(qerr.Kind), "", elapsed, 0)
		fields := map[string]interface{}{"kind": string(qerr.Kind), "elapsed_ms": elapsed.Milliseconds()}
		if qerr.CorrelationID != "" {
			fields["correlation_id"] = qerr.CorrelationID
		}
		logger.WithFields(fields).Warn("query failed")
		return nil, qerr
	}

	result.Metadata.QueryID = queryID
	result.Metadata.ExecutionTimeMS = elapsed.Milliseconds()
	d.observe("ok", string(result.Metadata.DataSource), elapsed, result.Metadata.Rows)
	logger.WithFields(map[string]interface{}{
		"data_source": string(result.Metadata.DataSource),
		"rows":        result.Metadata.Rows,
		"elapsed_ms":  elapsed.Milliseconds(),
	}).Info("query served")
	return result, nil
}

func (d *Dispatcher) run(ctx context.Context, target string, opts Options, queryID string) (*Result, *Error) {
	if e := d.cfg.Validator.ValidateTarget(target, opts.RowLimit); e != nil {
		return nil, e
	}

	res, e := d.cfg.Resolver.Resolve(target, opts.ForceRemote)
	if e != nil {
		return nil, e
	}

	var sqlText, tableName string
	switch res.Kind {
	case SourceDirectFile:
		tableName = tableNameFor(res.FilePath)
		sqlText = fmt.Sprintf(`SELECT * FROM %q`, tableName)
	default:
		if e := d.cfg.Validator.ValidateSQL(res.SQL); e != nil {
			return nil, e
		}
		sqlText = res.SQL
		tableName = d.cfg.TableName
	}

	paths, cleanup, e := d.fileSet(ctx, res)
	if e != nil {
		return nil, e
	}
	defer cleanup()

	rowLimit := d.cfg.Validator.EffectiveRowLimit(opts.RowLimit)

	d.mu.Lock()
	frame, err := d.registerAndExecute(ctx, d.adapter, tableName, paths, sqlText, rowLimit)
	engineName := d.adapter.Name()
	d.mu.Unlock()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, d.cfg.Classifier.Classify(ctxErr)
		}
		return nil, d.cfg.Classifier.Classify(err)
	}

	result := &Result{
		Frame: frame,
		Metadata: Metadata{
			DataSource: res.Backing,
			Rows:       frame.RowCount(),
			Engine:     engineName,
		},
	}
	if e := encodeResult(result, opts.OutputFormat); e != nil {
		return nil, e
	}
	return result, nil
}

func (d *Dispatcher) registerAndExecute(ctx context.Context, adapter engine.Adapter, tableName string, paths []string, sqlText string, rowLimit int) (*engine.Frame, error) {
	if err := adapter.RegisterTable(ctx, tableName, paths); err != nil {
		return nil, err
	}
	return adapter.Execute(ctx, sqlText, rowLimit)
}

// fileSet determines the physical files backing this query. The returned
// cleanup releases any temporary remote materialization.
func (d *Dispatcher) fileSet(ctx context.Context, res *Resolution) ([]string, func(), *Error) {
	noop := func() {}
	switch res.Backing {
	case BackingDirectFile:
		return []string{res.FilePath}, noop, nil

	case BackingLocal:
		files, err := d.cfg.Cache.ListFiles(d.cfg.WindowStart, d.cfg.WindowEnd)
		if err != nil {
			return nil, noop, d.cfg.Classifier.Classify(err)
		}
		if len(files) == 0 {
			return nil, noop, NewError(KindNotFound, "the local cache holds no data files in the window",
				"run a sync, or force remote")
		}
		paths := make([]string, len(files))
		for i, f := range files {
			paths[i] = f.Path
		}
		return paths, noop, nil

	default:
		return d.remoteFileSet(ctx)
	}
}

// remoteFileSet lists the remote window and materializes it into a
// per-query temporary directory, since the engine cannot read remote
// objects itself.
func (d *Dispatcher) remoteFileSet(ctx context.Context) ([]string, func(), *Error) {
	noop := func() {}
	if d.cfg.Lister == nil || d.cfg.Client == nil {
		return nil, noop, NewError(KindInvalidQuery, "remote access is not configured for this data source",
			"configure bucket credentials or query the local cache")
	}

	listing, err := d.cfg.Lister.List(ctx, d.cfg.WindowStart, d.cfg.WindowEnd)
	if err != nil {
		return nil, noop, d.cfg.Classifier.Classify(err)
	}
	if len(listing.Files) == 0 {
		return nil, noop, NewError(KindNotFound, "the remote export holds no data files in the window",
			"list the available partitions and compare with the requested window")
	}

	dir, err := os.MkdirTemp("", "curlens-remote-")
	if err != nil {
		return nil, noop, d.cfg.Classifier.Classify(err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	paths := make([]string, 0, len(listing.Files))
	for _, file := range listing.Files {
		dest := filepath.Join(dir, file.Partition.Value+"_"+file.Name)
		if err := d.fetchObject(ctx, file, dest); err != nil {
			cleanup()
			return nil, noop, d.cfg.Classifier.Classify(err)
		}
		paths = append(paths, dest)
	}
	return paths, cleanup, nil
}

func (d *Dispatcher) fetchObject(ctx context.Context, file discovery.RemoteFile, dest string) error {
	out, err := d.cfg.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(file.Key),
	})
	if err != nil {
		return fmt.Errorf("failed to get s3://%s/%s: %w", d.cfg.Bucket, file.Key, err)
	}
	defer out.Body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	_, err = io.Copy(f, out.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}

func (d *Dispatcher) observe(status, source string, elapsed time.Duration, rows int) {
	if d.cfg.Metrics == nil {
		return
	}
	d.cfg.Metrics.QueriesTotal.WithLabelValues(source, status).Inc()
	if status == "ok" {
		d.cfg.Metrics.QueryDuration.WithLabelValues(source).Observe(elapsed.Seconds())
		d.cfg.Metrics.QueryRows.WithLabelValues(source).Observe(float64(rows))
	}
}

// encodeResult renders the frame per the requested output format.
func encodeResult(result *Result, format Format) *Error {
	switch format {
	case "", FormatFrame:
		return nil
	case FormatJSON:
		var buf bytes.Buffer
		if err := result.Frame.EncodeJSON(&buf); err != nil {
			return NewError(KindInternal, "failed to encode the result as JSON")
		}
		result.Encoded = buf.Bytes()
		return nil
	case FormatCSV:
		var buf bytes.Buffer
		if err := result.Frame.EncodeCSV(&buf); err != nil {
			return NewError(KindInternal, "failed to encode the result as CSV")
		}
		result.Encoded = buf.Bytes()
		return nil
	default:
		return NewError(KindInvalidQuery, fmt.Sprintf("unknown output format %q", format),
			"use frame, json, or csv")
	}
}

var identRe = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// tableNameFor derives a logical table name from a direct file path.
func tableNameFor(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name := identRe.ReplaceAllString(base, "_")
	if name == "" {
		name = "direct_file"
	}
	return name
}
