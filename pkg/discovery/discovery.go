package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/curlens/curlens/pkg/export"
	"github.com/curlens/curlens/pkg/observability"
)

var tracer = otel.Tracer("curlens/discovery")

// S3API is the slice of the S3 client the lister needs. It matches the
// paginator client interface so tests can supply fakes.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// RemoteFile is one data object inside a partition.
type RemoteFile struct {
	Partition export.Partition
	Key       string // full object key
	Name      string // base name within the partition
	Size      int64
}

// Diagnostics reports non-fatal oddities seen during a listing.
type Diagnostics struct {
	// SkippedPartitions holds child directory names that did not parse as
	// partitions of the configured layout.
	SkippedPartitions []string
	// SkippedFiles counts objects rejected by the extension filter.
	SkippedFiles int
}

// Listing is the result of a remote discovery pass.
type Listing struct {
	Partitions  []export.Partition
	Files       []RemoteFile
	Diagnostics Diagnostics
}

// Lister discovers partitions and files under one export prefix.
type Lister struct {
	client  S3API
	bucket  string
	prefix  string
	layout  export.Layout
	logger  *observability.Logger
	metrics *observability.Metrics

	maxRetries  int
	retryBase   time.Duration
	retryCap    time.Duration
	callTimeout time.Duration
}

// ListerOption customizes a Lister.
type ListerOption func(*Lister)

// WithMetrics wires discovery counters.
func WithMetrics(m *observability.Metrics) ListerOption {
	return func(l *Lister) { l.metrics = m }
}

// WithRetry overrides the transient-error retry policy.
func WithRetry(maxRetries int, base, cap time.Duration) ListerOption {
	return func(l *Lister) {
		l.maxRetries = maxRetries
		l.retryBase = base
		l.retryCap = cap
	}
}

// WithCallTimeout bounds each outbound listing call.
func WithCallTimeout(d time.Duration) ListerOption {
	return func(l *Lister) { l.callTimeout = d }
}

// NewLister creates a lister over bucket/prefix for the given layout. The
// prefix is stored without surrounding slashes; empty means the bucket root.
func NewLister(client S3API, bucket, prefix string, layout export.Layout, logger *observability.Logger, opts ...ListerOption) *Lister {
	l := &Lister{
		client:      client,
		bucket:      bucket,
		prefix:      strings.Trim(prefix, "/"),
		layout:      layout,
		logger:      logger,
		maxRetries:  3,
		retryBase:   500 * time.Millisecond,
		retryCap:    30 * time.Second,
		callTimeout: time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// rootPrefix is the export prefix with a trailing slash, or empty.
func (l *Lister) rootPrefix() string {
	if l.prefix == "" {
		return ""
	}
	return l.prefix + "/"
}

// ListPartitions lists the immediate child directories of the prefix and
// parses them as partitions. Unparseable names are skipped and recorded.
func (l *Lister) ListPartitions(ctx context.Context) ([]export.Partition, Diagnostics, error) {
	ctx, span := tracer.Start(ctx, "discovery.ListPartitions",
		trace.WithAttributes(
			attribute.String("s3.bucket", l.bucket),
			attribute.String("s3.prefix", l.prefix),
			attribute.String("export.type", string(l.layout.ExportType)),
		))
	defer span.End()

	var diags Diagnostics
	var partitions []export.Partition

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(l.bucket),
		Prefix:    aws.String(l.rootPrefix()),
		Delimiter: aws.String("/"),
	}
	paginator := s3.NewListObjectsV2Paginator(l.client, input)
	for paginator.HasMorePages() {
		page, err := l.nextPage(ctx, paginator)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "partition listing failed")
			return nil, Diagnostics{}, fmt.Errorf("failed to list partitions under s3://%s/%s: %w", l.bucket, l.rootPrefix(), err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), l.rootPrefix()), "/")
			p, err := l.layout.ParseDirName(name)
			if err != nil {
				diags.SkippedPartitions = append(diags.SkippedPartitions, name)
				if l.metrics != nil {
					l.metrics.DiscoverySkippedTotal.Inc()
				}
				l.logger.WithField("dir", name).Debug("skipping non-partition directory")
				continue
			}
			partitions = append(partitions, p)
		}
	}

	sort.Slice(partitions, func(i, j int) bool { return partitions[i].Before(partitions[j]) })
	if l.metrics != nil {
		l.metrics.DiscoveryPartitionsTotal.WithLabelValues(string(l.layout.ExportType)).Add(float64(len(partitions)))
	}
	span.SetAttributes(attribute.Int("partitions.count", len(partitions)))
	return partitions, diags, nil
}

// List discovers all data files within the inclusive [start, end] window.
// Empty bounds are open. An empty result is legal and not an error.
func (l *Lister) List(ctx context.Context, start, end string) (*Listing, error) {
	ctx, span := tracer.Start(ctx, "discovery.List",
		trace.WithAttributes(
			attribute.String("s3.bucket", l.bucket),
			attribute.String("window.start", start),
			attribute.String("window.end", end),
		))
	defer span.End()

	partitions, diags, err := l.ListPartitions(ctx)
	if err != nil {
		return nil, err
	}

	listing := &Listing{Diagnostics: diags}
	for _, p := range partitions {
		if !l.layout.InWindow(p.Value, start, end) {
			continue
		}
		files, skipped, err := l.listPartitionFiles(ctx, p)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "file listing failed")
			return nil, err
		}
		listing.Partitions = append(listing.Partitions, p)
		listing.Files = append(listing.Files, files...)
		listing.Diagnostics.SkippedFiles += skipped
	}

	// partitions arrive sorted; keep file order stable within each
	sort.SliceStable(listing.Files, func(i, j int) bool {
		if listing.Files[i].Partition.Value != listing.Files[j].Partition.Value {
			return listing.Files[i].Partition.Value < listing.Files[j].Partition.Value
		}
		return listing.Files[i].Name < listing.Files[j].Name
	})

	span.SetAttributes(attribute.Int("files.count", len(listing.Files)))
	return listing, nil
}

// listPartitionFiles lists data objects directly under one partition,
// applying the layout's extension filter.
func (l *Lister) listPartitionFiles(ctx context.Context, p export.Partition) ([]RemoteFile, int, error) {
	partPrefix := l.rootPrefix() + p.DirName() + "/"

	var files []RemoteFile
	skipped := 0

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(partPrefix),
	}
	paginator := s3.NewListObjectsV2Paginator(l.client, input)
	for paginator.HasMorePages() {
		page, err := l.nextPage(ctx, paginator)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to list partition %s: %w", p.DirName(), err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, partPrefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			if !l.layout.AcceptsExtension(name) {
				skipped++
				continue
			}
			files = append(files, RemoteFile{
				Partition: p,
				Key:       key,
				Name:      name,
				Size:      aws.ToInt64(obj.Size),
			})
		}
	}
	return files, skipped, nil
}

// nextPage fetches one paginator page, retrying transient failures with
// capped exponential backoff.
func (l *Lister) nextPage(ctx context.Context, paginator *s3.ListObjectsV2Paginator) (*s3.ListObjectsV2Output, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = l.retryBase
	policy.MaxInterval = l.retryCap

	var page *s3.ListObjectsV2Output
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, l.callTimeout)
		defer cancel()
		var err error
		page, err = paginator.NextPage(callCtx)
		if err != nil {
			if IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(l.maxRetries)), ctx))
	if err != nil {
		return nil, err
	}
	return page, nil
}
