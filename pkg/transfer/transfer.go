package transfer

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/curlens/curlens/pkg/discovery"
	"github.com/curlens/curlens/pkg/export"
	"github.com/curlens/curlens/pkg/localcache"
	"github.com/curlens/curlens/pkg/observability"
)

var tracer = otel.Tracer("curlens/transfer")

// S3API is the slice of the S3 client the syncer needs.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// FileError records one file that could not be transferred.
type FileError struct {
	Key   string
	Cause string
}

// Report summarizes a sync run.
type Report struct {
	Transferred []string
	Skipped     []string
	Failed      []FileError
	Bytes       int64
	Duration    time.Duration
}

// Options tunes a sync run.
type Options struct {
	Workers     int
	MaxRetries  int
	RetryBase   time.Duration
	RetryCap    time.Duration
	CallTimeout time.Duration
}

// DefaultOptions returns the default sync tuning.
func DefaultOptions() Options {
	return Options{
		Workers:     5,
		MaxRetries:  3,
		RetryBase:   500 * time.Millisecond,
		RetryCap:    30 * time.Second,
		CallTimeout: 5 * time.Minute,
	}
}

// Syncer downloads the discovered remote file set into the local mirror.
type Syncer struct {
	client  S3API
	lister  *discovery.Lister
	cache   *localcache.Cache
	bucket  string
	prefix  string
	layout  export.Layout
	opts    Options
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewSyncer creates a syncer. Metrics may be nil.
func NewSyncer(client S3API, lister *discovery.Lister, cache *localcache.Cache, bucket, prefix string, layout export.Layout, opts Options, logger *observability.Logger, metrics *observability.Metrics) *Syncer {
	if opts.Workers < 1 {
		opts.Workers = DefaultOptions().Workers
	}
	return &Syncer{
		client:  client,
		lister:  lister,
		cache:   cache,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		layout:  layout,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

// Sync mirrors the remote window [start, end] into the local cache. It holds
// the cache's advisory lock for the whole run and returns localcache.ErrLocked
// immediately when another sync holds it.
func (s *Syncer) Sync(ctx context.Context, start, end string) (*Report, error) {
	ctx, span := tracer.Start(ctx, "transfer.Sync",
		trace.WithAttributes(
			attribute.String("s3.bucket", s.bucket),
			attribute.String("window.start", start),
			attribute.String("window.end", end),
		))
	defer span.End()

	began := time.Now()

	lock, err := localcache.AcquireLock(s.cache.Root())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock not acquired")
		return nil, err
	}
	defer lock.Release()

	if err := s.reclaimStaged(); err != nil {
		return nil, err
	}

	listing, err := s.lister.List(ctx, start, end)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "remote listing failed")
		return nil, err
	}

	report := &Report{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, file := range listing.Files {
		file := file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, n, err := s.syncFile(gctx, file)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed = append(report.Failed, FileError{Key: file.Key, Cause: err.Error()})
				s.count("failed")
			case outcome == outcomeSkipped:
				report.Skipped = append(report.Skipped, file.Key)
				s.count("skipped")
			default:
				report.Transferred = append(report.Transferred, file.Key)
				report.Bytes += n
				s.count("transferred")
				if s.metrics != nil {
					s.metrics.SyncBytesTotal.Add(float64(n))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(report.Transferred)
	sort.Strings(report.Skipped)
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Key < report.Failed[j].Key })

	if len(report.Failed) == 0 {
		if err := s.writeManifest(listing); err != nil {
			return nil, err
		}
	} else {
		s.logger.Warnf("sync finished with %d failed files, manifest not updated", len(report.Failed))
	}

	report.Duration = time.Since(began)
	if s.metrics != nil {
		s.metrics.SyncDuration.Observe(report.Duration.Seconds())
	}
	span.SetAttributes(
		attribute.Int("files.transferred", len(report.Transferred)),
		attribute.Int("files.skipped", len(report.Skipped)),
		attribute.Int("files.failed", len(report.Failed)),
	)
	return report, nil
}

const (
	outcomeTransferred = "transferred"
	outcomeSkipped     = "skipped"
)

// syncFile downloads one file unless the local copy already matches by size.
func (s *Syncer) syncFile(ctx context.Context, file discovery.RemoteFile) (string, int64, error) {
	dest := s.cache.PathFor(file.Key)

	if info, err := os.Stat(dest); err == nil && info.Size() == file.Size {
		return outcomeSkipped, 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create partition dir: %w", err)
	}

	var n int64
	op := func() error {
		var err error
		n, err = s.download(ctx, file.Key, dest)
		if err != nil {
			if discovery.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.RetryBase
	policy.MaxInterval = s.opts.RetryCap
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.opts.MaxRetries)), ctx)); err != nil {
		return "", 0, err
	}
	return outcomeTransferred, n, nil
}

// download fetches one object into dest via a staged temporary.
func (s *Syncer) download(ctx context.Context, key, dest string) (int64, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	out, err := s.client.GetObject(callCtx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	staged := dest + localcache.StagingSuffix
	f, err := os.Create(staged)
	if err != nil {
		return 0, fmt.Errorf("failed to stage %s: %w", dest, err)
	}

	n, err := io.Copy(f, out.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(staged)
		return 0, fmt.Errorf("failed to write %s: %w", staged, err)
	}

	if err := os.Rename(staged, dest); err != nil {
		os.Remove(staged)
		return 0, fmt.Errorf("failed to publish %s: %w", dest, err)
	}
	return n, nil
}

// reclaimStaged removes leftover staged files from interrupted runs.
func (s *Syncer) reclaimStaged() error {
	dir := s.cache.Dir()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), localcache.StagingSuffix) {
			s.logger.WithField("path", path).Debug("reclaiming staged file")
			return os.Remove(path)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to reclaim staged files: %w", err)
	}
	return nil
}

// writeManifest records the synced remote file set for completeness checks.
func (s *Syncer) writeManifest(listing *discovery.Listing) error {
	m := &localcache.Manifest{
		SyncedAt:   time.Now().UTC(),
		Bucket:     s.bucket,
		Prefix:     s.prefix,
		ExportType: s.layout.ExportType,
		Partitions: make(map[string][]localcache.FileEntry),
	}
	for _, f := range listing.Files {
		m.Partitions[f.Partition.Value] = append(m.Partitions[f.Partition.Value], localcache.FileEntry{
			Name: f.Name,
			Size: f.Size,
		})
	}
	return localcache.WriteManifest(s.cache.Root(), m)
}

func (s *Syncer) count(outcome string) {
	if s.metrics != nil {
		s.metrics.SyncFilesTotal.WithLabelValues(outcome).Inc()
	}
}
