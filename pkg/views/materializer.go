package views

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/curlens/curlens/pkg/engine"
	"github.com/curlens/curlens/pkg/export"
	"github.com/curlens/curlens/pkg/localcache"
	"github.com/curlens/curlens/pkg/observability"
	"github.com/curlens/curlens/pkg/query"
)

var tracer = otel.Tracer("curlens/views")

// FailedView names a view whose statement failed, with the classified error.
type FailedView struct {
	Name string
	Err  *query.Error
}

// RunReport summarizes one materializer run.
type RunReport struct {
	RunID    string
	Backing  query.Backing
	Produced []string
	Failed   []FailedView
	Skipped  []string
	Duration time.Duration
}

// Materializer executes a view manifest level by level inside a single
// engine session, writing each view's result to a parquet file under the
// output root and registering it for higher levels.
type Materializer struct {
	dispatcher *query.Dispatcher
	outputRoot string
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewMaterializer creates a materializer writing under outputRoot.
func NewMaterializer(d *query.Dispatcher, outputRoot string, logger *observability.Logger, metrics *observability.Metrics) *Materializer {
	return &Materializer{
		dispatcher: d,
		outputRoot: outputRoot,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run materializes every view in the manifest in dependency order. A cycle
// fails before any statement executes. Views within a level run in parallel;
// the first failing view aborts the run, keeps every output produced so far,
// and reports the views that never ran as skipped.
func (m *Materializer) Run(ctx context.Context, manifest *Manifest, forceRemote bool) (*RunReport, *query.Error) {
	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)
	log := m.logger.WithField("run_id", runID)

	ctx, span := tracer.Start(ctx, "views.Run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("views.count", len(manifest.Views)),
	))
	defer span.End()

	started := time.Now()
	report := &RunReport{RunID: runID}

	levels, err := NewGraph(manifest.Views).Levels()
	if err != nil {
		return report, query.NewError(query.KindInvalidManifest, err.Error(),
			"break the cycle by removing one of the listed dependencies")
	}

	session, e := m.dispatcher.NewSession()
	if e != nil {
		return report, e
	}
	defer session.Close()

	backing, e := session.RegisterBase(ctx, forceRemote)
	if e != nil {
		return report, e
	}
	report.Backing = backing
	log.WithFields(map[string]interface{}{
		"data_source": string(backing),
		"levels":      len(levels),
		"engine":      session.Engine(),
	}).Info("materializer run started")

	var (
		mu       sync.Mutex // guards session use and report slices
		runError *query.Error
	)
	for k, level := range levels {
		outDir := filepath.Join(m.outputRoot, fmt.Sprintf("level_%d", k+1))
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			runError = query.NewError(query.KindInternal, fmt.Sprintf("failed to create output dir: %v", err))
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, v := range level {
			v := v
			g.Go(func() error {
				e := m.buildView(gctx, session, &mu, v, outDir, log)
				if e != nil {
					mu.Lock()
					report.Failed = append(report.Failed, FailedView{Name: v.Name, Err: e})
					if runError == nil {
						runError = e
					}
					mu.Unlock()
					return e
				}
				mu.Lock()
				report.Produced = append(report.Produced, v.Name)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			break
		}
	}

	report.Duration = time.Since(started)
	report.Skipped = m.skippedViews(manifest, report)
	sort.Strings(report.Produced)
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Name < report.Failed[j].Name })

	if m.metrics != nil {
		m.metrics.RunDuration.Observe(report.Duration.Seconds())
	}
	if runError != nil {
		log.WithFields(map[string]interface{}{
			"produced": len(report.Produced),
			"failed":   len(report.Failed),
			"skipped":  len(report.Skipped),
		}).Error("materializer run aborted")
		return report, runError
	}
	log.WithFields(map[string]interface{}{
		"produced":    len(report.Produced),
		"duration_ms": report.Duration.Milliseconds(),
	}).Info("materializer run complete")
	return report, nil
}

// buildView executes one view statement, stages its parquet output, and
// registers the produced file in the session. Session access is serialized
// through mu; the parquet write runs outside the lock.
func (m *Materializer) buildView(ctx context.Context, session *query.Session, mu *sync.Mutex, v View, outDir string, log *observability.Logger) *query.Error {
	started := time.Now()

	mu.Lock()
	frame, e := session.Execute(ctx, v.SQL)
	mu.Unlock()
	if e != nil {
		if m.metrics != nil {
			m.metrics.ViewsBuiltTotal.WithLabelValues("error").Inc()
		}
		log.WithField("view", v.Name).WithError(e).Error("view statement failed")
		return e
	}

	dest := filepath.Join(outDir, v.Name+export.ParquetExt)
	staging := dest + localcache.StagingSuffix
	if err := engine.WriteParquet(staging, frame); err != nil {
		os.Remove(staging)
		return query.NewError(query.KindInternal, fmt.Sprintf("failed to write view output: %v", err))
	}
	if err := os.Rename(staging, dest); err != nil {
		os.Remove(staging)
		return query.NewError(query.KindInternal, fmt.Sprintf("failed to publish view output: %v", err))
	}

	mu.Lock()
	e = session.RegisterFile(ctx, v.Name, dest)
	mu.Unlock()
	if e != nil {
		return e
	}

	elapsed := time.Since(started)
	if m.metrics != nil {
		m.metrics.ViewsBuiltTotal.WithLabelValues("ok").Inc()
		m.metrics.ViewDuration.WithLabelValues(v.Name).Observe(elapsed.Seconds())
	}
	log.WithFields(map[string]interface{}{
		"view":        v.Name,
		"rows":        frame.RowCount(),
		"duration_ms": elapsed.Milliseconds(),
	}).Info("view materialized")
	return nil
}

// skippedViews lists manifest views that neither produced output nor failed.
func (m *Materializer) skippedViews(manifest *Manifest, report *RunReport) []string {
	ran := make(map[string]bool, len(report.Produced)+len(report.Failed))
	for _, name := range report.Produced {
		ran[name] = true
	}
	for _, f := range report.Failed {
		ran[f.Name] = true
	}
	var skipped []string
	for _, v := range manifest.Views {
		if !ran[v.Name] {
			skipped = append(skipped, v.Name)
		}
	}
	sort.Strings(skipped)
	return skipped
}
