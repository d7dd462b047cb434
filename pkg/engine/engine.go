package engine

import "context"

// Feature is an optional engine capability the dispatcher may probe.
type Feature string

const (
	FeatureWindowFunctions    Feature = "window_functions"
	FeatureCTEs               Feature = "ctes"
	FeatureReadRemoteDirectly Feature = "read_remote_directly"
)

// Adapter is the capability set the dispatcher consumes. Implementations
// are not assumed thread-safe.
type Adapter interface {
	// Name identifies the engine, e.g. "sqlite".
	Name() string

	// RegisterTable binds a logical name to a set of data files. The
	// files' rows are unioned under the one table.
	RegisterTable(ctx context.Context, name string, paths []string) error

	// RegisterFile binds a logical name to a single data file.
	RegisterFile(ctx context.Context, name, path string) error

	// Execute runs a read query and returns at most rowLimit rows.
	Execute(ctx context.Context, sql string, rowLimit int) (*Frame, error)

	// Supports reports whether the engine offers an optional capability.
	Supports(f Feature) bool

	// Close releases engine resources. Registrations do not survive it.
	Close() error
}

// Factory creates a fresh Adapter. The materializer uses it to obtain a
// run-scoped instance whose registrations are discarded with the run.
type Factory func() (Adapter, error)
