package query

import (
	"context"

	"github.com/curlens/curlens/pkg/engine"
)

// Session owns a dedicated adapter instance for a multi-statement run such
// as a materializer pass. Registrations made through a session are scoped to
// it and discarded on Close. Sessions are not safe for concurrent use by
// multiple goroutines except for Execute, which serializes internally via
// the session owner.
type Session struct {
	d       *Dispatcher
	adapter engine.Adapter
}

// NewSession creates a run-scoped session with a fresh adapter.
func (d *Dispatcher) NewSession() (*Session, *Error) {
	adapter, err := d.cfg.Factory()
	if err != nil {
		return nil, d.cfg.Classifier.Classify(err)
	}
	return &Session{d: d, adapter: adapter}, nil
}

// TableName returns the logical base table name of the data source.
func (s *Session) TableName() string {
	return s.d.cfg.TableName
}

// Engine returns the adapter's engine name.
func (s *Session) Engine() string {
	return s.adapter.Name()
}

// RegisterBase binds the data source's base table inside this session,
// deciding local versus remote backing the same way ad-hoc queries do.
func (s *Session) RegisterBase(ctx context.Context, forceRemote bool) (Backing, *Error) {
	backing := s.d.cfg.Resolver.backing(forceRemote)
	paths, cleanup, e := s.d.fileSet(ctx, &Resolution{Backing: backing})
	if e != nil {
		return "", e
	}
	defer cleanup()

	if err := s.adapter.RegisterTable(ctx, s.d.cfg.TableName, paths); err != nil {
		return "", s.d.cfg.Classifier.Classify(err)
	}
	return backing, nil
}

// RegisterFile binds one produced file under a logical name so later
// statements in the run can reference it as a table.
func (s *Session) RegisterFile(ctx context.Context, name, path string) *Error {
	if err := s.adapter.RegisterFile(ctx, name, path); err != nil {
		return s.d.cfg.Classifier.Classify(err)
	}
	return nil
}

// Execute validates and runs one read statement with no row cap.
func (s *Session) Execute(ctx context.Context, sqlText string) (*engine.Frame, *Error) {
	if e := s.d.cfg.Validator.ValidateSQL(sqlText); e != nil {
		return nil, e
	}
	frame, err := s.adapter.Execute(ctx, sqlText, 0)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, s.d.cfg.Classifier.Classify(ctxErr)
		}
		return nil, s.d.cfg.Classifier.Classify(err)
	}
	return frame, nil
}

// Close discards the session's registrations.
func (s *Session) Close() error {
	return s.adapter.Close()
}
