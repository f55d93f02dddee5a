package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"yaami/config"
	"yaami/logging"
	"yaami/metrics"
	"yaami/protocols"
)

// Opener builds an unconnected backend session from a profile's config bundle.
type Opener func(kind protocols.Kind, raw json.RawMessage) (protocols.FileSystem, error)

// SessionManager scopes every backend operation to its own session.
type SessionManager struct {
	open Opener
}

// NewSessionManager returns a manager that builds sessions with open, or with
// protocols.New when open is nil.
func NewSessionManager(open Opener) *SessionManager {
	if open == nil {
		open = protocols.New
	}
	return &SessionManager{open: open}
}

// WithSession builds a fresh session for profile, connects it, runs fn and
// disconnects, on every exit path including a panic in fn. A connect failure
// is returned as is and fn is not called. Disconnect failures are logged and
// never change the result. Nothing is retried.
func (m *SessionManager) WithSession(ctx context.Context, profile config.Profile, op string, fn func(context.Context, protocols.FileSystem) error) (err error) {
	backend := string(profile.Kind)
	start := time.Now()
	defer func() {
		metrics.RecordOperation(backend, op, time.Since(start), err == nil)
		if err != nil {
			logging.Warn("operation failed",
				logging.String("backend", backend),
				logging.String("connection", profile.Name),
				logging.String("op", op),
				logging.Duration("duration", time.Since(start)),
				logging.Err(err),
			)
			return
		}
		logging.Debug("operation completed",
			logging.String("backend", backend),
			logging.String("connection", profile.Name),
			logging.String("op", op),
			logging.Duration("duration", time.Since(start)),
		)
	}()

	fsys, err := m.open(profile.Kind, profile.Config)
	if err != nil {
		return fmt.Errorf("%s: %w", profile.Name, err)
	}

	if err := fsys.Connect(ctx); err != nil {
		metrics.RecordSession(backend, false)
		return err
	}
	metrics.RecordSession(backend, true)

	defer func() {
		if cerr := fsys.Disconnect(); cerr != nil {
			metrics.RecordCleanupFailure(backend)
			logging.Warn("disconnect failed",
				logging.String("backend", backend),
				logging.String("connection", profile.Name),
				logging.Err(cerr),
			)
		}
	}()

	return fn(ctx, fsys)
}
