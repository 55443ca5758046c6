package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Recorder writes authentication and access events to the append-only trail.
// Upper components consume it; nothing consumes them back, so the package has
// no dependencies on the rest of the engine.
type Recorder struct {
	repo   Repository
	logger zerolog.Logger
}

func NewRecorder(repo Repository, logger zerolog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Record persists the event, stamping recorded-at when unset.
func (r *Recorder) Record(ctx context.Context, e *Event) error {
	if e.Action == "" {
		return fmt.Errorf("audit: action is required")
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	if err := r.repo.Insert(ctx, e); err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// RecordBestEffort persists the event and logs instead of failing when the
// trail is unavailable. Login-path events use this so an audit outage cannot
// lock every user out; break-glass events must NOT use it.
func (r *Recorder) RecordBestEffort(ctx context.Context, e *Event) {
	if err := r.Record(ctx, e); err != nil {
		r.logger.Error().Err(err).
			Str("action", string(e.Action)).
			Str("tenant_id", e.TenantID).
			Msg("audit write failed")
	}
}

func (r *Recorder) Search(ctx context.Context, tenantID string, params SearchParams, limit, offset int) ([]*Event, int, error) {
	return r.repo.Search(ctx, tenantID, params, limit, offset)
}
