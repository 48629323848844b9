package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/allaspectsdev/llmgate/internal/router"
)

// AttemptAdapter adapts Store to router.AttemptRecorder.
type AttemptAdapter struct {
	store *Store
}

var _ router.AttemptRecorder = (*AttemptAdapter)(nil)

// NewAttemptAdapter creates a new AttemptAdapter wrapping the given Store.
func NewAttemptAdapter(s *Store) *AttemptAdapter {
	return &AttemptAdapter{store: s}
}

// RecordAttempt converts a router.Attempt into a row in the attempts table.
func (a *AttemptAdapter) RecordAttempt(ctx context.Context, at router.Attempt) error {
	return a.store.InsertAttempt(ctx, &Attempt{
		ID:           uuid.NewString(),
		RequestID:    at.RequestID,
		Timestamp:    formatTime(at.Timestamp),
		Provider:     at.Provider,
		Model:        at.Model,
		Outcome:      string(at.Outcome),
		Tokens:       int64(at.Tokens),
		CostUSD:      at.Cost,
		LatencyMs:    at.Latency.Milliseconds(),
		ErrorMessage: at.Error,
	})
}
