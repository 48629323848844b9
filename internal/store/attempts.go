package store

import (
	"context"
	"fmt"
	"time"
)

// timeLayout has fixed-width fractional seconds so stored timestamps sort
// lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Attempt is one logged dispatch outcome.
type Attempt struct {
	ID           string  `json:"id"`
	RequestID    string  `json:"requestId"`
	Timestamp    string  `json:"timestamp"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model,omitempty"`
	Outcome      string  `json:"outcome"`
	Tokens       int64   `json:"tokens"`
	CostUSD      float64 `json:"cost"`
	LatencyMs    int64   `json:"latencyMs"`
	ErrorMessage string  `json:"error,omitempty"`
}

// ProviderTotals aggregates logged attempts for one provider.
type ProviderTotals struct {
	Provider  string  `json:"provider"`
	Attempts  int64   `json:"attempts"`
	Successes int64   `json:"successes"`
	Failures  int64   `json:"failures"`
	Tokens    int64   `json:"tokens"`
	CostUSD   float64 `json:"cost"`
}

// InsertAttempt stores an attempt. The caller supplies a unique ID.
func (s *Store) InsertAttempt(ctx context.Context, a *Attempt) error {
	_, err := s.writer.ExecContext(ctx, `
		INSERT INTO attempts (
			id, request_id, timestamp, provider, model, outcome,
			tokens, cost_usd, latency_ms, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RequestID, a.Timestamp, a.Provider, a.Model, a.Outcome,
		a.Tokens, a.CostUSD, a.LatencyMs, a.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("store: insert attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the newest attempts first, optionally filtered by
// provider.
func (s *Store) ListAttempts(ctx context.Context, provider string, limit, offset int) ([]*Attempt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.reader.QueryContext(ctx, `
		SELECT id, request_id, timestamp, provider, model, outcome,
		       tokens, cost_usd, latency_ms, error_message
		FROM attempts
		WHERE (? = '' OR provider = ?)
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ? OFFSET ?`, provider, provider, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list attempts: %w", err)
	}
	defer rows.Close()

	var results []*Attempt
	for rows.Next() {
		a := &Attempt{}
		if err := rows.Scan(
			&a.ID, &a.RequestID, &a.Timestamp, &a.Provider, &a.Model, &a.Outcome,
			&a.Tokens, &a.CostUSD, &a.LatencyMs, &a.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("store: scan attempt row: %w", err)
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list attempts iteration: %w", err)
	}
	return results, nil
}

// ProviderTotals aggregates attempts at or after since, per provider,
// ordered by provider id. Cache hits and rate-limit skips are excluded.
func (s *Store) ProviderTotals(ctx context.Context, since time.Time) ([]ProviderTotals, error) {
	rows, err := s.reader.QueryContext(ctx, `
		SELECT provider,
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN outcome = 'failure' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(tokens), 0),
		       COALESCE(SUM(cost_usd), 0.0)
		FROM attempts
		WHERE timestamp >= ? AND outcome IN ('success', 'failure')
		GROUP BY provider
		ORDER BY provider`, formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("store: provider totals: %w", err)
	}
	defer rows.Close()

	var out []ProviderTotals
	for rows.Next() {
		var t ProviderTotals
		if err := rows.Scan(&t.Provider, &t.Attempts, &t.Successes, &t.Failures, &t.Tokens, &t.CostUSD); err != nil {
			return nil, fmt.Errorf("store: scan provider totals: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: provider totals iteration: %w", err)
	}
	return out, nil
}
