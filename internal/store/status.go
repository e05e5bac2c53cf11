package store

import (
	"context"
	"database/sql"
	"fmt"
)

// StatusCounts summarizes the correlation store.
type StatusCounts struct {
	Sessions         int `json:"sessions"`
	Traces           int `json:"traces"`
	OpenTraces       int `json:"open_traces"`
	EndedTraces      int `json:"ended_traces"`
	ScoredTraces     int `json:"scored_traces"`
	PendingToolCalls int `json:"pending_tool_calls"`
	FilesTouched     int `json:"files_touched"`
}

// GetStatusCounts retrieves all status counts in a single query with retry.
func GetStatusCounts(ctx context.Context, db *sql.DB) (*StatusCounts, error) {
	counts := &StatusCounts{}
	err := RetryWithBackoff(ctx, func() error {
		return db.QueryRowContext(ctx, `
			SELECT
				(SELECT COUNT(*) FROM sessions),
				(SELECT COUNT(*) FROM traces),
				(SELECT COUNT(*) FROM traces WHERE ended_at IS NULL),
				(SELECT COUNT(*) FROM traces WHERE ended_at IS NOT NULL),
				(SELECT COUNT(*) FROM traces WHERE score IS NOT NULL),
				(SELECT COUNT(*) FROM tool_calls WHERE finished_at IS NULL),
				(SELECT COUNT(*) FROM trace_files)
		`).Scan(
			&counts.Sessions,
			&counts.Traces,
			&counts.OpenTraces,
			&counts.EndedTraces,
			&counts.ScoredTraces,
			&counts.PendingToolCalls,
			&counts.FilesTouched,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get status counts: %w", err)
	}
	return counts, nil
}
