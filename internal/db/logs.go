package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/seo-autopilot/internal/types"
)

const logColumns = `id, job_id, batch_id, schedule_id, origin, post_reference, keywords_used,
	generation_time, api_cost::float8, status, error_message, created_at`

// RecordJobOutcome appends a generation log entry and, when keywordID is set,
// bumps the keyword's use_count/last_used in the same transaction.
// Either both writes land or neither does.
func (db *DB) RecordJobOutcome(ctx context.Context, entry *types.GenerationLogEntry, keywordID *int64, usedAt time.Time) (int64, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	keywords := entry.KeywordsUsed
	if keywords == nil {
		keywords = []string{}
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO generation_logs (job_id, batch_id, schedule_id, origin, post_reference, keywords_used,
		                              generation_time, api_cost, status, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at`,
		entry.JobID, entry.BatchID, entry.ScheduleID, entry.Origin, entry.PostReference, keywords,
		entry.GenerationTime, entry.APICost, entry.Status, entry.ErrorMessage,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert generation log: %w", err)
	}

	if keywordID != nil {
		tag, err := tx.Exec(ctx,
			`UPDATE keywords SET use_count = use_count + 1, last_used = $1, updated_at = NOW() WHERE id = $2`,
			usedAt, *keywordID,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to update keyword usage: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return 0, fmt.Errorf("keyword not found: %d", *keywordID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit job outcome: %w", err)
	}
	return entry.ID, nil
}

// SetLogPostReference backfills post_reference on an entry that has none.
// Returns false if the entry does not exist or already has a reference.
func (db *DB) SetLogPostReference(ctx context.Context, id int64, ref string) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE generation_logs SET post_reference = $1 WHERE id = $2 AND post_reference IS NULL`,
		ref, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to set post reference: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListLogs returns log entries newest first.
func (db *DB) ListLogs(ctx context.Context, filter types.LogFilter) ([]types.GenerationLogEntry, error) {
	query := `SELECT ` + logColumns + ` FROM generation_logs WHERE TRUE`
	args := []any{}
	argPos := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}
	if filter.ScheduleID != nil {
		query += fmt.Sprintf(" AND schedule_id = $%d", argPos)
		args = append(args, *filter.ScheduleID)
		argPos++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", argPos)
	args = append(args, limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	defer rows.Close()

	var entries []types.GenerationLogEntry
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanLog(row pgx.Row) (*types.GenerationLogEntry, error) {
	var e types.GenerationLogEntry
	err := row.Scan(&e.ID, &e.JobID, &e.BatchID, &e.ScheduleID, &e.Origin, &e.PostReference,
		&e.KeywordsUsed, &e.GenerationTime, &e.APICost, &e.Status, &e.ErrorMessage, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Stats aggregates log entries created in [from, to).
func (db *DB) Stats(ctx context.Context, from, to time.Time) (*types.GenerationStats, error) {
	var stats types.GenerationStats
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE status = 'success'),
		        COUNT(*) FILTER (WHERE status = 'failed'),
		        COALESCE(SUM(api_cost), 0)::float8,
		        COALESCE(AVG(generation_time) FILTER (WHERE status = 'success'), 0)::float8
		 FROM generation_logs
		 WHERE created_at >= $1 AND created_at < $2`,
		from, to,
	).Scan(&stats.Succeeded, &stats.Failed, &stats.TotalCost, &stats.AvgGenerationTime)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	return &stats, nil
}
