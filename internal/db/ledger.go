package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/seo-autopilot/internal/types"
)

// InsertCostEntry appends a ledger entry unless one already exists for the
// same (job_id, service). Returns true when the entry was inserted.
func (db *DB) InsertCostEntry(ctx context.Context, entry *types.CostLedgerEntry) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO cost_ledger (job_id, day, service, model, units, cost)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (job_id, service) DO NOTHING`,
		entry.JobID, entry.Day, entry.Service, entry.Model, entry.Units, entry.Cost,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert cost entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SumCost totals ledger entries whose day falls in [from, to).
func (db *DB) SumCost(ctx context.Context, from, to time.Time) (float64, error) {
	var total float64
	err := db.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost), 0)::float8 FROM cost_ledger WHERE day >= $1 AND day < $2`,
		dateOnly(from), dateOnly(to),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum cost: %w", err)
	}
	return total, nil
}

// SumCostByService totals ledger entries per service for days in [from, to).
func (db *DB) SumCostByService(ctx context.Context, from, to time.Time) (map[types.Service]float64, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT service, COALESCE(SUM(cost), 0)::float8
		 FROM cost_ledger
		 WHERE day >= $1 AND day < $2
		 GROUP BY service`,
		dateOnly(from), dateOnly(to),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sum cost by service: %w", err)
	}
	defer rows.Close()

	totals := make(map[types.Service]float64)
	for rows.Next() {
		var service types.Service
		var total float64
		if err := rows.Scan(&service, &total); err != nil {
			return nil, fmt.Errorf("failed to scan cost total: %w", err)
		}
		totals[service] = total
	}
	return totals, rows.Err()
}

// MarkNotified records that a once-per-day notification was sent.
// Returns false if it had already been recorded for that day.
func (db *DB) MarkNotified(ctx context.Context, kind string, day time.Time) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO notifications_sent (kind, day) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		kind, dateOnly(day),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// dateOnly keeps the calendar date of t in its own location, as UTC midnight,
// so the DATE encoding does not shift across zones.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
