package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/seo-autopilot/internal/types"
)

const scheduleColumns = `id, name, keyword_type, frequency, custom_time, batch_size, status,
	next_run, last_run, content_settings, created_at, updated_at`

func scanSchedule(row pgx.Row) (*types.Schedule, error) {
	var s types.Schedule
	var settingsJSON []byte
	err := row.Scan(&s.ID, &s.Name, &s.KeywordType, &s.Frequency, &s.CustomTime, &s.BatchSize,
		&s.Status, &s.NextRun, &s.LastRun, &settingsJSON, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &s.Settings); err != nil {
			return nil, fmt.Errorf("failed to decode content settings: %w", err)
		}
	}
	return &s, nil
}

// CreateSchedule inserts a schedule and fills in its ID and timestamps.
func (db *DB) CreateSchedule(ctx context.Context, s *types.Schedule) (int64, error) {
	settingsJSON, err := json.Marshal(s.Settings)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal content settings: %w", err)
	}

	err = db.pool.QueryRow(ctx,
		`INSERT INTO schedules (name, keyword_type, frequency, custom_time, batch_size, status, next_run, last_run, content_settings)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		s.Name, s.KeywordType, s.Frequency, s.CustomTime, s.BatchSize, s.Status, s.NextRun, s.LastRun, settingsJSON,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, &types.ValidationError{Field: "name", Message: fmt.Sprintf("schedule %q already exists", s.Name)}
		}
		return 0, fmt.Errorf("failed to create schedule: %w", err)
	}
	return s.ID, nil
}

// UpdateSchedule overwrites the definition and run timestamps of an existing schedule.
func (db *DB) UpdateSchedule(ctx context.Context, s *types.Schedule) error {
	settingsJSON, err := json.Marshal(s.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal content settings: %w", err)
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE schedules
		 SET name = $1, keyword_type = $2, frequency = $3, custom_time = $4, batch_size = $5,
		     status = $6, next_run = $7, last_run = $8, content_settings = $9, updated_at = NOW()
		 WHERE id = $10`,
		s.Name, s.KeywordType, s.Frequency, s.CustomTime, s.BatchSize,
		s.Status, s.NextRun, s.LastRun, settingsJSON, s.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &types.ValidationError{Field: "name", Message: fmt.Sprintf("schedule %q already exists", s.Name)}
		}
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule not found: %d", s.ID)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID
func (db *DB) GetSchedule(ctx context.Context, id int64) (*types.Schedule, error) {
	s, err := scanSchedule(db.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return s, nil
}

// GetScheduleByName retrieves a schedule by its unique name
func (db *DB) GetScheduleByName(ctx context.Context, name string) (*types.Schedule, error) {
	s, err := scanSchedule(db.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get schedule by name: %w", err)
	}
	return s, nil
}

func (db *DB) querySchedules(ctx context.Context, query string, args ...any) ([]types.Schedule, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []types.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

// ListSchedules returns every schedule ordered by name.
func (db *DB) ListSchedules(ctx context.Context) ([]types.Schedule, error) {
	schedules, err := db.querySchedules(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return schedules, nil
}

// DueSchedules returns active schedules with next_run <= now, earliest first.
func (db *DB) DueSchedules(ctx context.Context, now time.Time) ([]types.Schedule, error) {
	schedules, err := db.querySchedules(ctx,
		`SELECT `+scheduleColumns+`
		 FROM schedules
		 WHERE status = 'active' AND next_run IS NOT NULL AND next_run <= $1
		 ORDER BY next_run ASC, id ASC`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due schedules: %w", err)
	}
	return schedules, nil
}

// UpdateScheduleRun stores the run timestamps after a firing.
func (db *DB) UpdateScheduleRun(ctx context.Context, id int64, lastRun, nextRun *time.Time) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE schedules SET last_run = $1, next_run = $2, updated_at = NOW() WHERE id = $3`,
		lastRun, nextRun, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule not found: %d", id)
	}
	return nil
}

// SetScheduleStatus changes the status and next run of a schedule.
func (db *DB) SetScheduleStatus(ctx context.Context, id int64, status types.ScheduleStatus, nextRun *time.Time) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE schedules SET status = $1, next_run = $2, updated_at = NOW() WHERE id = $3`,
		status, nextRun, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set schedule status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule not found: %d", id)
	}
	return nil
}

// PauseAllSchedules pauses every active schedule and returns how many were paused.
func (db *DB) PauseAllSchedules(ctx context.Context) (int, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE schedules SET status = 'paused', next_run = NULL, updated_at = NOW() WHERE status = 'active'`)
	if err != nil {
		return 0, fmt.Errorf("failed to pause schedules: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteSchedule removes a schedule. Returns false if it does not exist.
func (db *DB) DeleteSchedule(ctx context.Context, id int64) (bool, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete schedule: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
