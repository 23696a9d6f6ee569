package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/seo-autopilot/internal/types"
)

const keywordColumns = `id, text, type, search_volume, competition_level, priority_score,
	last_used, use_count, status, created_at, updated_at`

func scanKeyword(row pgx.Row) (*types.Keyword, error) {
	var kw types.Keyword
	err := row.Scan(&kw.ID, &kw.Text, &kw.Type, &kw.SearchVolume, &kw.CompetitionLevel,
		&kw.PriorityScore, &kw.LastUsed, &kw.UseCount, &kw.Status, &kw.CreatedAt, &kw.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &kw, nil
}

func collectKeywords(rows pgx.Rows) ([]types.Keyword, error) {
	defer rows.Close()

	var keywords []types.Keyword
	for rows.Next() {
		kw, err := scanKeyword(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan keyword: %w", err)
		}
		keywords = append(keywords, *kw)
	}
	return keywords, rows.Err()
}

// UpsertKeyword inserts a keyword or refreshes its metrics when (text, type) exists.
// The status of an existing keyword is left untouched.
func (db *DB) UpsertKeyword(ctx context.Context, kw *types.Keyword) (*types.Keyword, error) {
	kw.Normalize()
	if err := kw.Validate(); err != nil {
		return nil, err
	}

	row := db.pool.QueryRow(ctx,
		`INSERT INTO keywords (text, type, search_volume, competition_level, priority_score, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (text, type) DO UPDATE
		 SET search_volume = EXCLUDED.search_volume,
		     competition_level = EXCLUDED.competition_level,
		     priority_score = EXCLUDED.priority_score,
		     updated_at = NOW()
		 RETURNING `+keywordColumns,
		kw.Text, kw.Type, kw.SearchVolume, kw.CompetitionLevel, kw.PriorityScore, kw.Status,
	)
	saved, err := scanKeyword(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert keyword %q: %w", kw.Text, err)
	}
	return saved, nil
}

// GetKeyword retrieves a keyword by ID
func (db *DB) GetKeyword(ctx context.Context, id int64) (*types.Keyword, error) {
	kw, err := scanKeyword(db.pool.QueryRow(ctx,
		`SELECT `+keywordColumns+` FROM keywords WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get keyword: %w", err)
	}
	return kw, nil
}

// FindKeyword retrieves a keyword by its unique (text, type) pair.
func (db *DB) FindKeyword(ctx context.Context, text string, kind types.KeywordType) (*types.Keyword, error) {
	kw, err := scanKeyword(db.pool.QueryRow(ctx,
		`SELECT `+keywordColumns+` FROM keywords WHERE text = $1 AND type = $2`, text, kind))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find keyword: %w", err)
	}
	return kw, nil
}

// ListEligibleKeywords returns the active keywords of the given types.
func (db *DB) ListEligibleKeywords(ctx context.Context, kinds []types.KeywordType) ([]types.Keyword, error) {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+keywordColumns+`
		 FROM keywords
		 WHERE status = 'active' AND type = ANY($1)
		 ORDER BY id`,
		names,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible keywords: %w", err)
	}
	return collectKeywords(rows)
}

// ListKeywords returns keywords, optionally filtered by type and including archived ones.
func (db *DB) ListKeywords(ctx context.Context, kind types.KeywordType, includeArchived bool) ([]types.Keyword, error) {
	query := `SELECT ` + keywordColumns + ` FROM keywords WHERE TRUE`
	args := []any{}
	argPos := 1

	if kind != "" {
		query += fmt.Sprintf(" AND type = $%d", argPos)
		args = append(args, kind)
		argPos++
	}
	if !includeArchived {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, types.KeywordActive)
	}
	query += " ORDER BY priority_score DESC, id"

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	return collectKeywords(rows)
}

// ArchiveKeyword removes a keyword from the eligible pool. Returns false if it does not exist.
func (db *DB) ArchiveKeyword(ctx context.Context, id int64) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE keywords SET status = 'archived', updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to archive keyword: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
