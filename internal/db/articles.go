package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/seo-autopilot/internal/types"
)

// SaveArticle stores a generated article and returns its ID
func (db *DB) SaveArticle(ctx context.Context, a *types.Article) (int64, error) {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	images := a.ImageURLs
	if images == nil {
		images = []string{}
	}

	err := db.pool.QueryRow(ctx,
		`INSERT INTO articles (job_id, keyword_id, keyword, title, html, meta_description, tags,
		                       image_urls, word_count, status, publish_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at`,
		a.JobID, a.KeywordID, a.Keyword, a.Title, a.HTML, a.MetaDescription, tags,
		images, a.WordCount, a.Status, a.PublishAt,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to save article: %w", err)
	}
	return a.ID, nil
}

// GetArticle retrieves an article by ID
func (db *DB) GetArticle(ctx context.Context, id int64) (*types.Article, error) {
	var a types.Article
	err := db.pool.QueryRow(ctx,
		`SELECT id, job_id, keyword_id, keyword, title, html, meta_description, tags,
		        image_urls, word_count, status, publish_at, created_at
		 FROM articles WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.JobID, &a.KeywordID, &a.Keyword, &a.Title, &a.HTML, &a.MetaDescription, &a.Tags,
		&a.ImageURLs, &a.WordCount, &a.Status, &a.PublishAt, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return &a, nil
}
