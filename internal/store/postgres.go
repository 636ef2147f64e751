package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
)

// PostgresStore persists content items in Postgres.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize content schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	slog.Info("Initializing content schema...")

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS content_items (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			author_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			resolved BOOLEAN NOT NULL DEFAULT FALSE,
			volunteers TEXT[] NOT NULL DEFAULT '{}',
			summary TEXT NOT NULL DEFAULT '',
			summary_version BIGINT NOT NULL DEFAULT 0,
			version BIGINT NOT NULL DEFAULT 1,
			deleted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := s.db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create content_items table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_content_items_kind ON content_items(kind);",
		"CREATE INDEX IF NOT EXISTS idx_content_items_deleted ON content_items(deleted);",
		"CREATE INDEX IF NOT EXISTS idx_content_items_updated ON content_items(updated_at);",
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func (s *PostgresStore) Create(ctx context.Context, item *ContentItem) error {
	query := `
		INSERT INTO content_items (
			id, kind, author_id, title, content, category, location,
			resolved, volunteers, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
		RETURNING version, created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		item.ID,
		item.Kind,
		item.AuthorID,
		item.Title,
		item.Text,
		item.Category,
		item.Location,
		item.Resolved,
		pq.Array(item.Volunteers),
	).Scan(&item.Version, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create content item: %w", err)
	}

	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*ContentItem, error) {
	query := `
		SELECT id, kind, author_id, title, content, category, location,
			   resolved, volunteers, summary, summary_version, version,
			   deleted, created_at, updated_at
		FROM content_items
		WHERE id = $1
	`

	item := &ContentItem{}
	var volunteers pq.StringArray
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&item.ID,
		&item.Kind,
		&item.AuthorID,
		&item.Title,
		&item.Text,
		&item.Category,
		&item.Location,
		&item.Resolved,
		&volunteers,
		&item.Summary,
		&item.SummaryVersion,
		&item.Version,
		&item.Deleted,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content item: %w", err)
	}

	item.Volunteers = []string(volunteers)
	return item, nil
}

func (s *PostgresStore) Update(ctx context.Context, item *ContentItem) error {
	query := `
		UPDATE content_items
		SET title = $2, content = $3, category = $4, location = $5,
			resolved = $6, volunteers = $7,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND NOT deleted
		RETURNING version
	`

	err := s.db.QueryRowContext(ctx, query,
		item.ID,
		item.Title,
		item.Text,
		item.Category,
		item.Location,
		item.Resolved,
		pq.Array(item.Volunteers),
	).Scan(&item.Version)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update content item: %w", err)
	}

	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE content_items SET deleted = TRUE, updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete content item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete content item: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *PostgresStore) SetSummary(ctx context.Context, id, summary string, version int64) error {
	// Guarded on version: a later edit wins over an older summary.
	query := `
		UPDATE content_items
		SET summary = $2, summary_version = $3, updated_at = NOW()
		WHERE id = $1 AND version = $3
	`

	if _, err := s.db.ExecContext(ctx, query, id, summary, version); err != nil {
		return fmt.Errorf("failed to set summary: %w", err)
	}

	return nil
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*ContentItem, error) {
	query := `
		SELECT id, kind, author_id, title, content, category, location,
			   resolved, volunteers, summary, summary_version, version,
			   deleted, created_at, updated_at
		FROM content_items
		WHERE NOT deleted
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list content items: %w", err)
	}
	defer rows.Close()

	var items []*ContentItem
	for rows.Next() {
		item := &ContentItem{}
		var volunteers pq.StringArray

		err := rows.Scan(
			&item.ID,
			&item.Kind,
			&item.AuthorID,
			&item.Title,
			&item.Text,
			&item.Category,
			&item.Location,
			&item.Resolved,
			&volunteers,
			&item.Summary,
			&item.SummaryVersion,
			&item.Version,
			&item.Deleted,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content item: %w", err)
		}

		item.Volunteers = []string(volunteers)
		items = append(items, item)
	}

	return items, rows.Err()
}

func (s *PostgresStore) PurgeDeleted(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM content_items WHERE deleted")
	if err != nil {
		return 0, fmt.Errorf("failed to purge deleted content items: %w", err)
	}
	return result.RowsAffected()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
