package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unireg/unireg-api/internal/models"
)

// PageContentRepository handles persistence of editable site pages.
type PageContentRepository struct {
	db *sqlx.DB
}

// NewPageContentRepository constructs the repository.
func NewPageContentRepository(db *sqlx.DB) *PageContentRepository {
	return &PageContentRepository{db: db}
}

const pageColumns = `id, page_key, title, body, updated_by, created_at, updated_at`

// FindByKey returns the content stored for a page key.
func (r *PageContentRepository) FindByKey(ctx context.Context, key models.PageKey) (*models.PageContent, error) {
	query := fmt.Sprintf(`SELECT %s FROM page_contents WHERE page_key = $1`, pageColumns)
	var page models.PageContent
	if err := r.db.GetContext(ctx, &page, query, key); err != nil {
		return nil, err
	}
	return &page, nil
}

// List returns every stored page ordered by key.
func (r *PageContentRepository) List(ctx context.Context) ([]models.PageContent, error) {
	query := fmt.Sprintf(`SELECT %s FROM page_contents ORDER BY page_key`, pageColumns)
	var pages []models.PageContent
	if err := r.db.SelectContext(ctx, &pages, query); err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	return pages, nil
}

// Upsert inserts or replaces the content for a page key. The audit record
// commits in the same transaction as the page write.
func (r *PageContentRepository) Upsert(ctx context.Context, page *models.PageContent, audit *models.AuditLog) error {
	if page.ID == "" {
		page.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if page.CreatedAt.IsZero() {
		page.CreatedAt = now
	}
	page.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert page: %w", err)
	}
	defer tx.Rollback()

	const query = `INSERT INTO page_contents (id, page_key, title, body, updated_by, created_at, updated_at)
        VALUES (:id, :page_key, :title, :body, :updated_by, :created_at, :updated_at)
        ON CONFLICT (page_key) DO UPDATE SET title = EXCLUDED.title, body = EXCLUDED.body,
            updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	if _, err := tx.NamedExecContext(ctx, query, page); err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	if audit != nil {
		audit.EntityID = string(page.PageKey)
		if err := CreateAuditLogTx(ctx, tx, audit); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert page: %w", err)
	}
	return nil
}
