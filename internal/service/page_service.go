package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/unireg/unireg-api/internal/models"
	appErrors "github.com/unireg/unireg-api/pkg/errors"
)

type pageContentRepository interface {
	FindByKey(ctx context.Context, key models.PageKey) (*models.PageContent, error)
	List(ctx context.Context) ([]models.PageContent, error)
	Upsert(ctx context.Context, page *models.PageContent, audit *models.AuditLog) error
}

// UpdatePageRequest carries new content for a managed page.
type UpdatePageRequest struct {
	Title string `json:"title" validate:"required,max=160"`
	Body  string `json:"body" validate:"required"`
}

// PageService manages the editable static pages.
type PageService struct {
	repo      pageContentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPageService creates a new page service.
func NewPageService(repo pageContentRepository, validate *validator.Validate, logger *zap.Logger) *PageService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageService{repo: repo, validator: validate, logger: logger}
}

// Get returns the content of a managed page. Pages that have never been
// edited fall back to an empty body under their default title.
func (s *PageService) Get(ctx context.Context, key models.PageKey) (*models.PageContent, error) {
	if !key.Valid() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "page not found")
	}
	page, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return &models.PageContent{PageKey: key, Title: key.Label()}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load page")
	}
	return page, nil
}

// List returns every stored page.
func (s *PageService) List(ctx context.Context) ([]models.PageContent, error) {
	pages, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pages")
	}
	return pages, nil
}

// Update replaces the content of a managed page.
func (s *PageService) Update(ctx context.Context, key models.PageKey, req UpdatePageRequest, meta RequestMeta) (*models.PageContent, error) {
	if !key.Valid() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "page not found")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid page payload")
	}

	page := &models.PageContent{
		PageKey: key,
		Title:   strings.TrimSpace(req.Title),
		Body:    req.Body,
	}
	if meta.ActorID != "" {
		actor := meta.ActorID
		page.UpdatedBy = &actor
	}
	if existing, err := s.repo.FindByKey(ctx, key); err == nil {
		page.ID = existing.ID
		page.CreatedAt = existing.CreatedAt
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load page")
	}

	audit := meta.auditEntry(models.AuditActionUpdate, models.AuditEntityPage, string(key))
	if err := s.repo.Upsert(ctx, page, audit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save page")
	}

	return page, nil
}
