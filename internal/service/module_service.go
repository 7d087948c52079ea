package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/unireg/unireg-api/internal/models"
	appErrors "github.com/unireg/unireg-api/pkg/errors"
)

type moduleRepository interface {
	List(ctx context.Context, filter models.ModuleFilter) ([]models.ModuleDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Module, error)
	FindByCode(ctx context.Context, code string) (*models.Module, error)
	Create(ctx context.Context, module *models.Module, courseIDs []string, audit *models.AuditLog) error
	Update(ctx context.Context, module *models.Module, courseIDs []string, audit *models.AuditLog) error
	Delete(ctx context.Context, id string, audit *models.AuditLog) error
	SetAvailability(ctx context.Context, ids []string, available bool, auditTemplate models.AuditLog) (int, error)
	LinkedCourseIDs(ctx context.Context, moduleID string) ([]string, error)
	LinkedCourseCodes(ctx context.Context, moduleID string) ([]string, error)
	CountRegistrations(ctx context.Context, moduleID string) (int, error)
	HasRegistration(ctx context.Context, studentID, moduleID string) (bool, error)
	ListSummaries(ctx context.Context) ([]models.ModuleSummary, error)
}

// CreateModuleRequest captures fields for creating a module.
type CreateModuleRequest struct {
	Code        string   `json:"code" validate:"required,max=16"`
	Name        string   `json:"name" validate:"required,max=120"`
	Category    string   `json:"category" validate:"required"`
	Credit      int      `json:"credit" validate:"required,min=1,max=60"`
	Description string   `json:"description"`
	Capacity    int      `json:"capacity" validate:"min=0"`
	Available   bool     `json:"available"`
	CourseIDs   []string `json:"course_ids"`
}

// UpdateModuleRequest modifies module fields. Code is immutable.
type UpdateModuleRequest struct {
	Name        string   `json:"name" validate:"required,max=120"`
	Category    string   `json:"category" validate:"required"`
	Credit      int      `json:"credit" validate:"required,min=1,max=60"`
	Description string   `json:"description"`
	Capacity    int      `json:"capacity" validate:"min=0"`
	Available   bool     `json:"available"`
	CourseIDs   []string `json:"course_ids"`
}

const (
	moduleCatalogCacheKey     = "modules:catalog"
	moduleCatalogCachePattern = "modules:*"
)

// ModuleService handles module catalog workflows. The public machine-readable
// catalog is cached; every mutation invalidates it.
type ModuleService struct {
	repo      moduleRepository
	students  studentReader
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewModuleService creates a new module service.
func NewModuleService(repo moduleRepository, students studentReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *ModuleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &ModuleService{repo: repo, students: students, cache: cache, validator: validate, logger: logger, cacheTTL: cacheTTL}
}

// List returns paginated modules with occupancy details. When viewerUserID
// names an authenticated account with a student profile, each row carries the
// viewer's eligibility and registration flags.
func (s *ModuleService) List(ctx context.Context, filter models.ModuleFilter, viewerUserID string) ([]models.ModuleDetail, *models.Pagination, error) {
	if student := s.viewerStudent(ctx, viewerUserID); student != nil {
		filter.ViewerStudentID = student.ID
		if student.CourseID != nil {
			filter.ViewerCourseID = *student.CourseID
		}
	}

	modules, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list modules")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return modules, pagination, nil
}

// Get returns a module with its occupancy and linked course codes.
func (s *ModuleService) Get(ctx context.Context, id string) (*models.ModuleDetail, error) {
	module, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	return s.describe(ctx, module, nil)
}

// GetByCode returns a module looked up by its public code, annotated for the
// viewer when one is authenticated.
func (s *ModuleService) GetByCode(ctx context.Context, code, viewerUserID string) (*models.ModuleDetail, error) {
	module, err := s.repo.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	return s.describe(ctx, module, s.viewerStudent(ctx, viewerUserID))
}

// viewerStudent resolves the student profile behind an authenticated account.
// Accounts without a profile, and anonymous requests, resolve to nil.
func (s *ModuleService) viewerStudent(ctx context.Context, viewerUserID string) *models.Student {
	if viewerUserID == "" || s.students == nil {
		return nil
	}
	student, err := s.students.FindByUserID(ctx, viewerUserID)
	if err != nil {
		return nil
	}
	return student
}

func (s *ModuleService) describe(ctx context.Context, module *models.Module, viewer *models.Student) (*models.ModuleDetail, error) {
	count, err := s.repo.CountRegistrations(ctx, module.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count registrations")
	}
	codes, err := s.repo.LinkedCourseCodes(ctx, module.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load linked courses")
	}
	free := module.Capacity - count
	if free < 0 {
		free = 0
	}
	detail := &models.ModuleDetail{
		Module:            *module,
		RegisteredCount:   count,
		AvailableSlots:    free,
		LinkedCourseCodes: codes,
	}
	if viewer != nil {
		if err := s.annotateForViewer(ctx, detail, viewer); err != nil {
			return nil, err
		}
	}
	return detail, nil
}

// annotateForViewer fills the viewer's eligibility and registration flags on a
// module detail. A module with no linked courses is open to every course.
func (s *ModuleService) annotateForViewer(ctx context.Context, detail *models.ModuleDetail, viewer *models.Student) error {
	linked, err := s.repo.LinkedCourseIDs(ctx, detail.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load linked courses")
	}
	eligible := len(linked) == 0
	if !eligible && viewer.CourseID != nil {
		for _, id := range linked {
			if id == *viewer.CourseID {
				eligible = true
				break
			}
		}
	}
	registered, err := s.repo.HasRegistration(ctx, viewer.ID, detail.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check registration")
	}
	detail.Eligible = &eligible
	detail.Registered = &registered
	return nil
}

// Create adds a new module with its course links.
func (s *ModuleService) Create(ctx context.Context, req CreateModuleRequest, meta RequestMeta) (*models.Module, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid module payload")
	}
	category := models.ModuleCategory(strings.ToUpper(strings.TrimSpace(req.Category)))
	if !isValidModuleCategory(category) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown module category")
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))

	if _, err := s.repo.FindByCode(ctx, req.Code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "module code already exists")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check module code")
	}

	module := &models.Module{
		Code:         req.Code,
		Name:         strings.TrimSpace(req.Name),
		Category:     category,
		Credit:       req.Credit,
		Description:  strings.TrimSpace(req.Description),
		Availability: req.Available,
		Capacity:     req.Capacity,
	}
	audit := meta.auditEntry(models.AuditActionCreate, models.AuditEntityModule, module.Code)
	if err := s.repo.Create(ctx, module, req.CourseIDs, audit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create module")
	}

	s.invalidateCatalog(ctx)
	return module, nil
}

// Update modifies an existing module and replaces its course links. Shrinking
// capacity below the current registration count is allowed; existing rows are
// never evicted.
func (s *ModuleService) Update(ctx context.Context, id string, req UpdateModuleRequest, meta RequestMeta) (*models.Module, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid module payload")
	}
	category := models.ModuleCategory(strings.ToUpper(strings.TrimSpace(req.Category)))
	if !isValidModuleCategory(category) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown module category")
	}

	module, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}

	module.Name = strings.TrimSpace(req.Name)
	module.Category = category
	module.Credit = req.Credit
	module.Description = strings.TrimSpace(req.Description)
	module.Availability = req.Available
	module.Capacity = req.Capacity

	audit := meta.auditEntry(models.AuditActionUpdate, models.AuditEntityModule, module.Code)
	if err := s.repo.Update(ctx, module, req.CourseIDs, audit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update module")
	}

	s.invalidateCatalog(ctx)
	return module, nil
}

// Delete removes a module when no registrations reference it.
func (s *ModuleService) Delete(ctx context.Context, id string, meta RequestMeta) error {
	module, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}

	count, err := s.repo.CountRegistrations(ctx, module.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count registrations")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "module has registrations")
	}

	audit := meta.auditEntry(models.AuditActionDelete, models.AuditEntityModule, module.Code)
	if err := s.repo.Delete(ctx, id, audit); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete module")
	}

	s.invalidateCatalog(ctx)
	return nil
}

// SetAvailability opens or closes a set of modules in one action and returns
// the number of modules changed. Each changed module gets its own audit
// record, committed with the update.
func (s *ModuleService) SetAvailability(ctx context.Context, ids []string, available bool, meta RequestMeta) (int, error) {
	if len(ids) == 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "no modules selected")
	}
	template := meta.auditEntry(models.AuditActionUpdate, models.AuditEntityModule, fmt.Sprintf("availability=%t", available))
	changed, err := s.repo.SetAvailability(ctx, ids, available, *template)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update module availability")
	}

	s.invalidateCatalog(ctx)
	return changed, nil
}

// Catalog returns the public machine-readable module listing, cached for a
// short window.
func (s *ModuleService) Catalog(ctx context.Context) ([]models.ModuleSummary, error) {
	if s.cache != nil {
		var cached []models.ModuleSummary
		if hit, err := s.cache.Get(ctx, moduleCatalogCacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	summaries, err := s.repo.ListSummaries(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build module catalog")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, moduleCatalogCacheKey, summaries, s.cacheTTL); err != nil {
			s.logger.Warn("module catalog cache write failed", zap.Error(err))
		}
	}
	return summaries, nil
}

func (s *ModuleService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, moduleCatalogCachePattern); err != nil {
		s.logger.Warn("module catalog invalidation failed", zap.Error(err))
	}
}

func isValidModuleCategory(c models.ModuleCategory) bool {
	switch c {
	case models.ModuleCategoryComputerScience, models.ModuleCategoryMathematics,
		models.ModuleCategoryEngineering, models.ModuleCategoryBusiness,
		models.ModuleCategoryArts:
		return true
	default:
		return false
	}
}
