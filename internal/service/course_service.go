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

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByCode(ctx context.Context, code string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course, audit *models.AuditLog) error
	Update(ctx context.Context, course *models.Course, audit *models.AuditLog) error
	Delete(ctx context.Context, id string, audit *models.AuditLog) error
	CountStudents(ctx context.Context, courseID string) (int, error)
	EnsureGroup(ctx context.Context, courseID, courseCode string) (string, error)
}

// CreateCourseRequest captures fields for creating a course.
type CreateCourseRequest struct {
	Code          string `json:"code" validate:"required,alphanum,max=16"`
	Name          string `json:"name" validate:"required,max=120"`
	Category      string `json:"category" validate:"required"`
	Description   string `json:"description"`
	DurationYears int    `json:"duration_years" validate:"required,min=1,max=8"`
	TotalCredits  int    `json:"total_credits" validate:"required,min=1"`
	Active        bool   `json:"active"`
}

// UpdateCourseRequest modifies course fields. Code is immutable.
type UpdateCourseRequest struct {
	Name          string `json:"name" validate:"required,max=120"`
	Category      string `json:"category" validate:"required"`
	Description   string `json:"description"`
	DurationYears int    `json:"duration_years" validate:"required,min=1,max=8"`
	TotalCredits  int    `json:"total_credits" validate:"required,min=1"`
	Active        bool   `json:"active"`
}

// CourseService handles course catalog workflows.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService creates a new course service.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// List returns paginated courses with enrollment counts.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
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
	return courses, pagination, nil
}

// Get returns a course by identifier.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create adds a new course, ensures its role group, and records the action.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest, meta RequestMeta) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	category := models.CourseCategory(strings.ToUpper(strings.TrimSpace(req.Category)))
	if !isValidCourseCategory(category) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown course category")
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))

	if _, err := s.repo.FindByCode(ctx, req.Code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}

	course := &models.Course{
		Code:          req.Code,
		Name:          strings.TrimSpace(req.Name),
		Category:      category,
		Description:   strings.TrimSpace(req.Description),
		DurationYears: req.DurationYears,
		TotalCredits:  req.TotalCredits,
		Active:        req.Active,
	}
	audit := meta.auditEntry(models.AuditActionCreate, models.AuditEntityCourse, course.Code)
	if err := s.repo.Create(ctx, course, audit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	if _, err := s.repo.EnsureGroup(ctx, course.ID, course.Code); err != nil {
		s.logger.Warn("course group creation failed",
			zap.String("course_id", course.ID), zap.Error(err))
	}

	return course, nil
}

// Update modifies an existing course. The code stays as created.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest, meta RequestMeta) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	category := models.CourseCategory(strings.ToUpper(strings.TrimSpace(req.Category)))
	if !isValidCourseCategory(category) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown course category")
	}

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	course.Name = strings.TrimSpace(req.Name)
	course.Category = category
	course.Description = strings.TrimSpace(req.Description)
	course.DurationYears = req.DurationYears
	course.TotalCredits = req.TotalCredits
	course.Active = req.Active

	audit := meta.auditEntry(models.AuditActionUpdate, models.AuditEntityCourse, course.Code)
	if err := s.repo.Update(ctx, course, audit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	return course, nil
}

// Delete removes a course when no students are enrolled in it.
func (s *CourseService) Delete(ctx context.Context, id string, meta RequestMeta) error {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	count, err := s.repo.CountStudents(ctx, course.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course enrollment")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "course has enrolled students")
	}

	audit := meta.auditEntry(models.AuditActionDelete, models.AuditEntityCourse, course.Code)
	if err := s.repo.Delete(ctx, id, audit); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}

	return nil
}

func isValidCourseCategory(c models.CourseCategory) bool {
	switch c {
	case models.CourseCategoryComputerScience, models.CourseCategoryMathematics,
		models.CourseCategoryEngineering, models.CourseCategoryBusiness,
		models.CourseCategoryArts, models.CourseCategoryMedicine,
		models.CourseCategoryLaw, models.CourseCategoryEducation,
		models.CourseCategoryScience, models.CourseCategoryHumanities:
		return true
	default:
		return false
	}
}
