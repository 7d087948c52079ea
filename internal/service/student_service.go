package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/unireg/unireg-api/internal/models"
	appErrors "github.com/unireg/unireg-api/pkg/errors"
)

type studentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
	FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error)
	UpdateProfile(ctx context.Context, student *models.Student, audit *models.AuditLog) error
	AssignCourse(ctx context.Context, studentID, courseID string, audit *models.AuditLog) (bool, error)
	SetActive(ctx context.Context, studentID string, active bool, audit *models.AuditLog) error
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
}

type studentCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	EnsureGroup(ctx context.Context, courseID, courseCode string) (string, error)
	AddGroupMember(ctx context.Context, groupID, userID string) error
}

// UpdateProfileRequest carries the student-editable profile fields.
type UpdateProfileRequest struct {
	DateOfBirth        *time.Time `json:"date_of_birth"`
	Gender             *string    `json:"gender" validate:"omitempty,oneof=M F O"`
	Address            string     `json:"address" validate:"max=200"`
	City               string     `json:"city" validate:"max=80"`
	State              *string    `json:"state" validate:"omitempty,max=80"`
	PostalCode         *string    `json:"postal_code" validate:"omitempty,max=16"`
	Country            string     `json:"country" validate:"max=80"`
	Phone              *string    `json:"phone" validate:"omitempty,max=32"`
	EmergencyContact   *string    `json:"emergency_contact" validate:"omitempty,max=120"`
	EmergencyPhone     *string    `json:"emergency_phone" validate:"omitempty,max=32"`
	Bio                *string    `json:"bio" validate:"omitempty,max=2000"`
	ExpectedGraduation *time.Time `json:"expected_graduation"`
}

// StudentService handles student profiles and the one-way course enrollment.
type StudentService struct {
	repo      studentRepository
	courses   studentCourseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService creates a new student service.
func NewStudentService(repo studentRepository, courses studentCourseRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// Profile returns the full profile for the authenticated user.
func (s *StudentService) Profile(ctx context.Context, userID string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	detail, err := s.repo.FindDetailByID(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	return detail, nil
}

// UpdateProfile updates the student-editable fields of the caller's profile.
func (s *StudentService) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest, meta RequestMeta) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	student, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	student.DateOfBirth = req.DateOfBirth
	student.Gender = req.Gender
	student.Address = strings.TrimSpace(req.Address)
	student.City = strings.TrimSpace(req.City)
	student.State = req.State
	student.PostalCode = req.PostalCode
	student.Country = strings.TrimSpace(req.Country)
	student.Phone = req.Phone
	student.EmergencyContact = req.EmergencyContact
	student.EmergencyPhone = req.EmergencyPhone
	student.Bio = req.Bio
	student.ExpectedGraduation = req.ExpectedGraduation

	audit := meta.auditEntry(models.AuditActionUpdate, models.AuditEntityStudent, student.StudentNumber)
	if err := s.repo.UpdateProfile(ctx, student, audit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}

	detail, err := s.repo.FindDetailByID(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	return detail, nil
}

// EnrollCourse ties the authenticated student to a course. The assignment is
// one-way: once a course is set it never changes, and repeat attempts fail
// regardless of the target course.
func (s *StudentService) EnrollCourse(ctx context.Context, userID, courseID string, meta RequestMeta) (*models.StudentDetail, error) {
	student, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.CourseID != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course already selected")
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course not open for enrollment")
	}

	assigned, err := s.assignAndJoinGroup(ctx, student, course, meta)
	if err != nil {
		return nil, err
	}
	if !assigned {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course already selected")
	}

	detail, err := s.repo.FindDetailByID(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	return detail, nil
}

// AssignCourse lets an administrator set the course of an unassigned student.
// The same one-way rule applies.
func (s *StudentService) AssignCourse(ctx context.Context, studentID, courseID string, meta RequestMeta) error {
	student, err := s.repo.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.CourseID != nil {
		return appErrors.Clone(appErrors.ErrConflict, "student already has a course")
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	assigned, err := s.assignAndJoinGroup(ctx, student, course, meta)
	if err != nil {
		return err
	}
	if !assigned {
		return appErrors.Clone(appErrors.ErrConflict, "student already has a course")
	}
	return nil
}

func (s *StudentService) assignAndJoinGroup(ctx context.Context, student *models.Student, course *models.Course, meta RequestMeta) (bool, error) {
	audit := meta.auditEntry(models.AuditActionUpdate, models.AuditEntityStudent, course.Code)
	assigned, err := s.repo.AssignCourse(ctx, student.ID, course.ID, audit)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign course")
	}
	if !assigned {
		return false, nil
	}

	// Group membership is derived state; a failure here never unwinds the
	// committed assignment.
	groupID, err := s.courses.EnsureGroup(ctx, course.ID, course.Code)
	if err != nil {
		s.logger.Warn("course group lookup failed",
			zap.String("course_id", course.ID), zap.Error(err))
		return true, nil
	}
	if err := s.courses.AddGroupMember(ctx, groupID, student.UserID); err != nil {
		s.logger.Warn("course group membership failed",
			zap.String("group_id", groupID), zap.String("user_id", student.UserID), zap.Error(err))
	}
	return true, nil
}

// SetActive toggles a student's active flag.
func (s *StudentService) SetActive(ctx context.Context, studentID string, active bool, meta RequestMeta) error {
	student, err := s.repo.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	audit := meta.auditEntry(models.AuditActionUpdate, models.AuditEntityStudent, student.StudentNumber)
	if err := s.repo.SetActive(ctx, studentID, active, audit); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student status")
	}
	return nil
}

// List returns paginated students for administrative views.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
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
	return students, pagination, nil
}

// GetDetail returns a single student with user and course context.
func (s *StudentService) GetDetail(ctx context.Context, studentID string) (*models.StudentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return detail, nil
}
