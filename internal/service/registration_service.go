package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/unireg/unireg-api/internal/dto"
	"github.com/unireg/unireg-api/internal/models"
	"github.com/unireg/unireg-api/internal/repository"
	appErrors "github.com/unireg/unireg-api/pkg/errors"
)

type registrationStore interface {
	FindByStudentAndModule(ctx context.Context, studentID, moduleID string) (*models.Registration, error)
	CountByModule(ctx context.Context, moduleID string) (int, error)
	CreateApproved(ctx context.Context, studentID, moduleID string, capacity int, audit *models.AuditLog) (*models.Registration, bool, error)
	UpdateStatus(ctx context.Context, id string, status models.RegistrationStatus, audit *models.AuditLog) error
	Delete(ctx context.Context, id string, audit *models.AuditLog) error
	ListByStudent(ctx context.Context, studentID string) ([]models.RegistrationDetail, error)
}

type moduleReader interface {
	FindByCode(ctx context.Context, code string) (*models.Module, error)
	LinkedCourseIDs(ctx context.Context, moduleID string) ([]string, error)
	ListEligible(ctx context.Context, studentID, courseID string) ([]models.ModuleDetail, error)
}

type studentReader interface {
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type courseGroups interface {
	EnsureGroup(ctx context.Context, courseID, courseCode string) (string, error)
	IsGroupMember(ctx context.Context, groupID, userID string) (bool, error)
	AddGroupMember(ctx context.Context, groupID, userID string) error
}

// RequestMeta carries the actor identity and request origin recorded in the
// audit trail.
type RequestMeta struct {
	ActorID   string
	IPAddress string
	UserAgent string
}

func (m RequestMeta) auditEntry(action models.AuditAction, entity, label string) *models.AuditLog {
	entry := &models.AuditLog{
		Action:      action,
		Entity:      entity,
		EntityLabel: label,
		IPAddress:   m.IPAddress,
		UserAgent:   m.UserAgent,
	}
	if m.ActorID != "" {
		actor := m.ActorID
		entry.ActorID = &actor
	}
	return entry
}

// RegistrationService is the registration engine. It decides and executes
// the outcome of a student's request to join or leave a module, enforcing
// eligibility, capacity and idempotence, and recording every change in the
// audit trail.
//
// Every expected condition is reported as an outcome rather than an error,
// so callers render a reason without inspecting error chains.
type RegistrationService struct {
	registrations registrationStore
	modules       moduleReader
	students      studentReader
	courses       courseReader
	groups        courseGroups
	logger        *zap.Logger
}

// NewRegistrationService constructs RegistrationService.
func NewRegistrationService(registrations registrationStore, modules moduleReader, students studentReader, courses courseReader, groups courseGroups, logger *zap.Logger) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		registrations: registrations,
		modules:       modules,
		students:      students,
		courses:       courses,
		groups:        groups,
		logger:        logger,
	}
}

const (
	redirectProfile = "/profile"
	redirectModules = "/modules"
)

// Register handles "user U requests registration into module code M".
//
// Decision order: module existence, course membership, prior registration,
// capacity, eligibility. A prior non-approved registration is transitioned
// back to approved without re-checking capacity or eligibility, so a student
// can always retry out of a rejected, dropped or waitlisted state.
func (s *RegistrationService) Register(ctx context.Context, userID, moduleCode string, meta RequestMeta) *dto.RegistrationOutcome {
	module, err := s.modules.FindByCode(ctx, moduleCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dto.NewOutcome(dto.OutcomeNotFound, "Module not found.", redirectModules)
		}
		return s.internalOutcome("load module", err, zap.String("module_code", moduleCode))
	}

	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dto.NewOutcome(dto.OutcomeNotFound, "Student profile not found.", redirectModules)
		}
		return s.internalOutcome("load student", err, zap.String("user_id", userID))
	}
	if student.CourseID == nil {
		return dto.NewOutcome(dto.OutcomeIneligible, "You must enroll in a course before registering for modules.", redirectModules)
	}

	existing, err := s.registrations.FindByStudentAndModule(ctx, student.ID, module.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return s.internalOutcome("load registration", err, zap.String("module_code", moduleCode))
	}
	if existing != nil {
		return s.convergeExisting(ctx, existing, module, student, userID, meta)
	}

	// Occupancy counts every row whatever its status, and is checked before
	// eligibility: a full module reports full even to an ineligible student.
	// The repository re-checks the count inside the insert transaction.
	taken, err := s.registrations.CountByModule(ctx, module.ID)
	if err != nil {
		return s.internalOutcome("count registrations", err, zap.String("module_code", moduleCode))
	}
	if taken >= module.Capacity {
		return dto.NewOutcome(dto.OutcomeFull, fmt.Sprintf("%s is already full.", module.Name), redirectModules)
	}

	linked, err := s.modules.LinkedCourseIDs(ctx, module.ID)
	if err != nil {
		return s.internalOutcome("load module courses", err, zap.String("module_code", moduleCode))
	}
	if len(linked) > 0 && !containsString(linked, *student.CourseID) {
		courseName := "your course"
		if course, err := s.courses.FindByID(ctx, *student.CourseID); err == nil {
			courseName = course.Name
		}
		return dto.NewOutcome(dto.OutcomeIneligible,
			fmt.Sprintf("%s is not available for students of %s.", module.Name, courseName), redirectModules)
	}

	audit := meta.auditEntry(models.AuditActionCreate, models.AuditEntityRegistration, module.Code)
	reg, alreadyApproved, err := s.registrations.CreateApproved(ctx, student.ID, module.ID, module.Capacity, audit)
	if err != nil {
		if errors.Is(err, repository.ErrModuleFull) {
			return dto.NewOutcome(dto.OutcomeFull, fmt.Sprintf("%s is already full.", module.Name), redirectModules)
		}
		return s.internalOutcome("create registration", err,
			zap.String("module_code", moduleCode), zap.String("student_id", student.ID))
	}
	if alreadyApproved {
		return dto.NewOutcome(dto.OutcomeAlreadyRegistered,
			fmt.Sprintf("You are already registered for %s.", module.Name), redirectProfile)
	}

	s.ensureCourseGroup(ctx, student, userID)
	s.logger.Info("registration approved",
		zap.String("registration_id", reg.ID),
		zap.String("student_id", student.ID),
		zap.String("module_code", module.Code))
	return dto.NewOutcome(dto.OutcomeSuccess,
		fmt.Sprintf("Successfully registered for %s.", module.Name), redirectProfile)
}

// convergeExisting resolves a registration attempt against a row that
// already exists. An approved row is a no-op; anything else is transitioned
// to approved, skipping the capacity and eligibility checks.
func (s *RegistrationService) convergeExisting(ctx context.Context, existing *models.Registration, module *models.Module, student *models.Student, userID string, meta RequestMeta) *dto.RegistrationOutcome {
	if existing.Status == models.RegistrationApproved {
		return dto.NewOutcome(dto.OutcomeAlreadyRegistered,
			fmt.Sprintf("You are already registered for %s.", module.Name), redirectProfile)
	}
	audit := meta.auditEntry(models.AuditActionUpdate, models.AuditEntityRegistration, module.Code)
	if err := s.registrations.UpdateStatus(ctx, existing.ID, models.RegistrationApproved, audit); err != nil {
		return s.internalOutcome("approve registration", err, zap.String("registration_id", existing.ID))
	}
	s.ensureCourseGroup(ctx, student, userID)
	s.logger.Info("registration re-approved",
		zap.String("registration_id", existing.ID),
		zap.String("previous_status", string(existing.Status)),
		zap.String("module_code", module.Code))
	return dto.NewOutcome(dto.OutcomeSuccess,
		fmt.Sprintf("Successfully registered for %s.", module.Name), redirectProfile)
}

// Unregister removes the student's registration for the module, whatever
// its status. The freed slot shows up in the next capacity check.
func (s *RegistrationService) Unregister(ctx context.Context, userID, moduleCode string, meta RequestMeta) *dto.RegistrationOutcome {
	module, err := s.modules.FindByCode(ctx, moduleCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dto.NewOutcome(dto.OutcomeNotFound, "Module not found.", redirectModules)
		}
		return s.internalOutcome("load module", err, zap.String("module_code", moduleCode))
	}
	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dto.NewOutcome(dto.OutcomeNotFound, "Student profile not found.", redirectModules)
		}
		return s.internalOutcome("load student", err, zap.String("user_id", userID))
	}
	existing, err := s.registrations.FindByStudentAndModule(ctx, student.ID, module.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dto.NewOutcome(dto.OutcomeNotFound,
				fmt.Sprintf("You are not registered for %s.", module.Name), redirectProfile)
		}
		return s.internalOutcome("load registration", err, zap.String("module_code", moduleCode))
	}
	audit := meta.auditEntry(models.AuditActionDelete, models.AuditEntityRegistration, module.Code)
	if err := s.registrations.Delete(ctx, existing.ID, audit); err != nil {
		return s.internalOutcome("delete registration", err, zap.String("registration_id", existing.ID))
	}
	s.logger.Info("registration removed",
		zap.String("registration_id", existing.ID),
		zap.String("module_code", module.Code))
	return dto.NewOutcome(dto.OutcomeSuccess,
		fmt.Sprintf("Successfully unregistered from %s.", module.Name), redirectProfile)
}

// ListEligibleModules returns the modules the student may register for:
// available, open to the student's course, and not already held with an
// approved registration. A student without a course sees nothing.
func (s *RegistrationService) ListEligibleModules(ctx context.Context, userID string) ([]models.ModuleDetail, error) {
	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.CourseID == nil {
		return []models.ModuleDetail{}, nil
	}
	modules, err := s.modules.ListEligible(ctx, student.ID, *student.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list eligible modules")
	}
	return modules, nil
}

// MyRegistrations returns the student's registrations, newest first.
func (s *RegistrationService) MyRegistrations(ctx context.Context, userID string) ([]models.RegistrationDetail, error) {
	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	regs, err := s.registrations.ListByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	return regs, nil
}

// ensureCourseGroup keeps the student's membership in their course group
// current. Failures are logged and swallowed: group membership is derived
// state and must not fail a registration that already committed.
func (s *RegistrationService) ensureCourseGroup(ctx context.Context, student *models.Student, userID string) {
	if s.groups == nil || student.CourseID == nil {
		return
	}
	course, err := s.courses.FindByID(ctx, *student.CourseID)
	if err != nil {
		s.logger.Warn("course group sync skipped", zap.String("student_id", student.ID), zap.Error(err))
		return
	}
	groupID, err := s.groups.EnsureGroup(ctx, course.ID, course.Code)
	if err != nil {
		s.logger.Warn("course group ensure failed", zap.String("course_code", course.Code), zap.Error(err))
		return
	}
	if member, err := s.groups.IsGroupMember(ctx, groupID, userID); err == nil && member {
		return
	}
	if err := s.groups.AddGroupMember(ctx, groupID, userID); err != nil {
		s.logger.Warn("course group membership failed", zap.String("course_code", course.Code), zap.Error(err))
	}
}

func (s *RegistrationService) internalOutcome(op string, err error, fields ...zap.Field) *dto.RegistrationOutcome {
	fields = append(fields, zap.Error(err))
	s.logger.Error("registration engine failure: "+op, fields...)
	return dto.NewOutcome(dto.OutcomeInternal,
		"Registration could not be completed. Please try again later.", redirectModules)
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
