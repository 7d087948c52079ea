package service

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/unireg/unireg-api/internal/models"
	appErrors "github.com/unireg/unireg-api/pkg/errors"
)

type bulkRegistrationStore interface {
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	BulkUpdateStatus(ctx context.Context, ids []string, status models.RegistrationStatus, auditTemplate models.AuditLog) (int, error)
	UpdateGradeNotes(ctx context.Context, id string, grade, notes *string, audit *models.AuditLog) error
}

type importModuleStore interface {
	FindByCode(ctx context.Context, code string) (*models.Module, error)
	Create(ctx context.Context, module *models.Module, courseIDs []string, audit *models.AuditLog) error
}

type importCourseStore interface {
	FindByCode(ctx context.Context, code string) (*models.Course, error)
	FindActiveByCode(ctx context.Context, code string) (*models.Course, error)
}

type importUserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User, audit *models.AuditLog) error
}

type importStudentStore interface {
	Create(ctx context.Context, student *models.Student, audit *models.AuditLog) error
	NextStudentNumber(ctx context.Context) (string, error)
}

type auditBrowser interface {
	List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLogDetail, int, error)
	DistinctEntities(ctx context.Context) ([]string, error)
}

// ImportResult summarises one CSV import run. Row numbers in Errors are
// 1-based and count the header line.
type ImportResult struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

// AdminService carries the administrative bulk surface: registration status
// sweeps, CSV imports, and audit trail browsing.
type AdminService struct {
	registrations bulkRegistrationStore
	modules       importModuleStore
	courses       importCourseStore
	users         importUserStore
	students      importStudentStore
	auditLogs     auditBrowser
	logger        *zap.Logger
}

// NewAdminService constructs the admin service.
func NewAdminService(registrations bulkRegistrationStore, modules importModuleStore, courses importCourseStore,
	users importUserStore, students importStudentStore, auditLogs auditBrowser, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{
		registrations: registrations,
		modules:       modules,
		courses:       courses,
		users:         users,
		students:      students,
		auditLogs:     auditLogs,
		logger:        logger,
	}
}

// BulkUpdateRegistrations transitions the selected registrations to the given
// status. Each changed row receives its own audit entry. Returns the number
// of rows actually changed.
func (s *AdminService) BulkUpdateRegistrations(ctx context.Context, ids []string, status models.RegistrationStatus, meta RequestMeta) (int, error) {
	if len(ids) == 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "no registrations selected")
	}
	if !status.Valid() {
		return 0, appErrors.Clone(appErrors.ErrValidation, "unknown registration status")
	}

	template := meta.auditEntry(models.AuditActionUpdate, models.AuditEntityRegistration, status.Label())
	changed, err := s.registrations.BulkUpdateStatus(ctx, ids, status, *template)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update registrations")
	}
	s.logger.Info("bulk registration update",
		zap.Int("selected", len(ids)),
		zap.Int("changed", changed),
		zap.String("status", string(status)))
	return changed, nil
}

// UpdateGradeRequest carries a grade and optional notes for one registration.
// Either field may be null to clear the stored value.
type UpdateGradeRequest struct {
	Grade *string `json:"grade"`
	Notes *string `json:"notes"`
}

var validGrades = map[string]bool{
	"A": true, "A-": true, "B+": true, "B": true, "B-": true,
	"C+": true, "C": true, "C-": true, "D": true, "F": true,
}

// UpdateRegistrationGrade records a grade and staff notes on a registration.
// Grades follow the letter scale; an absent grade clears the stored one.
func (s *AdminService) UpdateRegistrationGrade(ctx context.Context, id string, req UpdateGradeRequest, meta RequestMeta) (*models.Registration, error) {
	if req.Grade != nil {
		grade := strings.ToUpper(strings.TrimSpace(*req.Grade))
		if !validGrades[grade] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown grade")
		}
		req.Grade = &grade
	}

	reg, err := s.registrations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}

	label := "grade cleared"
	if req.Grade != nil {
		label = "grade " + *req.Grade
	}
	audit := meta.auditEntry(models.AuditActionUpdate, models.AuditEntityRegistration, label)
	if err := s.registrations.UpdateGradeNotes(ctx, id, req.Grade, req.Notes, audit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update registration grade")
	}

	reg.Grade = req.Grade
	reg.Notes = req.Notes
	return reg, nil
}

// moduleCSVHeader is the required header of a module import file. The
// courses column holds semicolon-separated course codes and may be empty.
var moduleCSVHeader = []string{"code", "name", "category", "credit", "description", "capacity", "available", "courses"}

// ImportModulesCSV creates modules from a CSV stream. Rows whose code already
// exists are skipped; malformed rows are reported and do not abort the run.
func (s *AdminService) ImportModulesCSV(ctx context.Context, r io.Reader, meta RequestMeta) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	if err := expectHeader(reader, moduleCSVHeader); err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", line, err))
			continue
		}

		module, courseCodes, rowErr := parseModuleRow(record)
		if rowErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", line, rowErr))
			continue
		}

		if _, err := s.modules.FindByCode(ctx, module.Code); err == nil {
			result.Skipped++
			continue
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check module code")
		}

		courseIDs, err := s.resolveCourseIDs(ctx, courseCodes)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", line, err))
			continue
		}

		audit := meta.auditEntry(models.AuditActionCreate, models.AuditEntityModule, module.Code)
		if err := s.modules.Create(ctx, module, courseIDs, audit); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: create failed", line))
			s.logger.Warn("module import row failed", zap.Int("row", line), zap.Error(err))
			continue
		}
		result.Created++
	}

	s.logger.Info("module csv import finished",
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// studentCSVHeader is the required header of a student import file. The
// course column may be empty; the password column sets the initial password.
var studentCSVHeader = []string{"full_name", "email", "password", "course"}

// ImportStudentsCSV creates user accounts and student profiles from a CSV
// stream. Rows whose email already exists are skipped.
func (s *AdminService) ImportStudentsCSV(ctx context.Context, r io.Reader, meta RequestMeta) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	if err := expectHeader(reader, studentCSVHeader); err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", line, err))
			continue
		}
		if len(record) != len(studentCSVHeader) {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: expected %d columns", line, len(studentCSVHeader)))
			continue
		}

		fullName := strings.TrimSpace(record[0])
		email := strings.ToLower(strings.TrimSpace(record[1]))
		password := record[2]
		courseCode := strings.ToUpper(strings.TrimSpace(record[3]))
		if fullName == "" || email == "" || len(password) < 8 {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: name, email and a password of at least 8 characters are required", line))
			continue
		}

		if _, err := s.users.FindByEmail(ctx, email); err == nil {
			result.Skipped++
			continue
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}

		var courseID *string
		if courseCode != "" {
			// Imported students only join courses still open for enrollment.
			course, err := s.courses.FindActiveByCode(ctx, courseCode)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					result.Errors = append(result.Errors, fmt.Sprintf("row %d: unknown or inactive course %s", line, courseCode))
					continue
				}
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
			}
			courseID = &course.ID
		}

		if err := s.createImportedStudent(ctx, fullName, email, password, courseID, meta); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: create failed", line))
			s.logger.Warn("student import row failed", zap.Int("row", line), zap.Error(err))
			continue
		}
		result.Created++
	}

	s.logger.Info("student csv import finished",
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

func (s *AdminService) createImportedStudent(ctx context.Context, fullName, email, password string, courseID *string, meta RequestMeta) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		Role:         models.RoleStudent,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	userAudit := meta.auditEntry(models.AuditActionCreate, models.AuditEntityUser, email)
	if err := s.users.Create(ctx, user, userAudit); err != nil {
		return err
	}

	number, err := s.students.NextStudentNumber(ctx)
	if err != nil {
		return err
	}
	studentAudit := meta.auditEntry(models.AuditActionCreate, models.AuditEntityStudent, number)
	return s.students.Create(ctx, &models.Student{
		UserID:        user.ID,
		StudentNumber: number,
		CourseID:      courseID,
		Active:        true,
	}, studentAudit)
}

func (s *AdminService) resolveCourseIDs(ctx context.Context, codes []string) ([]string, error) {
	ids := make([]string, 0, len(codes))
	for _, code := range codes {
		course, err := s.courses.FindByCode(ctx, code)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("unknown course %s", code)
			}
			return nil, err
		}
		ids = append(ids, course.ID)
	}
	return ids, nil
}

// AuditLogs returns a filtered page of the audit trail. The trail is
// append-only; there is no mutation surface here.
func (s *AdminService) AuditLogs(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLogDetail, *models.Pagination, error) {
	entries, total, err := s.auditLogs.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
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
	return entries, pagination, nil
}

// AuditEntities returns the distinct entity names present in the trail, for
// filter dropdowns.
func (s *AdminService) AuditEntities(ctx context.Context) ([]string, error) {
	entities, err := s.auditLogs.DistinctEntities(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit entities")
	}
	return entities, nil
}

func parseModuleRow(record []string) (*models.Module, []string, error) {
	if len(record) != len(moduleCSVHeader) {
		return nil, nil, fmt.Errorf("expected %d columns", len(moduleCSVHeader))
	}
	code := strings.ToUpper(strings.TrimSpace(record[0]))
	name := strings.TrimSpace(record[1])
	category := models.ModuleCategory(strings.ToUpper(strings.TrimSpace(record[2])))
	if code == "" || name == "" {
		return nil, nil, fmt.Errorf("code and name are required")
	}
	if !isValidModuleCategory(category) {
		return nil, nil, fmt.Errorf("unknown category %s", record[2])
	}
	credit, err := strconv.Atoi(strings.TrimSpace(record[3]))
	if err != nil || credit < 1 {
		return nil, nil, fmt.Errorf("invalid credit %q", record[3])
	}
	// Zero capacity is a closed module, not an invalid one.
	capacity, err := strconv.Atoi(strings.TrimSpace(record[5]))
	if err != nil || capacity < 0 {
		return nil, nil, fmt.Errorf("invalid capacity %q", record[5])
	}
	available, err := strconv.ParseBool(strings.TrimSpace(record[6]))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid available flag %q", record[6])
	}

	var courseCodes []string
	for _, code := range strings.Split(record[7], ";") {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			courseCodes = append(courseCodes, code)
		}
	}

	return &models.Module{
		Code:         code,
		Name:         name,
		Category:     category,
		Credit:       credit,
		Description:  strings.TrimSpace(record[4]),
		Availability: available,
		Capacity:     capacity,
	}, courseCodes, nil
}

func expectHeader(reader *csv.Reader, want []string) error {
	header, err := reader.Read()
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "missing csv header")
	}
	if len(header) != len(want) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("expected header %s", strings.Join(want, ",")))
	}
	for i, col := range header {
		if !strings.EqualFold(strings.TrimSpace(col), want[i]) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("expected header %s", strings.Join(want, ",")))
		}
	}
	return nil
}
