package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unireg/unireg-api/internal/models"
	appErrors "github.com/unireg/unireg-api/pkg/errors"
)

type fakeBulkRegistrations struct {
	registrations map[string]*models.Registration
	changed       int
	err           error
	lastIDs       []string
	lastAudit     models.AuditLog
	audits        []*models.AuditLog
}

func (f *fakeBulkRegistrations) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	if reg, ok := f.registrations[id]; ok {
		copy := *reg
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeBulkRegistrations) BulkUpdateStatus(ctx context.Context, ids []string, status models.RegistrationStatus, auditTemplate models.AuditLog) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.lastIDs = ids
	f.lastAudit = auditTemplate
	return f.changed, nil
}

func (f *fakeBulkRegistrations) UpdateGradeNotes(ctx context.Context, id string, grade, notes *string, audit *models.AuditLog) error {
	reg, ok := f.registrations[id]
	if !ok {
		return sql.ErrNoRows
	}
	reg.Grade = grade
	reg.Notes = notes
	if audit != nil {
		audit.EntityID = id
		f.audits = append(f.audits, audit)
	}
	return nil
}

type fakeImportModules struct {
	existing map[string]*models.Module
	created  []*models.Module
	linked   map[string][]string
	audits   []*models.AuditLog
}

func newFakeImportModules() *fakeImportModules {
	return &fakeImportModules{existing: make(map[string]*models.Module), linked: make(map[string][]string)}
}

func (f *fakeImportModules) FindByCode(ctx context.Context, code string) (*models.Module, error) {
	if module, ok := f.existing[code]; ok {
		return module, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeImportModules) Create(ctx context.Context, module *models.Module, courseIDs []string, audit *models.AuditLog) error {
	f.created = append(f.created, module)
	f.existing[module.Code] = module
	f.linked[module.Code] = courseIDs
	if audit != nil {
		audit.EntityID = module.ID
		f.audits = append(f.audits, audit)
	}
	return nil
}

type fakeImportCourses struct {
	courses map[string]*models.Course
}

func (f *fakeImportCourses) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	if course, ok := f.courses[code]; ok {
		return course, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeImportCourses) FindActiveByCode(ctx context.Context, code string) (*models.Course, error) {
	if course, ok := f.courses[code]; ok && course.Active {
		return course, nil
	}
	return nil, sql.ErrNoRows
}

type fakeImportUsers struct {
	byEmail map[string]*models.User
	created []*models.User
	audits  []*models.AuditLog
}

func newFakeImportUsers() *fakeImportUsers {
	return &fakeImportUsers{byEmail: make(map[string]*models.User)}
}

func (f *fakeImportUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := f.byEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeImportUsers) Create(ctx context.Context, user *models.User, audit *models.AuditLog) error {
	f.created = append(f.created, user)
	f.byEmail[user.Email] = user
	if audit != nil {
		audit.EntityID = user.ID
		f.audits = append(f.audits, audit)
	}
	return nil
}

type fakeImportStudents struct {
	created []*models.Student
	next    int
	audits  []*models.AuditLog
}

func (f *fakeImportStudents) Create(ctx context.Context, student *models.Student, audit *models.AuditLog) error {
	f.created = append(f.created, student)
	if audit != nil {
		audit.EntityID = student.ID
		f.audits = append(f.audits, audit)
	}
	return nil
}

func (f *fakeImportStudents) NextStudentNumber(ctx context.Context) (string, error) {
	f.next++
	return fmt.Sprintf("STU%05d", f.next), nil
}

type fakeAuditBrowser struct {
	entries  []models.AuditLogDetail
	entities []string
}

func (f *fakeAuditBrowser) List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLogDetail, int, error) {
	return f.entries, len(f.entries), nil
}

func (f *fakeAuditBrowser) DistinctEntities(ctx context.Context) ([]string, error) {
	return f.entities, nil
}

type adminFixture struct {
	service       *AdminService
	registrations *fakeBulkRegistrations
	modules       *fakeImportModules
	courses       *fakeImportCourses
	users         *fakeImportUsers
	students      *fakeImportStudents
}

func newAdminFixture() *adminFixture {
	f := &adminFixture{
		registrations: &fakeBulkRegistrations{registrations: make(map[string]*models.Registration)},
		modules:       newFakeImportModules(),
		courses:       &fakeImportCourses{courses: map[string]*models.Course{"CS": {ID: "course-cs", Code: "CS", Name: "Computer Science", Active: true}}},
		users:         newFakeImportUsers(),
		students:      &fakeImportStudents{},
	}
	f.service = NewAdminService(f.registrations, f.modules, f.courses, f.users, f.students,
		&fakeAuditBrowser{}, zap.NewNop())
	return f
}

func adminMeta() RequestMeta {
	return RequestMeta{ActorID: "admin-1", IPAddress: "10.0.0.1", UserAgent: "test"}
}

func TestBulkUpdateRegistrations(t *testing.T) {
	f := newAdminFixture()
	f.registrations.changed = 2

	changed, err := f.service.BulkUpdateRegistrations(context.Background(), []string{"reg-1", "reg-2", "reg-3"}, models.RegistrationRejected, adminMeta())
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	assert.Equal(t, []string{"reg-1", "reg-2", "reg-3"}, f.registrations.lastIDs)
	assert.Equal(t, models.AuditActionUpdate, f.registrations.lastAudit.Action)
	assert.Equal(t, models.AuditEntityRegistration, f.registrations.lastAudit.Entity)
	assert.Equal(t, "Rejected", f.registrations.lastAudit.EntityLabel)
}

func TestBulkUpdateRegistrationsValidation(t *testing.T) {
	f := newAdminFixture()

	_, err := f.service.BulkUpdateRegistrations(context.Background(), nil, models.RegistrationApproved, adminMeta())
	require.Error(t, err)

	_, err = f.service.BulkUpdateRegistrations(context.Background(), []string{"reg-1"}, models.RegistrationStatus("X"), adminMeta())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateRegistrationGrade(t *testing.T) {
	f := newAdminFixture()
	f.registrations.registrations["reg-1"] = &models.Registration{ID: "reg-1", Status: models.RegistrationApproved}

	grade := "b+"
	notes := "resit passed"
	reg, err := f.service.UpdateRegistrationGrade(context.Background(), "reg-1", UpdateGradeRequest{Grade: &grade, Notes: &notes}, adminMeta())
	require.NoError(t, err)
	require.NotNil(t, reg.Grade)
	assert.Equal(t, "B+", *reg.Grade)
	require.NotNil(t, f.registrations.registrations["reg-1"].Grade)
	assert.Equal(t, "B+", *f.registrations.registrations["reg-1"].Grade)

	require.Len(t, f.registrations.audits, 1)
	assert.Equal(t, models.AuditActionUpdate, f.registrations.audits[0].Action)
	assert.Equal(t, "reg-1", f.registrations.audits[0].EntityID)
	assert.Equal(t, "grade B+", f.registrations.audits[0].EntityLabel)
}

func TestUpdateRegistrationGradeClears(t *testing.T) {
	f := newAdminFixture()
	existing := "A"
	f.registrations.registrations["reg-1"] = &models.Registration{ID: "reg-1", Grade: &existing}

	reg, err := f.service.UpdateRegistrationGrade(context.Background(), "reg-1", UpdateGradeRequest{}, adminMeta())
	require.NoError(t, err)
	assert.Nil(t, reg.Grade)
	require.Len(t, f.registrations.audits, 1)
	assert.Equal(t, "grade cleared", f.registrations.audits[0].EntityLabel)
}

func TestUpdateRegistrationGradeRejectsUnknownLetter(t *testing.T) {
	f := newAdminFixture()
	grade := "E"

	_, err := f.service.UpdateRegistrationGrade(context.Background(), "reg-1", UpdateGradeRequest{Grade: &grade}, adminMeta())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.registrations.audits)
}

func TestUpdateRegistrationGradeNotFound(t *testing.T) {
	f := newAdminFixture()
	grade := "A"

	_, err := f.service.UpdateRegistrationGrade(context.Background(), "missing", UpdateGradeRequest{Grade: &grade}, adminMeta())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestImportModulesCSV(t *testing.T) {
	f := newAdminFixture()
	f.modules.existing["OLD01"] = &models.Module{Code: "OLD01"}

	input := strings.Join([]string{
		"code,name,category,credit,description,capacity,available,courses",
		"DB101,Databases,CS,6,Intro to relational databases,30,true,CS",
		"OLD01,Already There,CS,5,,20,true,",
		"BAD01,No Category,NOPE,5,,20,true,",
		"MM202,Linear Algebra,MATH,5,,40,false,",
	}, "\n")

	result, err := f.service.ImportModulesCSV(context.Background(), strings.NewReader(input), adminMeta())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "row 4")

	assert.Equal(t, []string{"course-cs"}, f.modules.linked["DB101"])
	assert.Empty(t, f.modules.linked["MM202"])

	require.Len(t, f.modules.audits, 2)
	assert.Equal(t, models.AuditActionCreate, f.modules.audits[0].Action)
	assert.Equal(t, "DB101", f.modules.audits[0].EntityLabel)
	assert.Equal(t, "MM202", f.modules.audits[1].EntityLabel)
}

func TestImportModulesCSVAcceptsZeroCapacity(t *testing.T) {
	f := newAdminFixture()

	input := strings.Join([]string{
		"code,name,category,credit,description,capacity,available,courses",
		"FULL1,Waitlist Only,CS,5,,0,true,",
		"NEG01,Broken,CS,5,,-1,true,",
	}, "\n")

	result, err := f.service.ImportModulesCSV(context.Background(), strings.NewReader(input), adminMeta())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "invalid capacity")

	require.Len(t, f.modules.created, 1)
	assert.Equal(t, 0, f.modules.created[0].Capacity)
}

func TestImportModulesCSVRejectsWrongHeader(t *testing.T) {
	f := newAdminFixture()

	_, err := f.service.ImportModulesCSV(context.Background(), strings.NewReader("code,name\nDB101,Databases"), adminMeta())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestImportModulesCSVUnknownCourse(t *testing.T) {
	f := newAdminFixture()

	input := strings.Join([]string{
		"code,name,category,credit,description,capacity,available,courses",
		"DB101,Databases,CS,6,,30,true,NOPE",
	}, "\n")

	result, err := f.service.ImportModulesCSV(context.Background(), strings.NewReader(input), adminMeta())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unknown course NOPE")
	assert.Empty(t, f.modules.audits)
}

func TestImportStudentsCSV(t *testing.T) {
	f := newAdminFixture()
	f.users.byEmail["taken@example.com"] = &models.User{ID: "u-1", Email: "taken@example.com"}

	input := strings.Join([]string{
		"full_name,email,password,course",
		"Ana Silva,Ana@Example.com,Secret123,CS",
		"Ben Okafor,ben@example.com,Secret123,",
		"Taken Person,taken@example.com,Secret123,",
		"Short Pass,short@example.com,abc,",
	}, "\n")

	result, err := f.service.ImportStudentsCSV(context.Background(), strings.NewReader(input), adminMeta())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "row 5")

	require.Len(t, f.users.created, 2)
	assert.Equal(t, "ana@example.com", f.users.created[0].Email)
	assert.Equal(t, models.RoleStudent, f.users.created[0].Role)
	assert.NotEqual(t, "Secret123", f.users.created[0].PasswordHash)

	require.Len(t, f.students.created, 2)
	require.NotNil(t, f.students.created[0].CourseID)
	assert.Equal(t, "course-cs", *f.students.created[0].CourseID)
	assert.Nil(t, f.students.created[1].CourseID)
	assert.NotEmpty(t, f.students.created[0].StudentNumber)

	require.Len(t, f.users.audits, 2)
	assert.Equal(t, "ana@example.com", f.users.audits[0].EntityLabel)
	require.Len(t, f.students.audits, 2)
	assert.Equal(t, f.students.created[0].StudentNumber, f.students.audits[0].EntityLabel)
}

func TestImportStudentsCSVRejectsInactiveCourse(t *testing.T) {
	f := newAdminFixture()
	f.courses.courses["HIST"] = &models.Course{ID: "course-hist", Code: "HIST", Name: "History", Active: false}

	input := strings.Join([]string{
		"full_name,email,password,course",
		"Cara Niemi,cara@example.com,Secret123,HIST",
	}, "\n")

	result, err := f.service.ImportStudentsCSV(context.Background(), strings.NewReader(input), adminMeta())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unknown or inactive course HIST")
	assert.Empty(t, f.users.created)
}

func TestAuditLogsPagination(t *testing.T) {
	browser := &fakeAuditBrowser{entries: []models.AuditLogDetail{{AuditLog: models.AuditLog{ID: "log-1"}}}}
	svc := NewAdminService(nil, nil, nil, nil, nil, browser, zap.NewNop())

	logs, pagination, err := svc.AuditLogs(context.Background(), models.AuditLogFilter{})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestAuditEntities(t *testing.T) {
	browser := &fakeAuditBrowser{entities: []string{"Module", "Registration"}}
	svc := NewAdminService(nil, nil, nil, nil, nil, browser, zap.NewNop())

	entities, err := svc.AuditEntities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Module", "Registration"}, entities)
}
