package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unireg/unireg-api/internal/models"
	appErrors "github.com/unireg/unireg-api/pkg/errors"
)

type fakeModuleRepo struct {
	modules       map[string]*models.Module
	linked        map[string][]string
	linkedIDs     map[string][]string
	registrations map[string]int
	registered    map[string]map[string]bool
	audits        []*models.AuditLog
	summaries     []models.ModuleSummary
	summaryCalls  int
}

func newFakeModuleRepo() *fakeModuleRepo {
	return &fakeModuleRepo{
		modules:       make(map[string]*models.Module),
		linked:        make(map[string][]string),
		linkedIDs:     make(map[string][]string),
		registrations: make(map[string]int),
		registered:    make(map[string]map[string]bool),
	}
}

func (f *fakeModuleRepo) List(ctx context.Context, filter models.ModuleFilter) ([]models.ModuleDetail, int, error) {
	var details []models.ModuleDetail
	for _, m := range f.modules {
		detail := models.ModuleDetail{Module: *m}
		if filter.ViewerStudentID != "" {
			eligible := len(f.linkedIDs[m.ID]) == 0
			for _, id := range f.linkedIDs[m.ID] {
				if id == filter.ViewerCourseID {
					eligible = true
				}
			}
			registered := f.registered[m.ID][filter.ViewerStudentID]
			detail.Eligible = &eligible
			detail.Registered = &registered
		}
		details = append(details, detail)
	}
	return details, len(details), nil
}

func (f *fakeModuleRepo) FindByID(ctx context.Context, id string) (*models.Module, error) {
	if m, ok := f.modules[id]; ok {
		copy := *m
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeModuleRepo) FindByCode(ctx context.Context, code string) (*models.Module, error) {
	for _, m := range f.modules {
		if m.Code == code {
			copy := *m
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeModuleRepo) Create(ctx context.Context, module *models.Module, courseIDs []string, audit *models.AuditLog) error {
	if module.ID == "" {
		module.ID = uuid.NewString()
	}
	copy := *module
	f.modules[module.ID] = &copy
	f.linked[module.ID] = courseIDs
	f.linkedIDs[module.ID] = courseIDs
	if audit != nil {
		audit.EntityID = module.ID
		f.audits = append(f.audits, audit)
	}
	return nil
}

func (f *fakeModuleRepo) Update(ctx context.Context, module *models.Module, courseIDs []string, audit *models.AuditLog) error {
	copy := *module
	f.modules[module.ID] = &copy
	f.linked[module.ID] = courseIDs
	f.linkedIDs[module.ID] = courseIDs
	if audit != nil {
		audit.EntityID = module.ID
		f.audits = append(f.audits, audit)
	}
	return nil
}

func (f *fakeModuleRepo) Delete(ctx context.Context, id string, audit *models.AuditLog) error {
	delete(f.modules, id)
	if audit != nil {
		audit.EntityID = id
		f.audits = append(f.audits, audit)
	}
	return nil
}

func (f *fakeModuleRepo) SetAvailability(ctx context.Context, ids []string, available bool, auditTemplate models.AuditLog) (int, error) {
	changed := 0
	for _, id := range ids {
		if m, ok := f.modules[id]; ok && m.Availability != available {
			m.Availability = available
			changed++
			entry := auditTemplate
			entry.EntityID = id
			f.audits = append(f.audits, &entry)
		}
	}
	return changed, nil
}

func (f *fakeModuleRepo) LinkedCourseIDs(ctx context.Context, moduleID string) ([]string, error) {
	return f.linkedIDs[moduleID], nil
}

func (f *fakeModuleRepo) LinkedCourseCodes(ctx context.Context, moduleID string) ([]string, error) {
	return f.linked[moduleID], nil
}

func (f *fakeModuleRepo) CountRegistrations(ctx context.Context, moduleID string) (int, error) {
	return f.registrations[moduleID], nil
}

func (f *fakeModuleRepo) HasRegistration(ctx context.Context, studentID, moduleID string) (bool, error) {
	return f.registered[moduleID][studentID], nil
}

func (f *fakeModuleRepo) ListSummaries(ctx context.Context) ([]models.ModuleSummary, error) {
	f.summaryCalls++
	return f.summaries, nil
}

type fakeModuleStudents struct {
	students map[string]*models.Student
}

func (f *fakeModuleStudents) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	if s, ok := f.students[userID]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func newTestModuleService(repo *fakeModuleRepo) *ModuleService {
	return NewModuleService(repo, &fakeModuleStudents{students: map[string]*models.Student{}}, nil, nil, zap.NewNop(), time.Minute)
}

func validCreateModuleRequest() CreateModuleRequest {
	return CreateModuleRequest{
		Code:      "db101",
		Name:      "Databases",
		Category:  "cs",
		Credit:    6,
		Capacity:  30,
		Available: true,
		CourseIDs: []string{"course-cs"},
	}
}

func TestModuleCreate(t *testing.T) {
	repo := newFakeModuleRepo()
	svc := newTestModuleService(repo)

	module, err := svc.Create(context.Background(), validCreateModuleRequest(), RequestMeta{ActorID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, "DB101", module.Code)
	assert.Equal(t, models.ModuleCategoryComputerScience, module.Category)
	assert.Equal(t, []string{"course-cs"}, repo.linked[module.ID])
	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionCreate, repo.audits[0].Action)
	assert.Equal(t, "DB101", repo.audits[0].EntityLabel)
	assert.Equal(t, module.ID, repo.audits[0].EntityID)
}

func TestModuleCreateDuplicateCode(t *testing.T) {
	repo := newFakeModuleRepo()
	svc := newTestModuleService(repo)

	_, err := svc.Create(context.Background(), validCreateModuleRequest(), RequestMeta{})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), validCreateModuleRequest(), RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestModuleCreateUnknownCategory(t *testing.T) {
	svc := newTestModuleService(newFakeModuleRepo())

	req := validCreateModuleRequest()
	req.Category = "ASTROLOGY"
	_, err := svc.Create(context.Background(), req, RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestModuleCreateAllowsZeroCapacity(t *testing.T) {
	repo := newFakeModuleRepo()
	svc := newTestModuleService(repo)

	req := validCreateModuleRequest()
	req.Capacity = 0
	module, err := svc.Create(context.Background(), req, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 0, module.Capacity)

	req = validCreateModuleRequest()
	req.Code = "NG999"
	req.Capacity = -1
	_, err = svc.Create(context.Background(), req, RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestModuleGetByCodeComputesSlots(t *testing.T) {
	repo := newFakeModuleRepo()
	svc := newTestModuleService(repo)

	module, err := svc.Create(context.Background(), validCreateModuleRequest(), RequestMeta{})
	require.NoError(t, err)
	repo.registrations[module.ID] = 12

	detail, err := svc.GetByCode(context.Background(), "db101", "")
	require.NoError(t, err)
	assert.Equal(t, 12, detail.RegisteredCount)
	assert.Equal(t, 18, detail.AvailableSlots)
	assert.Equal(t, []string{"course-cs"}, detail.LinkedCourseCodes)
	assert.Nil(t, detail.Eligible)
	assert.Nil(t, detail.Registered)
}

func TestModuleGetByCodeAnnotatesViewer(t *testing.T) {
	repo := newFakeModuleRepo()
	courseID := "course-cs"
	students := &fakeModuleStudents{students: map[string]*models.Student{
		"user-1": {ID: "stu-1", UserID: "user-1", CourseID: &courseID},
		"user-2": {ID: "stu-2", UserID: "user-2"},
	}}
	svc := NewModuleService(repo, students, nil, nil, zap.NewNop(), time.Minute)

	module, err := svc.Create(context.Background(), validCreateModuleRequest(), RequestMeta{})
	require.NoError(t, err)
	repo.registered[module.ID] = map[string]bool{"stu-1": true}

	detail, err := svc.GetByCode(context.Background(), "DB101", "user-1")
	require.NoError(t, err)
	require.NotNil(t, detail.Eligible)
	require.NotNil(t, detail.Registered)
	assert.True(t, *detail.Eligible)
	assert.True(t, *detail.Registered)

	// a student without the linked course is flagged ineligible
	detail, err = svc.GetByCode(context.Background(), "DB101", "user-2")
	require.NoError(t, err)
	require.NotNil(t, detail.Eligible)
	assert.False(t, *detail.Eligible)
	assert.False(t, *detail.Registered)
}

func TestModuleListAnnotatesViewer(t *testing.T) {
	repo := newFakeModuleRepo()
	courseID := "course-cs"
	students := &fakeModuleStudents{students: map[string]*models.Student{
		"user-1": {ID: "stu-1", UserID: "user-1", CourseID: &courseID},
	}}
	svc := NewModuleService(repo, students, nil, nil, zap.NewNop(), time.Minute)

	module, err := svc.Create(context.Background(), validCreateModuleRequest(), RequestMeta{})
	require.NoError(t, err)
	repo.registered[module.ID] = map[string]bool{"stu-1": true}

	modules, _, err := svc.List(context.Background(), models.ModuleFilter{}, "user-1")
	require.NoError(t, err)
	require.Len(t, modules, 1)
	require.NotNil(t, modules[0].Eligible)
	assert.True(t, *modules[0].Eligible)
	assert.True(t, *modules[0].Registered)

	// anonymous listings carry no per-student flags
	modules, _, err = svc.List(context.Background(), models.ModuleFilter{}, "")
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Nil(t, modules[0].Eligible)
}

func TestModuleSlotsNeverNegative(t *testing.T) {
	repo := newFakeModuleRepo()
	svc := newTestModuleService(repo)

	module, err := svc.Create(context.Background(), validCreateModuleRequest(), RequestMeta{})
	require.NoError(t, err)
	repo.registrations[module.ID] = 45

	detail, err := svc.Get(context.Background(), module.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, detail.AvailableSlots)
}

func TestModuleUpdateAllowsShrinkingCapacity(t *testing.T) {
	repo := newFakeModuleRepo()
	svc := newTestModuleService(repo)

	module, err := svc.Create(context.Background(), validCreateModuleRequest(), RequestMeta{})
	require.NoError(t, err)
	repo.registrations[module.ID] = 25

	updated, err := svc.Update(context.Background(), module.ID, UpdateModuleRequest{
		Name:     "Databases",
		Category: "CS",
		Credit:   6,
		Capacity: 10,
	}, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 10, updated.Capacity)
}

func TestModuleDeleteBlockedByRegistrations(t *testing.T) {
	repo := newFakeModuleRepo()
	svc := newTestModuleService(repo)

	module, err := svc.Create(context.Background(), validCreateModuleRequest(), RequestMeta{})
	require.NoError(t, err)
	repo.registrations[module.ID] = 1

	err = svc.Delete(context.Background(), module.ID, RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	repo.registrations[module.ID] = 0
	require.NoError(t, svc.Delete(context.Background(), module.ID, RequestMeta{}))
	assert.Empty(t, repo.modules)
}

func TestModuleSetAvailability(t *testing.T) {
	repo := newFakeModuleRepo()
	svc := newTestModuleService(repo)

	first, err := svc.Create(context.Background(), validCreateModuleRequest(), RequestMeta{})
	require.NoError(t, err)
	second := validCreateModuleRequest()
	second.Code = "MM202"
	other, err := svc.Create(context.Background(), second, RequestMeta{})
	require.NoError(t, err)
	repo.audits = nil

	changed, err := svc.SetAvailability(context.Background(), []string{first.ID, other.ID}, false, RequestMeta{ActorID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	// one audit record per changed module
	require.Len(t, repo.audits, 2)
	assert.Equal(t, first.ID, repo.audits[0].EntityID)
	assert.Equal(t, other.ID, repo.audits[1].EntityID)
	assert.Equal(t, "availability=false", repo.audits[0].EntityLabel)

	changed, err = svc.SetAvailability(context.Background(), []string{first.ID}, false, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
	assert.Len(t, repo.audits, 2)
}

func TestModuleCatalogCaches(t *testing.T) {
	repo := newFakeModuleRepo()
	repo.summaries = []models.ModuleSummary{{Code: "DB101", Name: "Databases", Capacity: 30}}
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, zap.NewNop(), true)
	svc := NewModuleService(repo, nil, cache, nil, zap.NewNop(), time.Minute)

	first, err := svc.Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = svc.Catalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.summaryCalls)
}
