package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unireg/unireg-api/internal/models"
	appErrors "github.com/unireg/unireg-api/pkg/errors"
)

type fakeCourseRepo struct {
	courses   map[string]*models.Course
	students  map[string]int
	groups    map[string]string
	audits    []*models.AuditLog
	groupErr  error
	deleteErr error
}

func newFakeCourseRepo() *fakeCourseRepo {
	return &fakeCourseRepo{
		courses:  make(map[string]*models.Course),
		students: make(map[string]int),
		groups:   make(map[string]string),
	}
}

func (f *fakeCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	var details []models.CourseDetail
	for _, c := range f.courses {
		details = append(details, models.CourseDetail{Course: *c, StudentCount: f.students[c.ID]})
	}
	return details, len(details), nil
}

func (f *fakeCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := f.courses[id]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourseRepo) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	for _, c := range f.courses {
		if c.Code == code {
			copy := *c
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourseRepo) Create(ctx context.Context, course *models.Course, audit *models.AuditLog) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	copy := *course
	f.courses[course.ID] = &copy
	if audit != nil {
		audit.EntityID = course.ID
		f.audits = append(f.audits, audit)
	}
	return nil
}

func (f *fakeCourseRepo) Update(ctx context.Context, course *models.Course, audit *models.AuditLog) error {
	copy := *course
	f.courses[course.ID] = &copy
	if audit != nil {
		audit.EntityID = course.ID
		f.audits = append(f.audits, audit)
	}
	return nil
}

func (f *fakeCourseRepo) Delete(ctx context.Context, id string, audit *models.AuditLog) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.courses, id)
	if audit != nil {
		audit.EntityID = id
		f.audits = append(f.audits, audit)
	}
	return nil
}

func (f *fakeCourseRepo) CountStudents(ctx context.Context, courseID string) (int, error) {
	return f.students[courseID], nil
}

func (f *fakeCourseRepo) EnsureGroup(ctx context.Context, courseID, courseCode string) (string, error) {
	if f.groupErr != nil {
		return "", f.groupErr
	}
	id := uuid.NewString()
	f.groups[courseID] = id
	return id, nil
}

func validCreateCourseRequest() CreateCourseRequest {
	return CreateCourseRequest{
		Code:          "cs2026",
		Name:          "Computer Science",
		Category:      "cs",
		DurationYears: 3,
		TotalCredits:  180,
		Active:        true,
	}
}

func TestCourseCreate(t *testing.T) {
	repo := newFakeCourseRepo()
	svc := NewCourseService(repo, nil, zap.NewNop())

	course, err := svc.Create(context.Background(), validCreateCourseRequest(), RequestMeta{ActorID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, "CS2026", course.Code)
	assert.Equal(t, models.CourseCategoryComputerScience, course.Category)
	assert.NotEmpty(t, repo.groups[course.ID])
	require.Len(t, repo.audits, 1)
	assert.Equal(t, "CS2026", repo.audits[0].EntityLabel)
	assert.Equal(t, course.ID, repo.audits[0].EntityID)
}

func TestCourseCreateSurvivesGroupFailure(t *testing.T) {
	repo := newFakeCourseRepo()
	repo.groupErr = sql.ErrConnDone
	svc := NewCourseService(repo, nil, zap.NewNop())

	course, err := svc.Create(context.Background(), validCreateCourseRequest(), RequestMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, course.ID)
}

func TestCourseCreateDuplicateCode(t *testing.T) {
	repo := newFakeCourseRepo()
	svc := NewCourseService(repo, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), validCreateCourseRequest(), RequestMeta{})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), validCreateCourseRequest(), RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCourseUpdateKeepsCode(t *testing.T) {
	repo := newFakeCourseRepo()
	svc := NewCourseService(repo, nil, zap.NewNop())

	course, err := svc.Create(context.Background(), validCreateCourseRequest(), RequestMeta{})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), course.ID, UpdateCourseRequest{
		Name:          "Software Engineering",
		Category:      "ENG",
		DurationYears: 4,
		TotalCredits:  240,
		Active:        true,
	}, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "CS2026", updated.Code)
	assert.Equal(t, "Software Engineering", updated.Name)
	assert.Equal(t, models.CourseCategoryEngineering, updated.Category)
}

func TestCourseDeleteBlockedByEnrollment(t *testing.T) {
	repo := newFakeCourseRepo()
	svc := NewCourseService(repo, nil, zap.NewNop())

	course, err := svc.Create(context.Background(), validCreateCourseRequest(), RequestMeta{})
	require.NoError(t, err)
	repo.students[course.ID] = 3

	err = svc.Delete(context.Background(), course.ID, RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	repo.students[course.ID] = 0
	require.NoError(t, svc.Delete(context.Background(), course.ID, RequestMeta{}))
	assert.Empty(t, repo.courses)
}

func TestCourseGetNotFound(t *testing.T) {
	svc := NewCourseService(newFakeCourseRepo(), nil, zap.NewNop())

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
