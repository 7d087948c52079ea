package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unireg/unireg-api/internal/models"
	appErrors "github.com/unireg/unireg-api/pkg/errors"
)

type fakeStudentRepo struct {
	students map[string]*models.Student
	audits   []*models.AuditLog
}

func newFakeStudentRepo() *fakeStudentRepo {
	return &fakeStudentRepo{students: make(map[string]*models.Student)}
}

func (f *fakeStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := f.students[id]; ok {
		copy := *s
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStudentRepo) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	for _, s := range f.students {
		if s.UserID == userID {
			copy := *s
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStudentRepo) FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := f.students[id]; ok {
		return &models.StudentDetail{Student: *s, FullName: "Test Student", Email: "student@example.com"}, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStudentRepo) UpdateProfile(ctx context.Context, student *models.Student, audit *models.AuditLog) error {
	copy := *student
	f.students[student.ID] = &copy
	if audit != nil {
		audit.EntityID = student.ID
		f.audits = append(f.audits, audit)
	}
	return nil
}

func (f *fakeStudentRepo) AssignCourse(ctx context.Context, studentID, courseID string, audit *models.AuditLog) (bool, error) {
	student, ok := f.students[studentID]
	if !ok {
		return false, sql.ErrNoRows
	}
	if student.CourseID != nil {
		return false, nil
	}
	student.CourseID = &courseID
	if audit != nil {
		audit.EntityID = studentID
		f.audits = append(f.audits, audit)
	}
	return true, nil
}

func (f *fakeStudentRepo) SetActive(ctx context.Context, studentID string, active bool, audit *models.AuditLog) error {
	student, ok := f.students[studentID]
	if !ok {
		return sql.ErrNoRows
	}
	student.Active = active
	if audit != nil {
		audit.EntityID = studentID
		f.audits = append(f.audits, audit)
	}
	return nil
}

func (f *fakeStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	var details []models.StudentDetail
	for _, s := range f.students {
		details = append(details, models.StudentDetail{Student: *s})
	}
	return details, len(details), nil
}

type fakeStudentCourses struct {
	courses   map[string]*models.Course
	members   map[string][]string
	groupErr  error
	memberErr error
}

func newFakeStudentCourses() *fakeStudentCourses {
	return &fakeStudentCourses{
		courses: make(map[string]*models.Course),
		members: make(map[string][]string),
	}
}

func (f *fakeStudentCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := f.courses[id]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStudentCourses) EnsureGroup(ctx context.Context, courseID, courseCode string) (string, error) {
	if f.groupErr != nil {
		return "", f.groupErr
	}
	return "group-" + courseID, nil
}

func (f *fakeStudentCourses) AddGroupMember(ctx context.Context, groupID, userID string) error {
	if f.memberErr != nil {
		return f.memberErr
	}
	f.members[groupID] = append(f.members[groupID], userID)
	return nil
}

type studentFixture struct {
	service *StudentService
	repo    *fakeStudentRepo
	courses *fakeStudentCourses
}

func newStudentFixture() *studentFixture {
	f := &studentFixture{
		repo:    newFakeStudentRepo(),
		courses: newFakeStudentCourses(),
	}
	f.courses.courses["course-cs"] = &models.Course{ID: "course-cs", Code: "CS2026", Name: "Computer Science", Active: true}
	f.repo.students["stu-1"] = &models.Student{ID: "stu-1", UserID: "user-1", StudentNumber: "STU00001", Active: true}
	f.service = NewStudentService(f.repo, f.courses, nil, zap.NewNop())
	return f
}

func TestStudentProfile(t *testing.T) {
	f := newStudentFixture()

	detail, err := f.service.Profile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "STU00001", detail.StudentNumber)

	_, err = f.service.Profile(context.Background(), "unknown")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentUpdateProfile(t *testing.T) {
	f := newStudentFixture()

	gender := "F"
	_, err := f.service.UpdateProfile(context.Background(), "user-1", UpdateProfileRequest{
		Gender:  &gender,
		Address: " 1 Campus Way ",
		City:    "Leiden",
		Country: "Netherlands",
	}, RequestMeta{ActorID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "1 Campus Way", f.repo.students["stu-1"].Address)
	require.Len(t, f.repo.audits, 1)
	assert.Equal(t, "STU00001", f.repo.audits[0].EntityLabel)
	assert.Equal(t, "stu-1", f.repo.audits[0].EntityID)
}

func TestStudentUpdateProfileRejectsBadGender(t *testing.T) {
	f := newStudentFixture()

	gender := "X"
	_, err := f.service.UpdateProfile(context.Background(), "user-1", UpdateProfileRequest{Gender: &gender}, RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentEnrollCourse(t *testing.T) {
	f := newStudentFixture()

	detail, err := f.service.EnrollCourse(context.Background(), "user-1", "course-cs", RequestMeta{ActorID: "user-1"})
	require.NoError(t, err)
	require.NotNil(t, detail.CourseID)
	assert.Equal(t, "course-cs", *detail.CourseID)
	assert.Contains(t, f.courses.members["group-course-cs"], "user-1")
	require.Len(t, f.repo.audits, 1)
	assert.Equal(t, "CS2026", f.repo.audits[0].EntityLabel)
}

func TestStudentEnrollCourseIsOneWay(t *testing.T) {
	f := newStudentFixture()
	f.courses.courses["course-math"] = &models.Course{ID: "course-math", Code: "MATH", Active: true}

	_, err := f.service.EnrollCourse(context.Background(), "user-1", "course-cs", RequestMeta{})
	require.NoError(t, err)

	_, err = f.service.EnrollCourse(context.Background(), "user-1", "course-math", RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Equal(t, "course-cs", *f.repo.students["stu-1"].CourseID)
}

func TestStudentEnrollInactiveCourse(t *testing.T) {
	f := newStudentFixture()
	f.courses.courses["course-cs"].Active = false

	_, err := f.service.EnrollCourse(context.Background(), "user-1", "course-cs", RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Nil(t, f.repo.students["stu-1"].CourseID)
}

func TestStudentEnrollSurvivesGroupFailure(t *testing.T) {
	f := newStudentFixture()
	f.courses.groupErr = sql.ErrConnDone

	detail, err := f.service.EnrollCourse(context.Background(), "user-1", "course-cs", RequestMeta{})
	require.NoError(t, err)
	require.NotNil(t, detail.CourseID)
}

func TestStudentAdminAssignCourse(t *testing.T) {
	f := newStudentFixture()

	require.NoError(t, f.service.AssignCourse(context.Background(), "stu-1", "course-cs", RequestMeta{ActorID: "admin-1"}))
	require.NotNil(t, f.repo.students["stu-1"].CourseID)

	err := f.service.AssignCourse(context.Background(), "stu-1", "course-cs", RequestMeta{ActorID: "admin-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestStudentSetActive(t *testing.T) {
	f := newStudentFixture()

	require.NoError(t, f.service.SetActive(context.Background(), "stu-1", false, RequestMeta{ActorID: "admin-1"}))
	assert.False(t, f.repo.students["stu-1"].Active)
	assert.Len(t, f.repo.audits, 1)
}
