package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unireg/unireg-api/internal/models"
)

// CourseRepository handles persistence of courses and their role groups.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, code, name, category, description, duration_years, total_credits, active, created_at, updated_at`

// List returns courses filtered by the provided criteria with total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	base := `FROM courses c`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.name) LIKE $%d OR LOWER(c.code) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("c.category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("c.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"code":       "c.code",
		"name":       "c.name",
		"created_at": "c.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT c.id, c.code, c.name, c.category, c.description, c.duration_years, c.total_credits, c.active, c.created_at, c.updated_at,
        (SELECT COUNT(*) FROM students s WHERE s.course_id = c.id) AS student_count
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a course by identifier.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByCode returns a course by its unique code.
func (r *CourseRepository) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE code = $1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, code); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindActiveByCode returns an active course by code.
func (r *CourseRepository) FindActiveByCode(ctx context.Context, code string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE code = $1 AND active = TRUE`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, code); err != nil {
		return nil, err
	}
	return &course, nil
}

// Create persists a new course with its audit record in one transaction.
// The code is immutable after creation.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course, audit *models.AuditLog) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create course: %w", err)
	}
	defer tx.Rollback()

	const query = `INSERT INTO courses (id, code, name, category, description, duration_years, total_credits, active, created_at, updated_at)
        VALUES (:id, :code, :name, :category, :description, :duration_years, :total_credits, :active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	if audit != nil {
		audit.EntityID = course.ID
		if err := CreateAuditLogTx(ctx, tx, audit); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create course: %w", err)
	}
	return nil
}

// Update updates the mutable fields of a course. Code is never touched.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course, audit *models.AuditLog) error {
	course.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update course: %w", err)
	}
	defer tx.Rollback()

	const query = `UPDATE courses SET name = :name, category = :category, description = :description,
        duration_years = :duration_years, total_credits = :total_credits, active = :active, updated_at = :updated_at
        WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if audit != nil {
		audit.EntityID = course.ID
		if err := CreateAuditLogTx(ctx, tx, audit); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update course: %w", err)
	}
	return nil
}

// Delete removes a course. Student references are set to NULL and the course
// group removed by foreign-key actions at the storage layer.
func (r *CourseRepository) Delete(ctx context.Context, id string, audit *models.AuditLog) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete course: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	if audit != nil {
		audit.EntityID = id
		if err := CreateAuditLogTx(ctx, tx, audit); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete course: %w", err)
	}
	return nil
}

// CountStudents reports how many students are enrolled in the course.
func (r *CourseRepository) CountStudents(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM students WHERE course_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, courseID); err != nil {
		return 0, fmt.Errorf("count course students: %w", err)
	}
	return count, nil
}

// EnsureGroup guarantees the role group for a course exists and returns its
// id. The operation is idempotent and safe under concurrent callers.
func (r *CourseRepository) EnsureGroup(ctx context.Context, courseID, courseCode string) (string, error) {
	name := fmt.Sprintf("Course_%s_Group", courseCode)
	const insert = `INSERT INTO course_groups (id, course_id, name, created_at)
        VALUES ($1, $2, $3, $4) ON CONFLICT (course_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, uuid.NewString(), courseID, name, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("ensure course group: %w", err)
	}
	var groupID string
	const query = `SELECT id FROM course_groups WHERE course_id = $1`
	if err := r.db.GetContext(ctx, &groupID, query, courseID); err != nil {
		return "", fmt.Errorf("load course group: %w", err)
	}
	return groupID, nil
}

// AddGroupMember records membership of a user in a course group. Re-adding
// an existing member is a no-op.
func (r *CourseRepository) AddGroupMember(ctx context.Context, groupID, userID string) error {
	const query = `INSERT INTO course_group_members (group_id, user_id, added_at)
        VALUES ($1, $2, $3) ON CONFLICT (group_id, user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, groupID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add course group member: %w", err)
	}
	return nil
}

// IsGroupMember reports whether the user belongs to the course group.
func (r *CourseRepository) IsGroupMember(ctx context.Context, groupID, userID string) (bool, error) {
	const query = `SELECT 1 FROM course_group_members WHERE group_id = $1 AND user_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, groupID, userID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check course group member: %w", err)
	}
	return true, nil
}
