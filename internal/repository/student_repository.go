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

// StudentRepository handles persistence of student profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, user_id, student_number, course_id, date_of_birth, gender, address, city, state, postal_code, country, phone, emergency_contact, emergency_phone, bio, enrollment_date, expected_graduation, active, created_at, updated_at`

const studentDetailColumns = `s.id, s.user_id, s.student_number, s.course_id, s.date_of_birth, s.gender, s.address, s.city, s.state, s.postal_code, s.country, s.phone, s.emergency_contact, s.emergency_phone, s.bio, s.enrollment_date, s.expected_graduation, s.active, s.created_at, s.updated_at,
        u.full_name AS full_name, u.email, c.code AS course_code, c.name AS course_name`

// FindByID returns a student profile by identifier.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE id = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByUserID returns the student profile attached to the user account.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE user_id = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, userID); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindDetailByID returns a student joined with account and course fields.
func (r *StudentRepository) FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM students s
        JOIN users u ON u.id = s.user_id
        LEFT JOIN courses c ON c.id = s.course_id
        WHERE s.id = $1`, studentDetailColumns)
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create persists a new student profile with its audit record in one
// transaction. The student number is assigned by the caller and unique.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student, audit *models.AuditLog) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.EnrollmentDate.IsZero() {
		student.EnrollmentDate = now
	}
	student.CreatedAt = now
	student.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create student: %w", err)
	}
	defer tx.Rollback()

	const query = `INSERT INTO students (id, user_id, student_number, course_id, date_of_birth, gender, address, city, state, postal_code, country, phone, emergency_contact, emergency_phone, bio, enrollment_date, expected_graduation, active, created_at, updated_at)
        VALUES (:id, :user_id, :student_number, :course_id, :date_of_birth, :gender, :address, :city, :state, :postal_code, :country, :phone, :emergency_contact, :emergency_phone, :bio, :enrollment_date, :expected_graduation, :active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	if audit != nil {
		audit.EntityID = student.ID
		if err := CreateAuditLogTx(ctx, tx, audit); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create student: %w", err)
	}
	return nil
}

// NextStudentNumber allocates the next sequential student number.
func (r *StudentRepository) NextStudentNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := r.db.GetContext(ctx, &seq, `SELECT nextval('student_number_seq')`); err != nil {
		return "", fmt.Errorf("next student number: %w", err)
	}
	return fmt.Sprintf("STU%05d", seq), nil
}

// UpdateProfile updates the personal fields of a student profile. Course
// assignment is handled separately by AssignCourse.
func (r *StudentRepository) UpdateProfile(ctx context.Context, student *models.Student, audit *models.AuditLog) error {
	student.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update student profile: %w", err)
	}
	defer tx.Rollback()

	const query = `UPDATE students SET date_of_birth = :date_of_birth, gender = :gender, address = :address,
        city = :city, state = :state, postal_code = :postal_code, country = :country, phone = :phone,
        emergency_contact = :emergency_contact, emergency_phone = :emergency_phone, bio = :bio,
        expected_graduation = :expected_graduation, updated_at = :updated_at
        WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student profile: %w", err)
	}
	if audit != nil {
		audit.EntityID = student.ID
		if err := CreateAuditLogTx(ctx, tx, audit); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update student profile: %w", err)
	}
	return nil
}

// AssignCourse enrolls the student in a course. The guard on course_id makes
// enrollment one way: a student already enrolled keeps their course and the
// call reports no rows affected. The audit record commits with the assignment
// and is skipped when no row changed.
func (r *StudentRepository) AssignCourse(ctx context.Context, studentID, courseID string, audit *models.AuditLog) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin assign course: %w", err)
	}
	defer tx.Rollback()

	const query = `UPDATE students SET course_id = $1, updated_at = $2
        WHERE id = $3 AND course_id IS NULL`
	res, err := tx.ExecContext(ctx, query, courseID, time.Now().UTC(), studentID)
	if err != nil {
		return false, fmt.Errorf("assign course: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("assign course rows: %w", err)
	}
	if affected > 0 && audit != nil {
		audit.EntityID = studentID
		if err := CreateAuditLogTx(ctx, tx, audit); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit assign course: %w", err)
	}
	return affected > 0, nil
}

// SetActive toggles the active flag of a student profile.
func (r *StudentRepository) SetActive(ctx context.Context, studentID string, active bool, audit *models.AuditLog) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set student active: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE students SET active = $1, updated_at = $2 WHERE id = $3`,
		active, time.Now().UTC(), studentID)
	if err != nil {
		return fmt.Errorf("set student active: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	if audit != nil {
		audit.EntityID = studentID
		if err := CreateAuditLogTx(ctx, tx, audit); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set student active: %w", err)
	}
	return nil
}

// List returns student details filtered by the provided criteria with total
// count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := `FROM students s
        JOIN users u ON u.id = s.user_id
        LEFT JOIN courses c ON c.id = s.course_id`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.full_name) LIKE $%d OR LOWER(s.student_number) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("s.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Unassigned {
		conditions = append(conditions, "s.course_id IS NULL")
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("s.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf(`SELECT %s
        %s ORDER BY s.student_number LIMIT %d OFFSET %d`, studentDetailColumns, base+clause, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}
