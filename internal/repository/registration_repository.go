package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/unireg/unireg-api/internal/models"
)

// ErrModuleFull is returned when every slot of a module is taken. Slots are
// counted over every registration row, whatever its status.
var ErrModuleFull = errors.New("module capacity reached")

const pqUniqueViolation = "23505"

// RegistrationRepository handles persistence of module registrations. All
// writes append their audit record inside the same transaction, so a
// registration change and its trail commit or roll back together.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `id, student_id, module_id, status, grade, notes, registered_at, last_modified`

// FindByID returns a registration by identifier.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	query := fmt.Sprintf(`SELECT %s FROM registrations WHERE id = $1`, registrationColumns)
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, id); err != nil {
		return nil, err
	}
	return &reg, nil
}

// FindByStudentAndModule returns the registration a student holds on a
// module, or sql.ErrNoRows when none exists.
func (r *RegistrationRepository) FindByStudentAndModule(ctx context.Context, studentID, moduleID string) (*models.Registration, error) {
	query := fmt.Sprintf(`SELECT %s FROM registrations WHERE student_id = $1 AND module_id = $2`, registrationColumns)
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, studentID, moduleID); err != nil {
		return nil, err
	}
	return &reg, nil
}

// CountByModule counts every registration row held against a module,
// regardless of status.
func (r *RegistrationRepository) CountByModule(ctx context.Context, moduleID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM registrations WHERE module_id = $1`, moduleID); err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return count, nil
}

// CreateApproved inserts an approved registration for the student on the
// module. The capacity check, the insert, the concurrent-duplicate recovery
// and the audit record all run inside one transaction.
//
// A duplicate key from a concurrent insert rolls back to a savepoint rather
// than aborting the transaction, re-reads the winning row and converges it
// to approved. The second return value reports whether the student already
// held an approved registration, in which case nothing was changed.
func (r *RegistrationRepository) CreateApproved(ctx context.Context, studentID, moduleID string, capacity int, audit *models.AuditLog) (*models.Registration, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin registration: %w", err)
	}
	defer tx.Rollback()

	var taken int
	if err := tx.GetContext(ctx, &taken, `SELECT COUNT(*) FROM registrations WHERE module_id = $1`, moduleID); err != nil {
		return nil, false, fmt.Errorf("count registrations: %w", err)
	}
	if taken >= capacity {
		return nil, false, ErrModuleFull
	}

	if _, err := tx.ExecContext(ctx, `SAVEPOINT create_registration`); err != nil {
		return nil, false, fmt.Errorf("savepoint: %w", err)
	}

	now := time.Now().UTC()
	reg := &models.Registration{
		ID:           uuid.NewString(),
		StudentID:    studentID,
		ModuleID:     moduleID,
		Status:       models.RegistrationApproved,
		RegisteredAt: now,
		LastModified: now,
	}
	const insert = `INSERT INTO registrations (id, student_id, module_id, status, grade, notes, registered_at, last_modified)
        VALUES (:id, :student_id, :module_id, :status, :grade, :notes, :registered_at, :last_modified)`
	_, insertErr := tx.NamedExecContext(ctx, insert, reg)
	alreadyApproved := false
	if insertErr != nil {
		var pqErr *pq.Error
		if !errors.As(insertErr, &pqErr) || string(pqErr.Code) != pqUniqueViolation {
			return nil, false, fmt.Errorf("insert registration: %w", insertErr)
		}
		// A concurrent request won the unique constraint race. Recover the
		// transaction and converge on the row that exists.
		if _, err := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT create_registration`); err != nil {
			return nil, false, fmt.Errorf("rollback savepoint: %w", err)
		}
		var existing models.Registration
		query := fmt.Sprintf(`SELECT %s FROM registrations WHERE student_id = $1 AND module_id = $2 FOR UPDATE`, registrationColumns)
		if err := tx.GetContext(ctx, &existing, query, studentID, moduleID); err != nil {
			return nil, false, fmt.Errorf("reread registration: %w", err)
		}
		if existing.Status == models.RegistrationApproved {
			alreadyApproved = true
		} else {
			existing.Status = models.RegistrationApproved
			existing.LastModified = now
			if _, err := tx.ExecContext(ctx,
				`UPDATE registrations SET status = $1, last_modified = $2 WHERE id = $3`,
				existing.Status, existing.LastModified, existing.ID); err != nil {
				return nil, false, fmt.Errorf("converge registration: %w", err)
			}
		}
		reg = &existing
	}

	if !alreadyApproved && audit != nil {
		audit.EntityID = reg.ID
		if err := CreateAuditLogTx(ctx, tx, audit); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit registration: %w", err)
	}
	return reg, alreadyApproved, nil
}

// UpdateStatus sets a registration's status and writes the audit record in
// the same transaction.
func (r *RegistrationRepository) UpdateStatus(ctx context.Context, id string, status models.RegistrationStatus, audit *models.AuditLog) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE registrations SET status = $1, last_modified = $2 WHERE id = $3`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update registration status: %w", err)
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
		return fmt.Errorf("commit status update: %w", err)
	}
	return nil
}

// UpdateGradeNotes sets a registration's grade and notes with its audit
// record.
func (r *RegistrationRepository) UpdateGradeNotes(ctx context.Context, id string, grade, notes *string, audit *models.AuditLog) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grade update: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE registrations SET grade = $1, notes = $2, last_modified = $3 WHERE id = $4`,
		grade, notes, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update registration grade: %w", err)
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
		return fmt.Errorf("commit grade update: %w", err)
	}
	return nil
}

// Delete removes a registration and writes the audit record in the same
// transaction. The freed slot becomes visible to subsequent capacity checks.
func (r *RegistrationRepository) Delete(ctx context.Context, id string, audit *models.AuditLog) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
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
		return fmt.Errorf("commit registration delete: %w", err)
	}
	return nil
}

// BulkUpdateStatus sets the status of each listed registration, appending
// one audit record per row in the same transaction. It returns the number
// of rows changed.
func (r *RegistrationRepository) BulkUpdateStatus(ctx context.Context, ids []string, status models.RegistrationStatus, auditTemplate models.AuditLog) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk status update: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	changed := 0
	for _, id := range ids {
		res, err := tx.ExecContext(ctx,
			`UPDATE registrations SET status = $1, last_modified = $2 WHERE id = $3`,
			status, now, id)
		if err != nil {
			return 0, fmt.Errorf("bulk update registration %s: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("bulk update rows: %w", err)
		}
		if affected == 0 {
			continue
		}
		entry := auditTemplate
		entry.ID = ""
		entry.EntityID = id
		if err := CreateAuditLogTx(ctx, tx, &entry); err != nil {
			return 0, err
		}
		changed++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk status update: %w", err)
	}
	return changed, nil
}

// ListByStudent returns a student's registrations joined with module fields,
// newest first.
func (r *RegistrationRepository) ListByStudent(ctx context.Context, studentID string) ([]models.RegistrationDetail, error) {
	const query = `SELECT r.id, r.student_id, r.module_id, r.status, r.grade, r.notes, r.registered_at, r.last_modified,
        s.student_number, u.full_name AS student_name, m.code AS module_code, m.name AS module_name, m.credit AS module_credit
        FROM registrations r
        JOIN students s ON s.id = r.student_id
        JOIN users u ON u.id = s.user_id
        JOIN modules m ON m.id = r.module_id
        WHERE r.student_id = $1
        ORDER BY r.registered_at DESC`
	var regs []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &regs, query, studentID); err != nil {
		return nil, fmt.Errorf("list student registrations: %w", err)
	}
	return regs, nil
}

// List returns registration details filtered by the provided criteria with
// total count.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	base := `FROM registrations r
        JOIN students s ON s.id = r.student_id
        JOIN users u ON u.id = s.user_id
        JOIN modules m ON m.id = r.module_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("r.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ModuleID != "" {
		conditions = append(conditions, fmt.Sprintf("r.module_id = $%d", len(args)+1))
		args = append(args, filter.ModuleID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("s.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.full_name) LIKE $%d OR LOWER(s.student_number) LIKE $%d OR LOWER(m.code) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
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

	query := fmt.Sprintf(`SELECT r.id, r.student_id, r.module_id, r.status, r.grade, r.notes, r.registered_at, r.last_modified,
        s.student_number, u.full_name AS student_name, m.code AS module_code, m.name AS module_name, m.credit AS module_credit
        %s ORDER BY r.registered_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var regs []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &regs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return regs, total, nil
}

// ListAllForExport returns every registration detail matching the filter
// without pagination, for report generation.
func (r *RegistrationRepository) ListAllForExport(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, error) {
	filter.Page = 1
	filter.PageSize = 100
	var all []models.RegistrationDetail
	for {
		page, total, err := r.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(all) >= total || len(page) == 0 {
			return all, nil
		}
		filter.Page++
	}
}
