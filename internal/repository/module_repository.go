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

// ModuleRepository handles persistence of modules and their course links.
type ModuleRepository struct {
	db *sqlx.DB
}

// NewModuleRepository constructs the repository.
func NewModuleRepository(db *sqlx.DB) *ModuleRepository {
	return &ModuleRepository{db: db}
}

const moduleColumns = `id, code, name, category, description, credit, capacity, availability, created_at, updated_at`

// List returns modules filtered by the provided criteria with total count.
// Each row carries the count of every registration held against the module,
// regardless of status, so the caller can compute remaining slots.
func (r *ModuleRepository) List(ctx context.Context, filter models.ModuleFilter) ([]models.ModuleDetail, int, error) {
	base := `FROM modules m`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(m.name) LIKE $%d OR LOWER(m.code) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("m.category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Availability != nil {
		conditions = append(conditions, fmt.Sprintf("m.availability = $%d", len(args)+1))
		args = append(args, *filter.Availability)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf(`(NOT EXISTS (SELECT 1 FROM module_courses mc WHERE mc.module_id = m.id)
            OR EXISTS (SELECT 1 FROM module_courses mc WHERE mc.module_id = m.id AND mc.course_id = $%d))`, len(args)+1))
		args = append(args, filter.CourseID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"code":       "m.code",
		"name":       "m.name",
		"credit":     "m.credit",
		"created_at": "m.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "m.code"
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

	listArgs := args
	viewerCols := ""
	if filter.ViewerStudentID != "" {
		viewerCols = fmt.Sprintf(`,
        (NOT EXISTS (SELECT 1 FROM module_courses mc WHERE mc.module_id = m.id)
            OR EXISTS (SELECT 1 FROM module_courses mc WHERE mc.module_id = m.id AND mc.course_id = $%d)) AS eligible,
        EXISTS (SELECT 1 FROM registrations reg WHERE reg.module_id = m.id AND reg.student_id = $%d) AS registered`,
			len(args)+1, len(args)+2)
		listArgs = append(append([]interface{}{}, args...), filter.ViewerCourseID, filter.ViewerStudentID)
	}

	query := fmt.Sprintf(`SELECT m.id, m.code, m.name, m.category, m.description, m.credit, m.capacity, m.availability, m.created_at, m.updated_at,
        (SELECT COUNT(*) FROM registrations reg WHERE reg.module_id = m.id) AS registered_count%s
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, viewerCols, base+clause, orderBy, order, size, offset)

	var modules []models.ModuleDetail
	if err := r.db.SelectContext(ctx, &modules, query, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list modules: %w", err)
	}
	for i := range modules {
		modules[i].AvailableSlots = modules[i].Capacity - modules[i].RegisteredCount
		if modules[i].AvailableSlots < 0 {
			modules[i].AvailableSlots = 0
		}
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count modules: %w", err)
	}
	return modules, total, nil
}

// FindByID returns a module by identifier.
func (r *ModuleRepository) FindByID(ctx context.Context, id string) (*models.Module, error) {
	query := fmt.Sprintf(`SELECT %s FROM modules WHERE id = $1`, moduleColumns)
	var module models.Module
	if err := r.db.GetContext(ctx, &module, query, id); err != nil {
		return nil, err
	}
	return &module, nil
}

// FindByCode returns a module by its unique code.
func (r *ModuleRepository) FindByCode(ctx context.Context, code string) (*models.Module, error) {
	query := fmt.Sprintf(`SELECT %s FROM modules WHERE code = $1`, moduleColumns)
	var module models.Module
	if err := r.db.GetContext(ctx, &module, query, code); err != nil {
		return nil, err
	}
	return &module, nil
}

// Create persists a new module together with its course links. The audit
// record commits in the same transaction as the insert.
func (r *ModuleRepository) Create(ctx context.Context, module *models.Module, courseIDs []string, audit *models.AuditLog) error {
	if module.ID == "" {
		module.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	module.CreatedAt = now
	module.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create module: %w", err)
	}
	defer tx.Rollback()

	const query = `INSERT INTO modules (id, code, name, category, description, credit, capacity, availability, created_at, updated_at)
        VALUES (:id, :code, :name, :category, :description, :credit, :capacity, :availability, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, module); err != nil {
		return fmt.Errorf("create module: %w", err)
	}
	if err := replaceModuleCoursesTx(ctx, tx, module.ID, courseIDs); err != nil {
		return err
	}
	if audit != nil {
		audit.EntityID = module.ID
		if err := CreateAuditLogTx(ctx, tx, audit); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create module: %w", err)
	}
	return nil
}

// Update updates a module and, when courseIDs is non-nil, replaces its
// course links. Passing an empty non-nil slice clears the links and opens
// the module to every course.
func (r *ModuleRepository) Update(ctx context.Context, module *models.Module, courseIDs []string, audit *models.AuditLog) error {
	module.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update module: %w", err)
	}
	defer tx.Rollback()

	const query = `UPDATE modules SET name = :name, category = :category, description = :description,
        credit = :credit, capacity = :capacity, availability = :availability, updated_at = :updated_at
        WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, query, module); err != nil {
		return fmt.Errorf("update module: %w", err)
	}
	if courseIDs != nil {
		if err := replaceModuleCoursesTx(ctx, tx, module.ID, courseIDs); err != nil {
			return err
		}
	}
	if audit != nil {
		audit.EntityID = module.ID
		if err := CreateAuditLogTx(ctx, tx, audit); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update module: %w", err)
	}
	return nil
}

func replaceModuleCoursesTx(ctx context.Context, tx *sqlx.Tx, moduleID string, courseIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM module_courses WHERE module_id = $1`, moduleID); err != nil {
		return fmt.Errorf("clear module courses: %w", err)
	}
	for _, courseID := range courseIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO module_courses (module_id, course_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			moduleID, courseID); err != nil {
			return fmt.Errorf("link module course: %w", err)
		}
	}
	return nil
}

// Delete removes a module and its registrations via cascading keys. The
// audit record commits with the delete.
func (r *ModuleRepository) Delete(ctx context.Context, id string, audit *models.AuditLog) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete module: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM modules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete module: %w", err)
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
		return fmt.Errorf("commit delete module: %w", err)
	}
	return nil
}

// SetAvailability flips the availability flag for a batch of modules and
// returns the number of rows changed. One audit record is appended per
// changed module, all inside the transaction that carries the update.
func (r *ModuleRepository) SetAvailability(ctx context.Context, ids []string, available bool, auditTemplate models.AuditLog) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin set module availability: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	changed := 0
	for _, id := range ids {
		res, err := tx.ExecContext(ctx,
			`UPDATE modules SET availability = $1, updated_at = $2 WHERE id = $3 AND availability <> $1`,
			available, now, id)
		if err != nil {
			return 0, fmt.Errorf("set module availability %s: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("set module availability rows: %w", err)
		}
		if affected == 0 {
			continue
		}
		changed++
		entry := auditTemplate
		entry.ID = ""
		entry.EntityID = id
		if err := CreateAuditLogTx(ctx, tx, &entry); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit set module availability: %w", err)
	}
	return changed, nil
}

// HasRegistration reports whether the student holds any registration row on
// the module, whatever its status.
func (r *ModuleRepository) HasRegistration(ctx context.Context, studentID, moduleID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM registrations WHERE student_id = $1 AND module_id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, studentID, moduleID); err != nil {
		return false, fmt.Errorf("check module registration: %w", err)
	}
	return exists, nil
}

// LinkedCourseIDs returns the ids of courses linked to the module. An empty
// result means the module is open to students of every course.
func (r *ModuleRepository) LinkedCourseIDs(ctx context.Context, moduleID string) ([]string, error) {
	var ids []string
	const query = `SELECT course_id FROM module_courses WHERE module_id = $1`
	if err := r.db.SelectContext(ctx, &ids, query, moduleID); err != nil {
		return nil, fmt.Errorf("linked course ids: %w", err)
	}
	return ids, nil
}

// LinkedCourseCodes returns the codes of courses linked to the module.
func (r *ModuleRepository) LinkedCourseCodes(ctx context.Context, moduleID string) ([]string, error) {
	var codes []string
	const query = `SELECT c.code FROM module_courses mc
        JOIN courses c ON c.id = mc.course_id
        WHERE mc.module_id = $1 ORDER BY c.code`
	if err := r.db.SelectContext(ctx, &codes, query, moduleID); err != nil {
		return nil, fmt.Errorf("linked course codes: %w", err)
	}
	return codes, nil
}

// CountRegistrations counts every registration row held against the module,
// whatever its status. Pending and rejected rows keep their slot.
func (r *ModuleRepository) CountRegistrations(ctx context.Context, moduleID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM registrations WHERE module_id = $1`
	if err := r.db.GetContext(ctx, &count, query, moduleID); err != nil {
		return 0, fmt.Errorf("count module registrations: %w", err)
	}
	return count, nil
}

// ListEligible returns available modules the student's course may take and
// that the student does not already hold an approved registration for.
// Modules with no linked courses are open to everyone.
func (r *ModuleRepository) ListEligible(ctx context.Context, studentID, courseID string) ([]models.ModuleDetail, error) {
	const query = `SELECT m.id, m.code, m.name, m.category, m.description, m.credit, m.capacity, m.availability, m.created_at, m.updated_at,
        (SELECT COUNT(*) FROM registrations reg WHERE reg.module_id = m.id) AS registered_count
        FROM modules m
        WHERE m.availability = TRUE
          AND (NOT EXISTS (SELECT 1 FROM module_courses mc WHERE mc.module_id = m.id)
               OR EXISTS (SELECT 1 FROM module_courses mc WHERE mc.module_id = m.id AND mc.course_id = $1))
          AND NOT EXISTS (SELECT 1 FROM registrations r2
               WHERE r2.module_id = m.id AND r2.student_id = $2 AND r2.status = 'A')
        ORDER BY m.code`
	var modules []models.ModuleDetail
	if err := r.db.SelectContext(ctx, &modules, query, courseID, studentID); err != nil {
		return nil, fmt.Errorf("list eligible modules: %w", err)
	}
	for i := range modules {
		modules[i].AvailableSlots = modules[i].Capacity - modules[i].RegisteredCount
		if modules[i].AvailableSlots < 0 {
			modules[i].AvailableSlots = 0
		}
	}
	return modules, nil
}

// ListSummaries returns the public machine-readable module list. Only
// available modules are exposed.
func (r *ModuleRepository) ListSummaries(ctx context.Context) ([]models.ModuleSummary, error) {
	const query = `SELECT m.code, m.name, m.category, m.credit, m.description, m.capacity
        FROM modules m WHERE m.availability = TRUE ORDER BY m.code`
	var summaries []models.ModuleSummary
	if err := r.db.SelectContext(ctx, &summaries, query); err != nil {
		return nil, fmt.Errorf("list module summaries: %w", err)
	}
	for i := range summaries {
		codes, err := r.linkedCodesByModuleCode(ctx, summaries[i].Code)
		if err != nil {
			return nil, err
		}
		summaries[i].LinkedCourses = codes
	}
	return summaries, nil
}

func (r *ModuleRepository) linkedCodesByModuleCode(ctx context.Context, moduleCode string) ([]string, error) {
	codes := []string{}
	const query = `SELECT c.code FROM module_courses mc
        JOIN modules m ON m.id = mc.module_id
        JOIN courses c ON c.id = mc.course_id
        WHERE m.code = $1 ORDER BY c.code`
	if err := r.db.SelectContext(ctx, &codes, query, moduleCode); err != nil {
		return nil, fmt.Errorf("linked codes for module: %w", err)
	}
	return codes, nil
}
