package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unireg/unireg-api/internal/models"
)

// AuditRepository appends to and reads the audit trail. The table is
// append-only: no update or delete statements exist here, and none may be
// added.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditInsertQuery = `INSERT INTO audit_logs (id, actor_id, action, entity, entity_id, entity_label, ip_address, user_agent, created_at)
VALUES (:id, :actor_id, :action, :entity, :entity_id, :entity_label, :ip_address, :user_agent, :created_at)`

func prepareAuditLog(entry *models.AuditLog) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
}

// Create appends one audit record.
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	prepareAuditLog(entry)
	if _, err := r.db.NamedExecContext(ctx, auditInsertQuery, entry); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// CreateAuditLogTx appends one audit record inside the caller's transaction so the
// audit row commits or rolls back atomically with the mutation it documents.
func CreateAuditLogTx(ctx context.Context, tx *sqlx.Tx, entry *models.AuditLog) error {
	prepareAuditLog(entry)
	if _, err := tx.NamedExecContext(ctx, auditInsertQuery, entry); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// List returns audit records filtered by action, entity and actor.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLogDetail, int, error) {
	base := `FROM audit_logs a LEFT JOIN users u ON u.id = a.actor_id`
	var conditions []string
	var args []interface{}

	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("a.action = $%d", len(args)+1))
		args = append(args, filter.Action)
	}
	if filter.Entity != "" {
		conditions = append(conditions, fmt.Sprintf("a.entity = $%d", len(args)+1))
		args = append(args, filter.Entity)
	}
	if filter.Actor != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.email) LIKE $%d OR LOWER(u.full_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Actor)+"%")
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
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT a.id, a.actor_id, a.action, a.entity, a.entity_id, a.entity_label, a.ip_address, a.user_agent, a.created_at,
        u.full_name AS actor_name, u.email AS actor_email
        %s ORDER BY a.created_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var entries []models.AuditLogDetail
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}
	return entries, total, nil
}

// DistinctEntities returns the entity names present in the trail, for the
// browse filter dropdown.
func (r *AuditRepository) DistinctEntities(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT entity FROM audit_logs ORDER BY entity`
	var entities []string
	if err := r.db.SelectContext(ctx, &entities, query); err != nil {
		return nil, fmt.Errorf("list audit entities: %w", err)
	}
	return entities, nil
}
