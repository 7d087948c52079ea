package models

import "time"

// AuditAction enumerates the action kinds recorded in the audit trail.
type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionDelete AuditAction = "DELETE"
	AuditActionView   AuditAction = "VIEW"
)

// Audited entity names.
const (
	AuditEntityCourse       = "Course"
	AuditEntityModule       = "Module"
	AuditEntityStudent      = "Student"
	AuditEntityRegistration = "Registration"
	AuditEntityUser         = "User"
	AuditEntityPage         = "PageContent"
	AuditEntityAuth         = "Auth"
)

// AuditLog is an append-only audit trail record. Rows are never updated or
// deleted; no write surface beyond Create exists.
type AuditLog struct {
	ID          string      `db:"id" json:"id"`
	ActorID     *string     `db:"actor_id" json:"actor_id,omitempty"`
	Action      AuditAction `db:"action" json:"action"`
	Entity      string      `db:"entity" json:"entity"`
	EntityID    string      `db:"entity_id" json:"entity_id"`
	EntityLabel string      `db:"entity_label" json:"entity_label"`
	IPAddress   string      `db:"ip_address" json:"ip_address"`
	UserAgent   string      `db:"user_agent" json:"user_agent"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// AuditLogDetail includes the actor's display name for listing.
type AuditLogDetail struct {
	AuditLog
	ActorName  *string `db:"actor_name" json:"actor_name,omitempty"`
	ActorEmail *string `db:"actor_email" json:"actor_email,omitempty"`
}

// AuditLogFilter provides filters for browsing the audit trail.
type AuditLogFilter struct {
	Action   AuditAction
	Entity   string
	Actor    string
	Page     int
	PageSize int
}
