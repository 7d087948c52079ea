package models

import "time"

// RegistrationStatus is the single-letter status code stored on a
// registration row.
type RegistrationStatus string

// Possible registration statuses.
const (
	RegistrationPending    RegistrationStatus = "P"
	RegistrationApproved   RegistrationStatus = "A"
	RegistrationRejected   RegistrationStatus = "R"
	RegistrationWaitlisted RegistrationStatus = "W"
	RegistrationDropped    RegistrationStatus = "D"
)

var registrationStatusLabels = map[RegistrationStatus]string{
	RegistrationPending:    "Pending",
	RegistrationApproved:   "Approved",
	RegistrationRejected:   "Rejected",
	RegistrationWaitlisted: "Waitlisted",
	RegistrationDropped:    "Dropped",
}

// Label returns the human-readable name for the status.
func (s RegistrationStatus) Label() string {
	if label, ok := registrationStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

// Valid reports whether the status is one of the known codes.
func (s RegistrationStatus) Valid() bool {
	_, ok := registrationStatusLabels[s]
	return ok
}

// Registration records a student's relationship to a module. At most one row
// ever exists per (student, module) pair; the storage layer enforces this
// with a uniqueness constraint.
type Registration struct {
	ID           string             `db:"id" json:"id"`
	StudentID    string             `db:"student_id" json:"student_id"`
	ModuleID     string             `db:"module_id" json:"module_id"`
	Status       RegistrationStatus `db:"status" json:"status"`
	Grade        *string            `db:"grade" json:"grade,omitempty"`
	Notes        *string            `db:"notes" json:"notes,omitempty"`
	RegisteredAt time.Time          `db:"registered_at" json:"registered_at"`
	LastModified time.Time          `db:"last_modified" json:"last_modified"`
}

// RegistrationDetail enriches Registration with student and module info for
// listing and reporting surfaces.
type RegistrationDetail struct {
	Registration
	StudentNumber string `db:"student_number" json:"student_number"`
	StudentName   string `db:"student_name" json:"student_name"`
	ModuleCode    string `db:"module_code" json:"module_code"`
	ModuleName    string `db:"module_name" json:"module_name"`
	ModuleCredit  int    `db:"module_credit" json:"module_credit"`
}

// RegistrationFilter provides filters for listing registrations.
type RegistrationFilter struct {
	StudentID string
	ModuleID  string
	CourseID  string
	Status    RegistrationStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
