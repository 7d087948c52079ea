package models

import "time"

// ModuleCategory enumerates the subject categories a module may carry.
type ModuleCategory string

const (
	ModuleCategoryComputerScience ModuleCategory = "CS"
	ModuleCategoryMathematics     ModuleCategory = "MATH"
	ModuleCategoryEngineering     ModuleCategory = "ENG"
	ModuleCategoryBusiness        ModuleCategory = "BUS"
	ModuleCategoryArts            ModuleCategory = "ART"
)

// Module is a registrable academic unit. Capacity is a soft ceiling checked
// at registration time against the count of all registration rows for the
// module, regardless of status.
type Module struct {
	ID           string         `db:"id" json:"id"`
	Code         string         `db:"code" json:"code"`
	Name         string         `db:"name" json:"name"`
	Category     ModuleCategory `db:"category" json:"category"`
	Credit       int            `db:"credit" json:"credit"`
	Description  string         `db:"description" json:"description"`
	Availability bool           `db:"availability" json:"availability"`
	Capacity     int            `db:"capacity" json:"capacity"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// ModuleDetail enriches Module with occupancy and linked course codes.
// Eligible and Registered are populated only when the listing was requested
// by an authenticated student; anonymous callers never see them.
type ModuleDetail struct {
	Module
	RegisteredCount   int      `db:"registered_count" json:"registered_count"`
	AvailableSlots    int      `db:"-" json:"available_slots"`
	LinkedCourseCodes []string `db:"-" json:"linked_course_codes"`
	Eligible          *bool    `db:"eligible" json:"eligible,omitempty"`
	Registered        *bool    `db:"registered" json:"registered,omitempty"`
}

// ModuleFilter captures search parameters for module listings. The Viewer
// fields are set by the service from the authenticated student, never from
// request input.
type ModuleFilter struct {
	Search          string
	Category        ModuleCategory
	CourseID        string
	Availability    *bool
	Page            int
	PageSize        int
	SortBy          string
	SortOrder       string
	ViewerStudentID string
	ViewerCourseID  string
}

// ModuleSummary is the machine-readable listing entry exposed to external
// API consumers.
type ModuleSummary struct {
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	Category      string   `json:"category"`
	Credit        int      `json:"credit"`
	Description   string   `json:"description"`
	Capacity      int      `json:"capacity"`
	LinkedCourses []string `json:"linked_courses"`
}
