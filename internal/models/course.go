package models

import "time"

// CourseCategory enumerates the programme categories offered.
type CourseCategory string

const (
	CourseCategoryComputerScience CourseCategory = "CS"
	CourseCategoryMathematics     CourseCategory = "MATH"
	CourseCategoryEngineering     CourseCategory = "ENG"
	CourseCategoryBusiness        CourseCategory = "BUS"
	CourseCategoryArts            CourseCategory = "ART"
	CourseCategoryMedicine        CourseCategory = "MED"
	CourseCategoryLaw             CourseCategory = "LAW"
	CourseCategoryEducation       CourseCategory = "EDU"
	CourseCategoryScience         CourseCategory = "SCI"
	CourseCategoryHumanities      CourseCategory = "HUM"
)

// Course is a programme of study. A student belongs to at most one course;
// course membership gates module eligibility.
type Course struct {
	ID            string         `db:"id" json:"id"`
	Code          string         `db:"code" json:"code"`
	Name          string         `db:"name" json:"name"`
	Category      CourseCategory `db:"category" json:"category"`
	Description   string         `db:"description" json:"description"`
	DurationYears int            `db:"duration_years" json:"duration_years"`
	TotalCredits  int            `db:"total_credits" json:"total_credits"`
	Active        bool           `db:"active" json:"active"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches Course with enrollment counts.
type CourseDetail struct {
	Course
	StudentCount int `db:"student_count" json:"student_count"`
}

// CourseFilter captures filtering criteria for listing courses.
type CourseFilter struct {
	Search    string
	Category  CourseCategory
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// CourseGroup is the role object ensured for each course. Membership is
// maintained explicitly by the services that assign courses or approve
// registrations, never as a hidden save hook.
type CourseGroup struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
