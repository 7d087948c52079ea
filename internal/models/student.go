package models

import "time"

// Student is the profile attached to a user account. The course reference is
// optional and set at most once through the enrollment flow.
type Student struct {
	ID                 string     `db:"id" json:"id"`
	UserID             string     `db:"user_id" json:"user_id"`
	StudentNumber      string     `db:"student_number" json:"student_number"`
	CourseID           *string    `db:"course_id" json:"course_id,omitempty"`
	DateOfBirth        *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender             *string    `db:"gender" json:"gender,omitempty"`
	Address            string     `db:"address" json:"address"`
	City               string     `db:"city" json:"city"`
	State              *string    `db:"state" json:"state,omitempty"`
	PostalCode         *string    `db:"postal_code" json:"postal_code,omitempty"`
	Country            string     `db:"country" json:"country"`
	Phone              *string    `db:"phone" json:"phone,omitempty"`
	EmergencyContact   *string    `db:"emergency_contact" json:"emergency_contact,omitempty"`
	EmergencyPhone     *string    `db:"emergency_phone" json:"emergency_phone,omitempty"`
	Bio                *string    `db:"bio" json:"bio,omitempty"`
	EnrollmentDate     time.Time  `db:"enrollment_date" json:"enrollment_date"`
	ExpectedGraduation *time.Time `db:"expected_graduation" json:"expected_graduation,omitempty"`
	Active             bool       `db:"active" json:"active"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// StudentDetail contains student information with user and course context.
type StudentDetail struct {
	Student
	FullName   string  `db:"full_name" json:"full_name"`
	Email      string  `db:"email" json:"email"`
	CourseCode *string `db:"course_code" json:"course_code,omitempty"`
	CourseName *string `db:"course_name" json:"course_name,omitempty"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search     string
	CourseID   string
	Unassigned bool
	Active     *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
