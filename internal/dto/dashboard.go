package dto

import (
	"time"

	"github.com/unireg/unireg-api/internal/models"
)

// DashboardTotals carries the headline counters for the admin dashboard.
type DashboardTotals struct {
	Students      int `db:"students" json:"students"`
	Modules       int `db:"modules" json:"modules"`
	Registrations int `db:"registrations" json:"registrations"`
	ActiveModules int `db:"active_modules" json:"active_modules"`
}

// StatusCount aggregates registrations per status.
type StatusCount struct {
	Status models.RegistrationStatus `db:"status" json:"status"`
	Label  string                    `db:"-" json:"label"`
	Count  int                       `db:"count" json:"count"`
}

// CategoryStat aggregates modules per category.
type CategoryStat struct {
	Category  string  `db:"category" json:"category"`
	Count     int     `db:"count" json:"count"`
	AvgCredit float64 `db:"avg_credit" json:"avg_credit"`
}

// ModuleStat ranks modules by registration count.
type ModuleStat struct {
	Code              string `db:"code" json:"code"`
	Name              string `db:"name" json:"name"`
	RegistrationCount int    `db:"registration_count" json:"registration_count"`
}

// MonthlyCount is one month of the registration trend.
type MonthlyCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// GradeCount aggregates graded registrations per letter grade.
type GradeCount struct {
	Grade string `db:"grade" json:"grade"`
	Count int    `db:"count" json:"count"`
}

// ModulePerformance summarises grading per module on the 4-point scale.
type ModulePerformance struct {
	Code           string  `db:"code" json:"code"`
	Name           string  `db:"name" json:"name"`
	GradedCount    int     `db:"graded_count" json:"graded_count"`
	AvgGradePoints float64 `db:"avg_grade_points" json:"avg_grade_points"`
}

// AdminDashboardResponse is the composed admin dashboard payload.
type AdminDashboardResponse struct {
	Totals              DashboardTotals             `json:"totals"`
	StatusDistribution  []StatusCount               `json:"status_distribution"`
	CategoryStats       []CategoryStat              `json:"category_stats"`
	TopModules          []ModuleStat                `json:"top_modules"`
	MonthlyTrend        []MonthlyCount              `json:"monthly_trend"`
	GradeDistribution   []GradeCount                `json:"grade_distribution"`
	ModulePerformance   []ModulePerformance         `json:"module_performance"`
	RecentRegistrations []models.RegistrationDetail `json:"recent_registrations"`
	GeneratedAt         time.Time                   `json:"generated_at"`
}
