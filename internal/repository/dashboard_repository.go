package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/unireg/unireg-api/internal/dto"
	"github.com/unireg/unireg-api/internal/models"
)

// DashboardRepository runs the aggregate queries behind the admin dashboard.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository constructs the repository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// Totals returns the headline counters.
func (r *DashboardRepository) Totals(ctx context.Context) (dto.DashboardTotals, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM students WHERE active = TRUE) AS students,
        (SELECT COUNT(*) FROM modules) AS modules,
        (SELECT COUNT(*) FROM registrations) AS registrations,
        (SELECT COUNT(*) FROM modules WHERE availability = TRUE) AS active_modules`
	var totals dto.DashboardTotals
	if err := r.db.GetContext(ctx, &totals, query); err != nil {
		return totals, fmt.Errorf("dashboard totals: %w", err)
	}
	return totals, nil
}

// StatusDistribution returns registration counts per status.
func (r *DashboardRepository) StatusDistribution(ctx context.Context) ([]dto.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM registrations GROUP BY status ORDER BY status`
	var counts []dto.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("status distribution: %w", err)
	}
	for i := range counts {
		counts[i].Label = counts[i].Status.Label()
	}
	return counts, nil
}

// CategoryStats returns module counts and average credit per category.
func (r *DashboardRepository) CategoryStats(ctx context.Context) ([]dto.CategoryStat, error) {
	const query = `SELECT category, COUNT(*) AS count, COALESCE(AVG(credit), 0) AS avg_credit
        FROM modules GROUP BY category ORDER BY category`
	var stats []dto.CategoryStat
	if err := r.db.SelectContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	return stats, nil
}

// TopModules ranks modules by how many registrations they hold.
func (r *DashboardRepository) TopModules(ctx context.Context, limit int) ([]dto.ModuleStat, error) {
	if limit <= 0 {
		limit = 5
	}
	const query = `SELECT m.code, m.name, COUNT(r.id) AS registration_count
        FROM modules m
        LEFT JOIN registrations r ON r.module_id = m.id
        GROUP BY m.id, m.code, m.name
        ORDER BY registration_count DESC, m.code ASC
        LIMIT $1`
	var stats []dto.ModuleStat
	if err := r.db.SelectContext(ctx, &stats, query, limit); err != nil {
		return nil, fmt.Errorf("top modules: %w", err)
	}
	return stats, nil
}

// MonthlyTrend returns registration counts for the last n months including
// the current one, oldest first. Months with no registrations appear with a
// zero count.
func (r *DashboardRepository) MonthlyTrend(ctx context.Context, months int) ([]dto.MonthlyCount, error) {
	if months <= 0 {
		months = 6
	}
	type row struct {
		Month string `db:"month"`
		Count int    `db:"count"`
	}
	const query = `SELECT TO_CHAR(DATE_TRUNC('month', registered_at), 'YYYY-MM') AS month, COUNT(*) AS count
        FROM registrations
        WHERE registered_at >= DATE_TRUNC('month', NOW()) - ($1 - 1) * INTERVAL '1 month'
        GROUP BY 1 ORDER BY 1`
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, months); err != nil {
		return nil, fmt.Errorf("monthly trend: %w", err)
	}

	byMonth := make(map[string]int, len(rows))
	for _, r := range rows {
		byMonth[r.Month] = r.Count
	}
	now := time.Now().UTC()
	trend := make([]dto.MonthlyCount, 0, months)
	for i := months - 1; i >= 0; i-- {
		m := now.AddDate(0, -i, 0).Format("2006-01")
		trend = append(trend, dto.MonthlyCount{Month: m, Count: byMonth[m]})
	}
	return trend, nil
}

// GradeStats returns counts of graded registrations per letter grade. Rows
// without a grade are excluded.
func (r *DashboardRepository) GradeStats(ctx context.Context) ([]dto.GradeCount, error) {
	const query = `SELECT grade, COUNT(*) AS count FROM registrations
        WHERE grade IS NOT NULL GROUP BY grade ORDER BY grade`
	var counts []dto.GradeCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("grade stats: %w", err)
	}
	return counts, nil
}

// ModulePerformance returns the average grade per module on the 4-point
// scale. Plus and minus modifiers fold into the base letter. Only modules
// with at least one graded registration appear.
func (r *DashboardRepository) ModulePerformance(ctx context.Context, limit int) ([]dto.ModulePerformance, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `SELECT m.code, m.name, COUNT(r.grade) AS graded_count,
        AVG(CASE LEFT(r.grade, 1)
            WHEN 'A' THEN 4 WHEN 'B' THEN 3 WHEN 'C' THEN 2 WHEN 'D' THEN 1 ELSE 0
        END) AS avg_grade_points
        FROM modules m
        JOIN registrations r ON r.module_id = m.id AND r.grade IS NOT NULL
        GROUP BY m.id, m.code, m.name
        ORDER BY avg_grade_points DESC, m.code ASC
        LIMIT $1`
	var stats []dto.ModulePerformance
	if err := r.db.SelectContext(ctx, &stats, query, limit); err != nil {
		return nil, fmt.Errorf("module performance: %w", err)
	}
	return stats, nil
}

// RecentRegistrations returns the newest registrations with their student
// and module fields.
func (r *DashboardRepository) RecentRegistrations(ctx context.Context, limit int) ([]models.RegistrationDetail, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `SELECT r.id, r.student_id, r.module_id, r.status, r.grade, r.notes, r.registered_at, r.last_modified,
        s.student_number, u.full_name AS student_name, m.code AS module_code, m.name AS module_name, m.credit AS module_credit
        FROM registrations r
        JOIN students s ON s.id = r.student_id
        JOIN users u ON u.id = s.user_id
        JOIN modules m ON m.id = r.module_id
        ORDER BY r.registered_at DESC
        LIMIT $1`
	var regs []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &regs, query, limit); err != nil {
		return nil, fmt.Errorf("recent registrations: %w", err)
	}
	return regs, nil
}
