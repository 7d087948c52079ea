package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unireg/unireg-api/internal/dto"
	"github.com/unireg/unireg-api/internal/models"
	appErrors "github.com/unireg/unireg-api/pkg/errors"
)

type fakeDashboardRepo struct {
	totals    dto.DashboardTotals
	totalsErr error
	calls     int
}

func (f *fakeDashboardRepo) Totals(ctx context.Context) (dto.DashboardTotals, error) {
	f.calls++
	if f.totalsErr != nil {
		return dto.DashboardTotals{}, f.totalsErr
	}
	return f.totals, nil
}

func (f *fakeDashboardRepo) StatusDistribution(ctx context.Context) ([]dto.StatusCount, error) {
	return []dto.StatusCount{{Status: models.RegistrationApproved, Label: "Approved", Count: 12}}, nil
}

func (f *fakeDashboardRepo) CategoryStats(ctx context.Context) ([]dto.CategoryStat, error) {
	return []dto.CategoryStat{{Category: "Informatics", Count: 4, AvgCredit: 5.5}}, nil
}

func (f *fakeDashboardRepo) TopModules(ctx context.Context, limit int) ([]dto.ModuleStat, error) {
	return []dto.ModuleStat{{Code: "DB101", Name: "Databases", RegistrationCount: 12}}, nil
}

func (f *fakeDashboardRepo) MonthlyTrend(ctx context.Context, months int) ([]dto.MonthlyCount, error) {
	return []dto.MonthlyCount{{Month: "2026-08", Count: 7}}, nil
}

func (f *fakeDashboardRepo) RecentRegistrations(ctx context.Context, limit int) ([]models.RegistrationDetail, error) {
	return nil, nil
}

func (f *fakeDashboardRepo) GradeStats(ctx context.Context) ([]dto.GradeCount, error) {
	return []dto.GradeCount{{Grade: "A", Count: 5}, {Grade: "B", Count: 3}}, nil
}

func (f *fakeDashboardRepo) ModulePerformance(ctx context.Context, limit int) ([]dto.ModulePerformance, error) {
	return []dto.ModulePerformance{{Code: "DB101", Name: "Databases", GradedCount: 8, AvgGradePoints: 3.6}}, nil
}

type memoryCacheRepo struct {
	entries map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func newTestDashboardService(repo *fakeDashboardRepo) (*DashboardService, *memoryCacheRepo) {
	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	svc := NewDashboardService(repo, cache, zap.NewNop(), DashboardServiceConfig{})
	return svc, cacheRepo
}

func TestDashboardAdminComposesSummary(t *testing.T) {
	repo := &fakeDashboardRepo{totals: dto.DashboardTotals{Students: 40, Modules: 8, Registrations: 55, ActiveModules: 6}}
	svc, _ := newTestDashboardService(repo)

	summary, cached, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 40, summary.Totals.Students)
	assert.Len(t, summary.StatusDistribution, 1)
	assert.Equal(t, "DB101", summary.TopModules[0].Code)
	require.Len(t, summary.GradeDistribution, 2)
	assert.Equal(t, "A", summary.GradeDistribution[0].Grade)
	require.Len(t, summary.ModulePerformance, 1)
	assert.InDelta(t, 3.6, summary.ModulePerformance[0].AvgGradePoints, 0.001)
	assert.False(t, summary.GeneratedAt.IsZero())
}

func TestDashboardAdminServesSecondReadFromCache(t *testing.T) {
	repo := &fakeDashboardRepo{totals: dto.DashboardTotals{Students: 40}}
	svc, _ := newTestDashboardService(repo)

	_, cached, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)

	summary, cached, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 40, summary.Totals.Students)
	assert.Equal(t, 1, repo.calls)
}

func TestDashboardInvalidateForcesRecompose(t *testing.T) {
	repo := &fakeDashboardRepo{totals: dto.DashboardTotals{Students: 40}}
	svc, _ := newTestDashboardService(repo)

	_, _, err := svc.Admin(context.Background())
	require.NoError(t, err)

	svc.Invalidate(context.Background())

	_, cached, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, repo.calls)
}

func TestDashboardAdminRepositoryError(t *testing.T) {
	repo := &fakeDashboardRepo{totalsErr: errors.New("connection reset")}
	svc, _ := newTestDashboardService(repo)

	_, _, err := svc.Admin(context.Background())
	require.Error(t, err)
	typed := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInternal.Code, typed.Code)
	assert.Equal(t, "failed to load dashboard totals", typed.Message)
}

func TestDashboardWorksWithoutCache(t *testing.T) {
	repo := &fakeDashboardRepo{totals: dto.DashboardTotals{Students: 3}}
	svc := NewDashboardService(repo, nil, zap.NewNop(), DashboardServiceConfig{})

	summary, cached, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 3, summary.Totals.Students)
}
