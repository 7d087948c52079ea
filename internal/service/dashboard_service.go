package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/unireg/unireg-api/internal/dto"
	"github.com/unireg/unireg-api/internal/models"
	appErrors "github.com/unireg/unireg-api/pkg/errors"
)

type dashboardRepository interface {
	Totals(ctx context.Context) (dto.DashboardTotals, error)
	StatusDistribution(ctx context.Context) ([]dto.StatusCount, error)
	CategoryStats(ctx context.Context) ([]dto.CategoryStat, error)
	TopModules(ctx context.Context, limit int) ([]dto.ModuleStat, error)
	MonthlyTrend(ctx context.Context, months int) ([]dto.MonthlyCount, error)
	GradeStats(ctx context.Context) ([]dto.GradeCount, error)
	ModulePerformance(ctx context.Context, limit int) ([]dto.ModulePerformance, error)
	RecentRegistrations(ctx context.Context, limit int) ([]models.RegistrationDetail, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL        time.Duration
	TopModulesLimit int
	TrendMonths     int
	RecentLimit     int
}

// DashboardService composes the admin dashboard payload from the aggregate
// queries, with a short-lived cache in front of the expensive composition.
type DashboardService struct {
	repo   dashboardRepository
	cache  *CacheService
	logger *zap.Logger
	now    func() time.Time
	cfg    DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(repo dashboardRepository, cache *CacheService, logger *zap.Logger, cfg DashboardServiceConfig) *DashboardService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.TopModulesLimit <= 0 {
		cfg.TopModulesLimit = 5
	}
	if cfg.TrendMonths <= 0 {
		cfg.TrendMonths = 6
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		repo:   repo,
		cache:  cache,
		logger: logger,
		now:    time.Now,
		cfg:    cfg,
	}
}

const adminDashboardCacheKey = "dash:admin"

// Admin returns the admin dashboard summary and reports whether it was
// served from cache.
func (s *DashboardService) Admin(ctx context.Context) (*dto.AdminDashboardResponse, bool, error) {
	if summary, hit := s.tryCache(ctx, adminDashboardCacheKey); hit {
		return summary, true, nil
	}

	summary, err := s.compose(ctx)
	if err != nil {
		return nil, false, err
	}
	s.persistCache(ctx, adminDashboardCacheKey, summary)
	return summary, false, nil
}

// Invalidate drops the cached dashboard so the next read recomposes it.
// Called after bulk administrative changes.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, adminDashboardCacheKey); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}

func (s *DashboardService) tryCache(ctx context.Context, key string) (*dto.AdminDashboardResponse, bool) {
	if s.cache == nil {
		return nil, false
	}
	var cached dto.AdminDashboardResponse
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil || !hit {
		return nil, false
	}
	return &cached, true
}

func (s *DashboardService) persistCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *DashboardService) compose(ctx context.Context) (*dto.AdminDashboardResponse, error) {
	totals, err := s.repo.Totals(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dashboard totals")
	}
	statuses, err := s.repo.StatusDistribution(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status distribution")
	}
	categories, err := s.repo.CategoryStats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category stats")
	}
	topModules, err := s.repo.TopModules(ctx, s.cfg.TopModulesLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load top modules")
	}
	trend, err := s.repo.MonthlyTrend(ctx, s.cfg.TrendMonths)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load monthly trend")
	}
	grades, err := s.repo.GradeStats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade stats")
	}
	performance, err := s.repo.ModulePerformance(ctx, s.cfg.TopModulesLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module performance")
	}
	recent, err := s.repo.RecentRegistrations(ctx, s.cfg.RecentLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent registrations")
	}

	return &dto.AdminDashboardResponse{
		Totals:              totals,
		StatusDistribution:  statuses,
		CategoryStats:       categories,
		TopModules:          topModules,
		MonthlyTrend:        trend,
		GradeDistribution:   grades,
		ModulePerformance:   performance,
		RecentRegistrations: recent,
		GeneratedAt:         s.now().UTC(),
	}, nil
}
