package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/unireg/unireg-api/api/swagger"
	"github.com/unireg/unireg-api/internal/handler"
	"github.com/unireg/unireg-api/internal/middleware"
	"github.com/unireg/unireg-api/internal/repository"
	"github.com/unireg/unireg-api/internal/router"
	"github.com/unireg/unireg-api/internal/service"
	"github.com/unireg/unireg-api/pkg/cache"
	"github.com/unireg/unireg-api/pkg/config"
	"github.com/unireg/unireg-api/pkg/database"
	"github.com/unireg/unireg-api/pkg/export"
	"github.com/unireg/unireg-api/pkg/jobs"
	"github.com/unireg/unireg-api/pkg/logger"
	corsmiddleware "github.com/unireg/unireg-api/pkg/middleware/cors"
	reqidmiddleware "github.com/unireg/unireg-api/pkg/middleware/requestid"
	"github.com/unireg/unireg-api/pkg/storage"
)

// @title UniReg API
// @version 1.0.0
// @description Module registration service for university courses
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	// Redis is an accelerator, not a dependency. Cached surfaces fall back
	// to the database when it is unreachable.
	var cacheRepo service.CacheRepository
	cacheEnabled := false
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		cacheEnabled = true
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr, cacheEnabled)

	auditRepo := repository.NewAuditRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	dashboardRepo := repository.NewDashboardRepository(db)
	moduleRepo := repository.NewModuleRepository(db)
	pageRepo := repository.NewPageContentRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	reportRepo := repository.NewReportRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	userRepo := repository.NewUserRepository(db)

	authSvc := service.NewAuthService(userRepo, studentRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "unireg-api",
	})
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, courseRepo, validate, logr)
	moduleSvc := service.NewModuleService(moduleRepo, studentRepo, cacheSvc, validate, logr, cfg.Catalog.CacheTTL)
	registrationSvc := service.NewRegistrationService(registrationRepo, moduleRepo, studentRepo, courseRepo, courseRepo, logr)
	userSvc := service.NewUserService(userRepo, validate, logr)
	pageSvc := service.NewPageService(pageRepo, validate, logr)
	adminSvc := service.NewAdminService(registrationRepo, moduleRepo, courseRepo, userRepo, studentRepo, auditRepo, logr)
	dashboardSvc := service.NewDashboardService(dashboardRepo, cacheSvc, logr, service.DashboardServiceConfig{
		CacheTTL: cfg.Dashboard.CacheTTL,
	})

	var reportSvc *service.ReportService
	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("report storage init failed", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		dataSource := service.NewExportDataSource(registrationRepo, moduleRepo, courseRepo, studentRepo)
		exportSvc := service.NewExportService(dataSource, store, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Reports.SignedURLTTL,
		}, logr, export.NewCSVExporter(), export.NewPDFExporter())

		worker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.WorkerRetries, logr)
		reportQueue = jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportSvc = service.NewReportService(reportRepo, reportQueue, exportSvc, logr, service.ReportServiceConfig{
			ResultTTL:  cfg.Reports.SignedURLTTL,
			MaxRetries: cfg.Reports.WorkerRetries,
		})

		reportQueue.Start(ctx)
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartCleanup(ctx)
	}

	ready := func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		return nil
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	router.Register(r, router.Deps{
		APIPrefix:        cfg.APIPrefix,
		Auth:             handler.NewAuthHandler(authSvc),
		Courses:          handler.NewCourseHandler(courseSvc, studentSvc),
		Modules:          handler.NewModuleHandler(moduleSvc),
		Registration:     handler.NewRegistrationHandler(registrationSvc),
		Students:         handler.NewStudentHandler(studentSvc),
		Users:            handler.NewUserHandler(userSvc),
		Pages:            handler.NewPageHandler(pageSvc),
		Admin:            handler.NewAdminHandler(adminSvc, dashboardSvc),
		Reports:          handler.NewReportHandler(reportSvc),
		Metrics:          handler.NewMetricsHandler(metricsSvc, ready),
		AuthService:      authSvc,
		AuditRepo:        auditRepo,
		DashboardEnabled: cfg.Dashboard.Enabled,
		ReportsEnabled:   cfg.Reports.Enabled,
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	if reportQueue != nil {
		reportQueue.Stop()
	}
}
