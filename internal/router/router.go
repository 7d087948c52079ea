// Package router assembles the HTTP route tree from the handler layer.
package router

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/unireg/unireg-api/internal/handler"
	"github.com/unireg/unireg-api/internal/middleware"
	"github.com/unireg/unireg-api/internal/models"
	"github.com/unireg/unireg-api/internal/repository"
	"github.com/unireg/unireg-api/internal/service"
)

// Deps carries everything the route tree needs. All handlers are required;
// AuditRepo backs the access-audit middleware on the audit browse surface.
type Deps struct {
	APIPrefix string

	Auth         *handler.AuthHandler
	Courses      *handler.CourseHandler
	Modules      *handler.ModuleHandler
	Registration *handler.RegistrationHandler
	Students     *handler.StudentHandler
	Users        *handler.UserHandler
	Pages        *handler.PageHandler
	Admin        *handler.AdminHandler
	Reports      *handler.ReportHandler
	Metrics      *handler.MetricsHandler

	AuthService *service.AuthService
	AuditRepo   *repository.AuditRepository

	DashboardEnabled bool
	ReportsEnabled   bool
}

// Register mounts all routes on the engine. Observability endpoints live at
// the root; everything else sits under the configured API prefix. The fixed
// /api/modules catalog path is mounted regardless of the prefix because
// external consumers rely on it.
func Register(r *gin.Engine, deps Deps) {
	r.GET("/health", deps.Metrics.Health)
	r.GET("/ready", deps.Metrics.Ready)
	r.GET("/metrics", deps.Metrics.Prometheus)

	prefix := strings.TrimRight(deps.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	if prefix != "/api" {
		r.GET("/api/modules", deps.Modules.Catalog)
	}

	api := r.Group(prefix)

	auth := api.Group("/auth")
	{
		auth.POST("/signup", deps.Auth.Signup)
		auth.POST("/login", deps.Auth.Login)
		auth.POST("/refresh", deps.Auth.Refresh)
	}

	// Public catalog and content. No authentication required; a bearer
	// token, when present, adds per-student flags to the module listing.
	api.GET("/courses", deps.Courses.List)
	api.GET("/courses/:id", deps.Courses.Get)
	api.GET("/modules", middleware.OptionalJWT(deps.AuthService), deps.Modules.List)
	api.GET("/modules/:code", middleware.OptionalJWT(deps.AuthService), deps.Modules.Get)
	api.GET("/pages/:key", deps.Pages.Get)

	// Signed downloads carry their own authorization in the token.
	if deps.ReportsEnabled {
		api.GET("/reports/download/:token", deps.Reports.Download)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(deps.AuthService))
	{
		authed.POST("/auth/logout", deps.Auth.Logout)
		authed.POST("/auth/change-password", deps.Auth.ChangePassword)
		authed.GET("/auth/me", deps.Auth.Me)

		authed.GET("/profile", deps.Students.Profile)
		authed.PUT("/profile", deps.Students.UpdateProfile)

		authed.POST("/courses/:id/enroll", deps.Courses.Enroll)

		authed.POST("/modules/:code/register", deps.Registration.Register)
		authed.DELETE("/modules/:code/register", deps.Registration.Unregister)
		authed.GET("/registrations/me", deps.Registration.MyRegistrations)
		authed.GET("/registrations/eligible", deps.Registration.EligibleModules)

		if deps.ReportsEnabled {
			authed.POST("/reports", deps.Reports.Create)
			authed.GET("/reports/:id", deps.Reports.Status)
		}
	}

	staff := api.Group("/admin")
	staff.Use(middleware.JWT(deps.AuthService), middleware.RequireRoles(models.RoleAdmin, models.RoleStaff))
	{
		if deps.DashboardEnabled {
			staff.GET("/dashboard", middleware.WithResponseMeta(), deps.Admin.Dashboard)
		}

		staff.POST("/registrations/bulk", deps.Admin.BulkUpdateRegistrations)
		staff.PUT("/registrations/:id/grade", deps.Admin.UpdateRegistrationGrade)
		staff.POST("/import/modules", deps.Admin.ImportModules)
		staff.POST("/import/students", deps.Admin.ImportStudents)

		staff.GET("/system/metrics", deps.Metrics.Snapshot)

		staff.GET("/audit-logs",
			middleware.Audit(deps.AuditRepo, models.AuditActionView, "AuditLog"),
			deps.Admin.AuditLogs)
		staff.GET("/audit-logs/entities", deps.Admin.AuditEntities)

		staff.POST("/modules", deps.Modules.Create)
		staff.PUT("/modules/:id", deps.Modules.Update)
		staff.DELETE("/modules/:id", deps.Modules.Delete)
		staff.POST("/modules/availability", deps.Modules.SetAvailability)

		staff.POST("/courses", deps.Courses.Create)
		staff.PUT("/courses/:id", deps.Courses.Update)
		staff.DELETE("/courses/:id", deps.Courses.Delete)

		staff.GET("/students", deps.Students.List)
		staff.GET("/students/:id", deps.Students.Get)
		staff.POST("/students/:id/course", deps.Students.AssignCourse)
		staff.POST("/students/:id/active", deps.Students.SetActive)

		staff.GET("/pages", deps.Pages.List)
		staff.PUT("/pages/:key", deps.Pages.Update)
	}

	// Account administration is restricted to admins.
	admin := api.Group("/users")
	admin.Use(middleware.JWT(deps.AuthService), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("", deps.Users.List)
		admin.GET("/:id", deps.Users.Get)
		admin.POST("", deps.Users.Create)
		admin.PUT("/:id", deps.Users.Update)
		admin.DELETE("/:id", deps.Users.Delete)
	}
}
