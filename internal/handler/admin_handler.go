package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unireg/unireg-api/internal/middleware"
	"github.com/unireg/unireg-api/internal/models"
	"github.com/unireg/unireg-api/internal/service"
	appErrors "github.com/unireg/unireg-api/pkg/errors"
	"github.com/unireg/unireg-api/pkg/response"
)

// AdminHandler handles the admin dashboard, bulk operations, CSV imports
// and the audit log browser.
type AdminHandler struct {
	admin     *service.AdminService
	dashboard *service.DashboardService
}

// NewAdminHandler constructs an admin handler.
func NewAdminHandler(admin *service.AdminService, dashboard *service.DashboardService) *AdminHandler {
	return &AdminHandler{admin: admin, dashboard: dashboard}
}

// Dashboard godoc
// @Summary Admin dashboard summary
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope{data=dto.AdminDashboardResponse}
// @Security BearerAuth
// @Router /admin/dashboard [get]
func (h *AdminHandler) Dashboard(c *gin.Context) {
	start := time.Now()
	summary, cacheHit, err := h.dashboard.Admin(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, summary, nil, meta)
}

// BulkUpdateRegistrations godoc
// @Summary Update the status of multiple registrations
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body object true "Registration ids and target status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/registrations/bulk [post]
func (h *AdminHandler) BulkUpdateRegistrations(c *gin.Context) {
	var payload struct {
		IDs    []string `json:"ids" binding:"required,min=1"`
		Status string   `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "ids and status required"))
		return
	}

	updated, err := h.admin.BulkUpdateRegistrations(c.Request.Context(), payload.IDs, models.RegistrationStatus(payload.Status), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": updated}, nil)
}

// UpdateRegistrationGrade godoc
// @Summary Set the grade and notes on a registration
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body service.UpdateGradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/registrations/{id}/grade [put]
func (h *AdminHandler) UpdateRegistrationGrade(c *gin.Context) {
	var req service.UpdateGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	reg, err := h.admin.UpdateRegistrationGrade(c.Request.Context(), c.Param("id"), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}

// ImportModules godoc
// @Summary Import modules from a CSV file
// @Tags Admin
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} response.Envelope{data=service.ImportResult}
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/import/modules [post]
func (h *AdminHandler) ImportModules(c *gin.Context) {
	h.importCSV(c, h.admin.ImportModulesCSV)
}

// ImportStudents godoc
// @Summary Import student accounts from a CSV file
// @Tags Admin
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} response.Envelope{data=service.ImportResult}
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/import/students [post]
func (h *AdminHandler) ImportStudents(c *gin.Context) {
	h.importCSV(c, h.admin.ImportStudentsCSV)
}

func (h *AdminHandler) importCSV(c *gin.Context, load func(ctx context.Context, r io.Reader, meta service.RequestMeta) (*service.ImportResult, error)) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "csv file required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read upload"))
		return
	}
	defer file.Close()

	result, err := load(c.Request.Context(), file, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// AuditLogs godoc
// @Summary Browse the audit log
// @Tags Admin
// @Produce json
// @Param action query string false "Filter by action"
// @Param entity query string false "Filter by entity type"
// @Param actor query string false "Filter by actor id"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/audit-logs [get]
func (h *AdminHandler) AuditLogs(c *gin.Context) {
	var filter models.AuditLogFilter
	filter.Action = models.AuditAction(c.Query("action"))
	filter.Entity = c.Query("entity")
	filter.Actor = c.Query("actor")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	logs, pagination, err := h.admin.AuditLogs(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}

// AuditEntities godoc
// @Summary List entity types present in the audit log
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/audit-logs/entities [get]
func (h *AdminHandler) AuditEntities(c *gin.Context) {
	entities, err := h.admin.AuditEntities(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entities, nil)
}
