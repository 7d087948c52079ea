package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/unireg/unireg-api/internal/models"
	"github.com/unireg/unireg-api/internal/service"
	appErrors "github.com/unireg/unireg-api/pkg/errors"
	"github.com/unireg/unireg-api/pkg/response"
)

// ModuleHandler handles module catalog endpoints.
type ModuleHandler struct {
	service *service.ModuleService
}

// NewModuleHandler constructs a module handler.
func NewModuleHandler(svc *service.ModuleService) *ModuleHandler {
	return &ModuleHandler{service: svc}
}

// List godoc
// @Summary List modules
// @Tags Modules
// @Produce json
// @Param search query string false "Search keyword"
// @Param category query string false "Filter by category"
// @Param course_id query string false "Filter by linked course"
// @Param available query bool false "Filter by availability"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /modules [get]
func (h *ModuleHandler) List(c *gin.Context) {
	var filter models.ModuleFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Category = models.ModuleCategory(strings.ToUpper(c.Query("category")))
	filter.CourseID = c.Query("course_id")
	if raw := c.Query("available"); raw != "" {
		if val, err := strconv.ParseBool(raw); err == nil {
			filter.Availability = &val
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	modules, pagination, err := h.service.List(c.Request.Context(), filter, viewerUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, modules, pagination)
}

// viewerUserID returns the authenticated account id, if any. Catalog routes
// accept anonymous requests, so a missing token is not an error.
func viewerUserID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}

// Get godoc
// @Summary Get module by code
// @Tags Modules
// @Produce json
// @Param code path string true "Module code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /modules/{code} [get]
func (h *ModuleHandler) Get(c *gin.Context) {
	module, err := h.service.GetByCode(c.Request.Context(), c.Param("code"), viewerUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, module, nil)
}

// Catalog godoc
// @Summary Machine-readable module catalog
// @Description Public listing of all available modules for external consumers
// @Tags Modules
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /api/modules [get]
func (h *ModuleHandler) Catalog(c *gin.Context) {
	summaries, err := h.service.Catalog(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summaries, nil)
}

// Create godoc
// @Summary Create module
// @Tags Modules
// @Accept json
// @Produce json
// @Param payload body service.CreateModuleRequest true "Module payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/modules [post]
func (h *ModuleHandler) Create(c *gin.Context) {
	var req service.CreateModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	module, err := h.service.Create(c.Request.Context(), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, module)
}

// Update godoc
// @Summary Update module
// @Tags Modules
// @Accept json
// @Produce json
// @Param id path string true "Module ID"
// @Param payload body service.UpdateModuleRequest true "Module payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/modules/{id} [put]
func (h *ModuleHandler) Update(c *gin.Context) {
	var req service.UpdateModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	module, err := h.service.Update(c.Request.Context(), c.Param("id"), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, module, nil)
}

// Delete godoc
// @Summary Delete module
// @Tags Modules
// @Produce json
// @Param id path string true "Module ID"
// @Success 204 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/modules/{id} [delete]
func (h *ModuleHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetAvailability godoc
// @Summary Bulk set module availability
// @Tags Modules
// @Accept json
// @Produce json
// @Param payload body object true "Module ids and availability flag"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/modules/availability [post]
func (h *ModuleHandler) SetAvailability(c *gin.Context) {
	var payload struct {
		IDs       []string `json:"ids" binding:"required"`
		Available bool     `json:"available"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	changed, err := h.service.SetAvailability(c.Request.Context(), payload.IDs, payload.Available, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"changed": changed}, nil)
}
