package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unireg/unireg-api/internal/models"
	"github.com/unireg/unireg-api/internal/service"
	appErrors "github.com/unireg/unireg-api/pkg/errors"
	"github.com/unireg/unireg-api/pkg/response"
)

// PageHandler serves editable site page content.
type PageHandler struct {
	service *service.PageService
}

// NewPageHandler constructs a page handler.
func NewPageHandler(svc *service.PageService) *PageHandler {
	return &PageHandler{service: svc}
}

// Get godoc
// @Summary Get page content by key
// @Tags Pages
// @Produce json
// @Param key path string true "Page key" Enums(home, about, contact, modules_list)
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /pages/{key} [get]
func (h *PageHandler) Get(c *gin.Context) {
	page, err := h.service.Get(c.Request.Context(), models.PageKey(c.Param("key")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page, nil)
}

// List godoc
// @Summary List all editable pages
// @Tags Pages
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/pages [get]
func (h *PageHandler) List(c *gin.Context) {
	pages, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pages, nil)
}

// Update godoc
// @Summary Update page content
// @Tags Pages
// @Accept json
// @Produce json
// @Param key path string true "Page key"
// @Param payload body service.UpdatePageRequest true "Page payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/pages/{key} [put]
func (h *PageHandler) Update(c *gin.Context) {
	var req service.UpdatePageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	page, err := h.service.Update(c.Request.Context(), models.PageKey(c.Param("key")), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page, nil)
}
