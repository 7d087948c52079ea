package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unireg/unireg-api/internal/dto"
	"github.com/unireg/unireg-api/internal/service"
	appErrors "github.com/unireg/unireg-api/pkg/errors"
	"github.com/unireg/unireg-api/pkg/response"
)

// RegistrationHandler exposes the registration engine over HTTP.
type RegistrationHandler struct {
	service *service.RegistrationService
}

// NewRegistrationHandler creates a new handler.
func NewRegistrationHandler(svc *service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{service: svc}
}

// outcomeStatus maps an engine outcome to its HTTP status. The outcome body
// is returned unchanged so clients always get the kind, message and redirect.
func outcomeStatus(kind dto.OutcomeKind) int {
	switch kind {
	case dto.OutcomeSuccess, dto.OutcomeAlreadyRegistered:
		return http.StatusOK
	case dto.OutcomeNotFound:
		return http.StatusNotFound
	case dto.OutcomeIneligible:
		return http.StatusUnprocessableEntity
	case dto.OutcomeFull:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Register godoc
// @Summary Register for a module
// @Description Register the authenticated student into a module by code
// @Tags Registrations
// @Produce json
// @Param code path string true "Module code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /modules/{code}/register [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	outcome := h.service.Register(c.Request.Context(), claims.UserID, c.Param("code"), requestMeta(c))
	response.JSON(c, outcomeStatus(outcome.Kind), outcome, nil)
}

// Unregister godoc
// @Summary Unregister from a module
// @Description Remove the authenticated student's registration for a module
// @Tags Registrations
// @Produce json
// @Param code path string true "Module code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /modules/{code}/register [delete]
func (h *RegistrationHandler) Unregister(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	outcome := h.service.Unregister(c.Request.Context(), claims.UserID, c.Param("code"), requestMeta(c))
	response.JSON(c, outcomeStatus(outcome.Kind), outcome, nil)
}

// MyRegistrations godoc
// @Summary List own registrations
// @Description Returns the authenticated student's registrations, newest first
// @Tags Registrations
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /registrations/me [get]
func (h *RegistrationHandler) MyRegistrations(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	regs, err := h.service.MyRegistrations(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, regs, nil)
}

// EligibleModules godoc
// @Summary List modules open to the student
// @Description Modules the authenticated student can register for right now
// @Tags Registrations
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /registrations/eligible [get]
func (h *RegistrationHandler) EligibleModules(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	modules, err := h.service.ListEligibleModules(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, modules, nil)
}
