package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/services"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/utils"
)

type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items  interface{} `json:"items"`
	Total  int64       `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// BaseHandler carries the logger shared by every handler.
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.GetLogger(c, h.logger).Info(msg, args...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	utils.GetLogger(c, h.logger).Error(msg, append(args, "error", err)...)
}

func (h *BaseHandler) RespondWithError(c *gin.Context, status int, message string, details interface{}) {
	c.JSON(status, ErrorResponse{Message: message, Details: details})
}

// handleServiceError maps the service error taxonomy onto HTTP statuses.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		h.RespondWithError(c, http.StatusBadRequest, "Validation failed", validationErrors)
		return
	}

	var authErr *services.AuthorizationError
	if errors.As(err, &authErr) {
		h.RespondWithError(c, http.StatusForbidden, "Access denied", map[string]interface{}{
			"resource": authErr.Resource,
			"action":   authErr.Action,
			"reason":   authErr.Reason,
		})
		return
	}

	// FallbackExhausted wraps a PersistenceConflict, so it is checked first.
	var exhausted *services.FallbackExhausted
	if errors.As(err, &exhausted) {
		h.LogError(c, err, "Link issuance exhausted privileged fallback", "assessment_id", exhausted.AssessmentID)
		h.RespondWithError(c, http.StatusServiceUnavailable, "Public link could not be issued", map[string]interface{}{
			"assessment_id": exhausted.AssessmentID,
			"retryable":     false,
		})
		return
	}

	var notFound *services.NotFoundError
	if errors.As(err, &notFound) {
		if notFound.Fatal {
			h.LogError(c, err, "Missing configuration", "resource", notFound.Resource)
		}
		h.RespondWithError(c, http.StatusNotFound, notFound.Error(), map[string]interface{}{
			"resource": notFound.Resource,
			"fatal":    notFound.Fatal,
		})
		return
	}

	var conflict *services.PersistenceConflict
	if errors.As(err, &conflict) {
		h.RespondWithError(c, http.StatusConflict, "Resource was modified concurrently", map[string]interface{}{
			"resource":  conflict.Resource,
			"operation": conflict.Operation,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrLinkExpired):
		h.RespondWithError(c, http.StatusGone, "Public link has expired", nil)
	case errors.Is(err, services.ErrInvalidTransition):
		h.RespondWithError(c, http.StatusConflict, "Invalid status transition", err.Error())
	case errors.Is(err, services.ErrTemplateExists):
		h.RespondWithError(c, http.StatusConflict, "Template version already exists", nil)
	case errors.Is(err, services.ErrSelectionMissing):
		h.RespondWithError(c, http.StatusNotFound, "No pending template selection", nil)
	case errors.Is(err, services.ErrNotFound):
		h.RespondWithError(c, http.StatusNotFound, "Resource not found", nil)
	default:
		h.LogError(c, err, "Unexpected service error")
		h.RespondWithError(c, http.StatusInternalServerError, "Internal server error", nil)
	}
}

// bindJSON decodes the body and writes a 400 on failure.
func (h *BaseHandler) bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return false
	}
	return true
}

// actor returns the authenticated actor or writes a 401.
func (h *BaseHandler) actor(c *gin.Context) (*models.Actor, bool) {
	actor, err := GetActorFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "User not authenticated", nil)
		return nil, false
	}
	return actor, true
}

// parsePagination reads limit and offset query parameters.
func parsePagination(c *gin.Context) (limit, offset int) {
	limit = 20
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = min(v, 100)
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
