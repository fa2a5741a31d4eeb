package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/services"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/utils"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/validator"
)

// PublicHandler serves the unauthenticated respondent routes. The token in
// the path is the only credential and is never logged.
type PublicHandler struct {
	BaseHandler
	responses services.ResponseService
}

func NewPublicHandler(responses services.ResponseService, logger utils.Logger) *PublicHandler {
	return &PublicHandler{
		BaseHandler: NewBaseHandler(logger),
		responses:   responses,
	}
}

// GetAssessment returns the questionnaire and saved answers for a link
// @Summary Resolve public link
// @Tags public
// @Produce json
// @Param token path string true "Link token"
// @Success 200 {object} services.RespondentView
// @Failure 404 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /vendor-assessment/{token} [get]
func (h *PublicHandler) GetAssessment(c *gin.Context) {
	view, err := h.responses.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// SubmitAnswers stores a batch of answers
// @Summary Submit answers
// @Tags public
// @Accept json
// @Produce json
// @Param token path string true "Link token"
// @Param answers body validator.SubmitAnswersRequest true "Answers"
// @Success 200 {object} services.SubmissionResult
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /vendor-assessment/{token}/answers [post]
func (h *PublicHandler) SubmitAnswers(c *gin.Context) {
	var req validator.SubmitAnswersRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.responses.SubmitAnswers(c.Request.Context(), c.Param("token"), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Answers submitted", "assessment_id", result.AssessmentID, "accepted", len(result.Accepted))
	c.JSON(http.StatusOK, result)
}

// GetScore returns the live score
// @Summary Current score
// @Tags public
// @Produce json
// @Param token path string true "Link token"
// @Success 200 {object} scoring.Result
// @Router /vendor-assessment/{token}/score [get]
func (h *PublicHandler) GetScore(c *gin.Context) {
	score, err := h.responses.ComputeScore(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, score)
}

// GetStats returns answered/total counts
// @Summary Progress stats
// @Tags public
// @Produce json
// @Param token path string true "Link token"
// @Success 200 {object} scoring.Stats
// @Router /vendor-assessment/{token}/stats [get]
func (h *PublicHandler) GetStats(c *gin.Context) {
	stats, err := h.responses.ComputeStats(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Submit finalizes the questionnaire
// @Summary Finalize
// @Tags public
// @Produce json
// @Param token path string true "Link token"
// @Success 200 {object} services.CompletionResult
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /vendor-assessment/{token}/submit [post]
func (h *PublicHandler) Submit(c *gin.Context) {
	result, err := h.responses.Finalize(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Assessment submitted", "assessment_id", result.AssessmentID, "score", result.Score)
	c.JSON(http.StatusOK, result)
}
