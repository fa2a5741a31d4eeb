package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/services"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/utils"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/validator"
)

type AssessmentHandler struct {
	BaseHandler
	lifecycle services.LifecycleService
	links     services.LinkService
	validator *validator.Validator
}

func NewAssessmentHandler(
	lifecycle services.LifecycleService,
	links services.LinkService,
	validator *validator.Validator,
	logger utils.Logger,
) *AssessmentHandler {
	return &AssessmentHandler{
		BaseHandler: NewBaseHandler(logger),
		lifecycle:   lifecycle,
		links:       links,
		validator:   validator,
	}
}

// SelectTemplate remembers a tentative template choice for a vendor
// @Summary Select template
// @Tags assessments
// @Accept json
// @Produce json
// @Param selection body validator.SelectionRequest true "Selection"
// @Success 201 {object} models.PendingSelection
// @Failure 400 {object} ErrorResponse
// @Router /assessments/selection [post]
func (h *AssessmentHandler) SelectTemplate(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req validator.SelectionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Selecting template", "vendor_id", req.VendorID)

	selection, err := h.lifecycle.SelectTemplate(c.Request.Context(), actor, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, selection)
}

// CreateDraft builds an ephemeral draft from the body or from the pending selection
// @Summary Create draft assessment
// @Tags assessments
// @Accept json
// @Produce json
// @Param draft body validator.DraftRequest true "Draft"
// @Success 201 {object} models.Assessment
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /assessments/drafts [post]
func (h *AssessmentHandler) CreateDraft(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req validator.DraftRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Creating draft", "vendor_id", req.VendorID, "from_selection", req.FromSelection)

	var (
		draft *models.Assessment
		err   error
	)
	if req.FromSelection {
		draft, err = h.lifecycle.DraftFromSelection(c.Request.Context(), actor, req.VendorID)
	} else {
		draft, err = h.lifecycle.NewDraft(c.Request.Context(), actor, &req)
	}
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, draft)
}

// Materialize stores an ephemeral draft
// @Summary Materialize draft
// @Tags assessments
// @Accept json
// @Produce json
// @Param assessment body models.Assessment true "Ephemeral assessment"
// @Success 201 {object} models.Assessment
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /assessments/materialize [post]
func (h *AssessmentHandler) Materialize(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var draft models.Assessment
	if !h.bindJSON(c, &draft) {
		return
	}

	h.LogRequest(c, "Materializing assessment", "assessment_id", draft.ID, "vendor_id", draft.VendorID)

	stored, err := h.lifecycle.Materialize(c.Request.Context(), &draft, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, stored)
}

// GetAssessment returns an assessment with template, progress and link
// @Summary Get assessment
// @Tags assessments
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 200 {object} services.AssessmentDetails
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /assessments/{id} [get]
func (h *AssessmentHandler) GetAssessment(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	id := c.Param("id")
	h.LogRequest(c, "Getting assessment", "assessment_id", id)

	details, err := h.lifecycle.GetDetails(c.Request.Context(), id, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, details)
}

// ListAssessments lists the tenant's assessments
// @Summary List assessments
// @Tags assessments
// @Produce json
// @Param status query string false "Status"
// @Param vendor_id query string false "Vendor"
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {object} ListResponse
// @Router /assessments [get]
func (h *AssessmentHandler) ListAssessments(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	filters := repositories.AssessmentFilters{
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}
	filters.Limit, filters.Offset = parsePagination(c)
	if status := c.Query("status"); status != "" {
		s := models.AssessmentStatus(status)
		filters.Status = &s
	}
	if vendorID := c.Query("vendor_id"); vendorID != "" {
		filters.VendorID = &vendorID
	}
	if priority := c.Query("priority"); priority != "" {
		p := models.Priority(priority)
		filters.Priority = &p
	}
	if dueBefore := c.Query("due_before"); dueBefore != "" {
		t, err := time.Parse(time.RFC3339, dueBefore)
		if err != nil {
			h.RespondWithError(c, http.StatusBadRequest, "Invalid due_before", err.Error())
			return
		}
		filters.DueBefore = &t
	}

	items, total, err := h.lifecycle.List(c.Request.Context(), actor, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Items: items, Total: total, Limit: filters.Limit, Offset: filters.Offset})
}

// UpdateStatus performs a manual status transition
// @Summary Update assessment status
// @Tags assessments
// @Accept json
// @Produce json
// @Param id path string true "Assessment ID"
// @Param status body validator.StatusUpdateRequest true "Target status"
// @Success 200 {object} models.Assessment
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /assessments/{id}/status [put]
func (h *AssessmentHandler) UpdateStatus(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req validator.StatusUpdateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	id := c.Param("id")
	h.LogRequest(c, "Updating assessment status", "assessment_id", id, "status", req.Status)

	if req.Status == models.StatusCompleted {
		result, err := h.lifecycle.Complete(c.Request.Context(), id, actor)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	assessment, err := h.lifecycle.Transition(c.Request.Context(), id, actor, req.Status)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, assessment)
}

// IssueLink returns the assessment's public link, issuing one if needed
// @Summary Issue or refresh public link
// @Tags assessments
// @Accept json
// @Produce json
// @Param link body validator.LinkRequest true "Stored id or ephemeral assessment"
// @Success 200 {object} models.PublicLink
// @Failure 403 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /assessments/link [post]
func (h *AssessmentHandler) IssueLink(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req validator.LinkRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	assessment := req.Assessment
	if req.AssessmentID != "" {
		stored, err := h.lifecycle.GetByID(c.Request.Context(), req.AssessmentID, actor)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		assessment = stored
	}
	if assessment == nil {
		h.RespondWithError(c, http.StatusBadRequest, "Validation failed", services.ValidationErrors{{
			Field: "assessment_id", Rule: "required", Message: "assessment_id or assessment is required",
		}})
		return
	}

	h.LogRequest(c, "Issuing public link", "assessment_id", assessment.ID)

	link, err := h.links.IssueOrRefreshLink(c.Request.Context(), assessment, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, link)
}

// ExpireOverdue runs one expiry sweep
// @Summary Expire overdue assessments
// @Tags assessments
// @Produce json
// @Success 200 {object} SuccessResponse
// @Router /assessments/expire [post]
func (h *AssessmentHandler) ExpireOverdue(c *gin.Context) {
	h.LogRequest(c, "Running expiry sweep")

	expired, err := h.lifecycle.ExpireOverdue(c.Request.Context(), time.Now().UTC())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Expiry sweep completed",
		Data:    gin.H{"expired": expired},
	})
}
