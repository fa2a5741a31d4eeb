package handlers

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/catalog"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/services"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/utils"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/validator"
)

// maxImportSize caps uploaded catalog files.
const maxImportSize = 8 << 20

type TemplateHandler struct {
	BaseHandler
	templates services.TemplateService
}

func NewTemplateHandler(templates services.TemplateService, logger utils.Logger) *TemplateHandler {
	return &TemplateHandler{
		BaseHandler: NewBaseHandler(logger),
		templates:   templates,
	}
}

// CreateTemplate creates a questionnaire template
// @Summary Create template
// @Tags templates
// @Accept json
// @Produce json
// @Param template body validator.TemplateCreateRequest true "Template"
// @Success 201 {object} models.Template
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /templates [post]
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req validator.TemplateCreateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Creating template", "family", req.Family, "version", req.Version)

	tmpl, err := h.templates.Create(c.Request.Context(), actor, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tmpl)
}

// ImportTemplate imports a catalog file uploaded as multipart "file" or as
// the raw request body
// @Summary Import template
// @Tags templates
// @Accept multipart/form-data
// @Produce json
// @Param format query string false "yaml or xlsx"
// @Param file formData file false "Catalog file"
// @Success 201 {object} models.Template
// @Failure 400 {object} ErrorResponse
// @Router /templates/import [post]
func (h *TemplateHandler) ImportTemplate(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	format := catalog.Format(strings.ToLower(c.Query("format")))
	var body io.Reader

	if fileHeader, err := c.FormFile("file"); err == nil {
		if fileHeader.Size > maxImportSize {
			h.RespondWithError(c, http.StatusRequestEntityTooLarge, "Catalog file too large", nil)
			return
		}
		f, err := fileHeader.Open()
		if err != nil {
			h.RespondWithError(c, http.StatusBadRequest, "Unreadable upload", err.Error())
			return
		}
		defer f.Close()
		body = f
		if format == "" {
			format = formatFromFilename(fileHeader.Filename)
		}
	} else {
		body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportSize)
	}
	if format == "" {
		format = catalog.FormatYAML
	}

	h.LogRequest(c, "Importing template", "format", format)

	tmpl, err := h.templates.Import(c.Request.Context(), actor, format, body)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tmpl)
}

// ListTemplates lists the tenant's templates
// @Summary List templates
// @Tags templates
// @Produce json
// @Param family query string false "Family"
// @Success 200 {object} ListResponse
// @Router /templates [get]
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	filters := repositories.TemplateFilters{
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "asc"),
	}
	filters.Limit, filters.Offset = parsePagination(c)
	if family := c.Query("family"); family != "" {
		filters.Family = &family
	}

	items, total, err := h.templates.List(c.Request.Context(), actor, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Items: items, Total: total, Limit: filters.Limit, Offset: filters.Offset})
}

// GetTemplate returns one template
// @Summary Get template
// @Tags templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} models.Template
// @Failure 404 {object} ErrorResponse
// @Router /templates/{id} [get]
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	tmpl, err := h.templates.GetByID(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, tmpl)
}

// SeedDefault installs the built-in catalog for the tenant
// @Summary Seed default template
// @Tags templates
// @Produce json
// @Success 200 {object} models.Template
// @Router /templates/seed-default [post]
func (h *TemplateHandler) SeedDefault(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Seeding default template", "tenant_id", actor.TenantID)

	tmpl, err := h.templates.SeedDefault(c.Request.Context(), actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, tmpl)
}

func formatFromFilename(name string) catalog.Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return catalog.FormatXLSX
	case ".yaml", ".yml":
		return catalog.FormatYAML
	default:
		return ""
	}
}
