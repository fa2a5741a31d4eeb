package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/services"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/utils"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/validator"
)

type HandlerManager struct {
	assessmentHandler *AssessmentHandler
	templateHandler   *TemplateHandler
	publicHandler     *PublicHandler
	authMiddleware    *CasdoorAuthMiddleware
	health            func(ctx context.Context) error
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	authMiddleware *CasdoorAuthMiddleware,
) *HandlerManager {
	return &HandlerManager{
		assessmentHandler: NewAssessmentHandler(serviceManager.Lifecycle(), serviceManager.Link(), validator, logger),
		templateHandler:   NewTemplateHandler(serviceManager.Template(), logger),
		publicHandler:     NewPublicHandler(serviceManager.Response(), logger),
		authMiddleware:    authMiddleware,
		health:            serviceManager.HealthCheck,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	writers := hm.authMiddleware.RequireRoleMiddleware(models.RoleAnalyst, models.RoleReviewer)

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		templates := v1.Group("/templates")
		{
			templates.GET("", hm.templateHandler.ListTemplates)
			templates.GET("/:id", hm.templateHandler.GetTemplate)

			templates.POST("", writers, hm.templateHandler.CreateTemplate)
			templates.POST("/import", writers, hm.templateHandler.ImportTemplate)
			templates.POST("/seed-default", writers, hm.templateHandler.SeedDefault)
		}

		assessments := v1.Group("/assessments")
		{
			assessments.GET("", hm.assessmentHandler.ListAssessments)
			assessments.GET("/:id", hm.assessmentHandler.GetAssessment)

			assessments.POST("/selection", writers, hm.assessmentHandler.SelectTemplate)
			assessments.POST("/drafts", writers, hm.assessmentHandler.CreateDraft)
			assessments.POST("/materialize", writers, hm.assessmentHandler.Materialize)
			assessments.POST("/link", writers, hm.assessmentHandler.IssueLink)

			// Approve and reject are further restricted to reviewers by the service
			assessments.PUT("/:id/status", writers, hm.assessmentHandler.UpdateStatus)

			assessments.POST("/expire", hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin), hm.assessmentHandler.ExpireOverdue)
		}
	}

	// Public respondent routes, authenticated by the link token alone
	public := router.Group("/vendor-assessment/:token")
	public.Use(PublicLinkMiddleware())
	{
		public.GET("", hm.publicHandler.GetAssessment)
		public.POST("/answers", hm.publicHandler.SubmitAnswers)
		public.GET("/score", hm.publicHandler.GetScore)
		public.GET("/stats", hm.publicHandler.GetStats)
		public.POST("/submit", hm.publicHandler.Submit)
	}

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := hm.health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": "vendor-assessment-service",
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "vendor-assessment-service",
		})
	})
}
