package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/config"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories/casdoor"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/utils"
)

const actorContextKey = "actor"

// TokenParser validates a bearer token. *casdoorsdk.Client satisfies it.
type TokenParser interface {
	ParseJwtToken(token string) (*casdoorsdk.Claims, error)
}

// CasdoorAuthMiddleware provides authentication using Casdoor SDK
type CasdoorAuthMiddleware struct {
	parser   TokenParser
	userRepo repositories.UserRepository
	logger   utils.Logger
}

// NewCasdoorAuthMiddleware creates a new Casdoor authentication middleware
func NewCasdoorAuthMiddleware(cfg config.CasdoorConfig, userRepo repositories.UserRepository, logger utils.Logger) *CasdoorAuthMiddleware {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Cert,
		cfg.Organization,
		cfg.Application,
	)
	return NewCasdoorAuthMiddlewareWithParser(client, userRepo, logger)
}

func NewCasdoorAuthMiddlewareWithParser(parser TokenParser, userRepo repositories.UserRepository, logger utils.Logger) *CasdoorAuthMiddleware {
	return &CasdoorAuthMiddleware{
		parser:   parser,
		userRepo: userRepo,
		logger:   logger,
	}
}

// AuthMiddleware returns a Gin middleware function for Casdoor authentication
func (cam *CasdoorAuthMiddleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			cam.abort(c, "authorization header missing")
			return
		}

		// "Bearer <token>"
		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			cam.abort(c, "invalid authorization header format")
			return
		}

		claims, err := cam.parser.ParseJwtToken(tokenParts[1])
		if err != nil {
			cam.abort(c, fmt.Sprintf("invalid token: %v", err))
			return
		}

		actor, err := cam.actorFromClaims(c, claims)
		if err != nil {
			cam.abort(c, fmt.Sprintf("failed to extract user info: %v", err))
			return
		}

		c.Set(actorContextKey, actor)
		c.Set("user_id", actor.UserID)
		c.Set("user_role", actor.Role)
		c.Set("user_email", actor.Email)
		c.Set("tenant_id", actor.TenantID)

		c.Next()
	}
}

// RequireRoleMiddleware checks if user has required role
func (cam *CasdoorAuthMiddleware) RequireRoleMiddleware(requiredRoles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := GetActorFromContext(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Message: "forbidden",
				Details: err.Error(),
			})
			return
		}

		for _, role := range requiredRoles {
			if actor.Role == role || actor.Role == models.RoleAdmin {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
			Message: "forbidden",
			Details: fmt.Sprintf("insufficient permissions, required role: %v", requiredRoles),
		})
	}
}

// actorFromClaims prefers the directory's current view of the user so role
// changes apply before the token expires. The tenant always comes from the
// token.
func (cam *CasdoorAuthMiddleware) actorFromClaims(c *gin.Context, claims *casdoorsdk.Claims) (*models.Actor, error) {
	actor := casdoor.ToActor(&claims.User)
	if actor == nil || actor.UserID == "" {
		return nil, fmt.Errorf("invalid user ID in token")
	}
	if actor.TenantID == "" {
		return nil, fmt.Errorf("token carries no organization")
	}

	if cam.userRepo != nil {
		current, err := cam.userRepo.GetByID(c.Request.Context(), actor.UserID)
		if err != nil {
			utils.GetLogger(c, cam.logger).Debug("Falling back to token claims", "user_id", actor.UserID, "error", err)
		} else if current.TenantID == actor.TenantID {
			actor.Role = current.Role
		}
	}
	return actor, nil
}

func (cam *CasdoorAuthMiddleware) abort(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
		Message: "unauthorized",
		Details: message,
	})
}

// GetActorFromContext returns the actor stored by AuthMiddleware.
func GetActorFromContext(c *gin.Context) (*models.Actor, error) {
	value, exists := c.Get(actorContextKey)
	if !exists {
		return nil, fmt.Errorf("actor not found in context")
	}
	actor, ok := value.(*models.Actor)
	if !ok || actor == nil {
		return nil, fmt.Errorf("invalid actor type in context")
	}
	return actor, nil
}
