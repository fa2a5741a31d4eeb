package casdoor

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/cache"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
)

// CasdoorConfig holds the configuration for Casdoor connection
type CasdoorConfig struct {
	Endpoint         string
	ClientID         string
	ClientSecret     string
	Certificate      string
	OrganizationName string
	ApplicationName  string
}

type UserCasdoor struct {
	client *casdoorsdk.Client
	cache  *cache.CacheHelper
}

func NewUserCasdoor(config CasdoorConfig, redisClient *redis.Client) repositories.UserRepository {
	client := casdoorsdk.NewClient(
		config.Endpoint,
		config.ClientID,
		config.ClientSecret,
		config.Certificate,
		config.OrganizationName,
		config.ApplicationName,
	)

	return &UserCasdoor{
		client: client,
		cache:  cache.NewCacheManager(redisClient).Actor,
	}
}

// ToActor maps a Casdoor user onto the service's authorization context.
// The Casdoor organization (the user's owner) is the tenant.
func ToActor(user *casdoorsdk.User) *models.Actor {
	if user == nil {
		return nil
	}
	return &models.Actor{
		UserID:   user.Id,
		TenantID: user.Owner,
		Email:    user.Email,
		FullName: user.DisplayName,
		Role:     RoleFor(user),
	}
}

// RoleFor picks the strongest role among the user's Casdoor roles.
func RoleFor(user *casdoorsdk.User) models.UserRole {
	if user.IsAdmin {
		return models.RoleAdmin
	}

	var roles []models.UserRole
	for _, role := range user.Roles {
		if role != nil {
			roles = append(roles, MapRole(role.Name))
		}
	}
	roles = append(roles, MapRole(user.Type))

	for _, candidate := range []models.UserRole{models.RoleAdmin, models.RoleReviewer, models.RoleAnalyst} {
		if slices.Contains(roles, candidate) {
			return candidate
		}
	}
	return models.RoleViewer
}

func MapRole(name string) models.UserRole {
	switch strings.ToLower(name) {
	case "admin", "administrator":
		return models.RoleAdmin
	case "reviewer", "approver", "risk-manager":
		return models.RoleReviewer
	case "analyst", "assessor":
		return models.RoleAnalyst
	default:
		return models.RoleViewer
	}
}

func (u *UserCasdoor) GetByID(ctx context.Context, id string) (*models.Actor, error) {
	var actor models.Actor
	err := u.cache.CacheOrExecute(ctx, "id:"+id, &actor, cache.ActorCacheConfig.TTL, func() (interface{}, error) {
		user, err := u.client.GetUserByUserId(id)
		if err != nil {
			return nil, fmt.Errorf("failed to get user from Casdoor: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
		}
		return ToActor(user), nil
	})
	if err != nil {
		return nil, err
	}
	return &actor, nil
}

func (u *UserCasdoor) GetByEmail(ctx context.Context, email string) (*models.Actor, error) {
	var actor models.Actor
	err := u.cache.CacheOrExecute(ctx, "email:"+email, &actor, cache.ActorCacheConfig.TTL, func() (interface{}, error) {
		user, err := u.client.GetUserByEmail(email)
		if err != nil {
			return nil, fmt.Errorf("failed to get user by email from Casdoor: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("user with email %s: %w", email, repositories.ErrNotFound)
		}
		return ToActor(user), nil
	})
	if err != nil {
		return nil, err
	}
	return &actor, nil
}

func (u *UserCasdoor) ExistsByID(ctx context.Context, id string) (bool, error) {
	_, err := u.GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
