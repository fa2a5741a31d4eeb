package repositories

import (
	"context"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
)

// UserRepository resolves actors from the identity provider. The service
// does not own user data.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.Actor, error)
	GetByEmail(ctx context.Context, email string) (*models.Actor, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
}
