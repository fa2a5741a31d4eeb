package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repository aggregates every persistence port the services depend on.
type Repository interface {
	Template() TemplateRepository
	Assessment() AssessmentRepository

	// Two-tier writer used by the link issuer
	LinkWriter() LinkWriter

	// Short-lived, Redis backed
	PendingSelection() PendingSelectionRepository

	// Read-only view of Casdoor users
	User() UserRepository

	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	Ping(ctx context.Context) error
	Close() error
}

type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

var (
	ErrNotFound           = errors.New("record not found")
	ErrPermissionDenied   = errors.New("write rejected by row level security")
	ErrPrivilegedDisabled = errors.New("privileged write path not configured")
	ErrDuplicate          = errors.New("duplicate key")
)

// IsDuplicateError reports whether a create collided with a unique index.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey)
}

// IsNotFoundError reports whether err means the row or key does not exist.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
