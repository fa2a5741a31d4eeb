package services

import (
	"errors"
	"fmt"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/validator"
)

// ===== VALIDATION =====

type ValidationError = validator.ValidationError
type ValidationErrors = validator.ValidationErrors

func newValidationError(field, rule, message string, value interface{}) ValidationErrors {
	return ValidationErrors{{Field: field, Rule: rule, Message: message, Value: value}}
}

// ===== SENTINELS =====

var (
	ErrNotFound          = errors.New("not found")
	ErrLinkExpired       = errors.New("public link expired")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTemplateExists    = errors.New("template version already exists")
	ErrSelectionMissing  = errors.New("no pending template selection")
)

// ===== TYPED ERRORS =====

// AuthorizationError is a tenant or role mismatch. It is never retried.
type AuthorizationError struct {
	UserID         string
	ActorTenant    string
	ResourceTenant string
	Resource       string
	ResourceID     string
	Action         string
	Reason         string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %s may not %s %s %s: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewAuthorizationError(actor *models.Actor, resource, resourceID, resourceTenant, action, reason string) *AuthorizationError {
	err := &AuthorizationError{
		ResourceTenant: resourceTenant,
		Resource:       resource,
		ResourceID:     resourceID,
		Action:         action,
		Reason:         reason,
	}
	if actor != nil {
		err.UserID = actor.UserID
		err.ActorTenant = actor.TenantID
	}
	return err
}

// NotFoundError reports an absent assessment, template, vendor or link.
// Fatal marks configuration errors that retrying cannot fix.
type NotFoundError struct {
	Resource string
	ID       string
	Fatal    bool
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if e.Fatal {
		return fmt.Sprintf("%s %q not found (fatal)", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// PersistenceConflict is a conditional write that matched zero rows. The
// cause is ambiguous between a policy block and stale state.
type PersistenceConflict struct {
	Resource  string
	ID        string
	Operation string
}

func (e *PersistenceConflict) Error() string {
	return fmt.Sprintf("%s on %s %s matched no rows", e.Operation, e.Resource, e.ID)
}

// FallbackExhausted means the privileged retry failed too. Operators must
// be told; callers must not retry.
type FallbackExhausted struct {
	AssessmentID string
	TenantID     string
	Cause        error
}

func (e *FallbackExhausted) Error() string {
	return fmt.Sprintf("link issuance for assessment %s exhausted privileged fallback: %v", e.AssessmentID, e.Cause)
}

func (e *FallbackExhausted) Unwrap() error {
	return e.Cause
}
