package models

type UserRole string

const (
	RoleViewer   UserRole = "viewer"
	RoleAnalyst  UserRole = "analyst"
	RoleReviewer UserRole = "reviewer"
	RoleAdmin    UserRole = "admin"
)

// Actor is the authenticated identity behind a request. TenantID is the
// isolation boundary every assessment and template is scoped to.
type Actor struct {
	UserID   string   `json:"user_id"`
	TenantID string   `json:"tenant_id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
}

// CanReview reports whether the actor may approve or reject assessments.
func (a *Actor) CanReview() bool {
	return a.Role == RoleReviewer || a.Role == RoleAdmin
}
