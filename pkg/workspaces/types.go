package workspaces

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a workspace does not exist
var ErrNotFound = errors.New("workspace not found")

// Role is a member's role within a workspace
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
	RoleGuest  Role = "GUEST"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMember, RoleGuest:
		return true
	}
	return false
}

// Workspace is a billing tenant
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StripeID  *string   `json:"stripeId,omitempty"`
	Plan      string    `json:"plan"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasCustomer reports whether the workspace already references a Stripe customer
func (w *Workspace) HasCustomer() bool {
	return w.StripeID != nil && *w.StripeID != ""
}

// MemberRole returns the role of userID in the workspace
func (w *Workspace) MemberRole(userID string) (Role, bool) {
	for _, m := range w.Members {
		if m.UserID == userID {
			return m.Role, true
		}
	}
	return "", false
}

// Member links a user to a workspace
type Member struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}
