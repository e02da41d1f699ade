// Package invitations implements the invitation lifecycle: an
// administrator invites a guest to a set of roles, the guest accepts,
// and the accepted memberships are pushed through the provisioning
// synchronizer.
package invitations

import (
	"time"

	"github.com/fedid/guestsync/pkg/authority"
)

// Status is an invitation's lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusExpired  Status = "expired"
)

// Invitation represents an invitation to join a set of roles.
type Invitation struct {
	ID            int64           `json:"id"`
	InstitutionID int64           `json:"institution_id"`
	Email         string          `json:"email"`
	RoleIDs       []int64         `json:"role_ids"`
	IntendedLevel authority.Level `json:"intended_level"`
	Token         string          `json:"token,omitempty"`
	Message       string          `json:"message,omitempty"`
	Status        Status          `json:"status"`
	InvitedBy     string          `json:"invited_by"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
	AcceptedAt    *time.Time      `json:"accepted_at,omitempty"`
}

// CreateRequest is the request body for issuing an invitation.
type CreateRequest struct {
	Email         string  `json:"email"`
	RoleIDs       []int64 `json:"role_ids"`
	IntendedLevel string  `json:"intended_level,omitempty"`
	Message       string  `json:"message,omitempty"`
	ExpiryDays    int     `json:"expiry_days,omitempty"`
}

// AcceptRequest is the request body for accepting an invitation. The
// principal name comes from the accepting guest's federated login.
type AcceptRequest struct {
	PrincipalName string `json:"principal_name"`
	Email         string `json:"email"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}
