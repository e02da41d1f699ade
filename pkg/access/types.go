package access

import (
	"fmt"
	"strings"
	"time"
)

// Institution represents a federated institution that registers
// applications and invites guests.
type Institution struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	HomeDomain  string    `json:"home_domain"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProvisioningMode selects how role membership changes are pushed to an
// application's remote system.
type ProvisioningMode string

const (
	// ProvisioningDisabled means no outbound provisioning at all.
	ProvisioningDisabled ProvisioningMode = "disabled"
	// ProvisioningWebhook pushes SCIM calls to an HTTP endpoint.
	ProvisioningWebhook ProvisioningMode = "webhook"
	// ProvisioningEmailHook mails SCIM payloads to a human recipient.
	ProvisioningEmailHook ProvisioningMode = "email_hook"
)

// GroupUpdateMode selects how membership updates are shaped: a full
// member-list replacement via PUT, or a single add/remove delta via
// PATCH. Kept as an explicit per-application setting, never inferred.
type GroupUpdateMode string

const (
	UpdateFullReplace GroupUpdateMode = "full_replace"
	UpdateIncremental GroupUpdateMode = "incremental"
)

// Application represents an institution-scoped remote system that
// receives provisioning calls for its roles.
type Application struct {
	ID            int64            `json:"id"`
	InstitutionID int64            `json:"institution_id"`
	Name          string           `json:"name"`
	DisplayName   string           `json:"display_name"`
	Mode          ProvisioningMode `json:"provisioning_mode"`
	UpdateMode    GroupUpdateMode  `json:"update_mode"`

	// Webhook configuration, only meaningful when Mode is webhook.
	EndpointURL      string `json:"endpoint_url,omitempty"`
	EndpointUsername string `json:"endpoint_username,omitempty"`
	EndpointPassword string `json:"-"`

	// EmailHookAddress receives payload notifications when Mode is
	// email_hook.
	EmailHookAddress string `json:"email_hook_address,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Institution is populated by store queries that join the owning
	// institution.
	Institution *Institution `json:"-"`
}

// ProvisioningEnabled reports whether mutations on this application's
// roles should reach the synchronizer at all.
func (a *Application) ProvisioningEnabled() bool {
	return a.Mode == ProvisioningWebhook || a.Mode == ProvisioningEmailHook
}

// UpdateVerb returns the HTTP verb used for update calls to this
// application, derived from its explicit update mode.
func (a *Application) UpdateVerb() string {
	if a.UpdateMode == UpdateIncremental {
		return "PATCH"
	}
	return "PUT"
}

// Validate rejects invalid provisioning configurations before they are
// saved. A misconfigured application must never reach the synchronizer.
func (a *Application) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("application name is required")
	}
	switch a.Mode {
	case ProvisioningDisabled:
		return nil
	case ProvisioningWebhook:
		if a.EmailHookAddress != "" {
			return fmt.Errorf("application %q: webhook and email hook may not both be configured", a.Name)
		}
		if a.EndpointURL == "" || a.EndpointUsername == "" || a.EndpointPassword == "" {
			return fmt.Errorf("application %q: webhook provisioning requires endpoint URL and credentials", a.Name)
		}
		return nil
	case ProvisioningEmailHook:
		if a.EndpointURL != "" {
			return fmt.Errorf("application %q: webhook and email hook may not both be configured", a.Name)
		}
		if a.EmailHookAddress == "" {
			return fmt.Errorf("application %q: email hook provisioning requires a recipient address", a.Name)
		}
		return nil
	default:
		return fmt.Errorf("application %q: unknown provisioning mode %q", a.Name, a.Mode)
	}
}

// Role represents a named group on an application. RemoteGroupID holds
// the service provider's identifier once the group exists remotely; it
// is assigned at most once and stable thereafter.
type Role struct {
	ID            int64     `json:"id"`
	ApplicationID int64     `json:"application_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	RemoteGroupID string    `json:"remote_group_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Application is populated by store queries that join the owning
	// application and institution.
	Application *Application `json:"-"`
}

// User represents a guest principal.
type User struct {
	ID            int64     `json:"id"`
	PrincipalName string    `json:"principal_name"`
	Email         string    `json:"email"`
	GivenName     string    `json:"given_name"`
	FamilyName    string    `json:"family_name"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Roles holds the user's memberships when loaded with
	// UserWithRoles or UserByPrincipalName.
	Roles []*UserRole `json:"roles,omitempty"`
}

// DisplayName returns the name shown in provisioning payloads.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.GivenName + " " + u.FamilyName)
	if name == "" {
		return u.PrincipalName
	}
	return name
}

// UserRole joins a user to a role. RemoteMemberID holds the service
// provider's identifier for the user's account on the role's
// application; every membership of one user under one application
// shares the same value (one remote account per user per application).
type UserRole struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	RoleID         int64     `json:"role_id"`
	RemoteMemberID string    `json:"remote_member_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`

	// User and Role are populated by store queries that join them.
	User *User `json:"-"`
	Role *Role `json:"-"`
}
