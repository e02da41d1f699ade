// Package authority evaluates whether a principal may perform a
// mutation. Every mutation that can trigger provisioning is gated here,
// which is the invariant the synchronizer assumes is already enforced.
package authority

import (
	"fmt"
)

// Level is an ordered authority level. Higher levels imply every lower
// level within their scope.
type Level int

const (
	LevelGuest Level = iota
	LevelInviter
	LevelInstitutionAdmin
	LevelSuperUser
)

func (l Level) String() string {
	switch l {
	case LevelGuest:
		return "guest"
	case LevelInviter:
		return "inviter"
	case LevelInstitutionAdmin:
		return "institution_admin"
	case LevelSuperUser:
		return "super_user"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel parses a stored level name
func ParseLevel(s string) (Level, error) {
	switch s {
	case "guest":
		return LevelGuest, nil
	case "inviter":
		return LevelInviter, nil
	case "institution_admin":
		return LevelInstitutionAdmin, nil
	case "super_user":
		return LevelSuperUser, nil
	default:
		return LevelGuest, fmt.Errorf("unknown authority level %q", s)
	}
}

// Action identifies a gated operation.
type Action string

const (
	ActionManageApplications Action = "applications.manage"
	ActionManageRoles        Action = "roles.manage"
	ActionInviteUsers        Action = "users.invite"
	ActionDeleteUsers        Action = "users.delete"
	ActionManageFailures     Action = "provisioning.failures.manage"
)

// requiredLevel maps each action to the minimum level that may perform
// it within an institution.
var requiredLevel = map[Action]Level{
	ActionManageApplications: LevelInstitutionAdmin,
	ActionManageRoles:        LevelInstitutionAdmin,
	ActionInviteUsers:        LevelInviter,
	ActionDeleteUsers:        LevelInstitutionAdmin,
	ActionManageFailures:     LevelInstitutionAdmin,
}

// Grant is one institution-scoped authority grant.
type Grant struct {
	InstitutionID int64 `json:"institution_id"`
	Level         Level `json:"level"`
}

// Principal is an authenticated caller with their authority grants
// loaded. Token verification itself happens upstream; this package only
// evaluates what a verified principal may do.
type Principal struct {
	PrincipalName string  `json:"principal_name"`
	SuperUser     bool    `json:"super_user"`
	Grants        []Grant `json:"grants"`
}

// LevelFor returns the principal's level within an institution.
func (p *Principal) LevelFor(institutionID int64) Level {
	if p.SuperUser {
		return LevelSuperUser
	}
	level := LevelGuest
	for _, g := range p.Grants {
		if g.InstitutionID == institutionID && g.Level > level {
			level = g.Level
		}
	}
	return level
}

// Decision is the outcome of one authority check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}
