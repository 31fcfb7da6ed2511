package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

// Roles
const (
	RoleReporter  Role = "reporter"
	RoleResponder Role = "responder"
	RoleManager   Role = "manager"
	RoleAdmin     Role = "admin"
)

var AllRoles = []Role{RoleReporter, RoleResponder, RoleManager, RoleAdmin}

func (r Role) Valid() bool {
	switch r {
	case RoleReporter, RoleResponder, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Assignable reports whether incidents may be assigned to a profile with this role.
func (r Role) Assignable() bool {
	switch r {
	case RoleResponder, RoleManager, RoleAdmin:
		return true
	case RoleReporter:
		return false
	}
	return false
}

// AssignableRoles lists the roles an incident may be assigned to.
var AssignableRoles = []Role{RoleResponder, RoleManager, RoleAdmin}

type Profile struct {
	ID        uuid.UUID  `json:"id"`
	Username  string     `json:"username"`
	Role      Role       `json:"role"`
	Team      *string    `json:"team,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// ProfileUpdate carries admin-mediated profile changes. Nil fields are left untouched;
// ClearTeam resets team to null.
type ProfileUpdate struct {
	Username  *string
	Role      *Role
	Team      *string
	ClearTeam bool
}
