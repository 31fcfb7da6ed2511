// Package rbac is the role policy: it maps an actor and an optional incident to the
// capabilities the actor holds. Evaluation is pure and total; unknown input yields the
// empty set rather than an error.
package rbac

import (
	"strings"

	"github.com/google/uuid"
	"github.com/incidentdesk/backend/internal/models"
)

type Capability uint16

// Capabilities
const (
	CapView Capability = 1 << iota
	CapCreate
	CapComment
	CapEditStatus
	CapEditSeverity
	CapEditAssignment
	CapDelete
	CapManageUsers
	CapViewAudit
)

var capabilityNames = map[Capability]string{
	CapView:           "VIEW",
	CapCreate:         "CREATE",
	CapComment:        "COMMENT",
	CapEditStatus:     "EDIT_STATUS",
	CapEditSeverity:   "EDIT_SEVERITY",
	CapEditAssignment: "EDIT_ASSIGNMENT",
	CapDelete:         "DELETE",
	CapManageUsers:    "MANAGE_USERS",
	CapViewAudit:      "VIEW_AUDIT",
}

var allCapabilities = []Capability{
	CapView, CapCreate, CapComment, CapEditStatus, CapEditSeverity,
	CapEditAssignment, CapDelete, CapManageUsers, CapViewAudit,
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

type CapabilitySet uint16

func NewSet(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s |= CapabilitySet(c)
	}
	return s
}

func (s CapabilitySet) Has(c Capability) bool {
	return s&CapabilitySet(c) != 0
}

// Contains reports whether every capability in other is also in s.
func (s CapabilitySet) Contains(other CapabilitySet) bool {
	return s&other == other
}

func (s CapabilitySet) List() []Capability {
	var out []Capability
	for _, c := range allCapabilities {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s CapabilitySet) String() string {
	caps := s.List()
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, c.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}

var (
	setAll = NewSet(allCapabilities...)

	// Capabilities that do not depend on a specific incident.
	adminGlobal    = NewSet(CapCreate, CapManageUsers, CapViewAudit)
	managerGlobal  = NewSet(CapCreate)
	reporterGlobal = NewSet(CapCreate)

	managerOnIncident   = NewSet(CapView, CapCreate, CapComment, CapEditStatus, CapEditSeverity, CapEditAssignment)
	responderOnAssigned = NewSet(CapView, CapComment, CapEditStatus, CapEditSeverity)
	reporterOnOwn       = NewSet(CapView, CapCreate, CapComment)
)

// Capabilities computes what actor may do. With a nil incident only incident-independent
// capabilities (CREATE, MANAGE_USERS, VIEW_AUDIT) are returned.
func Capabilities(actor models.Profile, incident *models.Incident) CapabilitySet {
	switch actor.Role {
	case models.RoleAdmin:
		if incident == nil {
			return adminGlobal
		}
		return setAll
	case models.RoleManager:
		if incident == nil {
			return managerGlobal
		}
		return managerOnIncident
	case models.RoleResponder:
		if incident != nil && incident.IsAssignedTo(actor.ID) {
			return responderOnAssigned
		}
		return 0
	case models.RoleReporter:
		if incident != nil && incident.ReporterID == actor.ID {
			return reporterOnOwn
		}
		return reporterGlobal
	}
	return 0
}

// Can is shorthand for Capabilities(actor, incident).Has(c).
func Can(actor models.Profile, incident *models.Incident, c Capability) bool {
	return Capabilities(actor, incident).Has(c)
}

// CanOnAny reports whether actor holds c on at least some incident. Used for
// incident-independent listings such as assignable users.
func CanOnAny(actor models.Profile, c Capability) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return setAll.Has(c)
	case models.RoleManager:
		return managerOnIncident.Has(c)
	case models.RoleResponder:
		return responderOnAssigned.Has(c)
	case models.RoleReporter:
		return reporterOnOwn.Has(c)
	}
	return false
}

// VisibilityScope is the VIEW predicate in a form the store can push into its query.
type VisibilityScope struct {
	All        bool
	ReporterID *uuid.UUID
	AssigneeID *uuid.UUID
}

// None reports whether the scope admits no incident at all.
func (s VisibilityScope) None() bool {
	return !s.All && s.ReporterID == nil && s.AssigneeID == nil
}

func (s VisibilityScope) Allows(incident models.Incident) bool {
	switch {
	case s.All:
		return true
	case s.ReporterID != nil:
		return incident.ReporterID == *s.ReporterID
	case s.AssigneeID != nil:
		return incident.IsAssignedTo(*s.AssigneeID)
	}
	return false
}

// Scope returns the visibility predicate for actor. It must agree with
// Capabilities(actor, incident).Has(CapView) for every incident.
func Scope(actor models.Profile) VisibilityScope {
	id := actor.ID
	switch actor.Role {
	case models.RoleAdmin, models.RoleManager:
		return VisibilityScope{All: true}
	case models.RoleResponder:
		return VisibilityScope{AssigneeID: &id}
	case models.RoleReporter:
		return VisibilityScope{ReporterID: &id}
	}
	return VisibilityScope{}
}
