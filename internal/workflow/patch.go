package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/incidentdesk/backend/internal/apperr"
)

// Patch field names as they appear on the wire.
const (
	FieldStatus     = "status"
	FieldSeverity   = "severity"
	FieldAssignedTo = "assigned_to"
)

// Patch is a partial set of incident changes. Values are kept raw until validation so that
// capability checks run before value checks.
type Patch struct {
	Status     *string
	Severity   *string
	AssignedTo *Assignment
	// Unknown holds field names that are not patchable.
	Unknown []string
}

// Assignment is a requested assignee change; a nil To clears the assignment.
type Assignment struct {
	To *string
}

func SetStatus(s string) *string { return &s }

func SetSeverity(s string) *string { return &s }

func AssignTo(id uuid.UUID) *Assignment {
	s := id.String()
	return &Assignment{To: &s}
}

func Unassign() *Assignment {
	return &Assignment{}
}

// Empty reports whether the patch names no field at all.
func (p Patch) Empty() bool {
	return p.Status == nil && p.Severity == nil && p.AssignedTo == nil && len(p.Unknown) == 0
}

// Fields lists the known fields present in the patch.
func (p Patch) Fields() []string {
	var out []string
	if p.Status != nil {
		out = append(out, FieldStatus)
	}
	if p.Severity != nil {
		out = append(out, FieldSeverity)
	}
	if p.AssignedTo != nil {
		out = append(out, FieldAssignedTo)
	}
	return out
}

// ParsePatch decodes a JSON object into a Patch. Unknown keys are kept and rejected later
// by the engine; a body that is not a JSON object is invalid input.
func ParsePatch(body []byte) (Patch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return Patch{}, fmt.Errorf("%w: patch must be a JSON object", apperr.ErrInvalidInput)
	}

	var p Patch
	for key, value := range raw {
		switch key {
		case FieldStatus:
			p.Status = rawString(value)
		case FieldSeverity:
			p.Severity = rawString(value)
		case FieldAssignedTo:
			if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
				p.AssignedTo = Unassign()
			} else {
				p.AssignedTo = &Assignment{To: rawString(value)}
			}
		default:
			p.Unknown = append(p.Unknown, key)
		}
	}
	sort.Strings(p.Unknown)
	return p, nil
}

// rawString returns the decoded string, or the raw JSON text for non-string values so
// that value validation rejects it.
func rawString(value json.RawMessage) *string {
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		s = string(value)
	}
	return &s
}
