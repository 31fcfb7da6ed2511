package models

import (
	"time"

	"github.com/google/uuid"
)

type Status string

// Incident statuses
const (
	StatusNew        Status = "new"
	StatusTriaged    Status = "triaged"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

var AllStatuses = []Status{StatusNew, StatusTriaged, StatusInProgress, StatusResolved, StatusClosed}

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusTriaged, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// LinearStatusTransitions is the strict lifecycle: no skipping, no reopening.
var LinearStatusTransitions = map[Status][]Status{
	StatusNew:        {StatusTriaged},
	StatusTriaged:    {StatusInProgress},
	StatusInProgress: {StatusResolved},
	StatusResolved:   {StatusClosed},
	StatusClosed:     {},
}

func IsLinearTransition(from, to Status) bool {
	allowed, ok := LinearStatusTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

type Severity string

// Incident severities
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var AllSeverities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type Incident struct {
	ID          uuid.UUID  `json:"id"`
	ReporterID  uuid.UUID  `json:"reporter_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Severity    Severity   `json:"severity"`
	Status      Status     `json:"status"`
	Category    string     `json:"category"`
	AssignedTo  *uuid.UUID `json:"assigned_to,omitempty"`
	Team        *string    `json:"team,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsAssignedTo reports whether the incident is currently assigned to the given profile.
func (i *Incident) IsAssignedTo(id uuid.UUID) bool {
	return i.AssignedTo != nil && *i.AssignedTo == id
}

// IncidentDraft is the caller-supplied part of a new incident.
type IncidentDraft struct {
	Title       string
	Description string
	Category    string
	Severity    Severity
}

type IncidentFilter struct {
	Status   *Status
	Severity *Severity
	Limit    int
}

// IncidentDetail bundles an incident with its collaboration records.
type IncidentDetail struct {
	Incident    Incident     `json:"incident"`
	Comments    []Comment    `json:"comments"`
	Attachments []Attachment `json:"attachments"`
}

type DashboardStats struct {
	Total      int        `json:"total"`
	New        int        `json:"new"`
	InProgress int        `json:"in_progress"`
	Resolved   int        `json:"resolved"`
	Critical   int        `json:"critical"`
	Recent     []Incident `json:"recent"`
}
