package workflow

import (
	"fmt"

	"github.com/incidentdesk/backend/internal/apperr"
	"github.com/incidentdesk/backend/internal/models"
)

// TransitionValidator decides whether a status change is allowed. It is the single hook
// for status ordering; everything else in the engine is independent of it.
type TransitionValidator interface {
	ValidateTransition(from, to models.Status) error
}

type TransitionFunc func(from, to models.Status) error

func (f TransitionFunc) ValidateTransition(from, to models.Status) error {
	return f(from, to)
}

// Unrestricted allows any status to move to any other status.
var Unrestricted TransitionValidator = TransitionFunc(func(from, to models.Status) error {
	return nil
})

// Linear enforces new -> triaged -> in_progress -> resolved -> closed with no skipping or
// reopening. Setting the current status again is a no-op and allowed.
var Linear TransitionValidator = TransitionFunc(func(from, to models.Status) error {
	if from == to || models.IsLinearTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: status transition %s -> %s is not allowed", apperr.ErrInvalidValue, from, to)
})
