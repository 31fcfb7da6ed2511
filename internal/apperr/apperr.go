// Package apperr defines the error taxonomy shared by the policy, workflow and store layers.
//
// Rejections (policy or validation decisions) and execution failures (store outages) are
// separate kinds: callers use IsRejection to tell them apart and HTTPStatus to render them.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	// ErrNotFound also covers entities filtered out by visibility.
	ErrNotFound        = errors.New("not found")
	ErrInvalidField    = errors.New("invalid field")
	ErrInvalidValue    = errors.New("invalid value")
	ErrInvalidAssignee = errors.New("invalid assignee")
	ErrInvalidInput    = errors.New("invalid input")
	ErrConflict        = errors.New("conflict")

	ErrStoreUnavailable = errors.New("store unavailable")
)

var rejections = []error{
	ErrUnauthenticated,
	ErrForbidden,
	ErrNotFound,
	ErrInvalidField,
	ErrInvalidValue,
	ErrInvalidAssignee,
	ErrInvalidInput,
	ErrConflict,
}

// IsRejection reports whether err is a policy or validation decision rather than an
// execution failure.
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidField):
		return "invalid_field"
	case errors.Is(err, ErrInvalidValue):
		return "invalid_value"
	case errors.Is(err, ErrInvalidAssignee):
		return "invalid_assignee"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "internal"
}

func HTTPStatus(err error) int {
	switch Code(err) {
	case "":
		return http.StatusOK
	case "unauthenticated":
		return http.StatusUnauthorized
	case "forbidden":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "invalid_field", "invalid_value", "invalid_assignee", "invalid_input":
		return http.StatusBadRequest
	case "conflict":
		return http.StatusConflict
	case "store_unavailable":
		return http.StatusServiceUnavailable
	case "cancelled":
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}
