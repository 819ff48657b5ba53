package scheduling

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Lookups that miss, or that hit a row owned by someone else, return one of
// these. The two cases are indistinguishable to callers.
var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrPackageNotFound     = errors.New("package not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrPricingPlanNotFound = errors.New("pricing plan not found")
	ErrGroupNotFound       = errors.New("recurrence group not found")
)

// Policy violations. These are never retried.
var (
	ErrCompletedSessionLocked      = errors.New("completed sessions cannot be deleted")
	ErrRescheduleIntoPast          = errors.New("completed sessions cannot move before their original slot")
	ErrPackageHasCompletedSessions = errors.New("package has completed sessions")
	ErrPackageClosed               = errors.New("package is not active")
	ErrInvalidStatusTransition     = errors.New("invalid status transition")
)

// ValidationError is malformed input rejected before any read or write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError lists every requested start that overlaps an existing
// session, so the caller can pick new slots in one pass.
type ConflictError struct {
	Slots []time.Time
}

func (e *ConflictError) Error() string {
	parts := make([]string, len(e.Slots))
	for i, s := range e.Slots {
		parts[i] = s.Format(time.RFC3339)
	}
	return "scheduling conflict at " + strings.Join(parts, ", ")
}

// CapacityError means a package cannot hold the requested sessions.
type CapacityError struct {
	Requested int
	Remaining int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("package has %d free slots, %d requested", e.Remaining, e.Requested)
}
