package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	redisclient "github.com/hackgods/practice-scheduling/internal/redis"
	"github.com/hackgods/practice-scheduling/internal/scheduling"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// fail maps a service error onto a status code and error body. Anything
// unrecognised is logged and reported as a bare internal error.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *scheduling.ValidationError
		conflict   *scheduling.ConflictError
		capacity   *scheduling.CapacityError
	)

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_failed", validation.Error())

	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "scheduling_conflict",
			Details:   conflict.Error(),
			Conflicts: conflict.Slots,
		})
	case errors.As(err, &capacity):
		writeError(w, http.StatusUnprocessableEntity, "package_capacity_exceeded", capacity.Error())

	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, scheduling.ErrPackageNotFound):
		writeError(w, http.StatusNotFound, "package_not_found", err.Error())
	case errors.Is(err, scheduling.ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, "payment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrGroupNotFound):
		writeError(w, http.StatusNotFound, "recurrence_group_not_found", err.Error())

	case errors.Is(err, scheduling.ErrCompletedSessionLocked):
		writeError(w, http.StatusUnprocessableEntity, "completed_session_locked", err.Error())
	case errors.Is(err, scheduling.ErrRescheduleIntoPast):
		writeError(w, http.StatusUnprocessableEntity, "reschedule_into_past", err.Error())
	case errors.Is(err, scheduling.ErrPackageHasCompletedSessions):
		writeError(w, http.StatusUnprocessableEntity, "package_has_completed_sessions", err.Error())
	case errors.Is(err, scheduling.ErrPackageClosed):
		writeError(w, http.StatusConflict, "package_closed", err.Error())
	case errors.Is(err, scheduling.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())

	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "calendar_busy", "another change to this calendar is in progress, please retry shortly")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "request timed out")

	default:
		h.log.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
