package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/practice-scheduling/internal/scheduling"
)

type handlers struct {
	svc SchedulingService
	log *slog.Logger
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, param, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parsePatientID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// Sessions

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	patientID, ok := parsePatientID(w, req.PatientID)
	if !ok {
		return
	}

	in := scheduling.CreateSessionInput{
		PatientID:        patientID,
		StartTime:        req.StartTime,
		DurationMinutes:  req.DurationMinutes,
		IsCourtesy:       req.IsCourtesy,
		ClinicalNotes:    req.ClinicalNotes,
		Observations:     req.Observations,
		CustomPriceCents: req.CustomPriceCents,
		IsPaid:           req.IsPaid,
		Payment:          req.Payment.toDomain(),
	}
	if req.Recurrence != nil {
		rec := req.Recurrence.toDomain()
		in.Recurrence = &rec
	}

	batch, err := h.svc.CreateSession(r.Context(), ownerFrom(r.Context()), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, SessionBatchResponse{
		RecurrenceGroupID: batch.RecurrenceGroupID,
		Sessions:          sessionResponses(batch.Sessions),
	})
}

func (h *handlers) previewRecurrence(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	slots, err := h.svc.PreviewRecurrence(r.Context(), ownerFrom(r.Context()), scheduling.PreviewInput{
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Recurrence:      req.Recurrence.toDomain(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := make([]PreviewSlotResponse, len(slots))
	for i, s := range slots {
		resp[i] = PreviewSlotResponse{StartTime: s.StartTime, Conflict: s.Conflict}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from", "from must be an RFC 3339 timestamp")
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_to", "to must be an RFC 3339 timestamp")
		return
	}

	sessions, err := h.svc.ListSessions(r.Context(), ownerFrom(r.Context()), from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponses(sessions))
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "invalid_session_id")
	if !ok {
		return
	}

	sess, err := h.svc.GetSession(r.Context(), ownerFrom(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(*sess))
}

func (h *handlers) rescheduleSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "invalid_session_id")
	if !ok {
		return
	}
	var req RescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := h.svc.RescheduleSession(r.Context(), ownerFrom(r.Context()), id, scheduling.RescheduleInput{
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(*sess))
}

func (h *handlers) changeSessionStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "invalid_session_id")
	if !ok {
		return
	}
	var req StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := h.svc.ChangeSessionStatus(r.Context(), ownerFrom(r.Context()), id, scheduling.SessionStatus(req.Status))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(*sess))
}

func (h *handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "invalid_session_id")
	if !ok {
		return
	}

	if err := h.svc.DeleteSession(r.Context(), ownerFrom(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) deleteRecurrenceGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID", "invalid_group_id")
	if !ok {
		return
	}

	q := r.URL.Query()
	mode := scheduling.DeleteMode(q.Get("mode"))
	if mode == "" {
		mode = scheduling.DeleteAll
	}

	var anchor *uuid.UUID
	if raw := q.Get("session_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_id", "session_id must be a valid UUID")
			return
		}
		anchor = &id
	}

	n, err := h.svc.DeleteRecurrenceGroup(r.Context(), ownerFrom(r.Context()), groupID, mode, anchor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeletedResponse{DeletedCount: n})
}

// Packages

func (h *handlers) createPackage(w http.ResponseWriter, r *http.Request) {
	var req CreatePackageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	patientID, ok := parsePatientID(w, req.PatientID)
	if !ok {
		return
	}

	detail, err := h.svc.CreatePackage(r.Context(), ownerFrom(r.Context()), scheduling.CreatePackageInput{
		PatientID:       patientID,
		Name:            req.Name,
		Notes:           req.Notes,
		TotalSessions:   req.TotalSessions,
		TotalPriceCents: req.TotalPriceCents,
		Sessions:        packageSlots(req.Sessions),
		IsPaid:          req.IsPaid,
		Payment:         req.Payment.toDomain(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, packageResponse(detail))
}

func (h *handlers) getPackage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "invalid_package_id")
	if !ok {
		return
	}

	detail, err := h.svc.GetPackage(r.Context(), ownerFrom(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, packageResponse(detail))
}

func (h *handlers) packageStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "invalid_package_id")
	if !ok {
		return
	}

	st, err := h.svc.PackageStats(r.Context(), ownerFrom(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse(*st))
}

func (h *handlers) addPackageSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "invalid_package_id")
	if !ok {
		return
	}
	var req AddPackageSessionsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	n, err := h.svc.AddPackageSessions(r.Context(), ownerFrom(r.Context()), id, packageSlots(req.Sessions))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{CreatedCount: n})
}

func (h *handlers) cancelPackage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "invalid_package_id")
	if !ok {
		return
	}

	detail, err := h.svc.CancelPackage(r.Context(), ownerFrom(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, packageResponse(detail))
}

func (h *handlers) deletePackage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "invalid_package_id")
	if !ok {
		return
	}

	if err := h.svc.DeletePackage(r.Context(), ownerFrom(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Payments

func (h *handlers) updatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "invalid_payment_id")
	if !ok {
		return
	}
	var req UpdatePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.svc.UpdatePayment(r.Context(), ownerFrom(r.Context()), id, req.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResponse(p))
}
