package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/hackgods/practice-scheduling/internal/redis"
)

const (
	EventSessionCreated       = "SESSION_CREATED"
	EventSessionRescheduled   = "SESSION_RESCHEDULED"
	EventSessionStatusChanged = "SESSION_STATUS_CHANGED"
	EventSessionDeleted       = "SESSION_DELETED"
	EventRecurrenceDeleted    = "RECURRENCE_GROUP_DELETED"
	EventPackageCreated       = "PACKAGE_CREATED"
	EventPackageSessionsAdded = "PACKAGE_SESSIONS_ADDED"
	EventPackageCancelled     = "PACKAGE_CANCELLED"
	EventPackageDeleted       = "PACKAGE_DELETED"
	EventPaymentUpdated       = "PAYMENT_UPDATED"
)

type DeleteMode string

const (
	DeleteSingle DeleteMode = "SINGLE"
	DeleteFuture DeleteMode = "FUTURE"
	DeleteAll    DeleteMode = "ALL"
)

// allowedTransitions lists where each status may move. COMPLETED, CANCELLED
// and NO_SHOW have no outgoing transitions.
var allowedTransitions = map[SessionStatus][]SessionStatus{
	StatusScheduled: {StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow},
	StatusConfirmed: {StatusCancelled, StatusCompleted, StatusNoShow},
}

func canTransition(from, to SessionStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Service struct {
	repo   Repository
	locker redisclient.Locker
	audit  AuditSink
	log    *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, audit AuditSink, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:   repo,
		locker: locker,
		audit:  audit,
		log:    log,
		now:    time.Now,
	}
}

type RecurrenceInput struct {
	Pattern     RecurrencePattern `validate:"required,oneof=WEEKLY BIWEEKLY MONTHLY"`
	Termination Termination
}

type CreateSessionInput struct {
	PatientID        uuid.UUID `validate:"required"`
	StartTime        time.Time `validate:"required"`
	DurationMinutes  int       `validate:"min=15,max=180"`
	IsCourtesy       bool
	ClinicalNotes    *string
	Observations     *string
	Recurrence       *RecurrenceInput
	CustomPriceCents *int64 `validate:"omitempty,min=0"`
	IsPaid           bool
	Payment          *PaymentMeta
}

// SessionBatch is what a create returns: one session, or a whole series
// sharing RecurrenceGroupID.
type SessionBatch struct {
	RecurrenceGroupID *uuid.UUID
	Sessions          []SessionDetail
}

type RescheduleInput struct {
	StartTime       *time.Time
	DurationMinutes *int `validate:"omitempty,min=15,max=180"`
}

type PreviewInput struct {
	StartTime       time.Time `validate:"required"`
	DurationMinutes int       `validate:"min=15,max=180"`
	Recurrence      RecurrenceInput
}

type PreviewSlot struct {
	StartTime time.Time
	Conflict  bool
}

// withOwnerTx holds the owner lock and one transaction around fn. The
// advisory lock taken inside the transaction keeps writers serialized even
// if the distributed lock lease lapses mid-call.
func (s *Service) withOwnerTx(ctx context.Context, ownerID uuid.UUID, fn func(ctx context.Context, tx Store) error) error {
	return s.locker.WithOwnerLock(ctx, ownerID, func(lockCtx context.Context) error {
		return s.repo.WithTx(lockCtx, func(tx Store) error {
			if err := tx.LockOwner(lockCtx, ownerID); err != nil {
				return fmt.Errorf("lock owner: %w", err)
			}
			return fn(lockCtx, tx)
		})
	})
}

// PreviewRecurrence expands a series without writing anything and flags the
// dates that would collide. CreateSession uses the same generator.
func (s *Service) PreviewRecurrence(ctx context.Context, ownerID uuid.UUID, in PreviewInput) ([]PreviewSlot, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	starts, err := Generate(in.StartTime, in.Recurrence.Pattern, in.Recurrence.Termination)
	if err != nil {
		return nil, err
	}

	out := make([]PreviewSlot, len(starts))
	for i, st := range starts {
		hit, err := HasConflict(ctx, s.repo, ownerID, st, in.DurationMinutes, nil)
		if err != nil {
			return nil, err
		}
		out[i] = PreviewSlot{StartTime: st, Conflict: hit}
	}
	return out, nil
}

// CreateSession books a single session or a recurring series. A series is
// all-or-nothing: any conflict aborts it and every conflicting date is
// reported.
func (s *Service) CreateSession(ctx context.Context, ownerID uuid.UUID, in CreateSessionInput) (*SessionBatch, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.IsCourtesy && in.IsPaid {
		return nil, invalid("is_paid", "courtesy sessions are not billed")
	}

	starts := []time.Time{in.StartTime}
	var groupID *uuid.UUID
	if in.Recurrence != nil {
		var err error
		starts, err = Generate(in.StartTime, in.Recurrence.Pattern, in.Recurrence.Termination)
		if err != nil {
			return nil, err
		}
		id := uuid.New()
		groupID = &id
	}

	if _, err := s.repo.FindOwnedPatient(ctx, ownerID, in.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	slots := make([]Slot, len(starts))
	for i, st := range starts {
		slots[i] = Slot{Start: st, DurationMinutes: in.DurationMinutes}
	}

	var batch SessionBatch
	err := s.withOwnerTx(ctx, ownerID, func(ctx context.Context, tx Store) error {
		conflicts, err := collectConflicts(ctx, tx, ownerID, slots)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &ConflictError{Slots: conflicts}
		}

		var price int64
		if !in.IsCourtesy {
			if price, err = resolvePrice(ctx, tx, in.PatientID, in.CustomPriceCents, nil); err != nil {
				return err
			}
		}

		now := s.now()
		sessions := make([]Session, len(starts))
		for i, st := range starts {
			sessions[i] = Session{
				ID:              uuid.New(),
				OwnerID:         ownerID,
				PatientID:       in.PatientID,
				StartTime:       st,
				DurationMinutes: in.DurationMinutes,
				Status:          StatusScheduled,
				IsCourtesy:      in.IsCourtesy,
				ClinicalNotes:   in.ClinicalNotes,
				Observations:    in.Observations,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if groupID != nil {
				sessions[i].Membership = &RecurrenceMembership{
					GroupID: *groupID,
					Pattern: in.Recurrence.Pattern,
					EndDate: in.Recurrence.Termination.EndDate,
					Count:   len(starts),
					Index:   i + 1,
				}
			}
			if err := tx.InsertSession(ctx, &sessions[i]); err != nil {
				return fmt.Errorf("insert session %d/%d: %w", i+1, len(starts), err)
			}
		}

		payments, err := createPayments(ctx, tx, sessions, price, in.IsPaid, in.Payment, now)
		if err != nil {
			return err
		}

		batch = SessionBatch{RecurrenceGroupID: groupID, Sessions: details(sessions, payments)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	first := batch.Sessions[0].ID
	s.logEvent(ctx, ownerID, &first, EventSessionCreated, map[string]any{
		"patient_id":          in.PatientID.String(),
		"count":               len(batch.Sessions),
		"recurrence_group_id": groupID,
	})
	return &batch, nil
}

func details(sessions []Session, payments []*Payment) []SessionDetail {
	out := make([]SessionDetail, len(sessions))
	for i := range sessions {
		out[i] = SessionDetail{Session: sessions[i]}
		if i < len(payments) {
			out[i].Payment = payments[i]
		}
	}
	return out
}

func (s *Service) GetSession(ctx context.Context, ownerID, id uuid.UUID) (*SessionDetail, error) {
	sess, err := s.repo.GetSession(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return s.withPayment(ctx, s.repo, sess)
}

func (s *Service) withPayment(ctx context.Context, store Store, sess *Session) (*SessionDetail, error) {
	detail := &SessionDetail{Session: *sess}
	p, err := store.GetPaymentBySession(ctx, sess.ID)
	switch {
	case err == nil:
		detail.Payment = p
	case !errors.Is(err, ErrPaymentNotFound):
		return nil, fmt.Errorf("load payment: %w", err)
	}
	return detail, nil
}

// ListSessions returns the owner's sessions starting in [from, to), each with
// its payment.
func (s *Service) ListSessions(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]SessionDetail, error) {
	if !to.After(from) {
		return nil, invalid("to", "must be after from")
	}

	sessions, err := s.repo.ListSessions(ctx, ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	ids := make([]uuid.UUID, len(sessions))
	for i := range sessions {
		ids[i] = sessions[i].ID
	}
	payments, err := s.repo.ListPaymentsBySessions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	out := make([]SessionDetail, len(sessions))
	for i := range sessions {
		out[i] = SessionDetail{Session: sessions[i]}
		if p, ok := payments[sessions[i].ID]; ok {
			pc := p
			out[i].Payment = &pc
		}
	}
	return out, nil
}

// RescheduleSession moves a session and/or changes its length. The session
// is never checked against itself.
func (s *Service) RescheduleSession(ctx context.Context, ownerID, id uuid.UUID, in RescheduleInput) (*SessionDetail, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.StartTime == nil && in.DurationMinutes == nil {
		return nil, invalid("", "start time or duration is required")
	}

	var out *SessionDetail
	err := s.withOwnerTx(ctx, ownerID, func(ctx context.Context, tx Store) error {
		sess, err := tx.GetSession(ctx, ownerID, id)
		if err != nil {
			return err
		}

		start, dur := sess.StartTime, sess.DurationMinutes
		if in.StartTime != nil {
			start = *in.StartTime
		}
		if in.DurationMinutes != nil {
			dur = *in.DurationMinutes
		}

		if sess.Status == StatusCompleted && start.Before(sess.StartTime) {
			return ErrRescheduleIntoPast
		}

		hit, err := HasConflict(ctx, tx, ownerID, start, dur, &sess.ID)
		if err != nil {
			return err
		}
		if hit {
			return &ConflictError{Slots: []time.Time{start}}
		}

		updated, err := tx.UpdateSessionSchedule(ctx, sess.ID, start, dur)
		if err != nil {
			return fmt.Errorf("update session schedule: %w", err)
		}
		out, err = s.withPayment(ctx, tx, updated)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, ownerID, &id, EventSessionRescheduled, map[string]any{
		"start_time":       out.StartTime,
		"duration_minutes": out.DurationMinutes,
	})
	return out, nil
}

// ChangeSessionStatus applies a status transition. Cancelling also cancels
// the session's payment; completing the last open session of a package
// completes the package.
func (s *Service) ChangeSessionStatus(ctx context.Context, ownerID, id uuid.UUID, status SessionStatus) (*SessionDetail, error) {
	if !status.Valid() {
		return nil, invalid("status", "unknown session status %q", status)
	}

	var out *SessionDetail
	var from SessionStatus
	err := s.withOwnerTx(ctx, ownerID, func(ctx context.Context, tx Store) error {
		sess, err := tx.GetSession(ctx, ownerID, id)
		if err != nil {
			return err
		}
		from = sess.Status

		if sess.Status == status {
			out, err = s.withPayment(ctx, tx, sess)
			return err
		}
		if !canTransition(sess.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, sess.Status, status)
		}

		updated, err := tx.UpdateSessionStatus(ctx, sess.ID, status)
		if err != nil {
			return fmt.Errorf("update session status: %w", err)
		}

		if status == StatusCancelled {
			if err := s.cancelSessionPayment(ctx, tx, sess.ID, false); err != nil {
				return err
			}
		}

		if pm := updated.Package(); pm != nil && status == StatusCompleted {
			if err := s.completePackageIfExhausted(ctx, tx, ownerID, pm.PackageID); err != nil {
				return err
			}
		}

		out, err = s.withPayment(ctx, tx, updated)
		return err
	})
	if err != nil {
		return nil, err
	}

	if from != status {
		s.logEvent(ctx, ownerID, &id, EventSessionStatusChanged, map[string]any{
			"from": from,
			"to":   status,
		})
	}
	return out, nil
}

// cancelSessionPayment cancels the payment a session owns, if any. With
// pendingOnly, paid payments are left as they are.
func (s *Service) cancelSessionPayment(ctx context.Context, tx Store, sessionID uuid.UUID, pendingOnly bool) error {
	p, err := tx.GetPaymentBySession(ctx, sessionID)
	if errors.Is(err, ErrPaymentNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load payment: %w", err)
	}
	if p.Status == PaymentCancelled || (pendingOnly && p.Status != PaymentPending) {
		return nil
	}

	cancelPayment(p, s.now())
	if err := tx.UpdatePayment(ctx, p); err != nil {
		return fmt.Errorf("cancel payment: %w", err)
	}
	return nil
}

// DeleteSession removes one session and its payment. Completed sessions are
// kept.
func (s *Service) DeleteSession(ctx context.Context, ownerID, id uuid.UUID) error {
	err := s.withOwnerTx(ctx, ownerID, func(ctx context.Context, tx Store) error {
		sess, err := tx.GetSession(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if sess.Status == StatusCompleted {
			return ErrCompletedSessionLocked
		}
		if _, err := tx.DeleteSessions(ctx, []uuid.UUID{sess.ID}); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logEvent(ctx, ownerID, &id, EventSessionDeleted, map[string]any{})
	return nil
}

// DeleteRecurrenceGroup deletes part or all of a series and returns how many
// sessions went. Completed sessions are skipped in FUTURE and ALL mode; in
// SINGLE mode a completed anchor is an error.
func (s *Service) DeleteRecurrenceGroup(ctx context.Context, ownerID, groupID uuid.UUID, mode DeleteMode, anchorID *uuid.UUID) (int, error) {
	switch mode {
	case DeleteSingle, DeleteFuture:
		if anchorID == nil {
			return 0, invalid("session_id", "is required for %s deletes", mode)
		}
	case DeleteAll:
	default:
		return 0, invalid("mode", "must be one of [SINGLE FUTURE ALL]")
	}

	var deleted int
	err := s.withOwnerTx(ctx, ownerID, func(ctx context.Context, tx Store) error {
		members, err := tx.ListRecurrenceGroup(ctx, ownerID, groupID)
		if err != nil {
			return fmt.Errorf("load recurrence group: %w", err)
		}
		if len(members) == 0 {
			return ErrGroupNotFound
		}

		var anchor *Session
		if anchorID != nil {
			for i := range members {
				if members[i].ID == *anchorID {
					anchor = &members[i]
					break
				}
			}
			if anchor == nil {
				return ErrSessionNotFound
			}
		}

		var ids []uuid.UUID
		switch mode {
		case DeleteSingle:
			if anchor.Status == StatusCompleted {
				return ErrCompletedSessionLocked
			}
			ids = append(ids, anchor.ID)
		case DeleteFuture:
			for _, m := range members {
				if m.Status != StatusCompleted && !m.StartTime.Before(anchor.StartTime) {
					ids = append(ids, m.ID)
				}
			}
		case DeleteAll:
			for _, m := range members {
				if m.Status != StatusCompleted {
					ids = append(ids, m.ID)
				}
			}
		}

		if len(ids) == 0 {
			return nil
		}
		deleted, err = tx.DeleteSessions(ctx, ids)
		if err != nil {
			return fmt.Errorf("delete recurrence sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logEvent(ctx, ownerID, &groupID, EventRecurrenceDeleted, map[string]any{
		"mode":    mode,
		"deleted": deleted,
	})
	return deleted, nil
}

func (s *Service) logEvent(ctx context.Context, ownerID uuid.UUID, entityID *uuid.UUID, eventType string, payload map[string]any) {
	if s.audit == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("marshal audit payload", "event", eventType, "error", err)
		data = nil
	}

	ev := AuditEvent{
		EventType: eventType,
		OwnerID:   ownerID,
		EntityID:  entityID,
		Payload:   data,
		CreatedAt: s.now(),
	}

	if err := s.audit.InsertEvent(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn("audit event dropped", "event", eventType, "owner_id", ownerID, "error", err)
	}
}

func sortByStart(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})
}
