package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PaymentMeta is only applied when a payment is created already paid.
type PaymentMeta struct {
	Method  *PaymentMethod `validate:"omitempty,oneof=CASH CARD BANK_TRANSFER PIX OTHER"`
	Notes   *string
	Receipt *Receipt
}

// PaymentUpdate is an explicit billing edit. Nil fields are left alone.
type PaymentUpdate struct {
	AmountCents *int64
	Status      *PaymentStatus
	Method      *PaymentMethod
	Notes       *string
	Receipt     *Receipt
}

func newPayment(sessionID uuid.UUID, amountCents int64, isPaid bool, meta *PaymentMeta, now time.Time) *Payment {
	p := &Payment{
		ID:          uuid.New(),
		SessionID:   sessionID,
		AmountCents: amountCents,
		Status:      PaymentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if isPaid {
		paidAt := now
		p.Status = PaymentPaid
		p.PaidAt = &paidAt
		if meta != nil {
			p.Method = meta.Method
			p.Notes = meta.Notes
			p.Receipt = meta.Receipt
		}
	}
	return p
}

// cancelPayment moves p to CANCELLED and drops any paid timestamp.
func cancelPayment(p *Payment, now time.Time) {
	p.Status = PaymentCancelled
	p.PaidAt = nil
	p.UpdatedAt = now
}

// applyPaymentUpdate edits p in place. Entering PAID stamps paidAt if it was
// unset; leaving PAID clears it.
func applyPaymentUpdate(p *Payment, upd PaymentUpdate, now time.Time) error {
	if upd.AmountCents != nil {
		if *upd.AmountCents < 0 {
			return invalid("amount", "must not be negative")
		}
		p.AmountCents = *upd.AmountCents
	}
	if upd.Method != nil {
		if !upd.Method.Valid() {
			return invalid("method", "unknown payment method %q", *upd.Method)
		}
		p.Method = upd.Method
	}
	if upd.Notes != nil {
		p.Notes = upd.Notes
	}
	if upd.Receipt != nil {
		p.Receipt = upd.Receipt
	}
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return invalid("status", "unknown payment status %q", *upd.Status)
		}
		next := *upd.Status
		switch {
		case next == PaymentPaid && p.PaidAt == nil:
			paidAt := now
			p.PaidAt = &paidAt
		case next != PaymentPaid:
			p.PaidAt = nil
		}
		p.Status = next
	}
	p.UpdatedAt = now
	return nil
}

// createPayments inserts one payment per non-courtesy session.
func createPayments(ctx context.Context, tx Store, sessions []Session, amountCents int64, isPaid bool, meta *PaymentMeta, now time.Time) ([]*Payment, error) {
	out := make([]*Payment, len(sessions))
	for i := range sessions {
		if sessions[i].IsCourtesy {
			continue
		}
		p := newPayment(sessions[i].ID, amountCents, isPaid, meta, now)
		if err := tx.InsertPayment(ctx, p); err != nil {
			return nil, fmt.Errorf("insert payment for session %s: %w", sessions[i].ID, err)
		}
		out[i] = p
	}
	return out, nil
}

// resolvePrice picks the amount billed per session: an explicit price, the
// patient's active plan rate, the package's per-session price, or zero.
func resolvePrice(ctx context.Context, tx Store, patientID uuid.UUID, custom *int64, pkg *SessionPackage) (int64, error) {
	if custom != nil {
		return *custom, nil
	}

	plan, err := tx.FindActivePricingPlan(ctx, patientID)
	switch {
	case err == nil:
		if rate, ok := plan.PerSessionCents(); ok {
			return rate, nil
		}
	case !errors.Is(err, ErrPricingPlanNotFound):
		return 0, fmt.Errorf("load pricing plan: %w", err)
	}

	if pkg != nil {
		return pkg.PricePerSessionCents(), nil
	}
	return 0, nil
}

// UpdatePayment applies an explicit billing edit to a payment the owner
// holds.
func (s *Service) UpdatePayment(ctx context.Context, ownerID, paymentID uuid.UUID, upd PaymentUpdate) (*Payment, error) {
	var out *Payment
	err := s.withOwnerTx(ctx, ownerID, func(ctx context.Context, tx Store) error {
		p, err := tx.GetPayment(ctx, ownerID, paymentID)
		if err != nil {
			return err
		}
		if err := applyPaymentUpdate(p, upd, s.now()); err != nil {
			return err
		}
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, ownerID, &paymentID, EventPaymentUpdated, map[string]any{
		"status":       out.Status,
		"amount_cents": out.AmountCents,
	})
	return out, nil
}
