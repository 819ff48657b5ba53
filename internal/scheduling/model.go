package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	StatusScheduled SessionStatus = "SCHEDULED"
	StatusConfirmed SessionStatus = "CONFIRMED"
	StatusCompleted SessionStatus = "COMPLETED"
	StatusCancelled SessionStatus = "CANCELLED"
	StatusNoShow    SessionStatus = "NO_SHOW"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

type RecurrencePattern string

const (
	PatternWeekly   RecurrencePattern = "WEEKLY"
	PatternBiweekly RecurrencePattern = "BIWEEKLY"
	PatternMonthly  RecurrencePattern = "MONTHLY"
)

func (p RecurrencePattern) Valid() bool {
	switch p {
	case PatternWeekly, PatternBiweekly, PatternMonthly:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentCancelled:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodCard         PaymentMethod = "CARD"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodPix          PaymentMethod = "PIX"
	MethodOther        PaymentMethod = "OTHER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodBankTransfer, MethodPix, MethodOther:
		return true
	}
	return false
}

type PackageStatus string

const (
	PackageActive    PackageStatus = "ACTIVE"
	PackageCompleted PackageStatus = "COMPLETED"
	PackageCancelled PackageStatus = "CANCELLED"
)

type PricingType string

const (
	PricingPerSession PricingType = "SESSION"
	PricingPackage    PricingType = "PACKAGE"
)

const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 180
)

// Membership says which group, if any, a session belongs to. The concrete
// values are *PackageMembership and *RecurrenceMembership; nil means the
// session stands alone.
type Membership interface {
	membership()
}

type PackageMembership struct {
	PackageID uuid.UUID
	Order     int // 1-based, never renumbered
}

type RecurrenceMembership struct {
	GroupID uuid.UUID
	Pattern RecurrencePattern
	EndDate *time.Time
	Count   int
	Index   int // 1-based, never renumbered
}

func (*PackageMembership) membership()    {}
func (*RecurrenceMembership) membership() {}

type Patient struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Session struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	PatientID       uuid.UUID
	StartTime       time.Time
	DurationMinutes int
	Status          SessionStatus
	IsCourtesy      bool
	ClinicalNotes   *string
	Observations    *string
	Membership      Membership
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s *Session) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

func (s *Session) Package() *PackageMembership {
	pm, _ := s.Membership.(*PackageMembership)
	return pm
}

func (s *Session) Recurrence() *RecurrenceMembership {
	rm, _ := s.Membership.(*RecurrenceMembership)
	return rm
}

type Receipt struct {
	URL         string
	Filename    string
	ContentType string
	Size        int64
}

type Payment struct {
	ID          uuid.UUID
	SessionID   uuid.UUID
	AmountCents int64
	Status      PaymentStatus
	Method      *PaymentMethod
	PaidAt      *time.Time
	Notes       *string
	Receipt     *Receipt
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type SessionPackage struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	PatientID       uuid.UUID
	Name            string
	Notes           *string
	TotalSessions   int
	TotalPriceCents int64
	Status          PackageStatus
	// LastOrder is the highest package order ever assigned. Deleting a
	// session does not lower it.
	LastOrder int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *SessionPackage) PricePerSessionCents() int64 {
	if p.TotalSessions <= 0 {
		return 0
	}
	return p.TotalPriceCents / int64(p.TotalSessions)
}

// PricingPlan is a patient's billing terms. A package owns exactly one plan
// of type PACKAGE as a snapshot of what was sold.
type PricingPlan struct {
	ID                uuid.UUID
	PatientID         uuid.UUID
	PackageID         *uuid.UUID
	Type              PricingType
	SessionPriceCents *int64
	PackagePriceCents *int64
	PackageSessions   *int
	Active            bool
	CreatedAt         time.Time
}

// PerSessionCents is the rate a single session is billed at under this plan.
func (p *PricingPlan) PerSessionCents() (int64, bool) {
	switch p.Type {
	case PricingPerSession:
		if p.SessionPriceCents != nil {
			return *p.SessionPriceCents, true
		}
	case PricingPackage:
		if p.PackagePriceCents != nil && p.PackageSessions != nil && *p.PackageSessions > 0 {
			return *p.PackagePriceCents / int64(*p.PackageSessions), true
		}
	}
	return 0, false
}

type SessionDetail struct {
	Session
	Payment *Payment
}

type AuditEvent struct {
	ID        int64
	EventType string
	OwnerID   uuid.UUID
	EntityID  *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
