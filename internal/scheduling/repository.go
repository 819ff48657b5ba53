package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PatientFinder resolves a patient only if it belongs to the owner.
type PatientFinder interface {
	FindOwnedPatient(ctx context.Context, ownerID, patientID uuid.UUID) (*Patient, error)
}

// PricingFinder returns the patient's most recent active plan, or
// ErrPricingPlanNotFound.
type PricingFinder interface {
	FindActivePricingPlan(ctx context.Context, patientID uuid.UUID) (*PricingPlan, error)
}

// AuditSink records create/update/delete actions. Callers ignore its errors.
type AuditSink interface {
	InsertEvent(ctx context.Context, ev AuditEvent) error
}

// Store contains all DB interactions needed by the service. Every lookup is
// owner scoped where the row has an owner.
type Store interface {
	PatientFinder
	PricingFinder

	// LockOwner serializes writers for one owner until the enclosing
	// transaction ends.
	LockOwner(ctx context.Context, ownerID uuid.UUID) error

	// Sessions
	GetSession(ctx context.Context, ownerID, id uuid.UUID) (*Session, error)
	ListSessions(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]Session, error)
	ListActiveSessionsInWindow(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]Session, error)
	ListRecurrenceGroup(ctx context.Context, ownerID, groupID uuid.UUID) ([]Session, error)
	ListPackageSessions(ctx context.Context, packageID uuid.UUID) ([]Session, error)
	InsertSession(ctx context.Context, s *Session) error
	UpdateSessionSchedule(ctx context.Context, id uuid.UUID, start time.Time, durationMinutes int) (*Session, error)
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, status SessionStatus) (*Session, error)
	// DeleteSessions removes the sessions and their payments.
	DeleteSessions(ctx context.Context, ids []uuid.UUID) (int, error)

	// Payments
	GetPayment(ctx context.Context, ownerID, id uuid.UUID) (*Payment, error)
	GetPaymentBySession(ctx context.Context, sessionID uuid.UUID) (*Payment, error)
	ListPaymentsBySessions(ctx context.Context, sessionIDs []uuid.UUID) (map[uuid.UUID]Payment, error)
	InsertPayment(ctx context.Context, p *Payment) error
	UpdatePayment(ctx context.Context, p *Payment) error

	// Packages
	GetPackage(ctx context.Context, ownerID, id uuid.UUID) (*SessionPackage, error)
	InsertPackage(ctx context.Context, p *SessionPackage) error
	UpdatePackageStatus(ctx context.Context, id uuid.UUID, status PackageStatus) error
	// SetPackageLastOrder raises the package's order high-water mark. It
	// never lowers it.
	SetPackageLastOrder(ctx context.Context, id uuid.UUID, order int) error
	InsertPricingPlan(ctx context.Context, p *PricingPlan) error
	// DeletePackage removes the package with its sessions, their payments
	// and its pricing plan.
	DeletePackage(ctx context.Context, id uuid.UUID) error
}

// Repository is a Store that can also run a function inside one
// transaction. A non-nil error from fn rolls everything back.
type Repository interface {
	Store
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
