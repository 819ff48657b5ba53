package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type PackageSessionInput struct {
	StartTime       time.Time `validate:"required"`
	DurationMinutes int       `validate:"min=15,max=180"`
	IsCourtesy      bool
}

type CreatePackageInput struct {
	PatientID       uuid.UUID `validate:"required"`
	Name            string    `validate:"required,max=120"`
	Notes           *string
	TotalSessions   int                   `validate:"min=1,max=200"`
	TotalPriceCents int64                 `validate:"min=0"`
	Sessions        []PackageSessionInput `validate:"dive"`
	IsPaid          bool
	Payment         *PaymentMeta
}

type PackageDetail struct {
	Package  SessionPackage
	Sessions []SessionDetail
	Stats    PackageStats
}

// CreatePackage sells a package and books its first sessions in one
// transaction, along with the pricing plan that records the terms.
func (s *Service) CreatePackage(ctx context.Context, ownerID uuid.UUID, in CreatePackageInput) (*PackageDetail, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if len(in.Sessions) > in.TotalSessions {
		return nil, &CapacityError{Requested: len(in.Sessions), Remaining: in.TotalSessions}
	}

	if _, err := s.repo.FindOwnedPatient(ctx, ownerID, in.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	var out *PackageDetail
	err := s.withOwnerTx(ctx, ownerID, func(ctx context.Context, tx Store) error {
		if err := checkSlots(ctx, tx, ownerID, in.Sessions); err != nil {
			return err
		}

		now := s.now()
		pkg := &SessionPackage{
			ID:              uuid.New(),
			OwnerID:         ownerID,
			PatientID:       in.PatientID,
			Name:            in.Name,
			Notes:           in.Notes,
			TotalSessions:   in.TotalSessions,
			TotalPriceCents: in.TotalPriceCents,
			Status:          PackageActive,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.InsertPackage(ctx, pkg); err != nil {
			return fmt.Errorf("insert package: %w", err)
		}

		total, sessions := in.TotalPriceCents, in.TotalSessions
		plan := &PricingPlan{
			ID:                uuid.New(),
			PatientID:         in.PatientID,
			PackageID:         &pkg.ID,
			Type:              PricingPackage,
			PackagePriceCents: &total,
			PackageSessions:   &sessions,
			Active:            true,
			CreatedAt:         now,
		}
		if err := tx.InsertPricingPlan(ctx, plan); err != nil {
			return fmt.Errorf("insert pricing plan: %w", err)
		}

		var prepaid *Payment
		if in.IsPaid {
			meta := PaymentMeta{}
			if in.Payment != nil {
				meta = *in.Payment
			}
			prepaid = &Payment{Status: PaymentPaid, Method: meta.Method, Notes: meta.Notes, Receipt: meta.Receipt}
		}

		if _, err := s.insertPackageSessions(ctx, tx, pkg, nil, in.Sessions, prepaid, now); err != nil {
			return err
		}

		detail, err := loadPackageDetail(ctx, tx, ownerID, pkg.ID)
		if err != nil {
			return err
		}
		out = detail
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, ownerID, &out.Package.ID, EventPackageCreated, map[string]any{
		"patient_id":     in.PatientID.String(),
		"total_sessions": in.TotalSessions,
		"booked":         len(in.Sessions),
	})
	return out, nil
}

// AddPackageSessions books more sessions into a package, continuing its
// order numbering. It fails without writing if the package lacks room.
func (s *Service) AddPackageSessions(ctx context.Context, ownerID, packageID uuid.UUID, slots []PackageSessionInput) (int, error) {
	if len(slots) == 0 {
		return 0, invalid("sessions", "is required")
	}
	for i := range slots {
		if err := validateInput(slots[i]); err != nil {
			return 0, err
		}
	}

	err := s.withOwnerTx(ctx, ownerID, func(ctx context.Context, tx Store) error {
		pkg, err := tx.GetPackage(ctx, ownerID, packageID)
		if err != nil {
			return err
		}
		if pkg.Status == PackageCancelled {
			return ErrPackageClosed
		}

		existing, err := tx.ListPackageSessions(ctx, pkg.ID)
		if err != nil {
			return fmt.Errorf("load package sessions: %w", err)
		}
		if remaining := pkg.TotalSessions - len(existing); len(slots) > remaining {
			return &CapacityError{Requested: len(slots), Remaining: max(remaining, 0)}
		}

		if err := checkSlots(ctx, tx, ownerID, slots); err != nil {
			return err
		}

		ids := make([]uuid.UUID, len(existing))
		for i := range existing {
			ids[i] = existing[i].ID
		}
		payments, err := tx.ListPaymentsBySessions(ctx, ids)
		if err != nil {
			return fmt.Errorf("load package payments: %w", err)
		}

		added, err := s.insertPackageSessions(ctx, tx, pkg, existing, slots, paidReceipt(payments), s.now())
		if err != nil {
			return err
		}

		if isExhausted(pkg, append(existing, added...)) {
			if err := tx.UpdatePackageStatus(ctx, pkg.ID, PackageCompleted); err != nil {
				return fmt.Errorf("complete package: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logEvent(ctx, ownerID, &packageID, EventPackageSessionsAdded, map[string]any{
		"count": len(slots),
	})
	return len(slots), nil
}

// insertPackageSessions writes sessions after the existing ones. When
// prepaid is set each new billable session gets a PAID payment carrying the
// same method and receipt.
func (s *Service) insertPackageSessions(ctx context.Context, tx Store, pkg *SessionPackage, existing []Session, slots []PackageSessionInput, prepaid *Payment, now time.Time) ([]Session, error) {
	if len(slots) == 0 {
		return nil, nil
	}

	price, err := resolvePrice(ctx, tx, pkg.PatientID, nil, pkg)
	if err != nil {
		return nil, err
	}

	order := nextPackageOrder(pkg.LastOrder, existing)
	added := make([]Session, len(slots))
	for i, sl := range slots {
		added[i] = Session{
			ID:              uuid.New(),
			OwnerID:         pkg.OwnerID,
			PatientID:       pkg.PatientID,
			StartTime:       sl.StartTime,
			DurationMinutes: sl.DurationMinutes,
			Status:          StatusScheduled,
			IsCourtesy:      sl.IsCourtesy,
			Membership:      &PackageMembership{PackageID: pkg.ID, Order: order + i},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.InsertSession(ctx, &added[i]); err != nil {
			return nil, fmt.Errorf("insert package session %d: %w", order+i, err)
		}

		if sl.IsCourtesy {
			continue
		}
		var p *Payment
		if prepaid != nil {
			p = newPayment(added[i].ID, price, true, &PaymentMeta{
				Method:  prepaid.Method,
				Notes:   prepaid.Notes,
				Receipt: prepaid.Receipt,
			}, now)
		} else {
			p = newPayment(added[i].ID, price, false, nil, now)
		}
		if err := tx.InsertPayment(ctx, p); err != nil {
			return nil, fmt.Errorf("insert payment for package session %d: %w", order+i, err)
		}
	}

	last := order + len(slots) - 1
	if err := tx.SetPackageLastOrder(ctx, pkg.ID, last); err != nil {
		return nil, fmt.Errorf("record package order: %w", err)
	}
	pkg.LastOrder = last
	return added, nil
}

func checkSlots(ctx context.Context, tx Store, ownerID uuid.UUID, in []PackageSessionInput) error {
	slots := make([]Slot, len(in))
	for i := range in {
		slots[i] = Slot{Start: in[i].StartTime, DurationMinutes: in[i].DurationMinutes}
	}
	conflicts, err := collectConflicts(ctx, tx, ownerID, slots)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return &ConflictError{Slots: conflicts}
	}
	return nil
}

// CancelPackage closes a package. Open sessions are cancelled and their
// pending payments with them; completed and no-show sessions stay as they
// are. Cancelling twice is a no-op; a completed package cannot be cancelled.
func (s *Service) CancelPackage(ctx context.Context, ownerID, packageID uuid.UUID) (*PackageDetail, error) {
	var out *PackageDetail
	err := s.withOwnerTx(ctx, ownerID, func(ctx context.Context, tx Store) error {
		pkg, err := tx.GetPackage(ctx, ownerID, packageID)
		if err != nil {
			return err
		}

		if pkg.Status == PackageCompleted {
			return ErrPackageClosed
		}
		if pkg.Status == PackageActive {
			sessions, err := tx.ListPackageSessions(ctx, pkg.ID)
			if err != nil {
				return fmt.Errorf("load package sessions: %w", err)
			}
			for _, sess := range sessions {
				if !canTransition(sess.Status, StatusCancelled) {
					continue
				}
				if _, err := tx.UpdateSessionStatus(ctx, sess.ID, StatusCancelled); err != nil {
					return fmt.Errorf("cancel package session: %w", err)
				}
				if err := s.cancelSessionPayment(ctx, tx, sess.ID, true); err != nil {
					return err
				}
			}
			if err := tx.UpdatePackageStatus(ctx, pkg.ID, PackageCancelled); err != nil {
				return fmt.Errorf("cancel package: %w", err)
			}
		}

		out, err = loadPackageDetail(ctx, tx, ownerID, pkg.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, ownerID, &packageID, EventPackageCancelled, map[string]any{})
	return out, nil
}

// DeletePackage removes a package with its sessions, payments and pricing
// plan. A package with any completed session is kept.
func (s *Service) DeletePackage(ctx context.Context, ownerID, packageID uuid.UUID) error {
	err := s.withOwnerTx(ctx, ownerID, func(ctx context.Context, tx Store) error {
		pkg, err := tx.GetPackage(ctx, ownerID, packageID)
		if err != nil {
			return err
		}

		sessions, err := tx.ListPackageSessions(ctx, pkg.ID)
		if err != nil {
			return fmt.Errorf("load package sessions: %w", err)
		}
		if hasCompleted(sessions) {
			return ErrPackageHasCompletedSessions
		}

		if err := tx.DeletePackage(ctx, pkg.ID); err != nil {
			return fmt.Errorf("delete package: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logEvent(ctx, ownerID, &packageID, EventPackageDeleted, map[string]any{})
	return nil
}

func (s *Service) PackageStats(ctx context.Context, ownerID, packageID uuid.UUID) (*PackageStats, error) {
	pkg, err := s.repo.GetPackage(ctx, ownerID, packageID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.repo.ListPackageSessions(ctx, pkg.ID)
	if err != nil {
		return nil, fmt.Errorf("load package sessions: %w", err)
	}
	st := ComputeStats(pkg, sessions)
	return &st, nil
}

func (s *Service) GetPackage(ctx context.Context, ownerID, packageID uuid.UUID) (*PackageDetail, error) {
	return loadPackageDetail(ctx, s.repo, ownerID, packageID)
}

// completePackageIfExhausted flips the package to COMPLETED once all of its
// slots are used by completed sessions.
func (s *Service) completePackageIfExhausted(ctx context.Context, tx Store, ownerID, packageID uuid.UUID) error {
	pkg, err := tx.GetPackage(ctx, ownerID, packageID)
	if err != nil {
		return err
	}
	if pkg.Status != PackageActive {
		return nil
	}

	sessions, err := tx.ListPackageSessions(ctx, pkg.ID)
	if err != nil {
		return fmt.Errorf("load package sessions: %w", err)
	}
	if !isExhausted(pkg, sessions) {
		return nil
	}
	if err := tx.UpdatePackageStatus(ctx, pkg.ID, PackageCompleted); err != nil {
		return fmt.Errorf("complete package: %w", err)
	}
	return nil
}

func loadPackageDetail(ctx context.Context, store Store, ownerID, packageID uuid.UUID) (*PackageDetail, error) {
	pkg, err := store.GetPackage(ctx, ownerID, packageID)
	if err != nil {
		return nil, err
	}

	sessions, err := store.ListPackageSessions(ctx, pkg.ID)
	if err != nil {
		return nil, fmt.Errorf("load package sessions: %w", err)
	}
	sortByStart(sessions)

	ids := make([]uuid.UUID, len(sessions))
	for i := range sessions {
		ids[i] = sessions[i].ID
	}
	payments, err := store.ListPaymentsBySessions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load package payments: %w", err)
	}

	detail := &PackageDetail{
		Package:  *pkg,
		Sessions: make([]SessionDetail, len(sessions)),
		Stats:    ComputeStats(pkg, sessions),
	}
	for i := range sessions {
		detail.Sessions[i] = SessionDetail{Session: sessions[i]}
		if p, ok := payments[sessions[i].ID]; ok {
			pc := p
			detail.Sessions[i].Payment = &pc
		}
	}
	return detail, nil
}
