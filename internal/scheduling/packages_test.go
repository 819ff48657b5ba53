package scheduling

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func pkgSessions(pkgID uuid.UUID, statuses ...SessionStatus) []Session {
	out := make([]Session, len(statuses))
	for i, st := range statuses {
		out[i] = Session{
			ID:         uuid.New(),
			Status:     st,
			Membership: &PackageMembership{PackageID: pkgID, Order: i + 1},
		}
	}
	return out
}

func TestComputeStats(t *testing.T) {
	pkg := &SessionPackage{ID: uuid.New(), TotalSessions: 10}
	sessions := pkgSessions(pkg.ID,
		StatusScheduled, StatusConfirmed, StatusCompleted, StatusCompleted,
		StatusNoShow, StatusCancelled,
	)

	st := ComputeStats(pkg, sessions)

	assert.Equal(t, PackageStats{
		Scheduled:      2,
		Completed:      2,
		NoShow:         1,
		Cancelled:      1,
		Consumed:       3,
		RemainingSlots: 4,
		TotalScheduled: 6,
	}, st)
}

func TestComputeStats_RemainingNeverNegative(t *testing.T) {
	pkg := &SessionPackage{ID: uuid.New(), TotalSessions: 1}
	st := ComputeStats(pkg, pkgSessions(pkg.ID, StatusScheduled, StatusScheduled))
	assert.Equal(t, 0, st.RemainingSlots)
}

func TestIsExhausted(t *testing.T) {
	pkg := &SessionPackage{ID: uuid.New(), TotalSessions: 2}

	assert.False(t, isExhausted(pkg, pkgSessions(pkg.ID, StatusCompleted)))
	assert.False(t, isExhausted(pkg, pkgSessions(pkg.ID, StatusCompleted, StatusScheduled)))
	assert.True(t, isExhausted(pkg, pkgSessions(pkg.ID, StatusCompleted, StatusCompleted)))
}

func TestNextPackageOrder_SkipsGaps(t *testing.T) {
	pkgID := uuid.New()
	sessions := []Session{
		{Membership: &PackageMembership{PackageID: pkgID, Order: 1}},
		{Membership: &PackageMembership{PackageID: pkgID, Order: 4}},
	}

	assert.Equal(t, 5, nextPackageOrder(0, sessions))
	assert.Equal(t, 1, nextPackageOrder(0, nil))
}

func TestNextPackageOrder_HighWaterMarkWins(t *testing.T) {
	pkgID := uuid.New()
	sessions := []Session{
		{Membership: &PackageMembership{PackageID: pkgID, Order: 1}},
		{Membership: &PackageMembership{PackageID: pkgID, Order: 2}},
	}

	assert.Equal(t, 4, nextPackageOrder(3, sessions))
	assert.Equal(t, 8, nextPackageOrder(7, nil))
	assert.Equal(t, 3, nextPackageOrder(1, sessions))
}

func TestPricePerSessionCents(t *testing.T) {
	pkg := &SessionPackage{TotalSessions: 3, TotalPriceCents: 1000}
	assert.Equal(t, int64(333), pkg.PricePerSessionCents())

	pkg = &SessionPackage{TotalSessions: 0, TotalPriceCents: 1000}
	assert.Equal(t, int64(0), pkg.PricePerSessionCents())
}

func TestPaidReceipt_PicksLatestPaidWithReceipt(t *testing.T) {
	older := date(2030, time.January, 1, 10, 0)
	newer := date(2030, time.January, 8, 10, 0)
	rc := &Receipt{URL: "https://files.example/r1.pdf", Filename: "r1.pdf"}
	rc2 := &Receipt{URL: "https://files.example/r2.pdf", Filename: "r2.pdf"}

	payments := map[uuid.UUID]Payment{
		uuid.New(): {Status: PaymentPending, Receipt: rc},
		uuid.New(): {Status: PaymentPaid, PaidAt: &older, Receipt: rc},
		uuid.New(): {Status: PaymentPaid, PaidAt: &newer, Receipt: rc2},
		uuid.New(): {Status: PaymentPaid, PaidAt: &newer},
	}

	got := paidReceipt(payments)
	if assert.NotNil(t, got) {
		assert.Equal(t, rc2, got.Receipt)
	}

	assert.Nil(t, paidReceipt(map[uuid.UUID]Payment{}))
}
