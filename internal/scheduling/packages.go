package scheduling

import (
	"github.com/google/uuid"
)

type PackageStats struct {
	Scheduled      int
	Completed      int
	NoShow         int
	Cancelled      int
	Consumed       int // completed + no-show
	RemainingSlots int
	TotalScheduled int
}

// ComputeStats counts a package's sessions. Every materialized session holds
// a slot whatever its status; only deleting it frees the slot.
func ComputeStats(pkg *SessionPackage, sessions []Session) PackageStats {
	var st PackageStats
	for _, s := range sessions {
		switch s.Status {
		case StatusScheduled, StatusConfirmed:
			st.Scheduled++
		case StatusCompleted:
			st.Completed++
		case StatusNoShow:
			st.NoShow++
		case StatusCancelled:
			st.Cancelled++
		}
	}
	st.Consumed = st.Completed + st.NoShow
	st.TotalScheduled = len(sessions)
	st.RemainingSlots = pkg.TotalSessions - len(sessions)
	if st.RemainingSlots < 0 {
		st.RemainingSlots = 0
	}
	return st
}

// isExhausted is true once every slot is used and every session completed.
func isExhausted(pkg *SessionPackage, sessions []Session) bool {
	if len(sessions) < pkg.TotalSessions {
		return false
	}
	for _, s := range sessions {
		if s.Status != StatusCompleted {
			return false
		}
	}
	return true
}

func hasCompleted(sessions []Session) bool {
	for _, s := range sessions {
		if s.Status == StatusCompleted {
			return true
		}
	}
	return false
}

// nextPackageOrder continues numbering after the highest order the package
// has ever handed out, so orders freed by deletions are never reused.
func nextPackageOrder(lastOrder int, sessions []Session) int {
	highest := lastOrder
	for i := range sessions {
		if pm := sessions[i].Package(); pm != nil && pm.Order > highest {
			highest = pm.Order
		}
	}
	return highest + 1
}

// paidReceipt finds a paid payment with a stored receipt. A package paid
// once in full covers the sessions added to it later.
func paidReceipt(payments map[uuid.UUID]Payment) *Payment {
	var found *Payment
	for _, p := range payments {
		if p.Status != PaymentPaid || p.Receipt == nil {
			continue
		}
		if found == nil || (p.PaidAt != nil && found.PaidAt != nil && p.PaidAt.After(*found.PaidAt)) {
			cp := p
			found = &cp
		}
	}
	return found
}
