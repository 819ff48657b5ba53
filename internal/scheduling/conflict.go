package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// conflictLookback must cover the longest allowed session so that anything
// still running at the candidate start is fetched.
const conflictLookback = MaxDurationMinutes * time.Minute

// Overlaps reports whether [candStart, candStart+candDur) intersects
// [exStart, exStart+exDur). Back-to-back intervals do not overlap.
func Overlaps(candStart time.Time, candDur time.Duration, exStart time.Time, exDur time.Duration) bool {
	candEnd := candStart.Add(candDur)
	exEnd := exStart.Add(exDur)

	startsInside := !candStart.Before(exStart) && candStart.Before(exEnd)
	endsInside := candEnd.After(exStart) && !candEnd.After(exEnd)
	contains := !candStart.After(exStart) && !candEnd.Before(exEnd)

	return startsInside || endsInside || contains
}

// firstOverlap returns the first session in existing that overlaps the
// candidate, ignoring cancelled sessions and the excluded id.
func firstOverlap(existing []Session, start time.Time, durationMinutes int, exclude *uuid.UUID) *Session {
	dur := minutes(durationMinutes)
	for i := range existing {
		s := &existing[i]
		if s.Status == StatusCancelled {
			continue
		}
		if exclude != nil && s.ID == *exclude {
			continue
		}
		if Overlaps(start, dur, s.StartTime, minutes(s.DurationMinutes)) {
			return s
		}
	}
	return nil
}

// HasConflict checks one candidate slot against the owner's calendar.
func HasConflict(ctx context.Context, store Store, ownerID uuid.UUID, start time.Time, durationMinutes int, exclude *uuid.UUID) (bool, error) {
	end := start.Add(minutes(durationMinutes))

	existing, err := store.ListActiveSessionsInWindow(ctx, ownerID, start.Add(-conflictLookback), end)
	if err != nil {
		return false, fmt.Errorf("load sessions for conflict check: %w", err)
	}
	return firstOverlap(existing, start, durationMinutes, exclude) != nil, nil
}

// Slot is a requested start and length.
type Slot struct {
	Start           time.Time
	DurationMinutes int
}

// collectConflicts checks every slot independently, against the stored
// calendar and against the slots before it in the same request, and returns
// the starts of all that collide. It never stops at the first hit.
func collectConflicts(ctx context.Context, store Store, ownerID uuid.UUID, slots []Slot) ([]time.Time, error) {
	var conflicts []time.Time
	for i, sl := range slots {
		hit, err := HasConflict(ctx, store, ownerID, sl.Start, sl.DurationMinutes, nil)
		if err != nil {
			return nil, err
		}
		for j := 0; !hit && j < i; j++ {
			prev := slots[j]
			hit = Overlaps(sl.Start, minutes(sl.DurationMinutes), prev.Start, minutes(prev.DurationMinutes))
		}
		if hit {
			conflicts = append(conflicts, sl.Start)
		}
	}
	return conflicts, nil
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
