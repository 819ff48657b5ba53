package scheduling

import (
	"time"
)

const (
	MinOccurrences = 2
	MaxOccurrences = 52
)

// Termination ends a series. Exactly one of Occurrences or EndDate is set.
type Termination struct {
	Occurrences int
	EndDate     *time.Time
}

func (t Termination) validate() error {
	switch {
	case t.Occurrences != 0 && t.EndDate != nil:
		return invalid("termination", "must set occurrences or end date, not both")
	case t.Occurrences == 0 && t.EndDate == nil:
		return invalid("termination", "requires occurrences or end date")
	case t.EndDate == nil && (t.Occurrences < MinOccurrences || t.Occurrences > MaxOccurrences):
		return invalid("occurrences", "must be between %d and %d", MinOccurrences, MaxOccurrences)
	}
	return nil
}

// Generate returns start followed by each later occurrence of pattern until
// the termination is reached. Only the date advances; the wall clock time
// of start is kept. A series never exceeds MaxOccurrences.
func Generate(start time.Time, pattern RecurrencePattern, term Termination) ([]time.Time, error) {
	if !pattern.Valid() {
		return nil, invalid("pattern", "unknown recurrence pattern %q", pattern)
	}
	if err := term.validate(); err != nil {
		return nil, err
	}

	if term.EndDate != nil && term.EndDate.Before(start) {
		return []time.Time{start}, nil
	}

	out := []time.Time{start}
	for i := 1; ; i++ {
		if term.EndDate == nil && len(out) == term.Occurrences {
			return out, nil
		}

		next := occurrence(start, pattern, i)
		if term.EndDate != nil && next.After(*term.EndDate) {
			return out, nil
		}
		if len(out) == MaxOccurrences {
			return nil, invalid("end_date", "series would exceed %d sessions", MaxOccurrences)
		}
		out = append(out, next)
	}
}

// occurrence computes the i-th step from the anchor rather than from the
// previous step, so a monthly series on the 31st returns to the 31st after
// a short month.
func occurrence(start time.Time, pattern RecurrencePattern, i int) time.Time {
	switch pattern {
	case PatternWeekly:
		return start.AddDate(0, 0, 7*i)
	case PatternBiweekly:
		return start.AddDate(0, 0, 14*i)
	default:
		return addMonthsClamped(start, i)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
