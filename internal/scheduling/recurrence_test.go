package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestGenerate_WeeklyByCount(t *testing.T) {
	start := date(2030, time.January, 7, 14, 30)

	got, err := Generate(start, PatternWeekly, Termination{Occurrences: 4})
	require.NoError(t, err)

	assert.Equal(t, []time.Time{
		start,
		date(2030, time.January, 14, 14, 30),
		date(2030, time.January, 21, 14, 30),
		date(2030, time.January, 28, 14, 30),
	}, got)
}

func TestGenerate_CountAndTimeOfDayForEveryPattern(t *testing.T) {
	start := date(2030, time.January, 31, 16, 45)

	for _, pattern := range []RecurrencePattern{PatternWeekly, PatternBiweekly, PatternMonthly} {
		for n := 2; n <= 52; n++ {
			got, err := Generate(start, pattern, Termination{Occurrences: n})
			require.NoError(t, err, "%s x%d", pattern, n)
			require.Len(t, got, n, "%s x%d", pattern, n)

			for i, at := range got {
				assert.Equal(t, 16, at.Hour(), "%s x%d #%d", pattern, n, i)
				assert.Equal(t, 45, at.Minute(), "%s x%d #%d", pattern, n, i)
				if i > 0 {
					assert.True(t, at.After(got[i-1]), "%s x%d #%d not increasing", pattern, n, i)
				}
			}
		}
	}
}

func TestGenerate_BiweeklyByEndDate(t *testing.T) {
	start := date(2030, time.March, 1, 9, 0)
	end := date(2030, time.April, 1, 0, 0)

	got, err := Generate(start, PatternBiweekly, Termination{EndDate: &end})
	require.NoError(t, err)

	assert.Equal(t, []time.Time{
		start,
		date(2030, time.March, 15, 9, 0),
		date(2030, time.March, 29, 9, 0),
	}, got)
}

func TestGenerate_EndDateIsInclusive(t *testing.T) {
	start := date(2030, time.March, 1, 9, 0)
	end := date(2030, time.March, 8, 9, 0)

	got, err := Generate(start, PatternWeekly, Termination{EndDate: &end})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestGenerate_EndDateBeforeStartYieldsStartOnly(t *testing.T) {
	start := date(2030, time.March, 10, 9, 0)
	end := date(2030, time.March, 1, 0, 0)

	got, err := Generate(start, PatternWeekly, Termination{EndDate: &end})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{start}, got)
}

func TestGenerate_MonthlyClampsToMonthEnd(t *testing.T) {
	start := date(2030, time.January, 31, 10, 0)

	got, err := Generate(start, PatternMonthly, Termination{Occurrences: 4})
	require.NoError(t, err)

	assert.Equal(t, []time.Time{
		start,
		date(2030, time.February, 28, 10, 0),
		date(2030, time.March, 31, 10, 0),
		date(2030, time.April, 30, 10, 0),
	}, got)
}

func TestGenerate_MonthlyLeapYear(t *testing.T) {
	start := date(2032, time.January, 30, 8, 0)

	got, err := Generate(start, PatternMonthly, Termination{Occurrences: 2})
	require.NoError(t, err)
	assert.Equal(t, date(2032, time.February, 29, 8, 0), got[1])
}

func TestGenerate_KeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}
	start := time.Date(2030, time.March, 4, 9, 0, 0, 0, loc)

	got, err := Generate(start, PatternWeekly, Termination{Occurrences: 3})
	require.NoError(t, err)

	for _, ts := range got {
		assert.Equal(t, 9, ts.Hour())
	}
}

func TestGenerate_RejectsBadInput(t *testing.T) {
	start := date(2030, time.January, 7, 10, 0)
	end := date(2030, time.February, 7, 10, 0)

	cases := []struct {
		name    string
		pattern RecurrencePattern
		term    Termination
	}{
		{"unknown pattern", RecurrencePattern("DAILY"), Termination{Occurrences: 3}},
		{"no termination", PatternWeekly, Termination{}},
		{"both terminations", PatternWeekly, Termination{Occurrences: 3, EndDate: &end}},
		{"one occurrence", PatternWeekly, Termination{Occurrences: 1}},
		{"too many occurrences", PatternWeekly, Termination{Occurrences: 53}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Generate(start, tc.pattern, tc.term)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestGenerate_BoundsOccurrences(t *testing.T) {
	start := date(2030, time.January, 7, 10, 0)

	got, err := Generate(start, PatternWeekly, Termination{Occurrences: MinOccurrences})
	require.NoError(t, err)
	assert.Len(t, got, MinOccurrences)

	got, err = Generate(start, PatternWeekly, Termination{Occurrences: MaxOccurrences})
	require.NoError(t, err)
	assert.Len(t, got, MaxOccurrences)
}

func TestGenerate_EndDateSeriesCappedAtMax(t *testing.T) {
	start := date(2030, time.January, 7, 10, 0)
	end := start.AddDate(2, 0, 0)

	_, err := Generate(start, PatternWeekly, Termination{EndDate: &end})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "end_date", ve.Field)
}
