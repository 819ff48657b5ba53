package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlaps(t *testing.T) {
	ex := date(2030, time.January, 7, 10, 0)
	hour := time.Hour

	cases := []struct {
		name  string
		start time.Time
		dur   time.Duration
		want  bool
	}{
		{"same slot", ex, hour, true},
		{"starts inside", ex.Add(30 * time.Minute), hour, true},
		{"ends inside", ex.Add(-30 * time.Minute), hour, true},
		{"contains existing", ex.Add(-10 * time.Minute), 90 * time.Minute, true},
		{"inside existing", ex.Add(10 * time.Minute), 20 * time.Minute, true},
		{"back to back after", ex.Add(hour), hour, false},
		{"back to back before", ex.Add(-hour), hour, false},
		{"well before", ex.Add(-3 * hour), hour, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(tc.start, tc.dur, ex, hour))
		})
	}
}

func TestFirstOverlap_SkipsCancelledAndExcluded(t *testing.T) {
	start := date(2030, time.January, 7, 10, 0)
	cancelled := Session{ID: uuid.New(), StartTime: start, DurationMinutes: 60, Status: StatusCancelled}
	self := Session{ID: uuid.New(), StartTime: start, DurationMinutes: 60, Status: StatusScheduled}

	hit := firstOverlap([]Session{cancelled, self}, start, 60, &self.ID)
	assert.Nil(t, hit)

	hit = firstOverlap([]Session{cancelled, self}, start, 60, nil)
	require.NotNil(t, hit)
	assert.Equal(t, self.ID, hit.ID)
}

func TestHasConflict_SeesLongSessionStartedEarlier(t *testing.T) {
	repo := newMemRepo()
	owner := uuid.New()
	start := date(2030, time.January, 7, 10, 0)
	repo.putSession(Session{
		ID:              uuid.New(),
		OwnerID:         owner,
		StartTime:       start.Add(-150 * time.Minute),
		DurationMinutes: MaxDurationMinutes,
		Status:          StatusScheduled,
	})

	hit, err := HasConflict(context.Background(), repo, owner, start, 15, nil)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestHasConflict_IgnoresOtherOwners(t *testing.T) {
	repo := newMemRepo()
	start := date(2030, time.January, 7, 10, 0)
	repo.putSession(Session{
		ID:              uuid.New(),
		OwnerID:         uuid.New(),
		StartTime:       start,
		DurationMinutes: 60,
		Status:          StatusScheduled,
	})

	hit, err := HasConflict(context.Background(), repo, uuid.New(), start, 60, nil)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCollectConflicts_ReportsEveryHit(t *testing.T) {
	repo := newMemRepo()
	owner := uuid.New()
	base := date(2030, time.January, 7, 10, 0)
	repo.putSession(Session{ID: uuid.New(), OwnerID: owner, StartTime: base, DurationMinutes: 60, Status: StatusScheduled})

	slots := []Slot{
		{Start: base, DurationMinutes: 60},
		{Start: base.Add(2 * time.Hour), DurationMinutes: 60},
		{Start: base.Add(2*time.Hour + 30*time.Minute), DurationMinutes: 60},
		{Start: base.Add(4 * time.Hour), DurationMinutes: 60},
	}

	got, err := collectConflicts(context.Background(), repo, owner, slots)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{base, base.Add(2*time.Hour + 30*time.Minute)}, got)
}
