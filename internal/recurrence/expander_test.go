package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/office-hours-api/internal/models"
)

func mustLoadLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func weeklyOfficeHour(start, end time.Time, days ...time.Weekday) models.OfficeHour {
	return models.OfficeHour{
		ID:       "oh-1",
		CourseID: "course-1",
		Location: "Room 204",
		HostIDs:  []string{"host-1"},
		StartAt:  start,
		EndAt:    end,
		Weekdays: days,
	}
}

func TestExpandMonWedFri(t *testing.T) {
	loc := mustLoadLocation(t, "America/New_York")
	exp := NewExpander(loc)

	// 2023-09-04 is a Monday.
	start := time.Date(2023, 9, 4, 14, 0, 0, 0, loc)
	end := time.Date(2023, 9, 18, 15, 0, 0, 0, loc)
	oh := weeklyOfficeHour(start, end, time.Monday, time.Wednesday, time.Friday)

	instances := exp.Expand(oh, NewCancellationSet())
	require.Len(t, instances, 7)

	wantDays := []int{4, 6, 8, 11, 13, 15, 18}
	for i, inst := range instances {
		assert.Equal(t, wantDays[i], inst.Start.Day())
		assert.Equal(t, 14, inst.Start.Hour())
		assert.Equal(t, 15, inst.End.Hour())
		switch inst.Start.Weekday() {
		case time.Monday, time.Wednesday, time.Friday:
		default:
			t.Fatalf("instance %d on unexpected weekday %s", i, inst.Start.Weekday())
		}
		if i > 0 {
			assert.True(t, instances[i-1].Start.Before(inst.Start), "instances must be ascending")
		}
	}
}

func TestExpandIsIdempotent(t *testing.T) {
	loc := mustLoadLocation(t, "America/New_York")
	exp := NewExpander(loc)

	start := time.Date(2023, 9, 4, 14, 0, 0, 0, loc)
	end := time.Date(2023, 10, 30, 15, 0, 0, 0, loc)
	oh := weeklyOfficeHour(start, end, time.Tuesday, time.Thursday)
	cancelled := NewCancellationSet(time.Date(2023, 9, 14, 0, 0, 0, 0, time.UTC))

	first := exp.Expand(oh, cancelled)
	second := exp.Expand(oh, cancelled)
	assert.Equal(t, first, second)
}

func TestExpandCancellationRemovesExactlyOne(t *testing.T) {
	loc := mustLoadLocation(t, "America/New_York")
	exp := NewExpander(loc)

	start := time.Date(2023, 9, 4, 14, 0, 0, 0, loc)
	end := time.Date(2023, 9, 18, 15, 0, 0, 0, loc)
	oh := weeklyOfficeHour(start, end, time.Monday, time.Wednesday, time.Friday)

	full := exp.Expand(oh, NewCancellationSet())
	reduced := exp.Expand(oh, NewCancellationSet(time.Date(2023, 9, 8, 0, 0, 0, 0, time.UTC)))
	require.Len(t, reduced, len(full)-1)

	for _, inst := range reduced {
		assert.NotEqual(t, 8, inst.Start.Day())
	}
	// All surviving instances are unchanged.
	j := 0
	for _, inst := range full {
		if inst.Start.Day() == 8 {
			continue
		}
		assert.Equal(t, inst, reduced[j])
		j++
	}
}

func TestExpandCancelledFirstOccurrenceKeepsWalk(t *testing.T) {
	loc := mustLoadLocation(t, "America/New_York")
	exp := NewExpander(loc)

	start := time.Date(2023, 9, 4, 14, 0, 0, 0, loc)
	end := time.Date(2023, 9, 18, 15, 0, 0, 0, loc)
	oh := weeklyOfficeHour(start, end, time.Monday, time.Wednesday, time.Friday)

	instances := exp.Expand(oh, NewCancellationSet(start))
	require.Len(t, instances, 6)
	assert.Equal(t, 6, instances[0].Start.Day())
}

func TestExpandSingleWeekdayWrapsFullWeek(t *testing.T) {
	loc := mustLoadLocation(t, "America/New_York")
	exp := NewExpander(loc)

	start := time.Date(2023, 9, 5, 10, 0, 0, 0, loc) // Tuesday
	end := time.Date(2023, 9, 26, 11, 0, 0, 0, loc)
	oh := weeklyOfficeHour(start, end, time.Tuesday)

	instances := exp.Expand(oh, NewCancellationSet())
	require.Len(t, instances, 4)
	for i := 1; i < len(instances); i++ {
		assert.Equal(t, 7*24*time.Hour, instances[i].Start.Sub(instances[i-1].Start))
	}
}

func TestExpandSingleShot(t *testing.T) {
	loc := mustLoadLocation(t, "America/New_York")
	exp := NewExpander(loc)

	start := time.Date(2023, 9, 7, 9, 0, 0, 0, loc)
	end := time.Date(2023, 9, 7, 11, 0, 0, 0, loc)
	oh := weeklyOfficeHour(start, end)

	instances := exp.Expand(oh, NewCancellationSet())
	require.Len(t, instances, 1)
	assert.True(t, instances[0].Start.Equal(start))
	assert.True(t, instances[0].End.Equal(end))

	cancelled := exp.Expand(oh, NewCancellationSet(start))
	assert.Empty(t, cancelled)
}

func TestExpandKeepsWallClockAcrossDSTFallBack(t *testing.T) {
	loc := mustLoadLocation(t, "America/New_York")
	exp := NewExpander(loc)

	// DST ends 2023-11-05; the walk crosses it.
	start := time.Date(2023, 10, 27, 14, 0, 0, 0, loc) // Friday
	end := time.Date(2023, 11, 17, 15, 30, 0, 0, loc)
	oh := weeklyOfficeHour(start, end, time.Friday)

	instances := exp.Expand(oh, NewCancellationSet())
	require.Len(t, instances, 4)
	for _, inst := range instances {
		assert.Equal(t, 14, inst.Start.Hour())
		assert.Equal(t, 15, inst.End.Hour())
		assert.Equal(t, 30, inst.End.Minute())
		assert.Equal(t, 90*time.Minute, inst.End.Sub(inst.Start))
	}
}

func TestExpandKeepsWallClockAcrossDSTSpringForward(t *testing.T) {
	loc := mustLoadLocation(t, "America/New_York")
	exp := NewExpander(loc)

	// DST starts 2024-03-10.
	start := time.Date(2024, 3, 6, 9, 0, 0, 0, loc) // Wednesday
	end := time.Date(2024, 3, 20, 10, 0, 0, 0, loc)
	oh := weeklyOfficeHour(start, end, time.Wednesday)

	instances := exp.Expand(oh, NewCancellationSet())
	require.Len(t, instances, 3)
	for _, inst := range instances {
		assert.Equal(t, 9, inst.Start.Hour())
		assert.Equal(t, 10, inst.End.Hour())
	}
}

func TestExpandWindowCrossingMidnight(t *testing.T) {
	loc := mustLoadLocation(t, "America/New_York")
	exp := NewExpander(loc)

	// Start at 22:00, end wall time 01:00: each instance ends the next day.
	start := time.Date(2023, 9, 4, 22, 0, 0, 0, loc)
	end := time.Date(2023, 9, 19, 1, 0, 0, 0, loc)
	oh := weeklyOfficeHour(start, end, time.Monday)

	instances := exp.Expand(oh, NewCancellationSet())
	require.Len(t, instances, 3)
	for _, inst := range instances {
		assert.True(t, inst.End.After(inst.Start))
		assert.Equal(t, inst.Start.Day()+1, inst.End.Day())
		assert.Equal(t, 1, inst.End.Hour())
	}
}

func TestCancellationSetAddIsIdempotent(t *testing.T) {
	set := NewCancellationSet()
	day := time.Date(2023, 9, 8, 0, 0, 0, 0, time.UTC)

	set.Add(day)
	set.Add(day.Add(3 * time.Hour)) // same calendar date
	assert.Equal(t, 1, set.Len())
	assert.True(t, set.Contains(day))
	assert.False(t, set.Contains(day.AddDate(0, 0, 1)))
}
