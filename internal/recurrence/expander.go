package recurrence

import (
	"sort"
	"time"

	"github.com/noah-isme/office-hours-api/internal/models"
)

// Expander turns office hour definitions into concrete instances. Expansion
// is pure: identical inputs always yield identical sequences.
type Expander struct {
	location *time.Location
}

// NewExpander constructs an Expander that interprets wall-clock times in the
// provided location. If loc is nil, UTC is used.
func NewExpander(loc *time.Location) *Expander {
	if loc == nil {
		loc = time.UTC
	}
	return &Expander{location: loc}
}

// Expand generates the ordered, finite instance sequence for an office hour.
//
// Semantics:
//   - An empty weekday set yields at most one instance spanning the full
//     range, skipped when its date is cancelled.
//   - Otherwise the cursor walks the sorted weekday set cyclically from the
//     first occurrence on or after the range start, while cursor < range end.
//   - Instance ends take the range end's wall-clock time-of-day on the
//     cursor's date; computing them in the expander's zone lets the time
//     library absorb DST transitions. An end at or before the start rolls
//     forward one day to cover windows crossing midnight.
//   - Cancelled dates are skipped without disturbing the cursor walk.
func (e *Expander) Expand(oh models.OfficeHour, cancelled CancellationSet) []models.Instance {
	loc := e.location
	if loc == nil {
		loc = time.UTC
	}

	start := oh.StartAt.In(loc)
	end := oh.EndAt.In(loc)

	if len(oh.Weekdays) == 0 {
		if cancelled.Contains(start) {
			return nil
		}
		return []models.Instance{e.instance(oh, start, end)}
	}

	days := sortedWeekdays(oh.Weekdays)
	cursor := alignToFirst(start, days)

	var instances []models.Instance
	for cursor.Before(end) {
		if !cancelled.Contains(cursor) {
			instEnd := onDate(cursor, end, loc)
			if !instEnd.After(cursor) {
				instEnd = instEnd.AddDate(0, 0, 1)
			}
			instances = append(instances, e.instance(oh, cursor, instEnd))
		}
		cursor = advance(cursor, days)
	}

	return instances
}

func (e *Expander) instance(oh models.OfficeHour, start, end time.Time) models.Instance {
	hosts := make([]string, len(oh.HostIDs))
	copy(hosts, oh.HostIDs)
	return models.Instance{
		OfficeHourID: oh.ID,
		CourseID:     oh.CourseID,
		Location:     oh.Location,
		HostIDs:      hosts,
		Start:        start,
		End:          end,
	}
}

// sortedWeekdays returns the distinct weekdays in ascending order.
func sortedWeekdays(weekdays []time.Weekday) []time.Weekday {
	seen := make(map[time.Weekday]struct{}, len(weekdays))
	days := make([]time.Weekday, 0, len(weekdays))
	for _, d := range weekdays {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// alignToFirst moves start forward to the first selected weekday, cycling
// through the week when none of the selected days remains in it.
func alignToFirst(start time.Time, days []time.Weekday) time.Time {
	current := start.Weekday()
	delta := 7
	for _, d := range days {
		diff := (int(d) - int(current) + 7) % 7
		if diff < delta {
			delta = diff
		}
	}
	if delta == 0 {
		return start
	}
	return start.AddDate(0, 0, delta)
}

// advance steps the cursor to the next selected weekday. A single-day set
// wraps a full week.
func advance(cursor time.Time, days []time.Weekday) time.Time {
	current := cursor.Weekday()
	next := days[0]
	for _, d := range days {
		if d > current {
			next = d
			break
		}
	}
	delta := int(next) - int(current)
	if delta <= 0 {
		delta += 7
	}
	return cursor.AddDate(0, 0, delta)
}

// onDate applies template's wall-clock time-of-day to the target's date.
func onDate(target, template time.Time, loc *time.Location) time.Time {
	y, m, d := target.In(loc).Date()
	tpl := template.In(loc)
	return time.Date(y, m, d, tpl.Hour(), tpl.Minute(), tpl.Second(), tpl.Nanosecond(), loc)
}
