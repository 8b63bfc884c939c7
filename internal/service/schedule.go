package service

import (
	"time"

	"github.com/noah-isme/office-hours-api/internal/models"
	"github.com/noah-isme/office-hours-api/internal/recurrence"
)

// courseLocation resolves the zone instances are expanded in. Courses may
// carry their own IANA zone; unset or unknown zones fall back to the
// deployment default.
func courseLocation(course *models.Course, fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	if course == nil || course.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(course.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// expandOfficeHour materialises the concrete occurrences of one office hour
// in the course's zone, with cancelled dates removed.
func expandOfficeHour(oh models.OfficeHour, course *models.Course, fallback *time.Location) []models.Instance {
	loc := courseLocation(course, fallback)
	cancelled := recurrence.NewCancellationSet(oh.CancelledOn...)
	return recurrence.NewExpander(loc).Expand(oh, cancelled)
}

// findInstance returns the occurrence starting exactly at start, if any.
func findInstance(instances []models.Instance, start time.Time) (models.Instance, bool) {
	for _, inst := range instances {
		if inst.Start.Equal(start) {
			return inst, true
		}
	}
	return models.Instance{}, false
}
