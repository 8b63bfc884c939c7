package models

import "time"

// OfficeHour is a staff-hosted availability window, either single-shot or
// recurring over a weekday set between StartAt and EndAt.
type OfficeHour struct {
	ID       string `db:"id" json:"id"`
	CourseID string `db:"course_id" json:"course_id"`
	Location string `db:"location" json:"location"`
	// StartAt carries both the recurrence range start and the wall-clock
	// start time of each instance; EndAt carries the range end and the
	// wall-clock end time.
	StartAt   time.Time `db:"start_at" json:"start_at"`
	EndAt     time.Time `db:"end_at" json:"end_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// Weekdays is empty for single-shot office hours.
	Weekdays []time.Weekday `db:"-" json:"weekdays"`
	// HostIDs is the shared-ownership set; removing the last host deletes
	// the office hour.
	HostIDs []string `db:"-" json:"host_ids"`
	// CancelledOn lists cancelled calendar dates; the set only grows.
	CancelledOn []time.Time `db:"-" json:"cancelled_on"`
}

// IsRecurring is derived from the weekday set.
func (o OfficeHour) IsRecurring() bool {
	return len(o.Weekdays) > 0
}

// TimeOption defines a bookable slot type within an office hour.
type TimeOption struct {
	ID              string `db:"id" json:"id"`
	OfficeHourID    string `db:"office_hour_id" json:"office_hour_id"`
	Title           string `db:"title" json:"title"`
	DurationMinutes int    `db:"duration_minutes" json:"duration_minutes"`
}

// Instance is one concrete occurrence of an office hour. Instances are
// derived on demand and never persisted.
type Instance struct {
	OfficeHourID string    `json:"office_hour_id"`
	CourseID     string    `json:"course_id"`
	Location     string    `json:"location"`
	HostIDs      []string  `json:"host_ids"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
}
