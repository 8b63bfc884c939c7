package recurrence

import "time"

// CancellationSet holds the cancelled calendar dates of one office hour.
// Membership is decided by calendar date alone; time-of-day is ignored, so
// any timestamp falling on a cancelled day matches.
type CancellationSet struct {
	dates map[string]struct{}
}

// NewCancellationSet builds a set from the given dates.
func NewCancellationSet(dates ...time.Time) CancellationSet {
	s := CancellationSet{dates: make(map[string]struct{}, len(dates))}
	for _, d := range dates {
		s.Add(d)
	}
	return s
}

// Add inserts a date into the set. Adding a present date is a no-op.
func (s CancellationSet) Add(date time.Time) {
	s.dates[dayKey(date)] = struct{}{}
}

// Contains reports whether the date's calendar day is cancelled.
func (s CancellationSet) Contains(date time.Time) bool {
	_, ok := s.dates[dayKey(date)]
	return ok
}

// Len returns the number of distinct cancelled dates.
func (s CancellationSet) Len() int {
	return len(s.dates)
}

// dayKey reduces a timestamp to its wall-clock calendar date.
func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
