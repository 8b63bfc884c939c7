package service

import (
	"time"

	"github.com/noah-isme/office-hours-api/internal/models"
)

// AdmissionDecision is the outcome of a registration window check.
type AdmissionDecision string

const (
	AdmissionOpen               AdmissionDecision = "OPEN"
	AdmissionClosedBeforeWindow AdmissionDecision = "CLOSED_BEFORE_WINDOW"
	AdmissionClosedAfterWindow  AdmissionDecision = "CLOSED_AFTER_WINDOW"
	AdmissionArchivedBlocked    AdmissionDecision = "ARCHIVED"
)

// Admission carries the window decision plus the non-fatal paused advisory.
// The advisory never blocks registration; it is surfaced to the caller as a
// warning next to whatever decision applies.
type Admission struct {
	Decision       AdmissionDecision `json:"decision"`
	PausedAdvisory bool              `json:"paused_advisory"`
}

// Allowed reports whether a registration may proceed.
func (a Admission) Allowed() bool {
	return a.Decision == AdmissionOpen
}

// WindowFunc decides the window portion of an admission check. The bound
// formula is injectable because the exact semantics differ per deployment.
type WindowFunc func(course models.Course, instanceStart, now time.Time) AdmissionDecision

// WindowGuard evaluates whether a student may register for an instance.
type WindowGuard struct {
	window WindowFunc
}

// NewWindowGuard builds a guard with the given window predicate, defaulting
// to DefaultWindow when nil.
func NewWindowGuard(window WindowFunc) *WindowGuard {
	if window == nil {
		window = DefaultWindow
	}
	return &WindowGuard{window: window}
}

// Check evaluates course state and the registration window. Archived always
// blocks regardless of the window; paused only sets the advisory flag.
func (g *WindowGuard) Check(course models.Course, instanceStart, now time.Time) Admission {
	if course.IsArchived {
		return Admission{Decision: AdmissionArchivedBlocked, PausedAdvisory: course.IsPaused}
	}
	return Admission{
		Decision:       g.window(course, instanceStart, now),
		PausedAdvisory: course.IsPaused,
	}
}

// DefaultWindow opens registration from StartRegHours before the instance
// start until EndRegHours after it, bounds inclusive. A non-positive
// constraint disables that side of the window.
func DefaultWindow(course models.Course, instanceStart, now time.Time) AdmissionDecision {
	if course.StartRegHours > 0 {
		opensAt := instanceStart.Add(-time.Duration(course.StartRegHours) * time.Hour)
		if now.Before(opensAt) {
			return AdmissionClosedBeforeWindow
		}
	}
	if course.EndRegHours > 0 {
		closesAt := instanceStart.Add(time.Duration(course.EndRegHours) * time.Hour)
		if now.After(closesAt) {
			return AdmissionClosedAfterWindow
		}
	}
	return AdmissionOpen
}
