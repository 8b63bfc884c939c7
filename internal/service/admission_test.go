package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/office-hours-api/internal/models"
)

func TestWindowGuardDecisions(t *testing.T) {
	instanceStart := time.Date(2023, 9, 11, 14, 0, 0, 0, time.UTC)
	course := models.Course{StartRegHours: 48, EndRegHours: 2}

	guard := NewWindowGuard(nil)

	cases := []struct {
		name   string
		course models.Course
		now    time.Time
		want   AdmissionDecision
	}{
		{"open inside window", course, instanceStart.Add(-time.Hour), AdmissionOpen},
		{"open at lower edge", course, instanceStart.Add(-48 * time.Hour), AdmissionOpen},
		{"open at upper edge", course, instanceStart.Add(2 * time.Hour), AdmissionOpen},
		{"too early", course, instanceStart.Add(-49 * time.Hour), AdmissionClosedBeforeWindow},
		{"too late", course, instanceStart.Add(3 * time.Hour), AdmissionClosedAfterWindow},
		{"zero start bound never too early", models.Course{EndRegHours: 2}, instanceStart.Add(-24 * 365 * time.Hour), AdmissionOpen},
		{"zero end bound never too late", models.Course{StartRegHours: 48}, instanceStart.Add(24 * 365 * time.Hour), AdmissionOpen},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := guard.Check(tc.course, instanceStart, tc.now)
			assert.Equal(t, tc.want, got.Decision)
			assert.False(t, got.PausedAdvisory)
		})
	}
}

func TestWindowGuardArchivedAlwaysBlocks(t *testing.T) {
	instanceStart := time.Date(2023, 9, 11, 14, 0, 0, 0, time.UTC)
	course := models.Course{IsArchived: true, StartRegHours: 48, EndRegHours: 2}

	guard := NewWindowGuard(nil)
	got := guard.Check(course, instanceStart, instanceStart.Add(-time.Hour))
	assert.Equal(t, AdmissionArchivedBlocked, got.Decision)
	assert.False(t, got.Allowed())
}

func TestWindowGuardPausedIsAdvisoryOnly(t *testing.T) {
	instanceStart := time.Date(2023, 9, 11, 14, 0, 0, 0, time.UTC)
	course := models.Course{IsPaused: true, StartRegHours: 48, EndRegHours: 2}

	guard := NewWindowGuard(nil)
	got := guard.Check(course, instanceStart, instanceStart.Add(-time.Hour))
	assert.Equal(t, AdmissionOpen, got.Decision)
	assert.True(t, got.PausedAdvisory)
	assert.True(t, got.Allowed())

	// Advisory also rides along with a closed decision.
	late := guard.Check(course, instanceStart, instanceStart.Add(3*time.Hour))
	assert.Equal(t, AdmissionClosedAfterWindow, late.Decision)
	assert.True(t, late.PausedAdvisory)
}

func TestWindowGuardCustomPredicate(t *testing.T) {
	alwaysOpen := func(models.Course, time.Time, time.Time) AdmissionDecision {
		return AdmissionOpen
	}
	guard := NewWindowGuard(alwaysOpen)
	got := guard.Check(models.Course{StartRegHours: 1, EndRegHours: 1}, time.Now(), time.Now().Add(100*time.Hour))
	assert.Equal(t, AdmissionOpen, got.Decision)
}
