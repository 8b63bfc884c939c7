package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/office-hours-api/internal/models"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
)

type mockRegistrationRepo struct {
	reg        *models.Registration
	exists     bool
	existsErr  error
	createErr  error
	created    []models.Registration
	cancelled  []string
	noShows    []string
	byStaff    bool
	findErr    error
	listResult []models.RegistrationDetail
}

func (m *mockRegistrationRepo) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	copied := *m.reg
	return &copied, nil
}

func (m *mockRegistrationRepo) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	return m.listResult, len(m.listResult), nil
}

func (m *mockRegistrationRepo) ExistsActive(ctx context.Context, accountID, officeHourID string, startAt time.Time) (bool, error) {
	return m.exists, m.existsErr
}

func (m *mockRegistrationRepo) ListActiveByInstance(ctx context.Context, officeHourID string, startAt time.Time) ([]models.RegistrationDetail, error) {
	return m.listResult, nil
}

func (m *mockRegistrationRepo) Create(ctx context.Context, reg *models.Registration) error {
	if m.createErr != nil {
		return m.createErr
	}
	reg.ID = "reg-1"
	m.created = append(m.created, *reg)
	return nil
}

func (m *mockRegistrationRepo) SetCancelled(ctx context.Context, id string, byStaff bool) error {
	m.cancelled = append(m.cancelled, id)
	m.byStaff = byStaff
	return nil
}

func (m *mockRegistrationRepo) SetNoShow(ctx context.Context, id string) error {
	m.noShows = append(m.noShows, id)
	return nil
}

type mockOfficeHourReader struct {
	oh     *models.OfficeHour
	option *models.TimeOption
}

func (m *mockOfficeHourReader) FindByID(ctx context.Context, id string) (*models.OfficeHour, error) {
	if m.oh == nil {
		return nil, sql.ErrNoRows
	}
	copied := *m.oh
	return &copied, nil
}

func (m *mockOfficeHourReader) FindTimeOption(ctx context.Context, id string) (*models.TimeOption, error) {
	if m.option == nil {
		return nil, sql.ErrNoRows
	}
	copied := *m.option
	return &copied, nil
}

type mockCourseReader struct {
	course *models.Course
	topics []models.Topic
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if m.course == nil {
		return nil, sql.ErrNoRows
	}
	copied := *m.course
	return &copied, nil
}

func (m *mockCourseReader) FindTopics(ctx context.Context, ids []string) ([]models.Topic, error) {
	return m.topics, nil
}

type mockLedger struct {
	consumed   []string
	undone     []string
	consumeErr error
}

func (m *mockLedger) Consume(ctx context.Context, accountID, courseTokenID string, usedAt time.Time) (*models.IssueTokenDetail, error) {
	if m.consumeErr != nil {
		return nil, m.consumeErr
	}
	m.consumed = append(m.consumed, courseTokenID)
	return &models.IssueTokenDetail{}, nil
}

func (m *mockLedger) UndoConsume(ctx context.Context, accountID, courseTokenID string, date time.Time) (*models.IssueTokenDetail, error) {
	m.undone = append(m.undone, courseTokenID)
	return &models.IssueTokenDetail{}, nil
}

type mockNotifier struct {
	sent []Notification
}

func (m *mockNotifier) Notify(ctx context.Context, n Notification) error {
	m.sent = append(m.sent, n)
	return nil
}

// Mondays 14:00-15:00 UTC, Sep 4 through Sep 25 2023.
func fixtureOfficeHour() *models.OfficeHour {
	return &models.OfficeHour{
		ID:       "oh-1",
		CourseID: "course-1",
		Location: "Room 204",
		StartAt:  time.Date(2023, 9, 4, 14, 0, 0, 0, time.UTC),
		EndAt:    time.Date(2023, 9, 25, 15, 0, 0, 0, time.UTC),
		Weekdays: []time.Weekday{time.Monday},
		HostIDs:  []string{"host-1"},
	}
}

func fixtureCourse() *models.Course {
	return &models.Course{
		ID:            "course-1",
		Code:          "CS-350",
		StartRegHours: 72,
		EndRegHours:   1,
	}
}

type regFixture struct {
	repo     *mockRegistrationRepo
	hours    *mockOfficeHourReader
	courses  *mockCourseReader
	ledger   *mockLedger
	notifier *mockNotifier
	svc      *RegistrationService
}

func newRegFixture(t *testing.T) *regFixture {
	t.Helper()
	f := &regFixture{
		repo:  &mockRegistrationRepo{},
		hours: &mockOfficeHourReader{oh: fixtureOfficeHour(), option: &models.TimeOption{ID: "opt-1", OfficeHourID: "oh-1", Title: "Quick question", DurationMinutes: 15}},
		courses: &mockCourseReader{
			course: fixtureCourse(),
			topics: []models.Topic{{ID: "topic-1", CourseID: "course-1", Title: "Homework 3"}},
		},
		ledger:   &mockLedger{},
		notifier: &mockNotifier{},
	}
	f.svc = NewRegistrationService(f.repo, f.hours, f.courses, f.ledger, nil, f.notifier, nil, time.UTC, nil, nil)
	// One hour before the Sep 11 instance, inside the 72h window.
	f.svc.now = func() time.Time { return time.Date(2023, 9, 11, 13, 0, 0, 0, time.UTC) }
	return f
}

func validRequest() CreateRegistrationRequest {
	return CreateRegistrationRequest{
		AccountID:    "acc-1",
		OfficeHourID: "oh-1",
		TimeOptionID: "opt-1",
		StartAt:      time.Date(2023, 9, 11, 14, 0, 0, 0, time.UTC),
		TopicIDs:     []string{"topic-1"},
	}
}

func TestRegistrationCreate(t *testing.T) {
	f := newRegFixture(t)

	result, err := f.svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	require.Len(t, f.repo.created, 1)

	reg := result.Registration
	assert.Equal(t, "acc-1", reg.AccountID)
	assert.Equal(t, time.Date(2023, 9, 11, 14, 0, 0, 0, time.UTC), reg.StartAt)
	assert.Equal(t, time.Date(2023, 9, 11, 14, 15, 0, 0, time.UTC), reg.EndAt)
	assert.Nil(t, reg.CourseTokenID)
	assert.False(t, result.PausedAdvisory)
	assert.Empty(t, f.ledger.consumed)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, NotifyRegistrationCreated, f.notifier.sent[0].Type)
	assert.Contains(t, f.notifier.sent[0].AccountIDs, "host-1")
}

func TestRegistrationCreateUnknownInstance(t *testing.T) {
	f := newRegFixture(t)

	req := validRequest()
	// Sep 12 is a Tuesday, not in the weekday set.
	req.StartAt = time.Date(2023, 9, 12, 14, 0, 0, 0, time.UTC)
	_, err := f.svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInstanceNotFound)
}

func TestRegistrationCreateCancelledDate(t *testing.T) {
	f := newRegFixture(t)
	f.hours.oh.CancelledOn = []time.Time{time.Date(2023, 9, 11, 0, 0, 0, 0, time.UTC)}

	_, err := f.svc.Create(context.Background(), validRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInstanceNotFound)
}

func TestRegistrationCreateBeforeWindow(t *testing.T) {
	f := newRegFixture(t)
	f.svc.now = func() time.Time { return time.Date(2023, 9, 1, 8, 0, 0, 0, time.UTC) }

	_, err := f.svc.Create(context.Background(), validRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrClosedBeforeWindow)
}

func TestRegistrationCreateAfterWindow(t *testing.T) {
	f := newRegFixture(t)
	f.svc.now = func() time.Time { return time.Date(2023, 9, 11, 15, 0, 1, 0, time.UTC) }

	_, err := f.svc.Create(context.Background(), validRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrClosedAfterWindow)
}

func TestRegistrationCreateArchivedCourse(t *testing.T) {
	f := newRegFixture(t)
	f.courses.course.IsArchived = true

	_, err := f.svc.Create(context.Background(), validRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrArchivedBlocked)
}

func TestRegistrationCreatePausedAdvisory(t *testing.T) {
	f := newRegFixture(t)
	f.courses.course.IsPaused = true

	result, err := f.svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, result.PausedAdvisory)
	require.Len(t, f.repo.created, 1)
}

func TestRegistrationCreateDuplicate(t *testing.T) {
	f := newRegFixture(t)
	f.repo.exists = true

	_, err := f.svc.Create(context.Background(), validRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrDuplicateRegistration)
	assert.Empty(t, f.ledger.consumed)
}

func TestRegistrationCreateConsumesToken(t *testing.T) {
	f := newRegFixture(t)
	tokenID := "ct-1"
	f.courses.course.UsesTokens = true
	f.courses.topics = []models.Topic{{ID: "topic-1", CourseID: "course-1", CourseTokenID: &tokenID}}

	result, err := f.svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotNil(t, result.Registration.CourseTokenID)
	assert.Equal(t, tokenID, *result.Registration.CourseTokenID)
	assert.Equal(t, []string{tokenID}, f.ledger.consumed)
}

func TestRegistrationCreateTokenExhausted(t *testing.T) {
	f := newRegFixture(t)
	tokenID := "ct-1"
	f.courses.course.UsesTokens = true
	f.courses.topics = []models.Topic{{ID: "topic-1", CourseID: "course-1", CourseTokenID: &tokenID}}
	f.ledger.consumeErr = appErrors.Clone(appErrors.ErrTokenLimitReached, "")

	_, err := f.svc.Create(context.Background(), validRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrTokenLimitReached)
	assert.Empty(t, f.repo.created)
}

func TestRegistrationCreateRefundsTokenOnPersistFailure(t *testing.T) {
	f := newRegFixture(t)
	tokenID := "ct-1"
	f.courses.course.UsesTokens = true
	f.courses.topics = []models.Topic{{ID: "topic-1", CourseID: "course-1", CourseTokenID: &tokenID}}
	f.repo.createErr = errors.New("insert failed")

	_, err := f.svc.Create(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, []string{tokenID}, f.ledger.consumed)
	assert.Equal(t, []string{tokenID}, f.ledger.undone)
}

func TestRegistrationCreateTokenGateIgnoredWhenCourseDoesNotUseTokens(t *testing.T) {
	f := newRegFixture(t)
	tokenID := "ct-1"
	f.courses.topics = []models.Topic{{ID: "topic-1", CourseID: "course-1", CourseTokenID: &tokenID}}

	result, err := f.svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Nil(t, result.Registration.CourseTokenID)
	assert.Empty(t, f.ledger.consumed)
}

func TestRegistrationCancelByOwner(t *testing.T) {
	f := newRegFixture(t)
	f.repo.reg = &models.Registration{ID: "reg-1", AccountID: "acc-1", StartAt: time.Date(2023, 9, 11, 14, 0, 0, 0, time.UTC)}

	reg, err := f.svc.Cancel(context.Background(), "reg-1", "acc-1", models.RoleStudent)
	require.NoError(t, err)
	assert.True(t, reg.IsCancelled)
	assert.False(t, reg.IsCancelledStaff)
	assert.False(t, f.repo.byStaff)
}

func TestRegistrationCancelByStaff(t *testing.T) {
	f := newRegFixture(t)
	f.repo.reg = &models.Registration{ID: "reg-1", AccountID: "acc-1", StartAt: time.Date(2023, 9, 11, 14, 0, 0, 0, time.UTC)}

	reg, err := f.svc.Cancel(context.Background(), "reg-1", "staff-1", models.RoleStaff)
	require.NoError(t, err)
	assert.True(t, reg.IsCancelledStaff)
	assert.True(t, f.repo.byStaff)
}

func TestRegistrationCancelOwnByStaffRecordsStaffFlag(t *testing.T) {
	f := newRegFixture(t)
	f.repo.reg = &models.Registration{ID: "reg-1", AccountID: "staff-1", StartAt: time.Date(2023, 9, 11, 14, 0, 0, 0, time.UTC)}

	reg, err := f.svc.Cancel(context.Background(), "reg-1", "staff-1", models.RoleInstructor)
	require.NoError(t, err)
	assert.True(t, reg.IsCancelledStaff)
	assert.False(t, reg.IsCancelled)
	assert.True(t, f.repo.byStaff)
}

func TestRegistrationCancelForeignByStudent(t *testing.T) {
	f := newRegFixture(t)
	f.repo.reg = &models.Registration{ID: "reg-1", AccountID: "acc-1"}

	_, err := f.svc.Cancel(context.Background(), "reg-1", "acc-2", models.RoleStudent)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestRegistrationCancelRefundsToken(t *testing.T) {
	f := newRegFixture(t)
	tokenID := "ct-1"
	f.repo.reg = &models.Registration{ID: "reg-1", AccountID: "acc-1", CourseTokenID: &tokenID, StartAt: time.Date(2023, 9, 11, 14, 0, 0, 0, time.UTC)}

	_, err := f.svc.Cancel(context.Background(), "reg-1", "acc-1", models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, []string{tokenID}, f.ledger.undone)
}

func TestRegistrationCancelAlreadyCancelled(t *testing.T) {
	f := newRegFixture(t)
	f.repo.reg = &models.Registration{ID: "reg-1", AccountID: "acc-1", IsCancelled: true}

	_, err := f.svc.Cancel(context.Background(), "reg-1", "acc-1", models.RoleStudent)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
}

func TestRegistrationMarkNoShow(t *testing.T) {
	f := newRegFixture(t)
	f.repo.reg = &models.Registration{ID: "reg-1", AccountID: "acc-1"}

	reg, err := f.svc.MarkNoShow(context.Background(), "reg-1", models.RoleInstructor)
	require.NoError(t, err)
	assert.True(t, reg.IsNoShow)
	assert.Equal(t, []string{"reg-1"}, f.repo.noShows)
}

func TestRegistrationMarkNoShowStudentForbidden(t *testing.T) {
	f := newRegFixture(t)
	f.repo.reg = &models.Registration{ID: "reg-1", AccountID: "acc-1"}

	_, err := f.svc.MarkNoShow(context.Background(), "reg-1", models.RoleStudent)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
