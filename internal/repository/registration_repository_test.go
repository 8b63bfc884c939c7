package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/office-hours-api/internal/models"
)

func TestRegistrationRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	start := time.Date(2023, 9, 11, 14, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "account_id", "office_hour_id", "time_option_id", "start_at", "end_at", "course_token_id", "is_cancelled", "is_cancelled_staff", "is_no_show", "created_at"}).
		AddRow("reg-1", "acc-1", "oh-1", "opt-1", start, start.Add(15*time.Minute), nil, false, false, false, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, account_id, office_hour_id, time_option_id, start_at, end_at, course_token_id, is_cancelled, is_cancelled_staff, is_no_show, created_at FROM registrations WHERE id = $1")).
		WithArgs("reg-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT topic_id FROM registration_topics WHERE registration_id = $1 ORDER BY topic_id")).
		WithArgs("reg-1").
		WillReturnRows(sqlmock.NewRows([]string{"topic_id"}).AddRow("topic-1").AddRow("topic-2"))

	reg, err := repo.FindByID(context.Background(), "reg-1")
	require.NoError(t, err)
	require.Equal(t, "acc-1", reg.AccountID)
	require.Equal(t, []string{"topic-1", "topic-2"}, reg.TopicIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryListFiltersActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	start := time.Date(2023, 9, 11, 14, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "account_id", "office_hour_id", "time_option_id", "start_at", "end_at", "course_token_id", "is_cancelled", "is_cancelled_staff", "is_no_show", "created_at", "student_name", "student_email", "course_code", "location"}).
		AddRow("reg-1", "acc-1", "oh-1", "opt-1", start, start.Add(15*time.Minute), nil, false, false, false, time.Now(), "Dana Hall", "dana@example.edu", "CS-350", "Room 204")
	mock.ExpectQuery(`(?s)SELECT r\.id, r\.account_id,.+WHERE r\.account_id = \$1 AND r\.is_cancelled = FALSE AND r\.is_cancelled_staff = FALSE ORDER BY r\.start_at LIMIT 20 OFFSET 0`).
		WithArgs("acc-1").
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM registrations r`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	registrations, total, err := repo.List(context.Background(), models.RegistrationFilter{AccountID: "acc-1", ActiveOnly: true})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, registrations, 1)
	require.Equal(t, "CS-350", registrations[0].CourseCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryExistsActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	start := time.Date(2023, 9, 11, 14, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta("SELECT 1 FROM registrations WHERE account_id = $1 AND office_hour_id = $2 AND start_at = $3 AND is_cancelled = FALSE AND is_cancelled_staff = FALSE LIMIT 1")

	mock.ExpectQuery(query).
		WithArgs("acc-1", "oh-1", start).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	exists, err := repo.ExistsActive(context.Background(), "acc-1", "oh-1", start)
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery(query).
		WithArgs("acc-2", "oh-1", start).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	exists, err = repo.ExistsActive(context.Background(), "acc-2", "oh-1", start)
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreatePersistsTopics(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO registrations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registration_topics (registration_id, topic_id) VALUES ($1, $2)")).
		WithArgs(sqlmock.AnyArg(), "topic-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registration_topics (registration_id, topic_id) VALUES ($1, $2)")).
		WithArgs(sqlmock.AnyArg(), "topic-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	start := time.Date(2023, 9, 11, 14, 0, 0, 0, time.UTC)
	reg := &models.Registration{
		AccountID:    "acc-1",
		OfficeHourID: "oh-1",
		TimeOptionID: "opt-1",
		StartAt:      start,
		EndAt:        start.Add(15 * time.Minute),
		TopicIDs:     []string{"topic-1", "topic-2"},
	}
	require.NoError(t, repo.Create(context.Background(), reg))
	require.NotEmpty(t, reg.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositorySetCancelled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET is_cancelled = TRUE WHERE id = $1")).
		WithArgs("reg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetCancelled(context.Background(), "reg-1", false))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET is_cancelled_staff = TRUE WHERE id = $1")).
		WithArgs("reg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetCancelled(context.Background(), "reg-1", true))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositorySetNoShow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET is_no_show = TRUE WHERE id = $1")).
		WithArgs("reg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetNoShow(context.Background(), "reg-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
