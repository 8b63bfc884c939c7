package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/office-hours-api/internal/models"
)

// OfficeHourRepository handles persistence of office hours, their hosts,
// cancellation dates and time options.
type OfficeHourRepository struct {
	db *sqlx.DB
}

// NewOfficeHourRepository constructs the repository.
func NewOfficeHourRepository(db *sqlx.DB) *OfficeHourRepository {
	return &OfficeHourRepository{db: db}
}

// officeHourRow maps the office_hours table including the weekday array.
type officeHourRow struct {
	ID        string        `db:"id"`
	CourseID  string        `db:"course_id"`
	Location  string        `db:"location"`
	StartAt   time.Time     `db:"start_at"`
	EndAt     time.Time     `db:"end_at"`
	Weekdays  pq.Int64Array `db:"weekdays"`
	CreatedAt time.Time     `db:"created_at"`
	UpdatedAt time.Time     `db:"updated_at"`
}

func (row officeHourRow) toModel() models.OfficeHour {
	oh := models.OfficeHour{
		ID:        row.ID,
		CourseID:  row.CourseID,
		Location:  row.Location,
		StartAt:   row.StartAt,
		EndAt:     row.EndAt,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	for _, d := range row.Weekdays {
		oh.Weekdays = append(oh.Weekdays, time.Weekday(d))
	}
	return oh
}

// FindByID returns an office hour with hosts and cancellations loaded.
func (r *OfficeHourRepository) FindByID(ctx context.Context, id string) (*models.OfficeHour, error) {
	const query = `SELECT id, course_id, location, start_at, end_at, weekdays, created_at, updated_at FROM office_hours WHERE id = $1`
	var row officeHourRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find office hour: %w", err)
	}
	oh := row.toModel()
	if err := r.attachRelations(ctx, &oh); err != nil {
		return nil, err
	}
	return &oh, nil
}

// ListByCourse returns all office hours of a course with relations loaded.
func (r *OfficeHourRepository) ListByCourse(ctx context.Context, courseID string) ([]models.OfficeHour, error) {
	const query = `SELECT id, course_id, location, start_at, end_at, weekdays, created_at, updated_at FROM office_hours WHERE course_id = $1 ORDER BY start_at`
	var rows []officeHourRow
	if err := r.db.SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, fmt.Errorf("list office hours: %w", err)
	}
	hours := make([]models.OfficeHour, 0, len(rows))
	for _, row := range rows {
		oh := row.toModel()
		if err := r.attachRelations(ctx, &oh); err != nil {
			return nil, err
		}
		hours = append(hours, oh)
	}
	return hours, nil
}

// ListByHost returns the office hours a user hosts.
func (r *OfficeHourRepository) ListByHost(ctx context.Context, hostID string) ([]models.OfficeHour, error) {
	const query = `SELECT o.id, o.course_id, o.location, o.start_at, o.end_at, o.weekdays, o.created_at, o.updated_at
        FROM office_hours o
        JOIN office_hour_hosts h ON h.office_hour_id = o.id
        WHERE h.user_id = $1 ORDER BY o.start_at`
	var rows []officeHourRow
	if err := r.db.SelectContext(ctx, &rows, query, hostID); err != nil {
		return nil, fmt.Errorf("list hosted office hours: %w", err)
	}
	hours := make([]models.OfficeHour, 0, len(rows))
	for _, row := range rows {
		oh := row.toModel()
		if err := r.attachRelations(ctx, &oh); err != nil {
			return nil, err
		}
		hours = append(hours, oh)
	}
	return hours, nil
}

func (r *OfficeHourRepository) attachRelations(ctx context.Context, oh *models.OfficeHour) error {
	const hostQuery = `SELECT user_id FROM office_hour_hosts WHERE office_hour_id = $1 ORDER BY user_id`
	if err := r.db.SelectContext(ctx, &oh.HostIDs, hostQuery, oh.ID); err != nil {
		return fmt.Errorf("load office hour hosts: %w", err)
	}
	const cancelQuery = `SELECT cancelled_on FROM office_hour_cancellations WHERE office_hour_id = $1 ORDER BY cancelled_on`
	if err := r.db.SelectContext(ctx, &oh.CancelledOn, cancelQuery, oh.ID); err != nil {
		return fmt.Errorf("load office hour cancellations: %w", err)
	}
	return nil
}

// Create persists an office hour together with its host set.
func (r *OfficeHourRepository) Create(ctx context.Context, oh *models.OfficeHour) error {
	if oh.ID == "" {
		oh.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	oh.CreatedAt = now
	oh.UpdatedAt = now

	weekdays := make(pq.Int64Array, 0, len(oh.Weekdays))
	for _, d := range oh.Weekdays {
		weekdays = append(weekdays, int64(d))
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create office hour: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO office_hours (id, course_id, location, start_at, end_at, weekdays, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.ExecContext(ctx, insert, oh.ID, oh.CourseID, oh.Location, oh.StartAt, oh.EndAt, weekdays, oh.CreatedAt, oh.UpdatedAt); err != nil {
		return fmt.Errorf("create office hour: %w", err)
	}
	const insertHost = `INSERT INTO office_hour_hosts (office_hour_id, user_id) VALUES ($1, $2)`
	for _, hostID := range oh.HostIDs {
		if _, err := tx.ExecContext(ctx, insertHost, oh.ID, hostID); err != nil {
			return fmt.Errorf("create office hour host: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create office hour: %w", err)
	}
	return nil
}

// UpdateLocation changes an office hour's location.
func (r *OfficeHourRepository) UpdateLocation(ctx context.Context, id, location string) error {
	const query = `UPDATE office_hours SET location = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, location, time.Now().UTC()); err != nil {
		return fmt.Errorf("update office hour location: %w", err)
	}
	return nil
}

// AddCancellation records a cancelled date; inserting a present date is a
// no-op so the operation is idempotent.
func (r *OfficeHourRepository) AddCancellation(ctx context.Context, id string, date time.Time) error {
	const query = `INSERT INTO office_hour_cancellations (office_hour_id, cancelled_on) VALUES ($1, $2::date) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, id, date); err != nil {
		return fmt.Errorf("add office hour cancellation: %w", err)
	}
	return nil
}

// AddHost attaches a host to the office hour.
func (r *OfficeHourRepository) AddHost(ctx context.Context, id, userID string) error {
	const query = `INSERT INTO office_hour_hosts (office_hour_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, id, userID); err != nil {
		return fmt.Errorf("add office hour host: %w", err)
	}
	return nil
}

// RemoveHost detaches a host and returns how many hosts remain. Removing
// the last host deletes the office hour in the same transaction.
func (r *OfficeHourRepository) RemoveHost(ctx context.Context, id, userID string) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin remove host: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const remove = `DELETE FROM office_hour_hosts WHERE office_hour_id = $1 AND user_id = $2`
	res, err := tx.ExecContext(ctx, remove, id, userID)
	if err != nil {
		return 0, fmt.Errorf("remove office hour host: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return 0, sql.ErrNoRows
	}

	var remaining int
	const count = `SELECT COUNT(*) FROM office_hour_hosts WHERE office_hour_id = $1`
	if err := tx.GetContext(ctx, &remaining, count, id); err != nil {
		return 0, fmt.Errorf("count office hour hosts: %w", err)
	}
	if remaining == 0 {
		const purge = `DELETE FROM office_hours WHERE id = $1`
		if _, err := tx.ExecContext(ctx, purge, id); err != nil {
			return 0, fmt.Errorf("delete orphaned office hour: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit remove host: %w", err)
	}
	return remaining, nil
}

// ListTimeOptions returns the time options of an office hour.
func (r *OfficeHourRepository) ListTimeOptions(ctx context.Context, officeHourID string) ([]models.TimeOption, error) {
	const query = `SELECT id, office_hour_id, title, duration_minutes FROM time_options WHERE office_hour_id = $1 ORDER BY duration_minutes`
	var options []models.TimeOption
	if err := r.db.SelectContext(ctx, &options, query, officeHourID); err != nil {
		return nil, fmt.Errorf("list time options: %w", err)
	}
	return options, nil
}

// FindTimeOption returns a time option by its ID.
func (r *OfficeHourRepository) FindTimeOption(ctx context.Context, id string) (*models.TimeOption, error) {
	const query = `SELECT id, office_hour_id, title, duration_minutes FROM time_options WHERE id = $1`
	var option models.TimeOption
	if err := r.db.GetContext(ctx, &option, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find time option: %w", err)
	}
	return &option, nil
}

// CreateTimeOption persists a slot type for an office hour.
func (r *OfficeHourRepository) CreateTimeOption(ctx context.Context, option *models.TimeOption) error {
	if option.ID == "" {
		option.ID = uuid.NewString()
	}
	const query = `INSERT INTO time_options (id, office_hour_id, title, duration_minutes) VALUES (:id, :office_hour_id, :title, :duration_minutes)`
	if _, err := r.db.NamedExecContext(ctx, query, option); err != nil {
		return fmt.Errorf("create time option: %w", err)
	}
	return nil
}
