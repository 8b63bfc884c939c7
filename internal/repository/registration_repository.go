package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/office-hours-api/internal/models"
)

// RegistrationRepository handles persistence of registrations. Rows are
// never deleted; cancellation only flips flags.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `id, account_id, office_hour_id, time_option_id, start_at, end_at, course_token_id, is_cancelled, is_cancelled_staff, is_no_show, created_at`

// FindByID returns a registration with its topics loaded.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	query := fmt.Sprintf(`SELECT %s FROM registrations WHERE id = $1`, registrationColumns)
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	if err := r.attachTopics(ctx, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// List returns registrations filtered by the provided criteria.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	base := `FROM registrations r
LEFT JOIN users u ON u.id = r.account_id
LEFT JOIN office_hours o ON o.id = r.office_hour_id
LEFT JOIN courses c ON c.id = o.course_id`
	var conditions []string
	var args []interface{}

	if filter.AccountID != "" {
		conditions = append(conditions, fmt.Sprintf("r.account_id = $%d", len(args)+1))
		args = append(args, filter.AccountID)
	}
	if filter.OfficeHourID != "" {
		conditions = append(conditions, fmt.Sprintf("r.office_hour_id = $%d", len(args)+1))
		args = append(args, filter.OfficeHourID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("o.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "r.is_cancelled = FALSE AND r.is_cancelled_staff = FALSE")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT r.id, r.account_id, r.office_hour_id, r.time_option_id, r.start_at, r.end_at, r.course_token_id,
        r.is_cancelled, r.is_cancelled_staff, r.is_no_show, r.created_at,
        u.full_name AS student_name, u.email AS student_email, c.code AS course_code, o.location AS location
        %s ORDER BY r.start_at LIMIT %d OFFSET %d`, base+clause, size, offset)

	var registrations []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return registrations, total, nil
}

// ExistsActive checks for a live registration on the same instance.
func (r *RegistrationRepository) ExistsActive(ctx context.Context, accountID, officeHourID string, startAt time.Time) (bool, error) {
	const query = `SELECT 1 FROM registrations WHERE account_id = $1 AND office_hour_id = $2 AND start_at = $3 AND is_cancelled = FALSE AND is_cancelled_staff = FALSE LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, accountID, officeHourID, startAt); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active registration: %w", err)
	}
	return true, nil
}

// ListActiveByInstance returns live registrations for one instance start.
func (r *RegistrationRepository) ListActiveByInstance(ctx context.Context, officeHourID string, startAt time.Time) ([]models.RegistrationDetail, error) {
	const query = `SELECT r.id, r.account_id, r.office_hour_id, r.time_option_id, r.start_at, r.end_at, r.course_token_id,
        r.is_cancelled, r.is_cancelled_staff, r.is_no_show, r.created_at,
        u.full_name AS student_name, u.email AS student_email, c.code AS course_code, o.location AS location
        FROM registrations r
        LEFT JOIN users u ON u.id = r.account_id
        LEFT JOIN office_hours o ON o.id = r.office_hour_id
        LEFT JOIN courses c ON c.id = o.course_id
        WHERE r.office_hour_id = $1 AND r.start_at::date = $2::date AND r.is_cancelled = FALSE AND r.is_cancelled_staff = FALSE`
	var registrations []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, officeHourID, startAt); err != nil {
		return nil, fmt.Errorf("list instance registrations: %w", err)
	}
	return registrations, nil
}

// Create persists a new registration and its topic links.
func (r *RegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create registration: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO registrations (id, account_id, office_hour_id, time_option_id, start_at, end_at, course_token_id, is_cancelled, is_cancelled_staff, is_no_show, created_at)
        VALUES (:id, :account_id, :office_hour_id, :time_option_id, :start_at, :end_at, :course_token_id, :is_cancelled, :is_cancelled_staff, :is_no_show, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, reg); err != nil {
		return fmt.Errorf("create registration: %w", err)
	}
	const insertTopic = `INSERT INTO registration_topics (registration_id, topic_id) VALUES ($1, $2)`
	for _, topicID := range reg.TopicIDs {
		if _, err := tx.ExecContext(ctx, insertTopic, reg.ID, topicID); err != nil {
			return fmt.Errorf("create registration topic: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create registration: %w", err)
	}
	return nil
}

// SetCancelled flips the actor-specific cancellation flag.
func (r *RegistrationRepository) SetCancelled(ctx context.Context, id string, byStaff bool) error {
	query := `UPDATE registrations SET is_cancelled = TRUE WHERE id = $1`
	if byStaff {
		query = `UPDATE registrations SET is_cancelled_staff = TRUE WHERE id = $1`
	}
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("cancel registration: %w", err)
	}
	return nil
}

// SetNoShow marks the registration as a no-show.
func (r *RegistrationRepository) SetNoShow(ctx context.Context, id string) error {
	const query = `UPDATE registrations SET is_no_show = TRUE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark no-show: %w", err)
	}
	return nil
}

func (r *RegistrationRepository) attachTopics(ctx context.Context, reg *models.Registration) error {
	const query = `SELECT topic_id FROM registration_topics WHERE registration_id = $1 ORDER BY topic_id`
	if err := r.db.SelectContext(ctx, &reg.TopicIDs, query, reg.ID); err != nil {
		return fmt.Errorf("load registration topics: %w", err)
	}
	return nil
}
