package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/office-hours-api/internal/models"
)

// TokenRepository handles persistence of course tokens and the per-student
// consumption ledger.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository constructs the repository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// ListCourseTokens returns all token definitions of a course.
func (r *TokenRepository) ListCourseTokens(ctx context.Context, courseID string) ([]models.CourseToken, error) {
	const query = `SELECT id, course_id, title, description, token_limit, created_at FROM course_tokens WHERE course_id = $1 ORDER BY title`
	var tokens []models.CourseToken
	if err := r.db.SelectContext(ctx, &tokens, query, courseID); err != nil {
		return nil, fmt.Errorf("list course tokens: %w", err)
	}
	return tokens, nil
}

const issueDetailColumns = `it.id, it.account_id, it.course_token_id, it.override_amount, it.created_at,
        ct.title AS token_title, ct.token_limit,
        (SELECT COUNT(*) FROM issue_token_uses u WHERE u.issue_token_id = it.id) AS used_count`

// FindIssueDetail returns the ledger row for one (account, token) pair with
// the definition and current consumption count joined in.
func (r *TokenRepository) FindIssueDetail(ctx context.Context, accountID, courseTokenID string) (*models.IssueTokenDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM issue_tokens it JOIN course_tokens ct ON ct.id = it.course_token_id WHERE it.account_id = $1 AND it.course_token_id = $2`, issueDetailColumns)
	var detail models.IssueTokenDetail
	if err := r.db.GetContext(ctx, &detail, query, accountID, courseTokenID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find issue token: %w", err)
	}
	return &detail, nil
}

// ListIssueDetailsByAccount returns every ledger of an account for a course.
func (r *TokenRepository) ListIssueDetailsByAccount(ctx context.Context, accountID, courseID string) ([]models.IssueTokenDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM issue_tokens it JOIN course_tokens ct ON ct.id = it.course_token_id WHERE it.account_id = $1 AND ct.course_id = $2 ORDER BY ct.title`, issueDetailColumns)
	var details []models.IssueTokenDetail
	if err := r.db.SelectContext(ctx, &details, query, accountID, courseID); err != nil {
		return nil, fmt.Errorf("list issue tokens: %w", err)
	}
	return details, nil
}

// CreateIssueToken creates an empty ledger; creating an existing
// (account, token) pair is a no-op so course-join is idempotent.
func (r *TokenRepository) CreateIssueToken(ctx context.Context, issue *models.IssueToken) error {
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO issue_tokens (id, account_id, course_token_id, override_amount, created_at)
        VALUES (:id, :account_id, :course_token_id, :override_amount, :created_at)
        ON CONFLICT (account_id, course_token_id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, issue); err != nil {
		return fmt.Errorf("create issue token: %w", err)
	}
	return nil
}

// AppendUse appends one consumption row inside a transaction holding the
// ledger row lock; it returns the use count after the append. The caller
// checks the limit against the pre-append count it read under the same
// service-level key lock.
func (r *TokenRepository) AppendUse(ctx context.Context, issueTokenID string, usedAt time.Time) (*models.TokenUse, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append use: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var locked string
	const lockRow = `SELECT id FROM issue_tokens WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &locked, lockRow, issueTokenID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock issue token: %w", err)
	}

	use := &models.TokenUse{
		ID:           uuid.NewString(),
		IssueTokenID: issueTokenID,
		UsedAt:       usedAt,
		CreatedAt:    time.Now().UTC(),
	}
	const insert = `INSERT INTO issue_token_uses (id, issue_token_id, used_at, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, insert, use.ID, use.IssueTokenID, use.UsedAt, use.CreatedAt); err != nil {
		return nil, fmt.Errorf("append token use: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append use: %w", err)
	}
	return use, nil
}

// RemoveNewestUseOnDate deletes the most recently added use whose used_at
// falls on the given calendar date. sql.ErrNoRows signals no match.
func (r *TokenRepository) RemoveNewestUseOnDate(ctx context.Context, issueTokenID string, date time.Time) error {
	const query = `DELETE FROM issue_token_uses WHERE id = (
        SELECT id FROM issue_token_uses
        WHERE issue_token_id = $1 AND used_at::date = $2::date
        ORDER BY created_at DESC, id DESC LIMIT 1)`
	res, err := r.db.ExecContext(ctx, query, issueTokenID, date)
	if err != nil {
		return fmt.Errorf("remove token use: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove token use result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetOverride stores a per-student limit override.
func (r *TokenRepository) SetOverride(ctx context.Context, issueTokenID string, amount int) error {
	const query = `UPDATE issue_tokens SET override_amount = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, issueTokenID, amount); err != nil {
		return fmt.Errorf("set token override: %w", err)
	}
	return nil
}

// ClearOverride removes a per-student limit override.
func (r *TokenRepository) ClearOverride(ctx context.Context, issueTokenID string) error {
	const query = `UPDATE issue_tokens SET override_amount = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, issueTokenID); err != nil {
		return fmt.Errorf("clear token override: %w", err)
	}
	return nil
}
