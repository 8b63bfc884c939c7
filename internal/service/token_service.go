package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/office-hours-api/internal/lock"
	"github.com/noah-isme/office-hours-api/internal/models"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
)

type tokenRepository interface {
	ListCourseTokens(ctx context.Context, courseID string) ([]models.CourseToken, error)
	FindIssueDetail(ctx context.Context, accountID, courseTokenID string) (*models.IssueTokenDetail, error)
	ListIssueDetailsByAccount(ctx context.Context, accountID, courseID string) ([]models.IssueTokenDetail, error)
	CreateIssueToken(ctx context.Context, issue *models.IssueToken) error
	AppendUse(ctx context.Context, issueTokenID string, usedAt time.Time) (*models.TokenUse, error)
	RemoveNewestUseOnDate(ctx context.Context, issueTokenID string, date time.Time) error
	SetOverride(ctx context.Context, issueTokenID string, amount int) error
	ClearOverride(ctx context.Context, issueTokenID string) error
}

// TokenService is the course token ledger. Every mutation is keyed by
// (account, course token) and serialized per key so the limit check and the
// write cannot interleave across requests.
type TokenService struct {
	repo   tokenRepository
	keys   *lock.KeyedMutex
	logger *zap.Logger
}

// NewTokenService constructs TokenService.
func NewTokenService(repo tokenRepository, keys *lock.KeyedMutex, logger *zap.Logger) *TokenService {
	if keys == nil {
		keys = lock.NewKeyedMutex()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{repo: repo, keys: keys, logger: logger}
}

func ledgerKey(accountID, courseTokenID string) string {
	return fmt.Sprintf("ledger:%s:%s", accountID, courseTokenID)
}

// IssueAll creates an empty ledger for every token of the course. It is
// called at course-join time and is idempotent.
func (s *TokenService) IssueAll(ctx context.Context, accountID, courseID string) error {
	tokens, err := s.repo.ListCourseTokens(ctx, courseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course tokens")
	}
	for _, token := range tokens {
		issue := &models.IssueToken{AccountID: accountID, CourseTokenID: token.ID}
		if err := s.repo.CreateIssueToken(ctx, issue); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue token")
		}
	}
	return nil
}

// ListForAccount returns an account's ledgers for one course.
func (s *TokenService) ListForAccount(ctx context.Context, accountID, courseID string) ([]models.IssueTokenDetail, error) {
	details, err := s.repo.ListIssueDetailsByAccount(ctx, accountID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list issue tokens")
	}
	return details, nil
}

// Consume appends one use dated usedAt. Same-day consumptions are counted
// individually, not deduplicated.
func (s *TokenService) Consume(ctx context.Context, accountID, courseTokenID string, usedAt time.Time) (*models.IssueTokenDetail, error) {
	unlock := s.keys.Lock(ledgerKey(accountID, courseTokenID))
	defer unlock()

	detail, err := s.loadDetail(ctx, accountID, courseTokenID)
	if err != nil {
		return nil, err
	}
	if detail.UsedCount >= detail.EffectiveLimit() {
		return nil, appErrors.Clone(appErrors.ErrTokenLimitReached,
			fmt.Sprintf("token %q is exhausted (%d of %d used)", detail.TokenTitle, detail.UsedCount, detail.EffectiveLimit()))
	}

	if _, err := s.repo.AppendUse(ctx, detail.ID, usedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record token use")
	}
	detail.UsedCount++

	s.logger.Info("token consumed",
		zap.String("account_id", accountID),
		zap.String("course_token_id", courseTokenID),
		zap.Int("used_count", detail.UsedCount),
		zap.Int("limit", detail.EffectiveLimit()))
	return detail, nil
}

// UndoConsume removes the most recently added use on the given calendar
// date, restoring one consumption.
func (s *TokenService) UndoConsume(ctx context.Context, accountID, courseTokenID string, date time.Time) (*models.IssueTokenDetail, error) {
	unlock := s.keys.Lock(ledgerKey(accountID, courseTokenID))
	defer unlock()

	detail, err := s.loadDetail(ctx, accountID, courseTokenID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.RemoveNewestUseOnDate(ctx, detail.ID, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNoMatchingConsumption, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to undo token use")
	}
	detail.UsedCount--

	s.logger.Info("token consumption undone",
		zap.String("account_id", accountID),
		zap.String("course_token_id", courseTokenID),
		zap.Int("used_count", detail.UsedCount))
	return detail, nil
}

// SetOverride raises the per-student limit. The override must strictly
// exceed the course-wide limit.
func (s *TokenService) SetOverride(ctx context.Context, accountID, courseTokenID string, amount int) (*models.IssueTokenDetail, error) {
	unlock := s.keys.Lock(ledgerKey(accountID, courseTokenID))
	defer unlock()

	detail, err := s.loadDetail(ctx, accountID, courseTokenID)
	if err != nil {
		return nil, err
	}
	if amount <= detail.TokenLimit {
		return nil, appErrors.Clone(appErrors.ErrInvalidOverride,
			fmt.Sprintf("override %d must exceed the course limit %d", amount, detail.TokenLimit))
	}

	if err := s.repo.SetOverride(ctx, detail.ID, amount); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set override")
	}
	detail.OverrideAmount = &amount
	return detail, nil
}

// ClearOverride removes the per-student limit override. The clear is
// refused while more uses are recorded than the course limit allows, since
// dropping the override would leave the ledger over its effective limit.
func (s *TokenService) ClearOverride(ctx context.Context, accountID, courseTokenID string) (*models.IssueTokenDetail, error) {
	unlock := s.keys.Lock(ledgerKey(accountID, courseTokenID))
	defer unlock()

	detail, err := s.loadDetail(ctx, accountID, courseTokenID)
	if err != nil {
		return nil, err
	}
	if detail.OverrideAmount == nil {
		return nil, appErrors.Clone(appErrors.ErrNoOverrideSet, "")
	}
	if detail.UsedCount > detail.TokenLimit {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("%d uses recorded exceed the course limit %d; undo uses before clearing the override", detail.UsedCount, detail.TokenLimit))
	}

	if err := s.repo.ClearOverride(ctx, detail.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear override")
	}
	detail.OverrideAmount = nil
	return detail, nil
}

func (s *TokenService) loadDetail(ctx context.Context, accountID, courseTokenID string) (*models.IssueTokenDetail, error) {
	detail, err := s.repo.FindIssueDetail(ctx, accountID, courseTokenID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue token not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue token")
	}
	return detail, nil
}
