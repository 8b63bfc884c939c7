package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/office-hours-api/internal/models"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
)

type mockTokenRepo struct {
	mu      sync.Mutex
	detail  *models.IssueTokenDetail
	tokens  []models.CourseToken
	issued  []models.IssueToken
	uses    int
	removed int

	findErr   error
	appendErr error
	removeErr error
}

func (m *mockTokenRepo) ListCourseTokens(ctx context.Context, courseID string) ([]models.CourseToken, error) {
	return m.tokens, nil
}

func (m *mockTokenRepo) FindIssueDetail(ctx context.Context, accountID, courseTokenID string) (*models.IssueTokenDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	copied := *m.detail
	return &copied, nil
}

func (m *mockTokenRepo) ListIssueDetailsByAccount(ctx context.Context, accountID, courseID string) ([]models.IssueTokenDetail, error) {
	if m.detail == nil {
		return nil, nil
	}
	return []models.IssueTokenDetail{*m.detail}, nil
}

func (m *mockTokenRepo) CreateIssueToken(ctx context.Context, issue *models.IssueToken) error {
	m.issued = append(m.issued, *issue)
	return nil
}

func (m *mockTokenRepo) AppendUse(ctx context.Context, issueTokenID string, usedAt time.Time) (*models.TokenUse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	m.uses++
	m.detail.UsedCount++
	return &models.TokenUse{ID: "use-1", IssueTokenID: issueTokenID, UsedAt: usedAt}, nil
}

func (m *mockTokenRepo) RemoveNewestUseOnDate(ctx context.Context, issueTokenID string, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeErr != nil {
		return m.removeErr
	}
	m.removed++
	m.detail.UsedCount--
	return nil
}

func (m *mockTokenRepo) SetOverride(ctx context.Context, issueTokenID string, amount int) error {
	m.detail.OverrideAmount = &amount
	return nil
}

func (m *mockTokenRepo) ClearOverride(ctx context.Context, issueTokenID string) error {
	m.detail.OverrideAmount = nil
	return nil
}

func newDetail(used, limit int) *models.IssueTokenDetail {
	return &models.IssueTokenDetail{
		IssueToken: models.IssueToken{ID: "issue-1", AccountID: "acc-1", CourseTokenID: "ct-1"},
		TokenTitle: "Late Submission",
		TokenLimit: limit,
		UsedCount:  used,
	}
}

func TestTokenServiceConsume(t *testing.T) {
	repo := &mockTokenRepo{detail: newDetail(1, 3)}
	svc := NewTokenService(repo, nil, nil)

	detail, err := svc.Consume(context.Background(), "acc-1", "ct-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, detail.UsedCount)
	assert.Equal(t, 1, repo.uses)
}

func TestTokenServiceConsumeAtLimit(t *testing.T) {
	repo := &mockTokenRepo{detail: newDetail(3, 3)}
	svc := NewTokenService(repo, nil, nil)

	_, err := svc.Consume(context.Background(), "acc-1", "ct-1", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrTokenLimitReached)
	assert.Zero(t, repo.uses)
}

func TestTokenServiceConsumeHonoursOverride(t *testing.T) {
	detail := newDetail(3, 3)
	override := 5
	detail.OverrideAmount = &override
	repo := &mockTokenRepo{detail: detail}
	svc := NewTokenService(repo, nil, nil)

	got, err := svc.Consume(context.Background(), "acc-1", "ct-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 4, got.UsedCount)
}

func TestTokenServiceConsumeSerializedUnderLimit(t *testing.T) {
	repo := &mockTokenRepo{detail: newDetail(0, 5)}
	svc := NewTokenService(repo, nil, nil)

	var wg sync.WaitGroup
	var okCount, limitCount int
	var mu sync.Mutex
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Consume(context.Background(), "acc-1", "ct-1", time.Now())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				okCount++
			} else if errors.Is(err, appErrors.ErrTokenLimitReached) {
				limitCount++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, okCount)
	assert.Equal(t, 5, limitCount)
	assert.Equal(t, 5, repo.uses)
}

func TestTokenServiceUndoConsume(t *testing.T) {
	repo := &mockTokenRepo{detail: newDetail(2, 3)}
	svc := NewTokenService(repo, nil, nil)

	detail, err := svc.UndoConsume(context.Background(), "acc-1", "ct-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, detail.UsedCount)
	assert.Equal(t, 1, repo.removed)
}

func TestTokenServiceUndoConsumeNoMatch(t *testing.T) {
	repo := &mockTokenRepo{detail: newDetail(0, 3), removeErr: sql.ErrNoRows}
	svc := NewTokenService(repo, nil, nil)

	_, err := svc.UndoConsume(context.Background(), "acc-1", "ct-1", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNoMatchingConsumption)
}

func TestTokenServiceSetOverride(t *testing.T) {
	repo := &mockTokenRepo{detail: newDetail(0, 3)}
	svc := NewTokenService(repo, nil, nil)

	detail, err := svc.SetOverride(context.Background(), "acc-1", "ct-1", 5)
	require.NoError(t, err)
	require.NotNil(t, detail.OverrideAmount)
	assert.Equal(t, 5, *detail.OverrideAmount)
}

func TestTokenServiceSetOverrideTooLow(t *testing.T) {
	repo := &mockTokenRepo{detail: newDetail(0, 3)}
	svc := NewTokenService(repo, nil, nil)

	for _, amount := range []int{3, 2, 0, -1} {
		_, err := svc.SetOverride(context.Background(), "acc-1", "ct-1", amount)
		require.Error(t, err)
		assert.ErrorIs(t, err, appErrors.ErrInvalidOverride)
	}
}

func TestTokenServiceClearOverride(t *testing.T) {
	detail := newDetail(0, 3)
	override := 6
	detail.OverrideAmount = &override
	repo := &mockTokenRepo{detail: detail}
	svc := NewTokenService(repo, nil, nil)

	got, err := svc.ClearOverride(context.Background(), "acc-1", "ct-1")
	require.NoError(t, err)
	assert.Nil(t, got.OverrideAmount)
}

func TestTokenServiceClearOverrideBlockedWhileOverCourseLimit(t *testing.T) {
	detail := newDetail(5, 3)
	override := 5
	detail.OverrideAmount = &override
	repo := &mockTokenRepo{detail: detail}
	svc := NewTokenService(repo, nil, nil)

	_, err := svc.ClearOverride(context.Background(), "acc-1", "ct-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	require.NotNil(t, repo.detail.OverrideAmount)
	assert.LessOrEqual(t, repo.detail.UsedCount, repo.detail.EffectiveLimit())
}

func TestTokenServiceClearOverrideAfterUndoSucceeds(t *testing.T) {
	detail := newDetail(3, 3)
	override := 5
	detail.OverrideAmount = &override
	repo := &mockTokenRepo{detail: detail}
	svc := NewTokenService(repo, nil, nil)

	got, err := svc.ClearOverride(context.Background(), "acc-1", "ct-1")
	require.NoError(t, err)
	assert.Nil(t, got.OverrideAmount)
}

func TestTokenServiceClearOverrideNotSet(t *testing.T) {
	repo := &mockTokenRepo{detail: newDetail(0, 3)}
	svc := NewTokenService(repo, nil, nil)

	_, err := svc.ClearOverride(context.Background(), "acc-1", "ct-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNoOverrideSet)
}

func TestTokenServiceIssueAll(t *testing.T) {
	repo := &mockTokenRepo{tokens: []models.CourseToken{
		{ID: "ct-1", CourseID: "course-1", Title: "Late Submission", TokenLimit: 3},
		{ID: "ct-2", CourseID: "course-1", Title: "Extra Review", TokenLimit: 1},
	}}
	svc := NewTokenService(repo, nil, nil)

	require.NoError(t, svc.IssueAll(context.Background(), "acc-1", "course-1"))
	require.Len(t, repo.issued, 2)
	assert.Equal(t, "ct-1", repo.issued[0].CourseTokenID)
	assert.Equal(t, "acc-1", repo.issued[0].AccountID)
}

func TestTokenServiceLedgerNotFound(t *testing.T) {
	repo := &mockTokenRepo{findErr: sql.ErrNoRows}
	svc := NewTokenService(repo, nil, nil)

	_, err := svc.Consume(context.Background(), "acc-1", "ct-1", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
