package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/office-hours-api/internal/models"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
)

type mockFeedLister struct {
	details []models.RegistrationDetail
	filter  models.RegistrationFilter
}

func (m *mockFeedLister) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	m.filter = filter
	return m.details, len(m.details), nil
}

func feedDetail(id string, start time.Time) models.RegistrationDetail {
	return models.RegistrationDetail{
		Registration: models.Registration{
			ID:           id,
			AccountID:    "acc-1",
			OfficeHourID: "oh-1",
			StartAt:      start,
			EndAt:        start.Add(15 * time.Minute),
		},
		CourseCode: "CS-350",
		Location:   "Room 204",
	}
}

func newFeedService(lister *mockFeedLister) *FeedService {
	svc := NewFeedService(lister, nil, nil, 0, nil)
	svc.now = func() time.Time { return time.Date(2023, 9, 10, 0, 0, 0, 0, time.UTC) }
	return svc
}

func TestFeedUpcomingSortsAndFiltersPast(t *testing.T) {
	lister := &mockFeedLister{details: []models.RegistrationDetail{
		feedDetail("reg-2", time.Date(2023, 9, 18, 14, 0, 0, 0, time.UTC)),
		feedDetail("reg-1", time.Date(2023, 9, 11, 14, 0, 0, 0, time.UTC)),
		feedDetail("reg-0", time.Date(2023, 9, 4, 14, 0, 0, 0, time.UTC)),
	}}
	svc := newFeedService(lister)

	entries, err := svc.Upcoming(context.Background(), "acc-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "reg-1", entries[0].RegistrationID)
	assert.Equal(t, "reg-2", entries[1].RegistrationID)
	assert.True(t, lister.filter.ActiveOnly)
	assert.Equal(t, "acc-1", lister.filter.AccountID)
}

func TestFeedRenderICS(t *testing.T) {
	lister := &mockFeedLister{details: []models.RegistrationDetail{
		feedDetail("reg-1", time.Date(2023, 9, 11, 14, 0, 0, 0, time.UTC)),
	}}
	svc := newFeedService(lister)

	doc, cacheHit, err := svc.Render(context.Background(), "acc-1", FeedFormatICS)
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, "text/calendar", doc.ContentType)

	body := string(doc.Body)
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "UID:reg-1@office-hours-api")
	assert.Contains(t, body, "DTSTART:20230911T140000Z")
	assert.Contains(t, body, "LOCATION:Room 204")
	assert.True(t, strings.HasSuffix(body, "END:VCALENDAR\r\n"))
}

func TestFeedRenderCSV(t *testing.T) {
	lister := &mockFeedLister{details: []models.RegistrationDetail{
		feedDetail("reg-1", time.Date(2023, 9, 11, 14, 0, 0, 0, time.UTC)),
	}}
	svc := newFeedService(lister)

	doc, _, err := svc.Render(context.Background(), "acc-1", FeedFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", doc.ContentType)
	assert.Contains(t, string(doc.Body), "CS-350")
	assert.Contains(t, string(doc.Body), "2023-09-11T14:00:00Z")
}

type mockFeedCache struct {
	entries map[string][]byte
	sets    int
}

func newMockFeedCache() *mockFeedCache {
	return &mockFeedCache{entries: map[string][]byte{}}
}

func (m *mockFeedCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockFeedCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	m.sets++
	return nil
}

func (m *mockFeedCache) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func TestFeedRenderServesCachedDocument(t *testing.T) {
	lister := &mockFeedLister{details: []models.RegistrationDetail{
		feedDetail("reg-1", time.Date(2023, 9, 11, 14, 0, 0, 0, time.UTC)),
	}}
	cacheRepo := newMockFeedCache()
	svc := NewFeedService(lister, nil, NewCacheService(cacheRepo, nil, time.Minute, nil, true), time.Minute, nil)
	svc.now = func() time.Time { return time.Date(2023, 9, 10, 0, 0, 0, 0, time.UTC) }

	first, cacheHit, err := svc.Render(context.Background(), "acc-1", FeedFormatICS)
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, 1, cacheRepo.sets)

	second, cacheHit, err := svc.Render(context.Background(), "acc-1", FeedFormatICS)
	require.NoError(t, err)
	assert.True(t, cacheHit)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, 1, cacheRepo.sets)

	svc.InvalidateAccount(context.Background(), "acc-1")
	_, cacheHit, err = svc.Render(context.Background(), "acc-1", FeedFormatICS)
	require.NoError(t, err)
	assert.False(t, cacheHit)
}

func TestFeedRenderUnknownFormat(t *testing.T) {
	svc := newFeedService(&mockFeedLister{})

	_, _, err := svc.Render(context.Background(), "acc-1", FeedFormat("xml"))
	require.Error(t, err)
}

func TestParseFeedFormat(t *testing.T) {
	format, err := ParseFeedFormat("")
	require.NoError(t, err)
	assert.Equal(t, FeedFormatJSON, format)

	format, err = ParseFeedFormat("ics")
	require.NoError(t, err)
	assert.Equal(t, FeedFormatICS, format)

	_, err = ParseFeedFormat("xlsx")
	require.Error(t, err)
}
