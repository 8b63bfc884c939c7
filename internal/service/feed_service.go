package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/office-hours-api/internal/models"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
	"github.com/noah-isme/office-hours-api/pkg/export"
)

// FeedFormat selects the calendar feed rendering.
type FeedFormat string

const (
	FeedFormatJSON FeedFormat = "json"
	FeedFormatICS  FeedFormat = "ics"
	FeedFormatCSV  FeedFormat = "csv"
	FeedFormatPDF  FeedFormat = "pdf"
)

// ParseFeedFormat maps a query value onto a FeedFormat, defaulting to JSON.
func ParseFeedFormat(s string) (FeedFormat, error) {
	switch FeedFormat(s) {
	case "", FeedFormatJSON:
		return FeedFormatJSON, nil
	case FeedFormatICS, FeedFormatCSV, FeedFormatPDF:
		return FeedFormat(s), nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported feed format %q", s))
	}
}

// FeedEntry is one upcoming booking in a student's schedule feed.
type FeedEntry struct {
	RegistrationID string    `json:"registration_id"`
	OfficeHourID   string    `json:"office_hour_id"`
	CourseCode     string    `json:"course_code"`
	Location       string    `json:"location"`
	StudentName    string    `json:"student_name"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
}

// FeedDocument is a rendered feed ready for the response writer.
type FeedDocument struct {
	Format      FeedFormat `json:"format"`
	ContentType string     `json:"content_type"`
	Body        []byte     `json:"body"`
}

type feedRegistrationLister interface {
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error)
}

type accountReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// FeedService renders a student's upcoming schedule in several formats.
// Rendered documents are cached per account and format.
type FeedService struct {
	registrations feedRegistrationLister
	accounts      accountReader
	cache         *CacheService
	ics           *export.ICSExporter
	csv           *export.CSVExporter
	pdf           *export.PDFExporter
	cacheTTL      time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// NewFeedService constructs FeedService.
func NewFeedService(registrations feedRegistrationLister, accounts accountReader, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *FeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedService{
		registrations: registrations,
		accounts:      accounts,
		cache:         cache,
		ics:           export.NewICSExporter(""),
		csv:           export.NewCSVExporter(),
		pdf:           export.NewPDFExporter(),
		cacheTTL:      cacheTTL,
		logger:        logger,
		now:           time.Now,
	}
}

// Upcoming returns the account's active future bookings, soonest first.
func (s *FeedService) Upcoming(ctx context.Context, accountID string) ([]FeedEntry, error) {
	regs, _, err := s.registrations.List(ctx, models.RegistrationFilter{
		AccountID:  accountID,
		ActiveOnly: true,
		PageSize:   500,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registrations")
	}

	now := s.now()
	entries := make([]FeedEntry, 0, len(regs))
	for _, reg := range regs {
		if reg.EndAt.Before(now) {
			continue
		}
		entries = append(entries, FeedEntry{
			RegistrationID: reg.ID,
			OfficeHourID:   reg.OfficeHourID,
			CourseCode:     reg.CourseCode,
			Location:       reg.Location,
			StudentName:    reg.StudentName,
			Start:          reg.StartAt,
			End:            reg.EndAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Start.Before(entries[j].Start) })
	return entries, nil
}

// Render produces the account's feed in the requested format. The second
// return reports whether the document came from the cache.
func (s *FeedService) Render(ctx context.Context, accountID string, format FeedFormat) (*FeedDocument, bool, error) {
	cacheKey := feedCacheKey(accountID, format)
	if s.cache.Enabled() {
		var cached FeedDocument
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	entries, err := s.Upcoming(ctx, accountID)
	if err != nil {
		return nil, false, err
	}

	var doc *FeedDocument
	switch format {
	case FeedFormatICS:
		doc, err = s.renderICS(entries)
	case FeedFormatCSV:
		doc, err = s.renderCSV(entries)
	case FeedFormatPDF:
		doc, err = s.renderPDF(ctx, accountID, entries)
	default:
		return nil, false, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported feed format %q", format))
	}
	if err != nil {
		return nil, false, err
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, doc, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache feed", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return doc, false, nil
}

// InvalidateAccount drops every cached feed for the account. Called after
// any write that changes the account's schedule.
func (s *FeedService) InvalidateAccount(ctx context.Context, accountID string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("feed:%s:*", accountID)); err != nil {
		s.logger.Warn("failed to invalidate feed cache", zap.String("account_id", accountID), zap.Error(err))
	}
}

func (s *FeedService) renderICS(entries []FeedEntry) (*FeedDocument, error) {
	events := make([]export.Event, 0, len(entries))
	for _, entry := range entries {
		events = append(events, export.Event{
			UID:      entry.RegistrationID + "@office-hours-api",
			Summary:  fmt.Sprintf("Office hours: %s", entry.CourseCode),
			Location: entry.Location,
			Start:    entry.Start,
			End:      entry.End,
		})
	}
	body, err := s.ics.Render("Office Hours", events)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render calendar")
	}
	return &FeedDocument{Format: FeedFormatICS, ContentType: "text/calendar", Body: body}, nil
}

func (s *FeedService) renderCSV(entries []FeedEntry) (*FeedDocument, error) {
	data := export.Dataset{
		Headers: []string{"course", "location", "start", "end"},
		Rows:    make([][]string, 0, len(entries)),
	}
	for _, entry := range entries {
		data.Rows = append(data.Rows, []string{
			entry.CourseCode,
			entry.Location,
			entry.Start.Format(time.RFC3339),
			entry.End.Format(time.RFC3339),
		})
	}
	body, err := s.csv.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return &FeedDocument{Format: FeedFormatCSV, ContentType: "text/csv", Body: body}, nil
}

func (s *FeedService) renderPDF(ctx context.Context, accountID string, entries []FeedEntry) (*FeedDocument, error) {
	title := "Upcoming Office Hours"
	if s.accounts != nil {
		account, err := s.accounts.FindByID(ctx, accountID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
		}
		if account != nil {
			title = fmt.Sprintf("Upcoming Office Hours for %s", account.FullName)
		}
	}

	data := export.Dataset{
		Headers: []string{"Course", "Location", "Start", "End"},
		Rows:    make([][]string, 0, len(entries)),
	}
	for _, entry := range entries {
		data.Rows = append(data.Rows, []string{
			entry.CourseCode,
			entry.Location,
			entry.Start.Format("Mon Jan 2 15:04"),
			entry.End.Format("15:04"),
		})
	}
	body, err := s.pdf.Render(data, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	return &FeedDocument{Format: FeedFormatPDF, ContentType: "application/pdf", Body: body}, nil
}

func feedCacheKey(accountID string, format FeedFormat) string {
	return fmt.Sprintf("feed:%s:%s", accountID, format)
}
