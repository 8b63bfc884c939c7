package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/office-hours-api/internal/models"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
)

type officeHourRepository interface {
	FindByID(ctx context.Context, id string) (*models.OfficeHour, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.OfficeHour, error)
	ListByHost(ctx context.Context, hostID string) ([]models.OfficeHour, error)
	Create(ctx context.Context, oh *models.OfficeHour) error
	UpdateLocation(ctx context.Context, id, location string) error
	AddCancellation(ctx context.Context, id string, date time.Time) error
	AddHost(ctx context.Context, id, userID string) error
	RemoveHost(ctx context.Context, id, userID string) (int, error)
	ListTimeOptions(ctx context.Context, officeHourID string) ([]models.TimeOption, error)
	CreateTimeOption(ctx context.Context, option *models.TimeOption) error
}

type registrationReader interface {
	ListActiveByInstance(ctx context.Context, officeHourID string, startAt time.Time) ([]models.RegistrationDetail, error)
}

// CreateOfficeHourRequest describes a new availability window. An empty
// weekday set creates a single-shot office hour.
type CreateOfficeHourRequest struct {
	CourseID string         `json:"course_id" validate:"required"`
	Location string         `json:"location" validate:"required"`
	StartAt  time.Time      `json:"start_at" validate:"required"`
	EndAt    time.Time      `json:"end_at" validate:"required"`
	Weekdays []time.Weekday `json:"weekdays" validate:"max=7,dive,min=0,max=6"`
	HostIDs  []string       `json:"host_ids" validate:"min=1"`
}

// CreateTimeOptionRequest describes a bookable slot type.
type CreateTimeOptionRequest struct {
	Title           string `json:"title" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,min=5,max=480"`
}

// OfficeHourService manages schedules and their derived instances.
type OfficeHourService struct {
	repo          officeHourRepository
	courses       courseReader
	registrations registrationReader
	notifier      Notifier
	location      *time.Location
	horizon       time.Duration
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// NewOfficeHourService constructs OfficeHourService. The horizon bounds how
// far ahead instance listings reach.
func NewOfficeHourService(repo officeHourRepository, courses courseReader, registrations registrationReader, notifier Notifier, location *time.Location, horizonDays int, validate *validator.Validate, logger *zap.Logger) *OfficeHourService {
	if location == nil {
		location = time.UTC
	}
	if horizonDays <= 0 {
		horizonDays = 180
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OfficeHourService{
		repo:          repo,
		courses:       courses,
		registrations: registrations,
		notifier:      notifier,
		location:      location,
		horizon:       time.Duration(horizonDays) * 24 * time.Hour,
		validator:     validate,
		logger:        logger,
		now:           time.Now,
	}
}

// Create persists an office hour with its initial host set.
func (s *OfficeHourService) Create(ctx context.Context, req CreateOfficeHourRequest) (*models.OfficeHour, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid office hour payload")
	}
	if !req.EndAt.After(req.StartAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end must be after start")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.IsArchived {
		return nil, appErrors.Clone(appErrors.ErrArchivedBlocked, "")
	}

	oh := &models.OfficeHour{
		CourseID: req.CourseID,
		Location: req.Location,
		StartAt:  req.StartAt,
		EndAt:    req.EndAt,
		Weekdays: req.Weekdays,
		HostIDs:  req.HostIDs,
	}
	if err := s.repo.Create(ctx, oh); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create office hour")
	}
	s.logger.Info("office hour created",
		zap.String("office_hour_id", oh.ID),
		zap.String("course_id", oh.CourseID),
		zap.Bool("recurring", oh.IsRecurring()))
	return oh, nil
}

// Get returns one office hour with hosts and cancellations attached.
func (s *OfficeHourService) Get(ctx context.Context, id string) (*models.OfficeHour, error) {
	return s.load(ctx, id)
}

// ListByCourse returns a course's office hours.
func (s *OfficeHourService) ListByCourse(ctx context.Context, courseID string) ([]models.OfficeHour, error) {
	hours, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list office hours")
	}
	return hours, nil
}

// ListByHost returns office hours a user hosts.
func (s *OfficeHourService) ListByHost(ctx context.Context, hostID string) ([]models.OfficeHour, error) {
	hours, err := s.repo.ListByHost(ctx, hostID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list office hours")
	}
	return hours, nil
}

// UpdateLocation changes where an office hour meets.
func (s *OfficeHourService) UpdateLocation(ctx context.Context, id, location string) (*models.OfficeHour, error) {
	if location == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "location is required")
	}
	if err := s.repo.UpdateLocation(ctx, id, location); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "office hour not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update office hour")
	}
	return s.load(ctx, id)
}

// CancelDate removes one calendar date from the schedule and notifies
// students registered for that date's instance. Re-cancelling an already
// cancelled date is a no-op.
func (s *OfficeHourService) CancelDate(ctx context.Context, id string, date time.Time) (*models.OfficeHour, error) {
	oh, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	course, err := s.courses.FindByID(ctx, oh.CourseID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	// Resolve the affected instance before the date disappears from the
	// expansion.
	var affected *models.Instance
	for _, inst := range expandOfficeHour(*oh, course, s.location) {
		if sameDate(inst.Start, date) {
			hit := inst
			affected = &hit
			break
		}
	}

	if err := s.repo.AddCancellation(ctx, id, date); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel date")
	}

	if affected != nil {
		s.notifyInstanceCancelled(ctx, oh, affected)
	}
	return s.load(ctx, id)
}

// AddHost grants shared ownership of an office hour.
func (s *OfficeHourService) AddHost(ctx context.Context, id, userID string) (*models.OfficeHour, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.AddHost(ctx, id, userID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add host")
	}
	return s.load(ctx, id)
}

// RemoveHost drops a host. Removing the last host deletes the office hour;
// the returned office hour is nil in that case.
func (s *OfficeHourService) RemoveHost(ctx context.Context, id, userID string) (*models.OfficeHour, error) {
	remaining, err := s.repo.RemoveHost(ctx, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "host not found on office hour")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove host")
	}
	if remaining == 0 {
		s.logger.Info("office hour deleted with last host", zap.String("office_hour_id", id))
		return nil, nil
	}
	return s.load(ctx, id)
}

// Instances lists the upcoming occurrences of one office hour within the
// horizon, soonest first.
func (s *OfficeHourService) Instances(ctx context.Context, id string) ([]models.Instance, error) {
	oh, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	course, err := s.courses.FindByID(ctx, oh.CourseID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return s.window(expandOfficeHour(*oh, course, s.location)), nil
}

// CourseInstances lists the upcoming occurrences across all of a course's
// office hours, soonest first.
func (s *OfficeHourService) CourseInstances(ctx context.Context, courseID string) ([]models.Instance, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	hours, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list office hours")
	}

	var instances []models.Instance
	for _, oh := range hours {
		instances = append(instances, expandOfficeHour(oh, course, s.location)...)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Start.Before(instances[j].Start) })
	return s.window(instances), nil
}

// ListTimeOptions returns the bookable slot types of an office hour.
func (s *OfficeHourService) ListTimeOptions(ctx context.Context, officeHourID string) ([]models.TimeOption, error) {
	options, err := s.repo.ListTimeOptions(ctx, officeHourID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list time options")
	}
	return options, nil
}

// AddTimeOption creates a bookable slot type on an office hour.
func (s *OfficeHourService) AddTimeOption(ctx context.Context, officeHourID string, req CreateTimeOptionRequest) (*models.TimeOption, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time option payload")
	}
	if _, err := s.load(ctx, officeHourID); err != nil {
		return nil, err
	}
	option := &models.TimeOption{OfficeHourID: officeHourID, Title: req.Title, DurationMinutes: req.DurationMinutes}
	if err := s.repo.CreateTimeOption(ctx, option); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create time option")
	}
	return option, nil
}

func (s *OfficeHourService) load(ctx context.Context, id string) (*models.OfficeHour, error) {
	oh, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "office hour not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load office hour")
	}
	return oh, nil
}

// window keeps instances between now and now+horizon.
func (s *OfficeHourService) window(instances []models.Instance) []models.Instance {
	now := s.now()
	cutoff := now.Add(s.horizon)
	kept := instances[:0]
	for _, inst := range instances {
		if inst.End.Before(now) || inst.Start.After(cutoff) {
			continue
		}
		kept = append(kept, inst)
	}
	return kept
}

func (s *OfficeHourService) notifyInstanceCancelled(ctx context.Context, oh *models.OfficeHour, inst *models.Instance) {
	if s.notifier == nil || s.registrations == nil {
		return
	}
	regs, err := s.registrations.ListActiveByInstance(ctx, oh.ID, inst.Start)
	if err != nil {
		s.logger.Warn("failed to list registrants for cancelled instance",
			zap.String("office_hour_id", oh.ID), zap.Error(err))
		return
	}
	accountIDs := make([]string, 0, len(regs))
	for _, reg := range regs {
		accountIDs = append(accountIDs, reg.AccountID)
	}
	if len(accountIDs) == 0 {
		return
	}
	err = s.notifier.Notify(ctx, Notification{
		Type:       NotifyInstanceCancelled,
		AccountIDs: accountIDs,
		CourseID:   oh.CourseID,
		Subject:    fmt.Sprintf("Office hours on %s cancelled", inst.Start.Format("Jan 2")),
		OccursAt:   inst.Start,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue cancellation notification",
			zap.String("office_hour_id", oh.ID), zap.Error(err))
	}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
