package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/office-hours-api/internal/lock"
	"github.com/noah-isme/office-hours-api/internal/models"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
)

type registrationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error)
	ExistsActive(ctx context.Context, accountID, officeHourID string, startAt time.Time) (bool, error)
	ListActiveByInstance(ctx context.Context, officeHourID string, startAt time.Time) ([]models.RegistrationDetail, error)
	Create(ctx context.Context, reg *models.Registration) error
	SetCancelled(ctx context.Context, id string, byStaff bool) error
	SetNoShow(ctx context.Context, id string) error
}

type officeHourReader interface {
	FindByID(ctx context.Context, id string) (*models.OfficeHour, error)
	FindTimeOption(ctx context.Context, id string) (*models.TimeOption, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindTopics(ctx context.Context, ids []string) ([]models.Topic, error)
}

type tokenLedger interface {
	Consume(ctx context.Context, accountID, courseTokenID string, usedAt time.Time) (*models.IssueTokenDetail, error)
	UndoConsume(ctx context.Context, accountID, courseTokenID string, date time.Time) (*models.IssueTokenDetail, error)
}

// CreateRegistrationRequest describes a booking for one instance.
type CreateRegistrationRequest struct {
	AccountID    string    `json:"-" validate:"required"`
	OfficeHourID string    `json:"office_hour_id" validate:"required"`
	TimeOptionID string    `json:"time_option_id" validate:"required"`
	StartAt      time.Time `json:"start_at" validate:"required"`
	TopicIDs     []string  `json:"topic_ids" validate:"min=1"`
}

// RegistrationResult pairs the created registration with the advisory flag
// so callers can surface a paused-course warning without failing the call.
type RegistrationResult struct {
	Registration   *models.Registration `json:"registration"`
	PausedAdvisory bool                 `json:"paused_advisory"`
}

// RegistrationService orchestrates instance booking: recurrence resolution,
// window admission, duplicate suppression and token consumption.
type RegistrationService struct {
	repo        registrationRepository
	officeHours officeHourReader
	courses     courseReader
	tokens      tokenLedger
	guard       *WindowGuard
	notifier    Notifier
	keys        *lock.KeyedMutex
	location    *time.Location
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewRegistrationService constructs RegistrationService. The location is the
// fallback zone for courses without their own timezone.
func NewRegistrationService(repo registrationRepository, officeHours officeHourReader, courses courseReader, tokens tokenLedger, guard *WindowGuard, notifier Notifier, keys *lock.KeyedMutex, location *time.Location, validate *validator.Validate, logger *zap.Logger) *RegistrationService {
	if guard == nil {
		guard = NewWindowGuard(nil)
	}
	if keys == nil {
		keys = lock.NewKeyedMutex()
	}
	if location == nil {
		location = time.UTC
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		repo:        repo,
		officeHours: officeHours,
		courses:     courses,
		tokens:      tokens,
		guard:       guard,
		notifier:    notifier,
		keys:        keys,
		location:    location,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Create books one office hour instance for a student.
func (s *RegistrationService) Create(ctx context.Context, req CreateRegistrationRequest) (*RegistrationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	oh, err := s.officeHours.FindByID(ctx, req.OfficeHourID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "office hour not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load office hour")
	}
	course, err := s.courses.FindByID(ctx, oh.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	instance, ok := findInstance(expandOfficeHour(*oh, course, s.location), req.StartAt)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInstanceNotFound, "")
	}

	admission := s.guard.Check(*course, instance.Start, s.now())
	if !admission.Allowed() {
		return nil, admissionError(admission)
	}

	option, err := s.officeHours.FindTimeOption(ctx, req.TimeOptionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "time option not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time option")
	}
	if option.OfficeHourID != oh.ID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "time option does not belong to office hour")
	}

	topics, err := s.courses.FindTopics(ctx, req.TopicIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load topics")
	}
	if len(topics) != len(req.TopicIDs) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "topic not found")
	}
	var gatedToken *string
	for _, topic := range topics {
		if topic.CourseID != course.ID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "topic does not belong to course")
		}
		if gatedToken == nil && topic.CourseTokenID != nil {
			gatedToken = topic.CourseTokenID
		}
	}

	unlock := s.keys.Lock(bookingKey(req.AccountID, oh.ID, instance.Start))
	defer unlock()

	exists, err := s.repo.ExistsActive(ctx, req.AccountID, oh.ID, instance.Start)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate registration")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateRegistration, "")
	}

	var consumedToken *string
	if course.UsesTokens && gatedToken != nil {
		if _, err := s.tokens.Consume(ctx, req.AccountID, *gatedToken, instance.Start); err != nil {
			return nil, err
		}
		consumedToken = gatedToken
	}

	reg := &models.Registration{
		AccountID:     req.AccountID,
		OfficeHourID:  oh.ID,
		TimeOptionID:  option.ID,
		StartAt:       instance.Start,
		EndAt:         instance.Start.Add(time.Duration(option.DurationMinutes) * time.Minute),
		CourseTokenID: consumedToken,
		TopicIDs:      req.TopicIDs,
	}
	if err := s.repo.Create(ctx, reg); err != nil {
		if consumedToken != nil {
			if _, undoErr := s.tokens.UndoConsume(ctx, req.AccountID, *consumedToken, instance.Start); undoErr != nil {
				s.logger.Error("failed to refund token after registration failure",
					zap.String("account_id", req.AccountID),
					zap.String("course_token_id", *consumedToken),
					zap.Error(undoErr))
			}
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create registration")
	}

	s.notify(ctx, Notification{
		Type:       NotifyRegistrationCreated,
		AccountIDs: append([]string{req.AccountID}, oh.HostIDs...),
		CourseID:   course.ID,
		Subject:    fmt.Sprintf("Registration confirmed for %s", course.Code),
		OccursAt:   instance.Start,
	})

	s.logger.Info("registration created",
		zap.String("registration_id", reg.ID),
		zap.String("account_id", req.AccountID),
		zap.String("office_hour_id", oh.ID),
		zap.Time("start_at", instance.Start),
		zap.Bool("token_consumed", consumedToken != nil))
	return &RegistrationResult{Registration: reg, PausedAdvisory: admission.PausedAdvisory}, nil
}

// Cancel voids a registration. Students may cancel their own bookings; staff
// may cancel any. A token consumed at creation is refunded.
func (s *RegistrationService) Cancel(ctx context.Context, id, actorID string, actorRole models.UserRole) (*models.Registration, error) {
	reg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.AccountID != actorID && !actorRole.IsStaffLike() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot cancel another student's registration")
	}
	if !reg.Active() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "registration already cancelled")
	}

	// The flag records who acted, not whose booking it is: staff cancelling
	// their own registration still counts as a staff cancellation.
	byStaff := actorRole.IsStaffLike()
	if err := s.repo.SetCancelled(ctx, id, byStaff); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel registration")
	}
	reg.IsCancelled = !byStaff
	reg.IsCancelledStaff = byStaff

	if reg.CourseTokenID != nil {
		if _, err := s.tokens.UndoConsume(ctx, reg.AccountID, *reg.CourseTokenID, reg.StartAt); err != nil {
			// The cancellation stands either way; an unmatched ledger entry
			// only means the use was already undone.
			if !errors.Is(err, appErrors.ErrNoMatchingConsumption) {
				s.logger.Error("failed to refund token on cancellation",
					zap.String("registration_id", id),
					zap.Error(err))
			}
		}
	}

	s.notify(ctx, Notification{
		Type:       NotifyRegistrationCancelled,
		AccountIDs: []string{reg.AccountID},
		Subject:    "Registration cancelled",
		OccursAt:   reg.StartAt,
	})
	return reg, nil
}

// MarkNoShow flags an attended-instance miss. Staff only; enforced at the
// route layer, re-checked here.
func (s *RegistrationService) MarkNoShow(ctx context.Context, id string, actorRole models.UserRole) (*models.Registration, error) {
	if !actorRole.IsStaffLike() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may record a no-show")
	}
	reg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !reg.Active() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "registration is cancelled")
	}
	if err := s.repo.SetNoShow(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record no-show")
	}
	reg.IsNoShow = true
	return reg, nil
}

// Get returns one registration.
func (s *RegistrationService) Get(ctx context.Context, id string) (*models.Registration, error) {
	return s.load(ctx, id)
}

// List returns registrations with pagination metadata.
func (s *RegistrationService) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error) {
	regs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return regs, pagination, nil
}

func (s *RegistrationService) load(ctx context.Context, id string) (*models.Registration, error) {
	reg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	return reg, nil
}

func (s *RegistrationService) notify(ctx context.Context, n Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("type", n.Type), zap.Error(err))
	}
}

func bookingKey(accountID, officeHourID string, start time.Time) string {
	return fmt.Sprintf("booking:%s:%s:%d", accountID, officeHourID, start.Unix())
}

func admissionError(a Admission) error {
	switch a.Decision {
	case AdmissionArchivedBlocked:
		return appErrors.Clone(appErrors.ErrArchivedBlocked, "")
	case AdmissionClosedBeforeWindow:
		return appErrors.Clone(appErrors.ErrClosedBeforeWindow, "")
	case AdmissionClosedAfterWindow:
		return appErrors.Clone(appErrors.ErrClosedAfterWindow, "")
	default:
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "registration not permitted")
	}
}
