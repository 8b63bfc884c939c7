package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/office-hours-api/internal/models"
	"github.com/noah-isme/office-hours-api/pkg/config"
	"github.com/noah-isme/office-hours-api/pkg/jobs"
)

// Notification event types.
const (
	NotifyRegistrationCreated   = "registration.created"
	NotifyRegistrationCancelled = "registration.cancelled"
	NotifyInstanceCancelled     = "office_hour.instance_cancelled"
)

// Notification is the payload dispatched to the delivery queue.
type Notification struct {
	Type       string    `json:"type"`
	AccountIDs []string  `json:"account_ids"`
	CourseID   string    `json:"course_id"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	OccursAt   time.Time `json:"occurs_at"`
}

// Notifier dispatches notifications to affected accounts. Services call it
// after the state change commits; delivery failures never roll back domain
// writes.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type recipientResolver interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

// NotificationService fans notifications out through a background queue.
type NotificationService struct {
	queue      *jobs.Queue
	recipients recipientResolver
	enabled    bool
	logger     *zap.Logger
}

// NewNotificationService wires the delivery queue. When disabled through
// config the service accepts notifications and drops them. A nil recipients
// resolver skips address lookup and logs account ids only.
func NewNotificationService(cfg config.NotificationsConfig, recipients recipientResolver, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{enabled: cfg.Enabled, recipients: recipients, logger: logger}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start begins queue workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify enqueues a notification for asynchronous delivery.
func (s *NotificationService) Notify(ctx context.Context, n Notification) error {
	if !s.enabled {
		return nil
	}
	if len(n.AccountIDs) == 0 {
		return nil
	}
	return s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    n.Type,
		Payload: n,
	})
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(Notification)
	if !ok {
		s.logger.Warn("dropping notification with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	var emails []string
	if s.recipients != nil {
		users, err := s.recipients.FindByIDs(ctx, n.AccountIDs)
		if err != nil {
			return fmt.Errorf("resolve notification recipients: %w", err)
		}
		for _, user := range users {
			emails = append(emails, user.Email)
		}
	}
	// Delivery is log-backed for now; the queue boundary keeps the swap to a
	// real mail provider local to this method.
	s.logger.Info("notification delivered",
		zap.String("type", n.Type),
		zap.Strings("account_ids", n.AccountIDs),
		zap.Strings("recipients", emails),
		zap.String("course_id", n.CourseID),
		zap.String("subject", n.Subject))
	return nil
}
