package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/office-hours-api/internal/models"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
)

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListTopicsByCourse(ctx context.Context, courseID string) ([]models.Topic, error)
}

// CourseService serves the read-only course surface used by the booking UI.
type CourseService struct {
	repo   courseRepository
	logger *zap.Logger
}

// NewCourseService creates a new course service.
func NewCourseService(repo courseRepository, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, logger: logger}
}

// Get returns one course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Topics returns the topics a registration on this course may reference.
func (s *CourseService) Topics(ctx context.Context, courseID string) ([]models.Topic, error) {
	if _, err := s.Get(ctx, courseID); err != nil {
		return nil, err
	}
	topics, err := s.repo.ListTopicsByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list topics")
	}
	return topics, nil
}
