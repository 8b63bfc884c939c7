package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/office-hours-api/internal/models"
)

// CourseRepository handles persistence of courses and their topics.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, code, title, start_reg_hours, end_reg_hours, is_paused, is_archived, uses_tokens, timezone, created_at, updated_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// FindTopics returns the topics matching the given ids.
func (r *CourseRepository) FindTopics(ctx context.Context, ids []string) ([]models.Topic, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, course_id, title, course_token_id FROM topics WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build topic id query: %w", err)
	}
	query = r.db.Rebind(query)
	var topics []models.Topic
	if err := r.db.SelectContext(ctx, &topics, query, args...); err != nil {
		return nil, fmt.Errorf("find topics: %w", err)
	}
	return topics, nil
}

// ListTopicsByCourse returns every topic a course offers.
func (r *CourseRepository) ListTopicsByCourse(ctx context.Context, courseID string) ([]models.Topic, error) {
	const query = `SELECT id, course_id, title, course_token_id FROM topics WHERE course_id = $1 ORDER BY title`
	var topics []models.Topic
	if err := r.db.SelectContext(ctx, &topics, query, courseID); err != nil {
		return nil, fmt.Errorf("list course topics: %w", err)
	}
	return topics, nil
}
