package models

import "time"

// Course captures the registration-relevant portion of a course record.
type Course struct {
	ID    string `db:"id" json:"id"`
	Code  string `db:"code" json:"code"`
	Title string `db:"title" json:"title"`
	// StartRegHours bounds how many hours before an instance starts that
	// registration opens; zero or negative means no lower bound.
	StartRegHours int `db:"start_reg_hours" json:"start_reg_hours"`
	// EndRegHours bounds how many hours after an instance starts that
	// registration stays open; zero or negative means no upper bound.
	EndRegHours int       `db:"end_reg_hours" json:"end_reg_hours"`
	IsPaused    bool      `db:"is_paused" json:"is_paused"`
	IsArchived  bool      `db:"is_archived" json:"is_archived"`
	UsesTokens  bool      `db:"uses_tokens" json:"uses_tokens"`
	Timezone    string    `db:"timezone" json:"timezone"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Topic is a registration subject offered by a course. Token-gated topics
// reference the course token a registration must consume.
type Topic struct {
	ID            string  `db:"id" json:"id"`
	CourseID      string  `db:"course_id" json:"course_id"`
	Title         string  `db:"title" json:"title"`
	CourseTokenID *string `db:"course_token_id" json:"course_token_id,omitempty"`
}
