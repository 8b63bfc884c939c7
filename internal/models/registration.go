package models

import "time"

// RegistrationState is the derived lifecycle state of a registration.
type RegistrationState string

const (
	RegistrationStateCreated            RegistrationState = "CREATED"
	RegistrationStateCancelledByStudent RegistrationState = "CANCELLED_BY_STUDENT"
	RegistrationStateCancelledByStaff   RegistrationState = "CANCELLED_BY_STAFF"
	RegistrationStateNoShow             RegistrationState = "NO_SHOW"
)

// Registration is a student's booking against one office hour instance.
// Cancellation flags are kept separate for audit and notification routing;
// rows are never deleted.
type Registration struct {
	ID           string    `db:"id" json:"id"`
	AccountID    string    `db:"account_id" json:"account_id"`
	OfficeHourID string    `db:"office_hour_id" json:"office_hour_id"`
	TimeOptionID string    `db:"time_option_id" json:"time_option_id"`
	StartAt      time.Time `db:"start_at" json:"start_at"`
	EndAt        time.Time `db:"end_at" json:"end_at"`
	// CourseTokenID records the token consumed at creation so cancellation
	// can refund it.
	CourseTokenID    *string   `db:"course_token_id" json:"course_token_id,omitempty"`
	IsCancelled      bool      `db:"is_cancelled" json:"is_cancelled"`
	IsCancelledStaff bool      `db:"is_cancelled_staff" json:"is_cancelled_staff"`
	IsNoShow         bool      `db:"is_no_show" json:"is_no_show"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`

	TopicIDs []string `db:"-" json:"topic_ids"`
}

// Active reports whether the registration still counts toward duplicates.
func (r Registration) Active() bool {
	return !r.IsCancelled && !r.IsCancelledStaff
}

// State derives the lifecycle state from the persisted flags.
func (r Registration) State() RegistrationState {
	switch {
	case r.IsCancelled:
		return RegistrationStateCancelledByStudent
	case r.IsCancelledStaff:
		return RegistrationStateCancelledByStaff
	case r.IsNoShow:
		return RegistrationStateNoShow
	default:
		return RegistrationStateCreated
	}
}

// RegistrationDetail enriches Registration with display context.
type RegistrationDetail struct {
	Registration
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
	CourseCode   string `db:"course_code" json:"course_code"`
	Location     string `db:"location" json:"location"`
}

// RegistrationFilter provides filters for listing registrations.
type RegistrationFilter struct {
	AccountID    string
	OfficeHourID string
	CourseID     string
	ActiveOnly   bool
	Page         int
	PageSize     int
}
