package models

import "time"

// CourseToken is a limited-use credit type defined per course.
type CourseToken struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description,omitempty"`
	TokenLimit  int       `db:"token_limit" json:"token_limit"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// IssueToken is the per-student ledger for one course token. Uses are
// append-only except for explicit undo.
type IssueToken struct {
	ID             string    `db:"id" json:"id"`
	AccountID      string    `db:"account_id" json:"account_id"`
	CourseTokenID  string    `db:"course_token_id" json:"course_token_id"`
	OverrideAmount *int      `db:"override_amount" json:"override_amount,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// TokenUse is one consumption entry in an issue token's ledger.
type TokenUse struct {
	ID           string    `db:"id" json:"id"`
	IssueTokenID string    `db:"issue_token_id" json:"issue_token_id"`
	UsedAt       time.Time `db:"used_at" json:"used_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// IssueTokenDetail joins the ledger with its course token definition and
// current consumption count.
type IssueTokenDetail struct {
	IssueToken
	TokenTitle string `db:"token_title" json:"token_title"`
	TokenLimit int    `db:"token_limit" json:"token_limit"`
	UsedCount  int    `db:"used_count" json:"used_count"`
}

// EffectiveLimit returns the override when set, the course limit otherwise.
func (d IssueTokenDetail) EffectiveLimit() int {
	if d.OverrideAmount != nil {
		return *d.OverrideAmount
	}
	return d.TokenLimit
}

// Remaining returns how many consumptions are left.
func (d IssueTokenDetail) Remaining() int {
	remaining := d.EffectiveLimit() - d.UsedCount
	if remaining < 0 {
		return 0
	}
	return remaining
}
