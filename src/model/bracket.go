package model

import "time"

// Bracket statuses. Transitions are monotonic; the terminal set
// (completed, cancelled, failed) admits no further mutation.
const (
	BracketStatusPending         = "pending"
	BracketStatusActive          = "active"
	BracketStatusPartiallyFilled = "partially_filled"
	BracketStatusCompleted       = "completed"
	BracketStatusCancelled       = "cancelled"
	BracketStatusFailed          = "failed"
)

// Bracket is the summary row of a bracket order group. The individual
// parent/child legs live in the orders table and point back via BracketID.
type Bracket struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	UserID        uint      `gorm:"index" json:"user_id"`
	BrokerID      uint      `gorm:"index" json:"broker_id"`
	ParentOrderID string    `gorm:"size:36;index" json:"parent_order_id"`
	Status        string    `gorm:"size:50;not null;default:pending" json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for bracket summaries.
func (Bracket) TableName() string {
	return "brackets"
}

// IsTerminalBracketStatus reports whether a bracket status admits no
// further mutation.
func IsTerminalBracketStatus(status string) bool {
	switch status {
	case BracketStatusCompleted, BracketStatusCancelled, BracketStatusFailed:
		return true
	}
	return false
}
