package model

import "time"

// BracketEventLog stores the audit trail of engine state transitions, one
// row per published event. Rows are append-only snapshots; the live state
// stays in the brackets/orders tables.
type BracketEventLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	BracketID string `gorm:"size:36;index" json:"bracket_id"`
	UserID    uint   `gorm:"index" json:"user_id"`
	BrokerID  uint   `gorm:"index" json:"broker_id"`

	EventType string `gorm:"size:50;not null;index" json:"event_type"`
	Status    string `gorm:"size:50" json:"status"`

	// Full event payload as emitted to subscribers.
	Payload string `gorm:"type:text" json:"payload"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName allows you to control the exact table name for event logs.
func (BracketEventLog) TableName() string {
	return "bracket_event_logs"
}
