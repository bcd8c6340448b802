package model

import (
	"time"
)

// Column limits for ProcessedMessage
const (
	MaxMessageIDLength = 255
	MaxSubjectLength   = 500
	MaxFromLength      = 200
)

// ProcessedMessage records a message that has been notified for a user.
// The (user_id, message_id) pair is the dedup key.
type ProcessedMessage struct {
	ID          uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID      uint       `json:"user_id" gorm:"not null;uniqueIndex:uk_processed_user_message,priority:1;index:idx_processed_user_id"`
	MessageID   string     `json:"message_id" gorm:"type:varchar(255);not null;uniqueIndex:uk_processed_user_message,priority:2"`
	Subject     string     `json:"subject" gorm:"type:varchar(500)"`
	FromAddress string     `json:"from_address" gorm:"type:varchar(200)"`
	Body        string     `json:"body" gorm:"type:text"`
	ProcessedAt time.Time  `json:"processed_at" gorm:"not null;index:idx_processed_at"`
	Category    *string    `json:"category,omitempty" gorm:"type:varchar(50)"`
	Summary     *string    `json:"summary,omitempty" gorm:"type:text"`
	AnalyzedAt  *time.Time `json:"analyzed_at,omitempty"`
}

// TableName specifies the table name for ProcessedMessage
func (ProcessedMessage) TableName() string {
	return "processed_messages"
}
