package model

import "time"

// Conversation is a chat thread, optionally anchored to a risk record for context.
type Conversation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Title     string    `gorm:"size:128;not null" json:"title"`
	RecordID  *uint     `gorm:"index" json:"record_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
