package models

import "time"

type PinnedMessage struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_pin_conv_msg" json:"conversation_id"`
	MessageID      string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_pin_conv_msg" json:"message_id"`
	PinnedBy       uint      `gorm:"not null" json:"pinned_by"`
	PinnedAt       time.Time `json:"pinned_at"`
}
