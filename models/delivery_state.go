package models

import "time"

const (
	StatusSent      = "SENT"
	StatusDelivered = "DELIVERED"
	StatusRead      = "READ"
)

// DeliveryState is the per-recipient receipt for a message. Status only moves
// forward: SENT -> DELIVERED -> READ.
type DeliveryState struct {
	MessageID      string    `gorm:"primaryKey;type:varchar(36)" json:"message_id"`
	UserID         uint      `gorm:"primaryKey;index:idx_delivery_user_status,priority:1" json:"user_id"`
	ConversationID string    `gorm:"type:varchar(36);index" json:"conversation_id"`
	SenderID       *uint     `json:"sender_id"`
	Status         string    `gorm:"type:varchar(16);index:idx_delivery_user_status,priority:2" json:"status"`
	UpdatedAt      time.Time `json:"updated_at"`
}
