package models

import "time"

const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

type Conversation struct {
	ConversationID string     `gorm:"primaryKey;type:varchar(36)" json:"conversation_id"`
	Type           string     `gorm:"type:varchar(10);index" json:"type"`      // "direct" or "group"
	DirectKey      *string    `gorm:"type:varchar(80);uniqueIndex" json:"-"`   // sorted user pair, direct only
	Name           string     `gorm:"type:varchar(128)" json:"name,omitempty"` // group only
	OwnerID        *uint      `gorm:"index" json:"owner_id,omitempty"`         // group only
	LastMessageAt  *time.Time `gorm:"index" json:"last_message_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID;references:ConversationID" json:"participants,omitempty"`
}
