package models

import "time"

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

type ConversationParticipant struct {
	ConversationID string     `gorm:"primaryKey;type:varchar(36)" json:"conversation_id"`
	UserID         uint       `gorm:"primaryKey;index" json:"user_id"`
	Role           string     `gorm:"type:varchar(16);default:member" json:"role"`
	JoinedAt       time.Time  `gorm:"autoCreateTime" json:"joined_at"`
	LeftAt         *time.Time `json:"left_at,omitempty"` // nil while still a member

	User User `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
}

// Active reports whether the participant is still a member.
func (p ConversationParticipant) Active() bool { return p.LeftAt == nil }
