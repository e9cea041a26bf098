package models

import "time"

const (
	NotifyMessage       = "MESSAGE"
	NotifyFollow        = "FOLLOW"
	NotifyFollowRequest = "FOLLOW_REQUEST"
	NotifyFollowAccept  = "FOLLOW_ACCEPT"
	NotifyFollowReject  = "FOLLOW_REJECT"
	NotifyReaction      = "REACTION"
	NotifyComment       = "COMMENT"
	NotifyReply         = "REPLY"
	NotifyRepost        = "REPOST"
)

const (
	TargetPost         = "post"
	TargetComment      = "comment"
	TargetUser         = "user"
	TargetConversation = "conversation"
)

// Notification is either a single actor event or a rolled-up group. The full
// key (user, type, target, window) is unique; dedup kinds use WindowIndex 0.
type Notification struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;uniqueIndex:idx_notification_key,priority:1;index:idx_notification_user_created,priority:1" json:"user_id"`
	Type           string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_notification_key,priority:2" json:"type"`
	TargetType     string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_notification_key,priority:3" json:"target_type"`
	TargetID       string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_notification_key,priority:4" json:"target_id"`
	WindowIndex    int64     `gorm:"not null;uniqueIndex:idx_notification_key,priority:5" json:"window_index"`
	ActorID        uint      `json:"actor_id"` // latest actor
	ActorIDs       []uint    `gorm:"serializer:json;type:text" json:"actor_ids"`
	Count          int       `gorm:"not null;default:1" json:"count"`
	Message        string    `gorm:"type:varchar(512)" json:"message"`
	IsRead         bool      `gorm:"default:false;index" json:"is_read"`
	LastActivityAt time.Time `gorm:"index" json:"last_activity_at"`
	CreatedAt      time.Time `gorm:"index:idx_notification_user_created,priority:2" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasActor reports whether id already contributed to the notification.
func (n *Notification) HasActor(id uint) bool {
	for _, a := range n.ActorIDs {
		if a == id {
			return true
		}
	}
	return false
}
