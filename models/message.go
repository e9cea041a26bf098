package models

import "time"

const (
	MessageText   = "text"
	MessageImage  = "image"
	MessageSystem = "system"
)

// Message rows are never physically removed; edits go to MessageEdit.
type Message struct {
	MessageID      string     `json:"message_id" gorm:"primaryKey;type:varchar(36)"`
	ConversationID string     `json:"conversation_id" gorm:"type:varchar(36);index:idx_msg_conv_created,priority:1"`
	SenderID       *uint      `json:"sender_id" gorm:"index"` // nil for system messages
	MessageType    string     `json:"message_type" gorm:"type:varchar(16)"`
	Content        string     `json:"content" gorm:"type:text"`
	ReplyToID      *string    `json:"reply_to_id,omitempty" gorm:"type:varchar(36)"`
	IsEdited       bool       `json:"is_edited" gorm:"default:false"`
	IsRecalled     bool       `json:"is_recalled" gorm:"default:false"`
	RecalledAt     *time.Time `json:"recalled_at,omitempty"`
	IsDeleted      bool       `json:"is_deleted" gorm:"default:false;index"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at" gorm:"index:idx_msg_conv_created,priority:2"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// MessageEdit is an append-only history entry holding the content replaced by an edit.
type MessageEdit struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	MessageID       string    `gorm:"type:varchar(36);index" json:"message_id"`
	EditorID        uint      `json:"editor_id"`
	PreviousContent string    `gorm:"type:text" json:"previous_content"`
	EditedAt        time.Time `json:"edited_at"`
}

// MessageReaction holds at most one emoji per user per message.
type MessageReaction struct {
	MessageID string    `gorm:"primaryKey;type:varchar(36)" json:"message_id"`
	UserID    uint      `gorm:"primaryKey" json:"user_id"`
	Emoji     string    `gorm:"type:varchar(32)" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}
