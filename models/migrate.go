package models

import "gorm.io/gorm"

// All lists every model handled by Migrate.
func All() []any {
	return []any{
		&User{},
		&Conversation{},
		&ConversationParticipant{},
		&Message{},
		&MessageEdit{},
		&MessageReaction{},
		&DeliveryState{},
		&PinnedMessage{},
		&Notification{},
		&Post{},
		&PostReaction{},
		&Comment{},
		&Follow{},
	}
}

// Migrate 自动迁移
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(All()...)
}
