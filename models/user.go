package models

import (
	"time"

	"gorm.io/gorm"
)

// User 用户模型. IsOnline/LastSeen are the persisted half of presence.
type User struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string         `json:"username" gorm:"type:varchar(64);uniqueIndex;not null"`
	AvatarURL string         `json:"avatar_url"`
	Bio       string         `json:"bio"`
	IsPrivate bool           `json:"is_private" gorm:"default:false"`
	IsOnline  bool           `json:"is_online" gorm:"default:false"`
	LastSeen  *time.Time     `json:"last_seen" gorm:"default:NULL"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
