package services

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"social-backend/models"
)

// requireMember returns ErrNotFound for an unknown conversation and
// ErrAccessDenied when userID is not a current member.
func requireMember(ctx context.Context, db *gorm.DB, conversationID string, userID uint) (*models.ConversationParticipant, error) {
	var conv models.Conversation
	err := db.WithContext(ctx).Select("conversation_id").
		Where("conversation_id = ?", conversationID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "conversation %s", conversationID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load conversation")
	}

	var p models.ConversationParticipant
	err = db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ? AND left_at IS NULL", conversationID, userID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrAccessDenied, "user %d not in conversation %s", userID, conversationID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load participant")
	}
	return &p, nil
}

// activeMemberIDs lists users with no left_at in a conversation.
func activeMemberIDs(ctx context.Context, db *gorm.DB, conversationID string) ([]uint, error) {
	var ids []uint
	err := db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND left_at IS NULL", conversationID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, errors.Wrap(err, "list members")
}

// memberConversationIDs lists the conversations userID currently belongs to.
func memberConversationIDs(ctx context.Context, db *gorm.DB, userID uint) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("user_id = ? AND left_at IS NULL", userID).
		Pluck("conversation_id", &ids).Error
	return ids, errors.Wrap(err, "list conversations")
}
