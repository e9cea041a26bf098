package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"social-backend/metrics"
	"social-backend/models"
)

type SendMessageInput struct {
	Content     string  `json:"content"`
	MessageType string  `json:"message_type"`
	ReplyToID   *string `json:"reply_to_id"`
}

type MessageRecalledPayload struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	RecalledAt     time.Time `json:"recalled_at"`
}

type MessageDeletedPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type ReactionPayload struct {
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id"`
	UserID         uint           `json:"user_id"`
	Emoji          string         `json:"emoji"`
	Action         string         `json:"action"` // added | updated | removed
	Counts         map[string]int `json:"counts"`
}

type PinPayload struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	Action         string    `json:"action"` // pinned | unpinned
	UserID         uint      `json:"user_id"`
	At             time.Time `json:"at"`
}

type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         uint   `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

const (
	PinActionPinned   = "pinned"
	PinActionUnpinned = "unpinned"
)

// SendMessage persists a message and its delivery rows in one transaction,
// then fans it out. Broadcast and notification failures do not fail the send.
func (s *ChatService) SendMessage(ctx context.Context, senderID uint, conversationID string, in SendMessageInput) (*models.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "content is required")
	}
	msgType := in.MessageType
	switch msgType {
	case "":
		msgType = models.MessageText
	case models.MessageText, models.MessageImage:
	default:
		return nil, errors.Wrapf(ErrInvalidArgument, "message type %q", msgType)
	}
	if _, err := requireMember(ctx, s.db, conversationID, senderID); err != nil {
		return nil, err
	}
	if in.ReplyToID != nil {
		var n int64
		err := s.db.WithContext(ctx).Model(&models.Message{}).
			Where("message_id = ? AND conversation_id = ? AND is_deleted = ?", *in.ReplyToID, conversationID, false).
			Count(&n).Error
		if err != nil {
			return nil, errors.Wrap(err, "load reply target")
		}
		if n == 0 {
			return nil, errors.Wrapf(ErrNotFound, "reply target %s", *in.ReplyToID)
		}
	}

	members, err := activeMemberIDs(ctx, s.db, conversationID)
	if err != nil {
		return nil, err
	}
	plans := PlanFanout(&senderID, members, s.presence.Snapshot(members, conversationID))

	now := s.now()
	msg := &models.Message{
		MessageID:      uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       &senderID,
		MessageType:    msgType,
		Content:        content,
		ReplyToID:      in.ReplyToID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return errors.Wrap(err, "create message")
		}
		if err := s.delivery.CreateForMessage(tx, msg, plans); err != nil {
			return err
		}
		return errors.Wrap(tx.Model(&models.Conversation{}).
			Where("conversation_id = ?", conversationID).
			Update("last_message_at", now).Error, "touch conversation")
	})
	if err != nil {
		return nil, err
	}
	metrics.MessagesSent.Inc()

	s.router.Route(msg, plans)
	s.events.Dispatch(MessageSent{Message: *msg, Plans: plans})
	return msg, nil
}

// ListMessages returns up to limit messages older than before (all when nil),
// oldest first. Deleted messages are hidden.
func (s *ChatService) ListMessages(ctx context.Context, userID uint, conversationID string, before *time.Time, limit int) ([]models.Message, error) {
	if _, err := requireMember(ctx, s.db, conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).
		Where("conversation_id = ? AND is_deleted = ?", conversationID, false)
	if before != nil {
		q = q.Where("created_at < ?", *before)
	}
	var list []models.Message
	if err := q.Order("created_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

// loadMessage returns a live message. Deleted messages count as missing.
func (s *ChatService) loadMessage(ctx context.Context, messageID string) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).Where("message_id = ?", messageID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && msg.IsDeleted) {
		return nil, errors.Wrapf(ErrNotFound, "message %s", messageID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load message")
	}
	return &msg, nil
}

// ownMessage loads a message userID wrote and may still act on.
func (s *ChatService) ownMessage(ctx context.Context, userID uint, messageID string) (*models.Message, error) {
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID == nil || *msg.SenderID != userID {
		return nil, errors.Wrap(ErrAccessDenied, "not the sender")
	}
	if _, err := requireMember(ctx, s.db, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	return msg, nil
}

// EditMessage replaces the content and appends the old one to the edit history.
func (s *ChatService) EditMessage(ctx context.Context, userID uint, messageID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "content is required")
	}
	msg, err := s.ownMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsRecalled {
		return nil, errors.Wrap(ErrInvalidArgument, "message was recalled")
	}
	if msg.Content == content {
		return msg, nil
	}

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		edit := models.MessageEdit{MessageID: msg.MessageID, EditorID: userID, PreviousContent: msg.Content, EditedAt: now}
		if err := tx.Create(&edit).Error; err != nil {
			return err
		}
		return tx.Model(msg).Updates(map[string]any{"content": content, "is_edited": true, "updated_at": now}).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "edit message")
	}
	msg.Content, msg.IsEdited, msg.UpdatedAt = content, true, now

	s.publish(ConversationChannel(msg.ConversationID), EventMessageEdited, msg)
	return msg, nil
}

// EditHistory lists the previous contents of a message, oldest first.
func (s *ChatService) EditHistory(ctx context.Context, userID uint, messageID string) ([]models.MessageEdit, error) {
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := requireMember(ctx, s.db, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	var edits []models.MessageEdit
	err = s.db.WithContext(ctx).Where("message_id = ?", messageID).Order("edited_at ASC").Order("id ASC").Find(&edits).Error
	return edits, errors.Wrap(err, "list edits")
}

// RecallMessage withdraws the content; recalling twice is a no-op.
func (s *ChatService) RecallMessage(ctx context.Context, userID uint, messageID string) (*models.Message, error) {
	msg, err := s.ownMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsRecalled {
		return msg, nil
	}
	now := s.now()
	err = s.db.WithContext(ctx).Model(msg).
		Updates(map[string]any{"is_recalled": true, "recalled_at": now, "content": "", "updated_at": now}).Error
	if err != nil {
		return nil, errors.Wrap(err, "recall message")
	}
	msg.IsRecalled, msg.RecalledAt, msg.Content = true, &now, ""

	s.publish(ConversationChannel(msg.ConversationID), EventMessageRecalled, MessageRecalledPayload{
		ConversationID: msg.ConversationID,
		MessageID:      msg.MessageID,
		RecalledAt:     now,
	})
	return msg, nil
}

// DeleteMessage soft-deletes; the row stays.
func (s *ChatService) DeleteMessage(ctx context.Context, userID uint, messageID string) error {
	msg, err := s.ownMessage(ctx, userID, messageID)
	if err != nil {
		return err
	}
	now := s.now()
	err = s.db.WithContext(ctx).Model(msg).
		Updates(map[string]any{"is_deleted": true, "deleted_at": now, "updated_at": now}).Error
	if err != nil {
		return errors.Wrap(err, "delete message")
	}
	s.publish(ConversationChannel(msg.ConversationID), EventMessageDeleted, MessageDeletedPayload{
		ConversationID: msg.ConversationID,
		MessageID:      msg.MessageID,
	})
	return nil
}

// ReactToMessage sets userID's emoji. The same emoji again removes it, a
// different one replaces it.
func (s *ChatService) ReactToMessage(ctx context.Context, userID uint, messageID, emoji string) (*ReactionPayload, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "emoji is required")
	}
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := requireMember(ctx, s.db, msg.ConversationID, userID); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var action string
	var existing models.MessageReaction
	err = db.Where("message_id = ? AND user_id = ?", messageID, userID).First(&existing).Error
	switch {
	case err == nil && existing.Emoji == emoji:
		action = "removed"
		err = db.Delete(&existing).Error
	case err == nil:
		action = "updated"
		err = db.Model(&existing).Update("emoji", emoji).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		action = "added"
		err = db.Create(&models.MessageReaction{MessageID: messageID, UserID: userID, Emoji: emoji, CreatedAt: s.now()}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			action = "updated"
			err = db.Model(&models.MessageReaction{}).
				Where("message_id = ? AND user_id = ?", messageID, userID).
				Update("emoji", emoji).Error
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "react to message")
	}

	counts, err := s.reactionCounts(ctx, messageID)
	if err != nil {
		return nil, err
	}
	payload := &ReactionPayload{
		ConversationID: msg.ConversationID,
		MessageID:      messageID,
		UserID:         userID,
		Emoji:          emoji,
		Action:         action,
		Counts:         counts,
	}
	s.publish(ConversationChannel(msg.ConversationID), EventReactionUpdated, payload)
	return payload, nil
}

func (s *ChatService) reactionCounts(ctx context.Context, messageID string) (map[string]int, error) {
	var rows []struct {
		Emoji string
		Total int
	}
	err := s.db.WithContext(ctx).Model(&models.MessageReaction{}).
		Select("emoji, COUNT(*) AS total").
		Where("message_id = ?", messageID).
		Group("emoji").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "count reactions")
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Emoji] = r.Total
	}
	return counts, nil
}

// TogglePin pins an unpinned message and unpins a pinned one.
func (s *ChatService) TogglePin(ctx context.Context, userID uint, messageID string) (*PinPayload, error) {
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := requireMember(ctx, s.db, msg.ConversationID, userID); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	now := s.now()
	payload := &PinPayload{ConversationID: msg.ConversationID, MessageID: messageID, UserID: userID, At: now}

	var pin models.PinnedMessage
	err = db.Where("conversation_id = ? AND message_id = ?", msg.ConversationID, messageID).First(&pin).Error
	switch {
	case err == nil:
		payload.Action = PinActionUnpinned
		err = db.Delete(&pin).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		payload.Action = PinActionPinned
		err = db.Create(&models.PinnedMessage{
			ConversationID: msg.ConversationID,
			MessageID:      messageID,
			PinnedBy:       userID,
			PinnedAt:       now,
		}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// pinned concurrently; the row already exists
			err = nil
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "toggle pin")
	}

	s.publish(ConversationChannel(msg.ConversationID), EventMessagePinned, payload)
	return payload, nil
}

// ListPins returns the pinned messages of a conversation, newest pin first.
func (s *ChatService) ListPins(ctx context.Context, userID uint, conversationID string) ([]models.PinnedMessage, error) {
	if _, err := requireMember(ctx, s.db, conversationID, userID); err != nil {
		return nil, err
	}
	var pins []models.PinnedMessage
	err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("pinned_at DESC").Find(&pins).Error
	return pins, errors.Wrap(err, "list pins")
}

// Typing relays a typing indicator. Start events over the rate limit are
// dropped; stop events always pass.
func (s *ChatService) Typing(ctx context.Context, userID uint, conversationID string, isTyping bool) error {
	if _, err := requireMember(ctx, s.db, conversationID, userID); err != nil {
		return err
	}
	if isTyping && !s.typing.Allow(userID, conversationID) {
		return nil
	}
	s.publish(ConversationChannel(conversationID), EventTyping, TypingPayload{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	})
	return nil
}

// MarkSeen is the explicit read acknowledgement for a conversation.
func (s *ChatService) MarkSeen(ctx context.Context, userID uint, conversationID string) error {
	if _, err := requireMember(ctx, s.db, conversationID, userID); err != nil {
		return err
	}
	return s.presence.MarkSeen(ctx, userID, conversationID)
}
