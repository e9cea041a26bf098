package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"social-backend/metrics"
	"social-backend/models"
)

// StatusChange is one delivery row that moved forward.
type StatusChange struct {
	MessageID      string
	ConversationID string
	SenderID       *uint
	UserID         uint
	Status         string
}

// DeliveryStatusPayload is the delivery-status-update event body sent to the
// message author.
type DeliveryStatusPayload struct {
	ConversationID string   `json:"conversation_id"`
	MessageIDs     []string `json:"message_ids"`
	Status         string   `json:"status"`
	UserID         uint     `json:"user_id"`
}

// DeliveryTracker owns the SENT -> DELIVERED -> READ lifecycle. Every update
// filters on the statuses below the target, so a row never moves backwards.
type DeliveryTracker struct {
	db  *gorm.DB
	hub Broadcaster
	log *zap.Logger
	now func() time.Time
}

func NewDeliveryTracker(db *gorm.DB, hub Broadcaster, log *zap.Logger) *DeliveryTracker {
	return &DeliveryTracker{db: db, hub: hub, log: log, now: time.Now}
}

// CreateForMessage writes one row per planned recipient inside tx. The initial
// status is a snapshot of presence at send time.
func (d *DeliveryTracker) CreateForMessage(tx *gorm.DB, msg *models.Message, plans []RecipientPlan) error {
	rows := make([]models.DeliveryState, 0, len(plans))
	now := d.now()
	for _, p := range plans {
		if msg.SenderID != nil && *msg.SenderID == p.UserID {
			continue
		}
		rows = append(rows, models.DeliveryState{
			MessageID:      msg.MessageID,
			UserID:         p.UserID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			Status:         p.InitialStatus(),
			UpdatedAt:      now,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return errors.Wrap(tx.Create(&rows).Error, "create delivery states")
}

// MarkDelivered moves every SENT row of userID to DELIVERED. Rows of deleted
// messages and of messages the user wrote are left alone.
func (d *DeliveryTracker) MarkDelivered(ctx context.Context, userID uint) ([]StatusChange, error) {
	return d.advance(ctx, userID, []string{models.StatusSent}, models.StatusDelivered, func(q *gorm.DB) *gorm.DB {
		return q.Joins("JOIN messages ON messages.message_id = delivery_states.message_id").
			Where("messages.is_deleted = ?", false).
			Where("(messages.sender_id IS NULL OR messages.sender_id <> ?)", userID)
	})
}

// MarkConversationRead moves every unread row of userID in a conversation to READ.
func (d *DeliveryTracker) MarkConversationRead(ctx context.Context, userID uint, conversationID string) ([]StatusChange, error) {
	return d.advance(ctx, userID, []string{models.StatusSent, models.StatusDelivered}, models.StatusRead, func(q *gorm.DB) *gorm.DB {
		return q.Where("delivery_states.conversation_id = ?", conversationID)
	})
}

// MarkMessageRead upgrades a single row. A nil change means the row was
// already READ or does not exist.
func (d *DeliveryTracker) MarkMessageRead(ctx context.Context, userID uint, messageID string) (*StatusChange, error) {
	changes, err := d.advance(ctx, userID, []string{models.StatusSent, models.StatusDelivered}, models.StatusRead, func(q *gorm.DB) *gorm.DB {
		return q.Where("delivery_states.message_id = ?", messageID)
	})
	if err != nil || len(changes) == 0 {
		return nil, err
	}
	return &changes[0], nil
}

// advance selects the matching rows and updates exactly those, in one transaction.
func (d *DeliveryTracker) advance(ctx context.Context, userID uint, from []string, to string, scope func(*gorm.DB) *gorm.DB) ([]StatusChange, error) {
	var changes []StatusChange
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.DeliveryState
		if err := pendingRows(tx, userID, from, scope).Find(&rows).Error; err != nil {
			return errors.Wrap(err, "select delivery states")
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]string, len(rows))
		for i, r := range rows {
			ids[i] = r.MessageID
		}
		// mysql keeps milliseconds; the reload below compares on this value
		stamp := d.now().Truncate(time.Millisecond)
		res := tx.Model(&models.DeliveryState{}).
			Where("user_id = ? AND message_id IN ? AND status IN ?", userID, ids, from).
			Updates(map[string]any{"status": to, "updated_at": stamp})
		if res.Error != nil {
			return errors.Wrapf(res.Error, "update delivery states to %s", to)
		}
		if res.RowsAffected != int64(len(rows)) {
			// 部分行已被并发请求推进, 只上报本次真正更新的行
			var moved []models.DeliveryState
			err := tx.Where("user_id = ? AND message_id IN ? AND status = ? AND updated_at = ?", userID, ids, to, stamp).
				Find(&moved).Error
			if err != nil {
				return errors.Wrap(err, "reload delivery states")
			}
			rows = moved
		}

		changes = make([]StatusChange, 0, len(rows))
		for _, r := range rows {
			changes = append(changes, StatusChange{
				MessageID:      r.MessageID,
				ConversationID: r.ConversationID,
				SenderID:       r.SenderID,
				UserID:         userID,
				Status:         to,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.DeliveryTransitions.WithLabelValues(to).Add(float64(len(changes)))
	return changes, nil
}

// pendingRows selects the rows of userID still in one of the from statuses,
// locked until the surrounding transaction ends.
func pendingRows(tx *gorm.DB, userID uint, from []string, scope func(*gorm.DB) *gorm.DB) *gorm.DB {
	q := tx.Model(&models.DeliveryState{}).
		Select("delivery_states.*").
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("delivery_states.user_id = ? AND delivery_states.status IN ?", userID, from)
	return scope(q)
}

// NotifySenders publishes delivery-status-update to each author, one event per
// (sender, conversation, status). Failures are logged only.
func (d *DeliveryTracker) NotifySenders(changes []StatusChange) {
	type key struct {
		sender       uint
		conversation string
		status       string
	}
	grouped := make(map[key]*DeliveryStatusPayload)
	var order []key
	for _, ch := range changes {
		if ch.SenderID == nil {
			continue
		}
		k := key{*ch.SenderID, ch.ConversationID, ch.Status}
		p, ok := grouped[k]
		if !ok {
			p = &DeliveryStatusPayload{ConversationID: ch.ConversationID, Status: ch.Status, UserID: ch.UserID}
			grouped[k] = p
			order = append(order, k)
		}
		p.MessageIDs = append(p.MessageIDs, ch.MessageID)
	}
	for _, k := range order {
		if err := d.hub.Publish(UserChannel(k.sender), EventDeliveryStatus, grouped[k]); err != nil {
			d.log.Warn("publish delivery status failed", zap.Uint("sender", k.sender), zap.Error(err))
		}
	}
}
