package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"social-backend/models"
)

// MemberPresence is what the router needs to know about one member.
type MemberPresence struct {
	Online  bool `json:"online"`
	Viewing bool `json:"viewing"`
}

// PresenceSnapshot is an immutable view of members' presence for one conversation.
type PresenceSnapshot map[uint]MemberPresence

// RecipientPlan is the routing decision for one non-sender member.
type RecipientPlan struct {
	UserID     uint
	Online     bool
	ActiveRead bool // viewing the conversation: upgrade to READ right away
}

// InitialStatus is the delivery status written at send time.
func (p RecipientPlan) InitialStatus() string {
	if p.Online || p.ActiveRead {
		return models.StatusDelivered
	}
	return models.StatusSent
}

// PlanFanout decides, for every member except the sender, how the message is
// delivered. It depends only on its arguments.
func PlanFanout(senderID *uint, members []uint, snap PresenceSnapshot) []RecipientPlan {
	plans := make([]RecipientPlan, 0, len(members))
	seen := make(map[uint]struct{}, len(members))
	for _, uid := range members {
		if senderID != nil && *senderID == uid {
			continue
		}
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		p := snap[uid]
		plans = append(plans, RecipientPlan{
			UserID:     uid,
			Online:     p.Online,
			ActiveRead: p.Viewing,
		})
	}
	return plans
}

// UnreadDeltaPayload is the unread-count-delta event body.
type UnreadDeltaPayload struct {
	ConversationID string `json:"conversation_id"`
	Delta          int    `json:"delta"`
}

// Router executes fan-out plans for freshly persisted messages.
type Router struct {
	hub      Broadcaster
	delivery *DeliveryTracker
	log      *zap.Logger
	timeout  time.Duration

	wg sync.WaitGroup
}

func NewRouter(hub Broadcaster, delivery *DeliveryTracker, log *zap.Logger, timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Router{hub: hub, delivery: delivery, log: log, timeout: timeout}
}

// Route broadcasts msg once on its conversation channel, then handles each
// recipient per plan. READ upgrades run in the background.
func (r *Router) Route(msg *models.Message, plans []RecipientPlan) {
	if err := r.hub.Publish(ConversationChannel(msg.ConversationID), EventNewMessage, msg); err != nil {
		r.log.Warn("publish new message failed", zap.String("message_id", msg.MessageID), zap.Error(err))
	}

	for _, p := range plans {
		if p.ActiveRead {
			r.wg.Add(1)
			go r.markRead(msg.MessageID, p.UserID)
			continue
		}
		delta := UnreadDeltaPayload{ConversationID: msg.ConversationID, Delta: 1}
		if err := r.hub.Publish(UserChannel(p.UserID), EventUnreadDelta, delta); err != nil {
			r.log.Warn("publish unread delta failed", zap.Uint("user_id", p.UserID), zap.Error(err))
		}
	}
}

func (r *Router) markRead(messageID string, userID uint) {
	defer r.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	change, err := r.delivery.MarkMessageRead(ctx, userID, messageID)
	if err != nil {
		r.log.Error("mark message read failed",
			zap.String("message_id", messageID), zap.Uint("user_id", userID), zap.Error(err))
		return
	}
	if change != nil {
		r.delivery.NotifySenders([]StatusChange{*change})
	}
}

// Wait blocks until background READ upgrades finish.
func (r *Router) Wait() { r.wg.Wait() }
