package services

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"social-backend/metrics"
	"social-backend/models"
)

// PresencePayload is the user-presence-changed event body.
type PresencePayload struct {
	UserID   uint      `json:"user_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// session is the per-connection state. active is the conversation the
// connection is looking at, empty when none.
type session struct {
	client *Client
	active string
}

// PresenceTracker tracks connections per user and which conversation each
// connection is viewing.
type PresenceTracker struct {
	db       *gorm.DB
	hub      Broadcaster
	delivery *DeliveryTracker
	mirror   PresenceMirror
	log      *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session          // client id -> session
	byUser   map[uint]map[string]*session // user id -> client id -> session
}

func NewPresenceTracker(db *gorm.DB, hub Broadcaster, delivery *DeliveryTracker, mirror PresenceMirror, log *zap.Logger) *PresenceTracker {
	return &PresenceTracker{
		db:       db,
		hub:      hub,
		delivery: delivery,
		mirror:   mirror,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*session),
		byUser:   make(map[uint]map[string]*session),
	}
}

// Connect registers c, subscribes it to the user channel and every
// conversation channel of the user. The first connection of a user flips them
// online and promotes their SENT receipts to DELIVERED.
func (p *PresenceTracker) Connect(ctx context.Context, c *Client) error {
	convIDs, err := memberConversationIDs(ctx, p.db, c.UserID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	first := len(p.byUser[c.UserID]) == 0
	s := &session{client: c}
	p.sessions[c.ID] = s
	if p.byUser[c.UserID] == nil {
		p.byUser[c.UserID] = make(map[string]*session)
	}
	p.byUser[c.UserID][c.ID] = s
	p.mu.Unlock()
	metrics.OnlineConns.Inc()

	p.hub.Join(c, UserChannel(c.UserID))
	for _, id := range convIDs {
		p.hub.Join(c, ConversationChannel(id))
	}

	if first {
		metrics.OnlineUsers.Inc()
		p.setPresence(ctx, c.UserID, true, convIDs)
	}

	changes, err := p.delivery.MarkDelivered(ctx, c.UserID)
	if err != nil {
		return err
	}
	p.delivery.NotifySenders(changes)
	return nil
}

// Disconnect drops c. The user goes offline only when their last connection leaves.
func (p *PresenceTracker) Disconnect(ctx context.Context, c *Client) {
	p.mu.Lock()
	if _, ok := p.sessions[c.ID]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.sessions, c.ID)
	delete(p.byUser[c.UserID], c.ID)
	last := len(p.byUser[c.UserID]) == 0
	if last {
		delete(p.byUser, c.UserID)
	}
	p.mu.Unlock()
	metrics.OnlineConns.Dec()

	channels := p.hub.LeaveAll(c)
	if !last {
		return
	}
	metrics.OnlineUsers.Dec()

	convIDs := make([]string, 0, len(channels))
	for _, ch := range channels {
		if id, ok := conversationFromChannel(ch); ok {
			convIDs = append(convIDs, id)
		}
	}
	p.setPresence(ctx, c.UserID, false, convIDs)
}

// setPresence persists the flag, mirrors it and tells the conversations.
func (p *PresenceTracker) setPresence(ctx context.Context, userID uint, online bool, convIDs []string) {
	now := p.now()
	err := p.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]any{"is_online": online, "last_seen": now}).Error
	if err != nil {
		p.log.Error("persist presence failed", zap.Uint("user_id", userID), zap.Bool("online", online), zap.Error(err))
	}
	if p.mirror != nil {
		if err := p.mirror.SetPresence(ctx, userID, online, now); err != nil {
			p.log.Warn("mirror presence failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}

	payload := PresencePayload{UserID: userID, Online: online, LastSeen: now}
	for _, id := range convIDs {
		if err := p.hub.Publish(ConversationChannel(id), EventPresenceChanged, payload); err != nil {
			p.log.Warn("publish presence failed", zap.String("conversation_id", id), zap.Error(err))
		}
	}
}

// EnterConversation makes c the viewer of conversationID. A connection views
// at most one conversation; the previous one is left. Everything unread in
// the conversation becomes READ.
func (p *PresenceTracker) EnterConversation(ctx context.Context, c *Client, conversationID string) error {
	if _, err := requireMember(ctx, p.db, conversationID, c.UserID); err != nil {
		return err
	}

	p.mu.Lock()
	s, ok := p.sessions[c.ID]
	if !ok {
		p.mu.Unlock()
		return errors.Wrap(ErrInvalidArgument, "connection not registered")
	}
	prev := s.active
	s.active = conversationID
	p.mu.Unlock()

	if prev != "" && prev != conversationID {
		p.hub.Leave(c, ActiveConversationChannel(prev))
	}
	p.hub.Join(c, ConversationChannel(conversationID))
	p.hub.Join(c, ActiveConversationChannel(conversationID))

	return p.MarkSeen(ctx, c.UserID, conversationID)
}

// MarkSeen marks a conversation read for userID, tells the authors and
// sends the reader a negative unread delta.
func (p *PresenceTracker) MarkSeen(ctx context.Context, userID uint, conversationID string) error {
	changes, err := p.delivery.MarkConversationRead(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}
	p.delivery.NotifySenders(changes)
	delta := UnreadDeltaPayload{ConversationID: conversationID, Delta: -len(changes)}
	if err := p.hub.Publish(UserChannel(userID), EventUnreadDelta, delta); err != nil {
		p.log.Warn("publish unread delta failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	return nil
}

// LeaveConversation stops viewing; membership and delivery are untouched.
func (p *PresenceTracker) LeaveConversation(c *Client, conversationID string) {
	p.mu.Lock()
	if s, ok := p.sessions[c.ID]; ok && s.active == conversationID {
		s.active = ""
	}
	p.mu.Unlock()
	p.hub.Leave(c, ActiveConversationChannel(conversationID))
}

// JoinConversationChannel subscribes every live connection of userID to a
// conversation they just became a member of.
func (p *PresenceTracker) JoinConversationChannel(userID uint, conversationID string) {
	for _, c := range p.clientsOf(userID) {
		p.hub.Join(c, ConversationChannel(conversationID))
	}
}

// LeaveConversationChannel is the reverse, used when membership ends.
func (p *PresenceTracker) LeaveConversationChannel(userID uint, conversationID string) {
	p.mu.Lock()
	for _, s := range p.byUser[userID] {
		if s.active == conversationID {
			s.active = ""
		}
	}
	p.mu.Unlock()
	for _, c := range p.clientsOf(userID) {
		p.hub.Leave(c, ActiveConversationChannel(conversationID))
		p.hub.Leave(c, ConversationChannel(conversationID))
	}
}

func (p *PresenceTracker) clientsOf(userID uint) []*Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Client, 0, len(p.byUser[userID]))
	for _, s := range p.byUser[userID] {
		out = append(out, s.client)
	}
	return out
}

// IsOnline reports whether userID has at least one live connection.
func (p *PresenceTracker) IsOnline(userID uint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byUser[userID]) > 0
}

// ActiveConversation returns what c is viewing.
func (p *PresenceTracker) ActiveConversation(c *Client) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[c.ID]; ok {
		return s.active
	}
	return ""
}

// Snapshot copies the presence of userIDs with respect to conversationID.
func (p *PresenceTracker) Snapshot(userIDs []uint, conversationID string) PresenceSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := make(PresenceSnapshot, len(userIDs))
	for _, uid := range userIDs {
		var mp MemberPresence
		for _, s := range p.byUser[uid] {
			mp.Online = true
			if s.active == conversationID {
				mp.Viewing = true
			}
		}
		snap[uid] = mp
	}
	return snap
}
