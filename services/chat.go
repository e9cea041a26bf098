package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"social-backend/models"
)

// ChatService is the conversation and message write path. It composes the
// delivery tracker, presence tracker, router and dispatcher.
type ChatService struct {
	db       *gorm.DB
	hub      Broadcaster
	presence *PresenceTracker
	delivery *DeliveryTracker
	router   *Router
	events   *Dispatcher
	typing   *typingLimiter
	log      *zap.Logger
	now      func() time.Time
}

func NewChatService(db *gorm.DB, hub Broadcaster, presence *PresenceTracker, delivery *DeliveryTracker,
	router *Router, events *Dispatcher, log *zap.Logger, typingRate float64, typingBurst int) *ChatService {
	return &ChatService{
		db:       db,
		hub:      hub,
		presence: presence,
		delivery: delivery,
		router:   router,
		events:   events,
		typing:   newTypingLimiter(typingRate, typingBurst),
		log:      log,
		now:      time.Now,
	}
}

// ConversationUpdatePayload is the conversation-updated event body.
type ConversationUpdatePayload struct {
	ConversationID string               `json:"conversation_id"`
	Action         string               `json:"action"` // created | members_added | member_left
	UserIDs        []uint               `json:"user_ids,omitempty"`
	Conversation   *models.Conversation `json:"conversation,omitempty"`
}

// ConversationSummary is a conversation as listed for one user.
type ConversationSummary struct {
	models.Conversation
	Unread int64 `json:"unread"`
}

func directKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return uintID(a) + "_" + uintID(b)
}

func (s *ChatService) publish(channel, event string, payload any) {
	if err := s.hub.Publish(channel, event, payload); err != nil {
		s.log.Warn("publish failed", zap.String("channel", channel), zap.String("event", event), zap.Error(err))
	}
}

func (s *ChatService) usersExist(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id IN ?", ids).Count(&n).Error; err != nil {
		return errors.Wrap(err, "count users")
	}
	if int(n) != len(ids) {
		return errors.Wrap(ErrNotFound, "user")
	}
	return nil
}

func uniqueIDs(ids []uint, skip uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || id == skip {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetOrCreateDirect returns the direct conversation between userID and
// peerID, creating it on first use. created reports a new conversation.
func (s *ChatService) GetOrCreateDirect(ctx context.Context, userID, peerID uint) (conv *models.Conversation, created bool, err error) {
	if userID == peerID {
		return nil, false, errors.Wrap(ErrInvalidArgument, "cannot start a conversation with yourself")
	}
	if err := s.usersExist(ctx, []uint{peerID}); err != nil {
		return nil, false, err
	}

	key := directKey(userID, peerID)
	conv, err = s.findDirect(ctx, key)
	if err == nil {
		if err := s.rejoinDirect(ctx, conv, userID); err != nil {
			return nil, false, err
		}
		return conv, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, errors.Wrap(err, "find direct conversation")
	}

	conv = &models.Conversation{
		ConversationID: uuid.New().String(),
		Type:           models.ConversationDirect,
		DirectKey:      &key,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		parts := []models.ConversationParticipant{
			{ConversationID: conv.ConversationID, UserID: userID, Role: models.RoleMember},
			{ConversationID: conv.ConversationID, UserID: peerID, Role: models.RoleMember},
		}
		return tx.Create(&parts).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// 另一个请求先创建了同一个私聊
		conv, err = s.findDirect(ctx, key)
		return conv, false, errors.Wrap(err, "reload direct conversation")
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "create direct conversation")
	}

	s.announceCreated(conv, []uint{userID, peerID})
	return conv, true, nil
}

// rejoinDirect re-admits userID to a direct conversation they left earlier.
func (s *ChatService) rejoinDirect(ctx context.Context, conv *models.Conversation, userID uint) error {
	res := s.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ? AND left_at IS NOT NULL", conv.ConversationID, userID).
		Updates(map[string]any{"left_at": nil, "joined_at": s.now()})
	if res.Error != nil {
		return errors.Wrap(res.Error, "rejoin direct conversation")
	}
	if res.RowsAffected == 0 {
		return nil
	}
	s.presence.JoinConversationChannel(userID, conv.ConversationID)
	s.publish(ConversationChannel(conv.ConversationID), EventConversationUpdate, ConversationUpdatePayload{
		ConversationID: conv.ConversationID,
		Action:         "members_added",
		UserIDs:        []uint{userID},
	})
	return nil
}

func (s *ChatService) findDirect(ctx context.Context, key string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).Where("direct_key = ?", key).First(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *ChatService) announceCreated(conv *models.Conversation, members []uint) {
	payload := ConversationUpdatePayload{
		ConversationID: conv.ConversationID,
		Action:         "created",
		UserIDs:        members,
		Conversation:   conv,
	}
	for _, uid := range members {
		s.presence.JoinConversationChannel(uid, conv.ConversationID)
		s.publish(UserChannel(uid), EventConversationUpdate, payload)
	}
}

// CreateGroup creates a group owned by ownerID with the given members.
func (s *ChatService) CreateGroup(ctx context.Context, ownerID uint, name string, memberIDs []uint) (*models.Conversation, error) {
	if name == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "group name is required")
	}
	members := uniqueIDs(memberIDs, ownerID)
	if err := s.usersExist(ctx, members); err != nil {
		return nil, err
	}

	conv := &models.Conversation{
		ConversationID: uuid.New().String(),
		Type:           models.ConversationGroup,
		Name:           name,
		OwnerID:        &ownerID,
	}
	parts := make([]models.ConversationParticipant, 0, len(members)+1)
	parts = append(parts, models.ConversationParticipant{ConversationID: conv.ConversationID, UserID: ownerID, Role: models.RoleAdmin})
	for _, uid := range members {
		parts = append(parts, models.ConversationParticipant{ConversationID: conv.ConversationID, UserID: uid, Role: models.RoleMember})
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		return tx.Create(&parts).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "create group")
	}

	s.announceCreated(conv, append([]uint{ownerID}, members...))
	return conv, nil
}

// AddMembers adds users to a group; former members are re-admitted.
func (s *ChatService) AddMembers(ctx context.Context, actorID uint, conversationID string, userIDs []uint) ([]uint, error) {
	if _, err := requireMember(ctx, s.db, conversationID, actorID); err != nil {
		return nil, err
	}
	var conv models.Conversation
	if err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&conv).Error; err != nil {
		return nil, errors.Wrap(err, "load conversation")
	}
	if conv.Type != models.ConversationGroup {
		return nil, errors.Wrap(ErrInvalidArgument, "members can only be added to groups")
	}
	ids := uniqueIDs(userIDs, 0)
	if err := s.usersExist(ctx, ids); err != nil {
		return nil, err
	}

	var added []uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, uid := range ids {
			var p models.ConversationParticipant
			err := tx.Where("conversation_id = ? AND user_id = ?", conversationID, uid).First(&p).Error
			switch {
			case err == nil && p.Active():
				continue
			case err == nil:
				if err := tx.Model(&p).Updates(map[string]any{"left_at": nil, "joined_at": s.now()}).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				p = models.ConversationParticipant{ConversationID: conversationID, UserID: uid, Role: models.RoleMember}
				if err := tx.Create(&p).Error; err != nil {
					return err
				}
			default:
				return err
			}
			added = append(added, uid)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "add members")
	}
	if len(added) == 0 {
		return nil, nil
	}

	for _, uid := range added {
		s.presence.JoinConversationChannel(uid, conversationID)
	}
	s.publish(ConversationChannel(conversationID), EventConversationUpdate, ConversationUpdatePayload{
		ConversationID: conversationID,
		Action:         "members_added",
		UserIDs:        added,
	})
	return added, nil
}

// Leave ends userID's membership. Existing delivery rows stay as they are.
func (s *ChatService) Leave(ctx context.Context, userID uint, conversationID string) error {
	p, err := requireMember(ctx, s.db, conversationID, userID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(p).Update("left_at", s.now()).Error; err != nil {
		return errors.Wrap(err, "leave conversation")
	}
	s.presence.LeaveConversationChannel(userID, conversationID)
	s.publish(ConversationChannel(conversationID), EventConversationUpdate, ConversationUpdatePayload{
		ConversationID: conversationID,
		Action:         "member_left",
		UserIDs:        []uint{userID},
	})
	return nil
}

// ListConversations returns userID's conversations, most recent first, with
// the unread count from delivery state.
func (s *ChatService) ListConversations(ctx context.Context, userID uint) ([]ConversationSummary, error) {
	ids, err := memberConversationIDs(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []ConversationSummary{}, nil
	}

	var convs []models.Conversation
	err = s.db.WithContext(ctx).
		Preload("Participants", "left_at IS NULL").
		Preload("Participants.User").
		Where("conversation_id IN ?", ids).
		Order("last_message_at DESC").Order("created_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}

	var rows []struct {
		ConversationID string
		Unread         int64
	}
	err = s.db.WithContext(ctx).Model(&models.DeliveryState{}).
		Select("delivery_states.conversation_id, COUNT(*) AS unread").
		Joins("JOIN messages ON messages.message_id = delivery_states.message_id").
		Where("delivery_states.user_id = ? AND delivery_states.status IN ?",
			userID, []string{models.StatusSent, models.StatusDelivered}).
		Where("messages.is_deleted = ?", false).
		Group("delivery_states.conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "count unread")
	}
	unread := make(map[string]int64, len(rows))
	for _, r := range rows {
		unread[r.ConversationID] = r.Unread
	}

	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, ConversationSummary{Conversation: c, Unread: unread[c.ConversationID]})
	}
	return out, nil
}
