package services

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"social-backend/metrics"
	"social-backend/models"
)

type notificationKind int

const (
	kindEmitOnly notificationKind = iota + 1
	kindDedup
	kindGrouped
)

func kindOf(typ string) (notificationKind, bool) {
	switch typ {
	case models.NotifyMessage:
		return kindEmitOnly, true
	case models.NotifyFollow, models.NotifyFollowRequest, models.NotifyFollowAccept, models.NotifyFollowReject:
		return kindDedup, true
	case models.NotifyReaction, models.NotifyComment, models.NotifyReply, models.NotifyRepost:
		return kindGrouped, true
	}
	return 0, false
}

// NotificationEvent is one actor event addressed to one recipient.
type NotificationEvent struct {
	RecipientID uint
	ActorID     uint
	Type        string
	TargetType  string
	TargetID    string
	Metadata    map[string]any
}

type ActorSummary struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type NotificationTarget struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// NotificationPayload is the body of the notification event.
type NotificationPayload struct {
	ID        uint               `json:"id,omitempty"`
	Type      string             `json:"type"`
	Actor     ActorSummary       `json:"actor"`
	Target    NotificationTarget `json:"target"`
	Message   string             `json:"message"`
	Count     int                `json:"count"`
	ActorIDs  []uint             `json:"actor_ids"`
	IsRead    bool               `json:"is_read"`
	Metadata  map[string]any     `json:"metadata,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// Aggregator turns actor events into notifications. Message arrivals are
// pushed only, follow kinds keep one row per target, and reaction, comment,
// reply and repost events roll up within a window.
type Aggregator struct {
	db      *gorm.DB
	hub     Broadcaster
	log     *zap.Logger
	window  time.Duration
	timeout time.Duration
	now     func() time.Time
}

func NewAggregator(db *gorm.DB, hub Broadcaster, log *zap.Logger, window, timeout time.Duration) *Aggregator {
	if window <= 0 {
		window = 5 * time.Minute
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Aggregator{db: db, hub: hub, log: log, window: window, timeout: timeout, now: time.Now}
}

// Notify never fails the caller: errors are logged and counted.
func (a *Aggregator) Notify(ctx context.Context, ev NotificationEvent) {
	a.notify(ctx, ev, nil)
}

// NotifyAll delivers events of one actor to many recipients. The actor is
// loaded once and every recipient gets its own timeout, detached from ctx's
// deadline, so a slow recipient does not starve the rest.
func (a *Aggregator) NotifyAll(ctx context.Context, actorID uint, evs []NotificationEvent) {
	if len(evs) == 0 {
		return
	}
	base := context.WithoutCancel(ctx)
	actorCtx, cancel := context.WithTimeout(base, a.timeout)
	actor := a.actor(actorCtx, actorID)
	cancel()

	for _, ev := range evs {
		ev.ActorID = actorID
		a.notify(base, ev, &actor)
	}
}

func (a *Aggregator) notify(ctx context.Context, ev NotificationEvent, known *ActorSummary) {
	if ev.RecipientID == 0 || ev.RecipientID == ev.ActorID {
		return
	}
	kind, ok := kindOf(ev.Type)
	if !ok {
		a.log.Warn("unknown notification type", zap.String("type", ev.Type))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var actor ActorSummary
	if known != nil {
		actor = *known
	} else {
		actor = a.actor(ctx, ev.ActorID)
	}

	var (
		n       *models.Notification
		changed bool
		err     error
	)
	switch kind {
	case kindEmitOnly:
		n, changed = a.transient(ev, actor), true
	case kindDedup:
		n, changed, err = a.upsertDedup(ctx, ev, actor)
	case kindGrouped:
		n, changed, err = a.upsertGrouped(ctx, ev, actor)
	}
	if err != nil {
		metrics.NotificationFailures.WithLabelValues("persist").Inc()
		a.log.Error("persist notification failed",
			zap.String("type", ev.Type),
			zap.Uint("recipient", ev.RecipientID),
			zap.Uint("actor", ev.ActorID),
			zap.Error(err),
		)
		return
	}
	if !changed {
		return
	}

	metrics.NotificationsEmitted.WithLabelValues(ev.Type).Inc()
	payload := NotificationPayload{
		ID:        n.ID,
		Type:      n.Type,
		Actor:     actor,
		Target:    NotificationTarget{Type: n.TargetType, ID: n.TargetID},
		Message:   n.Message,
		Count:     n.Count,
		ActorIDs:  n.ActorIDs,
		IsRead:    n.IsRead,
		Metadata:  ev.Metadata,
		CreatedAt: n.CreatedAt,
	}
	if err := a.hub.Publish(UserChannel(ev.RecipientID), EventNotification, payload); err != nil {
		metrics.NotificationFailures.WithLabelValues("push").Inc()
		a.log.Warn("push notification failed", zap.Uint("recipient", ev.RecipientID), zap.Error(err))
	}
}

func (a *Aggregator) actor(ctx context.Context, id uint) ActorSummary {
	var u models.User
	if err := a.db.WithContext(ctx).Select("id", "username", "avatar_url").First(&u, id).Error; err != nil {
		return ActorSummary{ID: id, Username: "Someone"}
	}
	return ActorSummary{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
}

// transient builds the message-arrival notification; it has no row.
func (a *Aggregator) transient(ev NotificationEvent, actor ActorSummary) *models.Notification {
	now := a.now()
	return &models.Notification{
		UserID:         ev.RecipientID,
		Type:           ev.Type,
		TargetType:     ev.TargetType,
		TargetID:       ev.TargetID,
		ActorID:        ev.ActorID,
		ActorIDs:       []uint{ev.ActorID},
		Count:          1,
		Message:        RenderNotification(ev.Type, ev.TargetType, actor.Username, 1),
		LastActivityAt: now,
		CreatedAt:      now,
	}
}

func (a *Aggregator) newRow(ev NotificationEvent, actor ActorSummary, window int64) *models.Notification {
	return &models.Notification{
		UserID:         ev.RecipientID,
		Type:           ev.Type,
		TargetType:     ev.TargetType,
		TargetID:       ev.TargetID,
		WindowIndex:    window,
		ActorID:        ev.ActorID,
		ActorIDs:       []uint{ev.ActorID},
		Count:          1,
		Message:        RenderNotification(ev.Type, ev.TargetType, actor.Username, 1),
		LastActivityAt: a.now(),
	}
}

func (a *Aggregator) findByKey(ctx context.Context, ev NotificationEvent, window int64) (*models.Notification, error) {
	var n models.Notification
	err := a.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND target_type = ? AND target_id = ? AND window_index = ?",
			ev.RecipientID, ev.Type, ev.TargetType, ev.TargetID, window).
		First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// upsertDedup keeps a single row per (recipient, type, target); a repeat
// overwrites actor and timestamp and makes it unread again.
func (a *Aggregator) upsertDedup(ctx context.Context, ev NotificationEvent, actor ActorSummary) (*models.Notification, bool, error) {
	existing, err := a.findByKey(ctx, ev, 0)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, errors.Wrap(err, "load notification")
	}
	if existing == nil {
		n := a.newRow(ev, actor, 0)
		err = a.db.WithContext(ctx).Create(n).Error
		if err == nil {
			return n, true, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, errors.Wrap(err, "create notification")
		}
		// 并发创建冲突: 重新读取后更新
		if existing, err = a.findByKey(ctx, ev, 0); err != nil {
			return nil, false, errors.Wrap(err, "reload notification")
		}
	}

	existing.ActorID = ev.ActorID
	existing.ActorIDs = []uint{ev.ActorID}
	existing.Count = 1
	existing.IsRead = false
	existing.LastActivityAt = a.now()
	existing.Message = RenderNotification(ev.Type, ev.TargetType, actor.Username, 1)
	if err := a.save(ctx, existing); err != nil {
		return nil, false, err
	}
	return existing, true, nil
}

// upsertGrouped extends the latest group for the target while it is fresh,
// otherwise opens a group in the current window.
func (a *Aggregator) upsertGrouped(ctx context.Context, ev NotificationEvent, actor ActorSummary) (*models.Notification, bool, error) {
	now := a.now()

	var latest models.Notification
	err := a.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND target_type = ? AND target_id = ?",
			ev.RecipientID, ev.Type, ev.TargetType, ev.TargetID).
		Order("last_activity_at DESC").
		First(&latest).Error
	switch {
	case err == nil && now.Sub(latest.LastActivityAt) <= a.window:
		return a.extend(ctx, &latest, ev, actor)
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, errors.Wrap(err, "load notification group")
	}

	window := now.UnixNano() / int64(a.window)
	n := a.newRow(ev, actor, window)
	err = a.db.WithContext(ctx).Create(n).Error
	if err == nil {
		return n, true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, errors.Wrap(err, "create notification group")
	}
	// 同一窗口已有分组: 合并到该分组
	existing, err := a.findByKey(ctx, ev, window)
	if err != nil {
		return nil, false, errors.Wrap(err, "reload notification group")
	}
	return a.extend(ctx, existing, ev, actor)
}

// extend adds actor to a live group. An actor already counted is a no-op.
func (a *Aggregator) extend(ctx context.Context, n *models.Notification, ev NotificationEvent, actor ActorSummary) (*models.Notification, bool, error) {
	if n.HasActor(ev.ActorID) {
		return n, false, nil
	}
	n.ActorIDs = append(n.ActorIDs, ev.ActorID)
	n.Count++
	n.ActorID = ev.ActorID
	n.IsRead = false
	n.LastActivityAt = a.now()
	n.Message = RenderNotification(ev.Type, ev.TargetType, actor.Username, n.Count)
	if err := a.save(ctx, n); err != nil {
		return nil, false, err
	}
	return n, true, nil
}

func (a *Aggregator) save(ctx context.Context, n *models.Notification) error {
	err := a.db.WithContext(ctx).Model(n).
		Select("actor_id", "actor_ids", "count", "message", "is_read", "last_activity_at", "updated_at").
		Updates(n).Error
	return errors.Wrap(err, "update notification")
}

// List returns the newest notifications of userID.
func (a *Aggregator) List(ctx context.Context, userID uint, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var list []models.Notification
	err := a.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_activity_at DESC").
		Limit(limit).Offset(offset).
		Find(&list).Error
	return list, errors.Wrap(err, "list notifications")
}

func (a *Aggregator) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := a.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	return n, errors.Wrap(err, "count unread notifications")
}

// MarkRead marks ids read, or every notification of userID when ids is empty.
func (a *Aggregator) MarkRead(ctx context.Context, userID uint, ids []uint) (int64, error) {
	q := a.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	res := q.Update("is_read", true)
	return res.RowsAffected, errors.Wrap(res.Error, "mark notifications read")
}

func notificationPhrase(typ, targetType string) string {
	switch typ {
	case models.NotifyReaction:
		if targetType == models.TargetComment {
			return "liked your comment"
		}
		return "liked your post"
	case models.NotifyComment:
		return "commented on your post"
	case models.NotifyReply:
		return "replied to your comment"
	case models.NotifyRepost:
		return "reposted your post"
	case models.NotifyFollow:
		return "started following you"
	case models.NotifyFollowRequest:
		return "requested to follow you"
	case models.NotifyFollowAccept:
		return "accepted your follow request"
	case models.NotifyFollowReject:
		return "declined your follow request"
	case models.NotifyMessage:
		return "sent you a message"
	}
	return "interacted with you"
}

// RenderNotification names the latest actor and folds the rest into a count.
func RenderNotification(typ, targetType, actor string, count int) string {
	phrase := notificationPhrase(typ, targetType)
	switch {
	case count <= 1:
		return fmt.Sprintf("%s %s.", actor, phrase)
	case count == 2:
		return fmt.Sprintf("%s and 1 other %s.", actor, phrase)
	default:
		return fmt.Sprintf("%s and %d others %s.", actor, count-1, phrase)
	}
}
