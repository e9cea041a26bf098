package services

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"social-backend/metrics"
	"social-backend/models"
)

type EventKind string

const (
	KindFollowCreated   EventKind = "follow.created"
	KindFollowRequested EventKind = "follow.requested"
	KindFollowAccepted  EventKind = "follow.accepted"
	KindFollowRejected  EventKind = "follow.rejected"
	KindPostReacted     EventKind = "post.reacted"
	KindCommentCreated  EventKind = "comment.created"
	KindReplyCreated    EventKind = "reply.created"
	KindPostReposted    EventKind = "post.reposted"
	KindMessageSent     EventKind = "message.sent"
)

// Event is a typed domain event produced by a write path.
type Event interface {
	Kind() EventKind
}

type FollowCreated struct{ FollowerID, FolloweeID uint }
type FollowRequested struct{ FollowerID, FolloweeID uint }
type FollowAccepted struct{ FollowerID, FolloweeID uint }
type FollowRejected struct{ FollowerID, FolloweeID uint }

type PostReacted struct {
	PostID   uint
	AuthorID uint
	ActorID  uint
	Reaction string
}

type CommentCreated struct {
	PostID    uint
	CommentID uint
	AuthorID  uint // post author
	ActorID   uint
}

type ReplyCreated struct {
	PostID         uint
	CommentID      uint
	ParentID       uint
	ParentAuthorID uint
	ActorID        uint
}

type PostReposted struct {
	PostID   uint
	RepostID uint
	AuthorID uint
	ActorID  uint
}

type MessageSent struct {
	Message models.Message
	Plans   []RecipientPlan
}

func (FollowCreated) Kind() EventKind   { return KindFollowCreated }
func (FollowRequested) Kind() EventKind { return KindFollowRequested }
func (FollowAccepted) Kind() EventKind  { return KindFollowAccepted }
func (FollowRejected) Kind() EventKind  { return KindFollowRejected }
func (PostReacted) Kind() EventKind     { return KindPostReacted }
func (CommentCreated) Kind() EventKind  { return KindCommentCreated }
func (ReplyCreated) Kind() EventKind    { return KindReplyCreated }
func (PostReposted) Kind() EventKind    { return KindPostReposted }
func (MessageSent) Kind() EventKind     { return KindMessageSent }

type HandlerFunc func(ctx context.Context, ev Event) error

// Dispatcher routes each event kind to exactly one handler. Dispatch returns
// immediately; the handler runs on its own goroutine and its error is logged.
type Dispatcher struct {
	log     *zap.Logger
	timeout time.Duration

	mu       sync.RWMutex
	handlers map[EventKind]HandlerFunc
	wg       sync.WaitGroup
}

func NewDispatcher(log *zap.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Dispatcher{log: log, timeout: timeout, handlers: make(map[EventKind]HandlerFunc)}
}

func (d *Dispatcher) Handle(kind EventKind, h HandlerFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handlers[kind]; ok {
		return errors.Errorf("handler for %s already registered", kind)
	}
	d.handlers[kind] = h
	return nil
}

func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.RLock()
	h, ok := d.handlers[ev.Kind()]
	d.mu.RUnlock()
	if !ok {
		d.log.Debug("no handler for event", zap.String("kind", string(ev.Kind())))
		return
	}
	metrics.EventsDispatched.WithLabelValues(string(ev.Kind())).Inc()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				metrics.EventHandlerErrors.WithLabelValues(string(ev.Kind())).Inc()
				d.log.Error("event handler panic", zap.String("kind", string(ev.Kind())), zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := h(ctx, ev); err != nil {
			metrics.EventHandlerErrors.WithLabelValues(string(ev.Kind())).Inc()
			d.log.Error("event handler failed", zap.String("kind", string(ev.Kind())), zap.Error(err))
		}
	}()
}

// Wait blocks until every dispatched handler returned.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func uintID(id uint) string { return strconv.FormatUint(uint64(id), 10) }

// RegisterNotificationHandlers wires every event kind to the aggregator.
func RegisterNotificationHandlers(d *Dispatcher, agg *Aggregator) error {
	notify := func(ctx context.Context, ev NotificationEvent) error {
		agg.Notify(ctx, ev)
		return nil
	}
	follow := func(typ string, recipient, actor uint) NotificationEvent {
		return NotificationEvent{
			RecipientID: recipient,
			ActorID:     actor,
			Type:        typ,
			TargetType:  models.TargetUser,
			TargetID:    uintID(actor),
		}
	}

	handlers := map[EventKind]HandlerFunc{
		KindFollowCreated: func(ctx context.Context, ev Event) error {
			e := ev.(FollowCreated)
			return notify(ctx, follow(models.NotifyFollow, e.FolloweeID, e.FollowerID))
		},
		KindFollowRequested: func(ctx context.Context, ev Event) error {
			e := ev.(FollowRequested)
			return notify(ctx, follow(models.NotifyFollowRequest, e.FolloweeID, e.FollowerID))
		},
		KindFollowAccepted: func(ctx context.Context, ev Event) error {
			e := ev.(FollowAccepted)
			return notify(ctx, follow(models.NotifyFollowAccept, e.FollowerID, e.FolloweeID))
		},
		KindFollowRejected: func(ctx context.Context, ev Event) error {
			e := ev.(FollowRejected)
			return notify(ctx, follow(models.NotifyFollowReject, e.FollowerID, e.FolloweeID))
		},
		KindPostReacted: func(ctx context.Context, ev Event) error {
			e := ev.(PostReacted)
			return notify(ctx, NotificationEvent{
				RecipientID: e.AuthorID,
				ActorID:     e.ActorID,
				Type:        models.NotifyReaction,
				TargetType:  models.TargetPost,
				TargetID:    uintID(e.PostID),
				Metadata:    map[string]any{"reaction": e.Reaction},
			})
		},
		KindCommentCreated: func(ctx context.Context, ev Event) error {
			e := ev.(CommentCreated)
			return notify(ctx, NotificationEvent{
				RecipientID: e.AuthorID,
				ActorID:     e.ActorID,
				Type:        models.NotifyComment,
				TargetType:  models.TargetPost,
				TargetID:    uintID(e.PostID),
				Metadata:    map[string]any{"comment_id": e.CommentID},
			})
		},
		KindReplyCreated: func(ctx context.Context, ev Event) error {
			e := ev.(ReplyCreated)
			return notify(ctx, NotificationEvent{
				RecipientID: e.ParentAuthorID,
				ActorID:     e.ActorID,
				Type:        models.NotifyReply,
				TargetType:  models.TargetComment,
				TargetID:    uintID(e.ParentID),
				Metadata:    map[string]any{"post_id": e.PostID, "comment_id": e.CommentID},
			})
		},
		KindPostReposted: func(ctx context.Context, ev Event) error {
			e := ev.(PostReposted)
			return notify(ctx, NotificationEvent{
				RecipientID: e.AuthorID,
				ActorID:     e.ActorID,
				Type:        models.NotifyRepost,
				TargetType:  models.TargetPost,
				TargetID:    uintID(e.PostID),
				Metadata:    map[string]any{"repost_id": e.RepostID},
			})
		},
		KindMessageSent: func(ctx context.Context, ev Event) error {
			e := ev.(MessageSent)
			if e.Message.SenderID == nil {
				return nil
			}
			meta := map[string]any{
				"message_id": e.Message.MessageID,
				"preview":    preview(e.Message.Content),
			}
			evs := make([]NotificationEvent, 0, len(e.Plans))
			for _, p := range e.Plans {
				// 正在查看会话的成员不再推送通知
				if p.ActiveRead {
					continue
				}
				evs = append(evs, NotificationEvent{
					RecipientID: p.UserID,
					Type:        models.NotifyMessage,
					TargetType:  models.TargetConversation,
					TargetID:    e.Message.ConversationID,
					Metadata:    meta,
				})
			}
			agg.NotifyAll(ctx, *e.Message.SenderID, evs)
			return nil
		},
	}
	for kind, h := range handlers {
		if err := d.Handle(kind, h); err != nil {
			return err
		}
	}
	return nil
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= 80 {
		return s
	}
	return string(r[:80]) + "…"
}
