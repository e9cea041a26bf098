package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"social-backend/models"
)

func reactionEvent(recipient, actor uint) NotificationEvent {
	return NotificationEvent{
		RecipientID: recipient,
		ActorID:     actor,
		Type:        models.NotifyReaction,
		TargetType:  models.TargetPost,
		TargetID:    "7",
	}
}

func notificationsOf(t *testing.T, env *testEnv, userID uint) []models.Notification {
	t.Helper()
	var list []models.Notification
	require.NoError(t, env.db.Where("user_id = ?", userID).Order("id").Find(&list).Error)
	return list
}

func TestGroupedNotificationCountsDistinctActors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agg := env.core.Notifications
	author := env.user("author")
	a, b, c := env.user("ann"), env.user("ben"), env.user("cat")
	ca := env.connect(author.ID)
	drain(t, ca)

	agg.Notify(ctx, reactionEvent(author.ID, a.ID))
	env.clock.Advance(time.Minute)
	agg.Notify(ctx, reactionEvent(author.ID, b.ID))
	agg.Notify(ctx, reactionEvent(author.ID, a.ID))
	env.clock.Advance(time.Minute)
	agg.Notify(ctx, reactionEvent(author.ID, c.ID))

	list := notificationsOf(t, env, author.ID)
	require.Len(t, list, 1)
	n := list[0]
	assert.Equal(t, 3, n.Count)
	assert.ElementsMatch(t, []uint{a.ID, b.ID, c.ID}, n.ActorIDs)
	assert.Equal(t, c.ID, n.ActorID)
	assert.Equal(t, "cat and 2 others liked your post.", n.Message)
	assert.False(t, n.IsRead)

	pushed := only(drain(t, ca), EventNotification)
	require.Len(t, pushed, 3, "the repeated actor is not pushed")
	assert.Equal(t, "ann liked your post.", decode[NotificationPayload](t, pushed[0]).Message)
	assert.Equal(t, "ben and 1 other liked your post.", decode[NotificationPayload](t, pushed[1]).Message)
}

func TestGroupedNotificationExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agg := env.core.Notifications
	author, a, b := env.user("author"), env.user("ann"), env.user("ben")

	agg.Notify(ctx, reactionEvent(author.ID, a.ID))
	env.clock.Advance(4 * time.Minute)
	agg.Notify(ctx, reactionEvent(author.ID, b.ID))
	require.Len(t, notificationsOf(t, env, author.ID), 1)

	// freshness is measured from the last update, not from the window start
	env.clock.Advance(5*time.Minute + time.Second)
	agg.Notify(ctx, reactionEvent(author.ID, a.ID))

	list := notificationsOf(t, env, author.ID)
	require.Len(t, list, 2)
	assert.Equal(t, 2, list[0].Count)
	assert.Equal(t, 1, list[1].Count)
	assert.Equal(t, "ann liked your post.", list[1].Message)
	assert.NotEqual(t, list[0].WindowIndex, list[1].WindowIndex)
}

func TestGroupedCreateConflictMergesIntoExisting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agg := env.core.Notifications
	author, a, b := env.user("author"), env.user("ann"), env.user("ben")

	// a row for the current window that looks stale, as if written by a racing request
	window := env.clock.Now().UnixNano() / int64(5*time.Minute)
	require.NoError(t, env.db.Create(&models.Notification{
		UserID:         author.ID,
		Type:           models.NotifyReaction,
		TargetType:     models.TargetPost,
		TargetID:       "7",
		WindowIndex:    window,
		ActorID:        a.ID,
		ActorIDs:       []uint{a.ID},
		Count:          1,
		LastActivityAt: env.clock.Now().Add(-10 * time.Minute),
	}).Error)

	agg.Notify(ctx, reactionEvent(author.ID, b.ID))

	list := notificationsOf(t, env, author.ID)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Count)
	assert.ElementsMatch(t, []uint{a.ID, b.ID}, list[0].ActorIDs)
}

func TestDedupNotificationKeepsOneRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agg := env.core.Notifications
	target, fan := env.user("target"), env.user("fan")
	ev := NotificationEvent{
		RecipientID: target.ID,
		ActorID:     fan.ID,
		Type:        models.NotifyFollowRequest,
		TargetType:  models.TargetUser,
		TargetID:    uintID(fan.ID),
	}

	agg.Notify(ctx, ev)
	_, err := agg.MarkRead(ctx, target.ID, nil)
	require.NoError(t, err)
	env.clock.Advance(time.Hour)
	agg.Notify(ctx, ev)

	list := notificationsOf(t, env, target.ID)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].Count)
	assert.Equal(t, int64(0), list[0].WindowIndex)
	assert.False(t, list[0].IsRead, "a repeat makes it unread again")
	assert.True(t, list[0].LastActivityAt.Equal(env.clock.Now()))
	assert.Equal(t, "fan requested to follow you.", list[0].Message)
}

func TestDedupCreateConflictUpdatesExistingRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agg := env.core.Notifications
	target, fan, other := env.user("target"), env.user("fan"), env.user("other")
	ct := env.connect(target.ID)
	drain(t, ct)

	// writes outside a transaction so the racing row stays visible after the failed insert
	agg.db = env.db.Session(&gorm.Session{SkipDefaultTransaction: true})
	raced := false
	require.NoError(t, env.db.Callback().Create().Before("gorm:create").Register("test:racing_request", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "notifications" {
			return
		}
		raced = true
		err := env.db.Create(&models.Notification{
			UserID:         target.ID,
			Type:           models.NotifyFollowRequest,
			TargetType:     models.TargetUser,
			TargetID:       uintID(fan.ID),
			ActorID:        other.ID,
			ActorIDs:       []uint{other.ID},
			Count:          1,
			IsRead:         true,
			Message:        "other requested to follow you.",
			LastActivityAt: env.clock.Now().Add(-time.Hour),
		}).Error
		if err != nil {
			tx.AddError(err)
		}
	}))

	agg.Notify(ctx, NotificationEvent{
		RecipientID: target.ID,
		ActorID:     fan.ID,
		Type:        models.NotifyFollowRequest,
		TargetType:  models.TargetUser,
		TargetID:    uintID(fan.ID),
	})
	require.True(t, raced)

	list := notificationsOf(t, env, target.ID)
	require.Len(t, list, 1)
	n := list[0]
	assert.Equal(t, fan.ID, n.ActorID)
	assert.Equal(t, []uint{fan.ID}, n.ActorIDs)
	assert.Equal(t, 1, n.Count)
	assert.False(t, n.IsRead)
	assert.True(t, n.LastActivityAt.Equal(env.clock.Now()))
	assert.Equal(t, "fan requested to follow you.", n.Message)

	pushed := only(drain(t, ct), EventNotification)
	require.Len(t, pushed, 1)
	assert.Equal(t, n.ID, decode[NotificationPayload](t, pushed[0]).ID)
}

func TestNotifyAllOutlivesCallerDeadline(t *testing.T) {
	env := newTestEnv(t)
	agg := env.core.Notifications
	ann := env.user("ann")
	recipients := []models.User{env.user("r1"), env.user("r2"), env.user("r3")}

	var evs []NotificationEvent
	for _, u := range append(recipients, ann) {
		evs = append(evs, reactionEvent(u.ID, 0))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	agg.NotifyAll(ctx, ann.ID, evs)

	for _, u := range recipients {
		list := notificationsOf(t, env, u.ID)
		require.Len(t, list, 1, u.Username)
		assert.Equal(t, ann.ID, list[0].ActorID)
		assert.Equal(t, "ann liked your post.", list[0].Message)
	}
	assert.Empty(t, notificationsOf(t, env, ann.ID))
}

func TestSelfActionIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	me := env.user("me")

	env.core.Notifications.Notify(context.Background(), reactionEvent(me.ID, me.ID))

	assert.Empty(t, notificationsOf(t, env, me.ID))
}

func TestNotificationListAndRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agg := env.core.Notifications
	author, a := env.user("author"), env.user("ann")

	agg.Notify(ctx, reactionEvent(author.ID, a.ID))
	agg.Notify(ctx, NotificationEvent{
		RecipientID: author.ID,
		ActorID:     a.ID,
		Type:        models.NotifyComment,
		TargetType:  models.TargetPost,
		TargetID:    "7",
	})

	n, err := agg.UnreadCount(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	list, err := agg.List(ctx, author.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)

	updated, err := agg.MarkRead(ctx, author.ID, []uint{list[0].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	n, err = agg.UnreadCount(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRenderNotification(t *testing.T) {
	cases := []struct {
		typ, target string
		count       int
		want        string
	}{
		{models.NotifyReaction, models.TargetPost, 1, "ann liked your post."},
		{models.NotifyReaction, models.TargetComment, 2, "ann and 1 other liked your comment."},
		{models.NotifyReaction, models.TargetPost, 3, "ann and 2 others liked your post."},
		{models.NotifyComment, models.TargetPost, 5, "ann and 4 others commented on your post."},
		{models.NotifyReply, models.TargetComment, 1, "ann replied to your comment."},
		{models.NotifyRepost, models.TargetPost, 2, "ann and 1 other reposted your post."},
		{models.NotifyFollow, models.TargetUser, 1, "ann started following you."},
		{models.NotifyFollowAccept, models.TargetUser, 1, "ann accepted your follow request."},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RenderNotification(tc.typ, tc.target, "ann", tc.count))
	}
}
