package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-backend/models"
)

func TestOfflineRecipientSentDeliveredRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user("alice"), env.user("bob")
	conv := env.direct(alice.ID, bob.ID)

	ca := env.connect(alice.ID)
	msg := env.send(alice.ID, conv, "hi bob")
	env.wait()
	assert.Equal(t, models.StatusSent, env.status(msg.MessageID, bob.ID))
	drain(t, ca)

	cb := env.connect(bob.ID)
	assert.Equal(t, models.StatusDelivered, env.status(msg.MessageID, bob.ID))
	delivered := only(drain(t, ca), EventDeliveryStatus)
	require.Len(t, delivered, 1)
	p := decode[DeliveryStatusPayload](t, delivered[0])
	assert.Equal(t, models.StatusDelivered, p.Status)
	assert.Equal(t, []string{msg.MessageID}, p.MessageIDs)

	require.NoError(t, env.core.Presence.EnterConversation(ctx, cb, conv))
	assert.Equal(t, models.StatusRead, env.status(msg.MessageID, bob.ID))

	read := only(drain(t, ca), EventDeliveryStatus)
	require.Len(t, read, 1)
	p = decode[DeliveryStatusPayload](t, read[0])
	assert.Equal(t, models.StatusRead, p.Status)
	assert.Equal(t, conv, p.ConversationID)
	assert.Equal(t, bob.ID, p.UserID)
	assert.Contains(t, p.MessageIDs, msg.MessageID)

	deltas := only(drain(t, cb), EventUnreadDelta)
	require.Len(t, deltas, 1)
	assert.Equal(t, -1, decode[UnreadDeltaPayload](t, deltas[0]).Delta)
}

func TestSendCreatesOneDeliveryRowPerRecipient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, m1, m2 := env.user("owner"), env.user("m1"), env.user("m2")
	group, err := env.core.Chat.CreateGroup(ctx, owner.ID, "team", []uint{m1.ID, m2.ID, m1.ID})
	require.NoError(t, err)

	env.connect(m1.ID)
	msg := env.send(owner.ID, group.ConversationID, "standup")
	env.wait()

	var rows []models.DeliveryState
	require.NoError(t, env.db.Where("message_id = ?", msg.MessageID).Order("user_id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, m1.ID, rows[0].UserID)
	assert.Equal(t, models.StatusDelivered, rows[0].Status)
	assert.Equal(t, m2.ID, rows[1].UserID)
	assert.Equal(t, models.StatusSent, rows[1].Status)
}

func TestViewingRecipientIsMarkedReadOnSend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user("alice"), env.user("bob")
	conv := env.direct(alice.ID, bob.ID)
	ca, cb := env.connect(alice.ID), env.connect(bob.ID)
	require.NoError(t, env.core.Presence.EnterConversation(ctx, cb, conv))
	drain(t, ca)
	drain(t, cb)

	msg := env.send(alice.ID, conv, "you there?")
	env.wait()

	assert.Equal(t, models.StatusRead, env.status(msg.MessageID, bob.ID))
	statuses := only(drain(t, ca), EventDeliveryStatus)
	require.Len(t, statuses, 1)
	assert.Equal(t, models.StatusRead, decode[DeliveryStatusPayload](t, statuses[0]).Status)

	bobFrames := drain(t, cb)
	assert.Len(t, only(bobFrames, EventNewMessage), 1)
	assert.Empty(t, only(bobFrames, EventUnreadDelta))
	assert.Empty(t, only(bobFrames, EventNotification))
}

func TestOnlineRecipientGetsUnreadDeltaAndMessageNotification(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.user("alice"), env.user("bob")
	conv := env.direct(alice.ID, bob.ID)
	cb := env.connect(bob.ID)
	drain(t, cb)

	msg := env.send(alice.ID, conv, "ping")
	env.wait()

	frames := drain(t, cb)
	deltas := only(frames, EventUnreadDelta)
	require.Len(t, deltas, 1)
	assert.Equal(t, UnreadDeltaPayload{ConversationID: conv, Delta: 1}, decode[UnreadDeltaPayload](t, deltas[0]))

	notes := only(frames, EventNotification)
	require.Len(t, notes, 1)
	n := decode[NotificationPayload](t, notes[0])
	assert.Equal(t, models.NotifyMessage, n.Type)
	assert.Equal(t, "alice sent you a message.", n.Message)
	assert.Equal(t, msg.MessageID, n.Metadata["message_id"])

	var count int64
	require.NoError(t, env.db.Model(&models.Notification{}).Count(&count).Error)
	assert.Zero(t, count, "message notifications are never persisted")
}

func TestSendRejectsNonMembersWithoutWriting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, eve := env.user("alice"), env.user("bob"), env.user("eve")
	conv := env.direct(alice.ID, bob.ID)

	_, err := env.core.Chat.SendMessage(ctx, eve.ID, conv, SendMessageInput{Content: "let me in"})
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = env.core.Chat.SendMessage(ctx, alice.ID, "missing", SendMessageInput{Content: "hello"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.core.Chat.SendMessage(ctx, alice.ID, conv, SendMessageInput{Content: "   "})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	var n int64
	require.NoError(t, env.db.Model(&models.Message{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestPinToggleTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user("alice"), env.user("bob")
	conv := env.direct(alice.ID, bob.ID)
	msg := env.send(alice.ID, conv, "important")
	cb := env.connect(bob.ID)
	drain(t, cb)

	first, err := env.core.Chat.TogglePin(ctx, bob.ID, msg.MessageID)
	require.NoError(t, err)
	assert.Equal(t, PinActionPinned, first.Action)

	pins, err := env.core.Chat.ListPins(ctx, alice.ID, conv)
	require.NoError(t, err)
	require.Len(t, pins, 1)
	assert.Equal(t, bob.ID, pins[0].PinnedBy)

	second, err := env.core.Chat.TogglePin(ctx, bob.ID, msg.MessageID)
	require.NoError(t, err)
	assert.Equal(t, PinActionUnpinned, second.Action)

	var n int64
	require.NoError(t, env.db.Model(&models.PinnedMessage{}).Where("message_id = ?", msg.MessageID).Count(&n).Error)
	assert.Zero(t, n)

	events := only(drain(t, cb), EventMessagePinned)
	require.Len(t, events, 2)
	assert.Equal(t, PinActionPinned, decode[PinPayload](t, events[0]).Action)
	assert.Equal(t, PinActionUnpinned, decode[PinPayload](t, events[1]).Action)
}

func TestEditRecallDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user("alice"), env.user("bob")
	conv := env.direct(alice.ID, bob.ID)
	msg := env.send(alice.ID, conv, "helo")

	_, err := env.core.Chat.EditMessage(ctx, bob.ID, msg.MessageID, "hacked")
	assert.ErrorIs(t, err, ErrAccessDenied)

	edited, err := env.core.Chat.EditMessage(ctx, alice.ID, msg.MessageID, "hello")
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, "hello", edited.Content)

	history, err := env.core.Chat.EditHistory(ctx, bob.ID, msg.MessageID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "helo", history[0].PreviousContent)

	recalled, err := env.core.Chat.RecallMessage(ctx, alice.ID, msg.MessageID)
	require.NoError(t, err)
	assert.True(t, recalled.IsRecalled)
	assert.Empty(t, recalled.Content)

	_, err = env.core.Chat.EditMessage(ctx, alice.ID, msg.MessageID, "again")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	require.NoError(t, env.core.Chat.DeleteMessage(ctx, alice.ID, msg.MessageID))
	list, err := env.core.Chat.ListMessages(ctx, bob.ID, conv, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	var stored models.Message
	require.NoError(t, env.db.Where("message_id = ?", msg.MessageID).First(&stored).Error)
	assert.True(t, stored.IsDeleted, "deleted messages keep their row")

	_, err = env.core.Chat.TogglePin(ctx, bob.ID, msg.MessageID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReactToMessageToggles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user("alice"), env.user("bob")
	conv := env.direct(alice.ID, bob.ID)
	msg := env.send(alice.ID, conv, "lunch?")

	res, err := env.core.Chat.ReactToMessage(ctx, bob.ID, msg.MessageID, "👍")
	require.NoError(t, err)
	assert.Equal(t, "added", res.Action)
	assert.Equal(t, map[string]int{"👍": 1}, res.Counts)

	res, err = env.core.Chat.ReactToMessage(ctx, alice.ID, msg.MessageID, "👍")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"👍": 2}, res.Counts)

	res, err = env.core.Chat.ReactToMessage(ctx, bob.ID, msg.MessageID, "❤️")
	require.NoError(t, err)
	assert.Equal(t, "updated", res.Action)
	assert.Equal(t, map[string]int{"👍": 1, "❤️": 1}, res.Counts)

	res, err = env.core.Chat.ReactToMessage(ctx, bob.ID, msg.MessageID, "❤️")
	require.NoError(t, err)
	assert.Equal(t, "removed", res.Action)
	assert.Equal(t, map[string]int{"👍": 1}, res.Counts)
}

func TestTypingIsRateLimited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user("alice"), env.user("bob")
	conv := env.direct(alice.ID, bob.ID)
	cb := env.connect(bob.ID)
	drain(t, cb)

	require.NoError(t, env.core.Chat.Typing(ctx, alice.ID, conv, true))
	require.NoError(t, env.core.Chat.Typing(ctx, alice.ID, conv, true))
	require.NoError(t, env.core.Chat.Typing(ctx, alice.ID, conv, false))

	typing := only(drain(t, cb), EventTyping)
	require.Len(t, typing, 2)
	assert.True(t, decode[TypingPayload](t, typing[0]).IsTyping)
	assert.False(t, decode[TypingPayload](t, typing[1]).IsTyping)
}

func TestDirectConversationIsReused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user("alice"), env.user("bob")

	first, created, err := env.core.Chat.GetOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := env.core.Chat.GetOrCreateDirect(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	_, _, err = env.core.Chat.GetOrCreateDirect(ctx, alice.ID, alice.ID)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, _, err = env.core.Chat.GetOrCreateDirect(ctx, alice.ID, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListConversationsCountsUnread(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user("alice"), env.user("bob")
	conv := env.direct(alice.ID, bob.ID)
	env.send(alice.ID, conv, "one")
	env.send(alice.ID, conv, "two")
	env.wait()

	list, err := env.core.Chat.ListConversations(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].Unread)
	assert.Len(t, list[0].Participants, 2)

	require.NoError(t, env.core.Chat.MarkSeen(ctx, bob.ID, conv))
	list, err = env.core.Chat.ListConversations(ctx, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, list[0].Unread)
}

func TestGroupMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, m1, late := env.user("owner"), env.user("m1"), env.user("late")
	group, err := env.core.Chat.CreateGroup(ctx, owner.ID, "crew", []uint{m1.ID})
	require.NoError(t, err)

	cl := env.connect(late.ID)
	added, err := env.core.Chat.AddMembers(ctx, owner.ID, group.ConversationID, []uint{late.ID, m1.ID})
	require.NoError(t, err)
	assert.Equal(t, []uint{late.ID}, added)
	assert.True(t, env.core.Hub.Subscribed(cl, ConversationChannel(group.ConversationID)))

	require.NoError(t, env.core.Chat.Leave(ctx, late.ID, group.ConversationID))
	assert.False(t, env.core.Hub.Subscribed(cl, ConversationChannel(group.ConversationID)))

	msg := env.send(owner.ID, group.ConversationID, "after leave")
	env.wait()
	var n int64
	require.NoError(t, env.db.Model(&models.DeliveryState{}).
		Where("message_id = ? AND user_id = ?", msg.MessageID, late.ID).Count(&n).Error)
	assert.Zero(t, n, "former members get no delivery row")

	_, err = env.core.Chat.ListMessages(ctx, late.ID, group.ConversationID, nil, 10)
	assert.ErrorIs(t, err, ErrAccessDenied)

	direct := env.direct(owner.ID, m1.ID)
	_, err = env.core.Chat.AddMembers(ctx, owner.ID, direct, []uint{late.ID})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLeftDirectConversationIsReopened(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user("alice"), env.user("bob")
	conv := env.direct(alice.ID, bob.ID)
	ca := env.connect(alice.ID)

	require.NoError(t, env.core.Chat.Leave(ctx, alice.ID, conv))
	assert.False(t, env.core.Hub.Subscribed(ca, ConversationChannel(conv)))

	again, created, err := env.core.Chat.GetOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv, again.ConversationID)
	assert.True(t, env.core.Hub.Subscribed(ca, ConversationChannel(conv)))

	mine := env.send(alice.ID, conv, "back again")
	theirs := env.send(bob.ID, conv, "welcome back")
	env.wait()
	assert.Equal(t, models.StatusSent, env.status(mine.MessageID, bob.ID))
	assert.Equal(t, models.StatusDelivered, env.status(theirs.MessageID, alice.ID))

	list, err := env.core.Chat.ListConversations(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Participants, 2)
}

func TestUnreadCountIgnoresDeletedMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user("alice"), env.user("bob")
	conv := env.direct(alice.ID, bob.ID)
	env.send(alice.ID, conv, "stays")
	gone := env.send(alice.ID, conv, "oops")
	require.NoError(t, env.core.Chat.DeleteMessage(ctx, alice.ID, gone.MessageID))
	env.wait()

	list, err := env.core.Chat.ListConversations(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].Unread)
}
