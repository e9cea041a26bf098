package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubPublishReachesSubscribersOnly(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a, b := NewClient(1, nil, 8), NewClient(2, nil, 8)
	hub.Join(a, "conversation_x")
	hub.Join(b, "user_2")

	require.NoError(t, hub.Publish("conversation_x", EventTyping, TypingPayload{ConversationID: "x", UserID: 1}))

	got := drain(t, a)
	require.Len(t, got, 1)
	assert.Equal(t, EventTyping, got[0].Event)
	assert.Empty(t, drain(t, b))
}

func TestHubLeave(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c := NewClient(1, nil, 8)
	hub.Join(c, "a")
	hub.Join(c, "b")
	hub.Join(c, "c")

	hub.Leave(c, "a")
	assert.False(t, hub.Subscribed(c, "a"))
	assert.ElementsMatch(t, []string{"b", "c"}, hub.LeaveAll(c))
	assert.Zero(t, hub.Subscribers("b"))
	assert.Empty(t, hub.LeaveAll(c))
}

func TestHubDropsFramesForFullOrClosedClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	slow, fast := NewClient(1, nil, 1), NewClient(2, nil, 8)
	hub.Join(slow, "ch")
	hub.Join(fast, "ch")

	for i := 0; i < 3; i++ {
		require.NoError(t, hub.Publish("ch", EventTyping, i))
	}
	assert.Len(t, drain(t, slow), 1)
	assert.Len(t, drain(t, fast), 3)

	fast.Close()
	require.NoError(t, hub.Publish("ch", EventTyping, 4))
	assert.Error(t, hub.SendTo(fast, EventError, ErrorPayload{Code: "internal"}))
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "conversation_abc", ConversationChannel("abc"))
	assert.Equal(t, "active_conversation_abc", ActiveConversationChannel("abc"))
	assert.Equal(t, "user_12", UserChannel(12))

	id, ok := conversationFromChannel("conversation_abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", id)
	_, ok = conversationFromChannel("active_conversation_abc")
	assert.False(t, ok)
}
