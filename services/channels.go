package services

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Event names pushed over hub channels.
const (
	EventNewMessage         = "new-message"
	EventMessageEdited      = "message-edited"
	EventMessageRecalled    = "message-recalled"
	EventMessageDeleted     = "message-deleted"
	EventReactionUpdated    = "message-reaction-updated"
	EventMessagePinned      = "message-pinned"
	EventDeliveryStatus     = "delivery-status-update"
	EventTyping             = "typing-indicator"
	EventUnreadDelta        = "unread-count-delta"
	EventConversationUpdate = "conversation-updated"
	EventPresenceChanged    = "user-presence-changed"
	EventNotification       = "notification"
	EventError              = "error"
)

const (
	conversationPrefix       = "conversation_"
	activeConversationPrefix = "active_conversation_"
	userPrefix               = "user_"
)

func ConversationChannel(id string) string       { return conversationPrefix + id }
func ActiveConversationChannel(id string) string { return activeConversationPrefix + id }
func UserChannel(id uint) string                 { return userPrefix + strconv.FormatUint(uint64(id), 10) }

// conversationFromChannel returns the id of a plain conversation channel.
func conversationFromChannel(ch string) (string, bool) {
	if !strings.HasPrefix(ch, conversationPrefix) {
		return "", false
	}
	return strings.TrimPrefix(ch, conversationPrefix), true
}

// Envelope is the JSON frame written to websocket clients.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encodeEnvelope(event string, payload any) ([]byte, error) {
	return json.Marshal(Envelope{Event: event, Data: payload})
}
