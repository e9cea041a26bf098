package services

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"social-backend/metrics"
)

// Broadcaster is the channel-broadcast primitive the realtime core rides on.
type Broadcaster interface {
	Publish(channel, event string, payload any) error
	SendTo(c *Client, event string, payload any) error
	Join(c *Client, channel string)
	Leave(c *Client, channel string)
	LeaveAll(c *Client) []string
}

// Hub is the in-process Broadcaster: channel -> subscribed clients.
type Hub struct {
	log *zap.Logger

	mu       sync.RWMutex
	channels map[string]map[string]*Client  // channel -> client id -> client
	joined   map[string]map[string]struct{} // client id -> channels
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:      log,
		channels: make(map[string]map[string]*Client),
		joined:   make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Join(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[string]*Client)
		h.channels[channel] = subs
	}
	subs[c.ID] = c
	chs, ok := h.joined[c.ID]
	if !ok {
		chs = make(map[string]struct{})
		h.joined[c.ID] = chs
	}
	chs[channel] = struct{}{}
}

func (h *Hub) Leave(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c.ID, channel)
}

// LeaveAll unsubscribes c everywhere and returns the channels it was in.
func (h *Hub) LeaveAll(c *Client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	chs := h.joined[c.ID]
	out := make([]string, 0, len(chs))
	for ch := range chs {
		out = append(out, ch)
	}
	for _, ch := range out {
		h.leaveLocked(c.ID, ch)
	}
	return out
}

func (h *Hub) leaveLocked(clientID, channel string) {
	if subs, ok := h.channels[channel]; ok {
		delete(subs, clientID)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	if chs, ok := h.joined[clientID]; ok {
		delete(chs, channel)
		if len(chs) == 0 {
			delete(h.joined, clientID)
		}
	}
}

// Subscribed reports whether c currently listens on channel.
func (h *Hub) Subscribed(c *Client, channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.channels[channel][c.ID]
	return ok
}

// Subscribers returns the number of clients on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Publish fans one frame out to every subscriber of channel. A full client
// queue drops the frame for that client only.
func (h *Hub) Publish(channel, event string, payload any) error {
	frame, err := encodeEnvelope(event, payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s", event)
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.channels[channel]))
	for _, c := range h.channels[channel] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	metrics.HubPublished.WithLabelValues(event).Inc()
	for _, c := range targets {
		if !c.enqueue(frame) {
			metrics.HubBackpressure.Inc()
			h.log.Warn("dropping frame for client",
				zap.String("client", c.ID),
				zap.Uint("user_id", c.UserID),
				zap.String("channel", channel),
				zap.String("event", event),
			)
		}
	}
	return nil
}

// SendTo delivers a frame to a single client, used for error events.
func (h *Hub) SendTo(c *Client, event string, payload any) error {
	frame, err := encodeEnvelope(event, payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s", event)
	}
	if !c.enqueue(frame) {
		metrics.HubBackpressure.Inc()
		return errors.Errorf("client %s unavailable", c.ID)
	}
	return nil
}
