package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one websocket connection. Frames reach the socket only through
// Send, which a single writer goroutine drains.
type Client struct {
	ID     string
	UserID uint
	Send   chan []byte

	conn *websocket.Conn
	done chan struct{}

	mu       sync.Mutex
	closed   bool
	lastPong time.Time
}

// NewClient wraps conn (nil in tests) for userID with a bounded outbound queue.
func NewClient(userID uint, conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		ID:       uuid.New().String(),
		UserID:   userID,
		Send:     make(chan []byte, buffer),
		conn:     conn,
		done:     make(chan struct{}),
		lastPong: time.Now(),
	}
}

// enqueue never blocks; it reports false when the client is closed or its
// queue is full.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the client; further frames are dropped.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
	close(c.done)
}

func (c *Client) touchPong() {
	c.mu.Lock()
	c.lastPong = time.Now()
	c.mu.Unlock()
}

func (c *Client) sincePong() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastPong)
}
