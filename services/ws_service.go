package services

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	FrameJoinConversation  = "join_conversation"
	FrameLeaveConversation = "leave_conversation"
	FrameTyping            = "typing"
	FrameSeen              = "seen"
	FrameSendMessage       = "send_message"
	FramePing              = "ping"
)

// InboundFrame is a JSON frame sent by a websocket client.
type InboundFrame struct {
	Type           string  `json:"type"`
	RequestID      string  `json:"request_id,omitempty"`
	ConversationID string  `json:"conversation_id"`
	IsTyping       bool    `json:"is_typing"`
	Content        string  `json:"content"`
	MessageType    string  `json:"message_type"`
	ReplyToID      *string `json:"reply_to_id"`
}

// ErrorPayload is sent to the calling client only.
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Type      string `json:"type,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type GatewayConfig struct {
	SendBuffer     int
	MaxMessageSize int64         // 单个入站帧的最大字节数, 超过则断开
	PingInterval   time.Duration // 发送 ping 的间隔
	PongTimeout    time.Duration // 超过该时间未收到 pong 断开连接
	WriteTimeout   time.Duration
}

// Gateway upgrades HTTP requests to websockets and turns inbound frames into
// service calls.
type Gateway struct {
	hub      *Hub
	presence *PresenceTracker
	chat     *ChatService
	log      *zap.Logger
	cfg      GatewayConfig
	upgrader websocket.Upgrader
}

func NewGateway(hub *Hub, presence *PresenceTracker, chat *ChatService, log *zap.Logger, cfg GatewayConfig) *Gateway {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 << 10
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 10 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Gateway{
		hub:      hub,
		presence: presence,
		chat:     chat,
		log:      log,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket expects the auth middleware to have set user_id.
func (g *Gateway) HandleWebSocket(ctx *gin.Context) {
	userID := ctx.GetUint("user_id")
	if userID == 0 {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	conn, err := g.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", zap.Uint("user_id", userID), zap.Error(err))
		return
	}
	go g.Serve(NewClient(userID, conn, g.cfg.SendBuffer))
}

// Serve runs one connection until it closes.
func (g *Gateway) Serve(c *Client) {
	defer c.conn.Close()

	if err := g.presence.Connect(context.Background(), c); err != nil {
		g.log.Error("connect failed", zap.Uint("user_id", c.UserID), zap.Error(err))
		g.presence.Disconnect(context.Background(), c)
		c.Close()
		return
	}
	g.log.Info("client connected", zap.String("client", c.ID), zap.Uint("user_id", c.UserID))

	go g.writePump(c)
	g.readPump(c)

	g.presence.Disconnect(context.Background(), c)
	c.Close()
	g.log.Info("client disconnected", zap.String("client", c.ID), zap.Uint("user_id", c.UserID))
}

func (g *Gateway) readPump(c *Client) {
	c.conn.SetReadLimit(g.cfg.MaxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.touchPong()
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				g.log.Warn("frame too large, closing", zap.String("client", c.ID), zap.Uint("user_id", c.UserID))
			}
			return
		}
		switch string(raw) {
		case "pong":
			c.touchPong()
			continue
		case "ping":
			c.enqueue([]byte("pong"))
			continue
		}
		g.HandleFrame(context.Background(), c, raw)
	}
}

// writePump is the only writer of c.conn. It also drives the heartbeat.
func (g *Gateway) writePump(c *Client) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if c.sincePong() > g.cfg.PongTimeout {
				g.log.Info("client heartbeat timeout", zap.String("client", c.ID))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// HandleFrame executes one inbound frame. Failures go back to c as an error
// event and never to other subscribers.
func (g *Gateway) HandleFrame(ctx context.Context, c *Client, raw []byte) {
	var f InboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		g.replyError(c, f, errors.Wrap(ErrInvalidArgument, "malformed frame"))
		return
	}

	var err error
	switch f.Type {
	case FrameJoinConversation:
		err = g.presence.EnterConversation(ctx, c, f.ConversationID)
	case FrameLeaveConversation:
		g.presence.LeaveConversation(c, f.ConversationID)
	case FrameTyping:
		err = g.chat.Typing(ctx, c.UserID, f.ConversationID, f.IsTyping)
	case FrameSeen:
		err = g.chat.MarkSeen(ctx, c.UserID, f.ConversationID)
	case FrameSendMessage:
		_, err = g.chat.SendMessage(ctx, c.UserID, f.ConversationID, SendMessageInput{
			Content:     f.Content,
			MessageType: f.MessageType,
			ReplyToID:   f.ReplyToID,
		})
	case FramePing:
		c.enqueue([]byte("pong"))
	default:
		err = errors.Wrapf(ErrInvalidArgument, "unknown frame type %q", f.Type)
	}
	if err != nil {
		g.replyError(c, f, err)
	}
}

func (g *Gateway) replyError(c *Client, f InboundFrame, err error) {
	code := ErrorCode(err)
	msg := err.Error()
	if code == "internal" {
		g.log.Error("frame failed", zap.String("type", f.Type), zap.Uint("user_id", c.UserID), zap.Error(err))
		msg = "internal error"
	}
	if sendErr := g.hub.SendTo(c, EventError, ErrorPayload{
		Code:      code,
		Message:   msg,
		Type:      f.Type,
		RequestID: f.RequestID,
	}); sendErr != nil {
		g.log.Debug("error event not delivered", zap.String("client", c.ID), zap.Error(sendErr))
	}
}
