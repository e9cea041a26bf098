package services

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Options struct {
	Window       time.Duration
	OpTimeout    time.Duration
	TypingRate   float64
	TypingBurst  int
	Gateway      GatewayConfig
	PresenceSync PresenceMirror // optional
}

// Core holds the wired realtime services.
type Core struct {
	Hub           *Hub
	Delivery      *DeliveryTracker
	Presence      *PresenceTracker
	Router        *Router
	Notifications *Aggregator
	Events        *Dispatcher
	Chat          *ChatService
	Social        *SocialService
	Gateway       *Gateway
}

func NewCore(db *gorm.DB, log *zap.Logger, opt Options) (*Core, error) {
	hub := NewHub(log.Named("hub"))
	delivery := NewDeliveryTracker(db, hub, log.Named("delivery"))
	presence := NewPresenceTracker(db, hub, delivery, opt.PresenceSync, log.Named("presence"))
	router := NewRouter(hub, delivery, log.Named("router"), opt.OpTimeout)
	agg := NewAggregator(db, hub, log.Named("notification"), opt.Window, opt.OpTimeout)
	events := NewDispatcher(log.Named("events"), opt.OpTimeout)
	if err := RegisterNotificationHandlers(events, agg); err != nil {
		return nil, err
	}
	chat := NewChatService(db, hub, presence, delivery, router, events, log.Named("chat"), opt.TypingRate, opt.TypingBurst)

	return &Core{
		Hub:           hub,
		Delivery:      delivery,
		Presence:      presence,
		Router:        router,
		Notifications: agg,
		Events:        events,
		Chat:          chat,
		Social:        NewSocialService(db, events, log.Named("social")),
		Gateway:       NewGateway(hub, presence, chat, log.Named("ws"), opt.Gateway),
	}, nil
}

// Wait drains background work (READ upgrades, then event handlers).
func (c *Core) Wait() {
	c.Router.Wait()
	c.Events.Wait()
}
