package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"social-backend/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.New().String() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.Migrate(db))
	return db
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	t     *testing.T
	db    *gorm.DB
	core  *Core
	clock *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	core, err := NewCore(db, zap.NewNop(), Options{
		Window:      5 * time.Minute,
		OpTimeout:   2 * time.Second,
		TypingRate:  1,
		TypingBurst: 1,
	})
	require.NoError(t, err)
	clock := newFakeClock()
	core.Notifications.now = clock.Now
	return &testEnv{t: t, db: db, core: core, clock: clock}
}

func (e *testEnv) user(name string) models.User {
	e.t.Helper()
	u := models.User{Username: name}
	require.NoError(e.t, e.db.Create(&u).Error)
	return u
}

func (e *testEnv) privateUser(name string) models.User {
	e.t.Helper()
	u := models.User{Username: name, IsPrivate: true}
	require.NoError(e.t, e.db.Create(&u).Error)
	return u
}

func (e *testEnv) connect(userID uint) *Client {
	e.t.Helper()
	c := NewClient(userID, nil, 128)
	require.NoError(e.t, e.core.Presence.Connect(context.Background(), c))
	return c
}

func (e *testEnv) direct(a, b uint) string {
	e.t.Helper()
	conv, _, err := e.core.Chat.GetOrCreateDirect(context.Background(), a, b)
	require.NoError(e.t, err)
	return conv.ConversationID
}

func (e *testEnv) send(sender uint, conversationID, content string) *models.Message {
	e.t.Helper()
	msg, err := e.core.Chat.SendMessage(context.Background(), sender, conversationID, SendMessageInput{Content: content})
	require.NoError(e.t, err)
	return msg
}

func (e *testEnv) status(messageID string, userID uint) string {
	e.t.Helper()
	var ds models.DeliveryState
	require.NoError(e.t, e.db.Where("message_id = ? AND user_id = ?", messageID, userID).First(&ds).Error)
	return ds.Status
}

// wait drains background work started by the last operation.
func (e *testEnv) wait() { e.core.Wait() }

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// drain returns every queued frame of c without blocking.
func drain(t *testing.T, c *Client) []frame {
	t.Helper()
	var out []frame
	for {
		select {
		case raw, ok := <-c.Send:
			if !ok {
				return out
			}
			var f frame
			require.NoError(t, json.Unmarshal(raw, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func only(frames []frame, event string) []frame {
	var out []frame
	for _, f := range frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func decode[T any](t *testing.T, f frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Data, &v))
	return v
}
