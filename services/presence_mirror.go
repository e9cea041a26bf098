package services

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// PresenceMirror copies presence somewhere other processes can read it.
type PresenceMirror interface {
	SetPresence(ctx context.Context, userID uint, online bool, lastSeen time.Time) error
}

// RedisPresenceMirror keeps presence:user:{id} = {online, last_seen} with a TTL.
type RedisPresenceMirror struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisPresenceMirror(rdb *redis.Client, ttl time.Duration) *RedisPresenceMirror {
	return &RedisPresenceMirror{rdb: rdb, ttl: ttl}
}

func presenceKey(userID uint) string {
	return "presence:user:" + strconv.FormatUint(uint64(userID), 10)
}

func (m *RedisPresenceMirror) SetPresence(ctx context.Context, userID uint, online bool, lastSeen time.Time) error {
	key := presenceKey(userID)
	pipe := m.rdb.TxPipeline()
	pipe.HSet(ctx, key, "online", strconv.FormatBool(online), "last_seen", lastSeen.Unix())
	if m.ttl > 0 {
		pipe.Expire(ctx, key, m.ttl)
	}
	_, err := pipe.Exec(ctx)
	return errors.Wrapf(err, "mirror presence %s", key)
}
