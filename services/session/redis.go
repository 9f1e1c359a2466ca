// Package sessionsvc provides the session trackers backed by external stores.
package sessionsvc

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/session"
)

const (
	sessionPrefix     = "session:"
	userSessionPrefix = "user_sessions:"
)

// RedisTracker keeps sessions in Redis, the key TTL being the idle timeout.
// Sessions are shared between every instance using the same Redis database.
type RedisTracker struct {
	client *redis.Client
	idle   time.Duration
}

var _ session.Tracker = (*RedisTracker)(nil)

func NewRedisTracker(client *redis.Client, idleTimeout time.Duration) *RedisTracker {
	return &RedisTracker{client: client, idle: idleTimeout}
}

func sessionKey(sid string) string {
	return sessionPrefix + sid
}

func userSessionsKey(userID string) string {
	return userSessionPrefix + userID
}

func (t *RedisTracker) Start(ctx context.Context, sid, userID string) error {
	pipe := t.client.TxPipeline()
	pipe.Set(ctx, sessionKey(sid), userID, t.idle)
	pipe.SAdd(ctx, userSessionsKey(userID), sid)
	pipe.Expire(ctx, userSessionsKey(userID), t.idle)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "starting session")
	}
	return nil
}

func (t *RedisTracker) Touch(ctx context.Context, sid string) error {
	userID, err := t.client.Get(ctx, sessionKey(sid)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return session.ErrExpired
		}
		return errors.Wrap(err, "getting session")
	}

	pipe := t.client.TxPipeline()
	ok := pipe.Expire(ctx, sessionKey(sid), t.idle)
	pipe.Expire(ctx, userSessionsKey(userID), t.idle)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "touching session")
	}
	if !ok.Val() { // expired between GET and EXPIRE
		return session.ErrExpired
	}
	return nil
}

func (t *RedisTracker) Revoke(ctx context.Context, sid string) error {
	userID, err := t.client.Get(ctx, sessionKey(sid)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return errors.Wrap(err, "getting session")
	}
	pipe := t.client.TxPipeline()
	pipe.Del(ctx, sessionKey(sid))
	pipe.SRem(ctx, userSessionsKey(userID), sid)
	_, err = pipe.Exec(ctx)
	return errors.Wrap(err, "revoking session")
}

func (t *RedisTracker) RevokeUser(ctx context.Context, userID string) error {
	sids, err := t.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return errors.Wrap(err, "listing user sessions")
	}
	keys := make([]string, 0, len(sids)+1)
	for _, sid := range sids {
		keys = append(keys, sessionKey(sid))
	}
	keys = append(keys, userSessionsKey(userID))
	return errors.Wrap(t.client.Del(ctx, keys...).Err(), "revoking user sessions")
}

// NewRedisClient connects to Redis and pings it.
func NewRedisClient(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Address,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return rdb, nil
}

// NewTracker returns the session tracker configured by conf.Session.Backend.
// The returned close func releases the underlying connection, if any.
func NewTracker(ctx context.Context, conf *core.Config) (session.Tracker, func() error, error) {
	switch conf.Session.Backend {
	case "", "memory":
		return session.NewMemoryTracker(conf.Session.IdleTimeout), func() error { return nil }, nil
	case "redis":
		rdb, err := NewRedisClient(ctx, conf.Redis)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisTracker(rdb, conf.Session.IdleTimeout), rdb.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown session backend %q", conf.Session.Backend)
	}
}
