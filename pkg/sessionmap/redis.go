package sessionmap

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stacklok/gridcore/pkg/errors"
	"github.com/stacklok/gridcore/pkg/grid"
)

const keyPrefix = "gridcore:session:"

// Redis is a Map backed by a shared Redis instance, letting multiple
// distributor processes in the same cluster agree on session→node
// bindings (spec.md §4.2: "Backing store is replaceable").
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis builds a Redis-backed Map. ttl, if positive, expires a
// binding automatically as a backstop against a node that dies without
// ever reporting its sessions ended; 0 disables expiry.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func key(sessionID grid.SessionID) string {
	return keyPrefix + string(sessionID)
}

// Add implements Map using SETNX semantics so two distributors racing
// to bind the same session ID never both succeed.
func (r *Redis) Add(ctx context.Context, sessionID grid.SessionID, uri string) error {
	ok, err := r.client.SetNX(ctx, key(sessionID), uri, r.ttl).Result()
	if err != nil {
		return errors.NewTransportError("redis session map add failed", err)
	}
	if !ok {
		return newSessionExistsError(sessionID)
	}
	return nil
}

// GetURI implements Map.
func (r *Redis) GetURI(ctx context.Context, sessionID grid.SessionID) (string, error) {
	uri, err := r.client.Get(ctx, key(sessionID)).Result()
	if err == redis.Nil {
		return "", newNoSuchSessionError(sessionID)
	}
	if err != nil {
		return "", errors.NewTransportError("redis session map get failed", err)
	}
	return uri, nil
}

// Remove implements Map. Idempotent: a missing key is not an error.
func (r *Redis) Remove(ctx context.Context, sessionID grid.SessionID) error {
	if err := r.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return errors.NewTransportError("redis session map remove failed", err)
	}
	return nil
}

// Ready pings the Redis client.
func (r *Redis) Ready(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return errors.NewTransportError("redis session map not ready", err)
	}
	return nil
}
