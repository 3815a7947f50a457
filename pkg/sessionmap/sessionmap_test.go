package sessionmap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/gridcore/pkg/errors"
	"github.com/stacklok/gridcore/pkg/grid"
)

func implementations(t *testing.T) map[string]Map {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Map{
		"InMemory": NewInMemory(),
		"Redis":    NewRedis(client, 0),
	}
}

func TestMapAddGetRemove(t *testing.T) {
	for name, m := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sessionID := grid.NewSessionID()

			_, err := m.GetURI(ctx, sessionID)
			require.Error(t, err)
			assert.True(t, errors.IsNoSuchSession(err))

			require.NoError(t, m.Add(ctx, sessionID, "http://node-1:4444"))

			uri, err := m.GetURI(ctx, sessionID)
			require.NoError(t, err)
			assert.Equal(t, "http://node-1:4444", uri)

			require.NoError(t, m.Remove(ctx, sessionID))

			_, err = m.GetURI(ctx, sessionID)
			require.Error(t, err)
			assert.True(t, errors.IsNoSuchSession(err))

			// Remove is idempotent.
			require.NoError(t, m.Remove(ctx, sessionID))
		})
	}
}

func TestMapAddDuplicateFails(t *testing.T) {
	for name, m := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sessionID := grid.NewSessionID()

			require.NoError(t, m.Add(ctx, sessionID, "http://node-1:4444"))
			err := m.Add(ctx, sessionID, "http://node-2:4444")
			require.Error(t, err)
			assert.True(t, errors.IsSessionExists(err))
		})
	}
}

func TestMapReady(t *testing.T) {
	for name, m := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, m.Ready(context.Background()))
		})
	}
}
