package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/gridcore/pkg/eventbus"
	"github.com/stacklok/gridcore/pkg/grid"
	"github.com/stacklok/gridcore/pkg/queue"
)

func TestQueueRouterCreateSessionTimesOutWithNoDistributor(t *testing.T) {
	bus := eventbus.New(0)
	defer bus.Close()
	q := queue.New(bus, 30*time.Millisecond)
	defer q.Close()

	srv := httptest.NewServer(NewQueueRouter(q, "", nil))
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"capabilities": map[string]any{"browserName": "cheese"}})
	resp, err := http.Post(srv.URL+"/session", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.True(t, resp.StatusCode >= 400, "expected an error status once the request times out, got %d", resp.StatusCode)
}

func TestQueueRouterCreateSessionRejectsMalformedCapabilities(t *testing.T) {
	bus := eventbus.New(0)
	defer bus.Close()
	q := queue.New(bus, time.Second)
	defer q.Close()

	srv := httptest.NewServer(NewQueueRouter(q, "", nil))
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"capabilities": "not-an-object"})
	resp, err := http.Post(srv.URL+"/session", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQueueRouterContentsAndClear(t *testing.T) {
	bus := eventbus.New(0)
	defer bus.Close()
	q := queue.New(bus, time.Second)
	defer q.Close()

	srv := httptest.NewServer(NewQueueRouter(q, "secret", nil))
	defer srv.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Add(context.Background(), &grid.SessionRequest{})
		errCh <- err
	}()

	deadline := time.Now().Add(time.Second)
	for q.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 1, q.Len())

	resp, err := http.Get(srv.URL + "/se/grid/newsessionqueuer/queue")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/se/grid/newsessionqueuer/queue", nil)
	require.NoError(t, err)
	req.Header.Set("X-Grid-Secret", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Error(t, <-errCh)
}

func TestQueueRouterClearRequiresSecret(t *testing.T) {
	bus := eventbus.New(0)
	defer bus.Close()
	q := queue.New(bus, time.Second)
	defer q.Close()

	srv := httptest.NewServer(NewQueueRouter(q, "secret", nil))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/se/grid/newsessionqueuer/queue", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
