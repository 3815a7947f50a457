package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/gridcore/pkg/capabilities"
	"github.com/stacklok/gridcore/pkg/eventbus"
	"github.com/stacklok/gridcore/pkg/grid"
)

func newTestQueue(t *testing.T, requestTimeout time.Duration) (*Queue, eventbus.Bus) {
	t.Helper()
	bus := eventbus.New(0)
	q := New(bus, requestTimeout)
	t.Cleanup(func() {
		q.Close()
		bus.Close()
	})
	return q, bus
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestAddPublishesRequestAndBlocksUntilResponse(t *testing.T) {
	q, bus := newTestQueue(t, time.Second)

	var mu sync.Mutex
	var seen []grid.RequestID
	bus.Subscribe(eventbus.TopicNewSessionRequest, func(payload any) {
		ev := payload.(RequestEvent)
		mu.Lock()
		seen = append(seen, ev.RequestID)
		mu.Unlock()
	})

	req := &grid.SessionRequest{}
	resultCh := make(chan *Result, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := q.Add(context.Background(), req)
		resultCh <- res
		errCh <- err
	}()

	waitForCondition(t, time.Second, func() bool { return q.Len() == 1 })

	sess := grid.Session{ID: grid.NewSessionID()}
	bus.Publish(eventbus.TopicNewSessionResponse, ResponseEvent{
		RequestID: req.RequestID,
		Session:   sess,
		NodeURI:   "http://node-1:4444",
	})

	require.NoError(t, <-errCh)
	res := <-resultCh
	require.NotNil(t, res)
	assert.Equal(t, sess.ID, res.Session.ID)
	assert.Equal(t, "http://node-1:4444", res.NodeURI)
	assert.Equal(t, 0, q.Len())

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, req.RequestID)
}

func TestAddTimesOutAndPublishesRejected(t *testing.T) {
	q, bus := newTestQueue(t, 20*time.Millisecond)

	var rejected []RejectedEvent
	var mu sync.Mutex
	bus.Subscribe(eventbus.TopicNewSessionRejected, func(payload any) {
		mu.Lock()
		rejected = append(rejected, payload.(RejectedEvent))
		mu.Unlock()
	})

	req := &grid.SessionRequest{}
	_, err := q.Add(context.Background(), req)
	require.Error(t, err)

	waitForCondition(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(rejected) == 1
	})
	assert.Equal(t, 0, q.Len())
}

func TestRemoveThenRetryAddReinsertsAtHead(t *testing.T) {
	q, _ := newTestQueue(t, time.Second)

	first := &grid.SessionRequest{CapabilityChoices: []capabilities.Capabilities{{"browserName": "first"}}}
	second := &grid.SessionRequest{CapabilityChoices: []capabilities.Capabilities{{"browserName": "second"}}}

	resultCh := make(chan *Result, 2)
	go func() { res, _ := q.Add(context.Background(), first); resultCh <- res }()
	waitForCondition(t, time.Second, func() bool { return q.Len() == 1 })
	go func() { res, _ := q.Add(context.Background(), second); resultCh <- res }()
	waitForCondition(t, time.Second, func() bool { return q.Len() == 2 })

	dequeued, ok := q.Remove(first.RequestID)
	require.True(t, ok)
	assert.Equal(t, first.RequestID, dequeued.RequestID)
	assert.Equal(t, 1, q.Len())

	require.True(t, q.RetryAdd(dequeued))
	assert.Equal(t, 2, q.Len())

	contents := q.Contents()
	assert.Len(t, contents, 2)
	assert.Equal(t, "first", contents[0]["browserName"], "retried request should be back at the head")
}

func TestRetryAddFailsForUntrackedRequest(t *testing.T) {
	q, _ := newTestQueue(t, time.Second)
	untracked := &grid.SessionRequest{RequestID: grid.NewRequestID()}
	assert.False(t, q.RetryAdd(untracked))
}

func TestClearRejectsAllWaitingRequests(t *testing.T) {
	q, _ := newTestQueue(t, time.Second)

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		req := &grid.SessionRequest{}
		go func() {
			_, err := q.Add(context.Background(), req)
			errs <- err
		}()
	}
	waitForCondition(t, time.Second, func() bool { return q.Len() == 3 })

	n := q.Clear()
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, q.Len())

	for i := 0; i < 3; i++ {
		require.Error(t, <-errs)
	}
}
