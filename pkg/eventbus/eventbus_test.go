package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribeOrderPerTopic(t *testing.T) {
	t.Parallel()

	b := New(0)
	defer b.Close()

	var mu sync.Mutex
	var received []int
	done := make(chan struct{})

	b.Subscribe(TopicNewSessionRequest, func(payload any) {
		mu.Lock()
		received = append(received, payload.(int))
		if len(received) == 5 {
			close(done)
		}
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		b.Publish(TopicNewSessionRequest, i)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 5)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, received)
}

func TestSubscribeMultipleTopicsIndependent(t *testing.T) {
	t.Parallel()

	b := New(0)
	defer b.Close()

	var mu sync.Mutex
	var a, c []string
	doneA := make(chan struct{})
	doneC := make(chan struct{})

	b.Subscribe(TopicNodeAdded, func(p any) {
		mu.Lock()
		a = append(a, p.(string))
		if len(a) == 1 {
			close(doneA)
		}
		mu.Unlock()
	})
	b.Subscribe(TopicNodeDrainComplete, func(p any) {
		mu.Lock()
		c = append(c, p.(string))
		if len(c) == 1 {
			close(doneC)
		}
		mu.Unlock()
	})

	b.Publish(TopicNodeAdded, "node-1")
	b.Publish(TopicNodeDrainComplete, "node-2")

	<-doneA
	<-doneC

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"node-1"}, a)
	assert.Equal(t, []string{"node-2"}, c)
}

func TestReadyAlwaysOKForInMemory(t *testing.T) {
	t.Parallel()
	b := New(0)
	defer b.Close()
	assert.NoError(t, b.Ready(nil)) //nolint:staticcheck // in-memory bus never probes ctx
}
