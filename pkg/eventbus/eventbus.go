// Package eventbus implements the process-wide publish/subscribe
// channel used for lifecycle events (spec.md §4.1): NodeStatus,
// NodeHeartBeat, NodeDrainComplete, NodeAdded, NewSessionRequest,
// NewSessionResponse, NewSessionRejected.
//
// Delivery is ordered per-topic (not across topics), never blocks the
// publisher beyond a bounded local buffer, and may be lossy across
// process restarts — components must tolerate missing events (spec.md
// §4.1) by also supporting direct registration and re-deriving state
// from heartbeats.
package eventbus

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/stacklok/gridcore/pkg/logger"
)

// Topic names used throughout the grid (spec.md §4.1).
const (
	TopicNodeStatus         = "NodeStatus"
	TopicNodeHeartBeat      = "NodeHeartBeat"
	TopicNodeDrainComplete  = "NodeDrainComplete"
	TopicNodeAdded          = "NodeAdded"
	TopicNewSessionRequest  = "NewSessionRequest"
	TopicNewSessionResponse = "NewSessionResponse"
	TopicNewSessionRejected = "NewSessionRejected"
)

// defaultBufferSize bounds the per-topic backlog before Publish starts
// dropping the oldest pending message rather than blocking the caller.
const defaultBufferSize = 256

// defaultDispatchWorkers bounds the concurrency of handler invocation,
// so a slow handler on one topic cannot starve delivery on another.
const defaultDispatchWorkers = 8

// Handler is invoked at-most-once per delivered message.
type Handler func(payload any)

// Bus is the publish/subscribe contract every component depends on.
type Bus interface {
	// Publish enqueues payload for delivery on topic. Never blocks
	// beyond the bounded local buffer.
	Publish(topic string, payload any)
	// Subscribe installs handler for topic, returning an unsubscribe func.
	Subscribe(topic string, handler Handler) (unsubscribe func())
	// Ready reports whether the bus can currently accept publishes.
	Ready(ctx context.Context) error
	// Close stops dispatch and releases resources.
	Close()
}

type topicQueue struct {
	mu      sync.Mutex
	pending []any
	cond    *sync.Cond
	closed  bool
}

func newTopicQueue() *topicQueue {
	q := &topicQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *topicQueue) push(payload any, limit int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) >= limit {
		// Bounded buffer: drop the oldest rather than block the publisher.
		q.pending = q.pending[1:]
	}
	q.pending = append(q.pending, payload)
	q.cond.Signal()
}

// close marks q closed and wakes its dispatch loop. closed is checked
// directly under q.mu on every wake, never through a value snapshot
// taken before the wait began — a snapshot would never observe the
// flip and the dispatch loop would wait forever.
func (q *topicQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *topicQueue) pop() (any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.pending) == 0 {
		return nil, false
	}
	payload := q.pending[0]
	q.pending = q.pending[1:]
	return payload, true
}

// InMemory is an in-process Bus: one goroutine per topic preserves
// publish-order delivery within that topic, while a bounded semaphore
// across all topics caps total handler concurrency (spec.md §5: "heavy
// work is off-loaded to a bounded worker pool").
type InMemory struct {
	mu       sync.RWMutex
	topics   map[string]*topicQueue
	handlers map[string][]Handler
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	closed   bool
	wg       sync.WaitGroup
}

// New builds an in-memory event bus. publishRate, if positive, throttles
// the rate at which published messages are accepted (0 disables throttling).
func New(publishRate rate.Limit) *InMemory {
	b := &InMemory{
		topics:   make(map[string]*topicQueue),
		handlers: make(map[string][]Handler),
		sem:      semaphore.NewWeighted(defaultDispatchWorkers),
	}
	if publishRate > 0 {
		b.limiter = rate.NewLimiter(publishRate, defaultDispatchWorkers)
	}
	return b
}

func (b *InMemory) queueFor(topic string) *topicQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.topics[topic]
	if !ok {
		q = newTopicQueue()
		b.topics[topic] = q
		b.wg.Add(1)
		go b.dispatchLoop(topic, q)
	}
	return q
}

func (b *InMemory) dispatchLoop(topic string, q *topicQueue) {
	defer b.wg.Done()
	for {
		payload, ok := q.pop()
		if !ok {
			return
		}

		b.mu.RLock()
		handlers := append([]Handler(nil), b.handlers[topic]...)
		b.mu.RUnlock()

		for _, h := range handlers {
			h := h
			if err := b.sem.Acquire(context.Background(), 1); err != nil {
				logger.Warnf("eventbus: dispatch semaphore acquire failed: %v", err)
				continue
			}
			func(payload any) {
				defer b.sem.Release(1)
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("eventbus: handler for topic %s panicked: %v", topic, r)
					}
				}()
				h(payload)
			}(payload)
		}
	}
}

// Publish enqueues payload for delivery on topic.
func (b *InMemory) Publish(topic string, payload any) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	limiter := b.limiter
	b.mu.RUnlock()

	if limiter != nil {
		_ = limiter.Wait(context.Background())
	}

	q := b.queueFor(topic)
	q.push(payload, defaultBufferSize)
}

// Subscribe installs handler for topic.
func (b *InMemory) Subscribe(topic string, handler Handler) func() {
	b.mu.Lock()
	b.handlers[topic] = append(b.handlers[topic], handler)
	idx := len(b.handlers[topic]) - 1
	b.mu.Unlock()

	b.queueFor(topic)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		hs := b.handlers[topic]
		if idx >= 0 && idx < len(hs) {
			hs[idx] = func(any) {}
		}
	}
}

// Ready always succeeds for the in-memory bus: there is no external
// dependency to probe.
func (b *InMemory) Ready(_ context.Context) error {
	return nil
}

// Close stops all dispatch loops and releases resources.
func (b *InMemory) Close() {
	b.mu.Lock()
	b.closed = true
	topics := make([]*topicQueue, 0, len(b.topics))
	for _, q := range b.topics {
		topics = append(topics, q)
	}
	b.mu.Unlock()

	for _, q := range topics {
		q.close()
	}
	b.wg.Wait()
}
