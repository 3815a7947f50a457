// Package queue implements the session request queue (spec.md §4.3): a
// FIFO of pending session requests with a head-insert retry operation
// and bounded per-request wait. The queue never holds a reference to
// the distributor that ultimately services a request (spec.md §9,
// Design Notes: "cut with the event bus abstraction"); instead it
// subscribes to NewSessionResponse/NewSessionRejected and completes the
// blocked caller's promise when one arrives for a request it is
// tracking.
package queue

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/stacklok/gridcore/pkg/capabilities"
	"github.com/stacklok/gridcore/pkg/errors"
	"github.com/stacklok/gridcore/pkg/eventbus"
	"github.com/stacklok/gridcore/pkg/grid"
	"github.com/stacklok/gridcore/pkg/logger"
	"github.com/stacklok/gridcore/pkg/metrics"
)

// RequestEvent is published on TopicNewSessionRequest whenever a
// request is enqueued or re-enqueued at the head.
type RequestEvent struct {
	RequestID grid.RequestID
}

// ResponseEvent is published by the distributor on TopicNewSessionResponse
// when a request has been matched and a session created.
type ResponseEvent struct {
	RequestID grid.RequestID
	Session   grid.Session
	NodeURI   string
}

// RejectedEvent is published by the distributor (or the queue itself,
// on a request timeout) on TopicNewSessionRejected.
type RejectedEvent struct {
	RequestID grid.RequestID
	Message   string
}

// Result is what a successful Add eventually returns: the session that
// was created on the caller's behalf.
type Result struct {
	Session grid.Session
	NodeURI string
}

type entry struct {
	request  *grid.SessionRequest
	deadline time.Time
	promise  chan outcome
}

type outcome struct {
	result *Result
	err    error
}

// Queue is the concrete, concurrency-safe implementation of the session
// queue contract described in spec.md §4.3.
type Queue struct {
	mu             sync.Mutex
	items          *list.List // of *entry, front = head (next to retry/serve)
	index          map[grid.RequestID]*list.Element
	promises       map[grid.RequestID]*entry
	bus            eventbus.Bus
	requestTimeout time.Duration
	unsubscribers  []func()
	metrics        *metrics.Metrics
}

// SetMetrics attaches a metrics bundle the queue reports queue depth
// and wait-time observations to. Optional; a queue with no metrics set
// behaves identically, just without the reporting.
func (q *Queue) SetMetrics(m *metrics.Metrics) {
	q.metrics = m
}

// New builds a Queue that publishes request-lifecycle events on bus and
// enforces requestTimeout as the maximum age of a request in the queue.
func New(bus eventbus.Bus, requestTimeout time.Duration) *Queue {
	q := &Queue{
		items:          list.New(),
		index:          make(map[grid.RequestID]*list.Element),
		promises:       make(map[grid.RequestID]*entry),
		bus:            bus,
		requestTimeout: requestTimeout,
	}
	q.unsubscribers = append(q.unsubscribers,
		bus.Subscribe(eventbus.TopicNewSessionResponse, q.onResponse),
		bus.Subscribe(eventbus.TopicNewSessionRejected, q.onRejected),
	)
	return q
}

// Close unsubscribes the queue from the event bus.
func (q *Queue) Close() {
	for _, unsub := range q.unsubscribers {
		unsub()
	}
}

// Add enqueues req at the tail, publishes NewSessionRequestEvent, and
// blocks the caller until the request is matched or its deadline
// elapses (spec.md §4.3).
func (q *Queue) Add(ctx context.Context, req *grid.SessionRequest) (*Result, error) {
	if req.RequestID == "" {
		req.RequestID = grid.NewRequestID()
	}
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = time.Now()
	}
	deadline := req.EnqueuedAt.Add(q.requestTimeout)

	e := &entry{request: req, deadline: deadline, promise: make(chan outcome, 1)}

	q.mu.Lock()
	elem := q.items.PushBack(e)
	q.index[req.RequestID] = elem
	q.promises[req.RequestID] = e
	depth := q.items.Len()
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(depth))
	}
	q.bus.Publish(eventbus.TopicNewSessionRequest, RequestEvent{RequestID: req.RequestID})

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case out := <-e.promise:
		return out.result, out.err
	case <-timer.C:
		q.expire(req.RequestID)
		return nil, errors.NewTimeoutError("session request timed out in queue", nil)
	case <-ctx.Done():
		q.expire(req.RequestID)
		return nil, ctx.Err()
	}
}

// RetryAdd reinserts req at the head of the queue (spec.md §4.3,
// "retry-to-head"). Returns false if the request's deadline has already
// elapsed, in which case the caller (the distributor) is expected to
// fire a NewSessionRejectedEvent itself.
func (q *Queue) RetryAdd(req *grid.SessionRequest) bool {
	q.mu.Lock()
	e, tracked := q.promises[req.RequestID]
	if !tracked {
		q.mu.Unlock()
		return false
	}
	if time.Now().After(e.deadline) {
		q.mu.Unlock()
		return false
	}
	if _, alreadyQueued := q.index[req.RequestID]; alreadyQueued {
		// Defensive: never double-insert the same request.
		q.mu.Unlock()
		return true
	}
	elem := q.items.PushFront(e)
	q.index[req.RequestID] = elem
	q.mu.Unlock()

	q.bus.Publish(eventbus.TopicNewSessionRequest, RequestEvent{RequestID: req.RequestID})
	return true
}

// Remove dequeues the request with the given id, if it is still
// waiting in the FIFO (as opposed to already claimed by another
// scheduler or already timed out). The request's promise remains
// tracked so a later ResponseEvent/RejectedEvent can still complete it.
func (q *Queue) Remove(requestID grid.RequestID) (*grid.SessionRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	elem, ok := q.index[requestID]
	if !ok {
		return nil, false
	}
	delete(q.index, requestID)
	q.items.Remove(elem)
	return elem.Value.(*entry).request, true
}

// Clear drops every request currently waiting in the FIFO, rejecting
// each with a SessionNotCreated error, and returns the count dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	var cleared []*entry
	for e := q.items.Front(); e != nil; e = e.Next() {
		cleared = append(cleared, e.Value.(*entry))
	}
	q.items.Init()
	q.index = make(map[grid.RequestID]*list.Element)
	q.mu.Unlock()

	for _, e := range cleared {
		q.completeAndUntrack(e.request.RequestID, outcome{
			err: errors.NewSessionNotCreatedError("queue cleared", nil),
		})
	}
	return len(cleared)
}

// Contents lists the capability choices of every request currently
// waiting in the FIFO, for observability (spec.md §4.3). Per request,
// only the first capability choice is surfaced — see DESIGN.md for the
// resolved Open Question on whether further alternatives are reachable
// through this endpoint.
func (q *Queue) Contents() []capabilities.Capabilities {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]capabilities.Capabilities, 0, q.items.Len())
	for e := q.items.Front(); e != nil; e = e.Next() {
		req := e.Value.(*entry).request
		if len(req.CapabilityChoices) > 0 {
			out = append(out, req.CapabilityChoices[0])
		} else {
			out = append(out, capabilities.Capabilities{})
		}
	}
	return out
}

// Len reports the number of requests currently waiting in the FIFO.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (q *Queue) expire(requestID grid.RequestID) {
	q.mu.Lock()
	if elem, ok := q.index[requestID]; ok {
		delete(q.index, requestID)
		q.items.Remove(elem)
	}
	delete(q.promises, requestID)
	q.mu.Unlock()

	q.bus.Publish(eventbus.TopicNewSessionRejected, RejectedEvent{
		RequestID: requestID,
		Message:   "request timed out in queue",
	})
}

func (q *Queue) onResponse(payload any) {
	ev, ok := payload.(ResponseEvent)
	if !ok {
		return
	}
	q.completeAndUntrack(ev.RequestID, outcome{
		result: &Result{Session: ev.Session, NodeURI: ev.NodeURI},
	})
}

func (q *Queue) onRejected(payload any) {
	ev, ok := payload.(RejectedEvent)
	if !ok {
		return
	}
	q.completeAndUntrack(ev.RequestID, outcome{
		err: errors.NewSessionNotCreatedError(ev.Message, nil),
	})
}

func (q *Queue) completeAndUntrack(requestID grid.RequestID, out outcome) {
	q.mu.Lock()
	e, tracked := q.promises[requestID]
	if tracked {
		delete(q.promises, requestID)
	}
	if elem, ok := q.index[requestID]; ok {
		delete(q.index, requestID)
		q.items.Remove(elem)
	}
	depth := q.items.Len()
	q.mu.Unlock()

	if !tracked {
		return
	}
	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(depth))
		q.metrics.QueueWaitSeconds.Observe(time.Since(e.request.EnqueuedAt).Seconds())
	}
	select {
	case e.promise <- out:
	default:
		logger.Warnw("queue: dropped terminal event for untracked/already-completed request", "requestId", requestID)
	}
}
