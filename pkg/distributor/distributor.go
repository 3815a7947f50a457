// Package distributor implements the Distributor component (spec.md
// §4.5): the authoritative Grid Model of all nodes and their slots, the
// single-threaded scheduling tick that pairs queued requests with free
// slots, node registration, periodic health checks, and drain/purge.
package distributor

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/stacklok/gridcore/pkg/errors"
	"github.com/stacklok/gridcore/pkg/eventbus"
	"github.com/stacklok/gridcore/pkg/grid"
	"github.com/stacklok/gridcore/pkg/logger"
	"github.com/stacklok/gridcore/pkg/metrics"
	"github.com/stacklok/gridcore/pkg/node"
	"github.com/stacklok/gridcore/pkg/queue"
	"github.com/stacklok/gridcore/pkg/readiness"
	"github.com/stacklok/gridcore/pkg/secretauth"
	"github.com/stacklok/gridcore/pkg/sessionmap"
)

// Queue is the subset of *queue.Queue the Distributor depends on,
// narrowed for testability.
type Queue interface {
	Remove(requestID grid.RequestID) (*grid.SessionRequest, bool)
	RetryAdd(req *grid.SessionRequest) bool
}

// Config bundles the Distributor's tunables, loaded from pkg/config.
type Config struct {
	HealthcheckInterval time.Duration
	PurgeInterval       time.Duration
	RetryInterval       time.Duration
	Secret              string
}

// Distributor is the concrete implementation of spec.md §4.5.
type Distributor struct {
	mu    sync.RWMutex // fair-enough per spec.md §5's resolved Open Question — see DESIGN.md
	nodes map[grid.NodeID]node.Node
	model map[grid.NodeID]grid.ModelEntry

	pendingList  *list.List
	pendingIndex map[grid.RequestID]*list.Element

	bus        eventbus.Bus
	sessionMap sessionmap.Map
	queue      Queue
	selector   SlotSelector
	cfg        Config

	tickSignal chan struct{}
	stopCh     chan struct{}
	wg         sync.WaitGroup

	unsubscribers []func()
	metrics       *metrics.Metrics
}

// SetMetrics attaches a metrics bundle the distributor reports
// scheduling and node/slot occupancy observations to. Optional.
func (d *Distributor) SetMetrics(m *metrics.Metrics) {
	d.metrics = m
}

// New builds a Distributor. Start must be called to run its background loops.
func New(bus eventbus.Bus, sessionMap sessionmap.Map, q Queue, selector SlotSelector, cfg Config) *Distributor {
	if selector == nil {
		selector = DefaultSlotSelector{}
	}
	d := &Distributor{
		nodes:        make(map[grid.NodeID]node.Node),
		model:        make(map[grid.NodeID]grid.ModelEntry),
		pendingList:  list.New(),
		pendingIndex: make(map[grid.RequestID]*list.Element),
		bus:          bus,
		sessionMap:   sessionMap,
		queue:        q,
		selector:     selector,
		cfg:          cfg,
		tickSignal:   make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
	}

	d.unsubscribers = append(d.unsubscribers,
		bus.Subscribe(eventbus.TopicNewSessionRequest, d.onNewSessionRequest),
		bus.Subscribe(eventbus.TopicNodeStatus, d.onNodeStatus),
		bus.Subscribe(eventbus.TopicNodeHeartBeat, d.onNodeHeartBeat),
		bus.Subscribe(eventbus.TopicNodeDrainComplete, d.onDrainComplete),
	)
	return d
}

// Start launches the scheduler tick loop, health-check loop, and purge
// loop as background goroutines.
func (d *Distributor) Start(ctx context.Context) {
	d.wg.Add(3)
	go d.schedulerLoop(ctx)
	go d.healthcheckLoop(ctx)
	go d.purgeLoop(ctx)
}

// Stop halts all background loops and unsubscribes from the bus.
func (d *Distributor) Stop() {
	close(d.stopCh)
	d.wg.Wait()
	for _, unsub := range d.unsubscribers {
		unsub()
	}
}

// Register adds a node directly (as opposed to deriving it from an
// event), publishing NodeAddedEvent. Idempotent: registering the same
// NodeId twice leaves the model size unchanged (spec.md §8).
func (d *Distributor) Register(n node.Node, status grid.NodeStatus) {
	d.mu.Lock()
	_, exists := d.nodes[n.ID()]
	if !exists {
		d.nodes[n.ID()] = n
	}
	d.model[n.ID()] = grid.ModelEntry{Status: status, LastHeartbeat: time.Now()}
	d.reportGridMetricsLocked()
	d.mu.Unlock()

	if !exists {
		d.bus.Publish(eventbus.TopicNodeAdded, AddedEvent{NodeID: n.ID(), URI: status.URI})
		d.signalTick()
	}
}

// Status returns a snapshot of every registered node's last-known status.
func (d *Distributor) Status(_ context.Context) []grid.NodeStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]grid.NodeStatus, 0, len(d.model))
	for _, entry := range d.model {
		out = append(out, entry.Status)
	}
	return out
}

// Drain marks nodeID draining in the model and asks the node to drain.
// Between this call and the corresponding NodeDrainComplete, no new
// session is ever reserved on that node (spec.md §4.5.3).
func (d *Distributor) Drain(ctx context.Context, nodeID grid.NodeID) error {
	d.mu.Lock()
	n, ok := d.nodes[nodeID]
	if ok {
		entry := d.model[nodeID]
		entry.Status.Availability = grid.Draining
		d.model[nodeID] = entry
	}
	d.mu.Unlock()

	if !ok {
		return errors.NewNotFoundError("no such node: "+string(nodeID), nil)
	}
	return n.Drain(ctx)
}

// Ready reports whether the distributor's dependencies are reachable.
func (d *Distributor) Ready(ctx context.Context) error {
	return readiness.All(
		readiness.CheckerFunc(d.bus.Ready),
		readiness.CheckerFunc(d.sessionMap.Ready),
	)(ctx)
}

func (d *Distributor) signalTick() {
	select {
	case d.tickSignal <- struct{}{}:
	default:
	}
}

func (d *Distributor) onNewSessionRequest(payload any) {
	ev, ok := payload.(queue.RequestEvent)
	if !ok {
		return
	}
	d.mu.Lock()
	if _, tracked := d.pendingIndex[ev.RequestID]; !tracked {
		elem := d.pendingList.PushBack(ev.RequestID)
		d.pendingIndex[ev.RequestID] = elem
	}
	d.mu.Unlock()
	d.signalTick()
}

func (d *Distributor) onNodeStatus(payload any) {
	ev, ok := payload.(NodeStatusEvent)
	if !ok {
		return
	}
	if err := secretauth.Check(d.cfg.Secret, ev.Secret); err != nil {
		logger.Warnw("distributor: rejected NodeStatusEvent with bad secret", "nodeId", ev.Status.NodeID)
		return
	}

	d.mu.Lock()
	_, known := d.nodes[ev.Status.NodeID]
	if !known {
		d.nodes[ev.Status.NodeID] = node.NewRemote(ev.Status.NodeID, ev.Status.URI, d.cfg.Secret, d.cfg.RetryInterval)
	}
	d.model[ev.Status.NodeID] = grid.ModelEntry{Status: ev.Status, LastHeartbeat: time.Now()}
	d.reportGridMetricsLocked()
	d.mu.Unlock()

	if !known {
		d.bus.Publish(eventbus.TopicNodeAdded, AddedEvent{NodeID: ev.Status.NodeID, URI: ev.Status.URI})
	}
	d.signalTick()
}

func (d *Distributor) onNodeHeartBeat(payload any) {
	ev, ok := payload.(NodeHeartBeatEvent)
	if !ok {
		return
	}
	if err := secretauth.Check(d.cfg.Secret, ev.Secret); err != nil {
		logger.Warnw("distributor: rejected NodeHeartBeatEvent with bad secret", "nodeId", ev.NodeID)
		return
	}

	d.mu.Lock()
	_, known := d.nodes[ev.NodeID]
	if !known {
		d.nodes[ev.NodeID] = node.NewRemote(ev.NodeID, ev.URI, d.cfg.Secret, d.cfg.RetryInterval)
		d.model[ev.NodeID] = grid.ModelEntry{
			Status:        grid.NodeStatus{NodeID: ev.NodeID, URI: ev.URI, Availability: grid.Up},
			LastHeartbeat: time.Now(),
		}
	} else {
		entry := d.model[ev.NodeID]
		entry.LastHeartbeat = time.Now()
		d.model[ev.NodeID] = entry
	}
	d.reportGridMetricsLocked()
	d.mu.Unlock()

	if !known {
		d.bus.Publish(eventbus.TopicNodeAdded, AddedEvent{NodeID: ev.NodeID, URI: ev.URI})
	}
}

func (d *Distributor) onDrainComplete(payload any) {
	nodeID, ok := payload.(grid.NodeID)
	if !ok {
		return
	}
	d.removeNode(nodeID)
}

func (d *Distributor) removeNode(nodeID grid.NodeID) {
	d.mu.Lock()
	delete(d.nodes, nodeID)
	delete(d.model, nodeID)
	d.reportGridMetricsLocked()
	d.mu.Unlock()
	logger.Infow("distributor: removed node", "nodeId", nodeID)
}

// schedulerLoop runs the scheduling tick on its own goroutine, woken up
// either by a one-second fallback ticker or by a signal from an event
// that could plausibly unblock a pending request (spec.md §4.5.2).
func (d *Distributor) schedulerLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		case <-d.tickSignal:
			d.tick(ctx)
		}
	}
}

// tick implements spec.md §4.5.2's scheduling algorithm.
func (d *Distributor) tick(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer d.reportGridMetricsLocked() // runs before Unlock: defers execute LIFO

	if !d.anyNodeHasCapacityLocked() {
		d.recordTick("noop")
		return
	}

	for {
		reqID, ok := d.popPendingLocked()
		if !ok {
			return
		}
		req, ok := d.queue.Remove(reqID)
		if !ok {
			// Already timed out, or claimed by a concurrent scheduler.
			continue
		}
		if d.tryMatchLocked(ctx, req) {
			d.recordTick("matched")
			continue
		}
		if d.queue.RetryAdd(req) {
			d.recordTick("retried")
			continue
		}
		d.bus.Publish(eventbus.TopicNewSessionRejected, queue.RejectedEvent{
			RequestID: req.RequestID,
			Message:   "no node had matching capacity before the request's deadline",
		})
		d.recordTick("rejected")
	}
}

func (d *Distributor) recordTick(outcome string) {
	if d.metrics != nil {
		d.metrics.SchedulerTicks.WithLabelValues(outcome).Inc()
	}
}

func (d *Distributor) recordSessionResult(result string) {
	if d.metrics != nil {
		d.metrics.SessionsCreatedTotal.WithLabelValues(result).Inc()
	}
}

// reportGridMetricsLocked recomputes the grid-wide gauges from d.model.
// Callers must hold d.mu (read or write) for the duration of the call.
func (d *Distributor) reportGridMetricsLocked() {
	if d.metrics == nil {
		return
	}
	var free, busy int
	for _, entry := range d.model {
		for i := range entry.Status.Slots {
			switch {
			case entry.Status.Slots[i].Session != nil:
				busy++
			case entry.Status.Slots[i].Free():
				free++
			}
		}
	}
	d.metrics.ObserveNodeStatuses(len(d.model), free, busy)
}

func (d *Distributor) popPendingLocked() (grid.RequestID, bool) {
	front := d.pendingList.Front()
	if front == nil {
		return "", false
	}
	reqID := front.Value.(grid.RequestID)
	d.pendingList.Remove(front)
	delete(d.pendingIndex, reqID)
	return reqID, true
}

func (d *Distributor) anyNodeHasCapacityLocked() bool {
	for _, entry := range d.model {
		if entry.Status.Availability == grid.Up && entry.Status.FreeSlotCount() > 0 {
			return true
		}
	}
	return false
}

// tryMatchLocked attempts every capability choice on req in order,
// reserving the first candidate slot whose node accepts the session.
// It returns true once the request has reached a terminal outcome
// (matched or rejected outright) and false if the caller should retry
// the request at the head of the queue.
func (d *Distributor) tryMatchLocked(ctx context.Context, req *grid.SessionRequest) bool {
	statuses := make(map[grid.NodeID]grid.NodeStatus, len(d.model))
	for id, entry := range d.model {
		statuses[id] = entry.Status
	}

	for _, want := range req.CapabilityChoices {
		candidates := d.selector.Select(statuses, want)
		for _, c := range candidates {
			n, ok := d.nodes[c.NodeID]
			if !ok {
				continue
			}
			d.reserveLocked(c)
			session, err := n.NewSession(ctx, c.SlotID, want)
			if err == nil {
				d.commitSessionLocked(c, session)
				if addErr := d.sessionMap.Add(ctx, session.ID, n.URI()); addErr != nil {
					logger.Errorw("distributor: session map add failed after successful node creation", "sessionId", session.ID, "err", addErr)
				}
				d.bus.Publish(eventbus.TopicNewSessionResponse, queue.ResponseEvent{
					RequestID: req.RequestID,
					Session:   session,
					NodeURI:   n.URI(),
				})
				d.recordSessionResult("success")
				return true
			}
			d.releaseReservationLocked(c)
			// spec.md §7: a Transport failure during newSession is
			// mapped to RetryableRequest, not propagated as fatal —
			// it means the node couldn't be reached, not that the
			// request itself is unservable.
			if errors.IsRetryableRequest(err) || errors.IsTransport(err) {
				d.recordSessionResult("retryable")
				continue // try the next candidate
			}
			// Fatal failure: terminal outcome, reject outright.
			d.bus.Publish(eventbus.TopicNewSessionRejected, queue.RejectedEvent{
				RequestID: req.RequestID,
				Message:   err.Error(),
			})
			d.recordSessionResult("fatal")
			return true
		}
	}
	return false
}

func (d *Distributor) reserveLocked(c Candidate) {
	entry, ok := d.model[c.NodeID]
	if !ok {
		return
	}
	for i := range entry.Status.Slots {
		if entry.Status.Slots[i].ID == c.SlotID {
			entry.Status.Slots[i].Reserved = true
		}
	}
	d.model[c.NodeID] = entry
}

func (d *Distributor) releaseReservationLocked(c Candidate) {
	entry, ok := d.model[c.NodeID]
	if !ok {
		return
	}
	for i := range entry.Status.Slots {
		if entry.Status.Slots[i].ID == c.SlotID {
			entry.Status.Slots[i].Reserved = false
		}
	}
	d.model[c.NodeID] = entry
}

func (d *Distributor) commitSessionLocked(c Candidate, session grid.Session) {
	entry, ok := d.model[c.NodeID]
	if !ok {
		return
	}
	for i := range entry.Status.Slots {
		if entry.Status.Slots[i].ID == c.SlotID {
			entry.Status.Slots[i].Reserved = false
			entry.Status.Slots[i].Session = &session
		}
	}
	d.model[c.NodeID] = entry
}

// healthcheckLoop pings every node off the write lock (spec.md §5:
// "health-check I/O MUST NOT be done under the write lock") and applies
// only the pass/fail result under lock.
func (d *Distributor) healthcheckLoop(ctx context.Context) {
	defer d.wg.Done()
	interval := d.cfg.HealthcheckInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runHealthChecks(ctx)
		}
	}
}

func (d *Distributor) runHealthChecks(ctx context.Context) {
	d.mu.RLock()
	snapshot := make(map[grid.NodeID]node.Node, len(d.nodes))
	for id, n := range d.nodes {
		snapshot[id] = n
	}
	d.mu.RUnlock()

	type result struct {
		err    error
		status grid.NodeStatus
		hasNew bool
	}
	results := make(map[grid.NodeID]result, len(snapshot))
	for id, n := range snapshot {
		err := n.HealthCheck(ctx)
		r := result{err: err}
		if err == nil {
			if status, statusErr := n.Status(ctx); statusErr == nil {
				r.status, r.hasNew = status, true
			}
		}
		results[id] = r
	}

	d.mu.Lock()
	for id, r := range results {
		entry, ok := d.model[id]
		if !ok {
			continue
		}
		if r.err != nil {
			entry.Status.Availability = grid.Down
			d.model[id] = entry
			continue
		}
		if r.hasNew {
			entry.Status = r.status
		} else if entry.Status.Availability == grid.Down {
			entry.Status.Availability = grid.Up
		}
		entry.LastHeartbeat = time.Now()
		d.model[id] = entry
	}
	d.reportGridMetricsLocked()
	d.mu.Unlock()
}

// purgeLoop drops nodes whose last heartbeat predates the purge
// threshold, cancelling their health check (spec.md §4.5.1).
func (d *Distributor) purgeLoop(ctx context.Context) {
	defer d.wg.Done()
	interval := d.cfg.PurgeInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.purgeStale(interval)
		}
	}
}

func (d *Distributor) purgeStale(threshold time.Duration) {
	cutoff := time.Now().Add(-threshold)

	d.mu.Lock()
	var stale []grid.NodeID
	for id, entry := range d.model {
		if entry.LastHeartbeat.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(d.nodes, id)
		delete(d.model, id)
	}
	d.reportGridMetricsLocked()
	d.mu.Unlock()

	for _, id := range stale {
		logger.Warnw("distributor: purged stale node", "nodeId", id)
	}
}
