// Package node implements the Node component (spec.md §4.4): a fixed
// set of slots, each with a stereotype, holding at most one session.
// Session creation and execution are delegated to a SessionFactory —
// a black box that knows how to actually launch and drive a browser.
package node

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/stacklok/gridcore/pkg/capabilities"
	"github.com/stacklok/gridcore/pkg/errors"
	"github.com/stacklok/gridcore/pkg/eventbus"
	"github.com/stacklok/gridcore/pkg/grid"
	"github.com/stacklok/gridcore/pkg/logger"
)

//go:generate mockgen -destination=mocks/mock_sessionfactory.go -package=mocks -source=node.go SessionFactory

// SessionFactory is the black box that actually launches a browser
// session (spec.md §1: "a SessionFactory is a black box: given
// capabilities, it either produces an ActiveSession or reports a typed
// failure"). Implementations might shell out to a local WebDriver
// binary, talk to a container runtime, or proxy to a cloud provider;
// none of that is this package's concern.
type SessionFactory interface {
	// NewSession launches a session satisfying want on a slot advertising
	// stereotype. A transient failure (all compatible capacity just
	// disappeared, a temporary resource shortage) must be reported as a
	// RetryableRequest error so the caller can distinguish it from a
	// fatal one.
	NewSession(ctx context.Context, stereotype, want capabilities.Capabilities) (grid.Session, error)
	// StopSession releases whatever resources back sessionID.
	StopSession(ctx context.Context, sessionID grid.SessionID) error
	// ExecuteWebDriverCommand proxies a single WebDriver wire-protocol
	// call to the session, returning the upstream status code and body.
	ExecuteWebDriverCommand(ctx context.Context, sessionID grid.SessionID, method, path string, body []byte) (int, []byte, error)
}

// Node is the contract the distributor depends on, implemented by both
// Local (an in-process slot pool) and a remote HTTP handle.
type Node interface {
	// NewSession atomically claims slotID if it is still free and
	// matches want, then invokes the factory. Returns a RetryableRequest
	// error if the slot is no longer available.
	NewSession(ctx context.Context, slotID grid.SlotID, want capabilities.Capabilities) (grid.Session, error)
	ExecuteWebDriverCommand(ctx context.Context, sessionID grid.SessionID, method, path string, body []byte) (int, []byte, error)
	Stop(ctx context.Context, sessionID grid.SessionID) error
	Status(ctx context.Context) (grid.NodeStatus, error)
	HealthCheck(ctx context.Context) error
	Drain(ctx context.Context) error
	IsDraining() bool
	URI() string
	ID() grid.NodeID
}

// Local is an in-process Node: the slot pool lives in this struct and
// the factory is called directly, with no network hop.
type Local struct {
	mu                    sync.Mutex
	id                    grid.NodeID
	uri                   string
	maxConcurrentSessions int
	slots                 []grid.Slot
	sessionToSlot         map[grid.SessionID]int
	factory               SessionFactory
	version               string
	osInfo                grid.OSInfo
	draining              bool
	bus                   eventbus.Bus
}

// NewLocal builds a Local node with one slot per entry in stereotypes.
func NewLocal(id grid.NodeID, uri string, stereotypes []capabilities.Capabilities, factory SessionFactory, version string, osInfo grid.OSInfo, bus eventbus.Bus) *Local {
	slots := make([]grid.Slot, len(stereotypes))
	for i, st := range stereotypes {
		slots[i] = grid.Slot{
			ID:         grid.SlotID{NodeID: id, Local: grid.SlotLocalID(strconv.Itoa(i))},
			Stereotype: st,
		}
	}
	return &Local{
		id:                    id,
		uri:                   uri,
		maxConcurrentSessions: len(slots),
		slots:                 slots,
		sessionToSlot:         make(map[grid.SessionID]int),
		factory:               factory,
		version:               version,
		osInfo:                osInfo,
		bus:                   bus,
	}
}

// ID implements Node.
func (n *Local) ID() grid.NodeID { return n.id }

// URI implements Node.
func (n *Local) URI() string { return n.uri }

// NewSession implements Node. Operations on the slot set are serialized
// per node (spec.md §4.4: "Concurrency: operations on the slot set are
// serialized per node").
func (n *Local) NewSession(ctx context.Context, slotID grid.SlotID, want capabilities.Capabilities) (grid.Session, error) {
	n.mu.Lock()
	if n.draining {
		n.mu.Unlock()
		return grid.Session{}, errors.NewRetryableRequestError("node is draining", nil)
	}
	idx := n.indexOf(slotID)
	if idx < 0 {
		n.mu.Unlock()
		return grid.Session{}, errors.NewNotFoundError("no such slot on this node", nil)
	}
	slot := &n.slots[idx]
	if !slot.Free() || !slot.Matches(want) {
		n.mu.Unlock()
		return grid.Session{}, errors.NewRetryableRequestError("slot no longer free or matching", nil)
	}
	slot.Reserved = true
	stereotype := slot.Stereotype
	n.mu.Unlock()

	session, err := n.factory.NewSession(ctx, stereotype, want)

	n.mu.Lock()
	defer n.mu.Unlock()
	slot.Reserved = false
	if err != nil {
		return grid.Session{}, err
	}
	slot.Session = &session
	n.sessionToSlot[session.ID] = idx
	return session, nil
}

// ExecuteWebDriverCommand implements Node.
func (n *Local) ExecuteWebDriverCommand(ctx context.Context, sessionID grid.SessionID, method, path string, body []byte) (int, []byte, error) {
	if !n.hasSession(sessionID) {
		return 0, nil, errors.NewNoSuchSessionError("no such session on this node", nil)
	}
	return n.factory.ExecuteWebDriverCommand(ctx, sessionID, method, path, body)
}

// Stop implements Node, freeing the slot that held sessionID.
func (n *Local) Stop(ctx context.Context, sessionID grid.SessionID) error {
	if !n.hasSession(sessionID) {
		return errors.NewNoSuchSessionError("no such session on this node", nil)
	}
	if err := n.factory.StopSession(ctx, sessionID); err != nil {
		return err
	}

	n.mu.Lock()
	idx, ok := n.sessionToSlot[sessionID]
	draining := n.draining
	var empty bool
	if ok {
		delete(n.sessionToSlot, sessionID)
		n.slots[idx].Session = nil
		n.slots[idx].LastUsed = time.Now()
		empty = n.allSlotsEmptyLocked()
	}
	n.mu.Unlock()

	if draining && empty && n.bus != nil {
		n.bus.Publish(eventbus.TopicNodeDrainComplete, grid.NodeID(n.id))
	}
	return nil
}

// Status implements Node, returning a point-in-time slot snapshot.
func (n *Local) Status(_ context.Context) (grid.NodeStatus, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	availability := grid.Up
	if n.draining {
		availability = grid.Draining
	}
	slots := make([]grid.Slot, len(n.slots))
	copy(slots, n.slots)

	return grid.NodeStatus{
		NodeID:                n.id,
		URI:                   n.uri,
		Availability:          availability,
		MaxConcurrentSessions: n.maxConcurrentSessions,
		Slots:                 slots,
		Version:               n.version,
		OSInfo:                n.osInfo,
	}, nil
}

// HealthCheck implements Node. A local node is always reachable by
// definition; a healthcheckable factory may still fail it.
func (n *Local) HealthCheck(ctx context.Context) error {
	if pinger, ok := n.factory.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// Drain implements Node: refuses further NewSession calls, and emits
// NodeDrainComplete immediately if there are no sessions in flight.
func (n *Local) Drain(_ context.Context) error {
	n.mu.Lock()
	n.draining = true
	empty := n.allSlotsEmptyLocked()
	n.mu.Unlock()

	logger.Infow("node draining", "nodeId", n.id)
	if empty && n.bus != nil {
		n.bus.Publish(eventbus.TopicNodeDrainComplete, grid.NodeID(n.id))
	}
	return nil
}

// IsDraining implements Node.
func (n *Local) IsDraining() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.draining
}

func (n *Local) indexOf(slotID grid.SlotID) int {
	for i := range n.slots {
		if n.slots[i].ID == slotID {
			return i
		}
	}
	return -1
}

func (n *Local) hasSession(sessionID grid.SessionID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.sessionToSlot[sessionID]
	return ok
}

func (n *Local) allSlotsEmptyLocked() bool {
	for i := range n.slots {
		if n.slots[i].Session != nil || n.slots[i].Reserved {
			return false
		}
	}
	return true
}
