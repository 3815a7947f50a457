package grid

import (
	"time"

	"github.com/stacklok/gridcore/pkg/capabilities"
)

// Availability describes the health/lifecycle state of a node.
type Availability string

// Node availability states, per spec.
const (
	Up       Availability = "UP"
	Draining Availability = "DRAINING"
	Down     Availability = "DOWN"
)

// Session is a single running browser session occupying a slot.
type Session struct {
	ID         SessionID `json:"id"`
	Stereotype capabilities.Capabilities `json:"stereotype"`
	StartedAt  time.Time `json:"startedAt"`
}

// Slot is a single concurrency unit on a node. It holds at most one
// session at a time and is described by a stereotype: the capability
// template it advertises it can satisfy.
type Slot struct {
	ID         SlotID                    `json:"id"`
	Stereotype capabilities.Capabilities `json:"stereotype"`
	Session    *Session                  `json:"session,omitempty"`
	// Reserved marks a slot that has been claimed by the scheduler but
	// does not yet have a confirmed session (see distributor tick).
	Reserved bool `json:"reserved"`
	// LastUsed is the time the slot last transitioned from busy to free,
	// used by the default slot selector's tie-break.
	LastUsed time.Time `json:"lastUsed"`
}

// Free reports whether the slot can accept a new session.
func (s *Slot) Free() bool {
	return s.Session == nil && !s.Reserved
}

// Matches reports whether the slot's stereotype satisfies every
// non-null capability requested in want.
func (s *Slot) Matches(want capabilities.Capabilities) bool {
	return s.Stereotype.Satisfies(want)
}

// OSInfo describes the host operating system a node runs on.
type OSInfo struct {
	Arch    string `json:"arch"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// NodeStatus is a point-in-time snapshot of a node's state, as reported
// by the node itself and mirrored into the distributor's grid model.
type NodeStatus struct {
	NodeID                NodeID       `json:"nodeId"`
	URI                   string       `json:"uri"`
	Availability          Availability `json:"availability"`
	MaxConcurrentSessions int          `json:"maxConcurrentSessions"`
	Slots                 []Slot       `json:"slots"`
	Version               string       `json:"version"`
	OSInfo                OSInfo       `json:"osInfo"`
}

// HasCapacity reports whether at least one slot on the node is free and
// whose stereotype could satisfy want.
func (n *NodeStatus) HasCapacity(want capabilities.Capabilities) bool {
	if n.Availability == Down || n.Availability == Draining {
		return false
	}
	for i := range n.Slots {
		if n.Slots[i].Free() && n.Slots[i].Matches(want) {
			return true
		}
	}
	return false
}

// FreeSlotCount returns the number of free slots on the node, used by
// the default slot selector's first tie-break.
func (n *NodeStatus) FreeSlotCount() int {
	count := 0
	for i := range n.Slots {
		if n.Slots[i].Free() {
			count++
		}
	}
	return count
}

// SessionRequest is a pending session creation request. CapabilityChoices
// is a set of alternative capability profiles; the matcher tries them in
// iteration order (see DESIGN.md for the resolved Open Question on
// whether alternatives beyond the first are reachable).
type SessionRequest struct {
	RequestID          RequestID                   `json:"requestId"`
	EnqueuedAt         time.Time                   `json:"enqueuedAt"`
	Dialects           []string                    `json:"dialects"`
	CapabilityChoices  []capabilities.Capabilities `json:"capabilitiesChoices"`
}

// ModelEntry augments a NodeStatus with the distributor's bookkeeping:
// the last time a heartbeat or status report was received for the node.
type ModelEntry struct {
	Status        NodeStatus
	LastHeartbeat time.Time
}
