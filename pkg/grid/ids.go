// Package grid defines the core data model shared by every component of
// the session distribution core: node and slot identity, availability,
// session requests, and the distributor's materialized grid model.
package grid

import "github.com/google/uuid"

// NodeID is an opaque, globally-unique identifier minted at node start-up.
type NodeID string

// NewNodeID mints a fresh NodeID.
func NewNodeID() NodeID {
	return NodeID(uuid.NewString())
}

// SlotLocalID is stable for a slot's lifetime, unique within its node.
type SlotLocalID string

// SlotID identifies a slot on a specific node.
type SlotID struct {
	NodeID NodeID      `json:"nodeId"`
	Local  SlotLocalID `json:"slotId"`
}

// RequestID is an opaque, unique identifier per session request.
type RequestID string

// NewRequestID mints a fresh RequestID.
func NewRequestID() RequestID {
	return RequestID(uuid.NewString())
}

// SessionID is an opaque, unique identifier per created session, chosen
// by the node that hosts it.
type SessionID string

// NewSessionID mints a fresh SessionID.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}
