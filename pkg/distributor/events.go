package distributor

import "github.com/stacklok/gridcore/pkg/grid"

// NodeStatusEvent is published on TopicNodeStatus whenever a node
// reports its full status (spec.md §4.5.1, registration path (b)).
type NodeStatusEvent struct {
	Status grid.NodeStatus
	Secret string
}

// NodeHeartBeatEvent is published on TopicNodeHeartBeat as a lighter
// "still alive" signal between full status reports.
type NodeHeartBeatEvent struct {
	NodeID grid.NodeID
	URI    string
	Secret string
}

// Nodes publish TopicNodeDrainComplete with the bare grid.NodeID as
// payload once their last in-flight session ends after Drain was
// called; see (*Distributor).onDrainComplete.

// AddedEvent is published on TopicNodeAdded once a node is fully
// registered, whether directly or derived from an event.
type AddedEvent struct {
	NodeID grid.NodeID
	URI    string
}
