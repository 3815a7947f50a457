package distributor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/gridcore/pkg/capabilities"
	"github.com/stacklok/gridcore/pkg/grid"
)

func slot(nodeID grid.NodeID, local grid.SlotLocalID, free bool, lastUsed time.Time) grid.Slot {
	s := grid.Slot{
		ID:         grid.SlotID{NodeID: nodeID, Local: local},
		Stereotype: capabilities.Capabilities{"browserName": "cheese"},
		LastUsed:   lastUsed,
	}
	if !free {
		s.Reserved = true
	}
	return s
}

func TestSelectPrefersMoreFreeSlots(t *testing.T) {
	nodes := map[grid.NodeID]grid.NodeStatus{
		"a": {NodeID: "a", Availability: grid.Up, Slots: []grid.Slot{slot("a", "0", true, time.Time{})}},
		"b": {NodeID: "b", Availability: grid.Up, Slots: []grid.Slot{
			slot("b", "0", true, time.Time{}),
			slot("b", "1", true, time.Time{}),
		}},
	}

	got := DefaultSlotSelector{}.Select(nodes, capabilities.Capabilities{"browserName": "cheese"})
	require.Len(t, got, 3)
	assert.Equal(t, grid.NodeID("b"), got[0].NodeID)
}

func TestSelectTieBreaksByLastUsedThenNodeID(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	nodes := map[grid.NodeID]grid.NodeStatus{
		"b": {NodeID: "b", Availability: grid.Up, Slots: []grid.Slot{slot("b", "0", true, newer)}},
		"a": {NodeID: "a", Availability: grid.Up, Slots: []grid.Slot{slot("a", "0", true, older)}},
	}

	got := DefaultSlotSelector{}.Select(nodes, capabilities.Capabilities{"browserName": "cheese"})
	require.Len(t, got, 2)
	assert.Equal(t, grid.NodeID("a"), got[0].NodeID, "older LastUsed should be preferred")

	tied := map[grid.NodeID]grid.NodeStatus{
		"b": {NodeID: "b", Availability: grid.Up, Slots: []grid.Slot{slot("b", "0", true, older)}},
		"a": {NodeID: "a", Availability: grid.Up, Slots: []grid.Slot{slot("a", "0", true, older)}},
	}
	got = DefaultSlotSelector{}.Select(tied, capabilities.Capabilities{"browserName": "cheese"})
	require.Len(t, got, 2)
	assert.Equal(t, grid.NodeID("a"), got[0].NodeID, "equal LastUsed should fall back to NodeID order")
}

func TestSelectSkipsDownAndBusyAndMismatched(t *testing.T) {
	nodes := map[grid.NodeID]grid.NodeStatus{
		"down": {NodeID: "down", Availability: grid.Down, Slots: []grid.Slot{slot("down", "0", true, time.Time{})}},
		"busy": {NodeID: "busy", Availability: grid.Up, Slots: []grid.Slot{slot("busy", "0", false, time.Time{})}},
		"mismatched": {NodeID: "mismatched", Availability: grid.Up, Slots: []grid.Slot{
			{ID: grid.SlotID{NodeID: "mismatched", Local: "0"}, Stereotype: capabilities.Capabilities{"browserName": "firefox"}},
		}},
	}

	got := DefaultSlotSelector{}.Select(nodes, capabilities.Capabilities{"browserName": "cheese"})
	assert.Empty(t, got)
}
