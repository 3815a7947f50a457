package distributor

import (
	"sort"

	"github.com/stacklok/gridcore/pkg/capabilities"
	"github.com/stacklok/gridcore/pkg/grid"
)

// Candidate is a free slot the SlotSelector judges able to satisfy a
// capability request, ranked best-first.
type Candidate struct {
	NodeID grid.NodeID
	SlotID grid.SlotID
}

// SlotSelector picks candidate slots for a capability request out of a
// snapshot of node statuses (spec.md §4.5.2: "ask the SlotSelector to
// produce a ranked list of candidate slots").
type SlotSelector interface {
	Select(nodes map[grid.NodeID]grid.NodeStatus, want capabilities.Capabilities) []Candidate
}

// DefaultSlotSelector implements the tie-break order from spec.md §4.5.2:
// more free slots on the node first, then older LastUsed, then NodeID
// for determinism.
type DefaultSlotSelector struct{}

// Select implements SlotSelector.
func (DefaultSlotSelector) Select(nodes map[grid.NodeID]grid.NodeStatus, want capabilities.Capabilities) []Candidate {
	type ranked struct {
		candidate     Candidate
		freeSlotCount int
		lastUsed      int64
	}

	var all []ranked
	for nodeID, status := range nodes {
		if status.Availability != grid.Up {
			continue
		}
		freeCount := status.FreeSlotCount()
		for i := range status.Slots {
			slot := &status.Slots[i]
			if !slot.Free() || !slot.Matches(want) {
				continue
			}
			all = append(all, ranked{
				candidate:     Candidate{NodeID: nodeID, SlotID: slot.ID},
				freeSlotCount: freeCount,
				lastUsed:      slot.LastUsed.UnixNano(),
			})
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].freeSlotCount != all[j].freeSlotCount {
			return all[i].freeSlotCount > all[j].freeSlotCount
		}
		if all[i].lastUsed != all[j].lastUsed {
			return all[i].lastUsed < all[j].lastUsed
		}
		return all[i].candidate.NodeID < all[j].candidate.NodeID
	})

	out := make([]Candidate, len(all))
	for i, r := range all {
		out[i] = r.candidate
	}
	return out
}
