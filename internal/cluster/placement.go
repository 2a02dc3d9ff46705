package cluster

import "errors"

// ErrNoEligibleTarget is returned when no live NORMAL node can accept a new
// replica. It is a liveness concern, not a failure: the block is retried on
// the next scan cycle.
var ErrNoEligibleTarget = errors.New("no eligible replication target")

// PlacementPolicy selects a node to receive a new replica of a block.
// Rack-aware and other placement strategies plug in here.
type PlacementPolicy interface {
	// ChooseTarget returns the address of a node that should receive a new
	// replica of blockID. holders are the addresses already carrying one.
	ChooseTarget(blockID string, holders []string, candidates []Node) (string, error)
}

// LeastUsedPlacement picks the eligible node with the most free capacity.
// Eligible means live, reachable, NORMAL and not already holding the block.
type LeastUsedPlacement struct{}

// ChooseTarget implements PlacementPolicy
func (LeastUsedPlacement) ChooseTarget(blockID string, holders []string, candidates []Node) (string, error) {
	holding := make(map[string]struct{}, len(holders))
	for _, addr := range holders {
		holding[addr] = struct{}{}
	}

	var best string
	var bestFree uint64
	found := false
	for _, node := range candidates {
		if node.State != StateNormal || !node.Reachable {
			continue
		}
		if _, ok := holding[node.Address]; ok {
			continue
		}
		free := node.Capacity - node.Used
		if node.Capacity < node.Used {
			free = 0
		}
		if !found || free > bestFree {
			best = node.Address
			bestFree = free
			found = true
		}
	}
	if !found {
		return "", ErrNoEligibleTarget
	}
	return best, nil
}
