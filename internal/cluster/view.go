package cluster

import (
	"sync"
	"time"
)

// ClusterView holds the controller's current picture of cluster membership.
// Each node entry has a single logical writer (the HeartbeatMonitor for
// liveness and inventory, the DecommissionManager for the state field);
// readers work from copies so scans never observe partial updates.
type ClusterView struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewClusterView creates an empty ClusterView
func NewClusterView() *ClusterView {
	return &ClusterView{
		nodes: make(map[string]*Node),
	}
}

// Get returns a copy of the node entry for the given address
func (cv *ClusterView) Get(addr string) (Node, error) {
	cv.mu.RLock()
	defer cv.mu.RUnlock()

	node, exists := cv.nodes[addr]
	if !exists {
		return Node{}, ErrNodeNotFound
	}
	return node.clone(), nil
}

// Has reports whether the address is known to the view
func (cv *ClusterView) Has(addr string) bool {
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	_, exists := cv.nodes[addr]
	return exists
}

// Snapshot returns a consistent copy of every node entry
func (cv *ClusterView) Snapshot() []Node {
	cv.mu.RLock()
	defer cv.mu.RUnlock()

	nodes := make([]Node, 0, len(cv.nodes))
	for _, node := range cv.nodes {
		nodes = append(nodes, node.clone())
	}
	return nodes
}

// BlocksOf returns the block IDs the node last reported hosting
func (cv *ClusterView) BlocksOf(addr string) ([]string, error) {
	cv.mu.RLock()
	defer cv.mu.RUnlock()

	node, exists := cv.nodes[addr]
	if !exists {
		return nil, ErrNodeNotFound
	}
	blocks := make([]string, 0, len(node.Blocks))
	for id := range node.Blocks {
		blocks = append(blocks, id)
	}
	return blocks, nil
}

// register creates a node entry on first contact. Returns false if the
// address was already registered.
func (cv *ClusterView) register(addr string, now time.Time) bool {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	if _, exists := cv.nodes[addr]; exists {
		return false
	}
	cv.nodes[addr] = &Node{
		Address:       addr,
		LastHeartbeat: now,
		Reachable:     true,
		State:         StateNormal,
		Blocks:        make(map[string]struct{}),
	}
	return true
}

// applyHeartbeat updates liveness, capacity and the inventory delta for a node
func (cv *ClusterView) applyHeartbeat(addr string, hb Heartbeat, now time.Time) error {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	node, exists := cv.nodes[addr]
	if !exists {
		return ErrNodeNotFound
	}

	node.LastHeartbeat = now
	node.Reachable = true
	node.Capacity = hb.Capacity
	node.Used = hb.Used
	for _, id := range hb.AddedBlocks {
		node.Blocks[id] = struct{}{}
	}
	for _, id := range hb.RemovedBlocks {
		delete(node.Blocks, id)
	}
	return nil
}

// replaceInventory installs a full block report, replacing the hosted set
func (cv *ClusterView) replaceInventory(addr string, blocks []string) error {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	node, exists := cv.nodes[addr]
	if !exists {
		return ErrNodeNotFound
	}

	inventory := make(map[string]struct{}, len(blocks))
	for _, id := range blocks {
		inventory[id] = struct{}{}
	}
	node.Blocks = inventory
	return nil
}

// setState atomically moves a node to the given decommission state
func (cv *ClusterView) setState(addr string, state NodeState) error {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	node, exists := cv.nodes[addr]
	if !exists {
		return ErrNodeNotFound
	}
	node.State = state
	return nil
}

// markUnreachable flags nodes whose last heartbeat is older than the cutoff.
// Decommission state is deliberately left untouched; a dead node
// mid-decommission stays DECOMMISSION_INPROGRESS.
func (cv *ClusterView) markUnreachable(cutoff time.Time) []string {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	var flagged []string
	for addr, node := range cv.nodes {
		if node.Reachable && node.LastHeartbeat.Before(cutoff) {
			node.Reachable = false
			flagged = append(flagged, addr)
		}
	}
	return flagged
}
