package cluster

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNodeNotFound is returned by queries for an address absent from the cluster view
	ErrNodeNotFound = errors.New("node not found")
	// ErrUnknownNode is returned for heartbeats from unregistered nodes when
	// pre-registration is required
	ErrUnknownNode = errors.New("unknown node")
	// ErrEmptyAddress is returned when a node address is missing from a request
	ErrEmptyAddress = errors.New("node address cannot be empty")
)

// NodeState represents the decommission lifecycle state of a node
type NodeState int

const (
	// StateNormal indicates the node is a full cluster member
	StateNormal NodeState = iota
	// StateDecommissionInProgress indicates the node is on the exclude list and
	// its blocks are being re-replicated elsewhere
	StateDecommissionInProgress
	// StateDecommissioned indicates every block hosted by the node has reached
	// its live-replica threshold on other nodes
	StateDecommissioned
)

// String returns the administrator-facing name of the state
func (s NodeState) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateDecommissionInProgress:
		return "DECOMMISSION_INPROGRESS"
	case StateDecommissioned:
		return "DECOMMISSIONED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Node represents a storage node as last reported to the controller.
// Entries are owned by the ClusterView; liveness and inventory fields are
// written by the HeartbeatMonitor, the State field by the DecommissionManager.
type Node struct {
	// Address is the network address of the node (hostname or host:port)
	Address string
	// Capacity is the total storage capacity reported by the node, in bytes
	Capacity uint64
	// Used is the storage currently in use, in bytes
	Used uint64
	// LastHeartbeat is the time of the most recent heartbeat
	LastHeartbeat time.Time
	// Reachable is false once the node has missed the heartbeat timeout
	Reachable bool
	// State is the decommission lifecycle state
	State NodeState
	// Blocks is the set of block IDs the node reported hosting
	Blocks map[string]struct{}
}

// clone returns a deep copy, so snapshots never alias live inventory sets
func (n *Node) clone() Node {
	out := *n
	out.Blocks = make(map[string]struct{}, len(n.Blocks))
	for id := range n.Blocks {
		out.Blocks[id] = struct{}{}
	}
	return out
}

// HostsBlock reports whether the node's last inventory included the block
func (n *Node) HostsBlock(blockID string) bool {
	_, ok := n.Blocks[blockID]
	return ok
}

// NodeStatus is the read-only per-node view served by the reporting API
type NodeStatus struct {
	Address                 string        `json:"address"`
	State                   string        `json:"state"`
	LastHeartbeatAge        time.Duration `json:"last_heartbeat_age"`
	Reachable               bool          `json:"reachable"`
	IsDecommissionInProgress bool         `json:"is_decommission_in_progress"`
	IsDecommissioned        bool          `json:"is_decommissioned"`
	BlockedReason           string        `json:"blocked_reason,omitempty"`
	Capacity                uint64        `json:"capacity"`
	Used                    uint64        `json:"used"`
	HostedBlocks            int           `json:"hosted_blocks"`
}

// Report returns a human-readable status line for the node
func (s NodeStatus) Report() string {
	reach := "reachable"
	if !s.Reachable {
		reach = "unreachable"
	}
	line := fmt.Sprintf("%s: %s, %s, %d blocks, %d/%d bytes used, last heartbeat %s ago",
		s.Address, s.State, reach, s.HostedBlocks, s.Used, s.Capacity,
		s.LastHeartbeatAge.Truncate(time.Millisecond))
	if s.BlockedReason != "" {
		line += ", blocked: " + s.BlockedReason
	}
	return line
}
