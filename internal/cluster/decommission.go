package cluster

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReplicationScheduler is the slice of the replication monitor the
// decommission state machine drives: registering a node as a decommission
// target and cancelling its outstanding work on re-commission.
type ReplicationScheduler interface {
	RegisterTarget(addr string)
	CancelTarget(addr string)
	BlockedReason(addr string) string
}

// DecommissionManager owns the per-node decommission state machine.
// Transitions are driven by exclude-list deltas and replication-completion
// signals; state is observable only through read queries, never mutated by
// callers directly.
type DecommissionManager struct {
	mu        sync.Mutex
	view      *ClusterView
	excludes  *ExcludeListManager
	scheduler ReplicationScheduler
	logger    *zap.Logger
}

// NewDecommissionManager creates a DecommissionManager over the given view
// and exclude list
func NewDecommissionManager(view *ClusterView, excludes *ExcludeListManager, scheduler ReplicationScheduler, logger *zap.Logger) *DecommissionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecommissionManager{
		view:      view,
		excludes:  excludes,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Refresh re-reads the exclude list and applies the resulting deltas:
// newly added addresses start decommissioning, removed addresses are
// re-commissioned. Safe to call repeatedly with no change.
func (dm *DecommissionManager) Refresh(ctx context.Context) error {
	added, removed, err := dm.excludes.Refresh()
	if err != nil {
		return err
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	for _, addr := range added {
		dm.startDecommission(addr)
	}
	for _, addr := range removed {
		dm.recommission(addr)
	}
	return nil
}

// NodeRegistered handles first-seen node registration. A node that registers
// while already on the exclude list starts decommissioning immediately.
func (dm *DecommissionManager) NodeRegistered(addr string) {
	if !dm.excludes.Contains(addr) {
		return
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.startDecommission(addr)
}

// CompleteDecommission is the replication monitor's completion signal: every
// block hosted by the node has reached its live-replica threshold. It is the
// only path into the terminal state.
func (dm *DecommissionManager) CompleteDecommission(addr string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	node, err := dm.view.Get(addr)
	if err != nil {
		return
	}
	if node.State != StateDecommissionInProgress {
		return
	}
	// Guard against a refresh racing the final scan: a node pulled off the
	// exclude list must not land in DECOMMISSIONED.
	if !dm.excludes.Contains(addr) {
		return
	}

	if err := dm.view.setState(addr, StateDecommissioned); err != nil {
		return
	}
	dm.scheduler.CancelTarget(addr)
	dm.logger.Info("node decommissioned", zap.String("node", addr))
}

// StateOf returns the node's current decommission state. It is a side-effect
// free read, suitable for bounded poll loops.
func (dm *DecommissionManager) StateOf(addr string) (NodeState, error) {
	node, err := dm.view.Get(addr)
	if err != nil {
		return StateNormal, err
	}
	return node.State, nil
}

// NodeStatus returns the full read-only status for one node
func (dm *DecommissionManager) NodeStatus(addr string) (NodeStatus, error) {
	node, err := dm.view.Get(addr)
	if err != nil {
		return NodeStatus{}, err
	}
	return dm.statusOf(node), nil
}

// NodeReport returns the status of every known node
func (dm *DecommissionManager) NodeReport() []NodeStatus {
	nodes := dm.view.Snapshot()
	report := make([]NodeStatus, 0, len(nodes))
	for _, node := range nodes {
		report = append(report, dm.statusOf(node))
	}
	return report
}

func (dm *DecommissionManager) statusOf(node Node) NodeStatus {
	status := NodeStatus{
		Address:                  node.Address,
		State:                    node.State.String(),
		LastHeartbeatAge:         time.Since(node.LastHeartbeat),
		Reachable:                node.Reachable,
		IsDecommissionInProgress: node.State == StateDecommissionInProgress,
		IsDecommissioned:         node.State == StateDecommissioned,
		Capacity:                 node.Capacity,
		Used:                     node.Used,
		HostedBlocks:             len(node.Blocks),
	}
	if status.IsDecommissionInProgress {
		status.BlockedReason = dm.scheduler.BlockedReason(node.Address)
	}
	return status
}

// startDecommission moves a NORMAL node to DECOMMISSION_INPROGRESS and hands
// it to the replication monitor. Nodes already decommissioning or
// decommissioned are left alone. Callers hold dm.mu.
func (dm *DecommissionManager) startDecommission(addr string) {
	node, err := dm.view.Get(addr)
	if err != nil {
		// Not registered yet; NodeRegistered picks it up on first heartbeat.
		dm.logger.Debug("excluded node not yet registered", zap.String("node", addr))
		return
	}
	if node.State != StateNormal {
		return
	}

	if err := dm.view.setState(addr, StateDecommissionInProgress); err != nil {
		return
	}
	dm.scheduler.RegisterTarget(addr)
	dm.logger.Info("decommission started", zap.String("node", addr))
}

// recommission resets a node removed from the exclude list back to NORMAL and
// cancels its outstanding replication work. Already-created replicas are
// never retracted. Callers hold dm.mu.
func (dm *DecommissionManager) recommission(addr string) {
	node, err := dm.view.Get(addr)
	if err != nil {
		return
	}
	if node.State == StateNormal {
		return
	}

	if err := dm.view.setState(addr, StateNormal); err != nil {
		return
	}
	dm.scheduler.CancelTarget(addr)
	dm.logger.Info("node re-commissioned", zap.String("node", addr))
}
