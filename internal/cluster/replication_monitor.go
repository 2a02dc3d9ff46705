package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultScanInterval    = 10 * time.Second
	maxConcurrentTransfers = 5
)

// BlockStore is the slice of the block-metadata layer the monitor reads and
// appends to. Replica entries are only ever added, never removed.
type BlockStore interface {
	ReplicaAddrs(blockID string) ([]string, error)
	DesiredReplication(blockID string) (int, error)
	AddReplica(blockID, addr string) error
}

// ReplicaCreator dispatches a replica-creation command: copy blockID from
// source onto target. The wire protocol behind it is a collaborator.
type ReplicaCreator interface {
	CreateReplica(ctx context.Context, blockID, source, target string) error
}

// Completer receives the signal that every block hosted by a decommissioning
// node has reached its live-replica threshold
type Completer interface {
	CompleteDecommission(addr string)
}

// targetState tracks scan progress for one decommissioning node
type targetState struct {
	unsafeBlocks int
	blockedReason string
}

// ReplicationMonitor is the background scanner that keeps block availability
// up while nodes decommission. Each cycle it enumerates the blocks hosted by
// every registered target, counts live replicas on non-decommissioning nodes,
// and schedules one additional replica for every block below its desired
// factor. A target whose blocks are all safe is reported complete.
type ReplicationMonitor struct {
	mu        sync.RWMutex
	view      *ClusterView
	blocks    BlockStore
	placement PlacementPolicy
	creator   ReplicaCreator
	completer Completer
	targets   map[string]*targetState
	interval  time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	logger    *zap.Logger

	// observer hooks, nil-safe; wired to prometheus by the caller
	onScan           func(duration time.Duration, pending, blocked int)
	onReplicaRequest func(ok bool)
}

// NewReplicationMonitor creates a monitor over the given view and block store
func NewReplicationMonitor(view *ClusterView, blocks BlockStore, placement PlacementPolicy, creator ReplicaCreator, interval time.Duration, logger *zap.Logger) *ReplicationMonitor {
	if interval <= 0 {
		interval = defaultScanInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplicationMonitor{
		view:      view,
		blocks:    blocks,
		placement: placement,
		creator:   creator,
		targets:   make(map[string]*targetState),
		interval:  interval,
		stopCh:    make(chan struct{}),
		logger:    logger,
	}
}

// SetCompleter wires the decommission state machine's completion signal
func (rm *ReplicationMonitor) SetCompleter(c Completer) {
	rm.completer = c
}

// SetObservers installs optional metric hooks
func (rm *ReplicationMonitor) SetObservers(onScan func(time.Duration, int, int), onReplicaRequest func(bool)) {
	rm.onScan = onScan
	rm.onReplicaRequest = onReplicaRequest
}

// RegisterTarget adds a node to the scan set. Registering an existing target
// is a no-op.
func (rm *ReplicationMonitor) RegisterTarget(addr string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, exists := rm.targets[addr]; exists {
		return
	}
	rm.targets[addr] = &targetState{}
	rm.logger.Info("replication target registered", zap.String("node", addr))
}

// CancelTarget drops a node from the scan set. In-flight replica requests are
// allowed to finish; extra replicas are never harmful.
func (rm *ReplicationMonitor) CancelTarget(addr string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.targets, addr)
}

// BlockedReason returns why the node's decommission is not progressing, or
// empty if it is
func (rm *ReplicationMonitor) BlockedReason(addr string) string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	if t, ok := rm.targets[addr]; ok {
		return t.blockedReason
	}
	return ""
}

// PendingBlocks returns how many of the node's blocks are still below their
// live-replica threshold as of the last scan
func (rm *ReplicationMonitor) PendingBlocks(addr string) int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	if t, ok := rm.targets[addr]; ok {
		return t.unsafeBlocks
	}
	return 0
}

// Start begins the periodic scan
func (rm *ReplicationMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(rm.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-rm.stopCh:
				return
			case <-ticker.C:
				rm.Scan(ctx)
			}
		}
	}()
}

// Stop stops the scan loop and waits for in-flight replica requests
func (rm *ReplicationMonitor) Stop() {
	rm.stopOnce.Do(func() {
		close(rm.stopCh)
	})
	rm.wg.Wait()
}

// Scan runs one full pass over every registered target. Exported so callers
// can force a cycle without waiting for the ticker.
func (rm *ReplicationMonitor) Scan(ctx context.Context) {
	start := time.Now()

	rm.mu.RLock()
	addrs := make([]string, 0, len(rm.targets))
	for addr := range rm.targets {
		addrs = append(addrs, addr)
	}
	rm.mu.RUnlock()

	// Node snapshots are taken once per cycle; heartbeat writers are never
	// blocked for the duration of a scan.
	nodes := rm.view.Snapshot()
	states := make(map[string]Node, len(nodes))
	for _, node := range nodes {
		states[node.Address] = node
	}

	totalPending, totalBlocked := 0, 0
	for _, addr := range addrs {
		pending, blocked := rm.scanNode(ctx, addr, states)
		totalPending += pending
		totalBlocked += blocked
	}

	if rm.onScan != nil {
		rm.onScan(time.Since(start), totalPending, totalBlocked)
	}
}

// scanNode checks every block hosted by one decommissioning node and tops up
// replicas where the live count is short. Returns the number of blocks still
// unsafe and of those how many are blocked for lack of a target.
func (rm *ReplicationMonitor) scanNode(ctx context.Context, addr string, states map[string]Node) (pending, blocked int) {
	hosted, err := rm.view.BlocksOf(addr)
	if err != nil {
		// Node vanished from the view; nothing to scan.
		return 0, 0
	}

	var blockedReason string
	sem := make(chan struct{}, maxConcurrentTransfers)

	for _, blockID := range hosted {
		safe, reason := rm.ensureBlockSafe(ctx, blockID, states, sem)
		if safe {
			continue
		}
		pending++
		if reason != "" {
			blocked++
			blockedReason = reason
		}
	}
	rm.wg.Wait()

	rm.mu.Lock()
	t, ok := rm.targets[addr]
	if !ok {
		// Cancelled mid-scan by a re-commission.
		rm.mu.Unlock()
		return pending, blocked
	}
	t.unsafeBlocks = pending
	t.blockedReason = blockedReason
	rm.mu.Unlock()

	if pending == 0 && rm.completer != nil {
		rm.completer.CompleteDecommission(addr)
	}
	return pending, blocked
}

// ensureBlockSafe counts the block's live non-decommissioning replicas and
// schedules one more if short. Returns whether the block already meets its
// threshold, and a blocked reason when no progress could be made.
func (rm *ReplicationMonitor) ensureBlockSafe(ctx context.Context, blockID string, states map[string]Node, sem chan struct{}) (bool, string) {
	holders, err := rm.blocks.ReplicaAddrs(blockID)
	if err != nil {
		rm.logger.Warn("block missing from metadata", zap.String("block", blockID), zap.Error(err))
		return false, fmt.Sprintf("block %s missing from metadata", blockID)
	}
	desired, err := rm.blocks.DesiredReplication(blockID)
	if err != nil {
		return false, fmt.Sprintf("block %s missing from metadata", blockID)
	}

	live := 0
	var source string
	for _, holder := range holders {
		node, ok := states[holder]
		if !ok || !node.Reachable {
			continue
		}
		if source == "" {
			// Any reachable holder can serve the copy, a decommissioning
			// node included; it still serves reads.
			source = holder
		}
		if node.State == StateNormal {
			live++
		}
	}
	if live >= desired {
		return true, ""
	}

	if source == "" {
		return false, fmt.Sprintf("block %s has no reachable replica to copy from", blockID)
	}

	candidates := make([]Node, 0, len(states))
	for _, node := range states {
		candidates = append(candidates, node)
	}
	target, err := rm.placement.ChooseTarget(blockID, holders, candidates)
	if err != nil {
		return false, fmt.Sprintf("block %s: %v", blockID, err)
	}

	rm.wg.Add(1)
	sem <- struct{}{}
	go func() {
		defer rm.wg.Done()
		defer func() { <-sem }()
		rm.createReplica(ctx, blockID, source, target)
	}()
	return false, ""
}

// createReplica dispatches one replica-creation request and records the new
// holder on success
func (rm *ReplicationMonitor) createReplica(ctx context.Context, blockID, source, target string) {
	err := rm.creator.CreateReplica(ctx, blockID, source, target)
	if rm.onReplicaRequest != nil {
		rm.onReplicaRequest(err == nil)
	}
	if err != nil {
		rm.logger.Warn("replica creation failed",
			zap.String("block", blockID),
			zap.String("target", target),
			zap.Error(err))
		return
	}
	if err := rm.blocks.AddReplica(blockID, target); err != nil {
		rm.logger.Warn("failed to record new replica",
			zap.String("block", blockID),
			zap.String("target", target),
			zap.Error(err))
		return
	}
	rm.logger.Info("replica created",
		zap.String("block", blockID),
		zap.String("source", source),
		zap.String("target", target))
}
