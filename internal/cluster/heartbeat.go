package cluster

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultHeartbeatInterval = 5 * time.Second
	defaultHeartbeatTimeout  = 30 * time.Second
)

// Heartbeat is a single liveness and inventory report from a storage node
type Heartbeat struct {
	// Capacity is the node's total storage capacity in bytes
	Capacity uint64 `json:"capacity"`
	// Used is the storage currently in use in bytes
	Used uint64 `json:"used"`
	// AddedBlocks lists block IDs newly hosted since the last report
	AddedBlocks []string `json:"added_blocks,omitempty"`
	// RemovedBlocks lists block IDs no longer hosted
	RemovedBlocks []string `json:"removed_blocks,omitempty"`
}

// Registrar is notified when a node is seen for the first time. The
// DecommissionManager uses this to catch nodes that register while already
// on the exclude list.
type Registrar interface {
	NodeRegistered(addr string)
}

// HeartbeatMonitor ingests node heartbeats into the ClusterView and runs the
// periodic sweep that flags missed-heartbeat timeouts
type HeartbeatMonitor struct {
	view                *ClusterView
	registrar           Registrar
	interval            time.Duration
	timeout             time.Duration
	requireRegistration bool
	stopCh              chan struct{}
	stopOnce            sync.Once
	logger              *zap.Logger
}

// NewHeartbeatMonitor creates a new HeartbeatMonitor over the given view
func NewHeartbeatMonitor(view *ClusterView, interval, timeout time.Duration, logger *zap.Logger) *HeartbeatMonitor {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	if timeout <= 0 {
		timeout = defaultHeartbeatTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeartbeatMonitor{
		view:     view,
		interval: interval,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

// SetRegistrar sets the first-seen notification target
func (hm *HeartbeatMonitor) SetRegistrar(r Registrar) {
	hm.registrar = r
}

// SetRequireRegistration makes heartbeats from unknown nodes fail with
// ErrUnknownNode instead of registering them
func (hm *HeartbeatMonitor) SetRequireRegistration(require bool) {
	hm.requireRegistration = require
}

// ReportHeartbeat records a heartbeat for the node at addr. Unknown addresses
// are registered as first-seen unless pre-registration is required.
func (hm *HeartbeatMonitor) ReportHeartbeat(addr string, hb Heartbeat) error {
	if addr == "" {
		return ErrEmptyAddress
	}

	now := time.Now()
	if !hm.view.Has(addr) {
		if hm.requireRegistration {
			return ErrUnknownNode
		}
		if hm.view.register(addr, now) {
			hm.logger.Info("registered node on first heartbeat", zap.String("node", addr))
			if hm.registrar != nil {
				hm.registrar.NodeRegistered(addr)
			}
		}
	}

	return hm.view.applyHeartbeat(addr, hb, now)
}

// ReportBlocks installs a full block report for the node, replacing the
// previously reported inventory
func (hm *HeartbeatMonitor) ReportBlocks(addr string, blocks []string) error {
	if addr == "" {
		return ErrEmptyAddress
	}
	if !hm.view.Has(addr) {
		if hm.requireRegistration {
			return ErrUnknownNode
		}
		if hm.view.register(addr, time.Now()) {
			hm.logger.Info("registered node on block report", zap.String("node", addr))
			if hm.registrar != nil {
				hm.registrar.NodeRegistered(addr)
			}
		}
	}
	return hm.view.replaceInventory(addr, blocks)
}

// Start begins the periodic timeout sweep
func (hm *HeartbeatMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(hm.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-hm.stopCh:
				return
			case <-ticker.C:
				hm.sweep()
			}
		}
	}()
}

// Stop stops the timeout sweep
func (hm *HeartbeatMonitor) Stop() {
	hm.stopOnce.Do(func() {
		close(hm.stopCh)
	})
}

// sweep flags nodes whose last heartbeat exceeded the timeout as unreachable.
// Reachability is orthogonal to decommission state.
func (hm *HeartbeatMonitor) sweep() {
	flagged := hm.view.markUnreachable(time.Now().Add(-hm.timeout))
	for _, addr := range flagged {
		hm.logger.Warn("node missed heartbeat timeout",
			zap.String("node", addr),
			zap.Duration("timeout", hm.timeout))
	}
}
