// Package blockmeta holds the controller's block-to-replica registry: which
// file a block belongs to, its desired replication factor, and the set of
// nodes carrying a copy. Replica sets are append-only from the decommission
// subsystem's point of view; physical removal of a retired node's data is a
// separate administrative step.
package blockmeta

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrFileNotFound  = errors.New("file not found")
	ErrFileExists    = errors.New("file already exists")
	ErrBlockNotFound = errors.New("block not found")
	ErrEmptyBlockID  = errors.New("block ID cannot be empty")
)

// ReplicaRole distinguishes the original writer-placed copies from copies
// added by re-replication
type ReplicaRole int

const (
	// RolePrimary marks a replica placed on the original write path
	RolePrimary ReplicaRole = iota
	// RoleReplicated marks a replica added by the replication monitor
	RoleReplicated
)

// Replica is one (node, role) entry in a block's replica set
type Replica struct {
	Addr string      `json:"addr"`
	Role ReplicaRole `json:"role"`
}

// BlockInfo is the read-only per-block view served by the reporting API
type BlockInfo struct {
	ID          string    `json:"id"`
	File        string    `json:"file"`
	Replication int       `json:"replication"`
	Replicas    []Replica `json:"replicas"`
}

type blockEntry struct {
	file        string
	replication int
	replicas    []Replica
	holders     map[string]struct{}
}

type fileEntry struct {
	replication int
	blocks      []string
}

// BlockMap is a thread-safe registry of files, blocks and replica locations
type BlockMap struct {
	mu     sync.RWMutex
	files  map[string]*fileEntry
	blocks map[string]*blockEntry
}

// NewBlockMap creates an empty BlockMap
func NewBlockMap() *BlockMap {
	return &BlockMap{
		files:  make(map[string]*fileEntry),
		blocks: make(map[string]*blockEntry),
	}
}

// AddFile registers a file with its desired replication factor and ordered
// block list. Blocks start with empty replica sets.
func (bm *BlockMap) AddFile(name string, replication int, blockIDs []string) error {
	if name == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	if replication < 1 {
		return fmt.Errorf("replication factor must be at least 1, got %d", replication)
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()

	if _, exists := bm.files[name]; exists {
		return ErrFileExists
	}

	blocks := make([]string, len(blockIDs))
	copy(blocks, blockIDs)
	bm.files[name] = &fileEntry{
		replication: replication,
		blocks:      blocks,
	}
	for _, id := range blocks {
		if _, exists := bm.blocks[id]; exists {
			continue
		}
		bm.blocks[id] = &blockEntry{
			file:        name,
			replication: replication,
			holders:     make(map[string]struct{}),
		}
	}
	return nil
}

// RemoveFile drops a file and its block entries from the registry
func (bm *BlockMap) RemoveFile(name string) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	entry, exists := bm.files[name]
	if !exists {
		return ErrFileNotFound
	}
	for _, id := range entry.blocks {
		delete(bm.blocks, id)
	}
	delete(bm.files, name)
	return nil
}

// AddReplica appends a node to a block's replica set. Re-adding an existing
// holder is a no-op, so concurrent appenders and scan retries are safe.
func (bm *BlockMap) AddReplica(blockID, addr string) error {
	return bm.addReplica(blockID, addr, RoleReplicated)
}

// AddPrimaryReplica records a write-path replica for a block
func (bm *BlockMap) AddPrimaryReplica(blockID, addr string) error {
	return bm.addReplica(blockID, addr, RolePrimary)
}

func (bm *BlockMap) addReplica(blockID, addr string, role ReplicaRole) error {
	if blockID == "" {
		return ErrEmptyBlockID
	}
	if addr == "" {
		return fmt.Errorf("replica address cannot be empty")
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()

	entry, exists := bm.blocks[blockID]
	if !exists {
		return ErrBlockNotFound
	}
	if _, ok := entry.holders[addr]; ok {
		return nil
	}
	entry.holders[addr] = struct{}{}
	entry.replicas = append(entry.replicas, Replica{Addr: addr, Role: role})
	return nil
}

// ReplicaAddrs returns the addresses currently holding a replica of the block
func (bm *BlockMap) ReplicaAddrs(blockID string) ([]string, error) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	entry, exists := bm.blocks[blockID]
	if !exists {
		return nil, ErrBlockNotFound
	}
	addrs := make([]string, 0, len(entry.replicas))
	for _, r := range entry.replicas {
		addrs = append(addrs, r.Addr)
	}
	return addrs, nil
}

// DesiredReplication returns the block's desired replication factor
func (bm *BlockMap) DesiredReplication(blockID string) (int, error) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	entry, exists := bm.blocks[blockID]
	if !exists {
		return 0, ErrBlockNotFound
	}
	return entry.replication, nil
}

// BlockInfo returns the full replica view of one block
func (bm *BlockMap) BlockInfo(blockID string) (BlockInfo, error) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	entry, exists := bm.blocks[blockID]
	if !exists {
		return BlockInfo{}, ErrBlockNotFound
	}
	return bm.infoOf(blockID, entry), nil
}

// FileBlocks returns the ordered per-block replica views for a file
func (bm *BlockMap) FileBlocks(name string) ([]BlockInfo, error) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	file, exists := bm.files[name]
	if !exists {
		return nil, ErrFileNotFound
	}
	infos := make([]BlockInfo, 0, len(file.blocks))
	for _, id := range file.blocks {
		entry, ok := bm.blocks[id]
		if !ok {
			continue
		}
		infos = append(infos, bm.infoOf(id, entry))
	}
	return infos, nil
}

func (bm *BlockMap) infoOf(blockID string, entry *blockEntry) BlockInfo {
	replicas := make([]Replica, len(entry.replicas))
	copy(replicas, entry.replicas)
	return BlockInfo{
		ID:          blockID,
		File:        entry.file,
		Replication: entry.replication,
		Replicas:    replicas,
	}
}
