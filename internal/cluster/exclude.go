package cluster

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultWatchDebounce = 500 * time.Millisecond

// ExcludeListManager owns the administrator-maintained set of node addresses
// slated for decommission. The backing file is newline-separated addresses;
// blank and malformed lines are skipped.
type ExcludeListManager struct {
	mu       sync.Mutex
	path     string
	snapshot map[string]struct{}
	debounce time.Duration
	logger   *zap.Logger
}

// NewExcludeListManager creates a manager reading from the given file path
func NewExcludeListManager(path string, logger *zap.Logger) *ExcludeListManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExcludeListManager{
		path:     path,
		snapshot: make(map[string]struct{}),
		debounce: defaultWatchDebounce,
		logger:   logger,
	}
}

// Refresh re-reads the exclude file and returns the addresses added to and
// removed from the set since the previous snapshot. Calling Refresh with
// unchanged content yields empty deltas.
func (em *ExcludeListManager) Refresh() (added, removed []string, err error) {
	em.mu.Lock()
	defer em.mu.Unlock()

	current, err := em.readFile()
	if err != nil {
		return nil, nil, err
	}

	for addr := range current {
		if _, ok := em.snapshot[addr]; !ok {
			added = append(added, addr)
		}
	}
	for addr := range em.snapshot {
		if _, ok := current[addr]; !ok {
			removed = append(removed, addr)
		}
	}

	em.snapshot = current
	return added, removed, nil
}

// Contains reports whether the address is in the current snapshot
func (em *ExcludeListManager) Contains(addr string) bool {
	em.mu.Lock()
	defer em.mu.Unlock()
	_, ok := em.snapshot[addr]
	return ok
}

// Snapshot returns the current exclude set
func (em *ExcludeListManager) Snapshot() []string {
	em.mu.Lock()
	defer em.mu.Unlock()

	addrs := make([]string, 0, len(em.snapshot))
	for addr := range em.snapshot {
		addrs = append(addrs, addr)
	}
	return addrs
}

// readFile parses the exclude file. A missing or empty file means no
// exclusions. Malformed entries are logged and skipped, never fatal.
func (em *ExcludeListManager) readFile() (map[string]struct{}, error) {
	set := make(map[string]struct{})

	f, err := os.Open(em.path)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, fmt.Errorf("failed to read exclude file %s: %w", em.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := validateNodeAddress(line); err != nil {
			em.logger.Warn("skipping malformed exclude entry",
				zap.String("entry", line),
				zap.Error(err))
			continue
		}
		set[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan exclude file %s: %w", em.path, err)
	}
	return set, nil
}

// Watch monitors the exclude file and invokes onChange after each write,
// debounced. It blocks until the context is cancelled.
func (em *ExcludeListManager) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create exclude file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so the file may be replaced atomically
	// (write-to-temp-then-rename) without losing the watch.
	dir := "."
	if idx := strings.LastIndexByte(em.path, '/'); idx >= 0 {
		dir = em.path[:idx]
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != em.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(em.debounce, onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			em.logger.Warn("exclude file watch error", zap.Error(err))
		}
	}
}

// validateNodeAddress checks that an entry is a plausible hostname or
// host:port pair
func validateNodeAddress(addr string) error {
	host := addr
	if strings.Contains(addr, ":") {
		h, port, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("invalid host:port %q: %w", addr, err)
		}
		p, err := strconv.Atoi(port)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("invalid port in %q", addr)
		}
		host = h
	}
	if host == "" {
		return fmt.Errorf("empty host in %q", addr)
	}
	for _, r := range host {
		if r == ' ' || r == '\t' {
			return fmt.Errorf("whitespace in host %q", addr)
		}
	}
	return nil
}
