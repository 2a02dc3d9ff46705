package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// GenerateRequestID generates a unique request ID for idempotency
func GenerateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err == nil {
		return hex.EncodeToString(bytes)
	}

	// Fallback to timestamp if crypto random fails
	return fmt.Sprintf("req-%d", time.Now().UnixNano())
}

// WaitForCondition polls cond at the given interval until it returns true or
// the timeout elapses. Each call of cond must be an independent, side-effect
// free read. Returns whether the condition was met.
func WaitForCondition(timeout, interval time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(interval)
	}
}
