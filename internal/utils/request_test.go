package utils

import (
	"testing"
	"time"
)

func TestGenerateRequestID(t *testing.T) {
	a := GenerateRequestID()
	b := GenerateRequestID()
	if a == "" || b == "" {
		t.Fatal("request ID must not be empty")
	}
	if a == b {
		t.Errorf("request IDs should be unique, got %s twice", a)
	}
}

func TestWaitForCondition(t *testing.T) {
	if !WaitForCondition(time.Second, time.Millisecond, func() bool { return true }) {
		t.Error("immediately true condition should be met")
	}

	calls := 0
	met := WaitForCondition(time.Second, time.Millisecond, func() bool {
		calls++
		return calls >= 3
	})
	if !met {
		t.Error("condition should be met after three polls")
	}

	if WaitForCondition(20*time.Millisecond, 5*time.Millisecond, func() bool { return false }) {
		t.Error("never-true condition should time out")
	}
}
