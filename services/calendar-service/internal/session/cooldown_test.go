package session

import (
	"testing"
	"time"
)

func TestCooldownRejectsInsideWindow(t *testing.T) {
	c := NewCooldown(500 * time.Millisecond)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	if !c.TryAcquire() {
		t.Fatal("first acquire must succeed")
	}
	if c.TryAcquire() {
		t.Fatal("second acquire inside the window must be rejected")
	}

	now = now.Add(499 * time.Millisecond)
	if c.TryAcquire() {
		t.Fatal("still inside the window")
	}

	now = now.Add(2 * time.Millisecond)
	if !c.TryAcquire() {
		t.Fatal("window elapsed, acquire must succeed")
	}
}

func TestCooldownDefaultWindow(t *testing.T) {
	c := NewCooldown(0)
	if c.window <= 0 {
		t.Fatal("expected a positive default window")
	}
}
