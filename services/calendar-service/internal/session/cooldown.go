package session

import (
	"sync"
	"time"
)

// Cooldown rejects a transition while a previous one is still inside its
// window. Rapid view changes (date navigation, repeated refresh taps) go
// through this guard so only the first request in a window runs.
type Cooldown struct {
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	until time.Time
}

func NewCooldown(window time.Duration) *Cooldown {
	if window <= 0 {
		window = 300 * time.Millisecond
	}
	return &Cooldown{window: window, now: time.Now}
}

// TryAcquire reports whether the caller may proceed. A successful acquire
// opens a new window; callers rejected inside it simply skip their work,
// the timer releases the guard with no explicit reset.
func (c *Cooldown) TryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Before(c.until) {
		return false
	}
	c.until = now.Add(c.window)
	return true
}
