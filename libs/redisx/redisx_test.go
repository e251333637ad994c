package redisx

import "testing"

func TestChangeChannel(t *testing.T) {
	if got := ChangeChannel("salon-1", "appointments"); got != "salon:salon-1:appointments" {
		t.Fatalf("unexpected channel name: %q", got)
	}
}
