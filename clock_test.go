package fdloop

import "testing"

func TestClockTickIsMonotonic(t *testing.T) {
	c := newClock()
	first := c.nowNs()
	c.tick()
	second := c.nowNs()
	if second < first {
		t.Fatalf("clock went backwards: %d -> %d", first, second)
	}
}

func TestClockDeadlineInNsClampsNegative(t *testing.T) {
	c := newClock()
	now := c.nowNs()
	d := c.deadlineInNs(-1000)
	if d != now {
		t.Fatalf("expected negative delta clamped to now (%d), got %d", now, d)
	}
}

func TestClockRemainingNs(t *testing.T) {
	c := newClock()
	d := c.deadlineInNs(1_000_000)
	remaining := c.remainingNs(d)
	if remaining <= 0 || remaining > 1_000_000 {
		t.Fatalf("remaining out of expected range: %d", remaining)
	}
}
