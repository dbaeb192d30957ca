package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	c := RealClock{}
	start := c.Now()
	if c.Since(start) < 0 {
		t.Error("Since() must not be negative")
	}

	tk := c.NewTicker(time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker did not tick")
	}
}

func TestMockClockAdvance(t *testing.T) {
	start := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	c := NewMockClock(start)

	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("Now() = %v, want %v", got, start.Add(90*time.Second))
	}
	if got := c.Since(start); got != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", got)
	}
}

func TestMockTicker(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	tk := c.NewTicker(time.Minute)

	c.Advance(30 * time.Second)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(30 * time.Second)
	select {
	case got := <-tk.C():
		if !got.Equal(time.Unix(60, 0)) {
			t.Errorf("tick = %v, want 60s", got)
		}
	default:
		t.Fatal("ticker did not fire at its interval")
	}

	tk.Stop()
	c.Advance(time.Hour)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockTickerDropsUnreadTicks(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	tk := c.NewTicker(time.Second)

	c.Advance(time.Second)
	c.Advance(time.Second)
	c.Advance(time.Second)

	got := <-tk.C()
	if !got.Equal(time.Unix(1, 0)) {
		t.Errorf("first buffered tick = %v, want 1s", got)
	}
	select {
	case <-tk.C():
		t.Fatal("unread ticks must be dropped")
	default:
	}
}
