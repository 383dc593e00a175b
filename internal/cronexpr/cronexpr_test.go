package cronexpr

import (
	"testing"
	"time"
)

func TestTriggeredWithinWindow(t *testing.T) {
	s, err := Parse("0 * * * * *") // every minute, on the 0th second
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	last := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	now := time.Date(2026, 1, 1, 12, 1, 30, 0, time.UTC)
	if !s.Triggered(last, now) {
		t.Fatal("expected a trigger between :00:30 and :01:30 (crosses 12:01:00)")
	}
}

func TestNotTriggeredWhenWindowTooNarrow(t *testing.T) {
	s, err := Parse("0 * * * * *")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	last := time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)
	now := time.Date(2026, 1, 1, 12, 0, 20, 0, time.UTC)
	if s.Triggered(last, now) {
		t.Fatal("expected no trigger within a window that never crosses :00")
	}
}

func TestTriggeredRejectsNonAdvancingWindow(t *testing.T) {
	s, err := Parse("* * * * * *")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if s.Triggered(now, now) {
		t.Fatal("expected no trigger when now does not advance past last")
	}
}
