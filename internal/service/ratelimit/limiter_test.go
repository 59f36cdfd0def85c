package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(1, 1)
	l.now = func() time.Time { return now }

	if !l.Allow("k") {
		t.Fatalf("first call must pass")
	}
	if l.Allow("k") {
		t.Fatalf("second call within the same instant must be limited")
	}
	if !l.Allow("other") {
		t.Fatalf("keys are independent")
	}
	now = now.Add(time.Second)
	if !l.Allow("k") {
		t.Fatalf("token must refill after one second")
	}
}
