package cache

import (
	"testing"
	"time"
)

func TestTTLCacheGetSet(t *testing.T) {
	c := NewTTLCache[string, int](0)
	c.Set("a", 1, 0)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("got %d %v, want 1 true", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatalf("unexpected hit")
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, int](0)
	c.Set("a", 1, time.Nanosecond)
	time.Sleep(2 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestTTLCacheMaxSize(t *testing.T) {
	c := NewTTLCache[int, int](2)
	c.Set(1, 1, 0)
	c.Set(2, 2, 0)
	c.Set(3, 3, 0)
	if c.Len() != 2 {
		t.Fatalf("len=%d, want 2", c.Len())
	}
	if v, ok := c.Get(3); !ok || v != 3 {
		t.Fatalf("latest entry must be kept")
	}
}
