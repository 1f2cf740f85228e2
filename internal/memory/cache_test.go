package memory

import (
	"fmt"
	"testing"
	"time"
)

func TestFingerprint(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"What time is it?", "what time is it"},
		{"  Hello,   WORLD!! ", "hello world"},
		{"tell me a joke", "tell me a joke"},
		{"Order 66 now.", "order 66 now"},
		{"?!...", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Fingerprint(tc.in); got != tc.want {
			t.Errorf("Fingerprint(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCacheHitAcrossPunctuation(t *testing.T) {
	c := NewCache(4, 0)
	c.Put("What time is it?", "it is noon")

	got, ok := c.Get("what time is it")
	if !ok {
		t.Fatal("expected hit for normalized variant")
	}
	if got.Reply != "it is noon" {
		t.Errorf("Reply = %q, want %q", got.Reply, "it is noon")
	}
	if _, ok := c.Get("completely different"); ok {
		t.Error("unexpected hit for unrelated prompt")
	}
}

func TestCacheEviction(t *testing.T) {
	c := NewCache(2, 0)
	c.Put("first question", "one")
	c.Put("second question", "two")
	c.Put("third question", "three")

	if got := c.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	if _, ok := c.Get("first question"); ok {
		t.Error("oldest entry survived eviction")
	}
	if _, ok := c.Get("third question"); !ok {
		t.Error("newest entry missing")
	}
}

func TestCacheTTL(t *testing.T) {
	c := NewCache(4, 25*time.Millisecond)
	c.Put("short lived", "gone soon")

	if _, ok := c.Get("short lived"); !ok {
		t.Fatal("expected hit before expiry")
	}
	time.Sleep(80 * time.Millisecond)
	if _, ok := c.Get("short lived"); ok {
		t.Error("entry survived past its ttl")
	}
}

func TestCacheZeroTTLKeepsEntries(t *testing.T) {
	c := NewCache(4, 0)
	c.Put("durable", "still here")
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("durable"); !ok {
		t.Error("entry expired with ttl disabled")
	}
}

func TestCacheResize(t *testing.T) {
	c := NewCache(4, 0)
	for i := 0; i < 4; i++ {
		c.Put(fmt.Sprintf("question %d", i), "answer")
	}

	c.Resize(2)
	if got := c.Len(); got > 2 {
		t.Fatalf("Len() after Resize(2) = %d, want <= 2", got)
	}
	if got := c.Capacity(); got != 2 {
		t.Errorf("Capacity() = %d, want 2", got)
	}
	if _, ok := c.Get("question 3"); !ok {
		t.Error("most recent entry lost on shrink")
	}
}

func TestCacheIgnoresEmptyInputs(t *testing.T) {
	c := NewCache(4, 0)
	c.Put("", "reply")
	c.Put("prompt", "")
	c.Put("?!", "reply")

	if got := c.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
	if _, ok := c.Get(""); ok {
		t.Error("unexpected hit for empty prompt")
	}
}
