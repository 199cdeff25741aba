package ratelimiter

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenBucketRefills(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rl := New(Options{
		MaxRatePerSecond: 1,
		MaxBurst:         2,
		Now:              func() time.Time { return now },
	})

	if !rl.Allow("k") || !rl.Allow("k") {
		t.Fatal("burst should be allowed")
	}
	if rl.Allow("k") {
		t.Fatal("third call should be rejected")
	}
	if got := rl.Remaining("k"); got != 0 {
		t.Fatalf("remaining = %d, want 0", got)
	}

	now = now.Add(time.Second)
	if !rl.Allow("k") {
		t.Fatal("one token should have refilled")
	}
	if !rl.Allow("other") {
		t.Fatal("keys must not share a bucket")
	}
}

func TestGetSourceKey(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 1, SourceHeaderKey: "X-Forwarded-For"})

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	if got := rl.GetSourceKey(r); got != "10.0.0.1" {
		t.Fatalf("got %q, want remote host", got)
	}

	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	if got := rl.GetSourceKey(r); got != "1.2.3.4" {
		t.Fatalf("got %q, want first hop", got)
	}
}

func TestFixedWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 30, 0, time.UTC)
	rl := NewFixedWindowRateLimiter(3, time.Minute).WithClock(func() time.Time { return now })
	defer rl.Close()

	for i := 0; i < 3; i++ {
		if ok, _ := rl.Allow("join:u1"); !ok {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}

	ok, retry := rl.Allow("join:u1")
	if ok {
		t.Fatal("fourth attempt should be rejected")
	}
	if retry != 30*time.Second {
		t.Fatalf("retry = %v, want 30s", retry)
	}
	if ok, _ := rl.Allow("join:u2"); !ok {
		t.Fatal("other keys keep their own window")
	}

	now = now.Add(30 * time.Second)
	if ok, _ := rl.Allow("join:u1"); !ok {
		t.Fatal("a new window should reset the count")
	}

	rl.Close()
}
