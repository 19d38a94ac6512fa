package util

import (
	"context"
	"testing"
	"time"
)

func TestHostLimiter_BurstPerHost(t *testing.T) {
	l := NewHostLimiter(1, 2, time.Minute)

	if !l.Allow("https://esm.sh/a") || !l.Allow("https://esm.sh/b") {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if l.Allow("https://esm.sh/c") {
		t.Fatal("expected third request to the same host to be limited")
	}
	if !l.Allow("https://cdn.example.com/a") {
		t.Fatal("expected a different host to have its own bucket")
	}
	if l.Len() != 2 {
		t.Fatalf("expected 2 tracked hosts, got %d", l.Len())
	}
}

func TestHostLimiter_HostKeyIgnoresCase(t *testing.T) {
	l := NewHostLimiter(1, 1, time.Minute)
	l.Allow("https://ESM.sh/a")
	if l.Allow("https://esm.sh/b") {
		t.Fatal("expected host comparison to ignore case")
	}
}

func TestHostLimiter_EvictsIdleHosts(t *testing.T) {
	l := NewHostLimiter(1, 1, time.Minute)
	clock := time.Now()
	l.now = func() time.Time { return clock }

	l.Allow("https://a.example.com/x")
	clock = clock.Add(2 * time.Minute)
	l.Allow("https://b.example.com/x")

	if l.Len() != 1 {
		t.Fatalf("expected idle host to be evicted, got %d hosts", l.Len())
	}
}

func TestHostLimiter_WaitHonorsContext(t *testing.T) {
	l := NewHostLimiter(0.001, 1, time.Minute)
	if err := l.Wait(context.Background(), "https://esm.sh/a"); err != nil {
		t.Fatalf("first wait should pass: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "https://esm.sh/b"); err == nil {
		t.Fatal("expected wait to fail once the deadline cannot be met")
	}
}

func TestHostLimiter_UnlimitedWhenRateNotPositive(t *testing.T) {
	l := NewHostLimiter(0, 1, time.Minute)
	for i := 0; i < 100; i++ {
		if !l.Allow("https://esm.sh/a") {
			t.Fatalf("request %d limited despite disabled limiting", i)
		}
	}
}
