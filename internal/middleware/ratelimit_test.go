package middleware

import (
	"testing"
	"time"
)

func TestTokenBucketExhaustionAndRefill(t *testing.T) {
	tb := NewTokenBucket(3, 1)

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("request %d denied with tokens remaining", i+1)
		}
	}
	if tb.Allow() {
		t.Fatal("request allowed on an empty bucket")
	}

	// Rewind the refill clock instead of sleeping.
	tb.mu.Lock()
	tb.lastRefill = time.Now().Add(-2 * time.Second)
	tb.mu.Unlock()

	if !tb.Allow() {
		t.Fatal("request denied after refill window elapsed")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := &RateLimiter{
		buckets:    make(map[string]*TokenBucket),
		capacity:   1,
		refillRate: 1,
	}

	if !rl.Allow("hosp-a:user-1") {
		t.Fatal("first request for key denied")
	}
	if rl.Allow("hosp-a:user-1") {
		t.Fatal("second request on an empty bucket allowed")
	}
	if !rl.Allow("hosp-b:user-2") {
		t.Fatal("exhausting one key starved another")
	}
}

func TestRateLimiterCleanupDropsIdleBuckets(t *testing.T) {
	rl := &RateLimiter{
		buckets:    make(map[string]*TokenBucket),
		capacity:   1,
		refillRate: 1,
	}
	rl.Allow("stale")
	rl.Allow("active")

	rl.mu.RLock()
	rl.buckets["stale"].lastRefill = time.Now().Add(-bucketIdleTTL - time.Minute)
	rl.mu.RUnlock()

	rl.sweep(time.Now())

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if _, ok := rl.buckets["stale"]; ok {
		t.Error("idle bucket survived cleanup")
	}
	if _, ok := rl.buckets["active"]; !ok {
		t.Error("active bucket was dropped")
	}
}
