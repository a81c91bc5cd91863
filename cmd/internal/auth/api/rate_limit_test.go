package api

import (
	"testing"
	"time"
)

func TestIPLimiter_BurstThenBlock(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	l := newIPLimiter(1, 3, time.Minute)

	for i := 0; i < 3; i++ {
		if ok, _ := l.allow("10.0.0.1", now); !ok {
			t.Fatalf("attempt %d should pass within burst", i+1)
		}
	}

	ok, retry := l.allow("10.0.0.1", now)
	if ok {
		t.Fatalf("expected fourth attempt to be blocked")
	}
	if retry <= 0 || retry > time.Second {
		t.Fatalf("expected retry in (0,1s], got %v", retry)
	}

	// Other IPs have their own bucket.
	if ok, _ := l.allow("10.0.0.2", now); !ok {
		t.Fatalf("expected independent bucket per ip")
	}

	// One token refills after a second.
	if ok, _ := l.allow("10.0.0.1", now.Add(1100*time.Millisecond)); !ok {
		t.Fatalf("expected token after refill")
	}
}

func TestIPLimiter_BlockedAttemptDoesNotConsume(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	l := newIPLimiter(1, 1, time.Minute)

	if ok, _ := l.allow("ip", now); !ok {
		t.Fatalf("first attempt should pass")
	}
	for i := 0; i < 5; i++ {
		if ok, _ := l.allow("ip", now.Add(100*time.Millisecond)); ok {
			t.Fatalf("expected block")
		}
	}
	if ok, _ := l.allow("ip", now.Add(1100*time.Millisecond)); !ok {
		t.Fatalf("rejected attempts must not delay refill")
	}
}

func TestIPLimiter_PrunesIdleBuckets(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	l := newIPLimiter(1, 1, 5*time.Minute)

	l.allow("a", now)
	l.allow("b", now)
	if l.size() != 2 {
		t.Fatalf("expected 2 buckets, got %d", l.size())
	}

	l.allow("c", now.Add(10*time.Minute))
	if l.size() != 1 {
		t.Fatalf("expected idle buckets pruned, got %d", l.size())
	}
}

func TestIPLimiter_EmptyKeyAllowed(t *testing.T) {
	l := newIPLimiter(1, 1, time.Minute)
	for i := 0; i < 3; i++ {
		if ok, _ := l.allow("", time.Now()); !ok {
			t.Fatalf("unknown client ip must not be throttled by a shared bucket")
		}
	}
}
