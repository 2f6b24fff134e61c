package infra

import (
	"sync"
	"testing"
	"time"

	"action-gateway/middleware/ratelimit/domain"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func TestStore_RejectsAfterLimitAndResetsAfterWindow(t *testing.T) {
	s := NewStore()
	spec := domain.WindowSpec{Limit: 3, Window: time.Second}

	for i := 1; i <= 3; i++ {
		// a primeira requisição abre a janela em t0
		dec := s.Admit("demos", "k", spec, t0.Add(time.Duration(i-1)*time.Millisecond))
		if !dec.Allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if dec.Remaining != 3-i {
			t.Fatalf("expected remaining=%d, got %d", 3-i, dec.Remaining)
		}
	}

	dec := s.Admit("demos", "k", spec, t0.Add(500*time.Millisecond))
	if dec.Allowed {
		t.Fatalf("expected 4th request in the window to be rejected")
	}
	if dec.Remaining != 0 {
		t.Fatalf("expected remaining=0, got %d", dec.Remaining)
	}
	if !dec.ResetAt.Equal(t0.Add(time.Second)) {
		t.Fatalf("expected resetAt=%s, got %s", t0.Add(time.Second), dec.ResetAt)
	}
	if dec.RetryAfter != 500*time.Millisecond {
		t.Fatalf("expected RetryAfter=500ms, got %s", dec.RetryAfter)
	}

	next := t0.Add(time.Second + time.Millisecond)
	dec = s.Admit("demos", "k", spec, next)
	if !dec.Allowed {
		t.Fatalf("expected request after the window to be allowed")
	}
	if dec.Remaining != 2 {
		t.Fatalf("expected fresh window remaining=2, got %d", dec.Remaining)
	}
	if !dec.ResetAt.Equal(next.Add(time.Second)) {
		t.Fatalf("expected new window to start at the request time")
	}
}

func TestStore_RejectedRequestsKeepCounting(t *testing.T) {
	s := NewStore()
	spec := domain.WindowSpec{Limit: 1, Window: time.Minute}

	s.Admit("r", "k", spec, t0)
	for i := 0; i < 5; i++ {
		if dec := s.Admit("r", "k", spec, t0.Add(time.Duration(i+1)*time.Second)); dec.Allowed {
			t.Fatalf("expected retry %d to stay rejected", i)
		}
	}
	// a janela não foi empurrada pelas tentativas rejeitadas
	if dec := s.Admit("r", "k", spec, t0.Add(time.Minute)); !dec.Allowed {
		t.Fatalf("expected window to reset at windowStart+window")
	}
}

func TestStore_BucketsAreIndependentPerRouteAndClient(t *testing.T) {
	s := NewStore()
	spec := domain.WindowSpec{Limit: 1, Window: time.Minute}

	if !s.Admit("a", "k1", spec, t0).Allowed {
		t.Fatalf("expected a/k1 allowed")
	}
	if !s.Admit("b", "k1", spec, t0).Allowed {
		t.Fatalf("expected b/k1 allowed")
	}
	if !s.Admit("a", "k2", spec, t0).Allowed {
		t.Fatalf("expected a/k2 allowed")
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 buckets, got %d", s.Len())
	}
}

func TestStore_EmptyClientSharesUnknownBucket(t *testing.T) {
	s := NewStore()
	spec := domain.WindowSpec{Limit: 1, Window: time.Minute}

	if !s.Admit("r", "", spec, t0).Allowed {
		t.Fatalf("expected first anonymous request allowed")
	}
	if s.Admit("r", domain.UnknownKey, spec, t0).Allowed {
		t.Fatalf("expected anonymous requests to share the %q bucket", domain.UnknownKey)
	}
}

func TestStore_ConcurrentAdmitHasNoLostUpdates(t *testing.T) {
	s := NewStore()
	spec := domain.WindowSpec{Limit: 50, Window: time.Hour}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Admit("r", "k", spec, t0).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Fatalf("expected exactly 50 admitted, got %d", allowed)
	}
}

func TestStore_CleanupRemovesEndedWindows(t *testing.T) {
	now := t0
	s := NewStore(WithCleanupEvery(0), WithClock(func() time.Time { return now }))

	s.Admit("r", "short", domain.WindowSpec{Limit: 1, Window: time.Second}, t0)
	s.Admit("r", "long", domain.WindowSpec{Limit: 1, Window: time.Hour}, t0)

	now = t0.Add(2 * time.Second)
	s.Cleanup()

	if s.Len() != 1 {
		t.Fatalf("expected only the live bucket to survive, got %d", s.Len())
	}
}
