package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"action-gateway/middleware/idempotency/domain"
	"action-gateway/middleware/idempotency/infra"
)

func newService(retries int, delay time.Duration) Service {
	return Service{
		Cache:      infra.NewStore(),
		TTL:        time.Hour,
		MaxRetries: retries,
		RetryDelay: delay,
	}
}

func created(body string) Executor {
	return func(context.Context) (domain.Response, error) {
		return domain.Response{Status: 201, Body: []byte(body), Header: map[string]string{"Location": "/demos/1"}}, nil
	}
}

func TestService_Do_ExecutesThenReplays(t *testing.T) {
	svc := newService(0, 0)
	req := Request{Action: "schedule_demo", Key: "abc123def", Payload: map[string]any{"name": "A", "email": "a@x.com"}}

	var calls int
	fn := func(ctx context.Context) (domain.Response, error) {
		calls++
		return created(`{"ticket_id":"DEMO-X"}`)(ctx)
	}

	first, err := svc.Do(context.Background(), req, fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Outcome != OutcomeExecuted {
		t.Fatalf("expected executed, got %s", first.Outcome)
	}

	second, err := svc.Do(context.Background(), req, fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Outcome != OutcomeReplayed {
		t.Fatalf("expected replayed, got %s", second.Outcome)
	}
	if calls != 1 {
		t.Fatalf("expected business logic to run once, ran %d times", calls)
	}
	if second.Response.Status != 201 || string(second.Response.Body) != `{"ticket_id":"DEMO-X"}` {
		t.Fatalf("unexpected replay: %d %s", second.Response.Status, second.Response.Body)
	}
	if second.Response.Header["Location"] != "/demos/1" {
		t.Fatalf("expected Location to be replayed, got %q", second.Response.Header["Location"])
	}
}

func TestService_Do_ConflictOnDifferentPayload(t *testing.T) {
	svc := newService(0, 0)
	ctx := context.Background()

	_, _ = svc.Do(ctx, Request{Action: "schedule_demo", Key: "abc123def", Payload: map[string]any{"name": "A"}}, created("{}"))

	res, err := svc.Do(ctx, Request{Action: "schedule_demo", Key: "abc123def", Payload: map[string]any{"name": "B"}}, func(context.Context) (domain.Response, error) {
		t.Fatalf("executor must not run on conflict")
		return domain.Response{}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeConflict {
		t.Fatalf("expected conflict, got %s", res.Outcome)
	}
}

func TestService_Do_ReleasesOnError(t *testing.T) {
	svc := newService(0, 0)
	req := Request{Action: "a", Key: "k1234567", Payload: "p"}
	boom := errors.New("boom")

	_, err := svc.Do(context.Background(), req, func(context.Context) (domain.Response, error) {
		return domain.Response{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected executor error, got %v", err)
	}

	res, err := svc.Do(context.Background(), req, created("{}"))
	if err != nil || res.Outcome != OutcomeExecuted {
		t.Fatalf("expected retry to execute, got %s / %v", res.Outcome, err)
	}
}

func TestService_Do_ReleasesOnPanic(t *testing.T) {
	svc := newService(0, 0)
	req := Request{Action: "a", Key: "k1234567", Payload: "p"}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_, _ = svc.Do(context.Background(), req, func(context.Context) (domain.Response, error) {
			panic("boom")
		})
	}()

	if res := svc.Cache.Check("a", "k1234567", mustFP(t, "p"), time.Now()); res.Outcome != domain.Fresh {
		t.Fatalf("expected key to be fresh after panic, got %s", res.Outcome)
	}
}

func TestService_Do_BusyAfterRetries(t *testing.T) {
	store := infra.NewStore()
	fp := mustFP(t, "p")
	store.Reserve("a", "k1234567", fp, time.Now())

	svc := Service{Cache: store, MaxRetries: 2, RetryDelay: time.Millisecond}
	res, err := svc.Do(context.Background(), Request{Action: "a", Key: "k1234567", Payload: "p"}, created("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeBusy {
		t.Fatalf("expected busy, got %s", res.Outcome)
	}
	if res.RetryAfter < time.Second {
		t.Fatalf("expected RetryAfter >= 1s, got %s", res.RetryAfter)
	}
}

func TestService_Do_WaitsForInFlightHolder(t *testing.T) {
	svc := newService(50, 5*time.Millisecond)
	req := Request{Action: "a", Key: "k1234567", Payload: "p"}

	started := make(chan struct{})
	finish := make(chan struct{})
	done := make(chan Result, 1)
	go func() {
		res, _ := svc.Do(context.Background(), req, func(context.Context) (domain.Response, error) {
			close(started)
			<-finish
			return domain.Response{Status: 201, Body: []byte("first")}, nil
		})
		done <- res
	}()
	<-started

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(finish)
	}()

	res, err := svc.Do(context.Background(), req, created("second"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeReplayed || string(res.Response.Body) != "first" {
		t.Fatalf("expected replay of the first response, got %s %s", res.Outcome, res.Response.Body)
	}
	if first := <-done; first.Outcome != OutcomeExecuted {
		t.Fatalf("expected first call to execute, got %s", first.Outcome)
	}
}

func TestService_Do_ContextCanceledWhileWaiting(t *testing.T) {
	store := infra.NewStore()
	store.Reserve("a", "k1234567", mustFP(t, "p"), time.Now())

	svc := Service{Cache: store, MaxRetries: 10, RetryDelay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Do(ctx, Request{Action: "a", Key: "k1234567", Payload: "p"}, created("{}"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestService_Do_AtMostOnceUnderConcurrency(t *testing.T) {
	svc := newService(200, time.Millisecond)
	req := Request{Action: "schedule_demo", Key: "brand-new-key", Payload: map[string]any{"name": "A"}}

	var (
		calls atomic.Int32
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	const n = 32
	results := make([]Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			res, err := svc.Do(context.Background(), req, func(context.Context) (domain.Response, error) {
				calls.Add(1)
				time.Sleep(5 * time.Millisecond)
				return domain.Response{Status: 201, Body: []byte("once")}, nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[i] = res
		}(i)
	}
	close(start)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly one execution, got %d", got)
	}
	var executed int
	for _, r := range results {
		if r.Outcome == OutcomeExecuted {
			executed++
		}
		if string(r.Response.Body) != "once" {
			t.Fatalf("expected every caller to see the same body, got %q (%s)", r.Response.Body, r.Outcome)
		}
	}
	if executed != 1 {
		t.Fatalf("expected one executed outcome, got %d", executed)
	}
}

func TestService_Do_UsesRequestTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := infra.NewStore()
	svc := Service{Cache: store, TTL: time.Hour, Now: func() time.Time { return now }}

	_, _ = svc.Do(context.Background(), Request{Action: "a", Key: "k1234567", Payload: "p", TTL: time.Second}, created("{}"))

	if res := store.Check("a", "k1234567", mustFP(t, "p"), now.Add(2*time.Second)); res.Outcome != domain.Fresh {
		t.Fatalf("expected request TTL to win over service TTL, got %s", res.Outcome)
	}
}

func mustFP(t *testing.T, payload any) domain.Fingerprint {
	t.Helper()
	fp, err := domain.FingerprintOf(payload)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	return fp
}

// staleHolder monta um serviço com relógio controlado e um executor que só
// termina depois que a reserva venceu e outro chamador retomou a chave.
func staleHolder(t *testing.T, result func() (domain.Response, error)) (Service, *infra.Store, func() domain.CheckResult) {
	t.Helper()
	store := infra.NewStore(infra.WithPendingTTL(time.Second))
	fp := mustFP(t, "p")
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var taken domain.CheckResult

	svc := Service{Cache: store, TTL: time.Hour, Now: func() time.Time { return now }}
	run := func() domain.CheckResult {
		_, _ = svc.Do(context.Background(), Request{Action: "a", Key: "k1234567", Payload: "p"},
			func(context.Context) (domain.Response, error) {
				now = now.Add(2 * time.Second)
				taken = store.Reserve("a", "k1234567", fp, now)
				return result()
			})
		return taken
	}
	return svc, store, run
}

func TestService_Do_StaleFailureKeepsNewHolderReservation(t *testing.T) {
	svc, store, run := staleHolder(t, func() (domain.Response, error) {
		return domain.Response{}, errors.New("upstream down")
	})

	taken := run()
	if taken.Outcome != domain.Fresh || taken.Token == "" {
		t.Fatalf("expected second holder to take over the expired reservation, got %+v", taken)
	}
	if res := store.Check("a", "k1234567", mustFP(t, "p"), svc.Now()); res.Outcome != domain.InProgress {
		t.Fatalf("expected second holder to keep the key, got %s", res.Outcome)
	}
}

func TestService_Do_StaleSuccessDoesNotOverwriteNewHolder(t *testing.T) {
	svc, store, run := staleHolder(t, func() (domain.Response, error) {
		return domain.Response{Status: 201, Body: []byte("late")}, nil
	})

	taken := run()
	if res := store.Check("a", "k1234567", mustFP(t, "p"), svc.Now()); res.Outcome != domain.InProgress {
		t.Fatalf("expected the late response to stay out of the cache, got %s", res.Outcome)
	}
	if err := store.Commit("a", "k1234567", taken.Token, domain.Response{Status: 201, Body: []byte("current")}, time.Hour, svc.Now()); err != nil {
		t.Fatalf("expected second holder to commit, got %v", err)
	}
	if res := store.Check("a", "k1234567", mustFP(t, "p"), svc.Now()); string(res.Response.Body) != "current" {
		t.Fatalf("expected the second holder's response to be cached, got %q", res.Response.Body)
	}
}
