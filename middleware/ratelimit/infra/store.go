package infra

import (
	"sync"
	"time"

	"action-gateway/middleware/ratelimit/domain"
)

// Store é o contador de janela fixa por (rota, cliente), com limpeza periódica
// dos buckets cuja janela já terminou.
type Store struct {
	mu           sync.Mutex
	buckets      map[bucketKey]*bucket
	cleanupEvery time.Duration
	now          func() time.Time
}

type bucketKey struct {
	route  string
	client domain.Key
}

type bucket struct {
	count       int
	windowStart time.Time
	resetAt     time.Time
}

type StoreOption func(*Store)

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

// WithClock troca o relógio usado pelo janitor (testes).
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		buckets:      make(map[bucketKey]*bucket),
		cleanupEvery: time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) CleanupEvery() time.Duration { return s.cleanupEvery }

// Admit implementa domain.Counter.
//
// O incremento acontece mesmo quando a requisição é rejeitada: quem insiste
// continua consumindo a mesma janela (janela fixa estrita).
func (s *Store) Admit(route string, client domain.Key, spec domain.WindowSpec, now time.Time) domain.Decision {
	if client == "" {
		client = domain.UnknownKey
	}
	k := bucketKey{route: route, client: client}

	s.mu.Lock()
	b, ok := s.buckets[k]
	if !ok {
		b = &bucket{windowStart: now}
		s.buckets[k] = b
	}
	if !now.Before(b.windowStart.Add(spec.Window)) {
		b.count = 0
		b.windowStart = now
	}
	b.count++
	b.resetAt = b.windowStart.Add(spec.Window)
	count := b.count
	resetAt := b.resetAt
	s.mu.Unlock()

	dec := domain.Decision{
		Allowed:   count <= spec.Limit,
		Limit:     spec.Limit,
		Remaining: max(0, spec.Limit-count),
		ResetAt:   resetAt,
	}
	if !dec.Allowed {
		dec.RetryAfter = resetAt.Sub(now)
	}
	return dec
}

// Len retorna quantos buckets estão em memória.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Cleanup remove buckets cuja janela já acabou. A próxima requisição do par
// criaria uma janela nova de qualquer forma, então remover é invisível.
func (s *Store) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, b := range s.buckets {
		if !now.Before(b.resetAt) {
			delete(s.buckets, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa buckets vencidos periodicamente.
// Pare cancelando o contexto.
func (s *Store) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, s.Cleanup)
}

func startJanitor(ctx DoneContext, every time.Duration, cleanup func()) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}
