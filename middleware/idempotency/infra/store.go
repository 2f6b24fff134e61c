package infra

import (
	"sync"
	"time"

	"action-gateway/middleware/idempotency/domain"

	"github.com/google/uuid"
)

type entryKey struct {
	action string
	key    string
}

// Store implementa domain.Cache.
type Store struct {
	mu      sync.Mutex
	entries map[entryKey]*domain.Entry

	// pendingTTL limita quanto tempo uma reserva abandonada bloqueia a chave.
	pendingTTL   time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type StoreOption func(*Store)

func WithPendingTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.pendingTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

// WithClock troca o relógio usado pelo janitor (testes).
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries:      make(map[entryKey]*domain.Entry),
		pendingTTL:   time.Minute,
		cleanupEvery: 5 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lookup devolve a entrada viva, removendo-a se já expirou. Exige s.mu.
func (s *Store) lookup(k entryKey, now time.Time) *domain.Entry {
	e, ok := s.entries[k]
	if !ok {
		return nil
	}
	if e.Expired(now) {
		delete(s.entries, k)
		return nil
	}
	return e
}

func classify(e *domain.Entry, fp domain.Fingerprint) domain.CheckResult {
	if e.Fingerprint != fp {
		return domain.CheckResult{Outcome: domain.Conflict}
	}
	if !e.Committed {
		return domain.CheckResult{Outcome: domain.InProgress}
	}
	return domain.CheckResult{Outcome: domain.HitSame, Response: e.Response.Clone()}
}

func (s *Store) Check(action, key string, fp domain.Fingerprint, now time.Time) domain.CheckResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(entryKey{action, key}, now)
	if e == nil {
		return domain.CheckResult{Outcome: domain.Fresh}
	}
	return classify(e, fp)
}

// Reserve faz Fresh -> InProgress de forma atômica. Só quem recebe Fresh
// detém a reserva e deve chamar Commit ou Release com o Token devolvido.
func (s *Store) Reserve(action, key string, fp domain.Fingerprint, now time.Time) domain.CheckResult {
	k := entryKey{action, key}
	token := domain.Token(uuid.NewString())

	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.lookup(k, now); e != nil {
		return classify(e, fp)
	}
	s.entries[k] = &domain.Entry{
		Action:      action,
		Key:         key,
		Fingerprint: fp,
		Token:       token,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.pendingTTL),
	}
	return domain.CheckResult{Outcome: domain.Fresh, Token: token}
}

// held devolve a reserva pendente de k se ela pertence a token. Exige s.mu.
func (s *Store) held(k entryKey, token domain.Token, now time.Time) *domain.Entry {
	e := s.lookup(k, now)
	if e == nil || e.Committed || e.Token != token {
		return nil
	}
	return e
}

// Commit guarda a resposta; a expiração conta a partir do commit.
func (s *Store) Commit(action, key string, token domain.Token, resp domain.Response, ttl time.Duration, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.held(entryKey{action, key}, token, now)
	if e == nil {
		return domain.ErrNotReserved
	}
	e.Committed = true
	e.Response = resp.Clone()
	e.ExpiresAt = now.Add(ttl)
	return nil
}

// Release devolve a chave para Fresh quando a execução falhou antes de
// produzir resposta. Entradas committed e reservas de outro token não são
// afetadas.
func (s *Store) Release(action, key string, token domain.Token) {
	k := entryKey{action, key}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[k]; ok && !e.Committed && e.Token == token {
		delete(s.entries, k)
	}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup remove entradas expiradas que nunca mais foram consultadas.
func (s *Store) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia a varredura periódica. Pare cancelando o contexto.
func (s *Store) StartJanitor(ctx interface{ Done() <-chan struct{} }) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
