package infra

import (
	"context"
	"sync"

	"action-gateway/middleware/ratelimit/domain"
)

// MemoryStatsStore guarda os contadores de decisão em memória.
// É o padrão quando o Redis de estatísticas está desligado.
//
// Não faz expiração: a cardinalidade fica limitada às rotas configuradas
// (e às chaves, se trackKeys estiver ligado).
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   domain.Counters
	byRoute map[string]domain.Counters
	byKey   map[string]domain.Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute: make(map[string]domain.Counters),
		byKey:   make(map[string]domain.Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bump(&s.total, ev.Allowed)

	c := s.byRoute[ev.Route]
	bump(&c, ev.Allowed)
	s.byRoute[ev.Route] = c

	if s.trackKeys {
		k := s.byKey[string(ev.Key)]
		bump(&k, ev.Allowed)
		s.byKey[string(ev.Key)] = k
	}
	return nil
}

func bump(c *domain.Counters, allowed bool) {
	if allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

// Snapshot implementa domain.StatsReader.
func (s *MemoryStatsStore) Snapshot(context.Context) (domain.StatsSnapshot, error) {
	s.mu.Lock()
	total := s.total
	s.mu.Unlock()
	return domain.StatsSnapshot{Total: total, Routes: s.ByRoute()}, nil
}

func (s *MemoryStatsStore) ByRoute() map[string]domain.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Counters, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByKey() map[string]domain.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}
