package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas
// e podem ser usadas para web, gRPC, etc.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
// Por isso as agregações usam Route (nome configurado), não Path.
type StatsEvent struct {
	Key     Key
	Route   string
	Allowed bool

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// Implementações podem armazenar em Redis, Postgres, memória, etc.
// O middleware deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// StatsSnapshot é a leitura agregada exposta no /health. Routes inclui o gate
// global sob GlobalRoute.
type StatsSnapshot struct {
	Total  Counters            `json:"total"`
	Routes map[string]Counters `json:"routes"`
}

type StatsReader interface {
	Snapshot(ctx context.Context) (StatsSnapshot, error)
}
