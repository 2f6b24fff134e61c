package domain

import (
	"context"
	"errors"
)

// ErrSaturated indica que nenhuma vaga abriu dentro do tempo de espera.
var ErrSaturated = errors.New("ratelimit: no free slot")

// SlotPool limita quantas requisições o gateway atende ao mesmo tempo.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar; o release
// retornado pode ser chamado mais de uma vez sem efeito extra.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), err error)
	Usage() SlotUsage
}

// SlotUsage é a fotografia do pool exposta no /health.
type SlotUsage struct {
	InFlight int `json:"in_flight"`
	Capacity int `json:"capacity"`
	Peak     int `json:"peak"`
}
