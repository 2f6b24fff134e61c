package application

import (
	"context"
	"errors"
	"time"

	"action-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService aplica o tempo máximo de espera por vaga.
//
// Distingue as duas formas de não conseguir vaga: o cliente desistiu
// (retorna ctx.Err() do contexto da requisição) ou o pool continuou cheio
// até o timeout (retorna domain.ErrSaturated).
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, err := s.Pool.Acquire(acqCtx)
	if err == nil {
		return release, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, domain.ErrSaturated
	}
	return nil, err
}

func (s ConcurrencyService) Usage() domain.SlotUsage {
	if s.Pool == nil {
		return domain.SlotUsage{}
	}
	return s.Pool.Usage()
}
