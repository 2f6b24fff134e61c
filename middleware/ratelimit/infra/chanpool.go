package infra

import (
	"context"
	"sync"

	"action-gateway/middleware/ratelimit/domain"
)

// ChanPool é um semáforo em channel que também guarda o pico de ocupação.
type ChanPool struct {
	sem chan struct{}

	mu   sync.Mutex
	peak int
}

func NewChanPool(capacity int) *ChanPool {
	return &ChanPool{sem: make(chan struct{}, capacity)}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	p.peak = max(p.peak, len(p.sem))
	p.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { <-p.sem }) }, nil
}

func (p *ChanPool) Usage() domain.SlotUsage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return domain.SlotUsage{InFlight: len(p.sem), Capacity: cap(p.sem), Peak: p.peak}
}
