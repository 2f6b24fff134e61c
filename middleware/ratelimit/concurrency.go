package ratelimit

import (
	"net/http"
	"time"

	"action-gateway/middleware/ratelimit/application"
	"action-gateway/middleware/ratelimit/domain"
	"action-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	AcquireTimeout time.Duration

	// OnReject escreve a resposta quando o pool fica cheio até o timeout.
	// Padrão: 503 em texto puro com Retry-After: 1.
	OnReject func(w http.ResponseWriter, r *http.Request)
}

// Concurrency é o limitador de requisições simultâneas. Usage alimenta o /health.
type Concurrency struct {
	opts ConcurrencyOptions
	svc  application.ConcurrencyService
}

func NewConcurrency(opts ConcurrencyOptions) *Concurrency {
	if opts.OnReject == nil {
		opts.OnReject = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	}
	c := &Concurrency{opts: opts}
	if opts.Max > 0 {
		c.svc = application.ConcurrencyService{
			Pool:           infra.NewChanPool(opts.Max),
			AcquireTimeout: opts.AcquireTimeout,
		}
	}
	return c
}

func (c *Concurrency) Enabled() bool { return c != nil && c.opts.Max > 0 }

func (c *Concurrency) Usage() domain.SlotUsage { return c.svc.Usage() }

func (c *Concurrency) Middleware(next http.Handler) http.Handler {
	if !c.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		release, err := c.svc.Acquire(r.Context())
		if err != nil {
			// cliente desistiu enquanto esperava: não há para quem responder
			if r.Context().Err() == nil {
				c.opts.OnReject(w, r)
			}
			return
		}
		defer release()

		next.ServeHTTP(w, r)
	})
}

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	return NewConcurrency(opts).Middleware
}
