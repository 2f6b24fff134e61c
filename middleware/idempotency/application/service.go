package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"action-gateway/middleware/idempotency/domain"
)

// DefaultTTL é o tempo de vida de uma resposta committed quando nem o
// Request nem o Service definem outro.
const DefaultTTL = 2 * time.Hour

type Outcome int

const (
	// OutcomeExecuted: a regra de negócio rodou nesta chamada e a resposta foi guardada.
	OutcomeExecuted Outcome = iota
	// OutcomeReplayed: a resposta veio do cache, nada foi executado.
	OutcomeReplayed
	// OutcomeConflict: a chave já foi usada com outro payload.
	OutcomeConflict
	// OutcomeBusy: outra requisição com a mesma chave continua executando
	// depois de todas as tentativas de espera.
	OutcomeBusy
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExecuted:
		return "executed"
	case OutcomeReplayed:
		return "replayed"
	case OutcomeConflict:
		return "conflict"
	case OutcomeBusy:
		return "busy"
	default:
		return "unknown"
	}
}

type Request struct {
	Action  string
	Key     string
	Payload any
	// TTL sobrescreve Service.TTL quando > 0.
	TTL time.Duration
}

// Executor é a regra de negócio. Um erro (ou panic) libera a reserva.
type Executor func(ctx context.Context) (domain.Response, error)

type Result struct {
	Outcome  Outcome
	Response domain.Response
	// RetryAfter só é preenchido em OutcomeBusy.
	RetryAfter time.Duration
}

type Service struct {
	Cache domain.Cache
	TTL   time.Duration

	// MaxRetries e RetryDelay controlam a espera quando a chave está InProgress.
	// MaxRetries = 0 devolve OutcomeBusy na primeira colisão.
	MaxRetries int
	RetryDelay time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s Service) ttl(req Request) time.Duration {
	switch {
	case req.TTL > 0:
		return req.TTL
	case s.TTL > 0:
		return s.TTL
	default:
		return DefaultTTL
	}
}

// Do executa fn no máximo uma vez por (Action, Key) enquanto a entrada viver.
//
// Os únicos erros retornados são falha de fingerprint, falha do executor e
// cancelamento do contexto durante a espera. Conflito e ocupado são Outcomes.
func (s Service) Do(ctx context.Context, req Request, fn Executor) (Result, error) {
	if s.Cache == nil {
		return Result{}, errors.New("idempotency: service has no cache")
	}
	fp, err := domain.FingerprintOf(req.Payload)
	if err != nil {
		return Result{}, err
	}

	for attempt := 0; ; attempt++ {
		res := s.Cache.Reserve(req.Action, req.Key, fp, s.now())

		switch res.Outcome {
		case domain.Fresh:
			return s.execute(ctx, req, res.Token, fn)
		case domain.HitSame:
			return Result{Outcome: OutcomeReplayed, Response: res.Response}, nil
		case domain.Conflict:
			return Result{Outcome: OutcomeConflict}, nil
		}

		// InProgress
		if attempt >= s.MaxRetries {
			s.logger().Warn("idempotency key busy",
				"type", "idempotency",
				"action", req.Action,
				"key", req.Key,
				"attempts", attempt+1,
			)
			return Result{Outcome: OutcomeBusy, RetryAfter: max(s.RetryDelay, time.Second)}, nil
		}
		if err := sleep(ctx, s.RetryDelay); err != nil {
			return Result{}, err
		}
	}
}

func (s Service) execute(ctx context.Context, req Request, token domain.Token, fn Executor) (res Result, err error) {
	settled := false
	defer func() {
		if !settled {
			s.Cache.Release(req.Action, req.Key, token)
		}
	}()

	resp, err := fn(ctx)
	if err != nil {
		return Result{}, err
	}

	// Commit recusado significa que a reserva venceu e foi retomada por outro
	// detentor: a resposta vale para este cliente, mas não vai para o cache.
	settled = true
	if err := s.Cache.Commit(req.Action, req.Key, token, resp, s.ttl(req), s.now()); err != nil {
		s.logger().Warn("idempotency commit failed",
			"type", "idempotency",
			"action", req.Action,
			"key", req.Key,
			"err", err,
		)
	}
	return Result{Outcome: OutcomeExecuted, Response: resp}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
