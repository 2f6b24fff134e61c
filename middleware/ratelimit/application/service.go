package application

import (
	"time"

	"action-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit de uma rota.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// O gate global é só outro Service com Route = domain.GlobalRoute.
type Service struct {
	Counter domain.Counter
	Route   string
	Spec    domain.WindowSpec
	Now     func() time.Time
}

func (s Service) Decide(key domain.Key) domain.Decision {
	if s.Counter == nil || s.Spec.Limit <= 0 {
		return domain.Decision{Allowed: true}
	}
	if key == "" {
		key = domain.UnknownKey
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	dec := s.Counter.Admit(s.Route, key, s.Spec, now)
	if !dec.Allowed && dec.RetryAfter < time.Second {
		dec.RetryAfter = time.Second
	}
	return dec
}
