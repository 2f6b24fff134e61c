package domain

import (
	"errors"
	"maps"
	"slices"
	"time"
)

// Outcome é o resultado de Check/Reserve. É um conjunto fechado: quem chama
// deve tratar todos os casos.
type Outcome int

const (
	// Fresh: não há entrada viva. Em Reserve, significa que a reserva é sua.
	Fresh Outcome = iota
	// HitSame: entrada committed com o mesmo fingerprint; devolva a resposta guardada.
	HitSame
	// Conflict: a chave já foi usada com outro payload.
	Conflict
	// InProgress: outra requisição com a mesma chave está executando.
	InProgress
)

func (o Outcome) String() string {
	switch o {
	case Fresh:
		return "fresh"
	case HitSame:
		return "hit_same"
	case Conflict:
		return "conflict"
	case InProgress:
		return "in_progress"
	default:
		return "unknown"
	}
}

// Response é o snapshot da resposta guardado para replay.
type Response struct {
	Status int
	Body   []byte
	// Header guarda os headers que precisam voltar no replay (ex.: Location).
	Header map[string]string
}

// Clone devolve uma cópia que não compartilha memória com o cache.
func (r Response) Clone() Response {
	return Response{
		Status: r.Status,
		Body:   slices.Clone(r.Body),
		Header: maps.Clone(r.Header),
	}
}

// Token identifica quem detém uma reserva. Commit e Release só agem sobre a
// reserva emitida com o mesmo token.
type Token string

type Entry struct {
	Action      string
	Key         string
	Fingerprint Fingerprint
	Token       Token
	Committed   bool
	Response    Response
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired segue a regra "now > expiresAt": no instante exato ainda está viva.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

type CheckResult struct {
	Outcome Outcome
	// Response só é preenchido quando Outcome == HitSame.
	Response Response
	// Token só é preenchido quando Reserve devolve Fresh.
	Token Token
}

// ErrNotReserved: não há reserva pendente para a chave com o token informado
// (nunca reservada, já committed, expirada ou tomada por outro detentor).
var ErrNotReserved = errors.New("idempotency: no reservation held for key")

// Cache é o armazenamento de entradas de idempotência.
//
// Reserve precisa ser atômico: entre chamadas simultâneas que veriam Fresh,
// exatamente uma recebe Fresh (a reserva, com seu Token); as demais recebem
// InProgress, HitSame ou Conflict. Uma reserva vencida pode ser retomada por
// outro chamador, e daí em diante o token antigo não commita nem libera nada.
type Cache interface {
	Check(action, key string, fp Fingerprint, now time.Time) CheckResult
	Reserve(action, key string, fp Fingerprint, now time.Time) CheckResult
	Commit(action, key string, token Token, resp Response, ttl time.Duration, now time.Time) error
	Release(action, key string, token Token)
}
