package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

type Key string

// UnknownKey é usado quando não foi possível identificar o cliente.
// O gate degrada para um bucket compartilhado em vez de liberar o tráfego.
const UnknownKey Key = "unknown"

// GlobalRoute é a rota reservada do bucket global, avaliado antes de qualquer rota.
const GlobalRoute = "*"

// Counter decide a admissão de uma requisição para o par (rota, cliente)
// usando janela fixa.
//
// A implementação deve ser atômica por bucket: duas chamadas concorrentes
// não podem ler o mesmo count e escrever o mesmo count+1.
type Counter interface {
	Admit(route string, client Key, spec WindowSpec, now time.Time) Decision
}

type Decision struct {
	Allowed bool

	Limit     int
	Remaining int
	// ResetAt é o fim da janela corrente do bucket.
	ResetAt time.Time

	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
