// Package application implementa o protocolo de coordenação de uma rota
// mutável: reserva da chave, execução única da regra de negócio, commit da
// resposta e replay nas repetições.
//
// Não conhece net/http; o adaptador HTTP fica no pacote idempotency.
package application
