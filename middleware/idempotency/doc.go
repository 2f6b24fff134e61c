// Package idempotency adapta o coordenador de idempotência para net/http.
//
// Camadas:
//   - domain: Entry, Outcome, Fingerprint e o contrato Cache
//   - infra: Store em memória com reserva atômica e janitor
//   - application: Service.Do (reserva, executa uma vez, commit, replay)
//
// Este pacote lê a chave do header e escreve o Result na resposta.
package idempotency
