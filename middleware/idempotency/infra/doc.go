// Package infra implementa o cache de idempotência em memória do processo.
//
// Um único mutex protege o mapa: as transições de estado são O(1) e nenhuma
// delas executa regra de negócio, que roda fora do lock.
package infra
