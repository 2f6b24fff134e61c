// Package domain define os tipos e contratos do cache de idempotência.
//
// Uma entrada é identificada pelo par (action, key). Ela nasce reservada
// (pendente) quando a chave aparece pela primeira vez, vira committed quando a
// regra de negócio termina e some quando expira. Enquanto viva, status, body e
// fingerprint de uma entrada committed não mudam.
//
// Este pacote não depende de net/http.
package domain
