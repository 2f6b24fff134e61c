// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos, tipos e o parser "COUNT:DURATION" (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny, acquire/timeout) sem net/http
//   - infra: implementações concretas (janela fixa, semáforo, estatísticas)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//   1) Rotas isentas (Skip) passam direto, sem tocar em bucket
//   2) Extrai a chave do cliente (IP/header/XFF, "unknown" como último recurso)
//   3) Gate global (domain.GlobalRoute) e depois o gate da rota
//   4) Se bloqueado, responde 429 com Retry-After e X-RateLimit-*
//   5) Se permitido, chama o próximo handler
//
// A configuração vem de internal/config (RATE_LIMIT_GLOBAL, RATE_LIMIT_DEMOS, ...).
package ratelimit
