// Package infra guarda o estado em processo do gateway: o contador de janela
// fixa por (rota, cliente) com seu janitor, o semáforo de concorrência e os
// sinks de estatística (memória ou Redis).
package infra
