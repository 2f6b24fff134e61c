// Package application aplica as regras de admissão sobre os contratos do domain:
// Service.Decide consulta o contador de janela fixa de uma rota e devolve a
// Decision; ConcurrencyService espera por vaga com timeout. Nada aqui conhece
// net/http.
package application
