// Package domain define o vocabulário da admissão: WindowSpec e seu parser
// ("COUNT:DURATION"), Decision, o contrato Counter, o SlotPool de concorrência
// e os eventos de estatística. Sem net/http e sem estado.
package domain
