package idempotency

import (
	"errors"
	"net/http"
	"strings"

	"action-gateway/middleware/idempotency/application"
	"action-gateway/middleware/idempotency/domain"
)

const (
	DefaultHeader  = "Idempotency-Key"
	ReplayedHeader = "Idempotent-Replayed"
	// DefaultMinKeyLength é o mínimo aceito para uma chave informada pelo cliente.
	DefaultMinKeyLength = 8
)

var (
	ErrMissingKey = errors.New("idempotency key header is required")
	ErrShortKey   = errors.New("idempotency key is too short")
)

// KeyFromRequest lê a chave do header. Com required=false, ausência devolve
// ("", nil) e o chamador segue sem idempotência.
func KeyFromRequest(r *http.Request, header string, minLen int, required bool) (string, error) {
	if header == "" {
		header = DefaultHeader
	}
	key := strings.TrimSpace(r.Header.Get(header))
	if key == "" {
		if required {
			return "", ErrMissingKey
		}
		return "", nil
	}
	if len(key) < minLen {
		return "", ErrShortKey
	}
	return key, nil
}

// WriteResponse escreve o snapshot guardado. No replay marca o header
// Idempotent-Replayed.
func WriteResponse(w http.ResponseWriter, resp domain.Response, replayed bool) {
	for k, v := range resp.Header {
		w.Header().Set(k, v)
	}
	if replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	if w.Header().Get("Content-Type") == "" && len(resp.Body) > 0 {
		w.Header().Set("Content-Type", "application/json")
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

// WriteResult escreve Executed/Replayed. Conflict e Busy dependem do formato de
// erro da API e ficam com o chamador; WriteResult devolve false nesses casos.
func WriteResult(w http.ResponseWriter, res application.Result) bool {
	switch res.Outcome {
	case application.OutcomeExecuted:
		WriteResponse(w, res.Response, false)
		return true
	case application.OutcomeReplayed:
		WriteResponse(w, res.Response, true)
		return true
	default:
		return false
	}
}
