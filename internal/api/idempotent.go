package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"action-gateway/middleware/idempotency"
	"action-gateway/middleware/idempotency/application"
	"action-gateway/middleware/idempotency/domain"
	"action-gateway/middleware/ratelimit"
)

// jsonResponse monta o snapshot que vai para o cache e para o cliente.
func jsonResponse(status int, v any, header map[string]string) (domain.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return domain.Response{}, err
	}
	h := map[string]string{"Content-Type": "application/json"}
	for k, val := range header {
		h[k] = val
	}
	return domain.Response{Status: status, Body: body, Header: h}, nil
}

// idempotencyKey valida o header; em caso de erro a resposta 400 já foi escrita.
func idempotencyKey(w http.ResponseWriter, r *http.Request, required bool) (string, bool) {
	key, err := idempotency.KeyFromRequest(r, idempotency.DefaultHeader, idempotency.DefaultMinKeyLength, required)
	switch {
	case errors.Is(err, idempotency.ErrMissingKey):
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Idempotency-Key header is required", map[string]any{
			"field":   idempotency.DefaultHeader,
			"message": "This endpoint requires an Idempotency-Key header for safe retries",
		})
		return "", false
	case errors.Is(err, idempotency.ErrShortKey):
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Idempotency-Key must be at least 8 characters", map[string]any{
			"field":        idempotency.DefaultHeader,
			"minLength":    idempotency.DefaultMinKeyLength,
			"actualLength": len(r.Header.Get(idempotency.DefaultHeader)),
		})
		return "", false
	}
	return key, true
}

// runIdempotent passa a execução pelo coordenador e traduz o resultado em HTTP.
func (s *Server) runIdempotent(w http.ResponseWriter, r *http.Request, req application.Request, fn application.Executor) {
	res, err := s.idem.Do(r.Context(), req, fn)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.logger.Info("request canceled while waiting for idempotency key", "type", "idempotency", "action", req.Action)
			return
		}
		s.logger.Error("idempotent execution failed",
			"type", "idempotency",
			"action", req.Action,
			"request_id", requestIDFrom(r.Context()),
			"err", err,
		)
		writeError(w, http.StatusInternalServerError, CodeInternal, "Internal server error", nil)
		return
	}

	if idempotency.WriteResult(w, res) {
		if res.Outcome == application.OutcomeReplayed {
			s.logger.Info("idempotency hit", "type", "idempotency", "action", req.Action, "key", prefix(req.Key, 8))
		}
		return
	}

	switch res.Outcome {
	case application.OutcomeConflict:
		writeError(w, http.StatusUnprocessableEntity, CodeIdempotencyConflict,
			"Idempotency-Key was already used with a different request payload",
			map[string]any{"action": req.Action, "field": idempotency.DefaultHeader})
	case application.OutcomeBusy:
		retry := ratelimit.RetryAfterSeconds(res.RetryAfter)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeError(w, http.StatusConflict, CodeRequestInProgress,
			"A request with the same Idempotency-Key is still being processed",
			map[string]any{"action": req.Action, "retryAfter": retry})
	}
}
