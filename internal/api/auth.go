package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"slices"
	"strings"
)

// Escopos concedidos ao token estático.
var allScopes = []string{"demo:read", "demo:schedule", "demo:order:read", "demo:quote:sandbox"}

type Principal struct {
	Subject string
	Scopes  []string
}

func principalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxPrincipal).(Principal)
	return p, ok
}

// authenticator valida "Authorization: Bearer <token>".
//
// Com token configurado a comparação é em tempo constante. Sem token, fora de
// produção qualquer bearer passa (com aviso); em produção a requisição falha
// com 500 porque o servidor está mal configurado.
type authenticator struct {
	token      string
	production bool
	logger     *slog.Logger
}

func (a authenticator) require(scope string, next http.Handler) http.Handler {
	return a.authenticate(requireScope(scope, a.logger, next))
}

func (a authenticator) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			a.logger.Warn("missing authorization header", "type", "auth", "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Missing Authorization header", nil)
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			a.logger.Warn("invalid authorization header", "type", "auth", "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid Authorization header format", nil)
			return
		}

		var p Principal
		switch {
		case a.token != "":
			if subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
				a.logger.Warn("static token mismatch", "type", "auth", "path", r.URL.Path, "token_prefix", prefix(token, 4))
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid token", nil)
				return
			}
			p = Principal{Subject: "static-user", Scopes: allScopes}
		case !a.production:
			a.logger.Warn("STATIC_TOKEN not configured, allowing any bearer token", "type", "auth", "path", r.URL.Path)
			p = Principal{Subject: "dev-user", Scopes: allScopes}
		default:
			a.logger.Error("no authentication configured in production", "type", "auth", "path", r.URL.Path)
			writeError(w, http.StatusInternalServerError, CodeInternal, "Authentication not configured", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxPrincipal, p)))
	})
}

func requireScope(scope string, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required", nil)
			return
		}
		if !slices.Contains(p.Scopes, scope) {
			logger.Warn("insufficient scope", "type", "auth", "path", r.URL.Path, "user", p.Subject, "required_scope", scope)
			writeError(w, http.StatusForbidden, CodeForbidden, "Insufficient scope. Required: "+scope, map[string]any{
				"requiredScope": scope,
				"userScopes":    p.Scopes,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
