package api

import (
	"fmt"
	"net/http"
	"strconv"

	"action-gateway/middleware/ratelimit"
	rldomain "action-gateway/middleware/ratelimit/domain"
)

func (s *Server) limiterOptions(route string, spec rldomain.WindowSpec) ratelimit.Options {
	return ratelimit.Options{
		Counter:             s.counter,
		Route:               route,
		Spec:                spec,
		Stats:               s.stats,
		KeyHeader:           s.cfg.RateLimit.KeyHeader,
		TrustXForwardedFor:  s.cfg.RateLimit.TrustXFF,
		AddRateLimitHeaders: true,
		Logger:              s.logger,
		Now:                 s.now,
	}
}

func (s *Server) routeLimiter(route string, spec rldomain.WindowSpec) func(http.Handler) http.Handler {
	opts := s.limiterOptions(route, spec)
	opts.OnReject = rejectRoute
	return ratelimit.Middleware(opts)
}

// globalLimiter é o gate por cliente avaliado antes de qualquer rota. Caminhos
// isentos não tocam em nenhum bucket.
func (s *Server) globalLimiter() func(http.Handler) http.Handler {
	opts := s.limiterOptions(rldomain.GlobalRoute, s.cfg.Limits.Global)
	opts.Skip = ratelimit.ExemptPaths(s.cfg.RateLimit.Exempt...)
	opts.OnReject = rejectGlobal
	return ratelimit.Middleware(opts)
}

func windowSeconds(spec rldomain.WindowSpec) string {
	return strconv.FormatFloat(spec.Window.Seconds(), 'f', -1, 64)
}

func rejectRoute(w http.ResponseWriter, _ *http.Request, route string, spec rldomain.WindowSpec, dec rldomain.Decision) {
	writeError(w, http.StatusTooManyRequests, CodeRateLimited,
		fmt.Sprintf("Rate limit exceeded. Maximum %d requests per %s seconds.", spec.Limit, windowSeconds(spec)),
		map[string]any{
			"limit":         spec.Limit,
			"windowSeconds": spec.Window.Seconds(),
			"route":         route,
			"retryAfter":    ratelimit.RetryAfterSeconds(dec.RetryAfter),
		})
}

func rejectGlobal(w http.ResponseWriter, _ *http.Request, _ string, spec rldomain.WindowSpec, dec rldomain.Decision) {
	writeError(w, http.StatusTooManyRequests, CodeRateLimited, "Global rate limit exceeded", map[string]any{
		"limit":         spec.Limit,
		"windowSeconds": spec.Window.Seconds(),
		"type":          "global",
		"retryAfter":    ratelimit.RetryAfterSeconds(dec.RetryAfter),
	})
}

// rejectSaturated responde quando o gateway ficou sem vaga de concorrência
// durante todo o tempo de espera.
func (s *Server) rejectSaturated(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("concurrency limit reached", "type", "concurrency", "path", r.URL.Path)
	w.Header().Set("Retry-After", "1")
	writeError(w, http.StatusServiceUnavailable, CodeServerBusy, "Server is at capacity, try again shortly", map[string]any{
		"capacity":   s.cfg.Concurrency.Max,
		"retryAfter": 1,
	})
}
