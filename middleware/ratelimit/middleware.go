package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"action-gateway/middleware/ratelimit/application"
	"action-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

type KeyFunc func(r *http.Request) string

// RejectFunc escreve a resposta de bloqueio. O padrão é texto simples.
type RejectFunc func(w http.ResponseWriter, r *http.Request, route string, spec domain.WindowSpec, dec domain.Decision)

type Options struct {
	Counter             domain.Counter
	Route               string
	Spec                domain.WindowSpec
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	AddRateLimitHeaders bool

	// Skip marca rotas isentas (ex.: health checks). Requisições puladas
	// não tocam em nenhum bucket.
	Skip     func(r *http.Request) bool
	OnReject RejectFunc
	Logger   *slog.Logger
	Now      func() time.Time
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// primeiro salto do X-Forwarded-For é o cliente original
			first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}

		addr := strings.TrimSpace(r.RemoteAddr)
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			return host
		}
		if addr != "" {
			return addr
		}
		// sem identificação: todos caem no mesmo bucket, nunca passam direto
		return string(domain.UnknownKey)
	}
}

// ExemptPaths devolve um Skip que isenta os caminhos exatos e seus subcaminhos
// ("/health" isenta "/health" e "/health/live", mas não "/healthz").
func ExemptPaths(paths ...string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		for _, p := range paths {
			p = strings.TrimRight(strings.TrimSpace(p), "/")
			if p == "" {
				continue
			}
			if r.URL.Path == p || strings.HasPrefix(r.URL.Path, p+"/") {
				return true
			}
		}
		return false
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.OnReject == nil {
		status := opts.RejectStatus
		opts.OnReject = func(w http.ResponseWriter, _ *http.Request, _ string, _ domain.WindowSpec, _ domain.Decision) {
			http.Error(w, http.StatusText(status), status)
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	svc := application.Service{
		Counter: opts.Counter,
		Route:   opts.Route,
		Spec:    opts.Spec,
		Now:     opts.Now,
	}
	// um flood de 429 (ou um Redis fora do ar) não pode virar um flood de log
	logRejects := &rate.Sometimes{Interval: time.Second}
	logStatsErrors := &rate.Sometimes{Interval: time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Skip != nil && opts.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			key := opts.KeyFn(r)
			dec := svc.Decide(domain.Key(key))

			if opts.AddRateLimitHeaders {
				setRateLimitHeaders(w, dec)
			}
			if opts.Stats != nil {
				// best-effort: falha no sink não derruba a requisição
				err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     domain.Key(key),
					Route:   opts.Route,
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      opts.Now(),
				})
				if err != nil {
					logStatsErrors.Do(func() {
						opts.Logger.Warn("rate limit stats record failed",
							"type", "rate_limit",
							"route", opts.Route,
							"err", err,
						)
					})
				}
			}
			if !dec.Allowed {
				logRejects.Do(func() {
					opts.Logger.Warn("rate limit exceeded",
						"type", "rate_limit",
						"route", opts.Route,
						"key", key,
						"path", r.URL.Path,
						"limit", opts.Spec.Limit,
						"window", opts.Spec.Window.String(),
						"reset_at", dec.ResetAt,
					)
				})
				w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds(dec.RetryAfter)))
				opts.OnReject(w, r, opts.Route, opts.Spec, dec)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, dec domain.Decision) {
	if dec.Limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(dec.ResetAt.Unix(), 10))
}

// RetryAfterSeconds arredonda para cima: Retry-After=0 faria o cliente
// voltar antes da janela virar.
func RetryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}
