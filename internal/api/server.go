// Package api expõe as ações de demonstração sobre HTTP: pedidos, agendamento
// de demos e cotações, com rate limit por rota e idempotência nas rotas que
// mudam estado.
package api

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"action-gateway/internal/config"
	"action-gateway/middleware/idempotency/application"
	idemdomain "action-gateway/middleware/idempotency/domain"
	"action-gateway/middleware/ratelimit"
	rldomain "action-gateway/middleware/ratelimit/domain"
)

type Deps struct {
	Config config.Config
	Logger *slog.Logger

	// Counter é o contador de janela fixa compartilhado por todas as rotas.
	Counter rldomain.Counter
	Stats   rldomain.StatsStore
	// Totals alimenta o /health com os contadores agregados. Opcional.
	Totals rldomain.StatsReader

	Idempotency idemdomain.Cache

	Now  func() time.Time
	Rand func() float64
}

type Server struct {
	cfg     config.Config
	logger  *slog.Logger
	counter rldomain.Counter
	stats   rldomain.StatsStore
	totals  rldomain.StatsReader
	conc    *ratelimit.Concurrency
	auth    authenticator
	idem    application.Service
	schemas *schemas
	now     func() time.Time
	rand    func() float64
	started time.Time

	openapiYAML []byte
	demos       *demoRegistry
}

func New(d Deps) (*Server, error) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Rand == nil {
		d.Rand = rand.Float64
	}
	if d.Counter == nil {
		return nil, fmt.Errorf("api: Counter is required")
	}
	if d.Idempotency == nil {
		return nil, fmt.Errorf("api: Idempotency cache is required")
	}

	sch, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	yamlDoc, err := jsonToYAML(mustAsset("assets/openapi.json"))
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     d.Config,
		logger:  d.Logger,
		counter: d.Counter,
		stats:   d.Stats,
		totals:  d.Totals,
		auth: authenticator{
			token:      d.Config.StaticToken,
			production: d.Config.Production(),
			logger:     d.Logger,
		},
		idem: application.Service{
			Cache:      d.Idempotency,
			TTL:        d.Config.Idempotency.TTL(),
			MaxRetries: d.Config.Idempotency.WaitRetries,
			RetryDelay: d.Config.Idempotency.WaitDelay,
			Now:        d.Now,
			Logger:     d.Logger,
		},
		schemas:     sch,
		now:         d.Now,
		rand:        d.Rand,
		started:     d.Now(),
		openapiYAML: yamlDoc,
		demos:       newDemoRegistry(),
	}
	s.conc = ratelimit.NewConcurrency(ratelimit.ConcurrencyOptions{
		Max:            d.Config.Concurrency.Max,
		AcquireTimeout: d.Config.Concurrency.Timeout,
		OnReject:       s.rejectSaturated,
	})
	return s, nil
}

// Handler monta a cadeia completa:
// request log -> recover -> concorrência -> gate global -> rotas.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.routes()
	h = s.globalLimiter()(h)
	h = s.conc.Middleware(h)
	return observe(s.logger, h)
}

var availableRoutes = []string{
	"GET /ping",
	"GET /health",
	"GET /orders/{order_id}/status",
	"POST /demos",
	"POST /quotes:sandbox",
	"GET /.well-known/agent.json",
	"GET /spec/openapi.json",
	"GET /spec/openapi.yaml",
}

func (s *Server) routes() *http.ServeMux {
	lim := s.cfg.Limits
	mux := http.NewServeMux()

	mux.Handle("GET /ping", s.routeLimiter(config.RoutePing, lim.Ping)(http.HandlerFunc(s.handlePing)))
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("GET /orders/{order_id}/status", s.auth.require("demo:order:read",
		s.routeLimiter(config.RouteOrderStatus, lim.OrderStatus)(http.HandlerFunc(s.handleOrderStatus))))

	mux.Handle("POST /demos", s.auth.require("demo:schedule",
		s.routeLimiter(config.RouteDemos, lim.Demos)(http.HandlerFunc(s.handleScheduleDemo))))

	quotes := s.auth.require("demo:quote:sandbox",
		s.routeLimiter(config.RouteQuotesSandbox, lim.QuotesSandbox)(http.HandlerFunc(s.handleQuoteSandbox)))
	mux.Handle("POST /quotes:sandbox", quotes)
	mux.Handle("POST /quotes/sandbox", quotes)

	mux.Handle("GET /.well-known/agent.json", staticAsset("application/json", mustAsset("assets/agent.json")))
	mux.Handle("GET /spec/openapi.json", staticAsset("application/json", mustAsset("assets/openapi.json")))
	mux.Handle("GET /spec/openapi.yaml", staticAsset("text/yaml", s.openapiYAML))

	mux.HandleFunc("/", s.handleNotFound)
	return mux
}
