package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"action-gateway/middleware/idempotency"
	"action-gateway/middleware/idempotency/application"
	"action-gateway/middleware/idempotency/domain"
	idinfra "action-gateway/middleware/idempotency/infra"
	"action-gateway/middleware/ratelimit"
	rldomain "action-gateway/middleware/ratelimit/domain"
	"action-gateway/middleware/ratelimit/infra"

	"github.com/google/uuid"
)

func main() {
	// Exemplo: usando os middlewares direto no seu webserver, sem o gateway completo.
	spec, err := rldomain.ParseWindowSpec(getenvDefault("RATE_LIMIT", "5:10s"))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := infra.NewStore()
	store.StartJanitor(ctx)
	cache := idinfra.NewStore()
	cache.StartJanitor(ctx)

	coord := application.Service{
		Cache:      cache,
		TTL:        time.Hour,
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("POST /payments", func(w http.ResponseWriter, r *http.Request) {
		key, err := idempotency.KeyFromRequest(r, "", idempotency.DefaultMinKeyLength, true)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&payload); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		res, err := coord.Do(r.Context(), application.Request{Action: "payment", Key: key, Payload: payload},
			func(context.Context) (domain.Response, error) {
				body, err := json.Marshal(map[string]string{"payment_id": uuid.NewString()})
				return domain.Response{Status: http.StatusCreated, Body: body}, err
			})
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if idempotency.WriteResult(w, res) {
			return
		}
		switch res.Outcome {
		case application.OutcomeConflict:
			http.Error(w, "idempotency key reused with another payload", http.StatusUnprocessableEntity)
		case application.OutcomeBusy:
			w.Header().Set("Retry-After", "1")
			http.Error(w, "request in progress", http.StatusConflict)
		}
	})

	h := http.Handler(mux)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Counter:             store,
		Route:               "example",
		Spec:                spec,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
		Skip:                ratelimit.ExemptPaths("/health"),
	})(h)

	addr := getenvDefault("LISTEN_ADDR", ":8081")

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("example server listening on %s (limit %s)", addr, spec)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
