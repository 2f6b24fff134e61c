package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	rldomain "action-gateway/middleware/ratelimit/domain"
)

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

type healthResponse struct {
	Status      string              `json:"status"`
	Timestamp   string              `json:"timestamp"`
	Uptime      float64             `json:"uptime"`
	Version     string              `json:"version"`
	RateLimit   *healthStats        `json:"rate_limit,omitempty"`
	Concurrency *rldomain.SlotUsage `json:"concurrency,omitempty"`
}

type healthStats struct {
	Allowed int64                        `json:"allowed"`
	Denied  int64                        `json:"denied"`
	Routes  map[string]rldomain.Counters `json:"routes,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	resp := healthResponse{
		Status:    "healthy",
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Uptime:    now.Sub(s.started).Seconds(),
		Version:   s.cfg.Version,
	}

	if s.totals != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		snap, err := s.totals.Snapshot(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("rate limit stats unavailable", "type", "health", "err", err)
		} else {
			resp.RateLimit = &healthStats{Allowed: snap.Total.Allowed, Denied: snap.Total.Denied, Routes: snap.Routes}
		}
	}
	if s.conc.Enabled() {
		u := s.conc.Usage()
		resp.Concurrency = &u
	}

	writeJSON(w, http.StatusOK, resp)
}

func staticAsset(contentType string, body []byte) http.Handler {
	length := strconv.Itoa(len(body))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.Header().Set("Content-Length", length)
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = w.Write(body)
		}
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("route not found", "type", "error", "method", r.Method, "path", r.URL.Path)
	writeError(w, http.StatusNotFound, CodeNotFound, "Route "+r.Method+" "+r.URL.Path+" not found", map[string]any{
		"path":            r.URL.Path,
		"method":          r.Method,
		"availableRoutes": availableRoutes,
	})
}
