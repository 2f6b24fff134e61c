//go:build cucumber

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"action-gateway/internal/config"
	"action-gateway/middleware/ratelimit/domain"
)

// TestGatewayFeatures roda os cenários de rate limit e idempotência.
func TestGatewayFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "gateway",
		ScenarioInitializer: InitializeGatewayScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{filepath.Join("testdata", "features")},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatalf("non-zero godog status")
	}
}

// InitializeGatewayScenario registra os passos dos cenários.
func InitializeGatewayScenario(ctx *godog.ScenarioContext) {
	state := &gatewayState{}
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		state.reset()
		return ctx, nil
	})

	ctx.Step(`^the window spec "([^"]*)" allows (\d+) requests every (\d+) seconds$`, state.thenSpecAllows)
	ctx.Step(`^the window spec "([^"]*)" is rejected$`, state.thenSpecRejected)
	ctx.Step(`^the "([^"]+)" limit is "([^"]+)"$`, state.givenLimit)
	ctx.Step(`^idempotency entries live for (\d+) seconds$`, state.givenIdempotencyTTL)
	ctx.Step(`^I send GET "([^"]+)" (\d+) times$`, state.whenGet)
	ctx.Step(`^(\d+) seconds pass$`, state.whenTimePasses)
	ctx.Step(`^I schedule a demo with key "([^"]+)":$`, state.whenScheduleDemo)
	ctx.Step(`^the response status is (\d+)$`, state.thenStatus)
	ctx.Step(`^the error code is "([^"]+)"$`, state.thenErrorCode)
	ctx.Step(`^the response header "([^"]+)" is "([^"]*)"$`, state.thenHeader)
	ctx.Step(`^the response body matches the first response$`, state.thenSameBody)
	ctx.Step(`^the response body differs from the first response$`, state.thenDifferentBody)
}

type gatewayState struct {
	mutations []func(*config.Config)
	now       time.Time
	env       *testEnv
	first     *httptest.ResponseRecorder
	last      *httptest.ResponseRecorder
}

// reset limpa o estado entre cenários.
func (s *gatewayState) reset() {
	*s = gatewayState{now: testNow}
}

// server monta o gateway na primeira requisição, depois dos Givens.
func (s *gatewayState) server() (*testEnv, error) {
	if s.env != nil {
		return s.env, nil
	}
	env, err := buildTestEnv(func(c *config.Config) {
		for _, m := range s.mutations {
			m(c)
		}
	}, func(d *Deps) {
		d.Now = func() time.Time { return s.now }
	})
	if err != nil {
		return nil, err
	}
	s.env = env
	return env, nil
}

func (s *gatewayState) record(rr *httptest.ResponseRecorder) {
	if s.first == nil {
		s.first = rr
	}
	s.last = rr
}

func (s *gatewayState) thenSpecAllows(raw string, limit, seconds int) error {
	ws, err := domain.ParseWindowSpec(raw)
	if err != nil {
		return err
	}
	if ws.Limit != limit || ws.Window != time.Duration(seconds)*time.Second {
		return fmt.Errorf("expected %d per %ds, got %+v", limit, seconds, ws)
	}
	return nil
}

func (s *gatewayState) thenSpecRejected(raw string) error {
	if _, err := domain.ParseWindowSpec(raw); err == nil {
		return fmt.Errorf("expected %q to be rejected", raw)
	}
	return nil
}

func (s *gatewayState) givenLimit(route, spec string) error {
	s.mutations = append(s.mutations, func(c *config.Config) {
		switch route {
		case "global":
			c.RateLimit.Global = spec
		case config.RoutePing:
			c.RateLimit.Ping = spec
		case config.RouteOrderStatus:
			c.RateLimit.OrderStatus = spec
		case config.RouteDemos:
			c.RateLimit.Demos = spec
		case config.RouteQuotesSandbox:
			c.RateLimit.QuotesSandbox = spec
		}
	})
	return nil
}

func (s *gatewayState) givenIdempotencyTTL(seconds int) error {
	s.mutations = append(s.mutations, func(c *config.Config) {
		c.Idempotency.TTLSeconds = seconds
	})
	return nil
}

func (s *gatewayState) whenGet(path string, times int) error {
	env, err := s.server()
	if err != nil {
		return err
	}
	for i := 0; i < times; i++ {
		s.record(env.do(http.MethodGet, path, "", nil))
	}
	return nil
}

func (s *gatewayState) whenTimePasses(seconds int) error {
	s.now = s.now.Add(time.Duration(seconds) * time.Second)
	return nil
}

func (s *gatewayState) whenScheduleDemo(key string, body *godog.DocString) error {
	env, err := s.server()
	if err != nil {
		return err
	}
	s.record(env.do(http.MethodPost, "/demos", body.Content, authHeader(map[string]string{"Idempotency-Key": key})))
	return nil
}

func (s *gatewayState) thenStatus(status int) error {
	if s.last == nil {
		return fmt.Errorf("no request was sent")
	}
	if s.last.Code != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, s.last.Code, s.last.Body.String())
	}
	return nil
}

func (s *gatewayState) thenErrorCode(code string) error {
	var e APIError
	if err := json.Unmarshal(s.last.Body.Bytes(), &e); err != nil {
		return fmt.Errorf("decode error body: %w", err)
	}
	if e.Code != code {
		return fmt.Errorf("expected error code %s, got %s", code, e.Code)
	}
	return nil
}

func (s *gatewayState) thenHeader(name, value string) error {
	if got := s.last.Header().Get(name); got != value {
		return fmt.Errorf("expected header %s=%q, got %q", name, value, got)
	}
	return nil
}

func (s *gatewayState) thenSameBody() error {
	if strings.TrimSpace(s.last.Body.String()) != strings.TrimSpace(s.first.Body.String()) {
		return fmt.Errorf("expected %s, got %s", s.first.Body.String(), s.last.Body.String())
	}
	return nil
}

func (s *gatewayState) thenDifferentBody() error {
	if s.last.Body.String() == s.first.Body.String() {
		return fmt.Errorf("expected a new response, got the first one again")
	}
	return nil
}
