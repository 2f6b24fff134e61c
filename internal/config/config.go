// Package config carrega a configuração do gateway: defaults, arquivo YAML
// opcional e variáveis de ambiente, nessa ordem de precedência crescente.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"action-gateway/middleware/ratelimit/domain"

	"gopkg.in/yaml.v3"
)

// Nomes das rotas com limite próprio. Aparecem no corpo do 429 e nas métricas.
const (
	RoutePing          = "ping"
	RouteOrderStatus   = "orderStatus"
	RouteDemos         = "demos"
	RouteQuotesSandbox = "quotesSandbox"
)

type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	BaseURL     string `yaml:"base_url"`
	Env         string `yaml:"env"`
	StaticToken string `yaml:"static_token"`
	Version     string `yaml:"version"`
	LogLevel    string `yaml:"log_level"`

	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Stats       StatsConfig       `yaml:"stats"`
	Demo        DemoConfig        `yaml:"demo"`

	CleanupEvery time.Duration `yaml:"cleanup_every"`

	// Limits é preenchido por Load a partir de RateLimit.
	Limits Limits `yaml:"-"`
}

type RateLimitConfig struct {
	Global        string   `yaml:"global"`
	Ping          string   `yaml:"ping"`
	OrderStatus   string   `yaml:"order_status"`
	Demos         string   `yaml:"demos"`
	QuotesSandbox string   `yaml:"quotes_sandbox"`
	Exempt        []string `yaml:"exempt"`
	KeyHeader     string   `yaml:"key_header"`
	TrustXFF      bool     `yaml:"trust_xff"`
}

type IdempotencyConfig struct {
	TTLSeconds  int           `yaml:"ttl_seconds"`
	PendingTTL  time.Duration `yaml:"pending_ttl"`
	WaitRetries int           `yaml:"wait_retries"`
	WaitDelay   time.Duration `yaml:"wait_delay"`
}

func (c IdempotencyConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type ConcurrencyConfig struct {
	Max     int           `yaml:"max"`
	Timeout time.Duration `yaml:"timeout"`
}

type StatsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Prefix        string        `yaml:"prefix"`
	TTL           time.Duration `yaml:"ttl"`
	Bucket        string        `yaml:"bucket"`
	TrackKeys     bool          `yaml:"track_keys"`
}

type DemoConfig struct {
	// ReviewRate é a fração de agendamentos que volta 202 (revisão humana).
	ReviewRate float64 `yaml:"review_rate"`
}

// Limits guarda as janelas já validadas, uma por rota.
type Limits struct {
	Global        domain.WindowSpec
	Ping          domain.WindowSpec
	OrderStatus   domain.WindowSpec
	Demos         domain.WindowSpec
	QuotesSandbox domain.WindowSpec
}

// ForRoute devolve a janela de uma rota nomeada.
func (l Limits) ForRoute(route string) (domain.WindowSpec, bool) {
	switch route {
	case domain.GlobalRoute:
		return l.Global, true
	case RoutePing:
		return l.Ping, true
	case RouteOrderStatus:
		return l.OrderStatus, true
	case RouteDemos:
		return l.Demos, true
	case RouteQuotesSandbox:
		return l.QuotesSandbox, true
	default:
		return domain.WindowSpec{}, false
	}
}

func Default() Config {
	return Config{
		ListenAddr: ":4242",
		BaseURL:    "http://localhost:4242",
		Env:        "development",
		Version:    "1.0.0",
		LogLevel:   "info",
		RateLimit: RateLimitConfig{
			Global:        "1000:1m",
			Ping:          "10:1s",
			OrderStatus:   "60:1m",
			Demos:         "60:1m",
			QuotesSandbox: "30:1m",
			Exempt:        []string{"/health"},
		},
		Idempotency: IdempotencyConfig{
			TTLSeconds:  7200,
			PendingTTL:  time.Minute,
			WaitRetries: 3,
			WaitDelay:   100 * time.Millisecond,
		},
		Concurrency: ConcurrencyConfig{Max: 100},
		Stats: StatsConfig{
			Prefix: "gateway:ratelimit:stats",
			TTL:    24 * time.Hour,
			Bucket: "minute",
		},
		Demo:         DemoConfig{ReviewRate: 0.2},
		CleanupEvery: time.Minute,
	}
}

func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load monta a configuração. path vazio pula o arquivo YAML.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ListenAddr = getenvDefault("LISTEN_ADDR", c.ListenAddr)
	if port := os.Getenv("PORT"); port != "" && os.Getenv("LISTEN_ADDR") == "" {
		c.ListenAddr = ":" + port
	}
	c.BaseURL = getenvDefault("BASE_URL", c.BaseURL)
	c.Env = getenvDefault("APP_ENV", c.Env)
	c.StaticToken = getenvDefault("STATIC_TOKEN", c.StaticToken)
	c.Version = getenvDefault("APP_VERSION", c.Version)
	c.LogLevel = getenvDefault("LOG_LEVEL", c.LogLevel)

	c.RateLimit.Global = getenvDefault("RATE_LIMIT_GLOBAL", c.RateLimit.Global)
	c.RateLimit.Ping = getenvDefault("RATE_LIMIT_PING", c.RateLimit.Ping)
	c.RateLimit.OrderStatus = getenvDefault("RATE_LIMIT_ORDER_STATUS", c.RateLimit.OrderStatus)
	c.RateLimit.Demos = getenvDefault("RATE_LIMIT_DEMOS", c.RateLimit.Demos)
	c.RateLimit.QuotesSandbox = getenvDefault("RATE_LIMIT_QUOTES_SANDBOX", c.RateLimit.QuotesSandbox)
	c.RateLimit.Exempt = getenvListDefault("RATE_LIMIT_EXEMPT", c.RateLimit.Exempt)
	c.RateLimit.KeyHeader = getenvDefault("RATE_KEY_HEADER", c.RateLimit.KeyHeader)
	c.RateLimit.TrustXFF = getenvBoolDefault("TRUST_XFF", c.RateLimit.TrustXFF)

	c.Idempotency.TTLSeconds = getenvIntDefault("IDEMP_TTL_SECONDS", c.Idempotency.TTLSeconds)
	c.Idempotency.PendingTTL = getenvDurationDefault("IDEMP_PENDING_TTL", c.Idempotency.PendingTTL)
	c.Idempotency.WaitRetries = getenvIntDefault("IDEMP_WAIT_RETRIES", c.Idempotency.WaitRetries)
	c.Idempotency.WaitDelay = getenvDurationDefault("IDEMP_WAIT_DELAY", c.Idempotency.WaitDelay)

	c.Concurrency.Max = getenvIntDefault("CONCURRENCY_MAX", c.Concurrency.Max)
	c.Concurrency.Timeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", c.Concurrency.Timeout)

	c.Stats.Enabled = getenvBoolDefault("RATE_STATS_ENABLED", c.Stats.Enabled)
	c.Stats.RedisAddr = getenvDefault("RATE_STATS_REDIS_ADDR", c.Stats.RedisAddr)
	c.Stats.RedisPassword = getenvDefault("RATE_STATS_REDIS_PASSWORD", c.Stats.RedisPassword)
	c.Stats.RedisDB = getenvIntDefault("RATE_STATS_REDIS_DB", c.Stats.RedisDB)
	c.Stats.Prefix = getenvDefault("RATE_STATS_PREFIX", c.Stats.Prefix)
	c.Stats.TTL = getenvDurationDefault("RATE_STATS_TTL", c.Stats.TTL)
	c.Stats.Bucket = getenvDefault("RATE_STATS_BUCKET", c.Stats.Bucket)
	c.Stats.TrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", c.Stats.TrackKeys)

	c.Demo.ReviewRate = getenvFloatDefault("DEMO_REVIEW_RATE", c.Demo.ReviewRate)
	c.CleanupEvery = getenvDurationDefault("CLEANUP_EVERY", c.CleanupEvery)
}

// Validate interpreta as janelas de rate limit em Limits e confere os demais campos.
func (c *Config) Validate() error {
	specs := []struct {
		name string
		raw  string
		dst  *domain.WindowSpec
	}{
		{"RATE_LIMIT_GLOBAL", c.RateLimit.Global, &c.Limits.Global},
		{"RATE_LIMIT_PING", c.RateLimit.Ping, &c.Limits.Ping},
		{"RATE_LIMIT_ORDER_STATUS", c.RateLimit.OrderStatus, &c.Limits.OrderStatus},
		{"RATE_LIMIT_DEMOS", c.RateLimit.Demos, &c.Limits.Demos},
		{"RATE_LIMIT_QUOTES_SANDBOX", c.RateLimit.QuotesSandbox, &c.Limits.QuotesSandbox},
	}
	for _, s := range specs {
		ws, err := domain.ParseWindowSpec(s.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		*s.dst = ws
	}

	if c.Idempotency.TTLSeconds <= 0 {
		return errors.New("IDEMP_TTL_SECONDS must be > 0")
	}
	if c.Idempotency.PendingTTL <= 0 {
		return errors.New("IDEMP_PENDING_TTL must be > 0")
	}
	if c.Idempotency.WaitRetries < 0 {
		return errors.New("IDEMP_WAIT_RETRIES must be >= 0")
	}
	if c.Concurrency.Max < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if c.Demo.ReviewRate < 0 || c.Demo.ReviewRate > 1 {
		return errors.New("DEMO_REVIEW_RATE must be between 0 and 1")
	}
	if c.Stats.Enabled && strings.TrimSpace(c.Stats.RedisAddr) == "" {
		return errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	if c.Stats.Bucket != "minute" && c.Stats.Bucket != "none" {
		return errors.New("RATE_STATS_BUCKET must be minute or none")
	}
	if _, port, err := net.SplitHostPort(c.ListenAddr); err != nil || port == "" {
		return fmt.Errorf("invalid listen address %q", c.ListenAddr)
	}
	return nil
}
