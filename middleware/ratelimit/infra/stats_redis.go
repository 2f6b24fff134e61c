package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"action-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore acumula as decisões do rate limit em hashes do Redis.
//
// Não é coordenação entre nós: cada gateway decide sozinho, o Redis só
// recebe os contadores para observação.
type RedisStatsStore struct {
	rdb redis.UniversalClient

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "gateway:ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) totalKey() string { return s.prefix + ":total" }

func (s *RedisStatsStore) routeKey() string { return s.prefix + ":route" }

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.totalKey(), field, 1)

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if route := strings.TrimSpace(ev.Route); route != "" {
		pipe.HIncrBy(ctx, s.routeKey(), route+":"+field, 1)
	}

	if s.trackKeys {
		k := strings.TrimSpace(string(ev.Key))
		if k != "" {
			keyKey := s.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, keyKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Snapshot implementa domain.StatsReader: o hash cumulativo mais o hash por
// rota, lidos no mesmo pipeline.
func (s *RedisStatsStore) Snapshot(ctx context.Context) (domain.StatsSnapshot, error) {
	pipe := s.rdb.Pipeline()
	totalCmd := pipe.HGetAll(ctx, s.totalKey())
	routeCmd := pipe.HGetAll(ctx, s.routeKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.StatsSnapshot{}, err
	}

	var (
		snap domain.StatsSnapshot
		err  error
	)
	if snap.Total, err = parseCounters(totalCmd.Val()); err != nil {
		return domain.StatsSnapshot{}, err
	}
	if snap.Routes, err = parseRouteCounters(routeCmd.Val()); err != nil {
		return domain.StatsSnapshot{}, err
	}
	return snap, nil
}

func parseCounters(vals map[string]string) (domain.Counters, error) {
	var c domain.Counters
	for field, v := range vals {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return domain.Counters{}, fmt.Errorf("parse %s: %w", field, err)
		}
		addCounter(&c, field, n)
	}
	return c, nil
}

// parseRouteCounters lê campos no formato "<rota>:allowed" / "<rota>:denied".
func parseRouteCounters(vals map[string]string) (map[string]domain.Counters, error) {
	out := make(map[string]domain.Counters)
	for field, v := range vals {
		i := strings.LastIndex(field, ":")
		if i <= 0 {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", field, err)
		}
		route := field[:i]
		c := out[route]
		addCounter(&c, field[i+1:], n)
		out[route] = c
	}
	return out, nil
}

func addCounter(c *domain.Counters, field string, n int64) {
	switch field {
	case "allowed":
		c.Allowed += n
	case "denied":
		c.Denied += n
	}
}
