package infra

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"action-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

func TestMemoryStatsStore_AggregatesByRouteAndKey(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Key: "k1", Route: "demos", Allowed: true})
	_ = s.Record(ctx, domain.StatsEvent{Key: "k1", Route: "demos", Allowed: false})
	_ = s.Record(ctx, domain.StatsEvent{Key: "k2", Route: domain.GlobalRoute, Allowed: true})

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Total.Allowed != 2 || snap.Total.Denied != 1 {
		t.Fatalf("unexpected totals: %+v", snap.Total)
	}
	if got := snap.Routes["demos"]; got.Allowed != 1 || got.Denied != 1 {
		t.Fatalf("unexpected demos counters: %+v", got)
	}
	if got := s.ByKey()["k1"]; got.Allowed != 1 || got.Denied != 1 {
		t.Fatalf("unexpected k1 counters: %+v", got)
	}
}

func TestMemoryStatsStore_DoesNotTrackKeysByDefault(t *testing.T) {
	s := NewMemoryStatsStore()
	_ = s.Record(context.Background(), domain.StatsEvent{Key: "k1", Route: "ping", Allowed: true})
	if len(s.ByKey()) != 0 {
		t.Fatalf("expected no per-key counters")
	}
}

func TestRedisStatsStore_RecordAndSnapshot(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}

	prefix := fmt.Sprintf("test:stats:%d", time.Now().UnixNano())
	s := NewRedisStatsStore(rdb, WithStatsPrefix(prefix), WithStatsTTL(time.Minute))
	t.Cleanup(func() {
		keys, _ := rdb.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			_ = rdb.Del(ctx, keys...).Err()
		}
	})

	for _, allowed := range []bool{true, true, false} {
		if err := s.Record(ctx, domain.StatsEvent{Key: "k", Route: "demos", Allowed: allowed}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Total.Allowed != 2 || snap.Total.Denied != 1 {
		t.Fatalf("unexpected totals: %+v", snap.Total)
	}
	if got := snap.Routes["demos"]; got.Allowed != 2 || got.Denied != 1 {
		t.Fatalf("unexpected demos counters: %+v", got)
	}
}

func TestParseRouteCounters(t *testing.T) {
	got, err := parseRouteCounters(map[string]string{
		"demos:allowed":                 "3",
		"demos:denied":                  "1",
		domain.GlobalRoute + ":allowed": "7",
		"garbage":                       "9",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["demos"] != (domain.Counters{Allowed: 3, Denied: 1}) {
		t.Fatalf("unexpected demos counters: %+v", got["demos"])
	}
	if got[domain.GlobalRoute].Allowed != 7 {
		t.Fatalf("unexpected global counters: %+v", got[domain.GlobalRoute])
	}
	if len(got) != 2 {
		t.Fatalf("expected fields without a route to be ignored, got %v", got)
	}

	if _, err := parseRouteCounters(map[string]string{"demos:allowed": "x"}); err == nil {
		t.Fatalf("expected parse error")
	}
}
