package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketplace-gateway/middleware/ratelimit/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestRedisWindowStore_FiveCallsThenReject(t *testing.T) {
	_, rdb := newTestRedis(t)
	clk := newFakeClock()
	s := NewRedisWindowStore(rdb, WithRedisClock(clk.Now))
	ctx := context.Background()

	start := clk.Now()
	for i := 1; i <= 5; i++ {
		v, err := s.Check(ctx, "rl:test:default:5:60", "u-1", 5, time.Minute)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !v.Allowed {
			t.Fatalf("call %d: expected allowed", i)
		}
		if v.Remaining != 5-i {
			t.Fatalf("call %d: expected remaining %d, got %d", i, 5-i, v.Remaining)
		}
		clk.Advance(2 * time.Second)
	}

	v, err := s.Check(ctx, "rl:test:default:5:60", "u-1", 5, time.Minute)
	if err != nil {
		t.Fatalf("call 6: %v", err)
	}
	if v.Allowed {
		t.Fatalf("call 6: expected rejected")
	}
	if v.Remaining != 0 {
		t.Fatalf("call 6: expected remaining 0, got %d", v.Remaining)
	}
	// reset = primeira chamada + janela
	if want := start.Add(time.Minute); !v.Reset.Equal(want) {
		t.Fatalf("expected reset %s, got %s", want, v.Reset)
	}
}

func TestRedisWindowStore_NoBurstAcrossBoundary(t *testing.T) {
	_, rdb := newTestRedis(t)
	clk := newFakeClock()
	s := NewRedisWindowStore(rdb, WithRedisClock(clk.Now))
	ctx := context.Background()

	// 3 chamadas no fim da "janela"...
	clk.Advance(9 * time.Second)
	for i := 0; i < 3; i++ {
		if v, _ := s.Check(ctx, "ns", "k", 3, 10*time.Second); !v.Allowed {
			t.Fatalf("expected call %d allowed", i)
		}
	}

	// ...e logo depois do que seria o início da próxima: ainda dentro dos 10s móveis.
	clk.Advance(1500 * time.Millisecond)
	if v, _ := s.Check(ctx, "ns", "k", 3, 10*time.Second); v.Allowed {
		t.Fatalf("expected rejection inside rolling window")
	}

	// depois de W sem chamadas, volta a liberar com remaining N-1
	clk.Advance(10 * time.Second)
	v, err := s.Check(ctx, "ns", "k", 3, 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Allowed || v.Remaining != 2 {
		t.Fatalf("expected fresh window with remaining 2, got %+v", v)
	}
}

func TestRedisWindowStore_NamespacesDoNotShareState(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewRedisWindowStore(rdb)
	ctx := context.Background()

	if v, _ := s.Check(ctx, "a", "k", 1, time.Minute); !v.Allowed {
		t.Fatalf("expected first namespace allowed")
	}
	if v, _ := s.Check(ctx, "a", "k", 1, time.Minute); v.Allowed {
		t.Fatalf("expected first namespace exhausted")
	}
	if v, _ := s.Check(ctx, "b", "k", 1, time.Minute); !v.Allowed {
		t.Fatalf("expected second namespace to be independent")
	}
}

func TestRedisWindowStore_SetsTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisWindowStore(rdb)

	if _, err := s.Check(context.Background(), "ns", "k", 2, 30*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ttl := mr.TTL("ns:k")
	if ttl <= 0 || ttl > 30*time.Second {
		t.Fatalf("expected ttl in (0, 30s], got %s", ttl)
	}
}

func TestRedisWindowStore_WrapsStoreErrors(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisWindowStore(rdb)
	mr.Close()

	_, err := s.Check(context.Background(), "ns", "k", 1, time.Second)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestNewRedisClient_TokenOverridesPassword(t *testing.T) {
	rdb, err := NewRedisClient("redis://:fromurl@localhost:6379/2", "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rdb.Close()

	if rdb.Options().Password != "tok" {
		t.Fatalf("expected token as password, got %q", rdb.Options().Password)
	}
	if rdb.Options().DB != 2 {
		t.Fatalf("expected db 2, got %d", rdb.Options().DB)
	}
}
