package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestEntries(t *testing.T) {
	zs := []redis.Z{
		{Score: 1200, Member: "u2"},
		{Score: 800, Member: "u1"},
		{Score: 15, Member: "u3"},
	}
	names := []interface{}{"Bob", nil, "Cara"}

	got := entries(zs, names)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Rank != 1 || got[0].UserID != "u2" || got[0].TotalExp != 1200 || got[0].DisplayName != "Bob" {
		t.Errorf("first entry = %+v", got[0])
	}
	if got[1].DisplayName != "" {
		t.Errorf("missing name should stay empty, got %q", got[1].DisplayName)
	}
	if got[2].Rank != 3 {
		t.Errorf("third rank = %d", got[2].Rank)
	}
}

func TestNew_DefaultsKey(t *testing.T) {
	lb := New(Config{Addr: "localhost:6379"})
	defer lb.Close()
	if lb.key != DefaultConfig().LeaderboardKey || lb.names != lb.key+":names" {
		t.Errorf("keys = %q / %q", lb.key, lb.names)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// Port 1 is reserved and closed on test machines.
	if _, err := Connect(ctx, Config{Addr: "127.0.0.1:1"}); err == nil {
		t.Error("expected a connection error")
	}
}

func TestLeaderboard_BreakerOpensOnOutage(t *testing.T) {
	lb := New(Config{Addr: "127.0.0.1:1", BreakerThreshold: 1, BreakerReset: "1m"})
	defer lb.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := lb.Update(ctx, "u1", "Ann", 15); err == nil || errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("first Update() = %v, want a connection error", err)
	}
	if err := lb.Update(ctx, "u1", "Ann", 15); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second Update() = %v, want ErrCircuitOpen", err)
	}
	if _, err := lb.Top(ctx, 10); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Top() = %v, want ErrCircuitOpen", err)
	}
	if lb.Breaker().State() != BreakerOpen {
		t.Errorf("state = %v", lb.Breaker().State())
	}
}

func TestConfig_Breaker(t *testing.T) {
	bc := Config{BreakerThreshold: 2, BreakerReset: "5s"}.Breaker()
	if bc.FailureThreshold != 2 || bc.ResetTimeout != 5*time.Second {
		t.Errorf("breaker = %+v", bc)
	}
	if def := (Config{BreakerReset: "junk"}).Breaker(); def != DefaultBreakerConfig() {
		t.Errorf("junk config = %+v", def)
	}
}
