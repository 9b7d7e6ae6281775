// Package redis keeps the total-exp leaderboard in a Redis sorted set.
// SQLite stays the source of truth; the board is a cache that the engine
// refreshes after every exp change.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/levelhabit/levelhabit/internal/domain"
)

// Config holds the connection settings.
type Config struct {
	Enabled        bool   `toml:"enabled"`
	Addr           string `toml:"addr"`
	Password       string `toml:"password"`
	DB             int    `toml:"db"`
	LeaderboardKey string `toml:"leaderboard_key"`
	PoolSize       int    `toml:"pool_size"`

	// BreakerThreshold consecutive failures open the circuit for
	// BreakerReset ("30s").
	BreakerThreshold int    `toml:"breaker_threshold"`
	BreakerReset     string `toml:"breaker_reset"`
}

// Breaker returns the circuit breaker settings.
func (c Config) Breaker() BreakerConfig {
	bc := DefaultBreakerConfig()
	if c.BreakerThreshold > 0 {
		bc.FailureThreshold = c.BreakerThreshold
	}
	if d, err := time.ParseDuration(c.BreakerReset); err == nil && d > 0 {
		bc.ResetTimeout = d
	}
	return bc
}

// DefaultConfig returns a disabled local configuration.
func DefaultConfig() Config {
	return Config{
		Addr:             "localhost:6379",
		LeaderboardKey:   "levelhabit:leaderboard:exp",
		PoolSize:         10,
		BreakerThreshold: 5,
		BreakerReset:     "30s",
	}
}

// Leaderboard ranks users by total exp. Reads and writes go through a
// circuit breaker; Ping does not, so health checks still see the server.
type Leaderboard struct {
	rdb     *redis.Client
	key     string
	names   string
	breaker *CircuitBreaker
}

var _ domain.Leaderboard = (*Leaderboard)(nil)

// New creates a leaderboard client without contacting the server.
func New(cfg Config) *Leaderboard {
	if cfg.LeaderboardKey == "" {
		cfg.LeaderboardKey = DefaultConfig().LeaderboardKey
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &Leaderboard{
		rdb:     rdb,
		key:     cfg.LeaderboardKey,
		names:   cfg.LeaderboardKey + ":names",
		breaker: NewCircuitBreaker("leaderboard", cfg.Breaker()),
	}
}

// Connect creates a leaderboard and checks the connection.
func Connect(ctx context.Context, cfg Config) (*Leaderboard, error) {
	lb := New(cfg)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := lb.Ping(pingCtx); err != nil {
		lb.Close()
		return nil, err
	}
	log.Printf("[redis] connected to %s (db %d, key %s)", cfg.Addr, cfg.DB, lb.key)
	return lb, nil
}

// Ping checks the server.
func (l *Leaderboard) Ping(ctx context.Context) error {
	if err := l.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Breaker exposes the circuit breaker state.
func (l *Leaderboard) Breaker() *CircuitBreaker { return l.breaker }

// guard runs fn if the breaker allows it and records the outcome.
// redis.Nil is a valid answer, not a failure.
func (l *Leaderboard) guard(fn func() error) error {
	if err := l.breaker.Allow(); err != nil {
		return err
	}
	err := fn()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.breaker.RecordFailure()
		return err
	}
	l.breaker.RecordSuccess()
	return err
}

// Close releases the connection pool.
func (l *Leaderboard) Close() error {
	return l.rdb.Close()
}

// Update sets the user's score to totalExp and records the display name.
func (l *Leaderboard) Update(ctx context.Context, userID, displayName string, totalExp int64) error {
	err := l.guard(func() error {
		pipe := l.rdb.TxPipeline()
		pipe.ZAdd(ctx, l.key, redis.Z{Score: float64(totalExp), Member: userID})
		if displayName != "" {
			pipe.HSet(ctx, l.names, userID, displayName)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}
	return nil
}

// Remove drops a user from the board.
func (l *Leaderboard) Remove(ctx context.Context, userID string) error {
	err := l.guard(func() error {
		pipe := l.rdb.TxPipeline()
		pipe.ZRem(ctx, l.key, userID)
		pipe.HDel(ctx, l.names, userID)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("remove from leaderboard: %w", err)
	}
	return nil
}

// Top returns the n highest scores, best first, with 1-based ranks.
func (l *Leaderboard) Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		n = 10
	}
	var (
		zs    []redis.Z
		names []interface{}
	)
	err := l.guard(func() error {
		var err error
		zs, err = l.rdb.ZRevRangeWithScores(ctx, l.key, 0, int64(n-1)).Result()
		if err != nil || len(zs) == 0 {
			return err
		}
		ids := make([]string, len(zs))
		for i, z := range zs {
			ids[i] = fmt.Sprint(z.Member)
		}
		names, err = l.rdb.HMGet(ctx, l.names, ids...).Result()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	if len(zs) == 0 {
		return []domain.LeaderboardEntry{}, nil
	}
	return entries(zs, names), nil
}

// Rank returns the 1-based position of userID, or 0 when absent.
func (l *Leaderboard) Rank(ctx context.Context, userID string) (int, error) {
	var r int64
	err := l.guard(func() error {
		var err error
		r, err = l.rdb.ZRevRank(ctx, l.key, userID).Result()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read rank: %w", err)
	}
	return int(r) + 1, nil
}

func entries(zs []redis.Z, names []interface{}) []domain.LeaderboardEntry {
	out := make([]domain.LeaderboardEntry, len(zs))
	for i, z := range zs {
		e := domain.LeaderboardEntry{
			Rank:     i + 1,
			UserID:   fmt.Sprint(z.Member),
			TotalExp: int64(z.Score),
		}
		if i < len(names) {
			if s, ok := names[i].(string); ok {
				e.DisplayName = s
			}
		}
		out[i] = e
	}
	return out
}
