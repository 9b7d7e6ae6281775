// Package health runs periodic checks against the store, the seeded
// catalog and the leaderboard cache, and publishes the results.
package health

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/levelhabit/levelhabit/internal/infra/catalog"
	"github.com/levelhabit/levelhabit/internal/infra/metrics"
)

// DefaultInterval is how often Run repeats the checks.
const DefaultInterval = 60 * time.Second

// Check is one named probe.
type Check struct {
	Name    string
	CheckFn func(ctx context.Context) error
	// Optional marks a check whose failure degrades but does not fail
	// the service (the leaderboard cache).
	Optional bool
}

// Status is the latest result of a check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Optional  bool      `json:"optional,omitempty"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Checker runs its checks on an interval.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker creates a checker over checks.
func NewChecker(checks ...Check) *Checker {
	return &Checker{checks: checks, interval: DefaultInterval}
}

// ─── Standard Checks ────────────────────────────────────────────────────────

// Pinger is anything with a context-aware liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// VersionSource reports the catalog version a store was seeded with.
type VersionSource interface {
	CatalogVersion(ctx context.Context) (string, error)
}

// SQLiteCheck pings the database.
func SQLiteCheck(db Pinger) Check {
	return Check{Name: "sqlite", CheckFn: db.Ping}
}

// CatalogCheck verifies the store holds the loaded catalog version.
func CatalogCheck(cat *catalog.Catalog, store VersionSource) Check {
	return Check{
		Name: "catalog",
		CheckFn: func(ctx context.Context) error {
			if cat == nil {
				return fmt.Errorf("catalog not loaded")
			}
			v, err := store.CatalogVersion(ctx)
			if err != nil {
				return fmt.Errorf("read catalog version: %w", err)
			}
			if v != cat.Version {
				return fmt.Errorf("store has catalog %q, loaded %q", v, cat.Version)
			}
			return nil
		},
	}
}

// RedisCheck pings the leaderboard cache.
func RedisCheck(p Pinger) Check {
	return Check{Name: "redis", CheckFn: p.Ping, Optional: true}
}

// ─── Loop ───────────────────────────────────────────────────────────────────

// Run checks immediately and then on every tick until ctx ends.
func (c *Checker) Run(ctx context.Context) {
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs every check once and stores the results.
func (c *Checker) RunOnce(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{Name: check.Name, Optional: check.Optional, CheckedAt: time.Now()}
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := check.CheckFn(checkCtx)
		cancel()
		if err != nil {
			s.Error = err.Error()
			metrics.HealthStatus.WithLabelValues(check.Name).Set(0)
			log.Printf("[health] %s failing: %v", check.Name, err)
		} else {
			s.Healthy = true
			metrics.HealthStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns a copy of the latest results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Status, len(c.statuses))
	copy(out, c.statuses)
	return out
}

// IsHealthy reports whether every required check passed its last run.
// Before the first run it is vacuously true.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy && !s.Optional {
			return false
		}
	}
	return true
}
