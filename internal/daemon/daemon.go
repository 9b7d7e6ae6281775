package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/levelhabit/levelhabit/internal/api"
	"github.com/levelhabit/levelhabit/internal/app/engagement"
	"github.com/levelhabit/levelhabit/internal/auth"
	"github.com/levelhabit/levelhabit/internal/domain"
	"github.com/levelhabit/levelhabit/internal/health"
	"github.com/levelhabit/levelhabit/internal/infra/catalog"
	_ "github.com/levelhabit/levelhabit/internal/infra/metrics" // Register Prometheus metrics
	"github.com/levelhabit/levelhabit/internal/infra/redis"
	"github.com/levelhabit/levelhabit/internal/infra/sqlite"
	"github.com/levelhabit/levelhabit/internal/security"
)

// Version is set by the CLI at startup.
var Version = "dev"

// Daemon is the LevelHabit runtime. It wires together all services.
type Daemon struct {
	Config  Config
	DB      *sqlite.DB
	Catalog *catalog.Catalog
	Engine  *engagement.Engine
	Signer  *auth.Signer
	Board   *redis.Leaderboard
	Health  *health.Checker
	Server  *api.Server
	cancel  context.CancelFunc
}

// New creates a Daemon from the config file and environment.
func New(ctx context.Context) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig opens the store, seeds the catalog and wires the engine
// and API server. Redis failures only disable the leaderboard.
func NewWithConfig(ctx context.Context, cfg Config) (*Daemon, error) {
	configureLogging(cfg.Logging)

	signer, err := NewSigner(cfg)
	if err != nil {
		return nil, err
	}

	rules, err := engagement.NewRules(cfg.Progression)
	if err != nil {
		return nil, fmt.Errorf("progression rules: %w", err)
	}

	d, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d.Signer = signer

	var board domain.Leaderboard
	checks := []health.Check{
		health.SQLiteCheck(d.DB),
		health.CatalogCheck(d.Catalog, d.DB),
	}
	if cfg.Redis.Enabled {
		lb, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			log.Printf("[daemon] WARNING: leaderboard disabled: %v", err)
		} else {
			d.Board = lb
			board = lb
			checks = append(checks, health.RedisCheck(lb))
		}
	}

	d.Engine = engagement.NewEngine(d.DB, d.Catalog, rules, domain.SystemClock{}, board)
	d.Health = health.NewChecker(checks...)

	d.Server = api.NewServer(d.Engine, signer, api.Options{
		CORSOrigins:    cfg.API.CORSOrigins,
		RateLimitRPS:   cfg.API.RateLimitRPS,
		RateLimitBurst: cfg.API.RateLimitBurst,
		Version:        Version,
	})
	d.Server.SetHealth(d.Health)
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}
	return d, nil
}

// OpenStore opens the database and seeds the catalog without starting
// any network services. The CLI uses it for local commands.
func OpenStore(ctx context.Context, cfg Config) (*Daemon, error) {
	cat, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(levelhabitHome())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := SeedCatalog(ctx, db, cat); err != nil {
		db.Close()
		return nil, err
	}
	return &Daemon{Config: cfg, DB: db, Catalog: cat}, nil
}

// LocalEngine returns an engine over the store with no leaderboard, for
// CLI commands that act on the database directly.
func (d *Daemon) LocalEngine() (*engagement.Engine, error) {
	if d.Engine != nil {
		return d.Engine, nil
	}
	rules, err := engagement.NewRules(d.Config.Progression)
	if err != nil {
		return nil, fmt.Errorf("progression rules: %w", err)
	}
	d.Engine = engagement.NewEngine(d.DB, d.Catalog, rules, domain.SystemClock{}, nil)
	return d.Engine, nil
}

// SeedCatalog writes cat into the store when its version differs from the
// one already seeded.
func SeedCatalog(ctx context.Context, db *sqlite.DB, cat *catalog.Catalog) error {
	current, err := db.CatalogVersion(ctx)
	if err != nil {
		return fmt.Errorf("read catalog version: %w", err)
	}
	if current == cat.Version {
		return nil
	}
	if err := db.SeedCatalog(ctx, cat.Version, cat.Achievements, cat.Jobs); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	log.Printf("[daemon] seeded catalog %s (%d achievements, %d jobs)",
		cat.Version, len(cat.Achievements), len(cat.Jobs))
	return nil
}

func loadCatalog(cfg CatalogConfig) (*catalog.Catalog, error) {
	if cfg.Path == "" {
		cat, err := catalog.Default()
		if err != nil {
			return nil, fmt.Errorf("embedded catalog: %w", err)
		}
		return cat, nil
	}
	cat, err := catalog.Load(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", cfg.Path, err)
	}
	return cat, nil
}

// NewSigner builds the token signer. Without a configured secret it uses
// the one stored under the home directory, creating it on first use.
func NewSigner(cfg Config) (*auth.Signer, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		s, err := security.LoadOrCreateSecret(levelhabitHome())
		if err != nil {
			return nil, fmt.Errorf("auth: %w (set [auth] jwt_secret or %s)", err, EnvJWTSecret)
		}
		secret = s
	}
	signer, err := auth.NewSigner(secret, cfg.Auth.Issuer, cfg.Auth.TTL())
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	return signer, nil
}

const leaderboardRetryInterval = 5 * time.Second

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)
	if d.Board != nil {
		go d.Engine.RunLeaderboardRetries(ctx, leaderboardRetryInterval)
	}

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			log.Printf("[daemon] shutting down")
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Printf("LevelHabit serving on http://%s\n", addr)
	fmt.Printf("  Catalog: %s (%d achievements, %d jobs)\n", d.Catalog.Version, len(d.Catalog.Achievements), len(d.Catalog.Jobs))
	if d.Board != nil {
		fmt.Printf("  Leaderboard: redis %s\n", d.Config.Redis.Addr)
	}
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Board != nil {
		_ = d.Board.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

// configureLogging applies the [logging] level to the standard logger.
func configureLogging(cfg LoggingConfig) {
	switch strings.ToLower(cfg.Level) {
	case "debug":
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	case "off", "none":
		log.SetOutput(io.Discard)
	default:
		log.SetFlags(log.LstdFlags)
	}
}
