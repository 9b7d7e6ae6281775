// Package api provides the HTTP server for LevelHabit.
// Every /api/v1 route acts for the user named by the bearer token.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/levelhabit/levelhabit/internal/app/engagement"
	"github.com/levelhabit/levelhabit/internal/auth"
	"github.com/levelhabit/levelhabit/internal/health"
	"github.com/levelhabit/levelhabit/internal/infra/metrics"
)

// Options tunes the router.
type Options struct {
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	Version        string
}

// Server is the LevelHabit HTTP API server.
type Server struct {
	engine         *engagement.Engine
	signer         *auth.Signer
	health         *health.Checker
	limiter        *rateLimiter
	opts           Options
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(eng *engagement.Engine, signer *auth.Signer, opts Options) *Server {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{
		engine:  eng,
		signer:  signer,
		opts:    opts,
		limiter: newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth sets the checker reported at /health.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.corsMiddleware)
	r.Use(instrument)

	r.Get("/health", s.handleHealth)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.signer.Middleware(func(w http.ResponseWriter, err error) {
			writeError(w, http.StatusUnauthorized, err.Error())
		}))
		r.Use(s.limiter.middleware)

		r.Post("/users", s.handleCreateUser)
		r.Get("/me", s.handleGetMe)
		r.Patch("/me", s.handleUpdateMe)

		r.Get("/habits", s.handleListHabits)
		r.Post("/habits", s.handleCreateHabit)
		r.Delete("/habits/{id}", s.handleArchiveHabit)
		r.Post("/habits/{id}/complete", s.handleCompleteHabit)
		r.Get("/habits/{id}/records", s.handleListRecords)

		r.Get("/achievements", s.handleAchievements)
		r.Get("/jobs", s.handleJobs)
		r.Post("/jobs/{id}/equip", s.handleEquipJob)
		r.Post("/unlocks/check", s.handleCheckUnlocks)

		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/stats/daily", s.handleDailyStats)
		r.Get("/stats/weekly", s.handleWeeklyStats)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{"status": "ok", "version": s.opts.Version}
	status := http.StatusOK
	if s.health != nil {
		body["checks"] = s.health.Statuses()
		if !s.health.IsHealthy() {
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, body)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    errorType(status),
		},
	})
}

// corsMiddleware answers preflight requests and echoes allowed origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	for _, o := range s.opts.CORSOrigins {
		if o == "*" {
			return "*"
		}
		if origin != "" && o == origin {
			return origin
		}
	}
	return ""
}

// instrument records request latency by route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
