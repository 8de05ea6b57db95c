package api

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/gameresult-crawler/internal/clock/system"
	"github.com/JakeFAU/gameresult-crawler/internal/config"
	"github.com/JakeFAU/gameresult-crawler/internal/game"
	"github.com/JakeFAU/gameresult-crawler/internal/metrics"
	"github.com/JakeFAU/gameresult-crawler/internal/notify"
)

// Version is reported by the root endpoint.
var Version = "dev"

const requestTimeout = 120 * time.Second

// ResultSource performs synchronous acquisitions.
type ResultSource interface {
	CurrentResult(ctx context.Context, gt game.Type) (game.Candidate, bool)
}

// NotificationTester sends the configuration test message.
type NotificationTester interface {
	SendTest(ctx context.Context) []notify.Outcome
	Configured() []string
}

// LoopStatus reports whether the background poller is running.
type LoopStatus interface {
	Running() bool
}

// Deps are the collaborators behind the handlers. Live and Loop are optional.
type Deps struct {
	Results  ResultSource
	Store    game.Store
	Notifier NotificationTester
	Live     http.Handler
	Loop     LoopStatus
	Clock    game.Clock
}

// Server wires HTTP handlers to the poller, store and dispatcher.
type Server struct {
	router   chi.Router
	deps     Deps
	cfg      config.Config
	logger   *zap.Logger
	requests atomic.Int64
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	prefix := cfg.Server.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
		cfg.Server.APIPrefix = prefix
	}
	s := &Server{deps: deps, cfg: cfg, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.countingMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route(prefix, func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		// websocket upgrades cannot pass through http.TimeoutHandler
		r.Get("/ws", s.liveFeed)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(requestTimeout))
			r.Get("/", s.root)
			r.Get("/games", s.listGames)
			r.Route("/games/{game_type}", func(r chi.Router) {
				r.Get("/", s.gameInfo)
				r.Get("/latest", s.latest)
				r.Get("/history", s.history)
				r.Get("/current", s.current)
			})
			r.Get("/stats", s.stats)
			r.Post("/test-notification", s.testNotification)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	status := "stopped"
	if s.deps.Loop != nil && s.deps.Loop.Running() {
		status = "running"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "crawler_status": status})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.deps.Store.Count(ctx, game.Types()[0]); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
