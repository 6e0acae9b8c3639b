// Package api exposes the savana HTTP surface: user and project REST routes,
// the websocket channel handshake, health, and metrics.
package api

import (
	"context"
	stdliberrors "errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/savanahq/savana/pkg/ai"
	"github.com/savanahq/savana/pkg/auth"
	"github.com/savanahq/savana/pkg/config"
	apperrors "github.com/savanahq/savana/pkg/errors"
	"github.com/savanahq/savana/pkg/observability"
	"github.com/savanahq/savana/pkg/realtime"
	"github.com/savanahq/savana/pkg/storage"
)

// Server wires the HTTP surface to the collaboration core.
type Server struct {
	cfg       *config.Config
	logger    *observability.Logger
	store     *storage.Store
	tokens    *auth.TokenManager
	hasher    *auth.Hasher
	gate      *realtime.Gate
	router    *realtime.Router
	generator ai.Generator

	httpServer *http.Server
}

// NewServer assembles the HTTP server. The caller owns the lifecycle of the
// store, token manager, and router.
func NewServer(
	cfg *config.Config,
	logger *observability.Logger,
	store *storage.Store,
	tokens *auth.TokenManager,
	hasher *auth.Hasher,
	gate *realtime.Gate,
	router *realtime.Router,
	generator ai.Generator,
) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		tokens:    tokens,
		hasher:    hasher,
		gate:      gate,
		router:    router,
		generator: generator,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Bind,
		Handler:      s.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Routes builds the route tree. Exposed for httptest.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.corsMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.requestMetricsMiddleware)
	r.Use(s.requestLogMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/users", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/profile", s.handleProfile)
			r.Get("/logout", s.handleLogout)
			r.Get("/all", s.handleListUsers)
		})
	})

	r.Route("/projects", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/create", s.handleCreateProject)
		r.Get("/all", s.handleListProjects)
		r.Put("/add-user", s.handleAddUsers)
		r.Get("/get-project/{projectID}", s.handleGetProject)
		r.Put("/update-file-tree", s.handleUpdateFileTree)
	})

	r.Route("/ai", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/get-result", s.handleGetResult)
	})

	return r
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "bind", s.cfg.Server.Bind)
	err := s.httpServer.ListenAndServe()
	if stdliberrors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.PublicMetrics {
		token := bearerToken(r)
		if token == "" || s.tokens.IsRevoked(token) {
			respondError(w, http.StatusUnauthorized, apperrors.New(apperrors.ErrCodeAuthMissing, "unauthorized"))
			return
		}
		if _, err := s.tokens.Verify(token); err != nil {
			respondError(w, http.StatusUnauthorized, apperrors.Wrap(err, apperrors.ErrCodeAuthInvalid, "unauthorized"))
			return
		}
	}
	promhttp.Handler().ServeHTTP(w, r)
}
