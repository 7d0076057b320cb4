package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cortezalberto/coderunner1/internal/config"
	"github.com/cortezalberto/coderunner1/internal/hints"
	"github.com/cortezalberto/coderunner1/internal/playground"
)

// Playground is the session surface the bridge drives
type Playground interface {
	Snapshot() playground.Snapshot
	ReloadSubjects()
	SelectSubject(id string) error
	SelectUnit(id string) error
	SelectProblem(id string) error
	SetCode(code string) error
	ResetCode() (string, error)
	Submit() error
	Cancel()
	ShowHint() (hints.Reveal, error)
	VisibilityChanged(hidden bool, at time.Time)
	Subscribe() (string, <-chan playground.Snapshot, func())
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the local HTTP bridge in front of a playground session
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	session        Playground
	store          Pinger
	authMiddleware *AuthMiddleware
	now            func() time.Time
}

// NewServer creates a new bridge server. store may be nil.
func NewServer(cfg config.ServerConfig, session Playground, store Pinger) *Server {
	s := &Server{
		config:         cfg,
		session:        session,
		store:          store,
		authMiddleware: NewAuthMiddleware(cfg.Token),
		now:            time.Now,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware.Authenticate)

		// the event stream is long lived, everything else gets a deadline
		r.Get("/events", s.handleEventsWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/state", s.handleGetState)
			r.Post("/subjects/reload", s.handleReloadSubjects)

			r.Route("/selection", func(r chi.Router) {
				r.Put("/subject", s.handleSelect(levelSubject))
				r.Put("/unit", s.handleSelect(levelUnit))
				r.Put("/problem", s.handleSelect(levelProblem))
			})

			r.Route("/draft", func(r chi.Router) {
				r.Get("/", s.handleGetDraft)
				r.Put("/", s.handlePutDraft)
				r.Post("/reset", s.handleResetDraft)
			})

			r.Route("/submissions", func(r chi.Router) {
				r.Post("/", s.handleSubmit)
				r.Post("/cancel", s.handleCancel)
			})

			r.Post("/hints", s.handleShowHint)
			r.Post("/visibility", s.handleVisibility)
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		reqID := middleware.GetReqID(r.Context())
		logger := slog.Default().With("request_id", reqID)

		defer func() {
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r.WithContext(ContextWithLogger(r.Context(), logger)))
	})
}
