// Package worker provides the HTTP service that hosts the orthomate dashboard.
package worker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/orthomate/internal/config"
	"github.com/thebtf/orthomate/internal/dashboard"
	"github.com/thebtf/orthomate/internal/worker/sse"
)

// ShutdownTimeout bounds graceful HTTP shutdown.
const ShutdownTimeout = 10 * time.Second

// healthPingTimeout bounds the store check made by /health.
const healthPingTimeout = 2 * time.Second

// HealthChecker reports which record store backs the dashboard and whether it
// is reachable.
type HealthChecker interface {
	Backend() string
	Ping(ctx context.Context) error
}

// Service serves the dashboard page, the JSON API and the event stream.
type Service struct {
	version        string
	config         *config.Config
	controller     *dashboard.Controller
	sseBroadcaster *sse.Broadcaster
	store          HealthChecker
	router         chi.Router
	startTime      time.Time
	ready          atomic.Bool
}

// NewService wires routes around an existing controller. The broadcaster
// should be the controller's Notifier so completions reach open pages. store
// may be nil, in which case /health omits the store report.
func NewService(version string, cfg *config.Config, controller *dashboard.Controller, broadcaster *sse.Broadcaster, store HealthChecker) *Service {
	if broadcaster == nil {
		broadcaster = sse.NewBroadcaster()
	}
	svc := &Service{
		version:        version,
		config:         cfg,
		controller:     controller,
		sseBroadcaster: broadcaster,
		store:          store,
		router:         chi.NewRouter(),
		startTime:      time.Now(),
	}
	svc.setupRoutes()
	return svc
}

// Handler exposes the router, mainly for tests.
func (s *Service) Handler() http.Handler {
	return s.router
}

func (s *Service) setupRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/", serveIndex)
	r.Get("/assets/*", serveAssets)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/ready", s.handleReady)

		r.Group(func(r chi.Router) {
			r.Use(s.requireReady)

			r.Get("/state", s.handleState)
			r.Put("/template", s.handleSelectTemplate)
			r.Put("/guidelines", s.handleSetGuidelines)
			r.Put("/next-steps", s.handleSetNextSteps)
			r.Put("/patient", s.handleSetPatient)
			r.Put("/note", s.handleEditNote)

			r.Post("/dictation/start", s.handleDictationStart)
			r.Post("/dictation/chunk", s.handleDictationChunk)
			r.Post("/dictation/stop", s.handleDictationStop)
			r.Post("/dictation/cancel", s.handleDictationCancel)

			r.Post("/records", s.handleSaveRecord)
			r.Get("/records", s.handleSearchRecords)

			r.Get("/export/word", s.handleExportWord)
			r.Get("/export/pdf", s.handleExportPDF)
			r.Post("/clipboard", s.handleCopy)

			r.Get("/analytics", s.handleAnalytics)
			r.Get("/events", s.sseBroadcaster.HandleSSE)
		})
	})
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully.
func (s *Service) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until ctx is done.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	s.ready.Store(true)
	log.Info().Str("addr", ln.Addr().String()).Str("version", s.version).Msg("Dashboard listening")

	select {
	case err := <-errCh:
		s.ready.Store(false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.ready.Store(false)
	s.sseBroadcaster.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
		return err
	}
	log.Info().Msg("Dashboard stopped")
	return nil
}
