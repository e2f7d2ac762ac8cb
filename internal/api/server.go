package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/crlsmrls/logsentry/config"
	"github.com/crlsmrls/logsentry/metrics"
)

// Server holds the operational HTTP server and its configuration.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	config     *config.Config
}

// New creates the operational API server, wiring the same middleware
// chain the teacher's server.New built (hlog logger injection, access
// log, correlation ID, panic recovery) plus HTTP request metrics.
func New(cfg *config.Config, deps Deps, logWriter io.Writer) *Server {
	r := chi.NewRouter()

	if logWriter == nil {
		logWriter = os.Stdout
	}
	logger := zerolog.New(logWriter).With().Timestamp().Caller().Logger()

	r.Use(
		hlog.NewHandler(logger),
		metrics.HTTPMetricsMiddleware,
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("url", r.URL.String()).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("request")
		}),
		hlog.RemoteAddrHandler("ip"),
		hlog.UserAgentHandler("user_agent"),
		middleware.RequestID,
		CorrelationIDMiddleware,
		middleware.Recoverer,
	)

	setupRoutes(r, cfg, deps)

	s := &Server{
		router: r,
		config: cfg,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  15 * time.Second,
		},
	}
	return s
}

// Router exposes the underlying chi.Mux for tests.
func (s *Server) Router() *chi.Mux { return s.router }

// Start runs the HTTP server until ctx is cancelled, then shuts it
// down gracefully. Grounded on the teacher's Server.Start, adapted
// from its own signal.Notify loop to the shared shutdown context the
// process supervisor (cmd/logsentry) owns (spec.md §9 "a small task/
// thread supervisor... each holding a clone of a shutdown signal").
func (s *Server) Start(ctx context.Context) error {
	log.Info().Msgf("starting operational API on port %d", s.config.Port)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
			err = s.httpServer.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("operational API stopped")
	return nil
}
