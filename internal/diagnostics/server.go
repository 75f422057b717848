// Package diagnostics serves the daemon's operational HTTP surface: a
// Server-Sent Events stats feed, a Prometheus scrape endpoint, and a
// liveness/readiness probe, mirroring the teacher's chi router shape
// (middleware stack, route table, graceful Shutdown on context cancel).
package diagnostics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rosrad/rtagsd/internal/localworker"
	"github.com/rosrad/rtagsd/internal/peer"
	"github.com/rosrad/rtagsd/internal/scheduler"
	"github.com/rosrad/rtagsd/internal/wal"
)

// Server hosts /stats, /metrics, and /healthz for one daemon instance.
type Server struct {
	addr   string
	srv    *http.Server
	logger *slog.Logger
}

// Deps bundles every component the diagnostics surface reports on.
type Deps struct {
	Sched   *scheduler.Scheduler
	Local   *localworker.Pool
	Remotes *peer.RemoteList
	WAL     *wal.WAL
	JobCap  int
}

// New wires the diagnostics routes and returns a Server ready to Run.
func New(addr string, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	h := &statsHandler{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/stats", h.stream)
	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		addr:   addr,
		srv:    &http.Server{Addr: addr, Handler: r},
		logger: logger,
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("diagnostics: listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("diagnostics: shutting down")
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
