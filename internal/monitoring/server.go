// internal/monitoring/server.go
package monitoring

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/valpere/AdScrapexter/internal/utils"
)

// NewRouter serves /metrics and /health
func NewRouter(metrics *Metrics, health *HealthManager) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", health.HealthHandler()).Methods(http.MethodGet)
	return r
}

// Server exposes the monitoring router until its context ends
type Server struct {
	srv    *http.Server
	logger utils.Logger
}

// NewServer creates a server listening on addr
func NewServer(addr string, handler http.Handler, logger utils.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Serve blocks until ctx ends, then shuts down gracefully
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("monitoring listening on %s", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
