package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openefficiency/empathaicoach/application"
	"github.com/openefficiency/empathaicoach/logging"
)

// tickInterval drives time-based phase evaluation for silent sessions
const tickInterval = 5 * time.Second

// shutdownTimeout bounds graceful shutdown
const shutdownTimeout = 10 * time.Second

// Server runs the HTTP API plus the background phase tick loop
type Server struct {
	svc  *application.SessionService
	http *http.Server
}

// New builds a server listening on addr
func New(addr string, svc *application.SessionService) *Server {
	return &Server{
		svc: svc,
		http: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(svc),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Logger.Info("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.svc.TickAll(ctx)
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logging.Logger.Info("shutting down http server")
		return s.http.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
