package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/annachatkara/moviedb/internal/logging"
)

// Server wraps http.Server with start and graceful shutdown.
type Server struct {
	httpServer *http.Server
	log        logging.Logger
}

// NewServer listens on addr with handler. Request bodies are streamed into
// the backend, so only header reads are time-bounded.
func NewServer(addr string, handler http.Handler, log logging.Logger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: log,
	}
}

// Start serves until Shutdown; a clean shutdown returns nil.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info(ctx, "http server listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
