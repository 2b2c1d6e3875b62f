package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"slowmo/internal/logging"
)

// Server publishes /metrics on a bind address.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// Listen binds addr and prepares a server for m. Serving starts with Serve.
func Listen(addr string, m *Metrics, logger *slog.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: listener,
		logger:   logging.NewComponentLogger(logger, "metrics"),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until the server stops. A graceful shutdown returns nil.
func (s *Server) Serve() error {
	s.logger.Info("metrics endpoint listening",
		logging.String(logging.FieldEventType, "metrics_listening"),
		logging.String("addr", s.Addr()),
	)
	if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight scrapes until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
