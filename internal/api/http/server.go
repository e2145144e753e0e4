package http

import (
	"context"
	"fmt"
	"net/http"

	"gitlab.com/nevasik7/alerting/logger"

	"zigfeed/internal/config"
)

type Server struct {
	log logger.Logger
	srv *http.Server
}

func NewServer(log logger.Logger, cfg *config.HTTPConfig, router http.Handler) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("http config cannot be nil")
	}

	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	return &Server{
		log: log,
		srv: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}, nil
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Infof("HTTP server listening on %s", s.srv.Addr)

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
