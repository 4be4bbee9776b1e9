package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hastrology/lottery-service/pkg/logger"
)

// Server runs the REST API as a lifecycle-managed service.
type Server struct {
	srv  *http.Server
	log  *logger.Logger
	errc chan error
}

// NewServer wraps a handler in an HTTP server listening on addr.
func NewServer(addr string, h http.Handler, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log:  log,
		errc: make(chan error, 1),
	}
}

// Name implements system.Service.
func (s *Server) Name() string { return "http-server" }

// Start begins serving. A bind failure surfaces on the error channel
// rather than here; startup is asynchronous.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errc <- err
		}
	}()
	s.log.WithField("addr", s.srv.Addr).Info("http server listening")
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// Err reports a fatal serve error, if any occurred.
func (s *Server) Err() <-chan error { return s.errc }
