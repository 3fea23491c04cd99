package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ShutdownTimeout controls how long to wait for in-flight requests during graceful shutdowns.
var ShutdownTimeout = 10 * time.Second

// Server wraps the http.Server with sensible defaults.
type Server struct {
	inner *http.Server
}

// New constructs a server listening on the provided port. Write timeouts are generous so that
// media uploads and downloads can complete; hijacked websocket connections manage their own
// deadlines.
func New(port int, handler http.Handler) *Server {
	return &Server{
		inner: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      2 * time.Minute,
			IdleTimeout:       2 * time.Minute,
			MaxHeaderBytes:    1 << 20,
		},
	}
}

// OnShutdown registers fn to run when Shutdown starts. Hijacked connections are not tracked
// by http.Server, so their owners close them here.
func (s *Server) OnShutdown(fn func()) {
	s.inner.RegisterOnShutdown(fn)
}

// Serve accepts connections on l until ctx is canceled, then drains in-flight requests for
// up to ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.inner.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.inner.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// Run listens on the configured address and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.inner.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.inner.Addr, err)
	}
	return s.Serve(ctx, l)
}
