package webui

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/qidu/webot/internal/infra/logger"
	"github.com/qidu/webot/internal/infra/middleware"
)

// Server hosts the chained route handlers behind the security and
// rate-limit middleware.
type Server struct {
	addr      string
	handler   http.Handler
	logger    *slog.Logger
	server    *http.Server
	boundAddr string
	cancel    context.CancelFunc

	requestsPerMin int
	burst          int
}

// NewServer creates a web UI server serving the given handler chain.
func NewServer(addr string, handler http.Handler, requestsPerMin, burst int, log *slog.Logger) *Server {
	return &Server{
		addr:           addr,
		handler:        handler,
		logger:         logger.Component(log, "webui-server"),
		requestsPerMin: requestsPerMin,
		burst:          burst,
	}
}

// Start begins serving. Non-blocking: the listener runs in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	wrapped := middleware.SecurityHeaders(
		middleware.RateLimit(runCtx, s.requestsPerMin, s.burst)(s.handler),
	)

	s.server = &http.Server{
		Handler:           wrapped,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		cancel()
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.boundAddr = ln.Addr().String()

	go func() {
		s.logger.Info("web ui started", "addr", s.boundAddr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("web ui server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// BoundAddr returns the actual listen address. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }
