package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"

	"github.com/Cachi0001/Biz-sub011/pkg/logger"
)

// ShutdownFunc releases a resource after the server stopped accepting requests.
type ShutdownFunc func() error

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// OnShutdown registers fn to run after the listener is drained.
// Functions run in reverse registration order.
func OnShutdown(fn ShutdownFunc) Option {
	return func(s *Server) {
		if fn != nil {
			s.onShutdown = append(s.onShutdown, fn)
		}
	}
}

// OnListen registers fn to receive the bound address once the server listens.
func OnListen(fn func(addr string)) Option {
	return func(s *Server) {
		if fn != nil {
			s.onListen = append(s.onListen, fn)
		}
	}
}

// Server serves one handler at a time.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	onShutdown []ShutdownFunc
	onListen   []func(string)

	mu      sync.Mutex
	running bool
}

// New returns a Server. Zero fields in cfg fall back to defaults.
func New(cfg Config, opts ...Option) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	s := &Server{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("httpserver"))
	return s
}

// Run serves handler until ctx is done or the listener fails. Shutdown
// functions run in either case. A clean shutdown returns nil.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Join(ErrStart, err, s.release())
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	addr := ln.Addr().String()
	s.logger.InfoContext(ctx, "http server listening", slog.String("addr", addr))
	for _, fn := range s.onListen {
		fn(addr)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return errors.Join(ErrStart, serveErr, s.release())
	}

	s.logger.InfoContext(ctx, "http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, errors.Join(ErrShutdown, err))
	}
	if err := s.release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// release runs the shutdown functions, newest first.
func (s *Server) release() error {
	var errs []error
	for _, fn := range slices.Backward(s.onShutdown) {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(ErrShutdown, errors.Join(errs...))
	}
	return nil
}
