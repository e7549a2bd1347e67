package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
)

// Config holds listener addresses.
type Config struct {
	PublicAddr string
	OpsAddr    string // empty disables the ops listener
}

// Server runs the public and ops listeners.
type Server struct {
	cfg    Config
	logger *slog.Logger

	public *http.Server
	ops    *http.Server

	mu    sync.Mutex
	addrs map[string]net.Addr
	wg    sync.WaitGroup
	errCh chan error
}

// New creates a server. opsHandler may be nil.
func New(cfg Config, publicHandler, opsHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		public: &http.Server{Addr: cfg.PublicAddr, Handler: publicHandler},
		addrs:  make(map[string]net.Addr),
		errCh:  make(chan error, 2),
	}
	if opsHandler != nil && cfg.OpsAddr != "" {
		s.ops = &http.Server{Addr: cfg.OpsAddr, Handler: opsHandler}
	}
	return s
}

// Start binds the listeners and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if err := s.serve("public", s.public); err != nil {
		return err
	}
	if s.ops != nil {
		if err := s.serve("ops", s.ops); err != nil {
			s.public.Close()
			return err
		}
	}
	return nil
}

// Errors reports listener failures after Start.
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Addr returns the bound address of the named listener ("public" or "ops").
func (s *Server) Addr(name string) net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addrs[name]
}

// Stop gracefully shuts down both listeners.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	if err := s.public.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown public listener: %w", err))
	}
	if s.ops != nil {
		if err := s.ops.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown ops listener: %w", err))
		}
	}
	s.wg.Wait()
	return errors.Join(errs...)
}

func (s *Server) serve(name string, srv *http.Server) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s on %s: %w", name, srv.Addr, err)
	}

	s.mu.Lock()
	s.addrs[name] = ln.Addr()
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("listener started", "listener", name, "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("listener error", "listener", name, "error", err)
			select {
			case s.errCh <- fmt.Errorf("%s listener: %w", name, err):
			default:
			}
		}
	}()
	return nil
}
