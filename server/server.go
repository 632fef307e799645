// Package server exposes scheduler metrics and a health check over HTTP.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/logger"
)

// State represents the server lifecycle state
type State int32

const (
	StateStopped  State = iota // not serving
	StateRunning               // normal operation
	StateDraining              // shutting down, health reports unavailable
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ReadHeaderTimeout bounds slow clients.
const ReadHeaderTimeout = 10 * time.Second

// Server serves /metrics from a prometheus.Gatherer and /healthz.
type Server struct {
	addr     string
	gatherer prometheus.Gatherer
	logger   *zap.SugaredLogger

	state    atomic.Int32
	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// New creates a stopped server for addr (host:port, port 0 picks one).
func New(addr string, gatherer prometheus.Gatherer, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = logger.ComponentLogger("server")
	}
	return &Server{addr: addr, gatherer: gatherer, logger: log}
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) setState(st State) {
	s.state.Store(int32(st))
	s.logger.Debugw("Server state changed", logger.FieldState, st.String())
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(s.logger.Desugar()),
	}))
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.State() != StateRunning {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(s.State().String() + "\n"))
		return
	}
	_, _ = w.Write([]byte("ok\n"))
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return errors.Wrap(errors.ErrInvalidState, "server already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.addr)
	}

	s.listener = ln
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: ReadHeaderTimeout}
	s.done = make(chan struct{})
	s.setState(StateRunning)

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("Metrics server failed", logger.FieldError, err)
		}
	}(s.srv, s.done)

	s.logger.Infow("Metrics server ready", logger.FieldAddress, ln.Addr().String())
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown drains connections until ctx expires. Calling it on a stopped
// server is a no-op.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.listener = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	s.setState(StateDraining)
	err := srv.Shutdown(ctx)
	<-done
	s.setState(StateStopped)
	if err != nil {
		return errors.Wrap(err, "metrics server shutdown")
	}
	return nil
}
