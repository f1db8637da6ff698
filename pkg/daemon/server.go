package daemon

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hack-dev/hack/pkg/gateway"
	"github.com/hack-dev/hack/pkg/log"
	"github.com/hack-dev/hack/pkg/metrics"
	"github.com/hack-dev/hack/pkg/registry"
	"github.com/hack-dev/hack/pkg/runtimecache"
	"github.com/hack-dev/hack/pkg/sessions"
	"github.com/hack-dev/hack/pkg/supervisor"
)

// Version is set by cmd/hackd via ldflags; reported by GET /v1/status.
var Version = "dev"

// Config bundles everything Server needs to construct its router and both
// listeners.
type Config struct {
	SocketPath string
	TCPAddr    string // empty disables the TCP gateway listener

	Registry   *registry.Registry
	Cache      *runtimecache.Cache
	Supervisor *supervisor.Supervisor
	Gateway    *gateway.Gateway
	Collector  *metrics.Collector
	Sessions   *sessions.Manager

	PidPath string
}

// Server owns both listeners (Unix socket, TCP gateway), the shared router,
// the set of active streams (for graceful-shutdown notification), and the
// lifecycle/pidfile bookkeeping.
type Server struct {
	cfg       Config
	lifecycle *Lifecycle
	startedAt time.Time
	logger    zerolog.Logger

	unixLn net.Listener
	tcpLn  net.Listener

	streamsMu sync.Mutex
	streams   map[*activeStream]struct{}

	httpUnix *http.Server
	httpTCP  *http.Server
}

// activeStream is a live WebSocket connection the graceful-shutdown path
// must notify with an "end" frame before killing children.
type activeStream struct {
	end func()
}

// NewServer constructs a Server. Call Run to start serving.
func NewServer(cfg Config) *Server {
	if cfg.Sessions == nil {
		cfg.Sessions = sessions.NewManager()
	}
	return &Server{
		cfg:       cfg,
		lifecycle: NewLifecycle(cfg.PidPath, cfg.SocketPath),
		logger:    log.WithComponent("daemon"),
		streams:   make(map[*activeStream]struct{}),
	}
}

func (s *Server) registerStream(end func()) *activeStream {
	as := &activeStream{end: end}
	s.streamsMu.Lock()
	s.streams[as] = struct{}{}
	s.streamsMu.Unlock()
	return as
}

func (s *Server) unregisterStream(as *activeStream) {
	s.streamsMu.Lock()
	delete(s.streams, as)
	s.streamsMu.Unlock()
}

func (s *Server) endAllStreams() {
	s.streamsMu.Lock()
	streams := make([]*activeStream, 0, len(s.streams))
	for as := range s.streams {
		streams = append(streams, as)
	}
	s.streamsMu.Unlock()
	for _, as := range streams {
		as.end()
	}
}

// Run claims the pidfile, starts both listeners, and blocks until ctx is
// canceled, performing the ordered graceful shutdown sequence
// before returning: stop accepting connections, send "end" on every active
// stream, kill child processes via the supervisor (jobs: SIGTERM then
// SIGKILL; shells: SIGTERM), delete the pidfile and socket. The audit log
// is opened, written and closed per record, so there is nothing to flush.
func (s *Server) Run(ctx context.Context) error {
	if err := s.lifecycle.Claim(); err != nil {
		return err
	}
	s.startedAt = time.Now()

	router := s.buildRouter()

	unixLn, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		s.lifecycle.Release()
		return err
	}
	s.unixLn = unixLn
	s.httpUnix = &http.Server{Handler: router}

	go func() {
		if err := s.httpUnix.Serve(unixLn); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("unix listener stopped")
		}
	}()
	s.logger.Info().Str("socket", s.cfg.SocketPath).Msg("listening on unix socket")

	if s.cfg.TCPAddr != "" {
		tcpLn, err := net.Listen("tcp", s.cfg.TCPAddr)
		if err != nil {
			s.shutdown()
			return err
		}
		s.tcpLn = tcpLn
		s.httpTCP = &http.Server{Handler: s.wrapGateway(router)}
		go func() {
			if err := s.httpTCP.Serve(tcpLn); err != nil && err != http.ErrServerClosed {
				s.logger.Error().Err(err).Msg("tcp listener stopped")
			}
		}()
		s.logger.Info().Str("addr", s.cfg.TCPAddr).Msg("listening on tcp gateway")
	}

	if s.cfg.Collector != nil {
		s.cfg.Collector.Start()
	}

	<-ctx.Done()
	s.shutdown()
	return nil
}

// shutdown performs the ordered graceful-shutdown sequence.
func (s *Server) shutdown() {
	s.logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if s.httpUnix != nil {
		_ = s.httpUnix.Shutdown(shutdownCtx)
	}
	if s.httpTCP != nil {
		_ = s.httpTCP.Shutdown(shutdownCtx)
	}

	s.endAllStreams()

	if s.cfg.Supervisor != nil {
		s.cfg.Supervisor.Shutdown()
	}
	if s.cfg.Collector != nil {
		s.cfg.Collector.Stop()
	}

	s.lifecycle.Release()
	s.logger.Info().Msg("shutdown complete")
}

// wrapGateway wraps next with the gateway's Authenticate middleware, used
// only for the TCP listener — the Unix socket is trusted outright.
func (s *Server) wrapGateway(next http.Handler) http.Handler {
	if s.cfg.Gateway == nil {
		return next
	}
	return s.cfg.Gateway.Authenticate(next)
}

// Status reports this Server's current lifecycle state, usable without a
// running process (reads the pidfile/socket from disk).
func (s *Server) Status() Info {
	return s.lifecycle.Inspect()
}
