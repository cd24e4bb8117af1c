// Package server assembles and runs the ingress: the plaintext and TLS
// listeners, the routing dispatch, and the background workers (certificate
// reloader, access-log recorder, retention scheduler).
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"

	"mercator-hq/ganymede/pkg/accesslog"
	"mercator-hq/ganymede/pkg/acme"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/proxy"
	"mercator-hq/ganymede/pkg/router"
	securitytls "mercator-hq/ganymede/pkg/security/tls"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
	"mercator-hq/ganymede/pkg/telemetry/status"
)

// Server is the ingress process: both listeners plus the shared routing,
// TLS, forwarding, and telemetry state.
type Server struct {
	cfg *config.Config

	table     *router.Table
	certStore *securitytls.Store
	reloader  *securitytls.Reloader
	acme      *acme.Handler
	counters  *status.Counters
	statusH   *status.Handler
	collector *metrics.Collector
	pool      *proxy.Pool
	forwarder *proxy.Forwarder

	recorder  *accesslog.Recorder
	scheduler *accesslog.Scheduler

	httpServer  *http.Server
	httpsServer *http.Server

	logger       *slog.Logger
	shutdownOnce sync.Once
}

// New assembles a server from validated configuration. Component
// construction errors (unloadable certificates, bad TLS parameters, an
// unopenable access-log database) are configuration errors: fatal before
// any traffic is accepted.
func New(cfg *config.Config) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		table:    router.New(cfg),
		counters: status.NewCounters(),
		logger:   slog.Default().With("component", "server"),
	}

	s.statusH = status.NewHandler(s.counters)
	s.collector = metrics.NewCollector(cfg.Telemetry.Metrics, func() float64 {
		return float64(s.counters.Active())
	})

	bindings := make([]securitytls.Binding, 0, len(cfg.VirtualHosts))
	for _, vh := range cfg.VirtualHosts {
		bindings = append(bindings, securitytls.Binding{
			Hostname: vh.Hostname,
			CertFile: vh.CertFile,
			KeyFile:  vh.KeyFile,
		})
	}
	s.certStore = securitytls.NewStore(bindings)
	if err := s.certStore.Load(); err != nil {
		return nil, fmt.Errorf("loading certificate bindings: %w", err)
	}
	s.reloader = securitytls.NewReloader(s.certStore, cfg.TLS.ReloadDebounce)

	s.acme = acme.NewHandler(cfg.ACME.ChallengeRoot)

	s.pool = proxy.NewPool(cfg.Upstream)
	s.forwarder = proxy.NewForwarder(s.pool, s.counters, s.collector, cfg.Server.RequestTimeout)

	if cfg.AccessLogEnabled() {
		sink, err := s.buildAccessLogSink()
		if err != nil {
			return nil, err
		}
		s.recorder = accesslog.NewRecorder(sink, cfg.AccessLog.BufferSize)
	}

	return s, nil
}

func (s *Server) buildAccessLogSink() (accesslog.Sink, error) {
	switch s.cfg.AccessLog.Backend {
	case config.AccessLogSQLite:
		sink, err := accesslog.NewSQLiteSink(s.cfg.AccessLog.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("opening access log: %w", err)
		}
		pruner := accesslog.NewPruner(sink, s.cfg.AccessLog.SQLite)
		s.scheduler = accesslog.NewScheduler(pruner)
		return sink, nil
	default:
		return accesslog.NewJSONSink(os.Stdout), nil
	}
}

// Start binds both listeners and serves until the context is cancelled or a
// listener fails. Bind failures are fatal and reported before any traffic.
func (s *Server) Start(ctx context.Context) error {
	plainLn, err := net.Listen("tcp", s.cfg.Server.HTTPAddress)
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.cfg.Server.HTTPAddress, err)
	}

	tlsLn, err := net.Listen("tcp", s.cfg.Server.HTTPSAddress)
	if err != nil {
		plainLn.Close()
		return fmt.Errorf("binding %s: %w", s.cfg.Server.HTTPSAddress, err)
	}

	tlsConfig, err := securitytls.BuildServerConfig(s.certStore, s.cfg.TLS)
	if err != nil {
		plainLn.Close()
		tlsLn.Close()
		return fmt.Errorf("building TLS configuration: %w", err)
	}
	s.instrumentHandshakes(tlsConfig)

	s.httpServer = s.newHTTPServer(s.handler(false))
	s.httpsServer = s.newHTTPServer(s.handler(true))
	s.httpsServer.TLSConfig = tlsConfig

	// Background workers.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	if s.recorder != nil {
		s.recorder.Start()
	}
	if s.scheduler != nil {
		if err := s.scheduler.Start(workerCtx); err != nil {
			plainLn.Close()
			tlsLn.Close()
			return fmt.Errorf("starting retention scheduler: %w", err)
		}
	}
	go func() {
		if err := s.reloader.Watch(workerCtx); err != nil {
			s.logger.Error("certificate watcher exited", "error", err)
		}
	}()

	errChan := make(chan error, 2)
	go func() {
		s.logger.Info("plaintext listener started", "address", plainLn.Addr().String())
		if err := s.httpServer.Serve(plainLn); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("plaintext listener: %w", err)
		}
	}()
	go func() {
		s.logger.Info("TLS listener started",
			"address", tlsLn.Addr().String(),
			"hosts", len(s.cfg.VirtualHosts),
		)
		if err := s.httpsServer.ServeTLS(tlsLn, "", ""); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("TLS listener: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.Shutdown(context.Background())
		return err
	}
}

// Shutdown stops both listeners gracefully, then tears down background
// workers: pool, recorder, scheduler. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
		defer cancel()

		s.logger.Info("initiating graceful shutdown", "timeout", s.cfg.Server.ShutdownTimeout.String())

		for _, srv := range []*http.Server{s.httpServer, s.httpsServer} {
			if srv == nil {
				continue
			}
			if err := srv.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during listener shutdown", "error", err)
				shutdownErr = err
			}
		}

		s.pool.Close()

		if s.scheduler != nil {
			s.scheduler.Stop()
		}
		if s.recorder != nil {
			if err := s.recorder.Close(); err != nil {
				s.logger.Error("error closing access log", "error", err)
			}
		}

		s.logger.Info("ingress stopped")
	})

	return shutdownErr
}

// newHTTPServer applies the shared timeouts and the connection-state hook
// that feeds the status counters.
func (s *Server) newHTTPServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:        handler,
		ReadTimeout:    s.cfg.Server.ReadTimeout,
		WriteTimeout:   s.cfg.Server.WriteTimeout,
		IdleTimeout:    s.cfg.Server.IdleTimeout,
		MaxHeaderBytes: s.cfg.Server.MaxHeaderBytes,
		ConnState: func(_ net.Conn, state http.ConnState) {
			switch state {
			case http.StateNew:
				s.counters.ConnOpened()
			case http.StateClosed, http.StateHijacked:
				s.counters.ConnClosed()
			}
		},
	}
}

// instrumentHandshakes wraps certificate selection so rejected handshakes
// are logged and counted. The client still receives only the generic alert.
func (s *Server) instrumentHandshakes(tlsConfig *tls.Config) {
	lookup := tlsConfig.GetCertificate
	tlsConfig.GetCertificate = func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
		cert, err := lookup(hello)
		if err != nil {
			s.logger.Warn("TLS handshake rejected",
				"server_name", hello.ServerName,
				"remote_addr", remoteAddr(hello),
			)
			s.counters.ErrorServed()
			s.collector.RecordHandshakeError()
		}
		return cert, err
	}
}

func remoteAddr(hello *tls.ClientHelloInfo) string {
	if hello.Conn != nil {
		return hello.Conn.RemoteAddr().String()
	}
	return ""
}

// Counters exposes the status counters, for tests.
func (s *Server) Counters() *status.Counters { return s.counters }

// Handler returns the configured handler chain for one listener. Exposed
// for tests; Start wires the same chain into the real listeners.
func (s *Server) Handler(secure bool) http.Handler {
	return s.handler(secure)
}
