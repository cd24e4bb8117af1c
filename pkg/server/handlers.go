package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"mercator-hq/ganymede/pkg/accesslog"
	"mercator-hq/ganymede/pkg/proxy/middleware"
	"mercator-hq/ganymede/pkg/router"
)

// requestInfo is filled in by the dispatch handler so the accounting wrapper
// above it can see where the request went.
type requestInfo struct {
	backend string
}

type requestInfoKey struct{}

func infoFromContext(ctx context.Context) *requestInfo {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		return info
	}
	return nil
}

// handler builds the full chain for one listener:
// recovery → request ID → logging → accounting → dispatch.
func (s *Server) handler(secure bool) http.Handler {
	listener := "http"
	if secure {
		listener = "https"
	}

	var h http.Handler = s.dispatch(secure)
	h = s.accounting(listener, h)
	h = middleware.Logging(h)
	h = middleware.RequestID(h)
	h = middleware.Recovery(h)
	return h
}

// dispatch routes one request to the ACME handler, the status endpoint, the
// metrics endpoint, an HTTPS redirect, or the forwarding engine.
func (s *Server) dispatch(secure bool) http.Handler {
	metricsEnabled := s.cfg.MetricsEnabled()
	metricsPath := s.cfg.Telemetry.Metrics.Path
	metricsHandler := s.collector.Handler()
	redirectSuffix := httpsPortSuffix(s.cfg.Server.HTTPSAddress)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prometheus exposition is an operator surface, plaintext side only.
		if !secure && metricsEnabled && r.URL.Path == metricsPath {
			metricsHandler.ServeHTTP(w, r)
			return
		}

		decision := s.table.Match(r.Host, r.URL.Path)
		switch decision.Kind {
		case router.KindACME:
			s.serveACME(w, r)

		case router.KindStatus:
			s.statusH.ServeHTTP(w, r)

		case router.KindBackend:
			if !secure && decision.Rule.RedirectHTTPS {
				redirectHTTPS(w, r, redirectSuffix)
				return
			}
			if info := infoFromContext(r.Context()); info != nil {
				info.backend = decision.Rule.Backend
			}
			s.forwarder.Forward(w, r, decision.Rule.Backend)

		default:
			s.counters.ErrorServed()
			http.NotFound(w, r)
		}
	})
}

// serveACME serves the challenge handler, counting rejected (403) paths as
// ingress errors.
func (s *Server) serveACME(w http.ResponseWriter, r *http.Request) {
	rec := middleware.NewResponseRecorder(w)
	s.acme.ServeHTTP(rec, r)
	if rec.Status() == http.StatusForbidden {
		s.counters.ErrorServed()
	}
}

// accounting feeds the status counters, Prometheus metrics, and the access
// log from one completed request.
func (s *Server) accounting(listener string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		info := &requestInfo{}
		r = r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info))

		rec := middleware.NewResponseRecorder(w)
		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		host := hostOnly(r.Host)

		s.counters.RequestServed()
		s.collector.RecordRequest(host, listener, statusClass(rec.Status()), duration)

		if s.recorder != nil {
			s.recorder.Record(&accesslog.Record{
				Time:         start,
				Listener:     listener,
				Host:         host,
				Method:       r.Method,
				Path:         r.URL.Path,
				Status:       rec.Status(),
				DurationMs:   duration.Milliseconds(),
				BytesWritten: rec.BytesWritten(),
				ClientAddr:   r.RemoteAddr,
				Backend:      info.backend,
				RequestID:    middleware.GetRequestID(r.Context()),
			})
		}
	})
}

// redirectHTTPS answers plaintext requests for redirect-enabled hosts with a
// permanent redirect that preserves method and target. portSuffix carries
// ":port" when the TLS listener is off the default port.
func redirectHTTPS(w http.ResponseWriter, r *http.Request, portSuffix string) {
	target := "https://" + hostOnly(r.Host) + portSuffix + r.URL.RequestURI()
	http.Redirect(w, r, target, http.StatusPermanentRedirect)
}

// httpsPortSuffix returns ":port" for a TLS listen address not on 443, so
// redirects send clients to a port they can actually reach.
func httpsPortSuffix(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil || port == "443" {
		return ""
	}
	return ":" + port
}

// hostOnly strips a port from a Host header value.
func hostOnly(host string) string {
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		return host[:i]
	}
	return host
}

// statusClass buckets status codes for the metrics label ("2xx", "4xx"...).
func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
