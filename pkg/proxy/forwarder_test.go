package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
	"mercator-hq/ganymede/pkg/telemetry/status"
)

func newTestForwarder(t *testing.T, requestTimeout time.Duration) (*Forwarder, *status.Counters, *metrics.Collector) {
	t.Helper()
	pool := newTestPool(t, config.UpstreamConfig{})
	counters := status.NewCounters()
	collector := metrics.NewCollector(config.MetricsConfig{Namespace: "test"}, nil)
	return NewForwarder(pool, counters, collector, requestTimeout), counters, collector
}

// retryCount reads the retry counter for a backend out of the registry.
func retryCount(t *testing.T, reg *prometheus.Registry, backend string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "test_upstream_retries_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "backend" && lp.GetValue() == backend {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

// echoBackend answers with its view of the request so tests can assert what
// crossed the wire.
func echoBackend(t *testing.T) (addr string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Echo-Host", r.Host)
		w.Header().Set("X-Echo-Forwarded-For", r.Header.Get("X-Forwarded-For"))
		w.Header().Set("X-Echo-Proto", r.Header.Get("X-Forwarded-Proto"))
		body, _ := io.ReadAll(r.Body)
		fmt.Fprintf(w, "echo:%s %s:%s", r.Method, r.URL.Path, body)
	}))
	t.Cleanup(srv.Close)
	return srv.Listener.Addr().String()
}

func TestForward_PreservesHostAndAppendsForwardedFor(t *testing.T) {
	backend := echoBackend(t)
	f, counters, _ := newTestForwarder(t, time.Second)

	req := httptest.NewRequest(http.MethodGet, "http://tracker.example/announce?info_hash=x", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	rec := httptest.NewRecorder()

	f.Forward(rec, req, backend)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Echo-Host"); got != "tracker.example" {
		t.Errorf("backend saw Host %q, want original tracker.example", got)
	}
	wantXFF := "198.51.100.1, 192.0.2.1"
	if got := rec.Header().Get("X-Echo-Forwarded-For"); got != wantXFF {
		t.Errorf("backend saw X-Forwarded-For %q, want %q", got, wantXFF)
	}
	if got := rec.Header().Get("X-Echo-Proto"); got != "http" {
		t.Errorf("backend saw X-Forwarded-Proto %q, want http", got)
	}
	if got := rec.Body.String(); !strings.HasPrefix(got, "echo:GET /announce:") {
		t.Errorf("body = %q, want echoed method and path", got)
	}
	if got := counters.Errors(); got != 0 {
		t.Errorf("Errors() = %d, want 0", got)
	}
}

func TestForward_RelaysRequestBody(t *testing.T) {
	backend := echoBackend(t)
	f, _, _ := newTestForwarder(t, time.Second)

	req := httptest.NewRequest(http.MethodPost, "http://tracker.example/submit", strings.NewReader("payload"))
	rec := httptest.NewRecorder()

	f.Forward(rec, req, backend)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "echo:POST /submit:payload" {
		t.Errorf("body = %q, want echoed payload", got)
	}
}

func TestForward_ReusesPooledConnection(t *testing.T) {
	backend := echoBackend(t)
	f, _, collector := newTestForwarder(t, time.Second)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "http://tracker.example/", nil)
		rec := httptest.NewRecorder()
		f.Forward(rec, req, backend)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
		if got := f.pool.IdleCount(backend); got != 1 {
			t.Errorf("request %d: IdleCount() = %d, want 1 parked connection", i, got)
		}
	}

	if got := retryCount(t, collector.Registry(), backend); got != 0 {
		t.Errorf("retries = %v, want 0 on the happy path", got)
	}
}

func TestForward_BadGatewayAfterOneRetry(t *testing.T) {
	// A closed port fails every dial, so the engine tries twice then answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	backend := ln.Addr().String()
	ln.Close()

	f, counters, collector := newTestForwarder(t, 5*time.Second)

	req := httptest.NewRequest(http.MethodGet, "http://tracker.example/", nil)
	rec := httptest.NewRecorder()
	f.Forward(rec, req, backend)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if got := counters.Errors(); got != 1 {
		t.Errorf("Errors() = %d, want 1", got)
	}

	if retries := retryCount(t, collector.Registry(), backend); retries != 1 {
		t.Errorf("retries = %v, want exactly 1", retries)
	}
}

func TestForward_GatewayTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	f, counters, _ := newTestForwarder(t, 100*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "http://tracker.example/slow", nil)
	rec := httptest.NewRecorder()
	f.Forward(rec, req, srv.Listener.Addr().String())

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
	if got := counters.Errors(); got != 1 {
		t.Errorf("Errors() = %d, want 1", got)
	}
}

func TestForward_ClientDisconnectDiscardsConnection(t *testing.T) {
	// A backend that sends the start of a response and then stalls forever.
	stop := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("first chunk"))
		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
		<-stop
	}))
	defer srv.Close()
	defer close(stop)
	backend := srv.Listener.Addr().String()

	f, _, _ := newTestForwarder(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "http://tracker.example/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		f.Forward(rec, req, backend)
		close(done)
	}()

	// Let the first chunk cross, then drop the client.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Forward did not return after the client went away")
	}

	// The response was only half-read; the connection must be discarded,
	// never parked for reuse.
	if got := f.pool.IdleCount(backend); got != 0 {
		t.Errorf("IdleCount() = %d, want 0 for a half-read connection", got)
	}
	if got := rec.Body.String(); got != "first chunk" {
		t.Errorf("body = %q, want the bytes relayed before the disconnect", got)
	}
}

func TestForward_NoRetryAfterBodyConsumed(t *testing.T) {
	// A backend that reads the request then closes without answering. The
	// body has been handed over, so a retry must not happen.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			buf := make([]byte, 4096)
			conn.Read(buf)
			conn.Close()
		}
	}()
	backend := ln.Addr().String()

	f, _, collector := newTestForwarder(t, 5*time.Second)

	req := httptest.NewRequest(http.MethodPost, "http://tracker.example/submit", strings.NewReader("payload"))
	rec := httptest.NewRecorder()
	f.Forward(rec, req, backend)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if retries := retryCount(t, collector.Registry(), backend); retries != 0 {
		t.Errorf("retries = %v, want 0 once body bytes were consumed", retries)
	}
}

func TestRewriteRequest(t *testing.T) {
	f, _, _ := newTestForwarder(t, time.Second)

	req := httptest.NewRequest(http.MethodGet, "http://tracker.example/path", nil)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Keep-Alive", "timeout=5")
	req.Header.Set("Accept", "text/html")

	out := f.rewriteRequest(req.Context(), req, &bodyGuard{rc: req.Body})

	if out.RequestURI != "" {
		t.Errorf("RequestURI = %q, want cleared for client-side writing", out.RequestURI)
	}
	if out.Host != "tracker.example" {
		t.Errorf("Host = %q, want tracker.example", out.Host)
	}
	if got := out.Header.Get("Connection"); got != "" {
		t.Errorf("Connection = %q, want stripped", got)
	}
	if got := out.Header.Get("Keep-Alive"); got != "" {
		t.Errorf("Keep-Alive = %q, want stripped", got)
	}
	if got := out.Header.Get("Accept"); got != "text/html" {
		t.Errorf("Accept = %q, want preserved", got)
	}
	if got := out.Header.Get("X-Forwarded-For"); got != "192.0.2.1" {
		t.Errorf("X-Forwarded-For = %q, want client IP", got)
	}
}
