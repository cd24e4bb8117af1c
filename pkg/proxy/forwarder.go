package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"mercator-hq/ganymede/pkg/telemetry/metrics"
	"mercator-hq/ganymede/pkg/telemetry/status"
)

// Failure reasons reported to metrics.
const (
	reasonDial    = "dial"
	reasonWrite   = "write"
	reasonRead    = "read"
	reasonTimeout = "timeout"
)

// Forwarder is the forwarding engine: it checks a connection out of the
// pool, writes the rewritten request, and streams the backend's response to
// the client as it arrives.
//
// A first connect/write/read failure is retried once on a freshly dialed
// connection, which covers pooled connections the backend closed while they
// were parked. A second failure surfaces as 502; an exceeded per-request
// deadline surfaces as 504.
type Forwarder struct {
	pool           *Pool
	counters       *status.Counters
	metrics        *metrics.Collector
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewForwarder creates a forwarding engine.
func NewForwarder(pool *Pool, counters *status.Counters, collector *metrics.Collector, requestTimeout time.Duration) *Forwarder {
	return &Forwarder{
		pool:           pool,
		counters:       counters,
		metrics:        collector,
		requestTimeout: requestTimeout,
		logger:         slog.Default().With("component", "proxy"),
	}
}

// Forward proxies one request to the backend address.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, backend string) {
	ctx := r.Context()
	if f.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.requestTimeout)
		defer cancel()
	}

	body := &bodyGuard{rc: r.Body}
	out := f.rewriteRequest(ctx, r, body)

	var lastErr error
	lastReason := reasonDial

	for attempt := 0; attempt < 2; attempt++ {
		var (
			conn *BackendConn
			err  error
		)
		if attempt == 0 {
			conn, err = f.pool.Get(ctx, backend)
		} else {
			// Retry always runs on a fresh connection; the pooled one that
			// just failed may have been closed by the backend.
			f.metrics.RecordUpstreamRetry(backend)
			conn, err = f.pool.Dial(ctx, backend)
		}
		if err != nil {
			lastErr, lastReason = err, reasonDial
			if retryable(ctx, attempt, body) {
				continue
			}
			break
		}

		done, reason, err := f.attempt(ctx, w, out, conn)
		if done {
			return
		}
		lastErr, lastReason = err, reason
		if !retryable(ctx, attempt, body) {
			break
		}
	}

	f.fail(w, ctx, backend, lastReason, lastErr)
}

// attempt runs one request/response exchange on conn. It returns done=true
// once anything has been decided for the client (success, or a response
// already in flight); done=false means the attempt failed before the client
// saw bytes and a retry may proceed.
func (f *Forwarder) attempt(ctx context.Context, w http.ResponseWriter, out *http.Request, conn *BackendConn) (done bool, reason string, err error) {
	stopWatch := watchCancel(ctx, conn.nc)
	defer stopWatch()

	if deadline, ok := ctx.Deadline(); ok {
		conn.nc.SetDeadline(deadline)
	}

	if err := out.Write(conn.nc); err != nil {
		conn.Close()
		return false, reasonWrite, fmt.Errorf("writing request to %s: %w", conn.backend, err)
	}

	resp, err := http.ReadResponse(conn.br, out)
	if err != nil {
		conn.Close()
		return false, reasonRead, fmt.Errorf("reading response from %s: %w", conn.backend, err)
	}
	defer resp.Body.Close()

	// From here on the response is committed to the client; failures are
	// connection-local and cannot become a retry.
	removeHopByHop(resp.Header)
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if fl, ok := w.(http.Flusher); ok {
		fl.Flush()
	}

	_, copyErr := io.Copy(&flushWriter{w: w}, resp.Body)
	if copyErr != nil {
		// Client went away or the backend died mid-stream. The response was
		// not fully consumed, so the connection cannot be reused.
		f.logger.Debug("response relay aborted", "backend", conn.backend, "error", copyErr)
		conn.Close()
		return true, "", nil
	}

	if resp.Close || out.Close {
		conn.Close()
	} else {
		f.pool.Put(conn)
	}
	return true, "", nil
}

// rewriteRequest builds the outbound request: original Host preserved so
// the backend can apply its own virtual-host logic, client address appended
// to X-Forwarded-For, hop-by-hop headers stripped. The wire format is
// always HTTP/1.1 regardless of the client-side protocol.
func (f *Forwarder) rewriteRequest(ctx context.Context, r *http.Request, body *bodyGuard) *http.Request {
	out := r.Clone(ctx)
	out.RequestURI = ""
	out.Body = body
	out.Close = false

	removeHopByHop(out.Header)
	appendXForwardedFor(out.Header, r.RemoteAddr)
	setXForwardedProto(out.Header, r)

	return out
}

// fail answers the client after both attempts were exhausted.
func (f *Forwarder) fail(w http.ResponseWriter, ctx context.Context, backend, reason string, err error) {
	statusCode := http.StatusBadGateway
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		statusCode = http.StatusGatewayTimeout
		reason = reasonTimeout
	}

	f.logger.Warn("forwarding failed",
		"backend", backend,
		"reason", reason,
		"status", statusCode,
		"error", err,
	)
	f.counters.ErrorServed()
	f.metrics.RecordUpstreamError(backend, reason)

	http.Error(w, http.StatusText(statusCode), statusCode)
}

// retryable reports whether another attempt is allowed: only the first
// failure is retried, never after the deadline fired, and never once any
// request body bytes were consumed (they cannot be replayed).
func retryable(ctx context.Context, attempt int, body *bodyGuard) bool {
	if attempt != 0 || ctx.Err() != nil {
		return false
	}
	return !body.consumed()
}

// watchCancel unblocks pending socket I/O when the context ends (client
// disconnect or deadline). Returns a stop function for the normal path.
func watchCancel(ctx context.Context, nc net.Conn) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			nc.SetDeadline(time.Unix(1, 0))
		case <-done:
		}
	}()
	return func() { close(done) }
}

// bodyGuard counts request-body bytes handed to a backend so the retry
// logic knows whether the body is still replayable.
type bodyGuard struct {
	rc   io.ReadCloser
	read atomic.Int64
}

func (b *bodyGuard) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	b.read.Add(int64(n))
	return n, err
}

func (b *bodyGuard) Close() error {
	return b.rc.Close()
}

func (b *bodyGuard) consumed() bool {
	return b.read.Load() > 0
}

// flushWriter flushes after every write so streamed responses reach the
// client without buffering delay.
type flushWriter struct {
	w http.ResponseWriter
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fl, ok := fw.w.(http.Flusher); ok {
		fl.Flush()
	}
	return n, err
}
