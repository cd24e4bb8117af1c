// Package status maintains the ingress's own connection and request
// counters and serves them as a plaintext snapshot on a reserved path.
//
// The counters are independent of backend health: the endpoint answers from
// process memory and never opens a backend connection. Increments are
// atomic, so the serving hot path takes no locks.
package status

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// Counters is the shared counter set written by the listeners and the
// forwarding engine.
type Counters struct {
	active   atomic.Int64
	accepted atomic.Int64
	requests atomic.Int64
	errors   atomic.Int64
}

// NewCounters creates a zeroed counter set.
func NewCounters() *Counters {
	return &Counters{}
}

// ConnOpened records an accepted client connection.
func (c *Counters) ConnOpened() {
	c.accepted.Add(1)
	c.active.Add(1)
}

// ConnClosed records a closed client connection.
func (c *Counters) ConnClosed() {
	c.active.Add(-1)
}

// RequestServed records one completed request.
func (c *Counters) RequestServed() {
	c.requests.Add(1)
}

// ErrorServed records a request answered with an ingress-generated error
// (404 for unknown hosts, 502/504 from forwarding, 403 from the challenge
// handler).
func (c *Counters) ErrorServed() {
	c.errors.Add(1)
}

// Active returns the number of live client connections.
func (c *Counters) Active() int64 { return c.active.Load() }

// Accepted returns the total number of accepted connections.
func (c *Counters) Accepted() int64 { return c.accepted.Load() }

// Requests returns the total number of requests served.
func (c *Counters) Requests() int64 { return c.requests.Load() }

// Errors returns the total number of error responses generated here.
func (c *Counters) Errors() int64 { return c.errors.Load() }

// Handler serves the plaintext counter snapshot. The format follows the
// stub_status shape the surrounding tooling already scrapes.
type Handler struct {
	counters *Counters
}

// NewHandler creates the status handler.
func NewHandler(counters *Counters) *Handler {
	return &Handler{counters: counters}
}

// ServeHTTP writes the snapshot. Read-only; any method is answered the same
// way so probes stay trivial.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Active connections: %d\n", h.counters.Active())
	fmt.Fprintf(w, "server accepts handled requests\n %d %d %d\n",
		h.counters.Accepted(), h.counters.Accepted(), h.counters.Requests())
	fmt.Fprintf(w, "Total errors: %d\n", h.counters.Errors())
}
