// Package accesslog records one entry per proxied request.
//
// Records are handed off to a bounded buffer and written by a background
// worker, so a slow sink (disk, SQLite) never stalls the serving path; when
// the buffer is full, records are dropped and counted instead of blocking.
package accesslog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Record is one access-log entry.
type Record struct {
	// ID is a generated UUID for the record.
	ID string `json:"id"`

	// Time is when the request started.
	Time time.Time `json:"time"`

	// Listener is "http" or "https".
	Listener string `json:"listener"`

	// Host is the virtual host the client addressed.
	Host string `json:"host"`

	Method string `json:"method"`
	Path   string `json:"path"`
	Status int    `json:"status"`

	// DurationMs is the full request/response cycle duration.
	DurationMs int64 `json:"duration_ms"`

	// BytesWritten counts response body bytes sent to the client.
	BytesWritten int64 `json:"bytes_written"`

	// ClientAddr is the client's remote address.
	ClientAddr string `json:"client_addr"`

	// Backend is the upstream address the request was forwarded to, empty
	// for requests the ingress answered itself.
	Backend string `json:"backend,omitempty"`

	// RequestID is the correlation ID from the X-Request-ID header.
	RequestID string `json:"request_id,omitempty"`
}

// Sink persists records.
type Sink interface {
	Write(ctx context.Context, rec *Record) error
	Close() error
}

// Recorder buffers records and writes them asynchronously to a sink.
type Recorder struct {
	sink    Sink
	records chan *Record
	dropped atomic.Int64
	logger  *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewRecorder creates a recorder with the given buffer capacity.
func NewRecorder(sink Sink, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	return &Recorder{
		sink:    sink,
		records: make(chan *Record, bufferSize),
		logger:  slog.Default().With("component", "accesslog"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the background writer.
func (r *Recorder) Start() {
	r.startOnce.Do(func() {
		go r.run()
	})
}

// Record enqueues a record without blocking. The record's ID is assigned
// here if unset. Returns false if the buffer was full and the record was
// dropped.
func (r *Recorder) Record(rec *Record) bool {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	select {
	case r.records <- rec:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of records lost to buffer overflow.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close drains the buffer, stops the writer, and closes the sink. Safe to
// call whether or not Start ever ran.
func (r *Recorder) Close() error {
	r.stopOnce.Do(func() {
		// The writer must exist for the drain handshake to complete.
		r.Start()
		close(r.stopCh)
		<-r.doneCh
	})
	return r.sink.Close()
}

func (r *Recorder) run() {
	defer close(r.doneCh)
	for {
		select {
		case rec := <-r.records:
			r.write(rec)
		case <-r.stopCh:
			// Drain whatever is already buffered before stopping.
			for {
				select {
				case rec := <-r.records:
					r.write(rec)
				default:
					if n := r.dropped.Load(); n > 0 {
						r.logger.Warn("access records dropped due to full buffer", "count", n)
					}
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.sink.Write(ctx, rec); err != nil {
		r.logger.Error("failed to write access record", "error", err, "record_id", rec.ID)
	}
}
