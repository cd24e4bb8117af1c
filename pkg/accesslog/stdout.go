package accesslog

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// JSONSink writes one JSON object per line to a writer. It is the default
// access-log backend, aimed at stdout collection by the container runtime.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONSink creates a sink writing to w.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

// Write encodes the record as a single JSON line.
func (s *JSONSink) Write(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(rec)
}

// Close is a no-op; the underlying writer is owned by the caller.
func (s *JSONSink) Close() error {
	return nil
}
