package accesslog

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"
)

// collectSink stores records in memory for assertions.
type collectSink struct {
	mu      sync.Mutex
	records []*Record
	closed  bool
}

func (s *collectSink) Write(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *collectSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *collectSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func testRecord() *Record {
	return &Record{
		Time:       time.Now(),
		Listener:   "https",
		Host:       "tracker.example",
		Method:     http.MethodGet,
		Path:       "/announce",
		Status:     200,
		DurationMs: 12,
		ClientAddr: "192.0.2.1:5000",
		Backend:    "127.0.0.1:4000",
	}
}

func TestRecorder_WritesAndAssignsID(t *testing.T) {
	sink := &collectSink{}
	r := NewRecorder(sink, 16)
	r.Start()

	rec := testRecord()
	if !r.Record(rec) {
		t.Fatal("Record() = false, want true")
	}
	if rec.ID == "" {
		t.Error("Record() left ID empty, want generated UUID")
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := sink.len(); got != 1 {
		t.Errorf("sink received %d records, want 1", got)
	}
	if !sink.closed {
		t.Error("sink not closed")
	}
}

func TestRecorder_DropsWhenBufferFull(t *testing.T) {
	// Never start the writer, so the buffer fills up.
	r := NewRecorder(&collectSink{}, 2)

	accepted := 0
	for i := 0; i < 5; i++ {
		if r.Record(testRecord()) {
			accepted++
		}
	}

	if accepted != 2 {
		t.Errorf("accepted %d records, want 2", accepted)
	}
	if got := r.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
}

func TestRecorder_CloseDrainsBuffer(t *testing.T) {
	sink := &collectSink{}
	r := NewRecorder(sink, 16)

	// Enqueue before the writer runs; Close must still flush everything.
	for i := 0; i < 10; i++ {
		r.Record(testRecord())
	}
	r.Start()

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := sink.len(); got != 10 {
		t.Errorf("sink received %d records after Close, want 10", got)
	}
}

func TestRecorder_CloseWithoutStart(t *testing.T) {
	sink := &collectSink{}
	r := NewRecorder(sink, 16)

	for i := 0; i < 3; i++ {
		r.Record(testRecord())
	}

	done := make(chan error, 1)
	go func() { done <- r.Close() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close() blocked without a prior Start")
	}

	if got := sink.len(); got != 3 {
		t.Errorf("sink received %d records, want 3", got)
	}
	if !sink.closed {
		t.Error("sink not closed")
	}
}

func TestJSONSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink(&buf)

	rec := testRecord()
	rec.ID = "rec-1"
	rec.RequestID = "req-1"
	if err := sink.Write(context.Background(), rec); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got["id"] != "rec-1" {
		t.Errorf("id = %v, want rec-1", got["id"])
	}
	if got["host"] != "tracker.example" {
		t.Errorf("host = %v, want tracker.example", got["host"])
	}
	if got["backend"] != "127.0.0.1:4000" {
		t.Errorf("backend = %v, want 127.0.0.1:4000", got["backend"])
	}

	// Empty optional fields stay out of the line entirely.
	buf.Reset()
	rec = testRecord()
	rec.ID = "rec-2"
	rec.Backend = ""
	if err := sink.Write(context.Background(), rec); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if bytes.Contains(buf.Bytes(), []byte("backend")) {
		t.Errorf("line contains empty backend field: %s", buf.String())
	}
}
