package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestID_Generated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen == "" {
		t.Fatal("no request ID in handler context")
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response %s = %q, want %q", RequestIDHeader, got, seen)
	}
}

func TestRequestID_ClientSuppliedIsReused(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-id-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "client-id-42" {
		t.Errorf("request ID = %q, want client-supplied client-id-42", seen)
	}
}

func TestGetRequestID_Absent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetRequestID(req.Context()); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestRecovery_PassThrough(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rec.Code)
	}
}

func TestResponseRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseRecorder(rec)

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError) // ignored, already written
	if _, err := rw.Write([]byte("hello")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if got := rw.Status(); got != http.StatusAccepted {
		t.Errorf("Status() = %d, want 202", got)
	}
	if got := rw.BytesWritten(); got != 5 {
		t.Errorf("BytesWritten() = %d, want 5", got)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("underlying status = %d, want 202", rec.Code)
	}
}

func TestResponseRecorder_ImplicitOK(t *testing.T) {
	rw := NewResponseRecorder(httptest.NewRecorder())
	rw.Write([]byte("body"))

	if got := rw.Status(); got != http.StatusOK {
		t.Errorf("Status() = %d, want 200 after implicit header", got)
	}
}
