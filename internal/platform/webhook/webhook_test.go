package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthflow/fhirsync/internal/platform/events"
)

type received struct {
	mu      sync.Mutex
	bodies  [][]byte
	headers []http.Header
}

func (r *received) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.bodies = append(r.bodies, body)
		r.headers = append(r.headers, req.Header.Clone())
		r.mu.Unlock()
		w.WriteHeader(status)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		urls []string
	}{
		{"no urls", nil},
		{"bad scheme", []string{"ftp://example.com/hook"}},
		{"no host", []string{"http://"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(Config{URLs: tt.urls}, zerolog.Nop()); err == nil {
				t.Errorf("expected error for %v", tt.urls)
			}
		})
	}
}

func TestPublish_SignsAndDelivers(t *testing.T) {
	var rec received
	srv := httptest.NewServer(rec.handler(http.StatusNoContent))
	defer srv.Close()

	p, err := New(Config{URLs: []string{srv.URL + "/hook"}, Secret: "s3cret"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := events.Event{Type: events.TypeSubjectSynced, SubjectID: "p1", ResourceCount: 5, Timestamp: time.Now().UTC()}
	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rec.bodies) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(rec.bodies))
	}
	h := rec.headers[0]
	if h.Get("X-Webhook-Event") != events.TypeSubjectSynced {
		t.Errorf("expected event header, got %q", h.Get("X-Webhook-Event"))
	}
	if h.Get("X-Webhook-ID") == "" || h.Get("X-Webhook-Timestamp") == "" {
		t.Error("expected delivery id and timestamp headers")
	}
	if !VerifySignature(rec.bodies[0], "s3cret", h.Get("X-Webhook-Signature")) {
		t.Error("expected a valid signature")
	}

	var got events.Event
	if err := json.Unmarshal(rec.bodies[0], &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.SubjectID != "p1" || got.ResourceCount != 5 {
		t.Errorf("unexpected body %+v", got)
	}
}

func TestPublish_NoSecretNoSignature(t *testing.T) {
	var rec received
	srv := httptest.NewServer(rec.handler(http.StatusOK))
	defer srv.Close()

	p, _ := New(Config{URLs: []string{srv.URL}}, zerolog.Nop())
	if err := p.Publish(context.Background(), events.Event{Type: events.TypeBulkCompleted}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig := rec.headers[0].Get("X-Webhook-Signature"); sig != "" {
		t.Errorf("expected no signature, got %q", sig)
	}
}

func TestPublish_EventFilter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	p, _ := New(Config{URLs: []string{srv.URL}, Events: []string{events.TypeSubjectFailed}}, zerolog.Nop())
	ctx := context.Background()
	_ = p.Publish(ctx, events.Event{Type: events.TypeSubjectSynced})
	_ = p.Publish(ctx, events.Event{Type: events.TypeSubjectFailed})

	if calls.Load() != 1 {
		t.Errorf("expected only subject.failed delivered, got %d calls", calls.Load())
	}
}

func TestPublish_FailingEndpointDoesNotStopOthers(t *testing.T) {
	var good received
	okSrv := httptest.NewServer(good.handler(http.StatusOK))
	defer okSrv.Close()
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer badSrv.Close()

	p, _ := New(Config{URLs: []string{badSrv.URL, okSrv.URL}}, zerolog.Nop())
	err := p.Publish(context.Background(), events.Event{Type: events.TypeSubjectSynced})
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Errorf("expected status 400 error, got %v", err)
	}
	if len(good.bodies) != 1 {
		t.Errorf("expected the healthy endpoint to receive the event, got %d", len(good.bodies))
	}
}

func TestPublish_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, _ := New(Config{URLs: []string{srv.URL}, RetryMax: 2}, zerolog.Nop())
	p.http.RetryWaitMin = time.Millisecond
	p.http.RetryWaitMax = time.Millisecond

	if err := p.Publish(context.Background(), events.Event{Type: events.TypeSubjectSynced}); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"type":"subject.synced"}`)
	sig := SignPayload(payload, "k")
	if !VerifySignature(payload, "k", sig) {
		t.Error("expected bare signature to verify")
	}
	if !VerifySignature(payload, "k", "sha256="+sig) {
		t.Error("expected prefixed signature to verify")
	}
	if VerifySignature(payload, "other", sig) {
		t.Error("expected wrong secret to fail")
	}
}
