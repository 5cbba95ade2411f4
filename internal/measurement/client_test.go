package measurement

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/torosent/ga4sim/internal/clientmetrics"
	"github.com/torosent/ga4sim/internal/failure"
	"github.com/torosent/ga4sim/internal/job"
	"github.com/torosent/ga4sim/internal/runner"
)

var testSession = job.Session{ID: "111.222", StartedAt: 1700000000}

type recordingServer struct {
	mu     sync.Mutex
	bodies [][]byte
	query  []string
}

func newServer(t *testing.T, rs *recordingServer, handler func(w http.ResponseWriter, call int)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rs.mu.Lock()
		rs.bodies = append(rs.bodies, body)
		rs.query = append(rs.query, r.URL.RawQuery)
		call := len(rs.bodies)
		rs.mu.Unlock()
		handler(w, call)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, base string, debug bool, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(Config{MeasurementID: "G-TEST123", APISecret: "s3cret", Debug: debug, BaseURL: base, Timeout: time.Second}, opts...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestNewClientValidates(t *testing.T) {
	tests := []Config{
		{APISecret: "x"},
		{MeasurementID: "G-1"},
		{MeasurementID: "G-1", APISecret: "x", BaseURL: "not a url"},
	}
	for _, cfg := range tests {
		_, err := NewClient(cfg)
		if err == nil {
			t.Fatalf("NewClient(%+v) expected error", cfg)
		}
		if failure.Classify(err) != failure.Fatal {
			t.Errorf("NewClient(%+v) error class = %s, want fatal", cfg, failure.Classify(err))
		}
	}
}

func TestEmitSendsCredentialsAndPayload(t *testing.T) {
	rs := &recordingServer{}
	srv := newServer(t, rs, func(w http.ResponseWriter, _ int) { w.WriteHeader(http.StatusNoContent) })
	metrics := clientmetrics.New()
	c := newTestClient(t, srv.URL+"/mp/collect", false, WithMetrics(metrics))

	report, err := c.Emit(context.Background(), testSession, []Event{{Name: EventFirstVisit, Params: map[string]any{"engagement_time_msec": 0}}})
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if report.Requests != 1 || report.Events != 1 {
		t.Fatalf("report = %+v", report)
	}
	if !strings.Contains(rs.query[0], "measurement_id=G-TEST123") || !strings.Contains(rs.query[0], "api_secret=s3cret") {
		t.Errorf("query = %q", rs.query[0])
	}
	if got := gjson.GetBytes(rs.bodies[0], "events.0.params.session_id").String(); got != "1700000000" {
		t.Errorf("session_id = %q", got)
	}
	if s := metrics.Snapshot(); s.Requests != 1 || s.StatusCodes[204] != 1 {
		t.Errorf("metrics = %+v", s)
	}
}

func TestEmitChunksLongEventLists(t *testing.T) {
	rs := &recordingServer{}
	srv := newServer(t, rs, func(w http.ResponseWriter, _ int) { w.WriteHeader(http.StatusNoContent) })
	c := newTestClient(t, srv.URL, false)

	events := make([]Event, 30)
	for i := range events {
		events[i] = Event{Name: EventPageView}
	}
	report, err := c.Emit(context.Background(), testSession, events)
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if report.Requests != 2 || report.Events != 30 {
		t.Fatalf("report = %+v", report)
	}
	if n := len(gjson.GetBytes(rs.bodies[0], "events").Array()); n != 25 {
		t.Errorf("first chunk = %d events", n)
	}
	if n := len(gjson.GetBytes(rs.bodies[1], "events").Array()); n != 5 {
		t.Errorf("second chunk = %d events", n)
	}
}

func TestEmitStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   failure.Class
	}{
		{http.StatusTooManyRequests, failure.Transient},
		{http.StatusBadGateway, failure.Transient},
		{http.StatusServiceUnavailable, failure.Transient},
		{http.StatusUnauthorized, failure.Fatal},
		{http.StatusBadRequest, failure.Fatal},
	}
	for _, tt := range tests {
		rs := &recordingServer{}
		srv := newServer(t, rs, func(w http.ResponseWriter, _ int) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
		})
		c := newTestClient(t, srv.URL, false)

		_, err := c.Emit(context.Background(), testSession, []Event{{Name: EventPageView}})
		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if got := failure.Classify(err); got != tt.want {
			t.Errorf("status %d: class = %s, want %s", tt.status, got, tt.want)
		}
		var httpErr *runner.HTTPError
		if !errors.As(err, &httpErr) || httpErr.StatusCode != tt.status || httpErr.Body != "nope" {
			t.Errorf("status %d: unexpected error %v", tt.status, err)
		}
	}
}

func TestEmitStopsAtFirstFailedChunk(t *testing.T) {
	rs := &recordingServer{}
	srv := newServer(t, rs, func(w http.ResponseWriter, _ int) { w.WriteHeader(http.StatusInternalServerError) })
	c := newTestClient(t, srv.URL, false)

	report, err := c.Emit(context.Background(), testSession, make([]Event, 60))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(rs.bodies) != 1 {
		t.Fatalf("requests = %d, want 1", len(rs.bodies))
	}
	if report.Requests != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestEmitDebugValidation(t *testing.T) {
	rs := &recordingServer{}
	srv := newServer(t, rs, func(w http.ResponseWriter, _ int) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"validationMessages":[{"fieldPath":"events","description":"Event name is reserved.","validationCode":"NAME_RESERVED"}]}`))
	})
	c := newTestClient(t, srv.URL, true)

	report, err := c.Emit(context.Background(), testSession, []Event{{Name: "session_start"}})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if failure.KindOf(err) != failure.KindFatalConfig {
		t.Errorf("kind = %s", failure.KindOf(err))
	}
	if len(report.Messages) != 1 || report.Messages[0] != "NAME_RESERVED: Event name is reserved. (events)" {
		t.Fatalf("messages = %v", report.Messages)
	}
}

func TestEmitDebugClean(t *testing.T) {
	rs := &recordingServer{}
	srv := newServer(t, rs, func(w http.ResponseWriter, _ int) {
		_, _ = w.Write([]byte(`{"validationMessages":[]}`))
	})
	c := newTestClient(t, srv.URL, true)

	report, err := c.Emit(context.Background(), testSession, []Event{{Name: EventPageView}})
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if len(report.Messages) != 0 || report.Events != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestEmitConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := newTestClient(t, base, false)
	_, err := c.Emit(context.Background(), testSession, []Event{{Name: EventPageView}})
	if err == nil {
		t.Fatal("expected error")
	}
	if failure.Classify(err) != failure.Transient {
		t.Fatalf("class = %s, err = %v", failure.Classify(err), err)
	}
}

func TestEmitRequiresClientID(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", false)
	_, err := c.Emit(context.Background(), job.Session{}, []Event{{Name: EventPageView}})
	if failure.Classify(err) != failure.Fatal {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestValidationMessagesInvalidJSON(t *testing.T) {
	if got := ValidationMessages([]byte("not json")); got != nil {
		t.Fatalf("got %v", got)
	}
}
