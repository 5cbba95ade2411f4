package browser

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/torosent/ga4sim/internal/failure"
	"github.com/torosent/ga4sim/internal/job"
)

func TestParseClientID(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"GA1.1.1234567890.1700000000", "1234567890.1700000000", true},
		{"GA1.2.42.7", "42.7", true},
		{"GA1.1.abc.def", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseClientID(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseClientID(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseSessionStart(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"GS1.1.1700000000.1.0.1700000000.0.0.0", 1700000000, true},
		{"GS2.1.1699999999", 1699999999, true},
		{"GS1.1.x", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseSessionStart(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseSessionStart(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestContainerCookie(t *testing.T) {
	if got := ContainerCookie("G-ABC123"); got != "_ga_ABC123" {
		t.Fatalf("ContainerCookie() = %q", got)
	}
}

func TestSessionFromCookies(t *testing.T) {
	now := time.Unix(1800000000, 0)
	cookies := []Cookie{
		{Name: "other", Value: "x"},
		{Name: "_ga", Value: "GA1.1.555.666"},
		{Name: "_ga_ABC123", Value: "GS1.1.1700000001.1.0"},
	}

	s, ok := SessionFromCookies(cookies, "G-ABC123", now)
	if !ok {
		t.Fatal("expected session")
	}
	if s.ID != "555.666" || s.StartedAt != 1700000001 {
		t.Fatalf("session = %+v", s)
	}

	s, ok = SessionFromCookies(cookies[:2], "G-ABC123", now)
	if !ok || s.StartedAt != now.Unix() {
		t.Fatalf("expected fallback session start, got %+v", s)
	}

	if _, ok := SessionFromCookies(cookies[2:], "G-ABC123", now); ok {
		t.Fatal("session without client cookie must not be ok")
	}
}

func TestClassifyNavigation(t *testing.T) {
	tests := []struct {
		err  error
		want failure.Kind
	}{
		{errors.New("page.goto: net::ERR_NAME_NOT_RESOLVED at https://x"), failure.KindTransientNetwork},
		{errors.New("Timeout 30000ms exceeded."), failure.KindTransientNetwork},
		{errors.New("Target closed"), failure.KindResourceExhausted},
		{errors.New("Protocol error: Cannot navigate to invalid URL"), failure.KindFatalConfig},
	}
	for _, tt := range tests {
		if got := failure.KindOf(classifyNavigation(tt.err)); got != tt.want {
			t.Errorf("classifyNavigation(%q) kind = %s, want %s", tt.err, got, tt.want)
		}
	}
	if classifyNavigation(nil) != nil {
		t.Fatal("nil error must stay nil")
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Config{MeasurementID: "G-1"}, nopLogger()); failure.Classify(err) != failure.Fatal {
		t.Fatalf("missing target: %v", err)
	}
	if _, err := New(Config{Target: "https://example.com"}, nopLogger()); failure.Classify(err) != failure.Fatal {
		t.Fatalf("missing measurement id: %v", err)
	}
	b, err := New(Config{Target: "https://example.com", MeasurementID: "G-1"}, nopLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if b.cfg.NavigationTimeout != 30*time.Second || b.cfg.CookieWait != 5*time.Second {
		t.Fatalf("defaults not applied: %+v", b.cfg)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() before launch error = %v", err)
	}
	if _, err := b.ensureBrowser(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}

func nopLogger() zerolog.Logger { return zerolog.Nop() }

type fakePage struct {
	title    string
	titleErr error
	url      string
}

func (p fakePage) Title() (string, error) { return p.title, p.titleErr }
func (p fakePage) URL() string            { return p.url }

func TestDescribePage(t *testing.T) {
	var buf bytes.Buffer
	b, err := New(Config{Target: "https://example.com", MeasurementID: "G-ABC"}, zerolog.New(&buf).Level(zerolog.DebugLevel))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	session := job.Session{ID: "1.2"}
	b.describePage(&session, fakePage{title: "Home", url: "https://example.com/"})
	if session.PageTitle != "Home" || session.PageLocation != "https://example.com/" {
		t.Errorf("session = %+v", session)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected log output: %s", buf.String())
	}

	session = job.Session{ID: "3.4"}
	b.describePage(&session, fakePage{titleErr: errors.New("target closed"), url: "https://example.com/about"})
	if session.PageTitle != "" || session.PageLocation != "https://example.com/about" {
		t.Errorf("session = %+v", session)
	}
	if out := buf.String(); !strings.Contains(out, "read page title") || !strings.Contains(out, "target closed") {
		t.Errorf("title error not logged: %q", out)
	}
}
