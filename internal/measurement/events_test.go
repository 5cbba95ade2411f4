package measurement

import (
	"testing"
	"time"

	"github.com/torosent/ga4sim/internal/job"
	"github.com/torosent/ga4sim/internal/pages"
)

func testParams() job.SessionParams {
	return job.SessionParams{
		Duration: 42 * time.Second,
		Pages:    3,
		Landing:  7 * time.Second,
		Visits: []job.Page{
			{Path: "/blog", Engagement: 3 * time.Second},
			{Path: "/about", Engagement: 4 * time.Second},
		},
	}
}

func names(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Name
	}
	return out
}

func TestMPEventsComposition(t *testing.T) {
	site := Site{Target: "https://example.com/", Pages: pages.Default}
	events := MPEvents(site, testParams())

	want := []string{EventSessionStart, EventFirstVisit, EventPageView, EventPageView, EventPageView, EventUserEngagement}
	got := names(events)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}

	if v := events[0].Params["engagement_time_msec"]; v != 0 {
		t.Errorf("session_start engagement = %v, want 0", v)
	}
	if v := events[1].Params["engagement_time_msec"]; v != 0 {
		t.Errorf("first_visit engagement = %v, want 0", v)
	}
	if v := events[2].Params["engagement_time_msec"]; v != int64(7000) {
		t.Errorf("landing engagement = %v, want 7000", v)
	}
	if loc := events[3].Params["page_location"]; loc != "https://example.com/blog" {
		t.Errorf("visit location = %v", loc)
	}
	if title := events[3].Params["page_title"]; title != "Blog" {
		t.Errorf("visit title = %v", title)
	}
	if v := events[5].Params["engagement_time_msec"]; v != int64(42000) {
		t.Errorf("user_engagement = %v, want 42000", v)
	}
}

func TestHybridEventsSkipBrowserEvents(t *testing.T) {
	site := Site{Target: "https://example.com"}
	session := job.Session{ID: "1.2", StartedAt: 100, PageLocation: "https://example.com/landing"}
	events := HybridEvents(site, session, testParams())

	if len(events) != 3 {
		t.Fatalf("len = %d, want 3 (%v)", len(events), names(events))
	}
	for _, e := range events {
		if e.Name == EventSessionStart || e.Name == EventFirstVisit {
			t.Fatalf("hybrid must not emit %s", e.Name)
		}
	}
	if ref := events[0].Params["page_referrer"]; ref != "https://example.com/landing" {
		t.Errorf("referrer = %v", ref)
	}
	if events[2].Name != EventUserEngagement {
		t.Errorf("last event = %s", events[2].Name)
	}
}

func TestHybridEventsSinglePage(t *testing.T) {
	params := job.SessionParams{Duration: time.Second, Pages: 1}
	events := HybridEvents(Site{Target: "https://example.com"}, job.Session{ID: "1.2"}, params)
	if len(events) != 1 || events[0].Name != EventUserEngagement {
		t.Fatalf("events = %v", names(events))
	}
}

func TestSiteURL(t *testing.T) {
	s := Site{Target: "https://example.com/"}
	tests := map[string]string{
		"":       "https://example.com/",
		"/":      "https://example.com/",
		"/about": "https://example.com/about",
		"blog":   "https://example.com/blog",
	}
	for in, want := range tests {
		if got := s.URL(in); got != want {
			t.Errorf("URL(%q) = %q, want %q", in, got, want)
		}
	}
}
