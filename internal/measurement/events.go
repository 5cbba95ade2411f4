package measurement

import (
	"strings"

	"github.com/torosent/ga4sim/internal/job"
	"github.com/torosent/ga4sim/internal/pages"
)

// Event names emitted by the simulator.
const (
	EventSessionStart   = "session_start"
	EventFirstVisit     = "first_visit"
	EventPageView       = "page_view"
	EventUserEngagement = "user_engagement"
)

// Event is one named analytics event with its parameters.
type Event struct {
	Name   string
	Params map[string]any
}

// Site describes where simulated visitors navigate.
type Site struct {
	Target string       // landing URL
	Pages  []pages.Page // catalogue used for titles
}

// URL joins path onto the site target.
func (s Site) URL(path string) string {
	if path == "" || path == "/" {
		return s.Target
	}
	return strings.TrimRight(s.Target, "/") + "/" + strings.TrimLeft(path, "/")
}

// MPEvents builds the full event list for a visitor that never loaded the
// page: session start, first visit, one page view per drawn page and a final
// engagement event.
func MPEvents(site Site, params job.SessionParams) []Event {
	events := []Event{
		{Name: EventSessionStart, Params: map[string]any{
			"page_location":        site.Target,
			"page_title":           "Home",
			"engagement_time_msec": 0,
		}},
		{Name: EventFirstVisit, Params: map[string]any{
			"engagement_time_msec": 0,
		}},
		pageView(site.Target, "Home", "", params.Landing.Milliseconds()),
	}
	for _, v := range params.Visits {
		events = append(events, pageView(site.URL(v.Path), pages.TitleFor(site.Pages, v.Path), site.Target, v.Engagement.Milliseconds()))
	}
	return append(events, engagement(site.Target, params.Duration.Milliseconds()))
}

// HybridEvents builds the events sent after a browser bootstrap. The page
// load already reported session start, first visit and the landing page
// view, so only the further navigations and the closing engagement are sent.
func HybridEvents(site Site, session job.Session, params job.SessionParams) []Event {
	referrer := session.PageLocation
	if referrer == "" {
		referrer = site.Target
	}
	events := make([]Event, 0, len(params.Visits)+1)
	for _, v := range params.Visits {
		events = append(events, pageView(site.URL(v.Path), pages.TitleFor(site.Pages, v.Path), referrer, v.Engagement.Milliseconds()))
	}
	return append(events, engagement(site.Target, params.Duration.Milliseconds()))
}

func pageView(location, title, referrer string, engagementMs int64) Event {
	return Event{Name: EventPageView, Params: map[string]any{
		"page_location":        location,
		"page_title":           title,
		"page_referrer":        referrer,
		"engagement_time_msec": engagementMs,
	}}
}

func engagement(location string, engagementMs int64) Event {
	return Event{Name: EventUserEngagement, Params: map[string]any{
		"page_location":        location,
		"engagement_time_msec": engagementMs,
	}}
}
