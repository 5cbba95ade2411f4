package measurement

import (
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/torosent/ga4sim/internal/job"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxEventsPerRequest is the per-request event limit of the collection API.
const MaxEventsPerRequest = 25

// DefaultEngagementMsec is reported for events without an explicit engagement time.
const DefaultEngagementMsec = 100

// Payload is the request body accepted by the collection endpoint.
type Payload struct {
	ClientID string         `json:"client_id"`
	Events   []PayloadEvent `json:"events"`
}

// PayloadEvent is one serialized event.
type PayloadEvent struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// BuildPayload binds events to a session. Every event gets the session start
// timestamp as session_id and an engagement_time_msec, defaulting to
// DefaultEngagementMsec. The input events are not modified.
func BuildPayload(session job.Session, events []Event) Payload {
	p := Payload{ClientID: session.ID, Events: make([]PayloadEvent, 0, len(events))}
	sessionID := strconv.FormatInt(session.StartedAt, 10)
	for _, e := range events {
		params := make(map[string]any, len(e.Params)+2)
		for k, v := range e.Params {
			params[k] = v
		}
		params["session_id"] = sessionID
		if _, ok := params["engagement_time_msec"]; !ok {
			params["engagement_time_msec"] = DefaultEngagementMsec
		}
		p.Events = append(p.Events, PayloadEvent{Name: e.Name, Params: params})
	}
	return p
}

// Chunk splits events into consecutive groups of at most size.
func Chunk(events []Event, size int) [][]Event {
	if size < 1 {
		size = MaxEventsPerRequest
	}
	var out [][]Event
	for len(events) > size {
		out = append(out, events[:size:size])
		events = events[size:]
	}
	if len(events) > 0 {
		out = append(out, events)
	}
	return out
}

// Encode serializes a payload.
func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}
