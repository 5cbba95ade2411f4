package browser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/torosent/ga4sim/internal/job"
)

var (
	clientIDPattern     = regexp.MustCompile(`GA\d+\.\d+\.(\d+\.\d+)`)
	sessionStartPattern = regexp.MustCompile(`GS\d+\.\d+\.(\d+)`)
)

// Cookie is the subset of a browser cookie read during bootstrap.
type Cookie struct {
	Name  string
	Value string
}

// ParseClientID extracts the "<digits>.<digits>" client identifier from a
// _ga cookie value such as "GA1.1.1234567890.1700000000".
func ParseClientID(value string) (string, bool) {
	m := clientIDPattern.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseSessionStart extracts the session-start timestamp from a
// _ga_<container> cookie value such as "GS1.1.1700000000.1.0.1700000000.0.0.0".
func ParseSessionStart(value string) (int64, bool) {
	m := sessionStartPattern.FindStringSubmatch(value)
	if m == nil {
		return 0, false
	}
	ts, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || ts <= 0 {
		return 0, false
	}
	return ts, true
}

// ContainerCookie returns the name of the session cookie for measurementID.
func ContainerCookie(measurementID string) string {
	return "_ga_" + strings.TrimPrefix(measurementID, "G-")
}

// SessionFromCookies reads a session from the analytics cookies. ok is false
// when no client identifier is present; a missing session cookie falls back
// to now.
func SessionFromCookies(cookies []Cookie, measurementID string, now time.Time) (job.Session, bool) {
	container := ContainerCookie(measurementID)
	var s job.Session
	for _, c := range cookies {
		switch c.Name {
		case "_ga":
			if id, ok := ParseClientID(c.Value); ok {
				s.ID = id
			}
		case container:
			if ts, ok := ParseSessionStart(c.Value); ok {
				s.StartedAt = ts
			}
		}
	}
	if s.StartedAt == 0 {
		s.StartedAt = now.Unix()
	}
	return s, s.ID != ""
}
