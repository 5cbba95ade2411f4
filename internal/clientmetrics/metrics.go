// Package clientmetrics counts traffic on the event submission transport.
package clientmetrics

import (
	"sync"
	"time"
)

// ClientMetrics tracks request and event statistics for the emitter client.
type ClientMetrics struct {
	mu           sync.Mutex
	firstRequest time.Time
	requests     int64
	events       int64
	bytesSent    int64
	bytesRecv    int64
	errors       int64
	statusCodes  map[int]int64
}

// New creates a new ClientMetrics instance.
func New() *ClientMetrics {
	return &ClientMetrics{statusCodes: make(map[int]int64)}
}

// RecordRequest notes one submitted request carrying events and bytes.
func (m *ClientMetrics) RecordRequest(events int, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.firstRequest.IsZero() {
		m.firstRequest = time.Now()
	}
	m.requests++
	m.events += int64(events)
	m.bytesSent += bytes
}

// RecordResponse notes a response status and its body size.
func (m *ClientMetrics) RecordResponse(status int, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCodes[status]++
	m.bytesRecv += bytes
}

// IncrementErrors increments the error counter.
func (m *ClientMetrics) IncrementErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Elapsed       time.Duration `json:"-" yaml:"-"`
	Requests      int64         `json:"requests" yaml:"requests"`
	Events        int64         `json:"events" yaml:"events"`
	BytesSent     int64         `json:"bytes_sent" yaml:"bytes_sent"`
	BytesReceived int64         `json:"bytes_received" yaml:"bytes_received"`
	Errors        int64         `json:"errors" yaml:"errors"`
	StatusCodes   map[int]int64 `json:"status_codes,omitempty" yaml:"status_codes,omitempty"`
}

// Snapshot returns a consistent snapshot of all metrics.
func (m *ClientMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := time.Duration(0)
	if !m.firstRequest.IsZero() {
		elapsed = time.Since(m.firstRequest)
	}
	codes := make(map[int]int64, len(m.statusCodes))
	for k, v := range m.statusCodes {
		codes[k] = v
	}

	return Snapshot{
		Elapsed:       elapsed,
		Requests:      m.requests,
		Events:        m.events,
		BytesSent:     m.bytesSent,
		BytesReceived: m.bytesRecv,
		Errors:        m.errors,
		StatusCodes:   codes,
	}
}
