package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/ga4sim/internal/failure"
)

// Collector records phase and job metrics in a thread-safe manner.
type Collector struct {
	mu         sync.Mutex
	phases     map[string]*phaseStats
	succeeded  int64
	failed     int64
	events     int64
	errors     map[string]int64
	failures   map[string]map[string]int
	start      time.Time
	history    []DataPoint
	maxHistory int
}

type phaseStats struct {
	hist     *hdrhistogram.Histogram
	attempts int64
	failures int64
	sum      time.Duration
	min, max time.Duration
}

// PhaseStats summarizes the attempts of one phase.
type PhaseStats struct {
	Attempts      int64         `json:"attempts" yaml:"attempts"`
	Failures      int64         `json:"failures" yaml:"failures"`
	MinLatency    time.Duration `json:"-" yaml:"-"`
	MaxLatency    time.Duration `json:"-" yaml:"-"`
	MeanLatency   time.Duration `json:"-" yaml:"-"`
	P50Latency    time.Duration `json:"-" yaml:"-"`
	P90Latency    time.Duration `json:"-" yaml:"-"`
	P99Latency    time.Duration `json:"-" yaml:"-"`
	MinLatencyMs  float64       `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64       `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64       `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64       `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64       `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P99LatencyMs  float64       `json:"p99_latency_ms" yaml:"p99_latency_ms"`
}

// Stats represents aggregated metrics for a run.
type Stats struct {
	Jobs        int64                 `json:"jobs" yaml:"jobs"`
	Succeeded   int64                 `json:"succeeded" yaml:"succeeded"`
	Failed      int64                 `json:"failed" yaml:"failed"`
	EventsSent  int64                 `json:"events_sent" yaml:"events_sent"`
	Duration    time.Duration         `json:"-" yaml:"-"`
	DurationMs  float64               `json:"duration_ms" yaml:"duration_ms"`
	UsersPerSec float64               `json:"users_per_sec" yaml:"users_per_sec"`
	Phases      map[string]PhaseStats `json:"phases,omitempty" yaml:"phases,omitempty"`
	Errors      map[string]int        `json:"errors,omitempty" yaml:"errors,omitempty"`
	// Failures counts failed attempts by phase then failure kind.
	Failures map[string]map[string]int `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// DataPoint is one progress sample.
type DataPoint struct {
	Timestamp time.Time
	Completed int64
	Succeeded int64
	Failed    int64
	// P90 latency of each phase at sample time, in milliseconds.
	PhaseP90Ms map[string]float64
}

func NewCollector() *Collector {
	return &Collector{
		phases:     make(map[string]*phaseStats),
		errors:     make(map[string]int64),
		failures:   make(map[string]map[string]int),
		start:      time.Now(),
		maxHistory: 600,
	}
}

// Start resets the run clock.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
}

// RecordPhase records one attempt of phase with its latency and error state.
func (c *Collector) RecordPhase(phase string, latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ps := c.phases[phase]
	if ps == nil {
		// Track latencies from 1µs up to 10 minutes with 3 significant figures.
		ps = &phaseStats{hist: hdrhistogram.New(1, 600_000_000, 3)}
		c.phases[phase] = ps
	}

	if latency > 0 {
		us := latency.Microseconds()
		if us < ps.hist.LowestTrackableValue() {
			us = ps.hist.LowestTrackableValue()
		}
		if us > ps.hist.HighestTrackableValue() {
			us = ps.hist.HighestTrackableValue()
		}
		_ = ps.hist.RecordValue(us)
	}
	ps.attempts++
	ps.sum += latency
	if ps.min == 0 || latency < ps.min {
		ps.min = latency
	}
	if latency > ps.max {
		ps.max = latency
	}

	if err != nil {
		ps.failures++
		c.errors[ErrorLabel(err)]++
		kinds := c.failures[phase]
		if kinds == nil {
			kinds = make(map[string]int)
			c.failures[phase] = kinds
		}
		kinds[string(failure.KindOf(err))]++
	}
}

// RecordJob records a finished job and the events it sent.
func (c *Collector) RecordJob(succeeded bool, events int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if succeeded {
		c.succeeded++
	} else {
		c.failed++
	}
	c.events += int64(events)
}

// Snapshot appends the current progress to the history.
func (c *Collector) Snapshot() {
	c.mu.Lock()
	defer c.mu.Unlock()

	dp := DataPoint{
		Timestamp:  time.Now(),
		Completed:  c.succeeded + c.failed,
		Succeeded:  c.succeeded,
		Failed:     c.failed,
		PhaseP90Ms: make(map[string]float64, len(c.phases)),
	}
	for name, ps := range c.phases {
		if ps.hist.TotalCount() > 0 {
			dp.PhaseP90Ms[name] = float64(ps.hist.ValueAtQuantile(90)) / 1000
		}
	}
	c.history = append(c.history, dp)
	if len(c.history) > c.maxHistory {
		c.history = c.history[len(c.history)-c.maxHistory:]
	}
}

// History returns a copy of the progress samples.
func (c *Collector) History() []DataPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DataPoint, len(c.history))
	copy(out, c.history)
	return out
}

// Elapsed returns the time since Start.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.succeeded + c.failed
	stats := Stats{
		Jobs:       total,
		Succeeded:  c.succeeded,
		Failed:     c.failed,
		EventsSent: c.events,
		Duration:   elapsed,
		DurationMs: float64(elapsed) / float64(time.Millisecond),
	}
	if elapsed > 0 && c.succeeded > 0 {
		stats.UsersPerSec = float64(c.succeeded) / elapsed.Seconds()
	}

	if len(c.phases) > 0 {
		stats.Phases = make(map[string]PhaseStats, len(c.phases))
		for name, ps := range c.phases {
			stats.Phases[name] = ps.summary()
		}
	}
	if len(c.errors) > 0 {
		stats.Errors = make(map[string]int, len(c.errors))
		for k, v := range c.errors {
			stats.Errors[k] = int(v)
		}
	}
	if len(c.failures) > 0 {
		stats.Failures = make(map[string]map[string]int, len(c.failures))
		for phase, kinds := range c.failures {
			cp := make(map[string]int, len(kinds))
			for k, v := range kinds {
				cp[k] = v
			}
			stats.Failures[phase] = cp
		}
	}
	return stats
}

// PhaseNames returns the recorded phase names in sorted order.
func (s Stats) PhaseNames() []string {
	names := make([]string, 0, len(s.Phases))
	for name := range s.Phases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (ps *phaseStats) summary() PhaseStats {
	out := PhaseStats{
		Attempts:   ps.attempts,
		Failures:   ps.failures,
		MinLatency: ps.min,
		MaxLatency: ps.max,
	}
	if ps.attempts > 0 {
		out.MeanLatency = time.Duration(int64(ps.sum) / ps.attempts)
	}
	if ps.hist.TotalCount() > 0 {
		out.P50Latency = time.Duration(ps.hist.ValueAtQuantile(50)) * time.Microsecond
		out.P90Latency = time.Duration(ps.hist.ValueAtQuantile(90)) * time.Microsecond
		out.P99Latency = time.Duration(ps.hist.ValueAtQuantile(99)) * time.Microsecond
	}
	out.MinLatencyMs = ms(out.MinLatency)
	out.MaxLatencyMs = ms(out.MaxLatency)
	out.MeanLatencyMs = ms(out.MeanLatency)
	out.P50LatencyMs = ms(out.P50Latency)
	out.P90LatencyMs = ms(out.P90Latency)
	out.P99LatencyMs = ms(out.P99Latency)
	return out
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
