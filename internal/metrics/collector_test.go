package metrics_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/torosent/ga4sim/internal/failure"
	"github.com/torosent/ga4sim/internal/metrics"
)

func TestCollectorPhaseLatencyStats(t *testing.T) {
	c := metrics.NewCollector()

	for _, ms := range []int{10, 20, 30, 40, 50} {
		c.RecordPhase("emit", time.Duration(ms)*time.Millisecond, nil)
	}

	stats := c.Stats(0)
	emit, ok := stats.Phases["emit"]
	if !ok {
		t.Fatalf("expected emit phase, got %v", stats.PhaseNames())
	}
	if emit.Attempts != 5 || emit.Failures != 0 {
		t.Errorf("attempts/failures = %d/%d", emit.Attempts, emit.Failures)
	}
	if emit.MinLatency != 10*time.Millisecond {
		t.Errorf("expected min 10ms, got %s", emit.MinLatency)
	}
	if emit.MaxLatency != 50*time.Millisecond {
		t.Errorf("expected max 50ms, got %s", emit.MaxLatency)
	}
	if emit.MeanLatency != 30*time.Millisecond {
		t.Errorf("expected mean 30ms, got %s", emit.MeanLatency)
	}
}

func TestPercentilesCalculations(t *testing.T) {
	c := metrics.NewCollector()

	// 100 samples: 1ms, 2ms, ..., 100ms.
	for i := 1; i <= 100; i++ {
		c.RecordPhase("bootstrap", time.Duration(i)*time.Millisecond, nil)
	}

	p := c.Stats(0).Phases["bootstrap"]
	if p.P50Latency < 49*time.Millisecond || p.P50Latency > 51*time.Millisecond {
		t.Errorf("expected P50 ~50ms, got %s", p.P50Latency)
	}
	if p.P90Latency < 89*time.Millisecond || p.P90Latency > 91*time.Millisecond {
		t.Errorf("expected P90 ~90ms, got %s", p.P90Latency)
	}
	if p.P99Latency < 98*time.Millisecond || p.P99Latency > 100*time.Millisecond {
		t.Errorf("expected P99 ~99ms, got %s", p.P99Latency)
	}
}

func TestFailuresByKind(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordPhase("emit", time.Millisecond, failure.TransientNetwork("emit", errors.New("reset")))
	c.RecordPhase("emit", time.Millisecond, failure.TransientNetwork("emit", errors.New("reset")))
	c.RecordPhase("bootstrap", time.Millisecond, failure.ResourceExhausted("bootstrap", errors.New("launch")))

	stats := c.Stats(0)
	if got := stats.Failures["emit"]["transient_network"]; got != 2 {
		t.Errorf("emit transient failures = %d, want 2", got)
	}
	if got := stats.Failures["bootstrap"]["resource_exhausted"]; got != 1 {
		t.Errorf("bootstrap resource failures = %d, want 1", got)
	}
	if got := stats.Errors["Transient network error"]; got != 2 {
		t.Errorf("error breakdown = %v", stats.Errors)
	}
	if got := stats.Errors["Browser resources exhausted"]; got != 1 {
		t.Errorf("error breakdown = %v", stats.Errors)
	}
}

func TestJobsAndThroughput(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordJob(true, 4)
	c.RecordJob(true, 6)
	c.RecordJob(false, 0)

	stats := c.Stats(2 * time.Second)
	if stats.Jobs != 3 || stats.Succeeded != 2 || stats.Failed != 1 {
		t.Fatalf("jobs = %+v", stats)
	}
	if stats.EventsSent != 10 {
		t.Errorf("events = %d, want 10", stats.EventsSent)
	}
	if stats.UsersPerSec != 1 {
		t.Errorf("users/sec = %f, want 1", stats.UsersPerSec)
	}
}

func TestJSONReportSchema(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordPhase("emit", 15*time.Millisecond, nil)
	c.RecordJob(true, 1)

	data, err := json.Marshal(c.Stats(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("failed to marshal stats: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	for _, field := range []string{"jobs", "succeeded", "failed", "events_sent", "duration_ms", "users_per_sec", "phases"} {
		if _, ok := parsed[field]; !ok {
			t.Errorf("missing field %q in JSON output", field)
		}
	}
}

func TestSnapshotHistory(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordPhase("emit", 5*time.Millisecond, nil)
	c.RecordJob(true, 1)
	c.Snapshot()
	c.RecordJob(false, 0)
	c.Snapshot()

	h := c.History()
	if len(h) != 2 {
		t.Fatalf("history = %d points", len(h))
	}
	if h[1].Completed != 2 || h[1].Failed != 1 {
		t.Errorf("last point = %+v", h[1])
	}
	if h[0].PhaseP90Ms["emit"] <= 0 {
		t.Errorf("expected emit p90 in snapshot, got %v", h[0].PhaseP90Ms)
	}
}

func TestConcurrentRecording(t *testing.T) {
	c := metrics.NewCollector()

	var wg sync.WaitGroup
	workers := 10
	recordsPerWorker := 100

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerWorker; j++ {
				c.RecordPhase("emit", time.Millisecond, nil)
				c.RecordJob(true, 1)
			}
		}()
	}
	wg.Wait()

	stats := c.Stats(0)
	expected := int64(workers * recordsPerWorker)
	if stats.Jobs != expected {
		t.Errorf("expected jobs %d, got %d", expected, stats.Jobs)
	}
	if stats.Phases["emit"].Attempts != expected {
		t.Errorf("expected attempts %d, got %d", expected, stats.Phases["emit"].Attempts)
	}
}
