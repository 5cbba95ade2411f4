package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/torosent/ga4sim/internal/job"
	"github.com/torosent/ga4sim/internal/pool"
)

// Entry is the recorded outcome of one job.
type Entry struct {
	JobID      string         `json:"job_id" yaml:"job_id"`
	Mode       string         `json:"mode" yaml:"mode"`
	Status     job.Status     `json:"status" yaml:"status"`
	SessionID  string         `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Attempts   job.Attempts   `json:"attempts" yaml:"attempts"`
	LastError  *job.ErrorInfo `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	EventsSent int            `json:"events_sent" yaml:"events_sent"`
	Report     []string       `json:"report,omitempty" yaml:"report,omitempty"`
	Duration   time.Duration  `json:"-" yaml:"-"`
	DurationMs float64        `json:"duration_ms" yaml:"duration_ms"`
}

// Tally is the final per-run outcome report. Its entry count always equals
// the number of jobs submitted.
type Tally struct {
	Mode       string            `json:"mode" yaml:"mode"`
	Debug      bool              `json:"debug" yaml:"debug"`
	Succeeded  int               `json:"succeeded" yaml:"succeeded"`
	Failed     int               `json:"failed" yaml:"failed"`
	EventsSent int               `json:"events_sent" yaml:"events_sent"`
	Entries    []Entry           `json:"entries" yaml:"entries"`
	Limits     map[pool.Name]int `json:"limits" yaml:"limits"`
	HighWater  map[pool.Name]int `json:"high_water" yaml:"high_water"`
	Batches    int               `json:"batches" yaml:"batches"`
	Duration   time.Duration     `json:"-" yaml:"-"`
	DurationMs float64           `json:"duration_ms" yaml:"duration_ms"`
}

// Total returns the number of recorded jobs.
func (t Tally) Total() int { return len(t.Entries) }

// UsersPerSecond is the rate of successfully simulated users.
func (t Tally) UsersPerSecond() float64 {
	if t.Duration <= 0 {
		return 0
	}
	return float64(t.Succeeded) / t.Duration.Seconds()
}

// FailedEntries returns the entries of failed jobs.
func (t Tally) FailedEntries() []Entry {
	var out []Entry
	for _, e := range t.Entries {
		if e.Status == job.StatusFailed {
			out = append(out, e)
		}
	}
	return out
}

// accumulator is the append-only, concurrency-safe tally under construction.
type accumulator struct {
	mu      sync.Mutex
	entries []indexedEntry
}

type indexedEntry struct {
	index int
	entry Entry
}

func (a *accumulator) add(index int, e Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, indexedEntry{index: index, entry: e})
}

// tally orders entries by job creation order and computes the counts.
func (a *accumulator) tally() Tally {
	a.mu.Lock()
	defer a.mu.Unlock()

	sorted := make([]indexedEntry, len(a.entries))
	copy(sorted, a.entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].index < sorted[j].index })

	t := Tally{Entries: make([]Entry, 0, len(sorted))}
	for _, ie := range sorted {
		switch ie.entry.Status {
		case job.StatusSucceeded:
			t.Succeeded++
		default:
			t.Failed++
		}
		t.EventsSent += ie.entry.EventsSent
		t.Entries = append(t.Entries, ie.entry)
	}
	return t
}

func entryFor(j *job.Job, d time.Duration) Entry {
	e := Entry{
		JobID:      j.ID,
		Mode:       j.Mode.String(),
		Status:     j.Status,
		Attempts:   j.Attempts,
		LastError:  j.LastError,
		EventsSent: j.EventsSent,
		Report:     j.Report,
		Duration:   d,
		DurationMs: float64(d) / float64(time.Millisecond),
	}
	if j.Session != nil {
		e.SessionID = j.Session.ID
	}
	return e
}
