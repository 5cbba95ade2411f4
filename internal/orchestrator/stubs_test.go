package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/ga4sim/internal/job"
	"github.com/torosent/ga4sim/internal/measurement"
	"github.com/torosent/ga4sim/internal/usage"
)

// gauge tracks concurrent callers and the highest concurrency observed.
type gauge struct {
	inFlight atomic.Int64
	peak     atomic.Int64
}

func (g *gauge) enter() {
	cur := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if cur <= p || g.peak.CompareAndSwap(p, cur) {
			return
		}
	}
}

func (g *gauge) exit() { g.inFlight.Add(-1) }

type stubBootstrapper struct {
	gauge
	mu      sync.Mutex
	calls   int
	engaged []bool
	hold    time.Duration
	// fail decides the error for the nth call (1-based); nil means success.
	fail func(call int) error
}

func (s *stubBootstrapper) Bootstrap(ctx context.Context, params job.SessionParams, engage bool) (job.Session, error) {
	s.enter()
	defer s.exit()

	s.mu.Lock()
	s.calls++
	call := s.calls
	s.engaged = append(s.engaged, engage)
	s.mu.Unlock()

	if s.hold > 0 {
		time.Sleep(s.hold)
	}
	if s.fail != nil {
		if err := s.fail(call); err != nil {
			return job.Session{}, err
		}
	}
	return job.Session{
		ID:           fmt.Sprintf("%d.%d", 1000+call, 1700000000),
		StartedAt:    1700000000,
		PageTitle:    "Home",
		PageLocation: "https://example.com/",
	}, nil
}

func (s *stubBootstrapper) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type emitCall struct {
	session job.Session
	events  []measurement.Event
}

type stubEmitter struct {
	gauge
	mu       sync.Mutex
	calls    []emitCall
	hold     time.Duration
	messages []string
	fail     func(call int) error
	panicOn  int
}

func (s *stubEmitter) Emit(ctx context.Context, session job.Session, events []measurement.Event) (measurement.Report, error) {
	s.enter()
	defer s.exit()

	s.mu.Lock()
	s.calls = append(s.calls, emitCall{session: session, events: events})
	call := len(s.calls)
	s.mu.Unlock()

	if s.panicOn == call {
		panic("emitter exploded")
	}
	if s.hold > 0 {
		time.Sleep(s.hold)
	}
	report := measurement.Report{Messages: s.messages}
	if s.fail != nil {
		if err := s.fail(call); err != nil {
			return report, err
		}
	}
	report.Requests = 1
	report.Events = len(events)
	return report, nil
}

func (s *stubEmitter) Calls() []emitCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]emitCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// recordingSleep records requested delays without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) Sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func (r *recordingSleep) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.delays))
	copy(out, r.delays)
	return out
}

type stubQuota struct {
	calls int
	err   error
}

func (q *stubQuota) Reserve(_ context.Context, n, ceiling int, _ time.Time) (usage.Reservation, error) {
	q.calls++
	if q.err != nil {
		return usage.Reservation{}, q.err
	}
	return usage.Reservation{Used: n, Remaining: ceiling - n}, nil
}
