// Package pool provides named concurrency ceilings for simulation jobs.
package pool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Name identifies an independent concurrency pool.
type Name string

const (
	// Heavy holds jobs that need the interactive bootstrap phase.
	Heavy Name = "heavy"
	// Light holds jobs that only submit events.
	Light Name = "light"
)

// Limiter is a counting semaphore for one named pool. It records the
// highest number of concurrently held slots and supports narrowing the
// effective ceiling between batches.
type Limiter struct {
	name     Name
	slots    chan struct{}
	limit    atomic.Int64
	pinned   bool
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewLimiter creates a limiter with the given ceiling. A pinned limiter
// ignores Narrow; use it when the ceiling was set explicitly by the operator.
func NewLimiter(name Name, size int, pinned bool) *Limiter {
	if size <= 0 {
		size = 1
	}
	l := &Limiter{
		name:   name,
		slots:  make(chan struct{}, size),
		pinned: pinned,
	}
	l.limit.Store(int64(size))
	return l
}

// Name returns the pool name.
func (l *Limiter) Name() Name { return l.name }

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	current := l.inFlight.Add(1)
	for {
		peak := l.peak.Load()
		if current <= peak || l.peak.CompareAndSwap(peak, current) {
			return nil
		}
	}
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	l.inFlight.Add(-1)
	<-l.slots
}

// Limit returns the effective ceiling used to size the next batch.
func (l *Limiter) Limit() int {
	return int(l.limit.Load())
}

// Narrow halves the effective ceiling (never below 1) and reports the new value.
// Pinned limiters are left unchanged.
func (l *Limiter) Narrow() int {
	if l.pinned {
		return l.Limit()
	}
	for {
		cur := l.limit.Load()
		next := cur / 2
		if next < 1 {
			next = 1
		}
		if next == cur || l.limit.CompareAndSwap(cur, next) {
			return int(next)
		}
	}
}

// InFlight returns the number of currently held slots.
func (l *Limiter) InFlight() int { return int(l.inFlight.Load()) }

// HighWater returns the highest number of slots ever held at once.
func (l *Limiter) HighWater() int { return int(l.peak.Load()) }

// Set is a registry of limiters keyed by pool name, scoped to a single run.
type Set struct {
	limiters sync.Map // map[Name]*Limiter
}

// NewSet creates an empty registry.
func NewSet() *Set {
	return &Set{}
}

// Get returns the limiter for name, creating it with factory on first use.
func (s *Set) Get(name Name, factory func() *Limiter) *Limiter {
	if existing, ok := s.limiters.Load(name); ok {
		return existing.(*Limiter)
	}
	actual, _ := s.limiters.LoadOrStore(name, factory())
	return actual.(*Limiter)
}

// HighWater returns the high-water mark of every registered pool.
func (s *Set) HighWater() map[Name]int {
	out := make(map[Name]int)
	s.limiters.Range(func(key, value interface{}) bool {
		out[key.(Name)] = value.(*Limiter).HighWater()
		return true
	})
	return out
}

// Describe renders a deterministic "name=limit" summary of the registry.
func (s *Set) Describe() string {
	var parts []string
	s.limiters.Range(func(key, value interface{}) bool {
		parts = append(parts, fmt.Sprintf("%s=%d", key, value.(*Limiter).Limit()))
		return true
	})
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
