package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/ga4sim/internal/metrics"
)

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	collector *metrics.Collector
	total     int
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	start     time.Time
}

// NewProgressReporter creates a progress reporter for a run of total users
// that updates at the given interval.
func NewProgressReporter(collector *metrics.Collector, total int, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		total:     total,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		start:     time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates after printing a final line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		p.print()
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			p.print()
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) print() {
	fmt.Fprint(p.writer, progressLine(p.collector.Stats(time.Since(p.start)), p.total))
}

func progressLine(stats metrics.Stats, total int) string {
	pct := int64(0)
	if total > 0 {
		pct = stats.Jobs * 100 / int64(total)
	}
	return fmt.Sprintf("\rProgress: %d/%d users (%d%%) | Succeeded: %d | Failed: %d | Events: %d | Users/s: %.2f",
		stats.Jobs, total, pct, stats.Succeeded, stats.Failed, stats.EventsSent, stats.UsersPerSec)
}
