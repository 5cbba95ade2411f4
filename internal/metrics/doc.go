// Package metrics collects run statistics for a simulation.
//
// The [Collector] aggregates per-phase latency percentiles (bootstrap and
// emit attempts), job outcomes and an error breakdown. It is safe for
// concurrent use by every job of a batch:
//
//	collector := metrics.NewCollector()
//	collector.RecordPhase("bootstrap", latency, err)
//	collector.RecordJob(true, 4)
//	stats := collector.Stats(elapsed)
//
// [Collector.Snapshot] appends a point to the progress history used by the
// live dashboard.
package metrics
