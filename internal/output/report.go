package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/torosent/ga4sim/internal/clientmetrics"
	"github.com/torosent/ga4sim/internal/metrics"
	"github.com/torosent/ga4sim/internal/orchestrator"
	"github.com/torosent/ga4sim/internal/pool"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Report is everything printed at the end of a run.
type Report struct {
	Tally     orchestrator.Tally      `json:"tally" yaml:"tally"`
	Metrics   metrics.Stats           `json:"metrics" yaml:"metrics"`
	Transport *clientmetrics.Snapshot `json:"transport,omitempty" yaml:"transport,omitempty"`
	Usage     *DailyUsage             `json:"usage,omitempty" yaml:"usage,omitempty"`
}

// DailyUsage is the usage ledger state after the run.
type DailyUsage struct {
	File    string `json:"file" yaml:"file"`
	Date    string `json:"date" yaml:"date"`
	Used    int    `json:"used" yaml:"used"`
	Ceiling int    `json:"ceiling" yaml:"ceiling"`
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	t := r.Tally
	fmt.Fprintln(w, "\n--- Simulation Results ---")
	fmt.Fprintf(w, "Mode:              %s", t.Mode)
	if t.Debug {
		fmt.Fprint(w, " (debug)")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Users:             %d\n", t.Total())
	fmt.Fprintf(w, "Succeeded:         %d\n", t.Succeeded)
	fmt.Fprintf(w, "Failed:            %d\n", t.Failed)
	fmt.Fprintf(w, "Events sent:       %d\n", t.EventsSent)
	fmt.Fprintf(w, "Duration:          %s\n", t.Duration)
	fmt.Fprintf(w, "Users/sec:         %.2f\n", t.UsersPerSecond())
	fmt.Fprintf(w, "Batches:           %d\n", t.Batches)
	if len(t.Limits) > 0 {
		fmt.Fprintln(w, "\nPools:")
		for _, name := range []pool.Name{pool.Heavy, pool.Light} {
			fmt.Fprintf(w, "  %-6s limit=%d peak=%d\n", name, t.Limits[name], t.HighWater[name])
		}
	}

	if names := r.Metrics.PhaseNames(); len(names) > 0 {
		fmt.Fprintln(w, "\nPhase Latency:")
		for _, name := range names {
			ps := r.Metrics.Phases[name]
			fmt.Fprintf(
				w,
				"  - %s: attempts=%d, failures=%d, mean=%s, p50=%s, p90=%s, p99=%s\n",
				name,
				ps.Attempts,
				ps.Failures,
				ps.MeanLatency,
				ps.P50Latency,
				ps.P90Latency,
				ps.P99Latency,
			)
		}
	}

	if len(r.Metrics.Failures) > 0 {
		fmt.Fprintln(w, "\nFailed Attempts:")
		writeFailureBuckets(w, r.Metrics.Failures, "  ")
	}

	if len(r.Metrics.Errors) > 0 {
		fmt.Fprintln(w, "\nError Types:")
		types := make([]string, 0, len(r.Metrics.Errors))
		for name := range r.Metrics.Errors {
			types = append(types, name)
		}
		sort.Strings(types)
		for _, name := range types {
			fmt.Fprintf(w, "  %s: %d\n", name, r.Metrics.Errors[name])
		}
	}

	if r.Transport != nil && r.Transport.Requests > 0 {
		tr := r.Transport
		fmt.Fprintln(w, "\nMeasurement Protocol:")
		fmt.Fprintf(w, "  Requests:        %d\n", tr.Requests)
		fmt.Fprintf(w, "  Events:          %d\n", tr.Events)
		fmt.Fprintf(w, "  Bytes sent:      %d\n", tr.BytesSent)
		fmt.Fprintf(w, "  Bytes received:  %d\n", tr.BytesReceived)
		if len(tr.StatusCodes) > 0 {
			codes := make([]int, 0, len(tr.StatusCodes))
			for code := range tr.StatusCodes {
				codes = append(codes, code)
			}
			sort.Ints(codes)
			parts := make([]string, 0, len(codes))
			for _, code := range codes {
				parts = append(parts, fmt.Sprintf("%d=%d", code, tr.StatusCodes[code]))
			}
			fmt.Fprintf(w, "  Status codes:    %s\n", strings.Join(parts, " "))
		}
	}

	if u := r.Usage; u != nil {
		fmt.Fprintln(w, "\nDaily Usage:")
		fmt.Fprintf(w, "  %s: %d/%d users (%s)\n", u.Date, u.Used, u.Ceiling, u.File)
	}

	if failed := t.FailedEntries(); len(failed) > 0 {
		fmt.Fprintln(w, "\nFailed Jobs:")
		for _, e := range failed {
			writeFailedEntry(w, e)
		}
	}

	if t.Debug {
		writeValidationReports(w, t.Entries)
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

func writeFailureBuckets(w io.Writer, buckets map[string]map[string]int, indent string) {
	rows := metrics.FlattenFailureBuckets(buckets)
	if len(rows) == 0 {
		fmt.Fprintf(w, "%sNone\n", indent)
		return
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%s%s %s: %d\n", indent, strings.ToUpper(row.Phase), row.Kind, row.Count)
	}
}

func writeFailedEntry(w io.Writer, e orchestrator.Entry) {
	if e.LastError == nil {
		fmt.Fprintf(w, "  - %s: failed (bootstrap=%d, emit=%d)\n", e.JobID, e.Attempts.Bootstrap, e.Attempts.Emit)
		return
	}
	fmt.Fprintf(
		w,
		"  - %s: %s %s/%s after bootstrap=%d emit=%d: %s\n",
		e.JobID,
		e.LastError.Phase,
		e.LastError.Class,
		e.LastError.Kind,
		e.Attempts.Bootstrap,
		e.Attempts.Emit,
		e.LastError.Message,
	)
}

func writeValidationReports(w io.Writer, entries []orchestrator.Entry) {
	header := false
	for _, e := range entries {
		if len(e.Report) == 0 {
			continue
		}
		if !header {
			fmt.Fprintln(w, "\nValidation Messages:")
			header = true
		}
		fmt.Fprintf(w, "  %s:\n", e.JobID)
		for _, msg := range e.Report {
			fmt.Fprintf(w, "    %s\n", msg)
		}
	}
	if !header {
		fmt.Fprintln(w, "\nValidation Messages: none")
	}
}
