package dashboard

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/ga4sim/internal/failure"
	"github.com/torosent/ga4sim/internal/metrics"
)

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		name  string
		done  int64
		total int
		want  int
	}{
		{"zero total", 5, 0, 0},
		{"half", 5, 10, 50},
		{"complete", 10, 10, 100},
		{"clamped", 12, 10, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := progressPercent(tt.done, tt.total); got != tt.want {
				t.Errorf("progressPercent(%d, %d) = %d, want %d", tt.done, tt.total, got, tt.want)
			}
		})
	}
}

func TestPhaseSeries(t *testing.T) {
	history := []metrics.DataPoint{
		{PhaseP90Ms: map[string]float64{"emit": 10}},
		{PhaseP90Ms: map[string]float64{"emit": 20, "bootstrap": 900}},
		{PhaseP90Ms: map[string]float64{"emit": 30, "bootstrap": 1100}},
	}

	if got := phaseSeries(history, "emit", 0); len(got) != 3 || got[2] != 30 {
		t.Errorf("emit series = %v", got)
	}
	if got := phaseSeries(history, "bootstrap", 0); len(got) != 2 || got[0] != 900 {
		t.Errorf("bootstrap series = %v", got)
	}
	if got := phaseSeries(history, "emit", 2); len(got) != 2 || got[0] != 20 {
		t.Errorf("limited series = %v", got)
	}
}

func TestFormatFailureRows(t *testing.T) {
	rows := formatFailureRows(nil)
	if len(rows) != 1 || !strings.Contains(rows[0], "No failures") {
		t.Errorf("empty rows = %v", rows)
	}

	rows = formatFailureRows(map[string]map[string]int{
		"bootstrap": {"transient_network": 4},
		"emit":      {"fatal_config": 1},
	})
	if len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	if !strings.Contains(rows[0], "BOOTSTRAP transient_network") || !strings.HasSuffix(rows[0], " 4") {
		t.Errorf("first row = %q", rows[0])
	}
}

func TestFormatErrorRows(t *testing.T) {
	rows := formatErrorRows(map[string]int{"Network error": 2, "Error": 2, "Job panic": 5})
	want := []string{"Job panic x5", "Error x2", "Network error x2"}
	if strings.Join(rows, ",") != strings.Join(want, ",") {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func TestFormatPhaseText(t *testing.T) {
	if got := formatPhaseText(metrics.Stats{}); !strings.Contains(got, "No attempts") {
		t.Errorf("empty text = %q", got)
	}

	collector := metrics.NewCollector()
	collector.Start()
	collector.RecordPhase("bootstrap", 800*time.Millisecond, nil)
	collector.RecordPhase("bootstrap", time.Second, failure.TransientNetwork("bootstrap", errors.New("reset")))
	collector.RecordPhase("emit", 40*time.Millisecond, nil)

	text := formatPhaseText(collector.Stats(time.Second))
	if !strings.Contains(text, "bootstrap:") || !strings.Contains(text, "attempts 2, failures 1") {
		t.Errorf("text = %q", text)
	}
	if !strings.Contains(text, "emit:") {
		t.Errorf("text missing emit: %q", text)
	}
}

func TestFormatRunParams(t *testing.T) {
	got := formatRunParams(RunInfo{
		Mode:       "hybrid",
		Debug:      true,
		Users:      25,
		HeavyLimit: 5,
		LightLimit: 20,
		ConfigFile: "ga4sim.yaml",
	})
	for _, want := range []string{"Mode: hybrid (debug)", "Users: 25", "Heavy: 5", "Light: 20", "Rate: unlimited", "Config: ga4sim.yaml"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatRunParams() = %q, missing %q", got, want)
		}
	}

	got = formatRunParams(RunInfo{Mode: "mp", EventsRate: 2.5})
	if !strings.Contains(got, "Rate: 2.5/s") {
		t.Errorf("formatRunParams() = %q", got)
	}
}

func TestUpdateWithoutTerminal(t *testing.T) {
	collector := metrics.NewCollector()
	collector.Start()
	collector.RecordPhase("emit", 20*time.Millisecond, nil)
	collector.RecordJob(true, 6)
	collector.Snapshot()

	d := &Dashboard{
		collector: collector,
		startTime: time.Now(),
		info:      RunInfo{Target: "https://example.com", Mode: "mp", Users: 2},
	}
	d.initWidgets()
	d.update()

	if d.progressGauge.Percent != 50 {
		t.Errorf("Percent = %d, want 50", d.progressGauge.Percent)
	}
	if !strings.Contains(d.outcomePara.Text, "Events Sent:   6") {
		t.Errorf("outcomes = %q", d.outcomePara.Text)
	}
	if !strings.Contains(d.summaryPara.Text, "https://example.com") {
		t.Errorf("summary = %q", d.summaryPara.Text)
	}
	var emit *widgets.Sparkline
	for _, s := range d.latencyGroup.Sparklines {
		if s.Title == "emit" {
			emit = s
		}
	}
	if emit == nil || len(emit.Data) != 1 {
		t.Fatalf("emit sparkline = %+v", emit)
	}
}
