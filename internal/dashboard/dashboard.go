package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/ga4sim/internal/metrics"
)

// RunInfo holds the run parameters shown in the summary panel.
type RunInfo struct {
	Target     string
	Mode       string
	Users      int
	Debug      bool
	HeavyLimit int
	LightLimit int
	EventsRate float64
	ConfigFile string
}

var phaseColors = map[string]ui.Color{
	"bootstrap": ui.ColorMagenta,
	"emit":      ui.ColorGreen,
}

// Dashboard renders a live terminal UI for simulation progress.
type Dashboard struct {
	collector    *metrics.Collector
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid          *ui.Grid
	latencyGroup  *widgets.SparklineGroup
	phasePara     *widgets.Paragraph
	progressGauge *widgets.Gauge
	failureList   *widgets.List
	errorList     *widgets.List
	summaryPara   *widgets.Paragraph
	outcomePara   *widgets.Paragraph
	startTime     time.Time
	runDuration   time.Duration
	info          RunInfo
}

// New creates a new Dashboard.
func New(collector *metrics.Collector, info RunInfo, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		collector:    collector,
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		startTime:    time.Now(),
		info:         info,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	d.latencyGroup = widgets.NewSparklineGroup(newPhaseSparkline("bootstrap"), newPhaseSparkline("emit"))
	d.latencyGroup.Title = "Phase Latency P90 (ms)"
	d.latencyGroup.BorderStyle.Fg = ui.ColorCyan

	d.phasePara = widgets.NewParagraph()
	d.phasePara.Title = "Phases"
	d.phasePara.Text = "Waiting for attempts..."
	d.phasePara.BorderStyle.Fg = ui.ColorCyan

	d.progressGauge = widgets.NewGauge()
	d.progressGauge.Title = "Users Completed"
	d.progressGauge.Percent = 0
	d.progressGauge.BarColor = ui.ColorBlue
	d.progressGauge.BorderStyle.Fg = ui.ColorCyan
	d.progressGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.failureList = widgets.NewList()
	d.failureList.Title = "Failed Attempts"
	d.failureList.Rows = []string{"No failures"}
	d.failureList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.failureList.BorderStyle.Fg = ui.ColorCyan

	d.errorList = widgets.NewList()
	d.errorList.Title = "Error Types"
	d.errorList.Rows = []string{"Awaiting data"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.errorList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Simulation"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.outcomePara = widgets.NewParagraph()
	d.outcomePara.Title = "Outcomes"
	d.outcomePara.Text = "Waiting for data..."
	d.outcomePara.BorderStyle.Fg = ui.ColorCyan
}

func newPhaseSparkline(phase string) *widgets.Sparkline {
	s := widgets.NewSparkline()
	s.Title = phase
	s.LineColor = phaseColors[phase]
	s.Data = []float64{0}
	return s
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.20,
			ui.NewCol(0.5, d.progressGauge),
			ui.NewCol(0.5, d.outcomePara),
		),
		ui.NewRow(0.36,
			ui.NewCol(0.6, d.latencyGroup),
			ui.NewCol(0.4, d.phasePara),
		),
		ui.NewRow(0.30,
			ui.NewCol(0.5, d.failureList),
			ui.NewCol(0.5, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and cleans up.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	d.runDuration = time.Since(d.startTime)
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// GetFinalStats returns the final statistics after the dashboard has stopped.
func (d *Dashboard) GetFinalStats() metrics.Stats {
	return d.collector.Stats(d.runDuration)
}

// run is the main dashboard update loop.
func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			// Drain any remaining events
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop() cancels the context once the run has drained.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.collector.Snapshot()
			d.update()
			d.render()
		}
	}
}

// update refreshes all widget data from the collector.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	stats := d.collector.Stats(elapsed)
	history := d.collector.History()

	for _, s := range d.latencyGroup.Sparklines {
		if series := phaseSeries(history, s.Title, 100); len(series) > 0 {
			s.Data = series
		}
	}

	pct := progressPercent(stats.Jobs, d.info.Users)
	d.progressGauge.Percent = pct
	d.progressGauge.Label = fmt.Sprintf("%d / %d users (%d%%)", stats.Jobs, d.info.Users, pct)

	d.summaryPara.Text = fmt.Sprintf(
		"Target: %s\n%s\nElapsed: %s",
		d.info.Target,
		formatRunParams(d.info),
		elapsed.Round(time.Second),
	)

	successRate := 0.0
	if stats.Jobs > 0 {
		successRate = float64(stats.Succeeded) / float64(stats.Jobs) * 100
	}
	d.outcomePara.Text = fmt.Sprintf(
		"Succeeded:     %d\nFailed:        %d\nSuccess Rate:  %.1f%%\nEvents Sent:   %d\nUsers/sec:     %.2f",
		stats.Succeeded,
		stats.Failed,
		successRate,
		stats.EventsSent,
		stats.UsersPerSec,
	)

	d.phasePara.Text = formatPhaseText(stats)
	d.failureList.Rows = formatFailureRows(stats.Failures)
	d.errorList.Rows = formatErrorRows(stats.Errors)
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func progressPercent(done int64, total int) int {
	if total <= 0 {
		return 0
	}
	pct := int(done * 100 / int64(total))
	if pct > 100 {
		pct = 100
	}
	return pct
}

// phaseSeries extracts the last limit P90 samples of phase from history.
func phaseSeries(history []metrics.DataPoint, phase string, limit int) []float64 {
	series := make([]float64, 0, len(history))
	for _, dp := range history {
		if v, ok := dp.PhaseP90Ms[phase]; ok {
			series = append(series, v)
		}
	}
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	return series
}

func formatPhaseText(stats metrics.Stats) string {
	names := stats.PhaseNames()
	if len(names) == 0 {
		return "[No attempts yet](fg:green)"
	}
	lines := make([]string, 0, len(names)*2)
	for _, name := range names {
		ps := stats.Phases[name]
		lines = append(lines,
			fmt.Sprintf("[%s:](fg:cyan,mod:bold) attempts %d, failures %d", name, ps.Attempts, ps.Failures),
			fmt.Sprintf("  P50/P90/P99: %.0f / %.0f / %.0f ms", ps.P50LatencyMs, ps.P90LatencyMs, ps.P99LatencyMs),
		)
	}
	return strings.Join(lines, "\n")
}

func formatFailureRows(buckets map[string]map[string]int) []string {
	rows := metrics.FlattenFailureBuckets(buckets)
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	maxRows := len(rows)
	if maxRows > 10 {
		maxRows = 10
	}
	formatted := make([]string, 0, maxRows)
	for i := 0; i < maxRows; i++ {
		row := rows[i]
		formatted = append(formatted, fmt.Sprintf("[%s %s](fg:red) %d", strings.ToUpper(row.Phase), row.Kind, row.Count))
	}
	return formatted
}

func formatErrorRows(errs map[string]int) []string {
	if len(errs) == 0 {
		return []string{"[No errors](fg:green)"}
	}
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if errs[names[i]] == errs[names[j]] {
			return names[i] < names[j]
		}
		return errs[names[i]] > errs[names[j]]
	})
	rows := make([]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, fmt.Sprintf("%s x%d", name, errs[name]))
	}
	return rows
}

// formatRunParams formats the run parameters for display.
func formatRunParams(info RunInfo) string {
	var parts []string

	if info.Mode != "" {
		mode := fmt.Sprintf("Mode: %s", info.Mode)
		if info.Debug {
			mode += " (debug)"
		}
		parts = append(parts, mode)
	}
	if info.Users > 0 {
		parts = append(parts, fmt.Sprintf("Users: %d", info.Users))
	}
	if info.HeavyLimit > 0 {
		parts = append(parts, fmt.Sprintf("Heavy: %d", info.HeavyLimit))
	}
	if info.LightLimit > 0 {
		parts = append(parts, fmt.Sprintf("Light: %d", info.LightLimit))
	}
	if info.EventsRate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %.1f/s", info.EventsRate))
	} else {
		parts = append(parts, "Rate: unlimited")
	}
	if info.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", info.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
