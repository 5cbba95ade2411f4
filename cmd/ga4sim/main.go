package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/torosent/ga4sim/internal/browser"
	"github.com/torosent/ga4sim/internal/clientmetrics"
	"github.com/torosent/ga4sim/internal/config"
	"github.com/torosent/ga4sim/internal/dashboard"
	"github.com/torosent/ga4sim/internal/job"
	"github.com/torosent/ga4sim/internal/logger"
	"github.com/torosent/ga4sim/internal/measurement"
	"github.com/torosent/ga4sim/internal/metrics"
	"github.com/torosent/ga4sim/internal/orchestrator"
	"github.com/torosent/ga4sim/internal/output"
	"github.com/torosent/ga4sim/internal/pages"
	"github.com/torosent/ga4sim/internal/pool"
	"github.com/torosent/ga4sim/internal/tracing"
	"github.com/torosent/ga4sim/internal/usage"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes one simulation. Failed jobs are reported, not returned: the
// error is non-nil only when the run could not start.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	structured := cfg.JSONOutput || cfg.YAMLOutput
	logCfg := logger.Config{Level: cfg.LogLevel, JSON: structured, Writer: stderr}
	log := logger.New("ga4sim", logCfg)

	catalogue, err := pages.Load(cfg.PagesFile)
	if err != nil {
		return err
	}

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	mode := cfg.SimulationMode()
	collector := metrics.NewCollector()
	transport := clientmetrics.New()

	opts := []orchestrator.Option{
		orchestrator.WithCollector(collector),
		orchestrator.WithTracer(provider.Tracer()),
		orchestrator.WithLogger(logger.New("orchestrator", logCfg)),
		orchestrator.WithSeed(cfg.Seed),
		orchestrator.WithFailureLog(cfg.LogErrors || cfg.LogLevel == "debug"),
	}

	if mode.NeedsBootstrap() {
		b, err := browser.New(browser.Config{
			Target:            cfg.Target,
			MeasurementID:     cfg.MeasurementID,
			NavigationTimeout: cfg.BootstrapTimeout,
			Headful:           cfg.Headful,
			Seed:              cfg.Seed,
		}, logger.New("browser", logCfg))
		if err != nil {
			return err
		}
		defer func() {
			if err := b.Close(); err != nil {
				log.Warn().Err(err).Msg("browser shutdown failed")
			}
		}()
		opts = append(opts, orchestrator.WithBootstrapper(b))
	}

	if mode != job.Browser {
		emitterOpts, err := newEmitters(*cfg, transport, logger.New("measurement", logCfg))
		if err != nil {
			return err
		}
		opts = append(opts, emitterOpts...)
	}

	var ledger *usage.Ledger
	if cfg.UsageFile != "" {
		ledger = usage.Open(cfg.UsageFile)
		opts = append(opts, orchestrator.WithQuota(ledger))
	}

	orch := orchestrator.New(orchestrator.Settings{
		Target:             cfg.Target,
		Pages:              catalogue,
		Ranges:             cfg.Ranges(),
		MaxConcurrentUsers: cfg.MaxConcurrentUsers,
		MaxDailyUsers:      cfg.MaxDailyUsers,
		HeavyCap:           cfg.HeavyCap,
		LightCap:           cfg.LightCap,
	}, opts...)

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	if !structured && !cfg.Dashboard {
		printConfig(stdout, *cfg)
	}

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(collector, dashboard.RunInfo{
			Target:     cfg.Target,
			Mode:       mode.String(),
			Users:      cfg.Users,
			Debug:      cfg.Debug,
			HeavyLimit: orch.Limit(pool.Heavy, cfg.Concurrency),
			LightLimit: orch.Limit(pool.Light, cfg.Concurrency),
			EventsRate: cfg.EventsRate,
			ConfigFile: cfg.ConfigFile,
		}, stopRun)
		if err != nil {
			return err
		}
		dash.Start()
	}

	var progress *output.ProgressReporter
	if !structured && !cfg.Dashboard {
		progress = output.NewProgressReporter(collector, cfg.Users, progressInterval, stdout)
		progress.Start()
	}

	collector.Start()
	tally, err := orch.RunSimulation(runCtx, orchestrator.Request{
		Users:               cfg.Users,
		Mode:                mode,
		Debug:               cfg.Debug,
		ConcurrencyOverride: cfg.Concurrency,
	})

	if dash != nil {
		dash.Stop()
	}
	if progress != nil {
		progress.Stop()
		fmt.Fprintln(stdout)
	}
	if err != nil {
		return err
	}

	report := output.Report{Tally: tally, Metrics: collector.Stats(tally.Duration)}
	if mode != job.Browser {
		snap := transport.Snapshot()
		report.Transport = &snap
	}
	if ledger != nil {
		rec, err := ledger.Current(time.Now())
		if err != nil {
			log.Warn().Err(err).Str("usage_file", ledger.Path()).Msg("read usage ledger")
		} else {
			report.Usage = &output.DailyUsage{File: ledger.Path(), Date: rec.Date, Used: rec.Users, Ceiling: cfg.MaxDailyUsers}
		}
	}

	switch {
	case cfg.JSONOutput:
		return output.PrintJSONReport(stdout, report)
	case cfg.YAMLOutput:
		return output.PrintYAMLReport(stdout, report)
	default:
		output.PrintReport(stdout, report)
	}
	if tally.Failed > 0 {
		log.Warn().Int("failed", tally.Failed).Int("users", cfg.Users).Msg("some users could not be simulated")
	}
	return nil
}

// newEmitters builds the production emitter and, for debug runs, the
// validation emitter the orchestrator selects instead.
func newEmitters(cfg config.Config, transport *clientmetrics.ClientMetrics, log zerolog.Logger) ([]orchestrator.Option, error) {
	base := measurement.Config{
		MeasurementID:     cfg.MeasurementID,
		APISecret:         cfg.APISecret,
		BaseURL:           cfg.MPEndpoint,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.EventsRate,
	}
	client, err := measurement.NewClient(base,
		measurement.WithMetrics(transport),
		measurement.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	opts := []orchestrator.Option{orchestrator.WithEmitter(client)}
	if !cfg.Debug {
		return opts, nil
	}

	debugCfg := base
	debugCfg.Debug = true
	debugCfg.BaseURL = cfg.MPDebugEndpoint
	debugClient, err := measurement.NewClient(debugCfg,
		measurement.WithMetrics(transport),
		measurement.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	return append(opts, orchestrator.WithDebugEmitter(debugClient)), nil
}

func printConfig(w io.Writer, cfg config.Config) {
	fmt.Fprintln(w, "GA4 traffic simulation")
	fmt.Fprintf(w, "  Measurement ID: %s\n", cfg.MeasurementID)
	fmt.Fprintf(w, "  Target:         %s\n", cfg.Target)
	fmt.Fprintf(w, "  Mode:           %s\n", cfg.SimulationMode())
	fmt.Fprintf(w, "  Users:          %d\n", cfg.Users)
	fmt.Fprintf(w, "  Debug:          %t\n", cfg.Debug)
	fmt.Fprintf(w, "  Session:        %s - %s, %d-%d pages\n",
		cfg.MinSessionDuration, cfg.MaxSessionDuration, cfg.MinPages, cfg.MaxPages)
	fmt.Fprintln(w)
}
