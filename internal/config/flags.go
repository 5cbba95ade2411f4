package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const usageLong = `Simulate GA4 users against a target site.

Modes:
  hybrid   browser bootstrap + Measurement Protocol events (default)
  browser  full browser simulation, slowest and most realistic
  mp       Measurement Protocol only, fastest, partial reporting

Environment:
  GA4_MEASUREMENT_ID, GA4_MP_SECRET, TARGET_URL, MAX_CONCURRENT_USERS,
  MAX_DAILY_USERS, MIN_SESSION_DURATION_MS, MAX_SESSION_DURATION_MS,
  MIN_PAGES_PER_SESSION, MAX_PAGES_PER_SESSION (a .env file is read too)`

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ga4sim",
		Short:         "GA4 traffic simulator",
		Long:          usageLong,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	d := Defaults()

	// Run flags
	flags.IntP("users", "n", d.Users, "Number of users to simulate")
	flags.StringP("mode", "m", d.Mode, "Simulation mode: hybrid, browser or mp")
	flags.BoolP("debug", "d", false, "Send events to the validation endpoint and report its messages")
	flags.IntP("concurrent", "c", 0, "Override the concurrency ceiling of both pools (0 uses configuration)")

	// GA4 flags
	flags.String("measurement-id", "", "GA4 measurement id (G-XXXXXXX)")
	flags.String("api-secret", "", "Measurement Protocol API secret")
	flags.String("target", "", "Site URL visited by simulated users")

	// Session shape flags
	flags.Duration("min-session-duration", d.MinSessionDuration, "Shortest simulated session")
	flags.Duration("max-session-duration", d.MaxSessionDuration, "Longest simulated session")
	flags.Int("min-pages", d.MinPages, "Fewest pages viewed per session")
	flags.Int("max-pages", d.MaxPages, "Most pages viewed per session")
	flags.String("pages-file", "", "CSV or JSON catalogue of page paths visited after landing")
	flags.Int64("seed", 0, "Random seed for session parameters (0 is time-based)")

	// Capacity flags
	flags.Int("max-concurrent-users", d.MaxConcurrentUsers, "Concurrency ceiling for both pools")
	flags.Int("max-daily-users", d.MaxDailyUsers, "Most users allowed per run and per day")
	flags.Int("heavy-cap", d.HeavyCap, "Ceiling for browser-backed jobs when no override is given")
	flags.Int("light-cap", d.LightCap, "Ceiling for Measurement Protocol jobs when no override is given")
	flags.String("usage-file", "", "Path of the daily usage ledger (empty disables it)")

	// Transport flags
	flags.Duration("timeout", d.Timeout, "Per-request Measurement Protocol timeout")
	flags.Duration("bootstrap-timeout", d.BootstrapTimeout, "Page navigation timeout for browser sessions")
	flags.Float64("events-rate", 0, "Measurement Protocol requests per second (0 means unlimited)")
	flags.Bool("headful", false, "Show the browser window")
	flags.String("mp-endpoint", "", "Measurement Protocol collection URL override")
	flags.String("mp-debug-endpoint", "", "Measurement Protocol validation URL override")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.Bool("yaml-output", false, "Emit YAML formatted output")
	flags.Bool("dashboard", false, "Show live terminal dashboard with metrics")
	flags.Bool("log-errors", false, "Log each failed job to stderr")
	flags.String("log-level", d.LogLevel, "Log level: debug, info, warn, error or disabled")
	flags.String("config", "", "Path to configuration file (JSON, YAML, TOML or .env)")
	flags.String("env-file", ".env", "Dotenv file read when present")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (empty disables tracing)")
	flags.String("tracing-protocol", d.Tracing.Protocol, "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported with spans")
	flags.Float64("tracing-sample-rate", d.Tracing.SampleRate, "Fraction of runs traced (0-1)")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n\nUsage: %s\n\nFlags:\n", cmd.Long, cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file and environment.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("users") {
		val, err := fs.GetInt("users")
		if err != nil {
			return err
		}
		cfg.Users = val
	}
	if fs.Changed("mode") {
		val, err := fs.GetString("mode")
		if err != nil {
			return err
		}
		cfg.Mode = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("debug") {
		val, err := fs.GetBool("debug")
		if err != nil {
			return err
		}
		cfg.Debug = val
	}
	if fs.Changed("concurrent") {
		val, err := fs.GetInt("concurrent")
		if err != nil {
			return err
		}
		cfg.Concurrency = val
	}

	for flag, dst := range map[string]*string{
		"measurement-id":       &cfg.MeasurementID,
		"api-secret":           &cfg.APISecret,
		"target":               &cfg.Target,
		"pages-file":           &cfg.PagesFile,
		"usage-file":           &cfg.UsageFile,
		"mp-endpoint":          &cfg.MPEndpoint,
		"mp-debug-endpoint":    &cfg.MPDebugEndpoint,
		"log-level":            &cfg.LogLevel,
		"tracing-endpoint":     &cfg.Tracing.Endpoint,
		"tracing-protocol":     &cfg.Tracing.Protocol,
		"tracing-service-name": &cfg.Tracing.ServiceName,
	} {
		if !fs.Changed(flag) {
			continue
		}
		val, err := fs.GetString(flag)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(val)
	}

	for flag, dst := range map[string]*time.Duration{
		"min-session-duration": &cfg.MinSessionDuration,
		"max-session-duration": &cfg.MaxSessionDuration,
		"timeout":              &cfg.Timeout,
		"bootstrap-timeout":    &cfg.BootstrapTimeout,
	} {
		if !fs.Changed(flag) {
			continue
		}
		val, err := fs.GetDuration(flag)
		if err != nil {
			return err
		}
		*dst = val
	}

	for flag, dst := range map[string]*int{
		"min-pages":            &cfg.MinPages,
		"max-pages":            &cfg.MaxPages,
		"max-concurrent-users": &cfg.MaxConcurrentUsers,
		"max-daily-users":      &cfg.MaxDailyUsers,
		"heavy-cap":            &cfg.HeavyCap,
		"light-cap":            &cfg.LightCap,
	} {
		if !fs.Changed(flag) {
			continue
		}
		val, err := fs.GetInt(flag)
		if err != nil {
			return err
		}
		*dst = val
	}

	for flag, dst := range map[string]*bool{
		"headful":          &cfg.Headful,
		"json-output":      &cfg.JSONOutput,
		"yaml-output":      &cfg.YAMLOutput,
		"dashboard":        &cfg.Dashboard,
		"log-errors":       &cfg.LogErrors,
		"tracing-insecure": &cfg.Tracing.Insecure,
	} {
		if !fs.Changed(flag) {
			continue
		}
		val, err := fs.GetBool(flag)
		if err != nil {
			return err
		}
		*dst = val
	}

	if fs.Changed("events-rate") {
		val, err := fs.GetFloat64("events-rate")
		if err != nil {
			return err
		}
		cfg.EventsRate = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = val
	}
	return nil
}
