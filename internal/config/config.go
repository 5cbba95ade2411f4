package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/torosent/ga4sim/internal/job"
)

// Config is the immutable input of a simulation run.
type Config struct {
	MeasurementID string `mapstructure:"measurement_id"`
	APISecret     string `mapstructure:"api_secret"`
	Target        string `mapstructure:"target"`

	MinSessionDuration time.Duration `mapstructure:"min_session_duration"`
	MaxSessionDuration time.Duration `mapstructure:"max_session_duration"`
	MinPages           int           `mapstructure:"min_pages"`
	MaxPages           int           `mapstructure:"max_pages"`
	MaxConcurrentUsers int           `mapstructure:"max_concurrent_users"`
	MaxDailyUsers      int           `mapstructure:"max_daily_users"`
	HeavyCap           int           `mapstructure:"heavy_cap"`
	LightCap           int           `mapstructure:"light_cap"`

	Users       int    `mapstructure:"users"`
	Mode        string `mapstructure:"mode"`
	Debug       bool   `mapstructure:"debug"`
	Concurrency int    `mapstructure:"concurrency"`

	Timeout          time.Duration `mapstructure:"timeout"`
	BootstrapTimeout time.Duration `mapstructure:"bootstrap_timeout"`
	EventsRate       float64       `mapstructure:"events_rate"`
	Headful          bool          `mapstructure:"headful"`
	// MPEndpoint and MPDebugEndpoint replace the Google collection URLs,
	// e.g. with a server-side tagging proxy.
	MPEndpoint      string `mapstructure:"mp_endpoint"`
	MPDebugEndpoint string `mapstructure:"mp_debug_endpoint"`

	PagesFile string `mapstructure:"pages_file"`
	UsageFile string `mapstructure:"usage_file"`
	Seed      int64  `mapstructure:"seed"`

	JSONOutput bool   `mapstructure:"json_output"`
	YAMLOutput bool   `mapstructure:"yaml_output"`
	Dashboard  bool   `mapstructure:"dashboard"`
	LogErrors  bool   `mapstructure:"log_errors"`
	LogLevel   string `mapstructure:"log_level"`

	ConfigFile string        `mapstructure:"-"`
	Tracing    TracingConfig `mapstructure:"tracing"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// Enabled reports whether an exporter endpoint is configured.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// Defaults returns the configuration used before any file, environment or
// flag is applied.
func Defaults() Config {
	return Config{
		MinSessionDuration: 5 * time.Second,
		MaxSessionDuration: 120 * time.Second,
		MinPages:           1,
		MaxPages:           5,
		MaxConcurrentUsers: 50,
		MaxDailyUsers:      1000,
		HeavyCap:           10,
		LightCap:           20,
		Users:              10,
		Mode:               job.Hybrid.String(),
		Timeout:            30 * time.Second,
		BootstrapTimeout:   30 * time.Second,
		LogLevel:           "info",
		Tracing:            TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// SimulationMode returns the parsed mode. Call after Validate.
func (c Config) SimulationMode() job.Mode {
	m, _ := job.ParseMode(c.Mode)
	return m
}

// Ranges returns the per-job session parameter bounds.
func (c Config) Ranges() job.Ranges {
	return job.Ranges{
		MinDuration: c.MinSessionDuration,
		MaxDuration: c.MaxSessionDuration,
		MinPages:    c.MinPages,
		MaxPages:    c.MaxPages,
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate reports every configuration problem at once. The user count is
// checked by the orchestrator against the daily ceiling.
func (c Config) Validate() error {
	var issues []string
	var warnings []string

	mode, modeErr := job.ParseMode(c.Mode)
	if modeErr != nil {
		issues = append(issues, modeErr.Error())
	}

	if strings.TrimSpace(c.MeasurementID) == "" {
		issues = append(issues, "measurement_id is required (GA4_MEASUREMENT_ID or --measurement-id)")
	} else if !strings.HasPrefix(c.MeasurementID, "G-") {
		issues = append(issues, fmt.Sprintf("measurement_id %q must start with G-", c.MeasurementID))
	}
	// Browser-only runs never call the Measurement Protocol.
	if strings.TrimSpace(c.APISecret) == "" && (modeErr != nil || mode != job.Browser) {
		issues = append(issues, "api_secret is required (GA4_MP_SECRET or --api-secret)")
	}
	issues = append(issues, validateTarget(c.Target)...)

	if c.MinSessionDuration <= 0 {
		issues = append(issues, "min_session_duration must be greater than zero")
	}
	if c.MaxSessionDuration < c.MinSessionDuration {
		issues = append(issues, fmt.Sprintf("max_session_duration (%s) must be >= min_session_duration (%s)", c.MaxSessionDuration, c.MinSessionDuration))
	}
	if c.MinPages < 1 {
		issues = append(issues, "min_pages must be at least 1")
	}
	if c.MaxPages < c.MinPages {
		issues = append(issues, fmt.Sprintf("max_pages (%d) must be >= min_pages (%d)", c.MaxPages, c.MinPages))
	}

	if c.MaxConcurrentUsers < 1 {
		issues = append(issues, "max_concurrent_users must be at least 1")
	}
	if c.MaxDailyUsers < 1 {
		issues = append(issues, "max_daily_users must be at least 1")
	}
	if c.HeavyCap < 1 {
		issues = append(issues, "heavy_cap must be at least 1")
	}
	if c.LightCap < 1 {
		issues = append(issues, "light_cap must be at least 1")
	}
	if c.Concurrency < 0 {
		issues = append(issues, "concurrency must be >= 0")
	}

	if c.Timeout <= 0 {
		issues = append(issues, "timeout must be greater than zero")
	}
	if c.BootstrapTimeout <= 0 {
		issues = append(issues, "bootstrap_timeout must be greater than zero")
	}
	for key, endpoint := range map[string]string{"mp_endpoint": c.MPEndpoint, "mp_debug_endpoint": c.MPDebugEndpoint} {
		if endpoint == "" {
			continue
		}
		if endpointIssues := validateTarget(endpoint); len(endpointIssues) > 0 {
			issues = append(issues, fmt.Sprintf("%s: %s", key, strings.Join(endpointIssues, "; ")))
		}
	}
	if c.EventsRate < 0 {
		issues = append(issues, "events_rate must be >= 0")
	}
	if c.Seed < 0 {
		issues = append(issues, "seed must be >= 0")
	}

	if c.JSONOutput && c.YAMLOutput {
		issues = append(issues, "json_output and yaml_output are mutually exclusive")
	}
	if c.Dashboard && (c.JSONOutput || c.YAMLOutput) {
		issues = append(issues, "dashboard cannot be combined with json_output or yaml_output")
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error", "disabled", "off":
	default:
		issues = append(issues, fmt.Sprintf("log_level %q must be debug, info, warn, error or disabled", c.LogLevel))
	}
	issues = append(issues, validateTracing(c.Tracing)...)

	if modeErr == nil && mode.NeedsBootstrap() && c.Concurrency > c.HeavyCap*2 && c.HeavyCap > 0 {
		warnings = append(warnings, fmt.Sprintf("WARNING: concurrency %d runs that many browser contexts at once; expect resource exhaustion on small hosts.", c.Concurrency))
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTarget(target string) []string {
	target = strings.TrimSpace(target)
	if target == "" {
		return []string{"target is required (TARGET_URL or --target)"}
	}
	u, err := url.Parse(target)
	if err != nil {
		return []string{fmt.Sprintf("target: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return []string{fmt.Sprintf("target %q must use http or https", target)}
	}
	if u.Host == "" {
		return []string{fmt.Sprintf("target %q must include a host", target)}
	}
	return nil
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing.protocol %q must be grpc or http", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %g", t.SampleRate))
	}
	return issues
}
