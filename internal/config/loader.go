package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files, the environment and
// command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// envBindings maps setting keys to the environment variables that set them,
// in lookup order.
var envBindings = map[string][]string{
	"measurement_id":          {"GA4_MEASUREMENT_ID"},
	"api_secret":              {"GA4_MP_SECRET", "GA4_API_SECRET"},
	"target":                  {"TARGET_URL"},
	"max_concurrent_users":    {"MAX_CONCURRENT_USERS"},
	"max_daily_users":         {"MAX_DAILY_USERS"},
	"min_session_duration_ms": {"MIN_SESSION_DURATION_MS"},
	"max_session_duration_ms": {"MAX_SESSION_DURATION_MS"},
	"min_pages":               {"MIN_PAGES_PER_SESSION"},
	"max_pages":               {"MAX_PAGES_PER_SESSION"},
	"usage_file":              {"GA4SIM_USAGE_FILE"},
	"log_level":               {"GA4SIM_LOG_LEVEL"},
	"tracing.endpoint":        {"OTEL_EXPORTER_OTLP_ENDPOINT"},
	"tracing.service_name":    {"OTEL_SERVICE_NAME"},
}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments, configuration files and environment
// variables to produce a Config. Precedence from lowest to highest:
// defaults, config file, dotenv file, environment, flags.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := strings.TrimSpace(flagSet.Lookup("config").Value.String())
	envPath := strings.TrimSpace(flagSet.Lookup("env-file").Value.String())
	envRequired := flagSet.Changed("env-file")
	if isDotenv(configPath) {
		envPath, configPath = configPath, ""
		envRequired = true
	}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	if envPath != "" {
		dotenv, err := readDotenv(envPath, envRequired)
		if err != nil {
			return nil, err
		}
		if len(dotenv) > 0 {
			if err := v.MergeConfigMap(dotenv); err != nil {
				return nil, fmt.Errorf("merge %s: %w", envPath, err)
			}
		}
	}

	for key, names := range envBindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applySettings(&cfg, v); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Target = strings.TrimSpace(cfg.Target)
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(cfg.Tracing.Protocol))

	return &cfg, nil
}

func isDotenv(path string) bool {
	if path == "" {
		return false
	}
	base := filepath.Base(path)
	return base == ".env" || strings.EqualFold(filepath.Ext(base), ".env")
}

// readDotenv reads a dotenv file and translates its variables into setting
// keys. A missing file is only an error when it was named explicitly.
func readDotenv(path string, required bool) (map[string]interface{}, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}

	ev := viper.New()
	ev.SetConfigFile(path)
	ev.SetConfigType("env")
	if err := ev.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}

	out := map[string]interface{}{}
	for key, names := range envBindings {
		for _, name := range names {
			if !ev.IsSet(name) {
				continue
			}
			setNested(out, key, ev.Get(name))
			break
		}
	}
	return out, nil
}

func setNested(m map[string]interface{}, key string, value interface{}) {
	parts := strings.Split(key, ".")
	for _, p := range parts[:len(parts)-1] {
		child, ok := m[p].(map[string]interface{})
		if !ok {
			child = map[string]interface{}{}
			m[p] = child
		}
		m = child
	}
	m[parts[len(parts)-1]] = value
}

// applySettings copies every key set in v onto cfg.
func applySettings(cfg *Config, v *viper.Viper) error {
	for key, dst := range map[string]*string{
		"measurement_id":       &cfg.MeasurementID,
		"api_secret":           &cfg.APISecret,
		"target":               &cfg.Target,
		"mode":                 &cfg.Mode,
		"pages_file":           &cfg.PagesFile,
		"usage_file":           &cfg.UsageFile,
		"mp_endpoint":          &cfg.MPEndpoint,
		"mp_debug_endpoint":    &cfg.MPDebugEndpoint,
		"log_level":            &cfg.LogLevel,
		"tracing.endpoint":     &cfg.Tracing.Endpoint,
		"tracing.protocol":     &cfg.Tracing.Protocol,
		"tracing.service_name": &cfg.Tracing.ServiceName,
	} {
		if !v.IsSet(key) {
			continue
		}
		val, err := asString(v.Get(key))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = strings.TrimSpace(val)
	}

	for key, dst := range map[string]*int{
		"min_pages":            &cfg.MinPages,
		"max_pages":            &cfg.MaxPages,
		"max_concurrent_users": &cfg.MaxConcurrentUsers,
		"max_daily_users":      &cfg.MaxDailyUsers,
		"heavy_cap":            &cfg.HeavyCap,
		"light_cap":            &cfg.LightCap,
		"users":                &cfg.Users,
		"concurrency":          &cfg.Concurrency,
	} {
		if !v.IsSet(key) {
			continue
		}
		val, err := asInt(v.Get(key))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = val
	}

	for key, dst := range map[string]*bool{
		"debug":            &cfg.Debug,
		"headful":          &cfg.Headful,
		"json_output":      &cfg.JSONOutput,
		"yaml_output":      &cfg.YAMLOutput,
		"dashboard":        &cfg.Dashboard,
		"log_errors":       &cfg.LogErrors,
		"tracing.insecure": &cfg.Tracing.Insecure,
	} {
		if !v.IsSet(key) {
			continue
		}
		val, err := asBool(v.Get(key))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = val
	}

	for key, dst := range map[string]*float64{
		"events_rate":         &cfg.EventsRate,
		"tracing.sample_rate": &cfg.Tracing.SampleRate,
	} {
		if !v.IsSet(key) {
			continue
		}
		val, err := asFloat64(v.Get(key))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = val
	}

	for key, dst := range map[string]*time.Duration{
		"timeout":           &cfg.Timeout,
		"bootstrap_timeout": &cfg.BootstrapTimeout,
	} {
		if !v.IsSet(key) {
			continue
		}
		val, err := asDuration(v.Get(key))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = val
	}

	if err := applySessionDuration(v, "min_session_duration", &cfg.MinSessionDuration); err != nil {
		return err
	}
	if err := applySessionDuration(v, "max_session_duration", &cfg.MaxSessionDuration); err != nil {
		return err
	}

	if v.IsSet("seed") {
		val, err := asInt(v.Get("seed"))
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed = int64(val)
	}
	return nil
}

// applySessionDuration reads key as a duration, or key+"_ms" as integer
// milliseconds. The millisecond form wins when both are set.
func applySessionDuration(v *viper.Viper, key string, dst *time.Duration) error {
	msKey := key + "_ms"
	if v.IsSet(msKey) {
		val, err := asMillis(v.Get(msKey))
		if err != nil {
			return fmt.Errorf("%s: %w", msKey, err)
		}
		*dst = val
		return nil
	}
	if v.IsSet(key) {
		val, err := asDuration(v.Get(key))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = val
	}
	return nil
}
