package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil {
			t.Errorf("asString(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int
	}{
		{123, 123},
		{"456", 456},
		{" 12 ", 12},
		{int64(789), 789},
		{float64(10.0), 10},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if err != nil {
			t.Errorf("asInt(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}

	if _, err := asInt("many"); err == nil {
		t.Error("asInt(\"many\") should fail")
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"false", false},
		{"0", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{10, 10 * time.Second}, // int treated as seconds
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsMillis(t *testing.T) {
	got, err := asMillis("5000")
	if err != nil {
		t.Fatalf("asMillis() error = %v", err)
	}
	if got != 5*time.Second {
		t.Errorf("asMillis(5000) = %v, want 5s", got)
	}
}

func TestApplySettings(t *testing.T) {
	v := viper.New()
	v.Set("target", " http://example.com ")
	v.Set("max_pages", 8)
	v.Set("timeout", "5s")
	v.Set("min_session_duration", "3s")
	v.Set("max_session_duration", "9s")
	v.Set("max_session_duration_ms", 4000)
	v.Set("dashboard", true)
	v.Set("tracing.endpoint", "collector:4317")

	cfg := Defaults()
	if err := applySettings(&cfg, v); err != nil {
		t.Fatalf("applySettings() error = %v", err)
	}

	if cfg.Target != "http://example.com" {
		t.Errorf("Target = %q, want http://example.com", cfg.Target)
	}
	if cfg.MaxPages != 8 {
		t.Errorf("MaxPages = %d, want 8", cfg.MaxPages)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.MinSessionDuration != 3*time.Second {
		t.Errorf("MinSessionDuration = %v, want 3s", cfg.MinSessionDuration)
	}
	if cfg.MaxSessionDuration != 4*time.Second {
		t.Errorf("MaxSessionDuration = %v, want the millisecond key to win", cfg.MaxSessionDuration)
	}
	if !cfg.Dashboard {
		t.Error("Dashboard = false, want true")
	}
	if cfg.Tracing.Endpoint != "collector:4317" {
		t.Errorf("Tracing.Endpoint = %q", cfg.Tracing.Endpoint)
	}
}

func TestApplySettingsRejectsBadValues(t *testing.T) {
	v := viper.New()
	v.Set("users", "lots")
	cfg := Defaults()
	if err := applySettings(&cfg, v); err == nil {
		t.Fatal("expected error for non-numeric users")
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Defaults()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--users=5",
		"--mode=Browser",
		"--tracing-endpoint=localhost:4318",
		"--tracing-insecure",
		"--bootstrap-timeout=10s",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(&cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Users != 5 {
		t.Errorf("Users = %d, want 5", cfg.Users)
	}
	if cfg.Mode != "browser" {
		t.Errorf("Mode = %q, want browser", cfg.Mode)
	}
	if cfg.Tracing.Endpoint != "localhost:4318" || !cfg.Tracing.Insecure {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.BootstrapTimeout != 10*time.Second {
		t.Errorf("BootstrapTimeout = %v, want 10s", cfg.BootstrapTimeout)
	}
	if cfg.MaxPages != 5 {
		t.Errorf("MaxPages = %d, unchanged flags must keep defaults", cfg.MaxPages)
	}
}

func TestSetNested(t *testing.T) {
	m := map[string]interface{}{}
	setNested(m, "tracing.endpoint", "a")
	setNested(m, "tracing.service_name", "b")
	setNested(m, "target", "c")

	tr, ok := m["tracing"].(map[string]interface{})
	if !ok || tr["endpoint"] != "a" || tr["service_name"] != "b" {
		t.Errorf("nested = %#v", m)
	}
	if m["target"] != "c" {
		t.Errorf("target = %#v", m["target"])
	}
}

func TestIsDotenv(t *testing.T) {
	tests := map[string]bool{
		".env":             true,
		"prod.env":         true,
		"/tmp/x/.env":      true,
		"config.yaml":      false,
		"":                 false,
		"environment.json": false,
	}
	for path, want := range tests {
		if got := isDotenv(path); got != want {
			t.Errorf("isDotenv(%q) = %v, want %v", path, got, want)
		}
	}
}
