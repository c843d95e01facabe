// Package config describes how an ilw logger and its sinks are assembled.
//
// Values come from defaults, an optional TOML file and ILW_* environment
// variables, in that order; Normalize then fills gaps and rejects values no
// sink could work with.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/aponysus/ilw/observe"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "ILW_"

type NormalizationInfo struct {
	Changed       bool     `toml:"-"` // Whether normalization changed any field.
	ChangedFields []string `toml:"-"` // Keys of the fields that were changed.
}

type Config struct {
	Level     string `env:"LEVEL" toml:"level"`           // Minimum level forwarded to sinks.
	History   bool   `env:"HISTORY" toml:"history"`       // Track per-node mark history.
	ReadyZero bool   `env:"READY_ZERO" toml:"ready_zero"` // Report zero durations for marks emitted from OnReady.

	Console bool `env:"CONSOLE" toml:"console"`   // Write records to stderr through zerolog.
	NoColor bool `env:"NO_COLOR" toml:"no_color"` // Disable console colors.

	PersistPath string `env:"PERSIST_PATH" toml:"persist_path"` // SQLite file for persisted records ("" disables).
	ReportURL   string `env:"REPORT_URL" toml:"report_url"`     // ws:// or wss:// collector for reported records ("" disables).

	Metrics          bool   `env:"METRICS" toml:"metrics"`                     // Register Prometheus collectors.
	MetricsNamespace string `env:"METRICS_NAMESPACE" toml:"metrics_namespace"` // Prometheus metric prefix.

	Tracing     bool   `env:"TRACING" toml:"tracing"`           // Export settled timelines as OpenTelemetry spans.
	ServiceName string `env:"SERVICE_NAME" toml:"service_name"` // Tracer and resource name.

	Normalization NormalizationInfo `toml:"-"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Level:            "debug",
		ReadyZero:        true,
		Console:          true,
		MetricsNamespace: "ilw",
		ServiceName:      "ilw",
	}
}

// MinLevel returns the parsed Level. Call it on a normalized config.
func (c Config) MinLevel() observe.Level {
	lvl, err := observe.ParseLevel(c.Level)
	if err != nil {
		return observe.LevelDebug
	}
	return lvl
}

// ParseEnv overlays ILW_* variables onto cfg. environ replaces the process
// environment when non-nil. Unset variables leave fields untouched.
func ParseEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// FromEnv returns the defaults overlaid with the process environment, normalized.
func FromEnv() (Config, error) {
	cfg := Default()
	if err := ParseEnv(&cfg, nil); err != nil {
		return Config{}, err
	}
	return cfg.Normalize()
}

type fileConfig struct {
	Level            string `toml:"level"`
	History          bool   `toml:"history"`
	ReadyZero        bool   `toml:"ready_zero"`
	Console          bool   `toml:"console"`
	NoColor          bool   `toml:"no_color"`
	PersistPath      string `toml:"persist_path"`
	ReportURL        string `toml:"report_url"`
	Metrics          bool   `toml:"metrics"`
	MetricsNamespace string `toml:"metrics_namespace"`
	Tracing          bool   `toml:"tracing"`
	ServiceName      string `toml:"service_name"`
}

// Load reads a TOML file on top of the defaults. Keys absent from the file
// keep their default value. The result is not normalized; see Resolve.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load ilw config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load ilw config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("level") {
		cfg.Level = strings.TrimSpace(raw.Level)
	}
	if meta.IsDefined("history") {
		cfg.History = raw.History
	}
	if meta.IsDefined("ready_zero") {
		cfg.ReadyZero = raw.ReadyZero
	}
	if meta.IsDefined("console") {
		cfg.Console = raw.Console
	}
	if meta.IsDefined("no_color") {
		cfg.NoColor = raw.NoColor
	}
	if meta.IsDefined("persist_path") {
		cfg.PersistPath = strings.TrimSpace(raw.PersistPath)
	}
	if meta.IsDefined("report_url") {
		cfg.ReportURL = strings.TrimSpace(raw.ReportURL)
	}
	if meta.IsDefined("metrics") {
		cfg.Metrics = raw.Metrics
	}
	if meta.IsDefined("metrics_namespace") {
		cfg.MetricsNamespace = strings.TrimSpace(raw.MetricsNamespace)
	}
	if meta.IsDefined("tracing") {
		cfg.Tracing = raw.Tracing
	}
	if meta.IsDefined("service_name") {
		cfg.ServiceName = strings.TrimSpace(raw.ServiceName)
	}
	return cfg, nil
}

// Resolve loads path (when non-empty), applies the process environment and
// normalizes the result.
func Resolve(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	if err := ParseEnv(&cfg, nil); err != nil {
		return Config{}, err
	}
	return cfg.Normalize()
}

// NormalizeError reports a field value Normalize cannot repair.
type NormalizeError struct {
	Field string
	Value string
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("config: invalid %s %q", e.Field, e.Value)
}

var metricNamespaceRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Normalize fills empty fields with defaults and validates the rest.
func (c Config) Normalize() (Config, error) {
	normalized := c
	norm := &normalized.Normalization

	markChanged := func(field string) {
		norm.Changed = true
		for _, f := range norm.ChangedFields {
			if f == field {
				return
			}
		}
		norm.ChangedFields = append(norm.ChangedFields, field)
	}

	level := strings.ToLower(strings.TrimSpace(normalized.Level))
	if level == "" {
		level = "debug"
	}
	if level == "warning" {
		level = "warn"
	}
	if _, err := observe.ParseLevel(level); err != nil {
		return Config{}, &NormalizeError{Field: "level", Value: c.Level}
	}
	if level != normalized.Level {
		normalized.Level = level
		markChanged("level")
	}

	if trimmed := strings.TrimSpace(normalized.ServiceName); trimmed != normalized.ServiceName || trimmed == "" {
		if trimmed == "" {
			trimmed = "ilw"
		}
		normalized.ServiceName = trimmed
		markChanged("service_name")
	}

	ns := strings.ReplaceAll(strings.TrimSpace(normalized.MetricsNamespace), "-", "_")
	if ns == "" {
		ns = "ilw"
	}
	if !metricNamespaceRE.MatchString(ns) {
		return Config{}, &NormalizeError{Field: "metrics_namespace", Value: c.MetricsNamespace}
	}
	if ns != normalized.MetricsNamespace {
		normalized.MetricsNamespace = ns
		markChanged("metrics_namespace")
	}

	if trimmed := strings.TrimSpace(normalized.PersistPath); trimmed != normalized.PersistPath {
		normalized.PersistPath = trimmed
		markChanged("persist_path")
	}

	if trimmed := strings.TrimSpace(normalized.ReportURL); trimmed != normalized.ReportURL {
		normalized.ReportURL = trimmed
		markChanged("report_url")
	}
	if normalized.ReportURL != "" {
		u, err := url.Parse(normalized.ReportURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return Config{}, &NormalizeError{Field: "report_url", Value: c.ReportURL}
		}
	}

	return normalized, nil
}
