// Package config loads the process configuration using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/wifilab/internal/core"
	"firestige.xyz/wifilab/internal/log"
	"firestige.xyz/wifilab/internal/scenario"
)

// RootKey is the top-level YAML key. Env vars use the WIFILAB_ prefix,
// e.g. WIFILAB_SCENARIO_STATIONS.
const RootKey = "wifilab"

// GlobalConfig is everything under `wifilab:`.
type GlobalConfig struct {
	Log      log.Config       `mapstructure:"log"`
	Metrics  MetricsConfig    `mapstructure:"metrics"`
	Output   OutputConfig     `mapstructure:"output"`
	Engine   EngineConfig     `mapstructure:"engine"`
	Scenario scenario.Params  `mapstructure:"scenario"`
	Sweep    []map[string]any `mapstructure:"sweep"`
	Parallel int              `mapstructure:"parallel"` // 0 = one run at a time
}

// MetricsConfig controls the Prometheus exports.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Textfile string `mapstructure:"textfile"` // empty = do not write
	Listen   string `mapstructure:"listen"`   // empty = no HTTP endpoint
	Path     string `mapstructure:"path"`
}

// OutputConfig controls the result report.
type OutputConfig struct {
	Format      string `mapstructure:"format"` // text | yaml
	Path        string `mapstructure:"path"`   // empty = stdout
	ShowDetails bool   `mapstructure:"show_details"`
}

// EngineConfig tunes the reference simulation backend and the application timeline.
type EngineConfig struct {
	QueueLimit     int           `mapstructure:"queue_limit"`
	FrameOverhead  time.Duration `mapstructure:"frame_overhead"`
	Tracing        bool          `mapstructure:"tracing"`
	TracePrefix    string        `mapstructure:"trace_prefix"`
	TraceFilter    string        `mapstructure:"trace_filter"` // all | arp | data
	Verbose        bool          `mapstructure:"verbose"`
	SeedResolution bool          `mapstructure:"seed_resolution"`
	ServerStart    time.Duration `mapstructure:"server_start"`
	ClientStart    time.Duration `mapstructure:"client_start"`
	StopPadding    time.Duration `mapstructure:"stop_padding"`
	MaxPackets     uint64        `mapstructure:"max_packets"`
	Port           uint16        `mapstructure:"port"`
	Progress       time.Duration `mapstructure:"progress"` // 0 = no progress logs
}

type configRoot struct {
	Wifilab GlobalConfig `mapstructure:"wifilab"`
}

// New returns a viper instance with defaults and env overrides wired, ready for
// flags to be bound onto it.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads path (may be empty) and returns the validated configuration.
func Load(path string) (*GlobalConfig, error) {
	v := New()
	if err := ReadFile(v, path); err != nil {
		return nil, err
	}
	return Decode(v)
}

// ReadFile merges the config file at path into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: failed to read config file: %v", core.ErrConfigInvalid, err)
	}
	return nil
}

// Decode unmarshals v and validates the result.
func Decode(v *viper.Viper) (*GlobalConfig, error) {
	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", core.ErrConfigInvalid, err)
	}
	cfg := root.Wifilab
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Key prefixes name with the root key.
func Key(name string) string {
	return RootKey + "." + name
}

func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault(Key("log.level"), "info")
	v.SetDefault(Key("log.pattern"), log.DefaultPattern)
	v.SetDefault(Key("log.time"), log.DefaultTime)

	// Metrics defaults
	v.SetDefault(Key("metrics.enabled"), true)
	v.SetDefault(Key("metrics.textfile"), "")
	v.SetDefault(Key("metrics.listen"), "")
	v.SetDefault(Key("metrics.path"), "/metrics")

	// Output defaults
	v.SetDefault(Key("output.format"), "text")
	v.SetDefault(Key("output.path"), "")
	v.SetDefault(Key("output.show_details"), true)

	// Engine defaults
	v.SetDefault(Key("engine.queue_limit"), 1000)
	v.SetDefault(Key("engine.frame_overhead"), "100us")
	v.SetDefault(Key("engine.tracing"), false)
	v.SetDefault(Key("engine.trace_prefix"), "wifilab")
	v.SetDefault(Key("engine.trace_filter"), "all")
	v.SetDefault(Key("engine.verbose"), false)
	v.SetDefault(Key("engine.seed_resolution"), true)
	v.SetDefault(Key("engine.server_start"), "1s")
	v.SetDefault(Key("engine.client_start"), "2s")
	v.SetDefault(Key("engine.stop_padding"), "1s")
	v.SetDefault(Key("engine.max_packets"), 10000)
	v.SetDefault(Key("engine.port"), 9)
	v.SetDefault(Key("engine.progress"), "0s")

	// Scenario defaults
	d := scenario.DefaultParams()
	v.SetDefault(Key("scenario.stations"), d.Stations)
	v.SetDefault(Key("scenario.duration"), d.Duration)
	v.SetDefault(Key("scenario.payload"), d.PayloadBytes)
	v.SetDefault(Key("scenario.load"), d.AggregateLoad)
	v.SetDefault(Key("scenario.band"), d.Band)
	v.SetDefault(Key("scenario.ack_mode"), d.AckMode)
	v.SetDefault(Key("scenario.channel_width"), d.ChannelWidth)
	v.SetDefault(Key("scenario.rate_index"), d.RateIndex)
	v.SetDefault(Key("scenario.guard_interval"), d.GuardInterval)
	v.SetDefault(Key("scenario.tcp"), d.TCP)
	v.SetDefault(Key("scenario.downlink"), d.Downlink)
	v.SetDefault(Key("scenario.spectrum"), d.Spectrum)
	v.SetDefault(Key("scenario.seed"), d.Seed)

	v.SetDefault(Key("parallel"), 1)
}

// ValidateAndApplyDefaults checks the non-scenario sections. Scenario parameters are
// validated when the scenario is built so that each failure keeps its own class.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be trace/debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	// per-packet logs are emitted at debug
	if cfg.Engine.Verbose && cfg.Log.Level != "trace" {
		cfg.Log.Level = "debug"
	}
	for _, a := range cfg.Log.Appenders {
		if a.Type == "file" && a.File.Filename == "" {
			return fmt.Errorf("%w: log file appender requires file.filename", core.ErrConfigInvalid)
		}
	}

	// ── Output ──
	cfg.Output.Format = strings.ToLower(cfg.Output.Format)
	if cfg.Output.Format != "text" && cfg.Output.Format != "yaml" {
		return fmt.Errorf("%w: invalid output format: %s (must be text/yaml)", core.ErrConfigInvalid, cfg.Output.Format)
	}

	// ── Engine ──
	e := &cfg.Engine
	if e.QueueLimit <= 0 {
		return fmt.Errorf("%w: engine.queue_limit must be positive, got %d", core.ErrConfigInvalid, e.QueueLimit)
	}
	if e.FrameOverhead < 0 {
		return fmt.Errorf("%w: engine.frame_overhead must not be negative", core.ErrConfigInvalid)
	}
	switch e.TraceFilter {
	case "":
		e.TraceFilter = "all"
	case "all", "arp", "data":
	default:
		return fmt.Errorf("%w: invalid engine.trace_filter: %s (must be all/arp/data)", core.ErrConfigInvalid, e.TraceFilter)
	}
	if e.Tracing && e.TracePrefix == "" {
		e.TracePrefix = "wifilab"
	}
	if e.ServerStart < 0 || e.ClientStart < e.ServerStart {
		return fmt.Errorf("%w: engine.client_start (%s) must not precede engine.server_start (%s)",
			core.ErrConfigInvalid, e.ClientStart, e.ServerStart)
	}
	if e.StopPadding < 0 {
		return fmt.Errorf("%w: engine.stop_padding must not be negative", core.ErrConfigInvalid)
	}
	if e.Port == 0 {
		e.Port = 9
	}
	if e.Progress < 0 {
		return fmt.Errorf("%w: engine.progress must not be negative", core.ErrConfigInvalid)
	}

	// ── Sweep ──
	if cfg.Parallel <= 0 {
		cfg.Parallel = 1
	}
	return nil
}
