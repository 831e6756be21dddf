// Package config loads the proxscan YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mastercactapus/proxscan/machine"
	"github.com/mastercactapus/proxscan/scan"
	"github.com/mastercactapus/proxscan/telemetry"
)

type Config struct {
	Test      TestConfig      `yaml:"test"`
	Actuator  ActuatorConfig  `yaml:"actuator"`
	Axes      AxesConfig      `yaml:"axes"`
	Settle    SettleConfig    `yaml:"settle"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Source    SourceConfig    `yaml:"source"`
	Scan      ScanConfig      `yaml:"scan"`
	Provision ProvisionConfig `yaml:"provision"`
	Store     StoreConfig     `yaml:"store"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// TestConfig names the run; the name is also the log file name.
type TestConfig struct {
	Name   string `yaml:"name"`
	LogDir string `yaml:"log_dir"`
}

const (
	ActuatorGrblSerial = "grbl-serial"
	ActuatorGrblSPJS   = "grbl-spjs"
	ActuatorFake       = "fake"
)

type ActuatorConfig struct {
	Kind         string        `yaml:"kind"`
	Port         string        `yaml:"port"`
	Baud         int           `yaml:"baud"`
	SPJSURL      string        `yaml:"spjs_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// Setup is a G-code program sent once after connecting, e.g. "G21 G90".
	Setup string `yaml:"setup"`
}

type AxesConfig struct {
	Scan  string           `yaml:"scan"`
	Home  []string         `yaml:"home"`
	Start []scan.Placement `yaml:"start"`
}

type SettleConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollInterval time.Duration `yaml:"max_poll_interval"`
	Timeout         time.Duration `yaml:"timeout"`
}

// TelemetryConfig selects a built-in format by name, or describes one.
type TelemetryConfig struct {
	Format string        `yaml:"format"`
	Custom *CustomFormat `yaml:"custom"`
}

// CustomFormat describes a record layout. Prefix selects window
// extraction; otherwise Separator selects labeled extraction.
type CustomFormat struct {
	Name      string `yaml:"name"`
	Marker    string `yaml:"marker"`
	Channels  int    `yaml:"channels"`
	Prefix    string `yaml:"prefix"`
	SuffixLen int    `yaml:"suffix_len"`
	Separator string `yaml:"separator"`
	Trim      string `yaml:"trim"`
}

const (
	SourceADB  = "adb"
	SourceFile = "file"
)

type SourceConfig struct {
	Kind   string `yaml:"kind"`
	ADB    string `yaml:"adb"`
	Serial string `yaml:"serial"`
	Tag    string `yaml:"tag"`
	File   string `yaml:"file"`
}

type ScanConfig struct {
	Step          float64       `yaml:"step"`
	Iterations    int           `yaml:"iterations"`
	Samples       int           `yaml:"samples"`
	SampleTimeout time.Duration `yaml:"sample_timeout"`
	OnFailure     scan.Policy   `yaml:"on_failure"`
	MountPrompt   string        `yaml:"mount_prompt"`
	DonePrompt    string        `yaml:"done_prompt"`
}

type ProvisionConfig struct {
	Commands []string `yaml:"commands"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig enables the status server when Addr is set.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads path and fills in defaults. An empty path means all
// defaults, which still leaves actuator.port unset for the default
// grbl-serial actuator, so it only validates with a file naming the port
// or a fake actuator.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Test.Name == "" {
		c.Test.Name = "proxtest"
	}
	if c.Test.LogDir == "" {
		c.Test.LogDir = "."
	}

	if c.Actuator.Kind == "" {
		c.Actuator.Kind = ActuatorGrblSerial
	}
	if c.Actuator.Baud == 0 {
		c.Actuator.Baud = 115200
	}
	if c.Actuator.PollInterval == 0 {
		c.Actuator.PollInterval = 200 * time.Millisecond
	}

	if c.Axes.Scan == "" {
		c.Axes.Scan = "X"
	}
	if c.Axes.Home == nil {
		c.Axes.Home = []string{"X", "Y"}
	}
	if c.Axes.Start == nil {
		c.Axes.Start = []scan.Placement{{Axis: "Y", Position: 30.4}, {Axis: "X", Position: 17}}
	}

	if c.Settle.PollInterval == 0 {
		c.Settle.PollInterval = 20 * time.Millisecond
	}
	if c.Settle.MaxPollInterval == 0 {
		c.Settle.MaxPollInterval = 500 * time.Millisecond
	}
	if c.Settle.Timeout == 0 {
		c.Settle.Timeout = 2 * time.Minute
	}

	if c.Telemetry.Format == "" && c.Telemetry.Custom == nil {
		c.Telemetry.Format = telemetry.SX92.Name
	}

	if c.Source.Kind == "" {
		c.Source.Kind = SourceADB
	}

	if c.Scan.Step == 0 {
		c.Scan.Step = 0.1
	}
	if c.Scan.Iterations == 0 {
		c.Scan.Iterations = 65
	}
	if c.Scan.Samples == 0 {
		c.Scan.Samples = 50
	}
	if c.Scan.SampleTimeout == 0 {
		c.Scan.SampleTimeout = 30 * time.Second
	}
	if c.Scan.OnFailure == "" {
		c.Scan.OnFailure = scan.PolicyAbort
	}

	if c.Store.Path == "" {
		c.Store.Path = c.Test.Name + ".db"
	}
}

func (c *Config) validate() error {
	switch c.Actuator.Kind {
	case ActuatorGrblSerial:
		if c.Actuator.Port == "" {
			return errors.New("actuator.port is required for grbl-serial")
		}
	case ActuatorGrblSPJS:
		if c.Actuator.Port == "" || c.Actuator.SPJSURL == "" {
			return errors.New("actuator.port and actuator.spjs_url are required for grbl-spjs")
		}
	case ActuatorFake:
	default:
		return fmt.Errorf("unknown actuator.kind %q", c.Actuator.Kind)
	}

	switch c.Source.Kind {
	case SourceADB:
	case SourceFile:
		if c.Source.File == "" {
			return errors.New("source.file is required for file source")
		}
	default:
		return fmt.Errorf("unknown source.kind %q", c.Source.Kind)
	}

	if _, err := c.Format(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if err := c.ScanConfig().Validate(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return nil
}

// Format resolves the configured telemetry format.
func (c *Config) Format() (telemetry.Format, error) {
	if c.Telemetry.Custom == nil {
		return telemetry.Lookup(c.Telemetry.Format)
	}

	cf := c.Telemetry.Custom
	f := telemetry.Format{Name: cf.Name, Marker: cf.Marker, Channels: cf.Channels}
	if f.Name == "" {
		f.Name = "custom"
	}
	switch {
	case cf.Prefix != "":
		f.Extract = telemetry.Window{Prefix: cf.Prefix, SuffixLen: cf.SuffixLen}
	case cf.Separator != "":
		f.Extract = telemetry.Labeled{Separator: cf.Separator, Trim: cf.Trim}
	}
	return f, f.Validate()
}

// ScanConfig builds the sequencer configuration.
func (c *Config) ScanConfig() scan.Config {
	return scan.Config{
		ScanAxis:      c.Axes.Scan,
		Home:          c.Axes.Home,
		Start:         c.Axes.Start,
		Step:          c.Scan.Step,
		Iterations:    c.Scan.Iterations,
		Samples:       c.Scan.Samples,
		SampleTimeout: c.Scan.SampleTimeout,
		OnFailure:     c.Scan.OnFailure,
		MountPrompt:   c.Scan.MountPrompt,
		DonePrompt:    c.Scan.DonePrompt,
	}
}

func (c *Config) SettleOptions() machine.SettleOptions {
	return machine.SettleOptions{
		PollInterval:    c.Settle.PollInterval,
		MaxPollInterval: c.Settle.MaxPollInterval,
		Timeout:         c.Settle.Timeout,
	}
}
