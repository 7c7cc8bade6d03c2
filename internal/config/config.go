package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/NodePath81/simstat/internal/util"
	"gopkg.in/yaml.v3"
)

const (
	defaultSegmentSize = 536
	defaultProtocol    = 6
	defaultMinPackets  = 1
	defaultMinWeight   = 1
	defaultFormat      = FormatText

	FormatText = "text"
	FormatJSON = "json"

	EnvCwndFile    = "SIMSTAT_CWND_FILE"
	EnvFlowmonFile = "SIMSTAT_FLOWMON_FILE"
	EnvLogFile     = "SIMSTAT_LOG_FILE"
	EnvFormat      = "SIMSTAT_FORMAT"
	EnvPromFile    = "SIMSTAT_PROM_FILE"
)

// Size is a byte count that accepts "536", "1.5kb" or a bare YAML integer.
type Size uint32

func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("size must be a scalar")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseSize(raw)
	if err != nil {
		return err
	}
	*s = Size(parsed)
	return nil
}

type Config struct {
	Cwnd    CwndConfig    `yaml:"cwnd"`
	Flowmon FlowmonConfig `yaml:"flowmon"`
	MeanErr MeanErrConfig `yaml:"meanerr"`
	Output  OutputConfig  `yaml:"output"`
	Log     LogConfig     `yaml:"log"`
}

type CwndConfig struct {
	Enabled     *bool  `yaml:"enabled"`
	File        string `yaml:"file"`
	SegmentSize *Size  `yaml:"segment_size"`
}

type FlowmonConfig struct {
	Enabled    *bool  `yaml:"enabled"`
	File       string `yaml:"file"`
	Protocol   *int   `yaml:"protocol"`
	MinPackets *int64 `yaml:"min_packets"`
}

type MeanErrConfig struct {
	Enabled   *bool  `yaml:"enabled"`
	File      string `yaml:"file"`
	MinWeight *int64 `yaml:"min_weight"`
}

type OutputConfig struct {
	Format   string `yaml:"format"`
	PromFile string `yaml:"prom_file"`
}

type LogConfig struct {
	Verbose bool `yaml:"verbose"`
}

func (c CwndConfig) IsEnabled() bool {
	return util.BoolValue(c.Enabled, c.File != "")
}

func (c FlowmonConfig) IsEnabled() bool {
	return util.BoolValue(c.Enabled, c.File != "")
}

func (c MeanErrConfig) IsEnabled() bool {
	return util.BoolValue(c.Enabled, c.File != "")
}

// AnyEnabled reports whether at least one analysis would run.
func (c Config) AnyEnabled() bool {
	return c.Cwnd.IsEnabled() || c.Flowmon.IsEnabled() || c.MeanErr.IsEnabled()
}

// Default returns a config with every default applied and no inputs set.
func Default() Config {
	var cfg Config
	cfg.setDefaults()
	return cfg
}

// LoadConfig reads path, applies defaults and environment overrides, and
// validates the result.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	cfg.setDefaults()
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides inputs and output settings from the environment.
// lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvCwndFile); ok && v != "" {
		c.Cwnd.File = v
	}
	if v, ok := lookup(EnvFlowmonFile); ok && v != "" {
		c.Flowmon.File = v
	}
	if v, ok := lookup(EnvLogFile); ok && v != "" {
		c.MeanErr.File = v
	}
	if v, ok := lookup(EnvFormat); ok && v != "" {
		c.Output.Format = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvPromFile); ok && v != "" {
		c.Output.PromFile = v
	}
}

func (c *Config) setDefaults() {
	if c.Cwnd.SegmentSize == nil {
		val := Size(defaultSegmentSize)
		c.Cwnd.SegmentSize = &val
	}
	if c.Flowmon.Protocol == nil {
		val := defaultProtocol
		c.Flowmon.Protocol = &val
	}
	if c.Flowmon.MinPackets == nil {
		val := int64(defaultMinPackets)
		c.Flowmon.MinPackets = &val
	}
	if c.MeanErr.MinWeight == nil {
		val := int64(defaultMinWeight)
		c.MeanErr.MinWeight = &val
	}
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if c.Output.Format == "" {
		c.Output.Format = defaultFormat
	}
}

// Validate checks option ranges and that every enabled analysis has an input.
func (c *Config) Validate() error {
	if c.Output.Format != FormatText && c.Output.Format != FormatJSON {
		return fmt.Errorf("output.format must be %s or %s", FormatText, FormatJSON)
	}
	if p := *c.Flowmon.Protocol; p < 0 || p > 255 {
		return errors.New("flowmon.protocol must be in 0..255")
	}
	if *c.Flowmon.MinPackets < 0 {
		return errors.New("flowmon.min_packets must be >= 0")
	}
	if *c.MeanErr.MinWeight < 0 {
		return errors.New("meanerr.min_weight must be >= 0")
	}
	if c.Cwnd.IsEnabled() && c.Cwnd.File == "" {
		return fmt.Errorf("cwnd.file must be set (or %s)", EnvCwndFile)
	}
	if c.Flowmon.IsEnabled() && c.Flowmon.File == "" {
		return fmt.Errorf("flowmon.file must be set (or %s)", EnvFlowmonFile)
	}
	if c.MeanErr.IsEnabled() && c.MeanErr.File == "" {
		return fmt.Errorf("meanerr.file must be set (or %s)", EnvLogFile)
	}
	return nil
}

// SegmentSizeBytes returns the configured segment size as an int.
func (c CwndConfig) SegmentSizeBytes() int {
	if c.SegmentSize == nil {
		return defaultSegmentSize
	}
	return int(*c.SegmentSize)
}

// ParseProtocol accepts a protocol number or the names tcp and udp.
func ParseProtocol(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tcp":
		return 6, nil
	case "udp":
		return 17, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 || n > 255 {
		return 0, fmt.Errorf("invalid protocol %q", s)
	}
	return n, nil
}
