package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/emergingrobotics/remote-offload/pkg/device"
	"github.com/emergingrobotics/remote-offload/pkg/driver"
	"github.com/emergingrobotics/remote-offload/pkg/infer"
	"github.com/emergingrobotics/remote-offload/pkg/tensor"
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid configuration")

// FrameConfig is the raw frame geometry
type FrameConfig struct {
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	ColorFormat string `yaml:"color_format"`
}

// SimulatorConfig sizes the simulated device
type SimulatorConfig struct {
	MemoryBytes uint64 `yaml:"memory_bytes"`
	Slots       int    `yaml:"slots"`
}

// Config holds the settings of an offload run
type Config struct {
	Device         string          `yaml:"device"`
	Model          string          `yaml:"model"`
	ReferenceModel string          `yaml:"reference_model"`
	Frame          FrameConfig     `yaml:"frame"`
	Resize         string          `yaml:"resize"`
	InputName      string          `yaml:"input_name"`
	OutputName     string          `yaml:"output_name"`
	TopK           int             `yaml:"topk"`
	Iterations     int             `yaml:"iterations"`
	LogLevel       string          `yaml:"log_level"`
	Simulator      SimulatorConfig `yaml:"simulator"`
}

// Default returns a full-HD NV12 configuration on the simulator
func Default() *Config {
	return &Config{
		Device: driver.SimulatorKind,
		Frame: FrameConfig{
			Width:       1920,
			Height:      1080,
			ColorFormat: "NV12",
		},
		Resize:     "bilinear",
		TopK:       14,
		Iterations: 100,
		LogLevel:   "info",
		Simulator: SimulatorConfig{
			MemoryBytes: driver.DefaultSimulatorMemory,
			Slots:       driver.DefaultSimulatorSlots,
		},
	}
}

// Load reads a YAML file over the defaults and applies environment
// overrides. An empty path loads the defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from OFFLOAD_* variables
func (c *Config) ApplyEnv() {
	if v := String(EnvDevice)(); v != "" {
		c.Device = v
	}
	if v := String(EnvModel)(); v != "" {
		c.Model = v
	}
	if v := String(EnvReferenceModel)(); v != "" {
		c.ReferenceModel = v
	}
	if v := String(EnvLogLevel)(); v != "" {
		c.LogLevel = v
	}
	c.Frame.Width = Int(EnvFrameWidth, c.Frame.Width)()
	c.Frame.Height = Int(EnvFrameHeight, c.Frame.Height)()
	c.TopK = Int(EnvTopK, c.TopK)()
	c.Iterations = Int(EnvIterations, c.Iterations)()
}

// Validate checks every field that has a fixed domain
func (c *Config) Validate() error {
	var errs []error
	if _, err := device.ParseSelector(c.Device); err != nil {
		errs = append(errs, err)
	}
	color, err := tensor.ParseColorFormat(c.Frame.ColorFormat)
	if err != nil {
		errs = append(errs, err)
	}
	if c.Frame.Width <= 0 || c.Frame.Height <= 0 {
		errs = append(errs, fmt.Errorf("frame size %dx%d must be positive", c.Frame.Width, c.Frame.Height))
	} else if color.Subsampled() && (c.Frame.Width%2 != 0 || c.Frame.Height%2 != 0) {
		errs = append(errs, fmt.Errorf("%s frames need even dimensions, got %dx%d", color, c.Frame.Width, c.Frame.Height))
	}
	if _, err := infer.ParseResizeAlgorithm(c.Resize); err != nil {
		errs = append(errs, err)
	}
	if c.TopK < 1 {
		errs = append(errs, fmt.Errorf("topk %d must be at least 1", c.TopK))
	}
	if c.Iterations < 1 {
		errs = append(errs, fmt.Errorf("iterations %d must be at least 1", c.Iterations))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Selector returns the parsed device selector
func (c *Config) Selector() (device.Selector, error) {
	return device.ParseSelector(c.Device)
}

// ColorFormat returns the parsed frame color format
func (c *Config) ColorFormat() (tensor.ColorFormat, error) {
	return tensor.ParseColorFormat(c.Frame.ColorFormat)
}

// ResizeAlgorithm returns the parsed resize algorithm
func (c *Config) ResizeAlgorithm() (infer.ResizeAlgorithm, error) {
	return infer.ParseResizeAlgorithm(c.Resize)
}

// Level returns the log level, Info when unset or unknown
func (c *Config) Level() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

// SimulatorConfig returns the simulated device settings
func (c *Config) SimulatorConfig() driver.SimulatorConfig {
	return driver.SimulatorConfig{
		MemoryBytes: c.Simulator.MemoryBytes,
		Slots:       c.Simulator.Slots,
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
