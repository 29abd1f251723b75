package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/emergingrobotics/remote-offload/pkg/config"
	"github.com/emergingrobotics/remote-offload/pkg/device"
	"github.com/emergingrobotics/remote-offload/pkg/tensor"
)

func newRootCommand() *cobra.Command {
	cobra.EnableCommandSorting = false

	root := &cobra.Command{
		Use:           "offload",
		Short:         "Run inference on frames held in device memory",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.PersistentFlags().String("config", "", "YAML configuration file")
	root.PersistentFlags().String("device", "", "Device selector, e.g. SIM or HAILO.0")
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newScanCommand(),
		newInfoCommand(),
		newRunCommand(),
		newValidateCommand(),
		newMkblobCommand(),
		newVersionCommand(),
	)
	return root
}

// flagValue looks a flag up on the command or any parent
func flagValue(cmd *cobra.Command, name string) (string, bool) {
	f := cmd.Flag(name)
	if f == nil {
		return "", false
	}
	return f.Value.String(), f.Changed
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}

// loadConfig layers the config file, the environment and the command flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := flagValue(cmd, "config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if v, ok := flagValue(cmd, "device"); ok {
		cfg.Device = v
	}
	if v, ok := flagValue(cmd, "model"); ok {
		cfg.Model = v
	}
	if v, ok := flagValue(cmd, "reference-model"); ok {
		cfg.ReferenceModel = v
	}
	if v, ok := flagValue(cmd, "color"); ok {
		cfg.Frame.ColorFormat = v
	}
	if v, ok := flagValue(cmd, "resize"); ok {
		cfg.Resize = v
	}
	if v, ok := flagValue(cmd, "input"); ok {
		cfg.InputName = v
	}
	if v, ok := flagValue(cmd, "output"); ok {
		cfg.OutputName = v
	}
	if changed(cmd, "width") {
		cfg.Frame.Width, _ = cmd.Flags().GetInt("width")
	}
	if changed(cmd, "height") {
		cfg.Frame.Height, _ = cmd.Flags().GetInt("height")
	}
	if changed(cmd, "iterations") {
		cfg.Iterations, _ = cmd.Flags().GetInt("iterations")
	}
	if changed(cmd, "topk") {
		cfg.TopK, _ = cmd.Flags().GetInt("topk")
	}
	if verbose, _ := flagValue(cmd, "verbose"); verbose == "true" {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.Level()}))
}

func openManager(cfg *config.Config, logger *slog.Logger) (*device.Manager, device.Selector, error) {
	sel, err := cfg.Selector()
	if err != nil {
		return nil, device.Selector{}, err
	}
	mgr, err := device.OpenManager(sel, device.OpenOptions{Simulator: cfg.SimulatorConfig()}, device.WithLogger(logger))
	if err != nil {
		return nil, device.Selector{}, err
	}
	return mgr, sel, nil
}

// frameSize is the byte size of one raw frame of the configured geometry
func frameSize(cfg *config.Config) (int, error) {
	color, err := cfg.ColorFormat()
	if err != nil {
		return 0, err
	}
	d := tensor.Desc{
		Shape:       tensor.Shape{N: 1, C: 3, H: cfg.Frame.Height, W: cfg.Frame.Width},
		Precision:   tensor.PrecisionU8,
		Layout:      tensor.LayoutNCHW,
		ColorFormat: color,
	}
	return int(d.RequiredBytes()), nil
}

// loadFrame reads a raw frame from path, or synthesizes one from seed when
// path is empty
func loadFrame(cfg *config.Config, path string, seed int64) ([]byte, error) {
	size, err := frameSize(cfg)
	if err != nil {
		return nil, err
	}
	if path == "" {
		frame := make([]byte, size)
		rand.New(rand.NewSource(seed)).Read(frame)
		return frame, nil
	}

	frame, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	if len(frame) != size {
		return nil, fmt.Errorf("frame %s is %d bytes, %dx%d %s needs %d",
			path, len(frame), cfg.Frame.Width, cfg.Frame.Height, cfg.Frame.ColorFormat, size)
	}
	return frame, nil
}

// addFrameFlags registers the flags shared by run and validate
func addFrameFlags(cmd *cobra.Command) {
	cmd.Flags().String("model", "", "Compiled network blob")
	cmd.Flags().String("frame", "", "Raw frame file (random frame when empty)")
	cmd.Flags().Int64("seed", 1, "Seed of the random frame")
	cmd.Flags().Int("width", 0, "Frame width")
	cmd.Flags().Int("height", 0, "Frame height")
	cmd.Flags().String("color", "", "Frame color format (NV12, I420, RGB, BGR)")
	cmd.Flags().String("resize", "", "Resize algorithm (none, bilinear, area)")
	cmd.Flags().String("input", "", "Network input to bind frames to")
	cmd.Flags().String("output", "", "Network output to read")
}
