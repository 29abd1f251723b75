package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/emergingrobotics/remote-offload/pkg/config"
	"github.com/emergingrobotics/remote-offload/pkg/device"
	"github.com/emergingrobotics/remote-offload/pkg/engine"
	"github.com/emergingrobotics/remote-offload/pkg/offload"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run repeated inference on one frame and report latency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Model == "" {
				return fmt.Errorf("%w: no model given", config.ErrInvalid)
			}
			path, _ := cmd.Flags().GetString("frame")
			seed, _ := cmd.Flags().GetInt64("seed")
			frame, err := loadFrame(cfg, path, seed)
			if err != nil {
				return err
			}

			logger := newLogger(cmd, cfg)
			mgr, sel, err := openManager(cfg, logger)
			if err != nil {
				return err
			}
			defer mgr.Close()

			s, err := openSession(cfg, mgr, sel, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.PrepareInput(frame); err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			for i := 0; i < cfg.Iterations; i++ {
				if err := s.RunInference(ctx); err != nil {
					if ctx.Err() != nil {
						return err
					}
					logger.Warn("inference failed", "iteration", i, "error", err)
				}
			}

			stats := s.Stats()
			table := newTable(cmd)
			table.SetHeader([]string{"NETWORK", "DEVICE", "INFERENCES", "FAILURES", "AVG", "MIN", "MAX"})
			table.Append([]string{
				s.Network().Name(),
				sel.String(),
				strconv.Itoa(stats.Inferences),
				strconv.Itoa(stats.Failures),
				stats.Average().String(),
				stats.Min.String(),
				stats.Max.String(),
			})
			table.Render()

			if stats.Inferences == 0 {
				return errors.New("every inference failed")
			}
			return nil
		},
	}
	addFrameFlags(cmd)
	cmd.Flags().Int("iterations", 0, "Number of inferences to run")
	return cmd
}

// openSession creates a session and brings it to ModelBound
func openSession(cfg *config.Config, mgr *device.Manager, sel device.Selector, logger *slog.Logger) (*offload.Session, error) {
	color, err := cfg.ColorFormat()
	if err != nil {
		return nil, err
	}
	resize, err := cfg.ResizeAlgorithm()
	if err != nil {
		return nil, err
	}

	s, err := offload.New(mgr, engine.New(engine.WithLogger(logger)),
		offload.WithFrameSize(cfg.Frame.Width, cfg.Frame.Height),
		offload.WithSelector(sel),
		offload.WithColorFormat(color),
		offload.WithResizeAlgorithm(resize),
		offload.WithInputName(cfg.InputName),
		offload.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	if err := s.Init(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.LoadModel(cfg.Model); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
