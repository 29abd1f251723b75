package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/emergingrobotics/remote-offload/pkg/config"
	"github.com/emergingrobotics/remote-offload/pkg/infer"
	"github.com/emergingrobotics/remote-offload/pkg/tensor"
	"github.com/emergingrobotics/remote-offload/pkg/validate"
)

var errMismatch = errors.New("offload and reference outputs disagree")

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compare the offloaded top-K classes against a host reference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Model == "" {
				return fmt.Errorf("%w: no model given", config.ErrInvalid)
			}
			refModel := cfg.ReferenceModel
			if refModel == "" {
				refModel = cfg.Model
			}
			path, _ := cmd.Flags().GetString("frame")
			seed, _ := cmd.Flags().GetInt64("seed")
			frame, err := loadFrame(cfg, path, seed)
			if err != nil {
				return err
			}
			color, _ := cfg.ColorFormat()
			resize, _ := cfg.ResizeAlgorithm()

			logger := newLogger(cmd, cfg)
			mgr, sel, err := openManager(cfg, logger)
			if err != nil {
				return err
			}
			defer mgr.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			var offloaded, reference *infer.Tensor
			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				s, err := openSession(cfg, mgr, sel, logger)
				if err != nil {
					return err
				}
				defer s.Close()
				if err := s.PrepareInput(frame); err != nil {
					return err
				}
				if err := s.RunInference(ctx); err != nil {
					return err
				}
				name := cfg.OutputName
				if name == "" {
					name = s.Network().Outputs()[0].Name
				}
				offloaded, err = s.Output(name)
				return err
			})

			g.Go(func() error {
				h := validate.NewHarness(validate.WithLogger(logger), validate.WithOutputName(cfg.OutputName))
				var err error
				reference, err = h.ComputeReference(ctx, refModel, validate.Input{
					Frame:           frame,
					Width:           cfg.Frame.Width,
					Height:          cfg.Frame.Height,
					ColorFormat:     color,
					Precision:       tensor.PrecisionU8,
					ResizeAlgorithm: resize,
				})
				return err
			})

			if err := g.Wait(); err != nil {
				return err
			}

			tol, _ := cmd.Flags().GetFloat64("tolerance")
			report, err := validate.CompareWithin(offloaded, reference, cfg.TopK, tol)
			if err != nil {
				return err
			}

			table := newTable(cmd)
			table.SetHeader([]string{"RANK", "OFFLOAD", "REFERENCE"})
			for i := range report.Offload {
				ref := "-"
				if i < len(report.Reference) {
					ref = strconv.Itoa(report.Reference[i])
				}
				table.Append([]string{strconv.Itoa(i + 1), strconv.Itoa(report.Offload[i]), ref})
			}
			table.Render()
			fmt.Fprintln(cmd.OutOrStdout(), report)

			if !report.Match {
				return errMismatch
			}
			return nil
		},
	}
	addFrameFlags(cmd)
	cmd.Flags().String("reference-model", "", "Blob evaluated on the host (defaults to --model)")
	cmd.Flags().Int("topk", 0, "Number of top classes compared")
	cmd.Flags().Float64("tolerance", 0, "Score distance from the k-th reference class accepted as a tie")
	return cmd
}
