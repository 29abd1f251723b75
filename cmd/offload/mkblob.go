package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emergingrobotics/remote-offload/pkg/blob"
	"github.com/emergingrobotics/remote-offload/pkg/tensor"
)

func newMkblobCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkblob <path>",
		Short: "Write a seeded random classifier blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			seed, _ := cmd.Flags().GetInt64("seed")
			classes, _ := cmd.Flags().GetInt("classes")
			width, _ := cmd.Flags().GetInt("input-width")
			height, _ := cmd.Flags().GetInt("input-height")
			archs, _ := cmd.Flags().GetStringSlice("arch")
			fp16, _ := cmd.Flags().GetBool("fp16")
			prec, _ := cmd.Flags().GetString("output-precision")

			precision, err := tensor.ParsePrecision(prec)
			if err != nil {
				return err
			}
			if precision != tensor.PrecisionU8 && precision != tensor.PrecisionFP32 {
				return fmt.Errorf("output precision must be FP32 or U8, got %s", precision)
			}
			encoding := blob.WeightsFP32
			if fp16 {
				encoding = blob.WeightsFP16
			}

			n := blob.Random(seed, blob.RandomOptions{
				Name:            name,
				Archs:           archs,
				InputWidth:      width,
				InputHeight:     height,
				Classes:         classes,
				OutputPrecision: precision,
				Encoding:        encoding,
			})
			if err := blob.WriteFile(args[0], n); err != nil {
				return err
			}

			in, _ := n.Input()
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %s input %s, %d classes %s, archs %v\n",
				args[0], n.Name, in.Shape, n.Classes, n.Outputs[0].Precision, n.Archs)
			return nil
		},
	}
	cmd.Flags().String("name", "classifier", "Network name")
	cmd.Flags().Int64("seed", 1, "Weight seed")
	cmd.Flags().Int("classes", 100, "Number of output classes")
	cmd.Flags().Int("input-width", 32, "Network input width")
	cmd.Flags().Int("input-height", 32, "Network input height")
	cmd.Flags().StringSlice("arch", []string{blob.ArchAny}, "Device types the blob runs on")
	cmd.Flags().Bool("fp16", false, "Store weights in half precision")
	cmd.Flags().String("output-precision", "FP32", "Output precision (FP32 or U8)")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "offload version %s\n", Version)
			fmt.Fprintf(out, "  Build time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Go version: %s\n", GoVersion)
		},
	}
}
