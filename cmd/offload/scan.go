package main

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/emergingrobotics/remote-offload/pkg/device"
	"github.com/emergingrobotics/remote-offload/pkg/driver"
)

func newScanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List accelerator and simulated devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var data [][]string
			for _, kind := range device.SimulatedKinds {
				data = append(data, []string{kind + ".0", kind, "simulator", "-"})
			}

			nodes, err := device.Scan()
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "hardware scan failed: %v\n", err)
			}
			for _, n := range nodes {
				sel := device.Selector{Kind: driver.HardwareKind, Index: n.Index}
				data = append(data, []string{sel.String(), driver.HardwareKind, n.Name, n.Path})
			}

			table := newTable(cmd)
			table.SetHeader([]string{"SELECTOR", "TYPE", "NAME", "PATH"})
			table.AppendBulk(data)
			table.Render()
			return nil
		},
	}
}

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info [selector]",
		Short: "Show information about a device",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Device = args[0]
			}
			mgr, sel, err := openManager(cfg, newLogger(cmd, cfg))
			if err != nil {
				return err
			}
			defer mgr.Close()

			info := mgr.Info()
			memory := "unknown"
			if info.MemoryBytes > 0 {
				memory = fmt.Sprintf("%d MiB", info.MemoryBytes>>20)
			}

			table := newTable(cmd)
			table.AppendBulk([][]string{
				{"Selector", sel.String()},
				{"Type", info.Kind},
				{"Name", info.Name},
				{"Path", info.Path},
				{"Version", info.Version},
				{"Slots", strconv.Itoa(info.Slots)},
				{"Memory", memory},
			})
			table.Render()
			return nil
		},
	}
}

func newTable(cmd *cobra.Command) *tablewriter.Table {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	return table
}
