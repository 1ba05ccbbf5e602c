package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TFMV/rawlayer/pkg/anomaly"
	"github.com/TFMV/rawlayer/pkg/generate"
	"github.com/TFMV/rawlayer/pkg/schema"
)

func newPresetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the scale presets and the default anomaly rates",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			names := schema.Names()

			fmt.Fprintf(w, "%-6s", "scale")
			for _, table := range names {
				fmt.Fprintf(w, " %11s", table)
			}
			fmt.Fprintln(w)
			for _, preset := range generate.PresetNames() {
				fmt.Fprintf(w, "%-6s", preset)
				for _, table := range names {
					fmt.Fprintf(w, " %11d", generate.Presets[preset][table])
				}
				fmt.Fprintln(w)
			}

			fmt.Fprintln(w, "\nanomaly rules:")
			for _, r := range anomaly.Defaults() {
				fmt.Fprintf(w, "  %-22s %-9s %-12s %.4f\n", r.Name, r.Entity, r.Field, r.Probability)
			}
		},
	}
}
