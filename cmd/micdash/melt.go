package main

import (
	"github.com/spf13/cobra"

	"micdash/internal/mic"
	"micdash/internal/render"
	"micdash/pkg/frame"
)

func newMeltCmd(a *app) *cobra.Command {
	spec := mic.MeltSpec()
	cmd := &cobra.Command{
		Use:   "melt",
		Short: "Print the MIC table reshaped to long form as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			long, err := frame.Melt(mic.Wide(), spec)
			if err != nil {
				return err
			}
			a.log.Debug().Int("rows", long.Len()).Strs("id", spec.IDColumns).Msg("melted")
			return render.WriteCSV(cmd.OutOrStdout(), long)
		},
	}
	cmd.Flags().StringVar(&spec.VarName, "var-name", spec.VarName, "name of the measurement-name column")
	cmd.Flags().StringVar(&spec.ValueName, "value-name", spec.ValueName, "name of the value column")
	cmd.Flags().StringSliceVar(&spec.ValueColumns, "value", spec.ValueColumns, "measurement columns to unpivot")
	return cmd
}
