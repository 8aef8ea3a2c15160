package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"micdash/internal/dashboard"
)

func newShowCmd(a *app) *cobra.Command {
	var opts dashboard.TerminalOptions
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the dashboard to the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tmpl, ok := a.catalog.ResolveDatasetTemplate(a.layout.Dataset)
			if !ok {
				return errDatasetMissing(a.layout.Dataset)
			}
			result, err := tmpl.Run(cmd.Context(), tmpl.OutputFormats[0])
			if err != nil {
				return err
			}
			return dashboard.RenderTerminal(cmd.OutOrStdout(), a.layout, result.Table(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.Width, "width", 80, "wrap width")
	cmd.Flags().StringVar(&opts.Style, "style", "auto", "glamour style: auto, dark, light, notty")
	return cmd
}

func errDatasetMissing(slug string) error {
	return fmt.Errorf("dataset template %s not found", slug)
}
