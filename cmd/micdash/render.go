package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"micdash/internal/core"
	"micdash/internal/render"
	"micdash/pkg/datasetapi"
)

func newRenderCmd(a *app) *cobra.Command {
	var (
		formatName string
		dataset    string
		output     string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Write one export artifact of the MIC table",
		Example: `  micdash render --format png -o mic.png
  micdash render --format csv --dataset wide`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, ok := datasetapi.ParseFormat(formatName)
			if !ok {
				return fmt.Errorf("unknown format %q", formatName)
			}
			slug, err := datasetSlug(dataset)
			if err != nil {
				return err
			}
			tmpl, ok := a.catalog.ResolveDatasetTemplate(slug)
			if !ok {
				return errDatasetMissing(slug)
			}
			result, err := tmpl.Run(cmd.Context(), format)
			if err != nil {
				return err
			}
			in := render.Input{Template: tmpl.Descriptor(), Result: result}
			if tmpl.Chart != "" {
				if spec, ok := a.layout.Chart(tmpl.Chart); ok {
					in.Chart = &spec
				}
			}

			started := time.Now()
			payload, err := render.Materialize(cmd.Context(), format, in)
			if err != nil {
				return err
			}
			if err := writeOutput(cmd.OutOrStdout(), output, payload); err != nil {
				return err
			}
			a.log.Debug().Str("format", string(format)).Str("template", slug).
				Int("bytes", len(payload)).Dur("took", time.Since(started)).Msg("rendered")
			return nil
		},
	}
	cmd.Flags().StringVarP(&formatName, "format", "f", "html", "artifact format: json, csv, html, png, pdf, sqlite")
	cmd.Flags().StringVarP(&dataset, "dataset", "d", "long", "table to render: long or wide")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")
	return cmd
}

func datasetSlug(name string) (string, error) {
	switch name {
	case "long":
		return core.LongSlug, nil
	case "wide":
		return core.WideSlug, nil
	default:
		return "", fmt.Errorf("unknown dataset %q, want long or wide", name)
	}
}

func writeOutput(stdout io.Writer, path string, payload []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(payload)
		return err
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
