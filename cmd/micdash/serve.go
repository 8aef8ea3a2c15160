package main

import (
	"github.com/spf13/cobra"

	"micdash/internal/blob"
	"micdash/internal/config"
	"micdash/internal/metrics"
	"micdash/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard, dataset API and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := blob.Open(ctx, a.cfg.Blob)
			if err != nil {
				return err
			}
			a.log.Info().Str("driver", string(store.Driver())).Msg("artifact store ready")

			srv, err := server.New(server.Config{
				Addr:            a.cfg.HTTP.Addr,
				ShutdownTimeout: a.cfg.HTTP.ShutdownTimeout,
				QueueSize:       a.cfg.Export.QueueSize,
			}, server.Deps{
				Catalog: a.catalog,
				Layout:  a.layout,
				Store:   store,
				Metrics: metrics.New(),
				Logger:  a.log,
			})
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	cmd.Flags().String("blob-driver", "fs", "artifact store: fs, s3 or memory")
	cmd.Flags().String("blob-root", "./blobdata", "artifact directory for the fs driver")
	_ = a.v.BindPFlag(config.KeyHTTPAddr, cmd.Flags().Lookup("addr"))
	_ = a.v.BindPFlag(config.KeyBlobDriver, cmd.Flags().Lookup("blob-driver"))
	_ = a.v.BindPFlag(config.KeyBlobFSRoot, cmd.Flags().Lookup("blob-root"))
	return cmd
}
