// Command micdash serves and renders the antibiotic MIC dashboard.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"micdash/internal/config"
	"micdash/internal/core"
	"micdash/internal/dashboard"
	"micdash/internal/logging"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        config.Config
	log        *logging.Logger
	catalog    *core.Catalog
	layout     dashboard.Layout
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}
	root := &cobra.Command{
		Use:           "micdash",
		Short:         "Antibiotic effectiveness (MIC) dashboard",
		Long:          "micdash reshapes Burtin's MIC table to long form and renders it as a web dashboard, terminal report or export artifact.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default ./micdash.yaml when present)")
	flags.String("log-level", "info", "log level: trace, debug, info, warn, error")
	flags.String("env", "development", "environment: development logs to the console, anything else as JSON")
	_ = a.v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	_ = a.v.BindPFlag(config.KeyEnv, flags.Lookup("env"))

	root.AddCommand(
		newServeCmd(a),
		newRenderCmd(a),
		newShowCmd(a),
		newMeltCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(logging.Config{Env: cfg.App.Env, Level: cfg.Log.Level, Writer: cmd.ErrOrStderr()})

	if a.catalog, err = core.NewMICCatalog(); err != nil {
		return fmt.Errorf("build catalog: %w", err)
	}
	if a.layout, err = dashboard.Default(); err != nil {
		return fmt.Errorf("load dashboard: %w", err)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
