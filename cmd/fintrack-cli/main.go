package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/state"
)

// app carries what every subcommand needs. Tests build it with in-memory
// backends.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	out     io.Writer
	backend *backend.Result
}

func main() {
	a := &app{out: os.Stdout}
	root := newRootCmd(a)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "fintrack-cli",
		Short:         "fintrack command-line interface",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg != nil {
				return nil
			}
			if envFile != "" {
				config.LoadEnvFile(envFile)
			}
			cfg, err := cli.LoadConfig()
			if err != nil {
				return err
			}
			lc := cfg.LoggerConfig(log.ComponentCLI)
			lc.Output = cmd.ErrOrStderr()
			a.cfg = cfg
			a.logger = log.New(lc)
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.backend != nil {
				return a.backend.Cleanup()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Load settings from this .env file first")

	root.AddCommand(
		newNormalizeCmd(a),
		newReportCmd(a),
		newListCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newSyncCmd(a),
	)
	return root
}

// open returns the store of namespace, opening the backends on first use.
func (a *app) open(ctx context.Context, namespace string) (*state.Store, error) {
	if a.backend == nil {
		res, err := cli.OpenBackends(ctx, a.cfg, a.logger)
		if err != nil {
			return nil, err
		}
		a.backend = res
	}
	return state.Open(ctx, namespace, state.Options{
		Accounts:  a.cfg.AccountSet(),
		Persister: a.backend.Blobs,
		Logger:    a.logger,
	})
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
