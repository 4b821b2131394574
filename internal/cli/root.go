// Package cli holds the montero command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"montero/internal/platform/config"
	"montero/internal/platform/logger"
)

type options struct {
	configPath string
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "montero",
		Short:         "PILA contribution engine and portal automation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("MONTERO_CONFIG"), "path to a TOML config file")

	root.AddCommand(
		newServeCommand(opts),
		newWorkerCommand(opts),
		newMigrateCommand(opts),
		newVaultCommand(opts),
		newPilaCommand(opts),
		newParamsCommand(opts),
		newTokenCommand(opts),
	)
	return root
}

// load reads the config file and environment, then initializes logging.
func (o *options) load() (config.Config, error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "montero"})
	return cfg, nil
}

// Execute runs the command tree until SIGINT or SIGTERM and returns the exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
