package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"montero/internal/app/server"
	"montero/internal/platform/db"
	"montero/internal/platform/logger"
)

func newServeCommand(opts *options) *cobra.Command {
	var embedded bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the maintenance scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("embedded-workers") {
				cfg.RPA.EmbeddedWorkers = embedded
			}
			app, err := server.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Serve(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&embedded, "embedded-workers", false, "also run the RPA worker pool in this process")
	return cmd
}

func newWorkerCommand(opts *options) *cobra.Command {
	var (
		platforms string
		poolSize  int
		workerID  string
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run RPA workers against the shared job queue",
		Long: `Claims queued portal jobs and drives them through a headless browser.
Several worker processes may share one database; each claim is exclusive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if platforms != "" {
				cfg.RPA.Platforms = splitList(platforms)
			}
			if poolSize > 0 {
				cfg.RPA.PoolSize = poolSize
			}
			if workerID != "" {
				cfg.RPA.WorkerID = workerID
			}
			app, err := server.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Pool.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&platforms, "platforms", "", "comma separated platforms this worker serves (default all)")
	cmd.Flags().IntVar(&poolSize, "pool-size", 0, "concurrent workers in this process")
	cmd.Flags().StringVar(&workerID, "worker-id", "", "worker identity recorded on claimed jobs")
	return cmd
}

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			conn, err := db.Open(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := db.Migrate(cmd.Context(), conn); err != nil {
				return err
			}
			logger.Named("cli").Info().Str("store", string(conn.Dialect())).Msg("migrations applied")
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
