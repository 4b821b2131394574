package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"montero/internal/auth"
)

func newTokenCommand(opts *options) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an operator or service account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not configured")
			}
			token, err := auth.GenerateToken(cfg.JWTSecret, subject, role, ttl)
			if err != nil {
				return fmt.Errorf("role %q: %w", role, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject recorded as the audit actor")
	cmd.Flags().StringVar(&role, "role", auth.RoleOperator, "operator, analyst, admin or service")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
