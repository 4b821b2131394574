package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"montero/internal/domain/audit"
	"montero/internal/domain/vault"
	"montero/internal/platform/config"
	"montero/internal/platform/db"
)

func newVaultCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Administer encrypted portal credentials",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(
		newVaultPutCommand(opts),
		newVaultGetCommand(opts),
		newVaultListCommand(opts),
		newVaultDeleteCommand(opts),
		newVaultMigrateCommand(opts),
	)
	return cmd
}

// openStore connects and, unless disabled, migrates the configured database.
func openStore(ctx context.Context, cfg config.Config) (db.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := db.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, conn); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

type vaultSession struct {
	conn  db.DB
	vault *vault.Service
	audit *audit.Service
}

func (o *options) openVault(ctx context.Context) (*vaultSession, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	conn, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc, err := vault.New(vault.NewStore(conn), cfg.Vault.MasterKey, cfg.Vault.KeySalt)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &vaultSession{conn: conn, vault: svc, audit: audit.New(conn)}, nil
}

func (s *vaultSession) record(ctx context.Context, action, platform string, after any) error {
	return s.audit.Record(ctx, cliActor(), action, "credential", platform, "", "", nil, after)
}

func cliActor() string {
	if u := os.Getenv("USER"); u != "" {
		return "cli:" + u
	}
	return "cli"
}

func newVaultPutCommand(opts *options) *cobra.Command {
	var (
		in            vault.CredentialInput
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "put PLATFORM",
		Short: "Store or replace the credential for a platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Platform = args[0]
			if passwordStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				in.Password = strings.TrimRight(line, "\r\n")
			}

			s, err := opts.openVault(cmd.Context())
			if err != nil {
				return err
			}
			defer s.conn.Close()
			if err := s.vault.Put(cmd.Context(), in); err != nil {
				return err
			}
			if err := s.record(cmd.Context(), "vault.credential.put", in.Platform, map[string]string{"platform": in.Platform, "url": in.URL}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credential for %s stored\n", in.Platform)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in.Username, "username", "u", "", "portal username")
	cmd.Flags().StringVarP(&in.Password, "password", "p", "", "portal password")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	cmd.Flags().StringVar(&in.URL, "url", "", "portal base URL")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "free text notes")
	return cmd
}

func newVaultGetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get PLATFORM",
		Short: "Decrypt and print a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openVault(cmd.Context())
			if err != nil {
				return err
			}
			defer s.conn.Close()
			cred, err := s.vault.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := s.record(cmd.Context(), "vault.credential.reveal", cred.Platform, nil); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "platform: %s\n", cred.Platform)
			fmt.Fprintf(out, "username: %s\n", cred.Username)
			fmt.Fprintf(out, "password: %s\n", cred.Password)
			if cred.URL != "" {
				fmt.Fprintf(out, "url:      %s\n", cred.URL)
			}
			return nil
		},
	}
}

func newVaultListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored credentials without secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openVault(cmd.Context())
			if err != nil {
				return err
			}
			defer s.conn.Close()
			items, err := s.vault.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PLATFORM\tURL\tENCRYPTED\tUPDATED")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", it.Platform, it.URL, it.Encrypted, it.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func newVaultDeleteCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete PLATFORM",
		Short: "Remove a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openVault(cmd.Context())
			if err != nil {
				return err
			}
			defer s.conn.Close()
			if err := s.vault.Delete(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, vault.ErrCredentialNotFound) {
					return fmt.Errorf("no credential stored for %s", args[0])
				}
				return err
			}
			if err := s.record(cmd.Context(), "vault.credential.delete", args[0], nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credential for %s deleted\n", args[0])
			return nil
		},
	}
}

func newVaultMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Encrypt credentials that were stored before tagging",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openVault(cmd.Context())
			if err != nil {
				return err
			}
			defer s.conn.Close()
			report, err := s.vault.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.record(cmd.Context(), "vault.migrate", "", report); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, migrated %d, skipped %d\n", report.Scanned, report.Migrated, report.Skipped)
			if len(report.Corrupt) > 0 {
				return fmt.Errorf("credentials failed authentication: %s", strings.Join(report.Corrupt, ", "))
			}
			return nil
		},
	}
}
