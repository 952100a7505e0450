// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/toeirei/repairdesk/internal/i18n"
	"github.com/toeirei/repairdesk/internal/security"
)

func newRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect and maintain the encrypted tenant connection registry",
	}
	cmd.AddCommand(
		newRegistryListCmd(),
		newRegistryExportCmd(),
		newRegistryImportCmd(),
		newRegistryRekeyCmd(),
		newRegistryGenerateKeyCmd(),
	)
	return cmd
}

func newRegistryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List registered tenant stores",
		Args:    cobra.NoArgs,
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			conns, err := reg.List(ctx)
			if err != nil {
				return err
			}
			rows := make([]connectionRow, 0, len(conns))
			for _, c := range conns {
				// A record that does not decrypt is shown, not fatal.
				creds, err := reg.Get(ctx, c.ShopID)
				if creds != nil {
					creds.Password.Zero()
				}
				rows = append(rows, connectionRow{conn: c, creds: creds, err: err})
			}
			renderConnections(cmd.OutOrStdout(), rows)
			return nil
		},
	}
}

func newRegistryExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write every registry record to a compressed file",
		Long: `Writes all registry records, still encrypted, to a zstd compressed file.
The file is only readable with the same registry key.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			f, err := os.OpenFile(args[0], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
			if err != nil {
				return err
			}
			n, err := reg.Export(cmd.Context(), f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("export registry: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("registry.exported", n, args[0]))
			return nil
		},
	}
}

func newRegistryImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load registry records from an export file",
		Long: `Loads the records of an export file into the registry, replacing records
of the same shops. Nothing is written unless every record decrypts with the
configured key.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			n, err := reg.Import(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("import registry: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("registry.imported", n, args[0]))
			return nil
		},
	}
}

func newRegistryRekeyCmd() *cobra.Command {
	var newKey string
	cmd := &cobra.Command{
		Use:   "rekey",
		Short: "Re-encrypt every registry record with a new key",
		Long: `Decrypts every record with the configured key and encrypts it with
--new-key in one transaction. Update registry.key afterwards.`,
		Args:    cobra.NoArgs,
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			next, err := security.NewCipherFromHex(newKey)
			if err != nil {
				return fmt.Errorf("--new-key: %w", err)
			}
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			n, err := reg.Rekey(cmd.Context(), next)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, i18n.T("registry.rekeyed", n))
			fmt.Fprintln(out, i18n.T("registry.rekey_reminder"))
			return nil
		},
	}
	cmd.Flags().StringVar(&newKey, "new-key", "", "New registry key (64 hex characters)")
	_ = cmd.MarkFlagRequired("new-key")
	return cmd
}

func newRegistryGenerateKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-key",
		Short: "Print a new random registry key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, hexKey, err := security.GenerateKey()
			if err != nil {
				return err
			}
			key.Zero()
			fmt.Fprintln(cmd.OutOrStdout(), hexKey)
			return nil
		},
	}
}
