// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"github.com/spf13/cobra"
	"github.com/toeirei/repairdesk/internal/model"
)

func newRunsCmd() *cobra.Command {
	var (
		limit int
		kind  string
	)
	cmd := &cobra.Command{
		Use:     "runs",
		Short:   "List recent job runs",
		Args:    cobra.NoArgs,
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := store.ListRuns(cmd.Context(), model.RunKind(kind), limit)
			if err != nil {
				return err
			}
			renderRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	cmd.Flags().StringVar(&kind, "kind", "", "Only show runs of this kind (provision, migrate, validate, ...)")
	return cmd
}

func newCheckpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "checkpoints <shop-id>",
		Short:   "Show the migration progress of a shop",
		Args:    cobra.ExactArgs(1),
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			shopID, err := parseShopID(args[0])
			if err != nil {
				return err
			}
			cps, err := store.ListCheckpoints(cmd.Context(), shopID)
			if err != nil {
				return err
			}
			renderCheckpoints(cmd.OutOrStdout(), shopID, cps)
			return nil
		},
	}
}

func newAuditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "audit",
		Short:   "Show the most recent audit log entries",
		Args:    cobra.NoArgs,
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := store.ListAuditEntries(cmd.Context(), limit)
			if err != nil {
				return err
			}
			renderAudit(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Number of entries to show (0 for all)")
	return cmd
}
