// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/toeirei/repairdesk/internal/batch"
	"github.com/toeirei/repairdesk/internal/i18n"
	"github.com/toeirei/repairdesk/internal/logging"
	"github.com/toeirei/repairdesk/internal/migrate"
	"github.com/toeirei/repairdesk/internal/model"
	"github.com/toeirei/repairdesk/internal/tables"
	"github.com/toeirei/repairdesk/internal/validate"
	"golang.org/x/term"
)

// errNotConfirmed is returned when the operator declines a destructive
// command.
var errNotConfirmed = errors.New("not confirmed")

func newProvisionCmd() *cobra.Command {
	var shopID int64
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create a tenant store for every shop that has none",
		Long: `Creates a dedicated database and login for every shop of the master
database that has no tenant store yet, bootstraps the business schema in it
and records the credentials in the encrypted registry. Shops that are
already registered are skipped. A store left without a registry record (for
example after a crash) fails the shop; remove it with deprovision and run
provision again. Requires admin.mode.`,
		Args:    cobra.NoArgs,
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, release, err := openProvisioning(ctx)
			if err != nil {
				return err
			}
			defer release()

			var shops []model.Shop
			if shopID > 0 {
				shop, err := store.GetShop(ctx, shopID)
				if err != nil {
					return err
				}
				shops = []model.Shop{shop}
			} else if shops, err = store.ListShops(ctx); err != nil {
				return err
			}

			j := newJob(cmd, model.RunProvision)
			_, err = j.run(model.RunMetadata{Concurrency: appConfig.Migration.Concurrency},
				func(ctx context.Context, runner *batch.Runner) (batch.Report, error) {
					return svc.ProvisionAll(ctx, runner, shops), nil
				})
			return err
		},
	}
	cmd.Flags().Int64Var(&shopID, "shop", 0, "Provision only this shop")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var (
		shopID      int64
		batchSize   int
		concurrency int
		reset       bool
		tableNames  []string
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy every shop's rows from the master database into its tenant store",
		Long: `Copies the rows of every registered shop into its tenant store in
primary key order, one batch per transaction. Progress is checkpointed per
shop and table; an interrupted run continues where it stopped. Completed
shops are skipped. Use --reset to copy a shop from the beginning again.`,
		Args:    cobra.NoArgs,
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if cmd.Flags().Changed("batch-size") {
				appConfig.Migration.BatchSize = batchSize
			}
			if cmd.Flags().Changed("concurrency") {
				appConfig.Migration.Concurrency = concurrency
			}
			appConfig.Normalize()
			selected, err := tables.Select(tableNames)
			if err != nil {
				return err
			}
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			ids, err := tenantIDs(ctx, reg, shopID)
			if err != nil {
				return err
			}

			j := newJob(cmd, model.RunMigrate)
			engine := migrate.New(store, reg,
				migrate.WithBatchSize(appConfig.Migration.BatchSize),
				migrate.WithTables(selected),
				migrate.WithMetrics(j.metrics),
			)
			if reset {
				for _, id := range ids {
					n, err := engine.Reset(ctx, id)
					if err != nil {
						return err
					}
					logging.With("shop", id).Info("checkpoints reset", "count", n)
				}
			}

			meta := model.RunMetadata{
				BatchSize:   engine.BatchSize(),
				Concurrency: appConfig.Migration.Concurrency,
				Tables:      tableList(selected),
			}
			_, err = j.run(meta, func(ctx context.Context, runner *batch.Runner) (batch.Report, error) {
				return engine.Run(ctx, runner, ids), nil
			})
			return err
		},
	}
	cmd.Flags().Int64Var(&shopID, "shop", 0, "Migrate only this shop")
	cmd.Flags().IntVar(&batchSize, "batch-size", migrate.DefaultBatchSize, "Rows per batch and transaction")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "Number of shops migrated in parallel")
	cmd.Flags().BoolVar(&reset, "reset", false, "Discard checkpoints and copy from the beginning")
	cmd.Flags().StringSliceVar(&tableNames, "tables", nil, "Only copy these tables (default all)")
	return cmd
}

func tableList(ts []tables.Descriptor) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Name
	}
	return out
}

func newValidateCmd() *cobra.Command {
	var (
		shopID  int64
		noOwner bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compare every tenant store with the master database",
		Long: `Checks every tenant store against the master database: row counts per
table, references to missing parent rows and rows that belong to another
shop. Nothing is modified. Every discrepancy is reported; exit code 1 means
at least one check failed.`,
		Args:    cobra.NoArgs,
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			ids, err := tenantIDs(ctx, reg, shopID)
			if err != nil {
				return err
			}

			j := newJob(cmd, model.RunValidate)
			engine := validate.New(store, reg,
				validate.WithLeakageCheck(!noOwner),
				validate.WithMetrics(j.metrics),
			)
			var vrep validate.Report
			_, err = j.run(model.RunMetadata{Concurrency: appConfig.Migration.Concurrency},
				func(ctx context.Context, runner *batch.Runner) (batch.Report, error) {
					var brep batch.Report
					vrep, brep = engine.Run(ctx, runner, ids)
					return brep, nil
				})
			if len(vrep.Tenants) > 0 {
				renderValidation(cmd.OutOrStdout(), vrep)
			}
			if err == nil {
				err = vrep.Err()
			}
			return err
		},
	}
	cmd.Flags().Int64Var(&shopID, "shop", 0, "Validate only this shop")
	cmd.Flags().BoolVar(&noOwner, "skip-ownership", false, "Skip the per-row ownership check")
	return cmd
}

func newMaintainCmd() *cobra.Command {
	var shopID int64
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Run engine housekeeping on every tenant store",
		Long: `Runs VACUUM, ANALYZE or OPTIMIZE TABLE (depending on the engine) on every
registered tenant store. Useful after a large migration.`,
		Args:    cobra.NoArgs,
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			ids, err := tenantIDs(ctx, reg, shopID)
			if err != nil {
				return err
			}
			j := newJob(cmd, model.RunMaintain)
			_, err = j.run(model.RunMetadata{Concurrency: appConfig.Migration.Concurrency},
				func(ctx context.Context, runner *batch.Runner) (batch.Report, error) {
					return runner.Run(ctx, ids, func(ctx context.Context, id int64) (batch.Outcome, error) {
						tenant, err := reg.Connect(ctx, id)
						if err != nil {
							return batch.Outcome{}, err
						}
						defer tenant.Close()
						if err := tenant.Maintain(ctx); err != nil {
							return batch.Outcome{}, err
						}
						return batch.Outcome{Detail: string(tenant.Dialect)}, nil
					}), nil
				})
			return err
		},
	}
	cmd.Flags().Int64Var(&shopID, "shop", 0, "Maintain only this shop")
	return cmd
}

func newDeprovisionCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "deprovision <shop-id>",
		Short: "Drop the tenant store of a shop",
		Long: `Drops the tenant database and login of a shop and removes its registry
record and checkpoints. The master rows are not touched. Requires
admin.mode. This cannot be undone.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			shopID, err := parseShopID(args[0])
			if err != nil {
				return err
			}
			if !yes {
				if !term.IsTerminal(int(os.Stdin.Fd())) {
					return fmt.Errorf("%w: %s", errNotConfirmed, i18n.T("deprovision.needs_yes"))
				}
				answer := promptForConfirmation(cmd.InOrStdin(), cmd.OutOrStdout(), i18n.T("deprovision.confirm", shopID))
				if answer != "y" && answer != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), i18n.T("deprovision.cancelled"))
					return nil
				}
			}

			svc, release, err := openProvisioning(ctx)
			if err != nil {
				return err
			}
			defer release()

			j := newJob(cmd, model.RunDeprovision)
			_, err = j.run(model.RunMetadata{Concurrency: 1},
				func(ctx context.Context, runner *batch.Runner) (batch.Report, error) {
					return runner.Run(ctx, []int64{shopID}, func(ctx context.Context, id int64) (batch.Outcome, error) {
						exists, err := svc.Exists(ctx, id)
						if err != nil {
							return batch.Outcome{}, err
						}
						if !exists {
							// A stale registry record is still removed below.
							rec, err := store.GetConnection(ctx, id)
							if err != nil {
								return batch.Outcome{}, err
							}
							if rec == nil {
								return batch.Outcome{Status: batch.StatusSkipped, Detail: i18n.T("deprovision.nothing", id)}, nil
							}
						}
						return batch.Outcome{}, svc.Teardown(ctx, id)
					}), nil
				})
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func parseShopID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid shop id %q", s)
	}
	return id, nil
}

// promptForConfirmation displays a prompt and reads a line from in.
func promptForConfirmation(in io.Reader, out io.Writer, prompt string) string {
	fmt.Fprint(out, prompt)
	reader := bufio.NewReader(in)
	answer, _ := reader.ReadString('\n')
	return strings.TrimSpace(strings.ToLower(answer))
}
