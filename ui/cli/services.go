// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/toeirei/repairdesk/internal/batch"
	"github.com/toeirei/repairdesk/internal/db"
	"github.com/toeirei/repairdesk/internal/logging"
	"github.com/toeirei/repairdesk/internal/metrics"
	"github.com/toeirei/repairdesk/internal/model"
	"github.com/toeirei/repairdesk/internal/provision"
	"github.com/toeirei/repairdesk/internal/registry"
	"github.com/toeirei/repairdesk/internal/security"
)

func tenantOptions() db.TenantOptions {
	return db.TenantOptions{
		ConnectTimeout:   appConfig.Tenant.ConnectTimeout,
		StatementTimeout: appConfig.Tenant.StatementTimeout,
	}
}

// openRegistry builds the registry from the configured key. A missing or
// malformed key is fatal.
func openRegistry() (*registry.Registry, error) {
	if err := appConfig.RequireRegistryKey(); err != nil {
		return nil, err
	}
	c, err := security.NewCipherFromHex(appConfig.Registry.Key)
	if err != nil {
		return nil, fmt.Errorf("registry.key: %w", err)
	}
	return registry.New(store, c, registry.WithTimeouts(tenantOptions()), registry.WithAudit(store)), nil
}

// openProvisioning returns the provisioning service and a release func for
// the admin connection.
func openProvisioning(ctx context.Context) (*provision.Service, func(), error) {
	if err := appConfig.RequireAdmin(); err != nil {
		return nil, nil, err
	}
	reg, err := openRegistry()
	if err != nil {
		return nil, nil, err
	}
	prov, err := provision.Open(ctx, provision.Options{
		Driver:    appConfig.Tenant.Driver,
		AdminDSN:  appConfig.Admin.Dsn,
		AdminMode: appConfig.Admin.Mode,
		Host:      appConfig.Tenant.Host,
		Port:      appConfig.Tenant.Port,
		SSLMode:   appConfig.Tenant.SSLMode,
		Prefix:    appConfig.Tenant.Prefix,
		SQLiteDir: appConfig.Tenant.SQLiteDir,
	})
	if err != nil {
		return nil, nil, err
	}
	svc := provision.NewService(prov, reg,
		provision.WithTenantOptions(tenantOptions()),
		provision.WithAudit(store),
		provision.WithCheckpoints(store),
	)
	release := func() {
		if err := prov.Close(); err != nil {
			logging.Warnf("closing admin connection: %v", err)
		}
	}
	return svc, release, nil
}

// tenantIDs returns the single shop given by --shop or every registered
// tenant.
func tenantIDs(ctx context.Context, reg *registry.Registry, shopID int64) ([]int64, error) {
	if shopID > 0 {
		return []int64{shopID}, nil
	}
	return reg.ShopIDs(ctx)
}

// job bundles what every batch command needs around a run.
type job struct {
	kind    model.RunKind
	cmd     *cobra.Command
	out     *cliReporter
	metrics *metrics.Job
	runID   string
}

func newJob(cmd *cobra.Command, kind model.RunKind) *job {
	return &job{kind: kind, cmd: cmd, out: newReporter(cmd.OutOrStdout()), metrics: metrics.NewJob(string(kind))}
}

func (j *job) runner(concurrency int) *batch.Runner {
	return &batch.Runner{Kind: j.kind, Concurrency: concurrency, Out: j.out, Audit: store, Metrics: j.metrics}
}

// run records the run, prints the summary and pushes the job metrics.
func (j *job) run(meta model.RunMetadata, fn func(ctx context.Context, runner *batch.Runner) (batch.Report, error)) (batch.Report, error) {
	ctx := j.cmd.Context()
	concurrency := max(1, meta.Concurrency)
	rep, err := batch.RunJob(ctx, store, j.kind, meta, func(ctx context.Context, run *model.Run) (batch.Report, error) {
		j.runID = run.ID
		return fn(ctx, j.runner(concurrency))
	})
	j.out.Summary(j.runID, rep)
	if perr := j.metrics.Push(context.WithoutCancel(ctx), appConfig.Metrics.Pushgateway); perr != nil {
		logging.Warnf("metrics push failed: %v", perr)
	}
	return rep, err
}
