// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package migrate_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toeirei/repairdesk/internal/batch"
	"github.com/toeirei/repairdesk/internal/db"
	"github.com/toeirei/repairdesk/internal/metrics"
	"github.com/toeirei/repairdesk/internal/migrate"
	"github.com/toeirei/repairdesk/internal/model"
	"github.com/toeirei/repairdesk/internal/provision"
	"github.com/toeirei/repairdesk/internal/registry"
	"github.com/toeirei/repairdesk/internal/rows"
	"github.com/toeirei/repairdesk/internal/tables"
	"github.com/toeirei/repairdesk/internal/testutil"
)

type env struct {
	store *db.Store
	reg   *registry.Registry
}

// newEnv builds a master store with the given shops, each with its own
// provisioned sqlite tenant store.
func newEnv(t *testing.T, shops ...int64) env {
	t.Helper()
	store := testutil.NewMaster(t)
	reg := registry.New(store, testutil.NewCipher(t))
	prov, err := provision.NewSQLiteProvisioner(filepath.Join(t.TempDir(), "tenants"), provision.Naming{})
	require.NoError(t, err)
	svc := provision.NewService(prov, reg)
	for _, id := range shops {
		testutil.AddShop(t, store, id, "")
		_, err := svc.ProvisionOne(context.Background(), model.Shop{ID: id})
		require.NoError(t, err)
	}
	return env{store: store, reg: reg}
}

func (e env) tenantCount(t *testing.T, shopID int64, table string) int64 {
	t.Helper()
	tenant, err := e.reg.Connect(context.Background(), shopID)
	require.NoError(t, err)
	defer tenant.Close()
	d, ok := tables.Lookup(table)
	require.True(t, ok)
	n, err := rows.CountAll(context.Background(), tenant.DB, tenant.Dialect, d)
	require.NoError(t, err)
	return n
}

func (e env) distinctKeys(t *testing.T, shopID int64, table string) int64 {
	t.Helper()
	tenant, err := e.reg.Connect(context.Background(), shopID)
	require.NoError(t, err)
	defer tenant.Close()
	var n int64
	require.NoError(t, tenant.DB.QueryRow("SELECT COUNT(DISTINCT id) FROM "+table).Scan(&n))
	return n
}

// columns lists the columns of table in the sqlite tenant store of shopID.
func (e env) columns(t *testing.T, shopID int64, table string) []string {
	t.Helper()
	tenant, err := e.reg.Connect(context.Background(), shopID)
	require.NoError(t, err)
	defer tenant.Close()
	rs, err := tenant.DB.Query("PRAGMA table_info(" + table + ")")
	require.NoError(t, err)
	defer rs.Close()
	var cols []string
	for rs.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             any
		)
		require.NoError(t, rs.Scan(&cid, &name, &typ, &notNull, &dflt, &pk))
		cols = append(cols, name)
	}
	require.NoError(t, rs.Err())
	return cols
}

func run(e *migrate.Engine, ids ...int64) batch.Report {
	return e.Run(context.Background(), &batch.Runner{Kind: model.RunMigrate, Concurrency: 2}, ids)
}

func TestMigrateCopiesOnlyOwnRows(t *testing.T) {
	e := newEnv(t, 1, 2)
	c1 := testutil.AddCustomers(t, e.store, 1, 5)
	testutil.AddRepairs(t, e.store, 1, c1, 3)
	testutil.AddCustomers(t, e.store, 2, 2)

	rep := run(migrate.New(e.store, e.reg, migrate.WithBatchSize(2)), 1, 2)
	require.NoError(t, rep.Err())
	assert.Equal(t, 2, rep.Succeeded)

	assert.Equal(t, int64(5), e.tenantCount(t, 1, "customers"))
	assert.Equal(t, int64(3), e.tenantCount(t, 1, "repairs"))
	assert.Equal(t, int64(2), e.tenantCount(t, 2, "customers"))
	assert.Equal(t, int64(0), e.tenantCount(t, 2, "repairs"))

	cps, err := e.store.ListCheckpoints(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, cps, len(tables.All()))
	for _, cp := range cps {
		assert.Equal(t, model.CheckpointCompleted, cp.Status, cp.Table)
	}
	cp, err := e.store.GetCheckpoint(context.Background(), 1, "customers")
	require.NoError(t, err)
	assert.Equal(t, int64(5), cp.RowsProcessed)
	assert.Equal(t, c1[len(c1)-1], cp.LastSyncedPK)
}

func TestEmptyShopGetsEmptyTablesWithoutScopeColumn(t *testing.T) {
	e := newEnv(t, 1, 2)
	c := testutil.AddCustomers(t, e.store, 1, 5)
	testutil.AddRepairs(t, e.store, 1, c, 3)

	rep := run(migrate.New(e.store, e.reg), 1, 2)
	require.NoError(t, rep.Err())
	assert.Equal(t, 2, rep.Succeeded)

	for _, tbl := range tables.All() {
		assert.Zero(t, e.tenantCount(t, 2, tbl.Name), tbl.Name)
	}
	assert.Equal(t, int64(5), e.tenantCount(t, 1, "customers"))
	assert.Equal(t, int64(3), e.tenantCount(t, 1, "repairs"))

	cols := e.columns(t, 1, "customers")
	assert.Contains(t, cols, "id")
	assert.NotContains(t, cols, "shop_id")
}

func TestMigrateTwiceEqualsOnce(t *testing.T) {
	e := newEnv(t, 1)
	c := testutil.AddCustomers(t, e.store, 1, 4)
	testutil.AddRepairs(t, e.store, 1, c, 6)
	eng := migrate.New(e.store, e.reg, migrate.WithBatchSize(3))

	require.NoError(t, run(eng, 1).Err())
	first := []int64{e.tenantCount(t, 1, "customers"), e.tenantCount(t, 1, "repairs")}

	rep := run(eng, 1)
	require.NoError(t, rep.Err())
	assert.Equal(t, 1, rep.Skipped, "a fully migrated tenant is skipped")
	second := []int64{e.tenantCount(t, 1, "customers"), e.tenantCount(t, 1, "repairs")}
	assert.Equal(t, first, second)
	assert.Equal(t, []int64{4, 6}, second)
}

func TestInterruptedMigrationResumesWithoutDuplicates(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 1)
	ids := testutil.AddCustomers(t, e.store, 1, 7)

	eng := migrate.New(e.store, e.reg, migrate.WithBatchSize(2))
	crash := errors.New("process killed")
	batches := 0
	eng.SetAfterWrite(func(_ int64, table string, _ rows.Batch) error {
		if table != "customers" {
			return nil
		}
		batches++
		if batches == 2 {
			return crash
		}
		return nil
	})

	rep := run(eng, 1)
	require.ErrorIs(t, rep.Err(), batch.ErrUnitsFailed)
	assert.ErrorIs(t, rep.Results[0].Err, crash)
	assert.Equal(t, "customers", rep.Results[0].Outcome.Table)

	cp, err := e.store.GetCheckpoint(ctx, 1, "customers")
	require.NoError(t, err)
	assert.Equal(t, model.CheckpointFailed, cp.Status)
	assert.Equal(t, ids[1], cp.LastSyncedPK, "only the first batch was acknowledged")
	assert.Equal(t, int64(2), cp.RowsProcessed)
	assert.Contains(t, cp.LastError, "process killed")
	// The second batch reached the tenant before the crash.
	assert.Equal(t, int64(4), e.tenantCount(t, 1, "customers"))

	eng.SetAfterWrite(nil)
	require.NoError(t, run(eng, 1).Err())

	assert.Equal(t, int64(7), e.tenantCount(t, 1, "customers"))
	assert.Equal(t, int64(7), e.distinctKeys(t, 1, "customers"))
	cp, err = e.store.GetCheckpoint(ctx, 1, "customers")
	require.NoError(t, err)
	assert.Equal(t, model.CheckpointCompleted, cp.Status)
	assert.Equal(t, int64(7), cp.RowsProcessed)
	assert.Equal(t, ids[6], cp.LastSyncedPK)
}

func TestUnreachableTenantDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 1)
	testutil.AddCustomers(t, e.store, 1, 2)
	testutil.AddShop(t, e.store, 2, "")
	testutil.AddCustomers(t, e.store, 2, 2)
	require.NoError(t, e.reg.Register(ctx, 2, model.Credentials{
		Driver: model.DriverSQLite, Database: filepath.Join(t.TempDir(), "gone.db"),
	}))

	rep := run(migrate.New(e.store, e.reg), 1, 2)
	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)
	assert.ErrorIs(t, rep.Results[1].Err, db.ErrTenantUnreachable)

	cps, err := e.store.ListCheckpoints(ctx, 2)
	require.NoError(t, err)
	require.Len(t, cps, len(tables.All()))
	for _, cp := range cps {
		assert.Equal(t, model.CheckpointFailed, cp.Status)
		assert.Zero(t, cp.LastSyncedPK)
	}
	assert.Equal(t, int64(2), e.tenantCount(t, 1, "customers"))
}

func TestUnregisteredShopLeavesNoCheckpoints(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 1)
	testutil.AddCustomers(t, e.store, 1, 2)

	rep := run(migrate.New(e.store, e.reg), 1, 99)
	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)
	assert.ErrorIs(t, rep.Results[1].Err, registry.ErrConnectionNotFound)
	assert.Empty(t, rep.Results[1].Outcome.Table)

	cps, err := e.store.ListCheckpoints(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, cps)
}

func TestResetStartsOver(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 1)
	testutil.AddCustomers(t, e.store, 1, 3)
	eng := migrate.New(e.store, e.reg)
	require.NoError(t, run(eng, 1).Err())

	n, err := eng.Reset(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(len(tables.All())), n)

	rep := run(eng, 1)
	require.NoError(t, rep.Err())
	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, int64(3), e.tenantCount(t, 1, "customers"))
}

func TestWithTablesAndMetrics(t *testing.T) {
	e := newEnv(t, 1)
	c := testutil.AddCustomers(t, e.store, 1, 3)
	testutil.AddRepairs(t, e.store, 1, c, 2)
	only, err := tables.Select([]string{"customers"})
	require.NoError(t, err)
	m := metrics.NewJob("migrate")

	eng := migrate.New(e.store, e.reg, migrate.WithTables(only), migrate.WithMetrics(m), migrate.WithBatchSize(0))
	assert.Equal(t, migrate.DefaultBatchSize, eng.BatchSize())
	require.NoError(t, run(eng, 1).Err())

	assert.Equal(t, int64(3), e.tenantCount(t, 1, "customers"))
	assert.Equal(t, int64(0), e.tenantCount(t, 1, "repairs"))
	assert.Equal(t, 3.0, promtest.ToFloat64(m.Rows.WithLabelValues("customers")))
}
