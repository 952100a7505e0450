// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package validate compares every tenant store with the master store. It is
// read-only on both sides, reports every discrepancy it finds and keeps
// going after a failed check.
package validate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/toeirei/repairdesk/internal/batch"
	"github.com/toeirei/repairdesk/internal/db"
	"github.com/toeirei/repairdesk/internal/metrics"
	"github.com/toeirei/repairdesk/internal/rows"
	"github.com/toeirei/repairdesk/internal/tables"
)

// ErrValidationFailed is returned by Report.Err when any check failed.
var ErrValidationFailed = errors.New("validation failed")

// FailureKind classifies a failed check.
type FailureKind string

const (
	RowCountMismatch     FailureKind = "row_count_mismatch"
	OrphanedRowsDetected FailureKind = "orphaned_rows"
	CrossTenantLeakage   FailureKind = "cross_tenant_leakage"
	TenantUnreachable    FailureKind = "tenant_unreachable"
	// CheckError is a check that could not be executed at all.
	CheckError FailureKind = "check_error"
)

// Failure is one failed check. Master and Tenant carry the compared counts
// where the check has them.
type Failure struct {
	Kind   FailureKind
	Table  string
	Detail string
	Master int64
	Tenant int64
}

func (f Failure) String() string {
	if f.Table == "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
	}
	return fmt.Sprintf("%s on %s: %s", f.Kind, f.Table, f.Detail)
}

// TenantReport is the outcome for one shop.
type TenantReport struct {
	ShopID   int64
	Checks   int
	Passed   int
	Failures []Failure
}

func (tr *TenantReport) pass() { tr.Checks++; tr.Passed++ }

func (tr *TenantReport) fail(f Failure) {
	tr.Checks++
	tr.Failures = append(tr.Failures, f)
}

// Report is the outcome of a whole sweep, ordered by shop id.
type Report struct {
	Tenants []TenantReport
	Checks  int
	Passed  int
	Failed  int
}

// Err returns ErrValidationFailed when any check failed.
func (r Report) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d checks failed", ErrValidationFailed, r.Failed, r.Checks)
}

// Master is the read side of the master store. *db.Store implements it.
type Master interface {
	DB() *sql.DB
	Dialect() db.Dialect
}

// Connector opens tenant stores. *registry.Registry implements it.
type Connector interface {
	Connect(ctx context.Context, shopID int64) (*db.Tenant, error)
}

// Engine runs the checks.
type Engine struct {
	master  Master
	conns   Connector
	tables  []tables.Descriptor
	leakage bool
	keyPage int
	metrics *metrics.Job
}

// Option configures an Engine.
type Option func(*Engine)

// WithTables restricts the checks to tbls.
func WithTables(tbls []tables.Descriptor) Option {
	return func(e *Engine) {
		if len(tbls) > 0 {
			e.tables = tbls
		}
	}
}

// WithLeakageCheck switches the per-key ownership check on or off. It is on
// by default and costs one master query per key page.
func WithLeakageCheck(on bool) Option {
	return func(e *Engine) { e.leakage = on }
}

// WithKeyPageSize sets how many tenant keys are checked per master query.
func WithKeyPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.keyPage = n
		}
	}
}

// WithMetrics counts checks.
func WithMetrics(m *metrics.Job) Option {
	return func(e *Engine) { e.metrics = m }
}

// New returns an engine checking every catalog table.
func New(master Master, conns Connector, opts ...Option) *Engine {
	e := &Engine{master: master, conns: conns, tables: tables.All(), leakage: true, keyPage: 1000}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ValidateTenant runs every check for shopID. Errors never abort the sweep;
// they become failures in the report.
func (e *Engine) ValidateTenant(ctx context.Context, shopID int64) TenantReport {
	tr := TenantReport{ShopID: shopID}
	tenant, err := e.conns.Connect(ctx, shopID)
	if err != nil {
		tr.fail(Failure{Kind: TenantUnreachable, Detail: err.Error()})
		e.metrics.ObserveCheck(false)
		return tr
	}
	defer tenant.Close()

	for _, t := range e.tables {
		e.record(&tr, e.checkCount(ctx, tenant, t))
		if e.leakage {
			e.record(&tr, e.checkOwnership(ctx, tenant, t))
		}
	}
	for _, rel := range e.relations() {
		e.record(&tr, e.checkOrphans(ctx, tenant, rel))
	}
	return tr
}

func (e *Engine) record(tr *TenantReport, f *Failure) {
	e.metrics.ObserveCheck(f == nil)
	if f == nil {
		tr.pass()
		return
	}
	tr.fail(*f)
}

// relations returns the relations whose tables are both being checked.
func (e *Engine) relations() []tables.Relation {
	in := make(map[string]bool, len(e.tables))
	for _, t := range e.tables {
		in[t.Name] = true
	}
	var out []tables.Relation
	for _, r := range tables.Relations() {
		if in[r.Child] && in[r.Parent] {
			out = append(out, r)
		}
	}
	return out
}

func (e *Engine) checkCount(ctx context.Context, tenant *db.Tenant, t tables.Descriptor) *Failure {
	want, err := rows.CountScoped(ctx, e.master.DB(), e.master.Dialect(), t, tenant.ShopID)
	if err != nil {
		return &Failure{Kind: CheckError, Table: t.Name, Detail: err.Error()}
	}
	tctx, cancel := tenant.WithTimeout(ctx)
	defer cancel()
	got, err := rows.CountAll(tctx, tenant.DB, tenant.Dialect, t)
	if err != nil {
		return &Failure{Kind: CheckError, Table: t.Name, Detail: err.Error()}
	}
	if want != got {
		return &Failure{
			Kind:   RowCountMismatch,
			Table:  t.Name,
			Detail: fmt.Sprintf("master has %d rows, tenant has %d", want, got),
			Master: want,
			Tenant: got,
		}
	}
	return nil
}

func (e *Engine) checkOrphans(ctx context.Context, tenant *db.Tenant, rel tables.Relation) *Failure {
	tctx, cancel := tenant.WithTimeout(ctx)
	defer cancel()
	n, err := rows.CountOrphans(tctx, tenant.DB, tenant.Dialect, rel)
	if err != nil {
		return &Failure{Kind: CheckError, Table: rel.Child, Detail: err.Error()}
	}
	if n > 0 {
		return &Failure{
			Kind:   OrphanedRowsDetected,
			Table:  rel.Child,
			Detail: fmt.Sprintf("%d rows in %s reference a missing %s row", n, rel, rel.Parent),
			Tenant: n,
		}
	}
	return nil
}

// checkOwnership verifies that every key in the tenant copy of t belongs to
// this shop in the master store.
func (e *Engine) checkOwnership(ctx context.Context, tenant *db.Tenant, t tables.Descriptor) *Failure {
	tctx, cancel := tenant.WithTimeout(ctx)
	defer cancel()
	var foreign, seen int64
	for keys, err := range rows.KeyPages(tctx, tenant.DB, tenant.Dialect, t, e.keyPage) {
		if err != nil {
			return &Failure{Kind: CheckError, Table: t.Name, Detail: err.Error()}
		}
		owned, err := rows.CountOwned(ctx, e.master.DB(), e.master.Dialect(), t, tenant.ShopID, keys)
		if err != nil {
			return &Failure{Kind: CheckError, Table: t.Name, Detail: err.Error()}
		}
		seen += int64(len(keys))
		foreign += int64(len(keys)) - owned
	}
	if foreign > 0 {
		return &Failure{
			Kind:   CrossTenantLeakage,
			Table:  t.Name,
			Detail: fmt.Sprintf("%d of %d tenant rows are not owned by shop %d in the master store", foreign, seen, tenant.ShopID),
			Tenant: foreign,
		}
	}
	return nil
}

// Run validates every shop through runner. A tenant with failed checks is a
// failed unit.
func (e *Engine) Run(ctx context.Context, runner *batch.Runner, shopIDs []int64) (Report, batch.Report) {
	var mu sync.Mutex
	var tenants []TenantReport
	brep := runner.Run(ctx, shopIDs, func(ctx context.Context, shopID int64) (batch.Outcome, error) {
		tr := e.ValidateTenant(ctx, shopID)
		mu.Lock()
		tenants = append(tenants, tr)
		mu.Unlock()
		if len(tr.Failures) > 0 {
			return batch.Outcome{Table: tr.Failures[0].Table},
				fmt.Errorf("%d of %d checks failed: %s", len(tr.Failures), tr.Checks, tr.Failures[0])
		}
		return batch.Outcome{Detail: fmt.Sprintf("%d checks passed", tr.Passed)}, nil
	})

	sort.Slice(tenants, func(i, j int) bool { return tenants[i].ShopID < tenants[j].ShopID })
	rep := Report{Tenants: tenants}
	for _, tr := range tenants {
		rep.Checks += tr.Checks
		rep.Passed += tr.Passed
		rep.Failed += len(tr.Failures)
	}
	// Units that never ran, e.g. after cancellation, still fail the sweep.
	for _, res := range brep.Results {
		if res.Err != nil && !hasTenant(tenants, res.ShopID) {
			rep.Tenants = append(rep.Tenants, TenantReport{ShopID: res.ShopID, Checks: 1,
				Failures: []Failure{{Kind: CheckError, Detail: res.Err.Error()}}})
			rep.Checks++
			rep.Failed++
		}
	}
	return rep, brep
}

func hasTenant(trs []TenantReport, shopID int64) bool {
	for _, tr := range trs {
		if tr.ShopID == shopID {
			return true
		}
	}
	return false
}
