// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package migrate copies each shop's rows from the master store into its
// tenant store. Progress is checkpointed per (shop, table) after every batch
// so an interrupted run resumes where it stopped, and inserts tolerate
// already present keys so a replayed batch never duplicates rows.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/toeirei/repairdesk/internal/batch"
	"github.com/toeirei/repairdesk/internal/db"
	"github.com/toeirei/repairdesk/internal/logging"
	"github.com/toeirei/repairdesk/internal/metrics"
	"github.com/toeirei/repairdesk/internal/model"
	"github.com/toeirei/repairdesk/internal/registry"
	"github.com/toeirei/repairdesk/internal/rows"
	"github.com/toeirei/repairdesk/internal/tables"
)

// DefaultBatchSize is used when no batch size is configured.
const DefaultBatchSize = 500

// Master is the master store: the source rows and the checkpoint table.
// *db.Store implements it.
type Master interface {
	DB() *sql.DB
	Dialect() db.Dialect
	GetCheckpoint(ctx context.Context, shopID int64, table string) (*model.Checkpoint, error)
	StartCheckpoint(ctx context.Context, shopID int64, table string) (*model.Checkpoint, error)
	AdvanceCheckpoint(ctx context.Context, shopID int64, table string, lastPK, rows int64) error
	CompleteCheckpoint(ctx context.Context, shopID int64, table string) error
	FailCheckpoint(ctx context.Context, shopID int64, table string, cause error) error
	DeleteCheckpoints(ctx context.Context, shopID int64) (int64, error)
}

// Connector opens tenant stores. *registry.Registry implements it.
type Connector interface {
	Connect(ctx context.Context, shopID int64) (*db.Tenant, error)
}

// Engine runs the copy.
type Engine struct {
	master    Master
	conns     Connector
	batchSize int
	tables    []tables.Descriptor
	metrics   *metrics.Job

	// afterWrite runs after a batch is committed to the tenant store and
	// before the checkpoint moves. Tests use it to simulate a crash.
	afterWrite func(shopID int64, table string, b rows.Batch) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithBatchSize sets the rows per batch.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithTables restricts the copy to tbls, which must be in catalog order.
func WithTables(tbls []tables.Descriptor) Option {
	return func(e *Engine) {
		if len(tbls) > 0 {
			e.tables = tbls
		}
	}
}

// WithMetrics counts copied rows.
func WithMetrics(m *metrics.Job) Option {
	return func(e *Engine) { e.metrics = m }
}

// New returns an engine copying every catalog table.
func New(master Master, conns Connector, opts ...Option) *Engine {
	e := &Engine{master: master, conns: conns, batchSize: DefaultBatchSize, tables: tables.All()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// BatchSize returns the configured batch size.
func (e *Engine) BatchSize() int { return e.batchSize }

// Run migrates every shop in shopIDs through runner.
func (e *Engine) Run(ctx context.Context, runner *batch.Runner, shopIDs []int64) batch.Report {
	return runner.Run(ctx, shopIDs, e.MigrateTenant)
}

// Reset forgets all checkpoints of shopID so its next migration starts from
// the first row. Rows already in the tenant store are skipped on insert.
func (e *Engine) Reset(ctx context.Context, shopID int64) (int64, error) {
	return e.master.DeleteCheckpoints(ctx, shopID)
}

// MigrateTenant copies every unfinished table of shopID in catalog order. It
// stops at the first failing table, whose checkpoint is marked failed; later
// tables are left for the next run.
func (e *Engine) MigrateTenant(ctx context.Context, shopID int64) (batch.Outcome, error) {
	var pending []tables.Descriptor
	for _, t := range e.tables {
		cp, err := e.master.GetCheckpoint(ctx, shopID, t.Name)
		if err != nil {
			return batch.Outcome{Table: t.Name}, err
		}
		if cp != nil && cp.Status == model.CheckpointCompleted {
			continue
		}
		pending = append(pending, t)
	}
	if len(pending) == 0 {
		return batch.Outcome{Status: batch.StatusSkipped, Detail: "all tables completed"}, nil
	}

	tenant, err := e.conns.Connect(ctx, shopID)
	if errors.Is(err, registry.ErrConnectionNotFound) {
		// No store to copy into; leave no checkpoints behind.
		return batch.Outcome{}, err
	}
	if err != nil {
		for _, t := range pending {
			e.fail(ctx, shopID, t.Name, err)
		}
		return batch.Outcome{Table: pending[0].Name}, err
	}
	defer tenant.Close()

	log := logging.With("shop", shopID)
	var copied int64
	for _, t := range pending {
		n, err := e.copyTable(ctx, tenant, t)
		copied += n
		if err != nil {
			e.fail(ctx, shopID, t.Name, err)
			return batch.Outcome{Table: t.Name}, fmt.Errorf("%s: %w", t.Name, err)
		}
		log.Debug("table copied", "table", t.Name, "rows", n)
	}
	return batch.Outcome{Detail: fmt.Sprintf("%d rows copied", copied)}, nil
}

func (e *Engine) fail(ctx context.Context, shopID int64, table string, cause error) {
	if err := e.master.FailCheckpoint(context.WithoutCancel(ctx), shopID, table, cause); err != nil {
		logging.Errorf("migrate: could not record failure of shop %d table %s: %v", shopID, table, err)
	}
}

// copyTable resumes the copy of t from its checkpoint and returns the rows
// read from the master in this call.
func (e *Engine) copyTable(ctx context.Context, tenant *db.Tenant, t tables.Descriptor) (int64, error) {
	shopID := tenant.ShopID
	cp, err := e.master.StartCheckpoint(ctx, shopID, t.Name)
	if err != nil {
		return 0, err
	}
	if cp.Status == model.CheckpointCompleted {
		return 0, nil
	}

	var copied int64
	for b, err := range rows.Batches(ctx, e.master.DB(), e.master.Dialect(), t, shopID, cp.LastSyncedPK, e.batchSize) {
		if err != nil {
			return copied, err
		}
		if err := e.write(ctx, tenant, t, rows.StripScope(t, b.Records)); err != nil {
			return copied, err
		}
		if e.afterWrite != nil {
			if err := e.afterWrite(shopID, t.Name, b); err != nil {
				return copied, err
			}
		}
		// The checkpoint only moves once the batch is durable in the tenant.
		if err := e.master.AdvanceCheckpoint(ctx, shopID, t.Name, b.LastPK, int64(len(b.Records))); err != nil {
			return copied, err
		}
		copied += int64(len(b.Records))
		e.metrics.AddRows(t.Name, len(b.Records))
	}

	if tenant.Dialect == db.Postgres {
		if err := resetSequence(ctx, tenant, t); err != nil {
			return copied, err
		}
	}
	return copied, e.master.CompleteCheckpoint(ctx, shopID, t.Name)
}

// write inserts one batch in a single tenant transaction.
func (e *Engine) write(ctx context.Context, tenant *db.Tenant, t tables.Descriptor, recs []rows.Record) error {
	tctx, cancel := tenant.WithTimeout(ctx)
	defer cancel()
	tx, err := tenant.DB.BeginTx(tctx, nil)
	if err != nil {
		return &db.TenantError{ShopID: tenant.ShopID, Err: err}
	}
	if _, err := rows.InsertIgnore(tctx, tx, tenant.Dialect, t, recs); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// resetSequence moves a postgres serial sequence past the copied keys, so
// rows created later in the tenant store do not collide with them.
func resetSequence(ctx context.Context, tenant *db.Tenant, t tables.Descriptor) error {
	tctx, cancel := tenant.WithTimeout(ctx)
	defer cancel()
	top, err := rows.MaxPK(tctx, tenant.DB, tenant.Dialect, t)
	if err != nil {
		return err
	}
	if _, err := tenant.DB.ExecContext(tctx, "SELECT setval(pg_get_serial_sequence($1, $2), $3, false)",
		t.Name, t.PK, top+1); err != nil {
		return fmt.Errorf("reset sequence of %s: %w", t.Name, err)
	}
	return nil
}
