// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/toeirei/repairdesk/internal/model"
)

// Checkpoint rows are keyed by (shop_id, table_name), so concurrent tenant
// workers never touch the same row.

// GetCheckpoint returns the checkpoint for a (shop, table) pair, or nil when
// no migration attempt has been made yet.
func (s *Store) GetCheckpoint(ctx context.Context, shopID int64, table string) (*model.Checkpoint, error) {
	var m CheckpointModel
	err := s.bun.NewSelect().Model(&m).
		Where("shop_id = ?", shopID).
		Where("table_name = ?", table).
		Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get checkpoint %d/%s: %w", shopID, table, err)
	}
	cp := checkpointModelToModel(m)
	return &cp, nil
}

// ListCheckpoints returns every checkpoint of a shop ordered by table name.
func (s *Store) ListCheckpoints(ctx context.Context, shopID int64) ([]model.Checkpoint, error) {
	var ms []CheckpointModel
	if err := s.bun.NewSelect().Model(&ms).Where("shop_id = ?", shopID).Order("table_name ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list checkpoints for shop %d: %w", shopID, err)
	}
	out := make([]model.Checkpoint, 0, len(ms))
	for _, m := range ms {
		out = append(out, checkpointModelToModel(m))
	}
	return out, nil
}

// ensureCheckpoint inserts a pending checkpoint unless one exists.
func (s *Store) ensureCheckpoint(ctx context.Context, shopID int64, table string) error {
	m := &CheckpointModel{
		ShopID:    shopID,
		TableName: table,
		Status:    string(model.CheckpointPending),
		UpdatedAt: s.now().UTC(),
	}
	if _, err := s.bun.NewInsert().Model(m).Ignore().Exec(ctx); err != nil {
		return fmt.Errorf("create checkpoint %d/%s: %w", shopID, table, err)
	}
	return nil
}

// StartCheckpoint creates the checkpoint if needed and marks it in_progress,
// keeping its stored position. Completed checkpoints are left untouched.
func (s *Store) StartCheckpoint(ctx context.Context, shopID int64, table string) (*model.Checkpoint, error) {
	if err := s.ensureCheckpoint(ctx, shopID, table); err != nil {
		return nil, err
	}
	_, err := ExecRaw(ctx, s.bun,
		"UPDATE migration_checkpoints SET status = ?, last_error = ?, updated_at = ? WHERE shop_id = ? AND table_name = ? AND status <> ?",
		string(model.CheckpointInProgress), "", s.now().UTC(), shopID, table, string(model.CheckpointCompleted))
	if err != nil {
		return nil, fmt.Errorf("start checkpoint %d/%s: %w", shopID, table, err)
	}
	cp, err := s.GetCheckpoint(ctx, shopID, table)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("start checkpoint %d/%s: row vanished", shopID, table)
	}
	return cp, nil
}

// AdvanceCheckpoint records a durably written batch: last_synced_pk moves to
// lastPK and rows_processed grows by rows. The WHERE clause refuses to move
// last_synced_pk backwards.
func (s *Store) AdvanceCheckpoint(ctx context.Context, shopID int64, table string, lastPK, rows int64) error {
	now := s.now().UTC()
	res, err := ExecRaw(ctx, s.bun,
		"UPDATE migration_checkpoints SET last_synced_pk = ?, rows_processed = rows_processed + ?, last_synced_at = ?, updated_at = ? "+
			"WHERE shop_id = ? AND table_name = ? AND last_synced_pk <= ?",
		lastPK, rows, now, now, shopID, table, lastPK)
	if err != nil {
		return fmt.Errorf("advance checkpoint %d/%s: %w", shopID, table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("advance checkpoint %d/%s to %d: %w", shopID, table, lastPK, ErrCheckpointRegressed)
	}
	return nil
}

// CompleteCheckpoint marks a (shop, table) copy as finished.
func (s *Store) CompleteCheckpoint(ctx context.Context, shopID int64, table string) error {
	_, err := ExecRaw(ctx, s.bun,
		"UPDATE migration_checkpoints SET status = ?, last_error = ?, updated_at = ? WHERE shop_id = ? AND table_name = ?",
		string(model.CheckpointCompleted), "", s.now().UTC(), shopID, table)
	if err != nil {
		return fmt.Errorf("complete checkpoint %d/%s: %w", shopID, table, err)
	}
	return nil
}

// FailCheckpoint moves a non-completed checkpoint to failed, creating it if
// the table was never attempted. The stored position is kept, so the next
// run resumes where this one stopped.
func (s *Store) FailCheckpoint(ctx context.Context, shopID int64, table string, cause error) error {
	if err := s.ensureCheckpoint(ctx, shopID, table); err != nil {
		return err
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := ExecRaw(ctx, s.bun,
		"UPDATE migration_checkpoints SET status = ?, last_error = ?, updated_at = ? WHERE shop_id = ? AND table_name = ? AND status <> ?",
		string(model.CheckpointFailed), msg, s.now().UTC(), shopID, table, string(model.CheckpointCompleted))
	if err != nil {
		return fmt.Errorf("fail checkpoint %d/%s: %w", shopID, table, err)
	}
	return nil
}

// DeleteCheckpoints removes all checkpoints of a shop so the next migration
// starts over.
func (s *Store) DeleteCheckpoints(ctx context.Context, shopID int64) (int64, error) {
	res, err := ExecRaw(ctx, s.bun, "DELETE FROM migration_checkpoints WHERE shop_id = ?", shopID)
	if err != nil {
		return 0, fmt.Errorf("reset checkpoints for shop %d: %w", shopID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
