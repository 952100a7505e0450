// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/toeirei/repairdesk/internal/model"
)

// CreateRun records the start of a batch job.
func (s *Store) CreateRun(ctx context.Context, kind model.RunKind, meta model.RunMetadata) (*model.Run, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode run metadata: %w", err)
	}
	m := &RunModel{
		ID:        uuid.NewString(),
		Kind:      string(kind),
		Status:    string(model.RunRunning),
		StartedAt: s.now().UTC(),
		Metadata:  string(raw),
	}
	if _, err := s.bun.NewInsert().Model(m).Exec(ctx); err != nil {
		return nil, fmt.Errorf("create %s run: %w", kind, err)
	}
	r, err := runModelToModel(*m)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// FinishRun moves a running run to its final status. A run is only ever
// updated once, by this call.
func (s *Store) FinishRun(ctx context.Context, id string, status model.RunStatus, meta model.RunMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode run metadata: %w", err)
	}
	res, err := ExecRaw(ctx, s.bun,
		"UPDATE migration_runs SET status = ?, finished_at = ?, metadata = ? WHERE id = ? AND status = ?",
		string(status), s.now().UTC(), string(raw), id, string(model.RunRunning))
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotRunning)
	}
	return nil
}

// GetRun returns a run by id, or nil when unknown.
func (s *Store) GetRun(ctx context.Context, id string) (*model.Run, error) {
	var m RunModel
	if err := s.bun.NewSelect().Model(&m).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	r, err := runModelToModel(m)
	if err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &r, nil
}

// ListRuns returns the most recent runs first. An empty kind lists all kinds.
func (s *Store) ListRuns(ctx context.Context, kind model.RunKind, limit int) ([]model.Run, error) {
	var ms []RunModel
	q := s.bun.NewSelect().Model(&ms).OrderExpr("started_at DESC")
	if kind != "" {
		q = q.Where("kind = ?", string(kind))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]model.Run, 0, len(ms))
	for _, m := range ms {
		r, err := runModelToModel(m)
		if err != nil {
			return nil, fmt.Errorf("decode run %s: %w", m.ID, err)
		}
		out = append(out, r)
	}
	return out, nil
}
