// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/toeirei/repairdesk/internal/model"
	"github.com/uptrace/bun"
)

// ConnectionModel maps the tenant_connections table.
type ConnectionModel struct {
	bun.BaseModel `bun:"table:tenant_connections,alias:tc"`
	ShopID        int64     `bun:"shop_id,pk"`
	Ciphertext    []byte    `bun:"ciphertext"`
	CreatedAt     time.Time `bun:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at"`
}

// RunModel maps the migration_runs table. Metadata is JSON text.
type RunModel struct {
	bun.BaseModel `bun:"table:migration_runs,alias:mr"`
	ID            string       `bun:"id,pk"`
	Kind          string       `bun:"kind"`
	Status        string       `bun:"status"`
	StartedAt     time.Time    `bun:"started_at"`
	FinishedAt    sql.NullTime `bun:"finished_at"`
	Metadata      string       `bun:"metadata"`
}

// CheckpointModel maps the migration_checkpoints table.
type CheckpointModel struct {
	bun.BaseModel `bun:"table:migration_checkpoints,alias:mc"`
	ShopID        int64        `bun:"shop_id,pk"`
	TableName     string       `bun:"table_name,pk"`
	Status        string       `bun:"status"`
	LastSyncedPK  int64        `bun:"last_synced_pk"`
	RowsProcessed int64        `bun:"rows_processed"`
	LastSyncedAt  sql.NullTime `bun:"last_synced_at"`
	LastError     string       `bun:"last_error"`
	UpdatedAt     time.Time    `bun:"updated_at"`
}

// AuditLogModel maps the audit_log table.
type AuditLogModel struct {
	bun.BaseModel `bun:"table:audit_log,alias:al"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Timestamp     time.Time `bun:"timestamp"`
	Username      string    `bun:"username"`
	Action        string    `bun:"action"`
	Details       string    `bun:"details"`
}

// ShopModel maps the columns of the business schema's shops table that
// this package reads.
type ShopModel struct {
	bun.BaseModel `bun:"table:shops,alias:s"`
	ID            int64  `bun:"id,pk"`
	Name          string `bun:"name"`
}

func connectionModelToModel(m ConnectionModel) model.TenantConnection {
	return model.TenantConnection{ShopID: m.ShopID, Ciphertext: m.Ciphertext, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

func runModelToModel(m RunModel) (model.Run, error) {
	r := model.Run{
		ID:        m.ID,
		Kind:      model.RunKind(m.Kind),
		Status:    model.RunStatus(m.Status),
		StartedAt: m.StartedAt,
	}
	if m.FinishedAt.Valid {
		t := m.FinishedAt.Time
		r.FinishedAt = &t
	}
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &r.Metadata); err != nil {
			return r, err
		}
	}
	return r, nil
}

func checkpointModelToModel(m CheckpointModel) model.Checkpoint {
	cp := model.Checkpoint{
		ShopID:        m.ShopID,
		Table:         m.TableName,
		Status:        model.CheckpointStatus(m.Status),
		LastSyncedPK:  m.LastSyncedPK,
		RowsProcessed: m.RowsProcessed,
		LastError:     m.LastError,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.LastSyncedAt.Valid {
		t := m.LastSyncedAt.Time
		cp.LastSyncedAt = &t
	}
	return cp
}
