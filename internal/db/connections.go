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
	"github.com/uptrace/bun"
)

// UpsertConnection stores the encrypted credentials of a tenant. A second
// call for the same shop replaces the ciphertext; created_at is kept.
func (s *Store) UpsertConnection(ctx context.Context, shopID int64, ciphertext []byte) error {
	now := s.now().UTC()
	m := &ConnectionModel{ShopID: shopID, Ciphertext: ciphertext, CreatedAt: now, UpdatedAt: now}
	if _, err := upsert(s.dialect, s.bun.NewInsert().Model(m), "shop_id", "ciphertext", "updated_at").Exec(ctx); err != nil {
		return fmt.Errorf("upsert connection for shop %d: %w", shopID, err)
	}
	return nil
}

// GetConnection returns the stored connection, or nil when the shop has none.
func (s *Store) GetConnection(ctx context.Context, shopID int64) (*model.TenantConnection, error) {
	var m ConnectionModel
	err := s.bun.NewSelect().Model(&m).Where("shop_id = ?", shopID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get connection for shop %d: %w", shopID, err)
	}
	c := connectionModelToModel(m)
	return &c, nil
}

// ListConnections returns every stored connection ordered by shop id.
func (s *Store) ListConnections(ctx context.Context) ([]model.TenantConnection, error) {
	var ms []ConnectionModel
	if err := s.bun.NewSelect().Model(&ms).Order("shop_id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	out := make([]model.TenantConnection, 0, len(ms))
	for _, m := range ms {
		out = append(out, connectionModelToModel(m))
	}
	return out, nil
}

// ConnectionShopIDs lists the shops with a stored connection, ascending.
func (s *Store) ConnectionShopIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.bun.NewSelect().Model((*ConnectionModel)(nil)).Column("shop_id").Order("shop_id ASC").Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("list connection shop ids: %w", err)
	}
	return ids, nil
}

// DeleteConnection removes a tenant's connection. Deleting a missing record
// is not an error.
func (s *Store) DeleteConnection(ctx context.Context, shopID int64) error {
	if _, err := ExecRaw(ctx, s.bun, "DELETE FROM tenant_connections WHERE shop_id = ?", shopID); err != nil {
		return fmt.Errorf("delete connection for shop %d: %w", shopID, err)
	}
	return nil
}

// SaveConnections upserts a set of connections in a single transaction. It
// backs key rotation and registry import, where a partial write would leave
// records encrypted under different keys.
func (s *Store) SaveConnections(ctx context.Context, conns []model.TenantConnection) error {
	now := s.now().UTC()
	return s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, c := range conns {
			m := &ConnectionModel{ShopID: c.ShopID, Ciphertext: c.Ciphertext, CreatedAt: c.CreatedAt, UpdatedAt: now}
			if m.CreatedAt.IsZero() {
				m.CreatedAt = now
			}
			if _, err := upsert(s.dialect, tx.NewInsert().Model(m), "shop_id", "ciphertext", "updated_at").Exec(ctx); err != nil {
				return fmt.Errorf("save connection for shop %d: %w", c.ShopID, err)
			}
		}
		return nil
	})
}
