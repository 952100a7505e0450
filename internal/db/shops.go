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

// ListShops reads every shop from the business schema, ordered by id.
func (s *Store) ListShops(ctx context.Context) ([]model.Shop, error) {
	var ms []ShopModel
	if err := s.bun.NewSelect().Model(&ms).Column("id", "name").Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list shops: %w", err)
	}
	out := make([]model.Shop, 0, len(ms))
	for _, m := range ms {
		out = append(out, model.Shop{ID: m.ID, Name: m.Name})
	}
	return out, nil
}

// GetShop returns one shop or an error wrapping ErrShopNotFound.
func (s *Store) GetShop(ctx context.Context, id int64) (model.Shop, error) {
	var m ShopModel
	err := s.bun.NewSelect().Model(&m).Column("id", "name").Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Shop{}, fmt.Errorf("shop %d: %w", id, ErrShopNotFound)
		}
		return model.Shop{}, fmt.Errorf("get shop %d: %w", id, err)
	}
	return model.Shop{ID: m.ID, Name: m.Name}, nil
}
