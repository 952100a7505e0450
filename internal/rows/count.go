// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package rows

import (
	"context"
	"fmt"
	"iter"

	sq "github.com/Masterminds/squirrel"
	"github.com/toeirei/repairdesk/internal/db"
	"github.com/toeirei/repairdesk/internal/tables"
)

func scalar(ctx context.Context, q Querier, b sq.SelectBuilder) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	rs, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rs.Close()
	var n int64
	if rs.Next() {
		if err := rs.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rs.Err()
}

// CountScoped counts the master rows of t owned by shopID.
func CountScoped(ctx context.Context, q Querier, d db.Dialect, t tables.Descriptor, shopID int64) (int64, error) {
	n, err := scalar(ctx, q, d.Builder().Select("COUNT(*)").From(t.Name).Where(sq.Eq{t.Scope: shopID}))
	if err != nil {
		return 0, fmt.Errorf("count %s for shop %d: %w", t.Name, shopID, err)
	}
	return n, nil
}

// CountAll counts every row of t. Used on tenant stores, which hold one
// shop's rows only.
func CountAll(ctx context.Context, q Querier, d db.Dialect, t tables.Descriptor) (int64, error) {
	n, err := scalar(ctx, q, d.Builder().Select("COUNT(*)").From(t.Name))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", t.Name, err)
	}
	return n, nil
}

// CountOrphans counts child rows whose foreign key is set but whose parent
// row does not exist.
func CountOrphans(ctx context.Context, q Querier, d db.Dialect, r tables.Relation) (int64, error) {
	b := d.Builder().
		Select("COUNT(*)").
		From(r.Child + " c").
		Where(sq.NotEq{"c." + r.Column: nil}).
		Where(fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s p WHERE p.%s = c.%s)", r.Parent, r.ParentPK, r.Column))
	n, err := scalar(ctx, q, b)
	if err != nil {
		return 0, fmt.Errorf("count orphans %s: %w", r, err)
	}
	return n, nil
}

// MaxPK returns the largest primary key of t, or 0 for an empty table.
func MaxPK(ctx context.Context, q Querier, d db.Dialect, t tables.Descriptor) (int64, error) {
	n, err := scalar(ctx, q, d.Builder().Select("COALESCE(MAX("+t.PK+"), 0)").From(t.Name))
	if err != nil {
		return 0, fmt.Errorf("max %s.%s: %w", t.Name, t.PK, err)
	}
	return n, nil
}

// KeyPages pages through every primary key of t in ascending order.
func KeyPages(ctx context.Context, q Querier, d db.Dialect, t tables.Descriptor, size int) iter.Seq2[[]int64, error] {
	return func(yield func([]int64, error) bool) {
		var cursor int64
		first := true
		for {
			b := d.Builder().Select(t.PK).From(t.Name).OrderBy(t.PK + " ASC").Limit(uint64(size))
			if !first {
				b = b.Where(sq.Gt{t.PK: cursor})
			}
			first = false
			keys, err := keyColumn(ctx, q, b)
			if err != nil {
				yield(nil, fmt.Errorf("keys of %s: %w", t.Name, err))
				return
			}
			if len(keys) == 0 {
				return
			}
			if !yield(keys, nil) {
				return
			}
			if len(keys) < size {
				return
			}
			cursor = keys[len(keys)-1]
		}
	}
}

func keyColumn(ctx context.Context, q Querier, b sq.SelectBuilder) ([]int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rs, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var keys []int64
	for rs.Next() {
		var k int64
		if err := rs.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rs.Err()
}

// CountOwned counts how many of keys exist in the master copy of t and are
// owned by shopID.
func CountOwned(ctx context.Context, q Querier, d db.Dialect, t tables.Descriptor, shopID int64, keys []int64) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := scalar(ctx, q, d.Builder().
		Select("COUNT(*)").
		From(t.Name).
		Where(sq.Eq{t.Scope: shopID}).
		Where(sq.Eq{t.PK: keys}))
	if err != nil {
		return 0, fmt.Errorf("count owned %s for shop %d: %w", t.Name, shopID, err)
	}
	return n, nil
}
