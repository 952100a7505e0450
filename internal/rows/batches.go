// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package rows

import (
	"context"
	"database/sql"
	"fmt"
	"iter"

	sq "github.com/Masterminds/squirrel"
	"github.com/toeirei/repairdesk/internal/db"
	"github.com/toeirei/repairdesk/internal/tables"
)

// Querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Batch is one page of a table scan. LastPK is the largest primary key in
// Records.
type Batch struct {
	Records []Record
	LastPK  int64
}

// Batches pages through the rows of t owned by shopID whose primary key is
// greater than after, in ascending key order. The sequence is lazy: a page
// is fetched only when the previous one has been consumed, and it ends at
// the first empty page or the first error.
func Batches(ctx context.Context, q Querier, d db.Dialect, t tables.Descriptor, shopID, after int64, size int) iter.Seq2[Batch, error] {
	return func(yield func(Batch, error) bool) {
		if size <= 0 {
			yield(Batch{}, fmt.Errorf("batch size must be positive, got %d", size))
			return
		}
		cursor := after
		for {
			b, err := fetchBatch(ctx, q, d, t, shopID, cursor, size)
			if err != nil {
				yield(Batch{}, err)
				return
			}
			if len(b.Records) == 0 {
				return
			}
			if !yield(b, nil) {
				return
			}
			cursor = b.LastPK
			if len(b.Records) < size {
				return
			}
		}
	}
}

func fetchBatch(ctx context.Context, q Querier, d db.Dialect, t tables.Descriptor, shopID, after int64, size int) (Batch, error) {
	query, args, err := d.Builder().
		Select("*").
		From(t.Name).
		Where(sq.Eq{t.Scope: shopID}).
		Where(sq.Gt{t.PK: after}).
		OrderBy(t.PK + " ASC").
		Limit(uint64(size)).
		ToSql()
	if err != nil {
		return Batch{}, err
	}
	rs, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return Batch{}, fmt.Errorf("fetch %s after %d: %w", t.Name, after, err)
	}
	defer rs.Close()
	recs, err := scanRecords(rs)
	if err != nil {
		return Batch{}, fmt.Errorf("fetch %s after %d: %w", t.Name, after, err)
	}
	b := Batch{Records: recs}
	for _, r := range recs {
		v, ok := r.Get(t.PK)
		if !ok {
			return Batch{}, fmt.Errorf("%s: primary key column %q missing from result", t.Name, t.PK)
		}
		pk, ok := v.Int64()
		if !ok {
			return Batch{}, fmt.Errorf("%s: primary key %s is not an integer", t.Name, v)
		}
		b.LastPK = max(b.LastPK, pk)
	}
	return b, nil
}
