// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package rows

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/toeirei/repairdesk/internal/db"
	"github.com/toeirei/repairdesk/internal/tables"
)

// Execer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// maxParams stays below the bind parameter limit of every supported engine.
const maxParams = 30000

// InsertIgnore inserts records into t and silently skips rows whose primary
// key already exists, so a batch can be replayed after a crash. All records
// must share the same columns. It returns the number of rows actually
// inserted as reported by the driver.
func InsertIgnore(ctx context.Context, x Execer, d db.Dialect, t tables.Descriptor, records []Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	cols := records[0].Columns
	if len(cols) == 0 {
		return 0, fmt.Errorf("%s: record has no columns", t.Name)
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.Quote(c)
	}
	perChunk := max(1, maxParams/len(cols))

	var inserted int64
	for chunk := range slices.Chunk(records, perChunk) {
		ib := d.Builder().Insert(d.Quote(t.Name)).Columns(quoted...)
		switch d {
		case db.Postgres:
			ib = ib.Suffix("ON CONFLICT (" + d.Quote(t.PK) + ") DO NOTHING")
		case db.MySQL:
			ib = ib.Options("IGNORE")
		default:
			ib = ib.Options("OR IGNORE")
		}
		for _, r := range chunk {
			if !slices.Equal(r.Columns, cols) {
				return inserted, fmt.Errorf("%s: records have differing columns", t.Name)
			}
			ib = ib.Values(r.Args()...)
		}
		query, args, err := ib.ToSql()
		if err != nil {
			return inserted, err
		}
		res, err := x.ExecContext(ctx, query, args...)
		if err != nil {
			return inserted, fmt.Errorf("insert into %s: %w", t.Name, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}
	return inserted, nil
}

// StripScope removes the scope column from every record.
func StripScope(t tables.Descriptor, records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Without(t.Scope)
	}
	return out
}
