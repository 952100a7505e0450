// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
)

// rawQuerier is satisfied by both *bun.DB and bun.Tx.
type rawQuerier interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

// ExecRaw executes a raw statement. Placeholders are written as `?` for
// every dialect; bun formats them.
func ExecRaw(ctx context.Context, exec rawQuerier, query string, args ...any) (sql.Result, error) {
	return exec.NewRaw(query, args...).Exec(ctx)
}

// upsert turns an insert into an insert-or-update on key, refreshing cols.
func upsert(d Dialect, q *bun.InsertQuery, key string, cols ...string) *bun.InsertQuery {
	if d == MySQL {
		q = q.On("DUPLICATE KEY UPDATE")
		for _, c := range cols {
			q = q.Set(c + " = VALUES(" + c + ")")
		}
		return q
	}
	q = q.On("CONFLICT (" + key + ") DO UPDATE")
	for _, c := range cols {
		q = q.Set(c + " = EXCLUDED." + c)
	}
	return q
}
