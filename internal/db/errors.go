// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicate is returned when attempting to insert a record that already exists.
	ErrDuplicate = errors.New("duplicate record")
	// ErrUnsupportedDialect is returned for database types other than sqlite, postgres and mysql.
	ErrUnsupportedDialect = errors.New("unsupported database type")
	// ErrMasterUnreachable marks failures to reach the master store. It is
	// always fatal for a job.
	ErrMasterUnreachable = errors.New("master store unreachable")
	// ErrTenantUnreachable marks network or authentication failures against a
	// tenant store.
	ErrTenantUnreachable = errors.New("tenant store unreachable")
	// ErrCheckpointRegressed is returned when a checkpoint update would move
	// last_synced_pk backwards.
	ErrCheckpointRegressed = errors.New("checkpoint would move backwards")
	// ErrRunNotRunning is returned when finishing a run that already finished.
	ErrRunNotRunning = errors.New("run is not running")
	// ErrShopNotFound is returned when a shop id is unknown to the master store.
	ErrShopNotFound = errors.New("shop not found")
)

// TenantError wraps a failure to reach one tenant store. It matches both
// ErrTenantUnreachable and the underlying driver error.
type TenantError struct {
	ShopID int64
	Err    error
}

func (e *TenantError) Error() string {
	return fmt.Sprintf("tenant store for shop %d unreachable: %v", e.ShopID, e.Err)
}

func (e *TenantError) Unwrap() []error { return []error{ErrTenantUnreachable, e.Err} }

// MapDBError maps driver-level constraint violations to ErrDuplicate. Typed
// driver errors are checked first; the string fallback covers sqlite and
// wrapped messages.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return ErrDuplicate
	}
	le := strings.ToLower(err.Error())
	// MySQL duplicate entry, Postgres unique violation (23505), SQLite unique constraint
	if strings.Contains(le, "duplicate") || strings.Contains(le, "unique") || strings.Contains(le, "23505") || strings.Contains(le, "1062") {
		return ErrDuplicate
	}
	return err
}
