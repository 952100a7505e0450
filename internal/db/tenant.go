// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/toeirei/repairdesk/internal/model"
)

// TenantOptions bound every round trip to a tenant store so one slow or
// unreachable tenant cannot stall a whole job.
type TenantOptions struct {
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
}

// Tenant is an open handle on one tenant's dedicated store.
type Tenant struct {
	ShopID  int64
	Dialect Dialect
	DB      *sql.DB

	statementTimeout time.Duration
}

// OpenTenant opens and pings the tenant store described by creds. Failures to
// reach it are returned as *TenantError.
func OpenTenant(ctx context.Context, shopID int64, creds model.Credentials, opts TenantOptions) (*Tenant, error) {
	d, err := ParseDialect(creds.Driver)
	if err != nil {
		return nil, err
	}
	if d == SQLite {
		// The sqlite driver would silently create a missing file.
		if _, err := os.Stat(creds.Database); err != nil {
			return nil, &TenantError{ShopID: shopID, Err: err}
		}
	}
	dsn, err := TenantDSN(creds, opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sqlOpenFunc(d.DriverName(), dsn)
	if err != nil {
		return nil, &TenantError{ShopID: shopID, Err: err}
	}
	if d == SQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(4)
	}
	sqlDB.SetConnMaxIdleTime(time.Minute)

	pingCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, &TenantError{ShopID: shopID, Err: err}
	}
	dbLogf("db: connected to tenant store %s for shop %d", creds, shopID)
	return &Tenant{ShopID: shopID, Dialect: d, DB: sqlDB, statementTimeout: opts.StatementTimeout}, nil
}

// WithTimeout derives a context bounded by the statement timeout.
func (t *Tenant) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.statementTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.statementTimeout)
}

// Close releases the tenant connection pool.
func (t *Tenant) Close() error { return t.DB.Close() }

// TenantDSN renders credentials as a driver DSN.
func TenantDSN(creds model.Credentials, connectTimeout time.Duration) (string, error) {
	d, err := ParseDialect(creds.Driver)
	if err != nil {
		return "", err
	}
	switch d {
	case Postgres:
		q := url.Values{}
		if creds.SSLMode != "" {
			q.Set("sslmode", creds.SSLMode)
		}
		if connectTimeout > 0 {
			q.Set("connect_timeout", strconv.Itoa(max(1, int(connectTimeout/time.Second))))
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(creds.Username, creds.Password.Reveal()),
			Host:     net.JoinHostPort(creds.Host, strconv.Itoa(creds.Port)),
			Path:     "/" + creds.Database,
			RawQuery: q.Encode(),
		}
		return u.String(), nil
	case MySQL:
		cfg := mysql.NewConfig()
		cfg.User = creds.Username
		cfg.Passwd = creds.Password.Reveal()
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(creds.Host, strconv.Itoa(creds.Port))
		cfg.DBName = creds.Database
		cfg.ParseTime = true
		cfg.Timeout = connectTimeout
		return cfg.FormatDSN(), nil
	default:
		if creds.Database == "" {
			return "", errors.New("sqlite tenant store needs a file path")
		}
		return SQLiteFileDSN(creds.Database), nil
	}
}

// SQLiteFileDSN returns a modernc sqlite DSN for a database file with a busy
// timeout, so concurrent readers wait instead of failing.
func SQLiteFileDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
