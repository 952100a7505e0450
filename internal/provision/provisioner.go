// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package provision creates and drops the dedicated store of each tenant.
// It is the only package that ever holds the elevated admin connection.
package provision

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/toeirei/repairdesk/internal/db"
	"github.com/toeirei/repairdesk/internal/model"
)

// Result describes a provisioned store. When AlreadyProvisioned is set the
// store existed before the call and Credentials is empty.
type Result struct {
	Shop               model.Shop
	Credentials        model.Credentials
	AlreadyProvisioned bool
}

// Provisioner creates and drops tenant stores with elevated privileges.
type Provisioner interface {
	Provision(ctx context.Context, shop model.Shop) (Result, error)
	Deprovision(ctx context.Context, shopID int64) error
	Exists(ctx context.Context, shopID int64) (bool, error)
	Close() error
}

// Naming derives database and role names from a shop id.
type Naming struct {
	Prefix string
}

func (n Naming) prefix() string {
	if n.Prefix == "" {
		return "shop_"
	}
	return n.Prefix
}

// Database returns the tenant database name, e.g. shop_42.
func (n Naming) Database(shopID int64) string {
	return n.prefix() + strconv.FormatInt(shopID, 10)
}

// Role returns the tenant role name, e.g. shop_42_app.
func (n Naming) Role(shopID int64) string {
	return n.Database(shopID) + "_app"
}

// Options select and configure a Provisioner.
type Options struct {
	Driver    string
	AdminDSN  string
	AdminMode bool
	// Host and Port are written into tenant credentials. Empty values are
	// taken from the admin DSN.
	Host      string
	Port      int
	SSLMode   string
	Prefix    string
	SQLiteDir string
}

// Open returns the Provisioner for opts.Driver. It refuses to do anything
// unless admin mode is enabled.
func Open(ctx context.Context, opts Options) (Provisioner, error) {
	if !opts.AdminMode {
		return nil, ErrAdminModeRequired
	}
	d, err := db.ParseDialect(opts.Driver)
	if err != nil {
		return nil, err
	}
	naming := Naming{Prefix: opts.Prefix}
	switch d {
	case db.Postgres:
		if opts.AdminDSN == "" {
			return nil, fmt.Errorf("postgres provisioner: admin DSN is empty")
		}
		return NewPostgresProvisioner(ctx, opts.AdminDSN, naming, opts.Host, opts.Port, opts.SSLMode)
	case db.MySQL:
		if opts.AdminDSN == "" {
			return nil, fmt.Errorf("mysql provisioner: admin DSN is empty")
		}
		return NewMySQLProvisioner(ctx, opts.AdminDSN, naming, opts.Host, opts.Port)
	default:
		if opts.SQLiteDir == "" {
			return nil, fmt.Errorf("sqlite provisioner: tenant directory is empty")
		}
		return NewSQLiteProvisioner(opts.SQLiteDir, naming)
	}
}

// quoteLiteral quotes s as a SQL string literal for DDL that does not accept
// bind parameters.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
