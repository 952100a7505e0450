// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package provision

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/toeirei/repairdesk/internal/logging"
	"github.com/toeirei/repairdesk/internal/model"
	"github.com/toeirei/repairdesk/internal/security"
)

// mysqlDatabaseExists is ER_DB_CREATE_EXISTS.
const mysqlDatabaseExists = 1007

// MySQLProvisioner gives every tenant its own schema and user.
type MySQLProvisioner struct {
	db     *sql.DB
	naming Naming
	host   string
	port   int
}

// NewMySQLProvisioner connects to the admin DSN (go-sql-driver format).
func NewMySQLProvisioner(ctx context.Context, adminDSN string, naming Naming, host string, port int) (*MySQLProvisioner, error) {
	cfg, err := mysql.ParseDSN(adminDSN)
	if err != nil {
		return nil, fmt.Errorf("parse admin DSN: %w", err)
	}
	conn, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connect admin: %w", err)
	}
	if h, p, err := net.SplitHostPort(cfg.Addr); err == nil {
		if host == "" {
			host = h
		}
		if port == 0 {
			port, _ = strconv.Atoi(p)
		}
	}
	return &MySQLProvisioner{db: conn, naming: naming, host: host, port: port}, nil
}

func mysqlIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func mysqlLiteral(s string) string {
	return quoteLiteral(strings.ReplaceAll(s, `\`, `\\`))
}

func (p *MySQLProvisioner) account(shopID int64) string {
	return mysqlLiteral(p.naming.Role(shopID)) + "@'%'"
}

// Exists reports whether the tenant schema exists.
func (p *MySQLProvisioner) Exists(ctx context.Context, shopID int64) (bool, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?", p.naming.Database(shopID)).Scan(&n)
	return n > 0, err
}

// Provision creates the schema and user of shop.
func (p *MySQLProvisioner) Provision(ctx context.Context, shop model.Shop) (Result, error) {
	dbName, role := p.naming.Database(shop.ID), p.naming.Role(shop.ID)

	_, err := p.db.ExecContext(ctx, "CREATE DATABASE "+mysqlIdent(dbName)+" CHARACTER SET utf8mb4")
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDatabaseExists {
		return Result{Shop: shop, AlreadyProvisioned: true}, nil
	}
	if err != nil {
		return Result{}, failed(shop.ID, "create database", err)
	}

	password, err := security.GeneratePassword()
	if err != nil {
		p.rollback(shop.ID, dbName)
		return Result{}, failed(shop.ID, "generate password", err)
	}
	for _, step := range []struct{ name, stmt string }{
		// A user left over from an interrupted attempt gets a fresh password.
		{"drop leftover user", "DROP USER IF EXISTS " + p.account(shop.ID)},
		{"create user", "CREATE USER " + p.account(shop.ID) + " IDENTIFIED BY " + mysqlLiteral(password.Reveal())},
		{"grant privileges", "GRANT ALL PRIVILEGES ON " + mysqlIdent(dbName) + ".* TO " + p.account(shop.ID)},
	} {
		if _, err := p.db.ExecContext(ctx, step.stmt); err != nil {
			p.rollback(shop.ID, dbName)
			return Result{}, failed(shop.ID, step.name, err)
		}
	}

	return Result{
		Shop: shop,
		Credentials: model.Credentials{
			Driver:   model.DriverMySQL,
			Host:     p.host,
			Port:     p.port,
			Database: dbName,
			Username: role,
			Password: password,
		},
	}, nil
}

func (p *MySQLProvisioner) rollback(shopID int64, dbName string) {
	ctx := context.Background()
	if _, err := p.db.ExecContext(ctx, "DROP DATABASE IF EXISTS "+mysqlIdent(dbName)); err != nil {
		logging.Warnf("provision: rollback of schema %s for shop %d failed: %v", dbName, shopID, err)
	}
	if _, err := p.db.ExecContext(ctx, "DROP USER IF EXISTS "+p.account(shopID)); err != nil {
		logging.Warnf("provision: rollback of user for shop %d failed: %v", shopID, err)
	}
}

// Deprovision drops the schema and user.
func (p *MySQLProvisioner) Deprovision(ctx context.Context, shopID int64) error {
	if _, err := p.db.ExecContext(ctx, "DROP DATABASE IF EXISTS "+mysqlIdent(p.naming.Database(shopID))); err != nil {
		return failed(shopID, "drop database", err)
	}
	if _, err := p.db.ExecContext(ctx, "DROP USER IF EXISTS "+p.account(shopID)); err != nil {
		return failed(shopID, "drop user", err)
	}
	return nil
}

// Close releases the admin connection.
func (p *MySQLProvisioner) Close() error { return p.db.Close() }
