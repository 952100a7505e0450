// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/toeirei/repairdesk/internal/logging"
	"github.com/toeirei/repairdesk/internal/model"
	"github.com/toeirei/repairdesk/internal/security"
)

// SQLSTATE codes returned when a concurrent provisioner won the race.
const (
	pgDuplicateDatabase = "42P04"
	pgDuplicateObject   = "42710"
)

// PostgresProvisioner gives every tenant its own database owned by its own
// login role.
type PostgresProvisioner struct {
	pool    *pgxpool.Pool
	naming  Naming
	host    string
	port    int
	sslmode string
}

// NewPostgresProvisioner connects to the admin DSN. host and port override
// the address written into tenant credentials.
func NewPostgresProvisioner(ctx context.Context, adminDSN string, naming Naming, host string, port int, sslmode string) (*PostgresProvisioner, error) {
	cfg, err := pgxpool.ParseConfig(adminDSN)
	if err != nil {
		return nil, fmt.Errorf("parse admin DSN: %w", err)
	}
	cfg.MaxConns = 4
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect admin: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect admin: %w", err)
	}
	if host == "" {
		host = cfg.ConnConfig.Host
	}
	if port == 0 {
		port = int(cfg.ConnConfig.Port)
	}
	if sslmode == "" {
		sslmode = "prefer"
	}
	return &PostgresProvisioner{pool: pool, naming: naming, host: host, port: port, sslmode: sslmode}, nil
}

func ident(name string) string { return pgx.Identifier{name}.Sanitize() }

func (p *PostgresProvisioner) exists(ctx context.Context, query, name string) (bool, error) {
	var found bool
	err := p.pool.QueryRow(ctx, query, name).Scan(&found)
	return found, err
}

func (p *PostgresProvisioner) databaseExists(ctx context.Context, name string) (bool, error) {
	return p.exists(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name)
}

func (p *PostgresProvisioner) roleExists(ctx context.Context, name string) (bool, error) {
	return p.exists(ctx, "SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)", name)
}

// Exists reports whether the tenant database exists.
func (p *PostgresProvisioner) Exists(ctx context.Context, shopID int64) (bool, error) {
	return p.databaseExists(ctx, p.naming.Database(shopID))
}

// Provision creates the role and database of shop. A role left over from an
// interrupted attempt is dropped and recreated with a fresh password.
func (p *PostgresProvisioner) Provision(ctx context.Context, shop model.Shop) (Result, error) {
	dbName, role := p.naming.Database(shop.ID), p.naming.Role(shop.ID)

	found, err := p.databaseExists(ctx, dbName)
	if err != nil {
		return Result{}, failed(shop.ID, "check database", err)
	}
	if found {
		return Result{Shop: shop, AlreadyProvisioned: true}, nil
	}
	leftover, err := p.roleExists(ctx, role)
	if err != nil {
		return Result{}, failed(shop.ID, "check role", err)
	}
	if leftover {
		logging.Warnf("provision: dropping leftover role %s of shop %d", role, shop.ID)
		if _, err := p.pool.Exec(ctx, "DROP ROLE IF EXISTS "+ident(role)); err != nil {
			return Result{}, failed(shop.ID, "drop leftover role", err)
		}
	}

	password, err := security.GeneratePassword()
	if err != nil {
		return Result{}, failed(shop.ID, "generate password", err)
	}
	_, err = p.pool.Exec(ctx, fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD %s NOSUPERUSER NOCREATEDB NOCREATEROLE",
		ident(role), quoteLiteral(password.Reveal())))
	if isPgCode(err, pgDuplicateObject) {
		return Result{Shop: shop, AlreadyProvisioned: true}, nil
	}
	if err != nil {
		return Result{}, failed(shop.ID, "create role", err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s OWNER %s", ident(dbName), ident(role)))
	if isPgCode(err, pgDuplicateDatabase) {
		p.rollback(shop.ID, "", role)
		return Result{Shop: shop, AlreadyProvisioned: true}, nil
	}
	if err != nil {
		p.rollback(shop.ID, "", role)
		return Result{}, failed(shop.ID, "create database", err)
	}

	for _, stmt := range []string{
		fmt.Sprintf("REVOKE ALL ON DATABASE %s FROM PUBLIC", ident(dbName)),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s", ident(dbName), ident(role)),
	} {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			p.rollback(shop.ID, dbName, role)
			return Result{}, failed(shop.ID, "grant privileges", err)
		}
	}

	return Result{
		Shop: shop,
		Credentials: model.Credentials{
			Driver:   model.DriverPostgres,
			Host:     p.host,
			Port:     p.port,
			Database: dbName,
			Username: role,
			Password: password,
			SSLMode:  p.sslmode,
		},
	}, nil
}

// rollback drops what a failed Provision created. It runs detached from the
// caller's context so a cancelled job still cleans up.
func (p *PostgresProvisioner) rollback(shopID int64, dbName, role string) {
	ctx := context.Background()
	if dbName != "" {
		if _, err := p.pool.Exec(ctx, "DROP DATABASE IF EXISTS "+ident(dbName)); err != nil {
			logging.Warnf("provision: rollback of database %s for shop %d failed: %v", dbName, shopID, err)
		}
	}
	if _, err := p.pool.Exec(ctx, "DROP ROLE IF EXISTS "+ident(role)); err != nil {
		logging.Warnf("provision: rollback of role %s for shop %d failed: %v", role, shopID, err)
	}
}

// Deprovision terminates open sessions and drops the database and role.
func (p *PostgresProvisioner) Deprovision(ctx context.Context, shopID int64) error {
	dbName, role := p.naming.Database(shopID), p.naming.Role(shopID)
	if _, err := p.pool.Exec(ctx,
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()", dbName); err != nil {
		return failed(shopID, "terminate sessions", err)
	}
	if _, err := p.pool.Exec(ctx, "DROP DATABASE IF EXISTS "+ident(dbName)); err != nil {
		return failed(shopID, "drop database", err)
	}
	if _, err := p.pool.Exec(ctx, "DROP ROLE IF EXISTS "+ident(role)); err != nil {
		return failed(shopID, "drop role", err)
	}
	return nil
}

// Close releases the admin pool.
func (p *PostgresProvisioner) Close() error {
	p.pool.Close()
	return nil
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
