// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package provision

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/toeirei/repairdesk/internal/model"
)

// SQLiteProvisioner keeps one database file per tenant in a directory. File
// permissions are the isolation boundary.
type SQLiteProvisioner struct {
	dir    string
	naming Naming
}

// NewSQLiteProvisioner creates dir if needed.
func NewSQLiteProvisioner(dir string, naming Naming) (*SQLiteProvisioner, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create tenant directory: %w", err)
	}
	return &SQLiteProvisioner{dir: abs, naming: naming}, nil
}

// Path returns the database file of shopID.
func (p *SQLiteProvisioner) Path(shopID int64) string {
	return filepath.Join(p.dir, p.naming.Database(shopID)+".db")
}

// Exists reports whether the tenant file exists.
func (p *SQLiteProvisioner) Exists(_ context.Context, shopID int64) (bool, error) {
	_, err := os.Stat(p.Path(shopID))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Provision creates an empty database file. O_EXCL makes concurrent
// attempts for the same shop resolve to exactly one creator.
func (p *SQLiteProvisioner) Provision(_ context.Context, shop model.Shop) (Result, error) {
	path := p.Path(shop.ID)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return Result{Shop: shop, AlreadyProvisioned: true}, nil
	}
	if err != nil {
		return Result{}, failed(shop.ID, "create database file", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return Result{}, failed(shop.ID, "create database file", err)
	}
	return Result{
		Shop:        shop,
		Credentials: model.Credentials{Driver: model.DriverSQLite, Database: path},
	}, nil
}

// Deprovision removes the database file and its WAL companions.
func (p *SQLiteProvisioner) Deprovision(_ context.Context, shopID int64) error {
	path := p.Path(shopID)
	for _, f := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return failed(shopID, "remove database file", err)
		}
	}
	return nil
}

// Close is a no-op.
func (p *SQLiteProvisioner) Close() error { return nil }
