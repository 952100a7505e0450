// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package provision

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/toeirei/repairdesk/internal/db"
	"github.com/toeirei/repairdesk/internal/logging"
)

//go:embed tenantschema
var tenantSchema embed.FS

func schemaFor(d db.Dialect) (goose.Dialect, fs.FS, error) {
	var gd goose.Dialect
	switch d {
	case db.Postgres:
		gd = goose.DialectPostgres
	case db.MySQL:
		gd = goose.DialectMySQL
	default:
		gd = goose.DialectSQLite3
	}
	sub, err := fs.Sub(tenantSchema, "tenantschema/"+string(d))
	return gd, sub, err
}

// ApplySchema brings a tenant store up to the latest business schema. It
// runs over the tenant's own connection so every table is owned by the
// tenant role. Each call uses its own goose provider, so tenants can be
// migrated concurrently.
func ApplySchema(ctx context.Context, t *db.Tenant) error {
	gd, fsys, err := schemaFor(t.Dialect)
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(gd, t.DB, fsys)
	if err != nil {
		return fmt.Errorf("tenant schema for shop %d: %w", t.ShopID, err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("tenant schema for shop %d: %w", t.ShopID, err)
	}
	for _, r := range results {
		logging.Debugf("provision: shop %d applied %s in %s", t.ShopID, r.Source.Path, r.Duration)
	}
	return nil
}

// SchemaVersion returns the tenant's current schema version.
func SchemaVersion(ctx context.Context, t *db.Tenant) (int64, error) {
	gd, fsys, err := schemaFor(t.Dialect)
	if err != nil {
		return 0, err
	}
	provider, err := goose.NewProvider(gd, t.DB, fsys)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}
