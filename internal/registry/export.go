// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/toeirei/repairdesk/internal/model"
)

const exportVersion = 1

type exportFile struct {
	Version     int            `json:"version"`
	ExportedAt  time.Time      `json:"exported_at"`
	Connections []exportRecord `json:"connections"`
}

type exportRecord struct {
	ShopID     int64     `json:"shop_id"`
	Ciphertext []byte    `json:"ciphertext"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Export writes every record, still encrypted, as zstd-compressed JSON. It
// returns the number of records written.
func (r *Registry) Export(ctx context.Context, w io.Writer) (int, error) {
	conns, err := r.store.ListConnections(ctx)
	if err != nil {
		return 0, err
	}
	f := exportFile{Version: exportVersion, ExportedAt: time.Now().UTC(), Connections: make([]exportRecord, 0, len(conns))}
	for _, c := range conns {
		f.Connections = append(f.Connections, exportRecord{
			ShopID: c.ShopID, Ciphertext: c.Ciphertext, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
		})
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return 0, err
	}
	if err := json.NewEncoder(enc).Encode(f); err != nil {
		_ = enc.Close()
		return 0, fmt.Errorf("encode registry export: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, err
	}
	r.logAction(ctx, "EXPORT_REGISTRY", fmt.Sprintf("records: %d", len(conns)))
	return len(conns), nil
}

// Import reads an Export stream and stores its records in one transaction.
// Every record must open with the registry's current key, so an export made
// under another key is rejected as a whole.
func (r *Registry) Import(ctx context.Context, rd io.Reader) (int, error) {
	dec, err := zstd.NewReader(rd)
	if err != nil {
		return 0, err
	}
	defer dec.Close()

	var f exportFile
	if err := json.NewDecoder(dec).Decode(&f); err != nil {
		return 0, fmt.Errorf("decode registry export: %w", err)
	}
	if f.Version != exportVersion {
		return 0, fmt.Errorf("%w: version %d", ErrUnsupportedExport, f.Version)
	}

	r.rotate.RLock()
	defer r.rotate.RUnlock()

	conns := make([]model.TenantConnection, 0, len(f.Connections))
	for _, rec := range f.Connections {
		creds, err := r.open(r.cipher, rec.ShopID, rec.Ciphertext)
		if err != nil {
			return 0, err
		}
		creds.Password.Zero()
		conns = append(conns, model.TenantConnection{ShopID: rec.ShopID, Ciphertext: rec.Ciphertext, CreatedAt: rec.CreatedAt})
	}
	if err := r.store.SaveConnections(ctx, conns); err != nil {
		return 0, err
	}
	r.logAction(ctx, "IMPORT_REGISTRY", fmt.Sprintf("records: %d", len(conns)))
	return len(conns), nil
}
