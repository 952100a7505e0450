// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package testutil builds throwaway master stores for tests: a file-backed
// sqlite database with the bookkeeping tables and a small business schema
// whose tables carry the shop_id scope column.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/toeirei/repairdesk/internal/db"
	"github.com/toeirei/repairdesk/internal/security"
)

// BusinessSchema is the master-side business schema used in tests. Relations
// are deliberately not declared as foreign keys.
const BusinessSchema = `
CREATE TABLE shops (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
CREATE TABLE customers (
	id INTEGER PRIMARY KEY, shop_id INTEGER NOT NULL,
	name TEXT NOT NULL, email TEXT, phone TEXT, created_at DATETIME
);
CREATE TABLE spare_parts (
	id INTEGER PRIMARY KEY, shop_id INTEGER NOT NULL,
	name TEXT NOT NULL, sku TEXT, price REAL, stock INTEGER
);
CREATE TABLE newsletters (
	id INTEGER PRIMARY KEY, shop_id INTEGER NOT NULL,
	subject TEXT NOT NULL, body TEXT, sent_at DATETIME
);
CREATE TABLE repairs (
	id INTEGER PRIMARY KEY, shop_id INTEGER NOT NULL, customer_id INTEGER,
	device TEXT, status TEXT, price REAL, received_at DATETIME
);
CREATE TABLE repair_spare_parts (
	id INTEGER PRIMARY KEY, shop_id INTEGER NOT NULL,
	repair_id INTEGER, spare_part_id INTEGER, quantity INTEGER
);
`

// TestKeyHex is a fixed registry key for tests.
const TestKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// NewMaster opens a sqlite master store in t.TempDir with the bookkeeping
// migrations and the business schema applied.
func NewMaster(t testing.TB) *db.Store {
	t.Helper()
	return NewMasterAt(t, filepath.Join(t.TempDir(), "master.db"))
}

// NewMasterAt is NewMaster with a caller chosen file, for tests that open
// the same database a second time by DSN.
func NewMasterAt(t testing.TB, path string) *db.Store {
	t.Helper()
	s, err := db.Open(context.Background(), "sqlite", db.SQLiteFileDSN(path))
	if err != nil {
		t.Fatalf("open master: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	for _, stmt := range strings.Split(BusinessSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.DB().Exec(stmt); err != nil {
			t.Fatalf("create business schema: %v", err)
		}
	}
	return s
}

// NewCipher returns a cipher keyed with TestKeyHex.
func NewCipher(t testing.TB) *security.Cipher {
	t.Helper()
	c, err := security.NewCipherFromHex(TestKeyHex)
	if err != nil {
		t.Fatalf("test cipher: %v", err)
	}
	return c
}

// Insert adds one row to table and returns its id. Column order in the
// generated statement is sorted for stable SQL.
func Insert(t testing.TB, s *db.Store, table string, values map[string]any) int64 {
	t.Helper()
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = values[c]
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	res, err := s.DB().Exec(q, args...)
	if err != nil {
		t.Fatalf("insert into %s: %v", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}
	return id
}

// AddShop inserts a shop row.
func AddShop(t testing.TB, s *db.Store, id int64, name string) {
	t.Helper()
	Insert(t, s, "shops", map[string]any{"id": id, "name": name})
}

// AddCustomers inserts n customers for shopID and returns their ids.
func AddCustomers(t testing.TB, s *db.Store, shopID int64, n int) []int64 {
	t.Helper()
	ids := make([]int64, n)
	for i := range n {
		ids[i] = Insert(t, s, "customers", map[string]any{
			"shop_id": shopID,
			"name":    fmt.Sprintf("Customer %d-%d", shopID, i+1),
			"email":   fmt.Sprintf("c%d-%d@example.test", shopID, i+1),
		})
	}
	return ids
}

// AddRepairs inserts n repairs for shopID, cycling through customerIDs.
func AddRepairs(t testing.TB, s *db.Store, shopID int64, customerIDs []int64, n int) []int64 {
	t.Helper()
	ids := make([]int64, n)
	for i := range n {
		values := map[string]any{
			"shop_id": shopID,
			"device":  fmt.Sprintf("Phone %d", i+1),
			"status":  "received",
			"price":   49.5,
		}
		if len(customerIDs) > 0 {
			values["customer_id"] = customerIDs[i%len(customerIDs)]
		}
		ids[i] = Insert(t, s, "repairs", values)
	}
	return ids
}

// FakeAuditWriter records audit entries in memory.
type FakeAuditWriter struct {
	mu      sync.Mutex
	Actions []string
	Details []string
	Err     error
}

func (f *FakeAuditWriter) LogAction(_ context.Context, action, details string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Actions = append(f.Actions, action)
	f.Details = append(f.Details, details)
	return f.Err
}

// Count returns how many entries with action were recorded.
func (f *FakeAuditWriter) Count(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.Actions {
		if a == action {
			n++
		}
	}
	return n
}
