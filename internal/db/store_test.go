// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/toeirei/repairdesk/internal/model"
)

func TestConnections_UpsertGetListDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	advance := fixedClock(s, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	if c, err := s.GetConnection(ctx, 7); err != nil || c != nil {
		t.Fatalf("expected no connection, got %v, %v", c, err)
	}
	if err := s.UpsertConnection(ctx, 7, []byte("first")); err != nil {
		t.Fatalf("UpsertConnection: %v", err)
	}
	advance(time.Hour)
	if err := s.UpsertConnection(ctx, 7, []byte("second")); err != nil {
		t.Fatalf("UpsertConnection (replace): %v", err)
	}
	if err := s.UpsertConnection(ctx, 3, []byte("other")); err != nil {
		t.Fatalf("UpsertConnection: %v", err)
	}

	c, err := s.GetConnection(ctx, 7)
	if err != nil || c == nil {
		t.Fatalf("GetConnection: %v, %v", c, err)
	}
	if !bytes.Equal(c.Ciphertext, []byte("second")) {
		t.Fatalf("last write should win, got %q", c.Ciphertext)
	}
	if !c.UpdatedAt.After(c.CreatedAt) {
		t.Fatalf("expected created_at kept and updated_at refreshed: %v / %v", c.CreatedAt, c.UpdatedAt)
	}

	ids, err := s.ConnectionShopIDs(ctx)
	if err != nil {
		t.Fatalf("ConnectionShopIDs: %v", err)
	}
	if !reflect.DeepEqual(ids, []int64{3, 7}) {
		t.Fatalf("unexpected ids %v", ids)
	}

	if err := s.DeleteConnection(ctx, 7); err != nil {
		t.Fatalf("DeleteConnection: %v", err)
	}
	if err := s.DeleteConnection(ctx, 7); err != nil {
		t.Fatalf("DeleteConnection of a missing record should be a no-op: %v", err)
	}
	all, err := s.ListConnections(ctx)
	if err != nil || len(all) != 1 || all[0].ShopID != 3 {
		t.Fatalf("unexpected connections after delete: %v, %v", all, err)
	}
}

func TestConnections_SaveConnectionsIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.UpsertConnection(ctx, 1, []byte("old")); err != nil {
		t.Fatalf("UpsertConnection: %v", err)
	}
	err := s.SaveConnections(ctx, []model.TenantConnection{
		{ShopID: 1, Ciphertext: []byte("new")},
		{ShopID: 2, Ciphertext: nil},
	})
	if err == nil {
		t.Fatalf("expected NOT NULL violation for nil ciphertext")
	}
	c, _ := s.GetConnection(ctx, 1)
	if c == nil || string(c.Ciphertext) != "old" {
		t.Fatalf("failed transaction must not change records, got %v", c)
	}

	if err := s.SaveConnections(ctx, []model.TenantConnection{{ShopID: 1, Ciphertext: []byte("new")}, {ShopID: 2, Ciphertext: []byte("two")}}); err != nil {
		t.Fatalf("SaveConnections: %v", err)
	}
	ids, _ := s.ConnectionShopIDs(ctx)
	if len(ids) != 2 {
		t.Fatalf("expected two connections, got %v", ids)
	}
}

func TestRuns_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	advance := fixedClock(s, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	first, err := s.CreateRun(ctx, model.RunMigrate, model.RunMetadata{BatchSize: 100, Tables: []string{"customers"}})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if first.Status != model.RunRunning || first.ID == "" {
		t.Fatalf("unexpected run %+v", first)
	}
	advance(time.Minute)
	meta := model.RunMetadata{BatchSize: 100, Processed: 2, Succeeded: 1, Failed: 1, Failures: []model.UnitFailure{{ShopID: 9, Error: "boom"}}}
	if err := s.FinishRun(ctx, first.ID, model.RunCompleted, meta); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := s.FinishRun(ctx, first.ID, model.RunCompleted, meta); !errors.Is(err, ErrRunNotRunning) {
		t.Fatalf("expected ErrRunNotRunning on second finish, got %v", err)
	}

	got, err := s.GetRun(ctx, first.ID)
	if err != nil || got == nil {
		t.Fatalf("GetRun: %v, %v", got, err)
	}
	if got.Status != model.RunCompleted || got.FinishedAt == nil {
		t.Fatalf("run not completed: %+v", got)
	}
	if got.Metadata.Failed != 1 || len(got.Metadata.Failures) != 1 || got.Metadata.Failures[0].ShopID != 9 {
		t.Fatalf("metadata not persisted: %+v", got.Metadata)
	}

	advance(time.Minute)
	if _, err := s.CreateRun(ctx, model.RunValidate, model.RunMetadata{}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	runs, err := s.ListRuns(ctx, "", 10)
	if err != nil || len(runs) != 2 {
		t.Fatalf("ListRuns: %v, %v", runs, err)
	}
	if runs[0].Kind != model.RunValidate {
		t.Fatalf("expected newest run first, got %s", runs[0].Kind)
	}
	migrates, _ := s.ListRuns(ctx, model.RunMigrate, 0)
	if len(migrates) != 1 {
		t.Fatalf("expected kind filter to apply, got %d", len(migrates))
	}
	if missing, err := s.GetRun(ctx, "nope"); err != nil || missing != nil {
		t.Fatalf("expected nil for unknown run, got %v, %v", missing, err)
	}
}

func TestCheckpoints_StateMachine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if cp, err := s.GetCheckpoint(ctx, 1, "customers"); err != nil || cp != nil {
		t.Fatalf("expected no checkpoint, got %v, %v", cp, err)
	}
	cp, err := s.StartCheckpoint(ctx, 1, "customers")
	if err != nil {
		t.Fatalf("StartCheckpoint: %v", err)
	}
	if cp.Status != model.CheckpointInProgress || cp.LastSyncedPK != 0 {
		t.Fatalf("unexpected fresh checkpoint %+v", cp)
	}

	if err := s.AdvanceCheckpoint(ctx, 1, "customers", 10, 5); err != nil {
		t.Fatalf("AdvanceCheckpoint: %v", err)
	}
	if err := s.AdvanceCheckpoint(ctx, 1, "customers", 20, 4); err != nil {
		t.Fatalf("AdvanceCheckpoint: %v", err)
	}
	if err := s.AdvanceCheckpoint(ctx, 1, "customers", 15, 1); !errors.Is(err, ErrCheckpointRegressed) {
		t.Fatalf("expected ErrCheckpointRegressed, got %v", err)
	}

	if err := s.FailCheckpoint(ctx, 1, "customers", errors.New("tenant went away")); err != nil {
		t.Fatalf("FailCheckpoint: %v", err)
	}
	cp, _ = s.GetCheckpoint(ctx, 1, "customers")
	if cp.Status != model.CheckpointFailed || cp.LastError != "tenant went away" {
		t.Fatalf("expected failed checkpoint, got %+v", cp)
	}
	if cp.LastSyncedPK != 20 || cp.RowsProcessed != 9 || cp.LastSyncedAt == nil {
		t.Fatalf("failing must keep progress, got %+v", cp)
	}

	cp, err = s.StartCheckpoint(ctx, 1, "customers")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if cp.Status != model.CheckpointInProgress || cp.LastSyncedPK != 20 || cp.LastError != "" {
		t.Fatalf("restart should resume from stored position, got %+v", cp)
	}

	if err := s.CompleteCheckpoint(ctx, 1, "customers"); err != nil {
		t.Fatalf("CompleteCheckpoint: %v", err)
	}
	cp, _ = s.StartCheckpoint(ctx, 1, "customers")
	if cp.Status != model.CheckpointCompleted {
		t.Fatalf("start must not reopen a completed checkpoint, got %s", cp.Status)
	}
	_ = s.FailCheckpoint(ctx, 1, "customers", errors.New("late"))
	cp, _ = s.GetCheckpoint(ctx, 1, "customers")
	if cp.Status != model.CheckpointCompleted {
		t.Fatalf("fail must not override completed, got %s", cp.Status)
	}

	// Failing an unattempted table creates it.
	if err := s.FailCheckpoint(ctx, 1, "repairs", errors.New("unreachable")); err != nil {
		t.Fatalf("FailCheckpoint: %v", err)
	}
	list, err := s.ListCheckpoints(ctx, 1)
	if err != nil || len(list) != 2 || list[0].Table != "customers" || list[1].Status != model.CheckpointFailed {
		t.Fatalf("unexpected checkpoints %+v, %v", list, err)
	}

	n, err := s.DeleteCheckpoints(ctx, 1)
	if err != nil || n != 2 {
		t.Fatalf("DeleteCheckpoints: %d, %v", n, err)
	}
}

func TestLogAction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.LogAction(ctx, "MIGRATE_TENANT_SUCCESS", "shop: 1"); err != nil {
		t.Fatalf("LogAction: %v", err)
	}
	entries, err := s.ListAuditEntries(ctx, 10)
	if err != nil || len(entries) != 1 {
		t.Fatalf("ListAuditEntries: %v, %v", entries, err)
	}
	if entries[0].Action != "MIGRATE_TENANT_SUCCESS" || entries[0].Username == "" {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
}

func TestShops(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.DB().Exec(`CREATE TABLE shops (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`); err != nil {
		t.Fatalf("create shops: %v", err)
	}
	if _, err := s.DB().Exec(`INSERT INTO shops (id, name) VALUES (2, 'Beta'), (1, 'Alpha')`); err != nil {
		t.Fatalf("insert shops: %v", err)
	}
	shops, err := s.ListShops(ctx)
	if err != nil {
		t.Fatalf("ListShops: %v", err)
	}
	if !reflect.DeepEqual(shops, []model.Shop{{ID: 1, Name: "Alpha"}, {ID: 2, Name: "Beta"}}) {
		t.Fatalf("unexpected shops %v", shops)
	}
	if _, err := s.GetShop(ctx, 9); !errors.Is(err, ErrShopNotFound) {
		t.Fatalf("expected ErrShopNotFound, got %v", err)
	}
}
