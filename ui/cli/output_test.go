// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/toeirei/repairdesk/internal/batch"
	"github.com/toeirei/repairdesk/internal/i18n"
	"github.com/toeirei/repairdesk/internal/model"
	"github.com/toeirei/repairdesk/internal/validate"
)

func TestReporterLines(t *testing.T) {
	i18n.Init("en")
	var buf bytes.Buffer
	r := newReporter(&buf)
	r.UnitDone(model.RunMigrate, batch.Result{ShopID: 1, Outcome: batch.Outcome{Status: batch.StatusSucceeded}, Duration: time.Second})
	r.UnitDone(model.RunMigrate, batch.Result{ShopID: 2, Outcome: batch.Outcome{Status: batch.StatusSkipped, Detail: "already migrated"}})
	r.UnitDone(model.RunMigrate, batch.Result{ShopID: 3, Outcome: batch.Outcome{Status: batch.StatusFailed, Table: "repairs"}, Err: errors.New("connection reset")})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], "shop 1") || !strings.Contains(lines[0], "1s") {
		t.Errorf("unexpected success line %q", lines[0])
	}
	if !strings.Contains(lines[1], "already migrated") {
		t.Errorf("unexpected skip line %q", lines[1])
	}
	if !strings.Contains(lines[2], "table repairs") || !strings.Contains(lines[2], "connection reset") {
		t.Errorf("unexpected failure line %q", lines[2])
	}
}

func TestSummary(t *testing.T) {
	i18n.Init("en")
	var buf bytes.Buffer
	r := newReporter(&buf)
	r.Summary("run-1", batch.Report{Kind: model.RunValidate})
	if !strings.Contains(buf.String(), "validate job found no tenants") {
		t.Fatalf("unexpected empty summary %q", buf.String())
	}

	buf.Reset()
	r.Summary("run-2", batch.Report{
		Kind:      model.RunMigrate,
		Results:   make([]batch.Result, 3),
		Succeeded: 2,
		Failed:    1,
	})
	for _, want := range []string{"Summary", "run-2", "Tenants:    3", "Succeeded:  2"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("summary misses %q:\n%s", want, buf.String())
		}
	}
}

func TestSummaryIsTranslated(t *testing.T) {
	i18n.Init("de")
	defer i18n.Init("en")
	var buf bytes.Buffer
	newReporter(&buf).Summary("run-3", batch.Report{Kind: model.RunMigrate, Results: make([]batch.Result, 1), Succeeded: 1})
	if !strings.Contains(buf.String(), "Zusammenfassung") {
		t.Fatalf("expected german title in %q", buf.String())
	}
}

func TestRenderValidation(t *testing.T) {
	i18n.Init("en")
	var buf bytes.Buffer
	renderValidation(&buf, validate.Report{
		Tenants: []validate.TenantReport{{
			ShopID: 7,
			Checks: 13,
			Passed: 12,
			Failures: []validate.Failure{{
				Kind: validate.RowCountMismatch, Table: "customers", Master: 10, Tenant: 9,
				Detail: "master has 10 rows, tenant has 9",
			}},
		}},
		Checks: 13,
		Passed: 12,
		Failed: 1,
	})
	out := buf.String()
	for _, want := range []string{"row_count_mismatch", "customers", "10", "9", "1 of 13 checks failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output misses %q:\n%s", want, out)
		}
	}
}

func TestRenderAudit(t *testing.T) {
	i18n.Init("en")
	var buf bytes.Buffer
	renderAudit(&buf, []model.AuditEntry{
		{ID: 2, Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), Username: "ops", Action: "DEPROVISION_TENANT", Details: "shop: 7"},
	})
	out := buf.String()
	for _, want := range []string{"ops", "DEPROVISION_TENANT", "shop: 7"} {
		if !strings.Contains(out, want) {
			t.Errorf("audit table misses %q:\n%s", want, out)
		}
	}

	buf.Reset()
	renderAudit(&buf, nil)
	if strings.TrimSpace(buf.String()) != "The audit log is empty." {
		t.Errorf("unexpected empty output %q", buf.String())
	}
}
