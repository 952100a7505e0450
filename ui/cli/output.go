// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/toeirei/repairdesk/internal/batch"
	"github.com/toeirei/repairdesk/internal/i18n"
	"github.com/toeirei/repairdesk/internal/model"
	"github.com/toeirei/repairdesk/internal/validate"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	skipStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	titleStyle = lipgloss.NewStyle().Bold(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// cliReporter prints one line per finished tenant. Units finish on several
// goroutines, so writes are serialized.
type cliReporter struct {
	mu sync.Mutex
	w  io.Writer
}

func newReporter(w io.Writer) *cliReporter { return &cliReporter{w: w} }

func (r *cliReporter) UnitDone(_ model.RunKind, res batch.Result) {
	took := res.Duration.Round(time.Millisecond)
	shop := i18n.T("unit.shop", res.ShopID)
	var line string
	switch res.Outcome.Status {
	case batch.StatusFailed:
		msg := res.Outcome.Detail
		if res.Err != nil {
			msg = res.Err.Error()
		}
		if res.Outcome.Table != "" {
			msg = i18n.T("unit.at_table", res.Outcome.Table) + ": " + msg
		}
		line = fmt.Sprintf("%s %s: %s", failStyle.Render(i18n.T("unit.failed")), shop, msg)
	case batch.StatusSkipped:
		line = fmt.Sprintf("%s %s: %s", skipStyle.Render(i18n.T("unit.skipped")), shop, res.Outcome.Detail)
	default:
		line = fmt.Sprintf("%s %s (%s)", okStyle.Render(i18n.T("unit.succeeded")), shop, took)
		if res.Outcome.Detail != "" {
			line = fmt.Sprintf("%s %s: %s (%s)", okStyle.Render(i18n.T("unit.succeeded")), shop, res.Outcome.Detail, took)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, line)
}

// Summary prints the closing block of a job.
func (r *cliReporter) Summary(runID string, rep batch.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(rep.Results) == 0 {
		fmt.Fprintln(r.w, i18n.T("job.no_units", rep.Kind))
		return
	}
	failed := strconv.Itoa(rep.Failed)
	if rep.Failed > 0 {
		failed = failStyle.Render(failed)
	}
	lines := []string{
		titleStyle.Render(i18n.T("summary.title")),
		i18n.T("summary.run", runID),
		i18n.T("summary.kind", rep.Kind),
		i18n.T("summary.processed", len(rep.Results)),
		i18n.T("summary.succeeded", rep.Succeeded),
		i18n.T("summary.skipped", rep.Skipped),
		i18n.T("summary.failed", failed),
	}
	fmt.Fprintln(r.w, boxStyle.Render(strings.Join(lines, "\n")))
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetAutoWrapText(false)
	t.SetHeader(header)
	return t
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func renderRuns(w io.Writer, runs []model.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, i18n.T("runs.none"))
		return
	}
	t := newTable(w, i18n.T("table.run"), i18n.T("table.kind"), i18n.T("table.status"), i18n.T("table.started"),
		i18n.T("table.finished"), i18n.T("table.succeeded"), i18n.T("table.skipped"), i18n.T("table.failed"))
	for _, r := range runs {
		started := r.StartedAt
		t.Append([]string{
			r.ID,
			string(r.Kind),
			string(r.Status),
			formatTime(&started),
			formatTime(r.FinishedAt),
			strconv.Itoa(r.Metadata.Succeeded),
			strconv.Itoa(r.Metadata.Skipped),
			strconv.Itoa(r.Metadata.Failed),
		})
	}
	t.Render()
}

func renderAudit(w io.Writer, entries []model.AuditEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, i18n.T("audit.none"))
		return
	}
	t := newTable(w, i18n.T("table.timestamp"), i18n.T("table.user"), i18n.T("table.action"), i18n.T("table.detail"))
	for _, e := range entries {
		ts := e.Timestamp
		t.Append([]string{formatTime(&ts), e.Username, e.Action, e.Details})
	}
	t.Render()
}

func renderCheckpoints(w io.Writer, shopID int64, cps []model.Checkpoint) {
	if len(cps) == 0 {
		fmt.Fprintln(w, i18n.T("checkpoints.none", shopID))
		return
	}
	t := newTable(w, i18n.T("table.table"), i18n.T("table.status"), i18n.T("table.last_pk"),
		i18n.T("table.rows"), i18n.T("table.last_synced"), i18n.T("table.error"))
	for _, cp := range cps {
		t.Append([]string{
			cp.Table,
			string(cp.Status),
			strconv.FormatInt(cp.LastSyncedPK, 10),
			strconv.FormatInt(cp.RowsProcessed, 10),
			formatTime(cp.LastSyncedAt),
			cp.LastError,
		})
	}
	t.Render()
}

func renderValidation(w io.Writer, rep validate.Report) {
	if rep.Failed == 0 {
		fmt.Fprintln(w, okStyle.Render(i18n.T("validate.all_passed", rep.Checks, len(rep.Tenants))))
		return
	}
	t := newTable(w, i18n.T("table.shop"), i18n.T("table.check"), i18n.T("table.table"),
		i18n.T("table.master"), i18n.T("table.tenant"), i18n.T("table.detail"))
	for _, tr := range rep.Tenants {
		for _, f := range tr.Failures {
			t.Append([]string{
				strconv.FormatInt(tr.ShopID, 10),
				string(f.Kind),
				f.Table,
				countCell(f.Kind == validate.RowCountMismatch, f.Master),
				countCell(f.Kind != validate.TenantUnreachable && f.Kind != validate.CheckError, f.Tenant),
				f.Detail,
			})
		}
	}
	t.Render()
	fmt.Fprintln(w, failStyle.Render(i18n.T("validate.some_failed", rep.Failed, rep.Checks)))
}

func countCell(show bool, n int64) string {
	if !show {
		return ""
	}
	return strconv.FormatInt(n, 10)
}

type connectionRow struct {
	conn  model.TenantConnection
	creds *model.Credentials
	err   error
}

func renderConnections(w io.Writer, rows []connectionRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, i18n.T("registry.none"))
		return
	}
	t := newTable(w, i18n.T("table.shop"), i18n.T("table.store"), i18n.T("table.created"), i18n.T("table.updated"))
	for _, r := range rows {
		target := ""
		switch {
		case r.err != nil:
			target = failStyle.Render(r.err.Error())
		case r.creds != nil:
			target = r.creds.String()
		}
		created, updated := r.conn.CreatedAt, r.conn.UpdatedAt
		t.Append([]string{
			strconv.FormatInt(r.conn.ShopID, 10),
			target,
			formatTime(&created),
			formatTime(&updated),
		})
	}
	t.Render()
}
