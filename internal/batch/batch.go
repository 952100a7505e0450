// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package batch runs one unit of work per tenant with bounded concurrency
// and collects the outcome of each. A failing tenant never stops the others.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/toeirei/repairdesk/internal/db"
	"github.com/toeirei/repairdesk/internal/logging"
	"github.com/toeirei/repairdesk/internal/metrics"
	"github.com/toeirei/repairdesk/internal/model"
	"github.com/toeirei/repairdesk/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// ErrUnitsFailed is returned by Report.Err when at least one unit failed.
var ErrUnitsFailed = errors.New("one or more tenants failed")

// Status is the outcome of one unit.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Outcome is what a task reports for its tenant. The zero Outcome means
// succeeded.
type Outcome struct {
	Status Status
	Detail string
	// Table is the table being processed when a unit failed, if any.
	Table string
}

// Task processes one tenant.
type Task func(ctx context.Context, shopID int64) (Outcome, error)

// Result is a finished unit.
type Result struct {
	ShopID   int64
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// Reporter receives one call per finished unit. Calls may come from
// several goroutines at once.
type Reporter interface {
	UnitDone(kind model.RunKind, r Result)
}

// Report aggregates the results of a run, in input order.
type Report struct {
	Kind      model.RunKind
	Results   []Result
	Succeeded int
	Skipped   int
	Failed    int
}

// Err returns ErrUnitsFailed when any unit failed.
func (r Report) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%s: %w (%d of %d)", r.Kind, ErrUnitsFailed, r.Failed, len(r.Results))
}

// Failures lists the failed units for run metadata.
func (r Report) Failures() []model.UnitFailure {
	var out []model.UnitFailure
	for _, res := range r.Results {
		if res.Outcome.Status != StatusFailed {
			continue
		}
		msg := res.Outcome.Detail
		if res.Err != nil {
			msg = res.Err.Error()
		}
		out = append(out, model.UnitFailure{ShopID: res.ShopID, Table: res.Outcome.Table, Error: msg})
	}
	return out
}

// Apply copies the counters into run metadata.
func (r Report) Apply(meta *model.RunMetadata) {
	meta.Processed = len(r.Results)
	meta.Succeeded = r.Succeeded
	meta.Skipped = r.Skipped
	meta.Failed = r.Failed
	meta.Failures = r.Failures()
}

// Runner executes a Task for every tenant of a job.
type Runner struct {
	Kind        model.RunKind
	Concurrency int
	Out         Reporter
	Audit       db.AuditWriter
	Metrics     *metrics.Job
}

// Run executes task for every shop id with at most Concurrency units in
// flight. Once ctx is done no further unit is started; those units are
// reported as failed with the context error.
func (r *Runner) Run(ctx context.Context, shopIDs []int64, task Task) Report {
	ctx, span := tracing.Tracer().Start(ctx, "repairdesk."+string(r.Kind))
	defer span.End()
	span.SetAttributes(attribute.Int("repairdesk.tenants", len(shopIDs)))

	results := make([]Result, len(shopIDs))
	var g errgroup.Group
	g.SetLimit(max(1, r.Concurrency))
	for i, id := range shopIDs {
		if err := ctx.Err(); err != nil {
			results[i] = r.finish(ctx, Result{ShopID: id, Outcome: Outcome{Status: StatusFailed}, Err: err})
			continue
		}
		g.Go(func() error {
			results[i] = r.finish(ctx, r.runOne(ctx, id, task))
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Kind: r.Kind, Results: results}
	for _, res := range results {
		switch res.Outcome.Status {
		case StatusSucceeded:
			rep.Succeeded++
		case StatusSkipped:
			rep.Skipped++
		default:
			rep.Failed++
		}
	}
	if rep.Failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d tenants failed", rep.Failed))
	}
	return rep
}

func (r *Runner) runOne(ctx context.Context, shopID int64, task Task) (res Result) {
	ctx, span := tracing.Tracer().Start(ctx, "repairdesk.tenant")
	defer span.End()
	span.SetAttributes(attribute.Int64("repairdesk.shop_id", shopID))

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = Result{ShopID: shopID, Outcome: Outcome{Status: StatusFailed}, Err: fmt.Errorf("panic: %v", p)}
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
	}()

	out, err := task(ctx, shopID)
	if err != nil {
		out.Status = StatusFailed
	} else if out.Status == "" {
		out.Status = StatusSucceeded
	}
	return Result{ShopID: shopID, Outcome: out, Err: err}
}

// finish reports, audits and measures one unit.
func (r *Runner) finish(ctx context.Context, res Result) Result {
	log := logging.With("kind", r.Kind, "shop", res.ShopID)
	if res.Err != nil {
		log.Error("unit failed", "err", res.Err, "table", res.Outcome.Table)
	} else {
		log.Debug("unit finished", "status", res.Outcome.Status, "took", res.Duration)
	}
	r.Metrics.ObserveUnit(string(res.Outcome.Status), res.Duration)
	if r.Out != nil {
		r.Out.UnitDone(r.Kind, res)
	}
	if r.Audit != nil {
		details := fmt.Sprintf("shop: %d, status: %s", res.ShopID, res.Outcome.Status)
		if res.Err != nil {
			details += ", error: " + res.Err.Error()
		}
		// The audit must be written even when the job is being cancelled.
		if err := r.Audit.LogAction(context.WithoutCancel(ctx), "TENANT_"+strings.ToUpper(string(r.Kind)), details); err != nil {
			log.Warn("audit write failed", "err", err)
		}
	}
	return res
}

