// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package batch

import (
	"context"
	"fmt"

	"github.com/toeirei/repairdesk/internal/logging"
	"github.com/toeirei/repairdesk/internal/model"
)

// RunStore records job runs. *db.Store implements it.
type RunStore interface {
	CreateRun(ctx context.Context, kind model.RunKind, meta model.RunMetadata) (*model.Run, error)
	FinishRun(ctx context.Context, id string, status model.RunStatus, meta model.RunMetadata) error
}

// JobFunc does the work of a job. A non-nil error is fatal: it aborts the
// run. Per-tenant failures belong in the Report.
type JobFunc func(ctx context.Context, run *model.Run) (Report, error)

// RunJob records a run around fn. The run row is created before fn starts
// and is closed as completed, or as aborted when fn returns an error. The
// returned error is fn's fatal error, a bookkeeping error, or Report.Err.
func RunJob(ctx context.Context, store RunStore, kind model.RunKind, meta model.RunMetadata, fn JobFunc) (Report, error) {
	run, err := store.CreateRun(ctx, kind, meta)
	if err != nil {
		return Report{Kind: kind}, fmt.Errorf("start %s run: %w", kind, err)
	}
	log := logging.With("run", run.ID, "kind", kind)
	log.Info("run started")

	rep, fnErr := fn(ctx, run)
	rep.Kind = kind
	rep.Apply(&meta)

	// Close the run even when ctx was cancelled.
	finishCtx := context.WithoutCancel(ctx)
	if fnErr != nil {
		meta.Error = fnErr.Error()
		if err := store.FinishRun(finishCtx, run.ID, model.RunAborted, meta); err != nil {
			log.Error("could not mark run aborted", "err", err)
		}
		log.Error("run aborted", "err", fnErr)
		return rep, fnErr
	}
	if err := store.FinishRun(finishCtx, run.ID, model.RunCompleted, meta); err != nil {
		return rep, fmt.Errorf("finish %s run: %w", kind, err)
	}
	log.Info("run completed", "succeeded", rep.Succeeded, "skipped", rep.Skipped, "failed", rep.Failed)
	return rep, rep.Err()
}
