// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package batch_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toeirei/repairdesk/internal/batch"
	"github.com/toeirei/repairdesk/internal/metrics"
	"github.com/toeirei/repairdesk/internal/model"
	rtest "github.com/toeirei/repairdesk/internal/testutil"
)

type recordingReporter struct {
	mu    sync.Mutex
	units []batch.Result
}

func (r *recordingReporter) UnitDone(_ model.RunKind, res batch.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units = append(r.units, res)
}

func TestRunnerCollectsOutcomesInOrder(t *testing.T) {
	out := &recordingReporter{}
	audit := &rtest.FakeAuditWriter{}
	m := metrics.NewJob("migrate")
	r := &batch.Runner{Kind: model.RunMigrate, Concurrency: 3, Out: out, Audit: audit, Metrics: m}

	boom := errors.New("boom")
	rep := r.Run(context.Background(), []int64{1, 2, 3, 4}, func(_ context.Context, id int64) (batch.Outcome, error) {
		switch id {
		case 2:
			return batch.Outcome{Status: batch.StatusSkipped, Detail: "nothing to do"}, nil
		case 3:
			return batch.Outcome{Table: "repairs"}, boom
		}
		return batch.Outcome{}, nil
	})

	require.Len(t, rep.Results, 4)
	for i, res := range rep.Results {
		assert.Equal(t, int64(i+1), res.ShopID)
	}
	assert.Equal(t, 2, rep.Succeeded)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, batch.StatusFailed, rep.Results[2].Outcome.Status)
	require.ErrorIs(t, rep.Err(), batch.ErrUnitsFailed)

	fails := rep.Failures()
	require.Len(t, fails, 1)
	assert.Equal(t, model.UnitFailure{ShopID: 3, Table: "repairs", Error: "boom"}, fails[0])

	assert.Len(t, out.units, 4)
	assert.Equal(t, 4, audit.Count("TENANT_MIGRATE"))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Units.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Units.WithLabelValues("failed")))
}

func TestRunnerRespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	r := &batch.Runner{Kind: model.RunValidate, Concurrency: 2}
	ids := []int64{1, 2, 3, 4, 5, 6, 7, 8}
	rep := r.Run(context.Background(), ids, func(context.Context, int64) (batch.Outcome, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return batch.Outcome{}, nil
	})
	assert.Equal(t, len(ids), rep.Succeeded)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.NoError(t, rep.Err())
}

func TestRunnerRecoversPanics(t *testing.T) {
	r := &batch.Runner{Kind: model.RunProvision, Concurrency: 1}
	rep := r.Run(context.Background(), []int64{1, 2}, func(_ context.Context, id int64) (batch.Outcome, error) {
		if id == 1 {
			panic("bad tenant")
		}
		return batch.Outcome{}, nil
	})
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Succeeded)
	assert.ErrorContains(t, rep.Results[0].Err, "bad tenant")
}

func TestRunnerStopsSchedulingAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &batch.Runner{Kind: model.RunMigrate, Concurrency: 1}
	var ran atomic.Int32
	rep := r.Run(ctx, []int64{1, 2, 3}, func(context.Context, int64) (batch.Outcome, error) {
		ran.Add(1)
		cancel()
		return batch.Outcome{}, nil
	})
	// The first unit may let one more start before the loop notices.
	assert.LessOrEqual(t, ran.Load(), int32(2))
	assert.Equal(t, 3, len(rep.Results))
	assert.GreaterOrEqual(t, rep.Failed, 1)
	last := rep.Results[2]
	assert.ErrorIs(t, last.Err, context.Canceled)
}

func TestRunJobCompletedWithFailures(t *testing.T) {
	ctx := context.Background()
	store := rtest.NewMaster(t)
	rep, err := batch.RunJob(ctx, store, model.RunValidate, model.RunMetadata{Concurrency: 1},
		func(ctx context.Context, run *model.Run) (batch.Report, error) {
			assert.Equal(t, model.RunRunning, run.Status)
			r := &batch.Runner{Kind: model.RunValidate}
			return r.Run(ctx, []int64{1, 2}, func(_ context.Context, id int64) (batch.Outcome, error) {
				if id == 2 {
					return batch.Outcome{}, errors.New("row count mismatch")
				}
				return batch.Outcome{}, nil
			}), nil
		})
	require.ErrorIs(t, err, batch.ErrUnitsFailed)
	assert.Equal(t, 1, rep.Failed)

	runs, err := store.ListRuns(ctx, model.RunValidate, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunCompleted, runs[0].Status)
	assert.NotNil(t, runs[0].FinishedAt)
	assert.Equal(t, 2, runs[0].Metadata.Processed)
	assert.Equal(t, 1, runs[0].Metadata.Failed)
	require.Len(t, runs[0].Metadata.Failures, 1)
	assert.Equal(t, int64(2), runs[0].Metadata.Failures[0].ShopID)
}

func TestRunJobAbortsOnFatalError(t *testing.T) {
	ctx := context.Background()
	store := rtest.NewMaster(t)
	fatal := errors.New("master store went away")
	_, err := batch.RunJob(ctx, store, model.RunMigrate, model.RunMetadata{BatchSize: 10},
		func(context.Context, *model.Run) (batch.Report, error) {
			return batch.Report{}, fatal
		})
	require.ErrorIs(t, err, fatal)

	runs, err := store.ListRuns(ctx, model.RunMigrate, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunAborted, runs[0].Status)
	assert.Equal(t, "master store went away", runs[0].Metadata.Error)
	assert.Equal(t, 10, runs[0].Metadata.BatchSize)
}
