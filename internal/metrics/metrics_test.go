// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestJobCounters(t *testing.T) {
	j := NewJob("migrate")
	j.ObserveUnit("succeeded", time.Second)
	j.ObserveUnit("succeeded", time.Second)
	j.ObserveUnit("failed", time.Millisecond)
	j.AddRows("customers", 5)
	j.AddRows("customers", 0)
	j.ObserveCheck(true)
	j.ObserveCheck(false)

	if got := testutil.ToFloat64(j.Units.WithLabelValues("succeeded")); got != 2 {
		t.Errorf("succeeded = %v, want 2", got)
	}
	if got := testutil.ToFloat64(j.Units.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(j.Rows.WithLabelValues("customers")); got != 5 {
		t.Errorf("rows = %v, want 5", got)
	}
	if got := testutil.ToFloat64(j.Checks.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed checks = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(j.UnitDuration); n != 1 {
		t.Errorf("histogram series = %d, want 1", n)
	}
}

func TestNilJobIsNoop(t *testing.T) {
	var j *Job
	j.ObserveUnit("failed", time.Second)
	j.AddRows("repairs", 3)
	j.ObserveCheck(true)
	if err := j.Push(context.Background(), "http://127.0.0.1:1"); err != nil {
		t.Fatalf("nil push: %v", err)
	}
	if j.Registry() != nil {
		t.Fatalf("nil job has no registry")
	}
}

func TestPush(t *testing.T) {
	var mu sync.Mutex
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, body = r.URL.Path, string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	j := NewJob("validate")
	j.ObserveUnit("succeeded", time.Second)
	if err := j.Push(context.Background(), srv.URL); err != nil {
		t.Fatalf("Push: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(path, "/job/repairdesk/kind/validate") {
		t.Errorf("push path = %q", path)
	}
	if !strings.Contains(body, "repairdesk_job_units_total") {
		t.Errorf("pushed body lacks unit counter")
	}
}
