// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package tracing

import (
	"context"
	"testing"
	"time"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "repairdesk", "test", "")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_, span := Tracer().Start(context.Background(), "probe")
	defer span.End()
	if span.SpanContext().IsValid() {
		t.Fatalf("no-op provider should not produce sampled spans")
	}
}

func TestInitWithEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), "repairdesk", "test", "127.0.0.1:4318")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	_, span := Tracer().Start(context.Background(), "probe")
	valid := span.SpanContext().IsValid()
	span.End()
	// Nothing listens on the endpoint; the flush is cut short.
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
	if !valid {
		t.Fatalf("expected a recording span once a provider is installed")
	}
}
