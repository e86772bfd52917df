package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

type captureAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAudit) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAudit) byOperation(op string) []AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []AuditEntry
	for _, e := range c.entries {
		if e.Operation == op {
			out = append(out, e)
		}
	}
	return out
}

type captureMetrics struct {
	mu           sync.Mutex
	observations []string
	failures     int
}

func (c *captureMetrics) Observe(_ context.Context, operation string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observations = append(c.observations, operation)
	if !success {
		c.failures++
	}
}

type captureTracer struct {
	mu    sync.Mutex
	spans []string
}

func (c *captureTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = append(c.spans, operation)
	return ctx, noopSpan{}
}

func newObservedService(t *testing.T) (*Service, *captureAudit, *captureMetrics, *captureTracer) {
	t.Helper()
	audit := &captureAudit{}
	metrics := &captureMetrics{}
	tracer := &captureTracer{}
	svc := NewInMemoryService(NewDefaultRulesEngine(),
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
	)
	nodes := []OrgNode{
		{Base: Base{ID: regionNorthID}, Kind: OrgRegion, Name: "North"},
		{Base: Base{ID: sectorOneID}, Kind: OrgSector, Name: "Sector One", ParentID: &regionNorthID},
		{Base: Base{ID: schoolOneID}, Kind: OrgSchool, Name: "School One", ParentID: &sectorOneID},
	}
	if _, err := svc.SeedOrgNodes(context.Background(), nodes); err != nil {
		t.Fatalf("seed org nodes: %v", err)
	}
	return svc, audit, metrics, tracer
}

func TestOperationsEmitAuditMetricsAndSpans(t *testing.T) {
	svc, audit, metrics, tracer := newObservedService(t)
	ctx := context.Background()

	cat, _, err := svc.CreateCategory(ctx, superAdmin, NewCategory{Name: "Enrollment", Assignment: AssignAll})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}

	entries := audit.byOperation("create_category")
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Status != AuditStatusSuccess || entry.Actor != superAdmin.ID || entry.EntityID != cat.ID {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}

	metrics.mu.Lock()
	observed := len(metrics.observations)
	metrics.mu.Unlock()
	tracer.mu.Lock()
	spans := len(tracer.spans)
	tracer.mu.Unlock()
	if observed == 0 || spans == 0 {
		t.Fatalf("expected metrics and spans, got %d observations and %d spans", observed, spans)
	}
}

func TestFailedOperationsAuditedAsErrors(t *testing.T) {
	svc, audit, metrics, _ := newObservedService(t)

	_, _, err := svc.CreateCategory(context.Background(), schoolOneAdmin, NewCategory{Name: "Enrollment", Assignment: AssignAll})
	if err == nil {
		t.Fatal("expected refusal for non-schema role")
	}

	entries := audit.byOperation("create_category")
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	if entries[0].Status != AuditStatusError || entries[0].Error == "" {
		t.Fatalf("expected error audit entry, got %+v", entries[0])
	}

	metrics.mu.Lock()
	failures := metrics.failures
	metrics.mu.Unlock()
	if failures == 0 {
		t.Fatal("expected a failed observation")
	}
}

func TestExpvarMetricsRecorderSnapshot(t *testing.T) {
	rec := NewExpvarMetricsRecorder("test")
	rec.Observe(context.Background(), "save_draft", true, 3*time.Millisecond)
	rec.Observe(context.Background(), "save_draft", false, time.Millisecond)

	snap := rec.Snapshot()
	if snap.Results["save_draft"]["success"] != 1 || snap.Results["save_draft"]["error"] != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.DurationsMS["save_draft"] <= 0 {
		t.Fatalf("expected accumulated duration, got %v", snap.DurationsMS["save_draft"])
	}
}

func TestJSONTracerRecordsSpans(t *testing.T) {
	tracer := NewJSONTracer(nil)
	svc := NewInMemoryService(NewDefaultRulesEngine(), WithTracer(tracer))
	if _, err := svc.SeedOrgNodes(context.Background(), nil); err != nil {
		t.Fatalf("seed org nodes: %v", err)
	}

	entries := tracer.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 span, got %d", len(entries))
	}
	if entries[0].Operation != "seed_org_nodes" || entries[0].Status != "success" {
		t.Fatalf("unexpected span: %+v", entries[0])
	}
}
