package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// AuditStatus labels an audit entry outcome.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry captures one service operation for the audit sink.
type AuditEntry struct {
	Operation string      `json:"operation"`
	Actor     string      `json:"actor,omitempty"`
	EntityID  string      `json:"entity_id,omitempty"`
	Status    AuditStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
	At        time.Time   `json:"at"`
}

// AuditRecorder receives audit entries for every service operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder receives operation timing and outcome observations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan finishes a started span.
type TraceSpan interface {
	End(err error)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// instrument wraps a service operation with tracing, metrics, audit, and
// structured logging. fn returns the affected entity id for the audit trail.
func (s *Service) instrument(ctx context.Context, operation, actor string, fn func(ctx context.Context) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, operation)
	start := time.Now()
	entityID, err := fn(ctx)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, duration)

	entry := AuditEntry{
		Operation: operation,
		Actor:     actor,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		At:        time.Now().UTC(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)

	if err != nil {
		s.log.Warn("operation failed",
			zap.String("operation", operation),
			zap.String("actor", actor),
			zap.String("entity_id", entityID),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return err
	}
	s.log.Debug("operation completed",
		zap.String("operation", operation),
		zap.String("actor", actor),
		zap.String("entity_id", entityID),
		zap.Duration("duration", duration),
	)
	return nil
}
