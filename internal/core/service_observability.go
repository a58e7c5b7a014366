package core

import (
	"context"
	"time"

	"assetcore/pkg/domain"
)

// Logger captures the leveled logging surface used by the service. It mirrors
// the slog argument convention so adapters stay trivial.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AuditStatus classifies the outcome recorded for an audited operation.
type AuditStatus string

const (
	// AuditStatusSuccess marks operations that committed.
	AuditStatusSuccess AuditStatus = "success"
	// AuditStatusError marks operations that returned an error.
	AuditStatusError AuditStatus = "error"
)

// AuditEntry describes a single audited service operation.
type AuditEntry struct {
	Operation string
	Entity    EntityType
	Action    Action
	EntityID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries emitted by the service.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation timing and outcome.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan finalizes a trace started for an operation.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// ClockFunc supplies the current time for audit stamps and durations.
type ClockFunc func() time.Time

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithLogger installs a logger on the service.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditRecorder installs an audit recorder on the service.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithMetricsRecorder installs a metrics recorder on the service.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer installs a tracer on the service.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock overrides the service time source, primarily for tests.
func WithClock(clock ClockFunc) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithClearCustodyOnDeactivate makes deactivation release any surviving
// custody record instead of leaving it in place.
func WithClearCustodyOnDeactivate(enabled bool) ServiceOption {
	return func(s *Service) {
		s.clearCustodyOnDeactivate = enabled
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type auditOperation struct {
	entity EntityType
	action Action
}

// auditOperations maps service operation names to the entity and action they
// audit as. Operations absent from the table are not audited.
var auditOperations = map[string]auditOperation{
	"create_location":      {entity: EntityLocation, action: ActionCreate},
	"create_user":          {entity: EntityUser, action: ActionCreate},
	"create_project":       {entity: EntityProject, action: ActionCreate},
	"intake_asset":         {entity: EntityAsset, action: ActionCreate},
	"intake_batch":         {entity: EntityAsset, action: ActionCreate},
	"assign_asset":         {entity: EntityAsset, action: ActionUpdate},
	"unassign_asset":       {entity: EntityAsset, action: ActionUpdate},
	"transfer_asset":       {entity: EntityAsset, action: ActionUpdate},
	"deactivate_asset":     {entity: EntityAsset, action: ActionUpdate},
	"edit_asset":           {entity: EntityAsset, action: ActionUpdate},
	"send_maintenance":     {entity: EntityMaintenanceRecord, action: ActionCreate},
	"complete_maintenance": {entity: EntityMaintenanceRecord, action: ActionUpdate},
	"attach_document":      {entity: EntityAsset, action: ActionUpdate},
}

func (s *Service) recordAuditSuccess(ctx context.Context, operation, entityID string, duration time.Duration) {
	op, ok := auditOperations[operation]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: operation,
		Entity:    op.entity,
		Action:    op.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock(),
	})
}

func (s *Service) recordAuditError(ctx context.Context, operation, entityID string, duration time.Duration, err error) {
	op, ok := auditOperations[operation]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: operation,
		Entity:    op.entity,
		Action:    op.action,
		EntityID:  entityID,
		Status:    AuditStatusError,
		Duration:  duration,
		Timestamp: s.clock(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// observe wraps a service operation with tracing, metrics and auditing. fn
// returns the primary entity id for the audit trail.
func (s *Service) observe(ctx context.Context, operation string, fn func(context.Context) (string, error)) error {
	start := s.clock()
	ctx, span := s.tracer.Start(ctx, operation)
	entityID, err := fn(ctx)
	duration := s.clock().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	if err != nil {
		if domain.KindOf(err) != "" {
			s.logger.Warn("operation rejected", "operation", operation, "error", err)
		} else {
			s.logger.Error("operation failed", "operation", operation, "error", err)
		}
		s.recordAuditError(ctx, operation, entityID, duration, err)
		return err
	}
	s.logger.Debug("operation completed", "operation", operation, "entity_id", entityID)
	s.recordAuditSuccess(ctx, operation, entityID, duration)
	return nil
}
