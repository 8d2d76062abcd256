package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/stageline/internal/domain"
)

const tracerName = "github.com/neomorfeo/stageline/internal/adapter/otel"

// TracingStore wraps a domain.StageStore with OpenTelemetry tracing.
// Each method creates a span with semantic attributes and records errors.
type TracingStore struct {
	next   domain.StageStore
	tracer trace.Tracer
}

// Compile-time check: TracingStore implements domain.StageStore.
var _ domain.StageStore = (*TracingStore)(nil)

// NewTracingStore creates a tracing decorator around the given store.
func NewTracingStore(next domain.StageStore) *TracingStore {
	return &TracingStore{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (s *TracingStore) end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// InTx spans the whole transactional unit and decorates the
// transaction-scoped store so inner operations are traced too.
func (s *TracingStore) InTx(ctx context.Context, fn func(tx domain.StageStore) error) error {
	ctx, span := s.tracer.Start(ctx, "StageStore.InTx")

	err := s.next.InTx(ctx, func(tx domain.StageStore) error {
		return fn(NewTracingStore(tx))
	})
	s.end(span, err)
	return err
}

func (s *TracingStore) ListVisible(ctx context.Context, tenantID string) ([]domain.Stage, error) {
	ctx, span := s.tracer.Start(ctx, "StageStore.ListVisible",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)

	stages, err := s.next.ListVisible(ctx, tenantID)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(stages)))
	}
	s.end(span, err)
	return stages, err
}

func (s *TracingStore) ListGeneric(ctx context.Context, tenantID string) ([]domain.Stage, error) {
	ctx, span := s.tracer.Start(ctx, "StageStore.ListGeneric",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)

	stages, err := s.next.ListGeneric(ctx, tenantID)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(stages)))
	}
	s.end(span, err)
	return stages, err
}

func (s *TracingStore) ListOwned(ctx context.Context, tenantID string) ([]domain.Stage, error) {
	ctx, span := s.tracer.Start(ctx, "StageStore.ListOwned",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)

	stages, err := s.next.ListOwned(ctx, tenantID)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(stages)))
	}
	s.end(span, err)
	return stages, err
}

func (s *TracingStore) GetStage(ctx context.Context, tenantID, id string) (domain.Stage, error) {
	ctx, span := s.tracer.Start(ctx, "StageStore.GetStage",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("stage.id", id),
		),
	)

	stage, err := s.next.GetStage(ctx, tenantID, id)
	s.end(span, err)
	return stage, err
}

func (s *TracingStore) CreateOwned(ctx context.Context, stage domain.Stage) error {
	ctx, span := s.tracer.Start(ctx, "StageStore.CreateOwned",
		trace.WithAttributes(
			attribute.String("tenant.id", stage.TenantID),
			attribute.String("stage.id", stage.ID),
			attribute.String("stage.category", string(stage.Category)),
		),
	)

	err := s.next.CreateOwned(ctx, stage)
	s.end(span, err)
	return err
}

func (s *TracingStore) UpdateOwned(ctx context.Context, stage domain.Stage) error {
	ctx, span := s.tracer.Start(ctx, "StageStore.UpdateOwned",
		trace.WithAttributes(
			attribute.String("tenant.id", stage.TenantID),
			attribute.String("stage.id", stage.ID),
		),
	)

	err := s.next.UpdateOwned(ctx, stage)
	s.end(span, err)
	return err
}

func (s *TracingStore) CountOwnedInCategory(ctx context.Context, tenantID string, category domain.Category, excludeID string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "StageStore.CountOwnedInCategory",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("stage.category", string(category)),
		),
	)

	n, err := s.next.CountOwnedInCategory(ctx, tenantID, category, excludeID)
	s.end(span, err)
	return n, err
}

func (s *TracingStore) HideGeneric(ctx context.Context, tenantID, stageID string) error {
	ctx, span := s.tracer.Start(ctx, "StageStore.HideGeneric",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("stage.id", stageID),
		),
	)

	err := s.next.HideGeneric(ctx, tenantID, stageID)
	s.end(span, err)
	return err
}

func (s *TracingStore) Unhide(ctx context.Context, tenantID, stageID string) error {
	ctx, span := s.tracer.Start(ctx, "StageStore.Unhide",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("stage.id", stageID),
		),
	)

	err := s.next.Unhide(ctx, tenantID, stageID)
	s.end(span, err)
	return err
}

func (s *TracingStore) SoftDeleteOwned(ctx context.Context, tenantID, stageID string) error {
	ctx, span := s.tracer.Start(ctx, "StageStore.SoftDeleteOwned",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("stage.id", stageID),
		),
	)

	err := s.next.SoftDeleteOwned(ctx, tenantID, stageID)
	s.end(span, err)
	return err
}

func (s *TracingStore) CountReferences(ctx context.Context, tenantID, stageID string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "StageStore.CountReferences",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("stage.id", stageID),
		),
	)

	n, err := s.next.CountReferences(ctx, tenantID, stageID)
	if err == nil {
		span.SetAttributes(attribute.Int64("result.count", n))
	}
	s.end(span, err)
	return n, err
}

func (s *TracingStore) ReassignReferences(ctx context.Context, tenantID, fromID, toID string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "StageStore.ReassignReferences",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("stage.from_id", fromID),
			attribute.String("stage.to_id", toID),
		),
	)

	moved, err := s.next.ReassignReferences(ctx, tenantID, fromID, toID)
	if err == nil {
		span.SetAttributes(attribute.Int64("result.moved", moved))
	}
	s.end(span, err)
	return moved, err
}

func (s *TracingStore) SetStageOrder(ctx context.Context, tenantID string, orderedIDs []string) error {
	ctx, span := s.tracer.Start(ctx, "StageStore.SetStageOrder",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int("order.count", len(orderedIDs)),
		),
	)

	err := s.next.SetStageOrder(ctx, tenantID, orderedIDs)
	s.end(span, err)
	return err
}

func (s *TracingStore) SetOwnedOrder(ctx context.Context, tenantID string, orderedIDs []string) error {
	ctx, span := s.tracer.Start(ctx, "StageStore.SetOwnedOrder",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int("order.count", len(orderedIDs)),
		),
	)

	err := s.next.SetOwnedOrder(ctx, tenantID, orderedIDs)
	s.end(span, err)
	return err
}
