package otel_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	adapter "github.com/neomorfeo/stageline/internal/adapter/otel"
	"github.com/neomorfeo/stageline/internal/domain"
)

// --- Test tracer setup ---

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter
}

// --- Stub store ---

// stubStore returns canned data, or err from every method when set.
type stubStore struct {
	stages []domain.Stage
	refs   int64
	err    error
}

func (s *stubStore) InTx(ctx context.Context, fn func(tx domain.StageStore) error) error {
	if s.err != nil {
		return s.err
	}
	return fn(s)
}

func (s *stubStore) ListVisible(context.Context, string) ([]domain.Stage, error) {
	return s.stages, s.err
}

func (s *stubStore) ListGeneric(context.Context, string) ([]domain.Stage, error) {
	return s.stages, s.err
}

func (s *stubStore) ListOwned(context.Context, string) ([]domain.Stage, error) {
	return s.stages, s.err
}

func (s *stubStore) GetStage(context.Context, string, string) (domain.Stage, error) {
	if s.err != nil {
		return domain.Stage{}, s.err
	}
	if len(s.stages) == 0 {
		return domain.Stage{}, domain.ErrStageNotFound
	}
	return s.stages[0], nil
}

func (s *stubStore) CreateOwned(context.Context, domain.Stage) error { return s.err }
func (s *stubStore) UpdateOwned(context.Context, domain.Stage) error { return s.err }

func (s *stubStore) CountOwnedInCategory(context.Context, string, domain.Category, string) (int, error) {
	return 0, s.err
}

func (s *stubStore) HideGeneric(context.Context, string, string) error     { return s.err }
func (s *stubStore) Unhide(context.Context, string, string) error          { return s.err }
func (s *stubStore) SoftDeleteOwned(context.Context, string, string) error { return s.err }

func (s *stubStore) CountReferences(context.Context, string, string) (int64, error) {
	return s.refs, s.err
}

func (s *stubStore) ReassignReferences(context.Context, string, string, string) (int64, error) {
	return s.refs, s.err
}

func (s *stubStore) SetStageOrder(context.Context, string, []string) error { return s.err }
func (s *stubStore) SetOwnedOrder(context.Context, string, []string) error { return s.err }

// --- Tests ---

func TestTracingStore_ListVisible_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := &stubStore{stages: []domain.Stage{{ID: "g-1"}, {ID: "g-2"}}}
	store := adapter.NewTracingStore(inner)

	stages, err := store.ListVisible(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stages) != 2 {
		t.Errorf("got %d stages, want 2", len(stages))
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "StageStore.ListVisible" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "StageStore.ListVisible")
	}

	assertAttribute(t, spans[0], "tenant.id", "t-1")
	assertAttribute(t, spans[0], "result.count", "2")
}

func TestTracingStore_GetStage_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := &stubStore{}
	store := adapter.NewTracingStore(inner)

	_, err := store.GetStage(context.Background(), "t-1", "nonexistent")
	if !errors.Is(err, domain.ErrStageNotFound) {
		t.Fatalf("expected ErrStageNotFound, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", spans[0].Status.Code, codes.Error)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected error event on span")
	}

	assertAttribute(t, spans[0], "stage.id", "nonexistent")
}

func TestTracingStore_HideGeneric_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	store := adapter.NewTracingStore(&stubStore{})

	if err := store.HideGeneric(context.Background(), "t-1", "g-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "StageStore.HideGeneric" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "StageStore.HideGeneric")
	}

	assertAttribute(t, spans[0], "tenant.id", "t-1")
	assertAttribute(t, spans[0], "stage.id", "g-1")
}

func TestTracingStore_ReassignReferences_RecordsMovedCount(t *testing.T) {
	exporter := setupTestTracer(t)
	store := adapter.NewTracingStore(&stubStore{refs: 7})

	moved, err := store.ReassignReferences(context.Background(), "t-1", "g-1", "g-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved != 7 {
		t.Errorf("moved = %d, want 7", moved)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}

	assertAttribute(t, spans[0], "stage.from_id", "g-1")
	assertAttribute(t, spans[0], "stage.to_id", "g-2")
	assertAttribute(t, spans[0], "result.moved", "7")
}

func TestTracingStore_InTx_TracesInnerOperations(t *testing.T) {
	exporter := setupTestTracer(t)
	store := adapter.NewTracingStore(&stubStore{})

	err := store.InTx(context.Background(), func(tx domain.StageStore) error {
		return tx.HideGeneric(context.Background(), "t-1", "g-1")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2 (inner op + transaction)", len(spans))
	}

	names := map[string]bool{}
	for _, s := range spans {
		names[s.Name] = true
	}
	if !names["StageStore.InTx"] || !names["StageStore.HideGeneric"] {
		t.Errorf("spans = %v, want InTx and HideGeneric", names)
	}
}

func TestTracingStore_InTx_RecordsRollbackError(t *testing.T) {
	exporter := setupTestTracer(t)
	sentinel := errors.New("abort")
	store := adapter.NewTracingStore(&stubStore{err: sentinel})

	err := store.InTx(context.Background(), func(tx domain.StageStore) error {
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", spans[0].Status.Code, codes.Error)
	}
}

func TestTracingStore_CreateOwned_RecordsCategory(t *testing.T) {
	exporter := setupTestTracer(t)
	store := adapter.NewTracingStore(&stubStore{})

	stage := domain.NewStage("c-1", "t-1", "Escalated", "", domain.CategoryAction, 0)
	if err := store.CreateOwned(context.Background(), stage); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}

	assertAttribute(t, spans[0], "tenant.id", "t-1")
	assertAttribute(t, spans[0], "stage.category", "action")
}

// assertAttribute checks that a span has an attribute with the given key and string value.
func assertAttribute(t *testing.T, span tracetest.SpanStub, key, want string) {
	t.Helper()
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			got := attr.Value.Emit()
			if got != want {
				t.Errorf("attribute %q = %q, want %q", key, got, want)
			}
			return
		}
	}
	t.Errorf("attribute %q not found on span %q", key, span.Name)
}
