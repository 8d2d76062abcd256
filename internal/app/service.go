package app

import (
	"context"
	"fmt"

	"github.com/neomorfeo/stageline/internal/domain"
)

// StageService orchestrates stage catalog, visibility, ordering, and
// removal-with-reassignment operations for one tenant at a time. It is the
// coordinator of the removal protocol: every path that can shrink a
// tenant's visible set re-checks coverage inside the same store transaction
// that commits the change.
type StageService struct {
	store     domain.StageStore
	publisher domain.EventPublisher
	validator domain.TransitionValidator
}

// NewStageService creates a service with the given adapters.
func NewStageService(store domain.StageStore, publisher domain.EventPublisher, validator domain.TransitionValidator) *StageService {
	return &StageService{
		store:     store,
		publisher: publisher,
		validator: validator,
	}
}

// ListVisibleStages returns the tenant's visible set ordered by position.
func (s *StageService) ListVisibleStages(ctx context.Context, tenantID string) ([]domain.Stage, error) {
	return s.store.ListVisible(ctx, tenantID)
}

// ListGenericStages returns all generic stages annotated with the tenant's
// hidden flag, visible ones first.
func (s *StageService) ListGenericStages(ctx context.Context, tenantID string) ([]domain.Stage, error) {
	return s.store.ListGeneric(ctx, tenantID)
}

// ListTenantStages returns the tenant's own non-deleted stages.
func (s *StageService) ListTenantStages(ctx context.Context, tenantID string) ([]domain.Stage, error) {
	return s.store.ListOwned(ctx, tenantID)
}

// CreateTenantStage creates a tenant-owned stage. Exclusive categories
// (final, cancel) are limited to one owned stage per tenant, enforced in
// the same transaction as the insert.
func (s *StageService) CreateTenantStage(ctx context.Context, tenantID string, payload domain.NewStagePayload) (domain.Stage, error) {
	if payload.Name == "" {
		return domain.Stage{}, &domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if payload.Category == "" {
		return domain.Stage{}, &domain.ValidationError{Field: "category", Reason: "must not be empty"}
	}
	if !payload.Category.Valid() {
		return domain.Stage{}, &domain.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", payload.Category)}
	}

	id, err := generateID()
	if err != nil {
		return domain.Stage{}, fmt.Errorf("generating stage id: %w", err)
	}

	stage := domain.NewStage(id, tenantID, payload.Name, payload.Color, payload.Category, 0)

	err = s.store.InTx(ctx, func(tx domain.StageStore) error {
		if payload.Category.Exclusive() {
			n, err := tx.CountOwnedInCategory(ctx, tenantID, payload.Category, "")
			if err != nil {
				return fmt.Errorf("checking category cardinality: %w", err)
			}
			if n > 0 {
				return &domain.CategoryConflictError{Category: payload.Category}
			}
		}
		if payload.Position != nil {
			stage.Position = *payload.Position
		} else {
			visible, err := tx.ListVisible(ctx, tenantID)
			if err != nil {
				return fmt.Errorf("listing visible stages: %w", err)
			}
			stage.Position = nextPosition(visible)
		}
		if err := tx.CreateOwned(ctx, stage); err != nil {
			return fmt.Errorf("creating stage: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Stage{}, err
	}

	if err := s.publisher.Publish(ctx, domain.EventCreate, tenantID, stage); err != nil {
		return domain.Stage{}, fmt.Errorf("publishing create event: %w", err)
	}

	return stage, nil
}

// UpdateTenantStage applies a partial update to a tenant-owned stage.
// Generic stages cannot be edited by tenants; stages owned by other tenants
// are indistinguishable from unknown ids.
func (s *StageService) UpdateTenantStage(ctx context.Context, tenantID, id string, patch domain.StagePatch) (domain.Stage, error) {
	var updated domain.Stage

	err := s.store.InTx(ctx, func(tx domain.StageStore) error {
		stage, err := tx.GetStage(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if stage.Generic() {
			return &domain.ForbiddenError{Reason: "generic stages cannot be edited"}
		}

		if patch.Name != nil {
			if *patch.Name == "" {
				return &domain.ValidationError{Field: "name", Reason: "must not be empty"}
			}
			stage.Name = *patch.Name
		}
		if patch.Color != nil {
			stage.Color = *patch.Color
		}
		if patch.Position != nil {
			stage.Position = *patch.Position
		}
		if patch.Category != nil && *patch.Category != stage.Category {
			if !patch.Category.Valid() {
				return &domain.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", *patch.Category)}
			}
			if patch.Category.Exclusive() {
				n, err := tx.CountOwnedInCategory(ctx, tenantID, *patch.Category, stage.ID)
				if err != nil {
					return fmt.Errorf("checking category cardinality: %w", err)
				}
				if n > 0 {
					return &domain.CategoryConflictError{Category: *patch.Category}
				}
			}
			stage.Category = *patch.Category
		}

		if err := tx.UpdateOwned(ctx, stage); err != nil {
			return fmt.Errorf("updating stage: %w", err)
		}
		updated = stage
		return nil
	})
	if err != nil {
		return domain.Stage{}, err
	}

	if err := s.publisher.Publish(ctx, domain.EventUpdate, tenantID, updated); err != nil {
		return domain.Stage{}, fmt.Errorf("publishing update event: %w", err)
	}

	return updated, nil
}

// HideGenericStage attempts to hide a generic stage for one tenant.
// If entities still reference the stage, nothing changes and the outcome
// asks the caller to resubmit with a reassignment target.
func (s *StageService) HideGenericStage(ctx context.Context, tenantID, id string) (domain.RemovalOutcome, error) {
	return s.remove(ctx, tenantID, id, "", domain.EventHide)
}

// HideGenericStageWithReassign hides a generic stage after moving every
// referencing entity onto the target stage, as one atomic unit.
func (s *StageService) HideGenericStageWithReassign(ctx context.Context, tenantID, id, targetID string) (domain.RemovalOutcome, error) {
	if targetID == "" {
		return domain.RemovalOutcome{}, &domain.ValidationError{Field: "target_stage_id", Reason: "must not be empty"}
	}
	return s.remove(ctx, tenantID, id, targetID, domain.EventHide)
}

// UnhideGenericStage clears the tenant's hiding overlay for a generic
// stage. Unhiding an already-visible stage is an idempotent no-op.
func (s *StageService) UnhideGenericStage(ctx context.Context, tenantID, id string) error {
	var unhidden domain.Stage
	changed := false

	err := s.store.InTx(ctx, func(tx domain.StageStore) error {
		stage, err := tx.GetStage(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if !stage.Generic() {
			return &domain.ForbiddenError{Reason: "only generic stages can be unhidden"}
		}
		if !stage.Hidden {
			return nil
		}
		if _, err := s.validator.Apply(ctx, stage.VisibilityStatus(), domain.EventUnhide); err != nil {
			return err
		}
		if err := tx.Unhide(ctx, tenantID, id); err != nil {
			return fmt.Errorf("unhiding stage: %w", err)
		}
		unhidden = stage
		changed = true
		return nil
	})
	if err != nil {
		return err
	}

	if changed {
		if err := s.publisher.Publish(ctx, domain.EventUnhide, tenantID, unhidden); err != nil {
			return fmt.Errorf("publishing unhide event: %w", err)
		}
	}
	return nil
}

// DeleteTenantStage attempts to soft-delete a tenant-owned stage, under the
// same referencing-entity and coverage protocol as hiding.
func (s *StageService) DeleteTenantStage(ctx context.Context, tenantID, id string) (domain.RemovalOutcome, error) {
	return s.remove(ctx, tenantID, id, "", domain.EventDelete)
}

// DeleteTenantStageWithReassign soft-deletes a tenant-owned stage after
// moving every referencing entity onto the target stage, atomically.
func (s *StageService) DeleteTenantStageWithReassign(ctx context.Context, tenantID, id, targetID string) (domain.RemovalOutcome, error) {
	if targetID == "" {
		return domain.RemovalOutcome{}, &domain.ValidationError{Field: "target_stage_id", Reason: "must not be empty"}
	}
	return s.remove(ctx, tenantID, id, targetID, domain.EventDelete)
}

// remove runs the removal protocol for hide and delete. All steps execute
// in one store transaction: reassigned references are never observable
// without the stage also being hidden/deleted, and a coverage break after
// reassignment rolls everything back.
func (s *StageService) remove(ctx context.Context, tenantID, id, targetID string, event domain.Event) (domain.RemovalOutcome, error) {
	out := domain.RemovalOutcome{State: domain.RemovalCommitted, StageID: id}
	var removed domain.Stage

	err := s.store.InTx(ctx, func(tx domain.StageStore) error {
		stage, err := tx.GetStage(ctx, tenantID, id)
		if err != nil {
			return err
		}
		switch event {
		case domain.EventHide:
			if !stage.Generic() {
				return &domain.ForbiddenError{Reason: "tenant-owned stages are deleted, not hidden"}
			}
		case domain.EventDelete:
			if stage.Generic() {
				return &domain.ForbiddenError{Reason: "generic stages cannot be deleted, only hidden"}
			}
		}

		if _, err := s.validator.Apply(ctx, stage.VisibilityStatus(), event); err != nil {
			return err
		}

		refs, err := tx.CountReferences(ctx, tenantID, id)
		if err != nil {
			return fmt.Errorf("counting references: %w", err)
		}

		if targetID == "" {
			if refs > 0 {
				out.State = domain.RemovalNeedsReassignment
				out.PendingRefs = refs
				return nil
			}
		} else {
			target, err := tx.GetStage(ctx, tenantID, targetID)
			if err != nil {
				return err
			}
			if target.ID == id {
				return &domain.ValidationError{Field: "target_stage_id", Reason: "target must differ from the stage being removed"}
			}
			if target.Hidden {
				return &domain.ValidationError{Field: "target_stage_id", Reason: "target stage is not visible"}
			}
			moved, err := tx.ReassignReferences(ctx, tenantID, id, targetID)
			if err != nil {
				return fmt.Errorf("reassigning references: %w", err)
			}
			out.MovedRefs = moved
		}

		switch event {
		case domain.EventHide:
			if err := tx.HideGeneric(ctx, tenantID, id); err != nil {
				return fmt.Errorf("hiding stage: %w", err)
			}
		case domain.EventDelete:
			if err := tx.SoftDeleteOwned(ctx, tenantID, id); err != nil {
				return fmt.Errorf("deleting stage: %w", err)
			}
		}

		// Commit gate: re-read the visible set after the removal applied.
		visible, err := tx.ListVisible(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("listing visible stages: %w", err)
		}
		if missing := domain.MissingCategories(visible); missing != nil {
			return &domain.CoverageBreakError{StageID: id, Missing: missing}
		}

		removed = stage
		return nil
	})
	if err != nil {
		return domain.RemovalOutcome{}, err
	}

	if out.State == domain.RemovalCommitted {
		if err := s.publisher.Publish(ctx, event, tenantID, removed); err != nil {
			return domain.RemovalOutcome{}, fmt.Errorf("publishing %s event: %w", event, err)
		}
	}
	return out, nil
}

// ReorderGenericStages applies a full visible-set ordering: positions
// 0..N-1 go to the given ids (overlay positions for generic stages, row
// positions for owned ones); hidden stages keep sorting after all visible
// ones. Reordering never changes visibility.
func (s *StageService) ReorderGenericStages(ctx context.Context, tenantID string, orderedIDs []string) error {
	return s.store.InTx(ctx, func(tx domain.StageStore) error {
		visible, err := tx.ListVisible(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("listing visible stages: %w", err)
		}
		if err := requirePermutation(orderedIDs, visible); err != nil {
			return err
		}
		if err := tx.SetStageOrder(ctx, tenantID, orderedIDs); err != nil {
			return fmt.Errorf("reordering stages: %w", err)
		}
		return nil
	})
}

// ReorderTenantStages applies positions 0..N-1 directly to the tenant's own
// rows as a single atomic batch.
func (s *StageService) ReorderTenantStages(ctx context.Context, tenantID string, orderedIDs []string) error {
	return s.store.InTx(ctx, func(tx domain.StageStore) error {
		owned, err := tx.ListOwned(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("listing owned stages: %w", err)
		}
		if err := requirePermutation(orderedIDs, owned); err != nil {
			return err
		}
		if err := tx.SetOwnedOrder(ctx, tenantID, orderedIDs); err != nil {
			return fmt.Errorf("reordering owned stages: %w", err)
		}
		return nil
	})
}

// nextPosition returns one past the highest effective position in the
// visible set, so a new stage sorts after everything already visible.
func nextPosition(visible []domain.Stage) int {
	next := 0
	for _, s := range visible {
		if s.Position >= next {
			next = s.Position + 1
		}
	}
	return next
}

// requirePermutation checks that ids is exactly a reordering of stages.
func requirePermutation(ids []string, stages []domain.Stage) error {
	if len(ids) != len(stages) {
		return &domain.ValidationError{
			Field:  "ordered_ids",
			Reason: fmt.Sprintf("expected %d ids, got %d", len(stages), len(ids)),
		}
	}
	known := make(map[string]bool, len(stages))
	for _, st := range stages {
		known[st.ID] = true
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !known[id] {
			return &domain.ValidationError{Field: "ordered_ids", Reason: fmt.Sprintf("unknown stage id %q", id)}
		}
		if seen[id] {
			return &domain.ValidationError{Field: "ordered_ids", Reason: fmt.Sprintf("duplicate stage id %q", id)}
		}
		seen[id] = true
	}
	return nil
}
