package domain

import "context"

// StageStore defines the persistence contract for the stage catalog,
// the per-tenant visibility overlay, and ticket references. Every method
// is tenant-scoped; cross-tenant access is structurally impossible through
// this interface.
type StageStore interface {
	// InTx runs fn against a transaction-scoped store. Writes made inside
	// fn are visible to subsequent reads in the same fn and are rolled
	// back entirely if fn returns an error. Operations on the same
	// (tenant, stage) pair serialize through this boundary.
	InTx(ctx context.Context, fn func(tx StageStore) error) error

	// ListVisible returns the tenant's visible set: generic stages without
	// a hiding overlay plus the tenant's own non-deleted stages, ordered by
	// effective position ascending.
	ListVisible(ctx context.Context, tenantID string) ([]Stage, error)
	// ListGeneric returns all generic stages with the Hidden flag resolved
	// from the tenant's overlay, visible ones first.
	ListGeneric(ctx context.Context, tenantID string) ([]Stage, error)
	// ListOwned returns the tenant's own non-deleted stages.
	ListOwned(ctx context.Context, tenantID string) ([]Stage, error)
	// GetStage returns a generic or tenant-owned non-deleted stage.
	// Unknown, deleted, and foreign-tenant ids all yield ErrStageNotFound.
	GetStage(ctx context.Context, tenantID, id string) (Stage, error)

	CreateOwned(ctx context.Context, stage Stage) error
	UpdateOwned(ctx context.Context, stage Stage) error
	// CountOwnedInCategory counts the tenant's non-deleted stages of the
	// given category, excluding excludeID when non-empty.
	CountOwnedInCategory(ctx context.Context, tenantID string, category Category, excludeID string) (int, error)

	// HideGeneric records a hiding overlay for a generic stage.
	HideGeneric(ctx context.Context, tenantID, stageID string) error
	// Unhide clears the hiding overlay; a no-op if none exists.
	Unhide(ctx context.Context, tenantID, stageID string) error
	// SoftDeleteOwned marks a tenant-owned stage deleted.
	SoftDeleteOwned(ctx context.Context, tenantID, stageID string) error

	// CountReferences counts entities referencing the stage.
	CountReferences(ctx context.Context, tenantID, stageID string) (int64, error)
	// ReassignReferences moves every reference from one stage to another
	// and returns the number of rows moved.
	ReassignReferences(ctx context.Context, tenantID, fromID, toID string) (int64, error)

	// SetStageOrder assigns positions 0..N-1 to the given visible stage
	// ids: overlay positions for generic stages, row positions for owned
	// ones. Hidden generic stages are re-ranked after all visible stages.
	SetStageOrder(ctx context.Context, tenantID string, orderedIDs []string) error
	// SetOwnedOrder assigns positions 0..N-1 directly to the tenant's own
	// rows in the given order.
	SetOwnedOrder(ctx context.Context, tenantID string, orderedIDs []string) error
}

// EventPublisher defines the contract for emitting stage configuration
// events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event, tenantID string, stage Stage) error
}

// TransitionValidator checks visibility lifecycle changes.
type TransitionValidator interface {
	Apply(ctx context.Context, current Status, event Event) (Status, error)
}
