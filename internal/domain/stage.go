package domain

import "time"

// Category classifies a stage for workflow reporting. Every tenant's
// visible stage set must cover all required categories at all times.
type Category string

const (
	CategoryWaiting  Category = "waiting"
	CategoryAnalysis Category = "analysis"
	CategoryAction   Category = "action"
	CategoryFinal    Category = "final"
	CategoryCancel   Category = "cancel"
)

// RequiredCategories lists every category a tenant's visible set must span.
var RequiredCategories = []Category{
	CategoryWaiting,
	CategoryAnalysis,
	CategoryAction,
	CategoryFinal,
	CategoryCancel,
}

// Valid reports whether c is a known workflow category.
func (c Category) Valid() bool {
	for _, rc := range RequiredCategories {
		if c == rc {
			return true
		}
	}
	return false
}

// Exclusive reports whether a tenant may own at most one non-deleted
// stage of this category.
func (c Category) Exclusive() bool {
	return c == CategoryFinal || c == CategoryCancel
}

// Status represents the per-tenant visibility state of a stage.
// Generic stages toggle between visible and hidden through the overlay;
// tenant-owned stages move one way from visible to deleted.
type Status string

const (
	StatusVisible Status = "visible"
	StatusHidden  Status = "hidden"
	StatusDeleted Status = "deleted"
)

// Event represents an action against a stage. The hide/unhide/delete
// subset drives visibility transitions; the rest are published only.
type Event string

const (
	EventCreate Event = "create"
	EventUpdate Event = "update"
	EventHide   Event = "hide"
	EventUnhide Event = "unhide"
	EventDelete Event = "delete"
)

// Transition defines a valid visibility change: an event moves a stage
// from Src to Dst in one tenant's view.
type Transition struct {
	Event Event
	Src   Status
	Dst   Status
}

// Transitions defines all valid visibility changes. Unhide of an
// already-visible stage is handled as a no-op before the validator runs,
// so it needs no entry here. This is domain knowledge consumed by the
// FSM adapter.
var Transitions = []Transition{
	{Event: EventHide, Src: StatusVisible, Dst: StatusHidden},
	{Event: EventUnhide, Src: StatusHidden, Dst: StatusVisible},
	{Event: EventDelete, Src: StatusVisible, Dst: StatusDeleted},
}

// Stage is a named classification state entities move through.
// An empty TenantID marks a generic (shared) stage owned by the platform;
// a non-empty TenantID marks a stage owned by exactly one tenant.
type Stage struct {
	ID        string
	TenantID  string
	Name      string
	Color     string
	Category  Category
	Position  int
	Hidden    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Generic reports whether the stage is shared by all tenants.
func (s Stage) Generic() bool { return s.TenantID == "" }

// VisibilityStatus derives the stage's current per-tenant state.
// Deleted stages never surface from the store, so only visible and
// hidden are reachable here.
func (s Stage) VisibilityStatus() Status {
	if s.Hidden {
		return StatusHidden
	}
	return StatusVisible
}

// NewStage creates a tenant-owned stage.
func NewStage(id, tenantID, name, color string, category Category, position int) Stage {
	now := time.Now().UTC()
	return Stage{
		ID:        id,
		TenantID:  tenantID,
		Name:      name,
		Color:     color,
		Category:  category,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewStagePayload carries the caller-supplied fields for creating a
// tenant-owned stage. A nil Position appends the stage after the tenant's
// visible set, keeping positions unique without an explicit reorder.
type NewStagePayload struct {
	Name     string
	Color    string
	Category Category
	Position *int
}

// StagePatch carries optional field updates for a tenant-owned stage.
// Nil fields are left unchanged.
type StagePatch struct {
	Name     *string
	Color    *string
	Category *Category
	Position *int
}

// RemovalState tags the outcome of a hide or delete attempt.
type RemovalState string

const (
	// RemovalCommitted means the hide/delete was applied.
	RemovalCommitted RemovalState = "committed"
	// RemovalNeedsReassignment means entities still reference the stage;
	// the caller must resubmit with a reassignment target. Nothing was
	// changed.
	RemovalNeedsReassignment RemovalState = "needs_reassignment"
)

// RemovalOutcome is the structured result of a hide or delete attempt.
// It is a decision point, not an error: NeedsReassignment asks the caller
// for a target stage and carries the count of referencing entities.
type RemovalOutcome struct {
	State       RemovalState
	StageID     string
	PendingRefs int64
	MovedRefs   int64
}

// Ticket is a referencing entity: it holds a plain stage foreign key.
// Ticket management itself lives outside this engine; the engine only
// counts and reassigns these references during stage removal.
type Ticket struct {
	ID        string
	TenantID  string
	StageID   string
	Subject   string
	CreatedAt time.Time
}
