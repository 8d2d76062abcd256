package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for simple conditions without extra context.
// ErrStageNotFound covers unknown ids, soft-deleted stages, and stages
// owned by another tenant alike, so existence is never leaked.
var (
	ErrStageNotFound = errors.New("stage not found")
)

// ValidationError is returned for malformed or missing required fields.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ForbiddenError is returned when a tenant attempts an operation reserved
// for the platform, such as mutating a generic stage's own fields.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return e.Reason
}

// CategoryConflictError is returned when a tenant would end up owning more
// than one non-deleted stage of an exclusive category.
type CategoryConflictError struct {
	Category Category
}

func (e *CategoryConflictError) Error() string {
	return fmt.Sprintf("tenant already owns a %q stage", e.Category)
}

// CoverageBreakError is returned when a proposed hide or delete would leave
// one or more required categories without a visible stage. It is terminal
// until the tenant's configuration changes.
type CoverageBreakError struct {
	StageID string
	Missing []Category
}

func (e *CoverageBreakError) Error() string {
	names := make([]string, len(e.Missing))
	for i, c := range e.Missing {
		names[i] = string(c)
	}
	return fmt.Sprintf("removing stage %q would leave no visible stage for: %s",
		e.StageID, strings.Join(names, ", "))
}

// TransitionError is returned when a visibility change is not allowed from
// the stage's current state.
type TransitionError struct {
	Event   Event
	Current Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}
