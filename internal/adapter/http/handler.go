package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/stageline/internal/app"
	"github.com/neomorfeo/stageline/internal/domain"
)

// StageResponse is the API representation of a stage.
type StageResponse struct {
	ID        string `json:"id" doc:"Unique identifier"`
	TenantID  string `json:"tenant_id,omitempty" doc:"Owning tenant; empty for generic stages"`
	Name      string `json:"name" doc:"Display name"`
	Color     string `json:"color,omitempty" doc:"Display color"`
	Category  string `json:"category" doc:"Workflow category"`
	Position  int    `json:"position" doc:"Display order among visible stages"`
	IsHidden  bool   `json:"is_hidden" doc:"Whether this tenant has hidden the stage"`
	CreatedAt string `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt string `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func toStageResponse(s domain.Stage) StageResponse {
	return StageResponse{
		ID:        s.ID,
		TenantID:  s.TenantID,
		Name:      s.Name,
		Color:     s.Color,
		Category:  string(s.Category),
		Position:  s.Position,
		IsHidden:  s.Hidden,
		CreatedAt: s.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt: s.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func toStageResponses(stages []domain.Stage) []StageResponse {
	resp := make([]StageResponse, len(stages))
	for i, s := range stages {
		resp[i] = toStageResponse(s)
	}
	return resp
}

// RemovalResponse is the tagged outcome of a hide or delete attempt.
// "needs_reassignment" is a decision point, not an error: the caller should
// resubmit the same request with target_stage_id set.
type RemovalResponse struct {
	Outcome     string `json:"outcome" doc:"Removal outcome" enum:"committed,needs_reassignment"`
	StageID     string `json:"stage_id,omitempty" doc:"Stage the operation targeted"`
	PendingRefs int64  `json:"pending_refs,omitempty" doc:"Entities still referencing the stage"`
	MovedRefs   int64  `json:"moved_refs,omitempty" doc:"Entities reassigned as part of the removal"`
}

func toRemovalResponse(o domain.RemovalOutcome) RemovalResponse {
	return RemovalResponse{
		Outcome:     string(o.State),
		StageID:     o.StageID,
		PendingRefs: o.PendingRefs,
		MovedRefs:   o.MovedRefs,
	}
}

// --- List ---

type ListStagesInput struct {
	TenantID string `path:"tenantID" doc:"Tenant scope"`
}

type ListStagesOutput struct {
	Body []StageResponse
}

// --- Create ---

type CreateStageInput struct {
	TenantID string `path:"tenantID" doc:"Tenant scope"`
	Body     struct {
		Name     string `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
		Color    string `json:"color,omitempty" maxLength:"32" doc:"Display color"`
		Category string `json:"category" doc:"Workflow category" enum:"waiting,analysis,action,final,cancel"`
		Position *int   `json:"position,omitempty" minimum:"0" doc:"Display order; appended after the visible set when omitted"`
	}
}

type CreateStageOutput struct {
	Body StageResponse
}

// --- Update ---

type UpdateStageInput struct {
	TenantID string `path:"tenantID" doc:"Tenant scope"`
	ID       string `path:"id" doc:"Stage ID"`
	Body     struct {
		Name     *string `json:"name,omitempty" minLength:"1" maxLength:"255" doc:"Display name"`
		Color    *string `json:"color,omitempty" maxLength:"32" doc:"Display color"`
		Category *string `json:"category,omitempty" doc:"Workflow category" enum:"waiting,analysis,action,final,cancel"`
		Position *int    `json:"position,omitempty" minimum:"0" doc:"Display order"`
	}
}

type UpdateStageOutput struct {
	Body StageResponse
}

// --- Hide / Delete / Unhide ---

type RemoveStageInput struct {
	TenantID string `path:"tenantID" doc:"Tenant scope"`
	ID       string `path:"id" doc:"Stage ID"`
	Target   string `query:"target_stage_id" required:"false" doc:"Visible stage to reassign referencing entities to"`
}

type RemoveStageOutput struct {
	Body RemovalResponse
}

type UnhideStageInput struct {
	TenantID string `path:"tenantID" doc:"Tenant scope"`
	ID       string `path:"id" doc:"Stage ID"`
}

type UnhideStageOutput struct {
	Body RemovalResponse
}

// --- Reorder ---

type ReorderStagesInput struct {
	TenantID string `path:"tenantID" doc:"Tenant scope"`
	Body     struct {
		OrderedIDs []string `json:"ordered_ids" minItems:"1" doc:"Stage ids in the desired display order"`
	}
}

type ReorderStagesOutput struct {
	Body RemovalResponse
}

// Register adds all stage configuration routes to the Huma API. Every route
// is scoped by the tenant path parameter; there is no cross-tenant surface.
func Register(api huma.API, svc *app.StageService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-visible-stages",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{tenantID}/stages",
		Summary:     "List the tenant's visible stages",
		Tags:        []string{"Stages"},
	}, func(ctx context.Context, input *ListStagesInput) (*ListStagesOutput, error) {
		stages, err := svc.ListVisibleStages(ctx, input.TenantID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ListStagesOutput{Body: toStageResponses(stages)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-generic-stages",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{tenantID}/stages/generic",
		Summary:     "List generic stages with the tenant's hidden flags",
		Tags:        []string{"Stages"},
	}, func(ctx context.Context, input *ListStagesInput) (*ListStagesOutput, error) {
		stages, err := svc.ListGenericStages(ctx, input.TenantID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ListStagesOutput{Body: toStageResponses(stages)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenant-stages",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{tenantID}/stages/own",
		Summary:     "List the tenant's own stages",
		Tags:        []string{"Stages"},
	}, func(ctx context.Context, input *ListStagesInput) (*ListStagesOutput, error) {
		stages, err := svc.ListTenantStages(ctx, input.TenantID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ListStagesOutput{Body: toStageResponses(stages)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-tenant-stage",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{tenantID}/stages",
		Summary:     "Create a tenant-owned stage",
		Tags:        []string{"Stages"},
	}, func(ctx context.Context, input *CreateStageInput) (*CreateStageOutput, error) {
		stage, err := svc.CreateTenantStage(ctx, input.TenantID, domain.NewStagePayload{
			Name:     input.Body.Name,
			Color:    input.Body.Color,
			Category: domain.Category(input.Body.Category),
			Position: input.Body.Position,
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CreateStageOutput{Body: toStageResponse(stage)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-tenant-stage",
		Method:      http.MethodPatch,
		Path:        "/api/v1/tenants/{tenantID}/stages/{id}",
		Summary:     "Update a tenant-owned stage",
		Tags:        []string{"Stages"},
	}, func(ctx context.Context, input *UpdateStageInput) (*UpdateStageOutput, error) {
		patch := domain.StagePatch{
			Name:     input.Body.Name,
			Color:    input.Body.Color,
			Position: input.Body.Position,
		}
		if input.Body.Category != nil {
			c := domain.Category(*input.Body.Category)
			patch.Category = &c
		}

		stage, err := svc.UpdateTenantStage(ctx, input.TenantID, input.ID, patch)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &UpdateStageOutput{Body: toStageResponse(stage)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hide-generic-stage",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{tenantID}/stages/{id}/hide",
		Summary:     "Hide a generic stage for this tenant",
		Description: "Responds needs_reassignment when entities still reference the stage; resubmit with target_stage_id to reassign and hide as one atomic unit.",
		Tags:        []string{"Stages"},
	}, func(ctx context.Context, input *RemoveStageInput) (*RemoveStageOutput, error) {
		var outcome domain.RemovalOutcome
		var err error
		if input.Target == "" {
			outcome, err = svc.HideGenericStage(ctx, input.TenantID, input.ID)
		} else {
			outcome, err = svc.HideGenericStageWithReassign(ctx, input.TenantID, input.ID, input.Target)
		}
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RemoveStageOutput{Body: toRemovalResponse(outcome)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unhide-generic-stage",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{tenantID}/stages/{id}/unhide",
		Summary:     "Unhide a generic stage for this tenant",
		Tags:        []string{"Stages"},
	}, func(ctx context.Context, input *UnhideStageInput) (*UnhideStageOutput, error) {
		if err := svc.UnhideGenericStage(ctx, input.TenantID, input.ID); err != nil {
			return nil, toHumaError(err)
		}
		return &UnhideStageOutput{Body: RemovalResponse{
			Outcome: string(domain.RemovalCommitted),
			StageID: input.ID,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-tenant-stage",
		Method:      http.MethodDelete,
		Path:        "/api/v1/tenants/{tenantID}/stages/{id}",
		Summary:     "Soft-delete a tenant-owned stage",
		Description: "Responds needs_reassignment when entities still reference the stage; resubmit with target_stage_id to reassign and delete as one atomic unit.",
		Tags:        []string{"Stages"},
	}, func(ctx context.Context, input *RemoveStageInput) (*RemoveStageOutput, error) {
		var outcome domain.RemovalOutcome
		var err error
		if input.Target == "" {
			outcome, err = svc.DeleteTenantStage(ctx, input.TenantID, input.ID)
		} else {
			outcome, err = svc.DeleteTenantStageWithReassign(ctx, input.TenantID, input.ID, input.Target)
		}
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RemoveStageOutput{Body: toRemovalResponse(outcome)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-generic-stages",
		Method:      http.MethodPut,
		Path:        "/api/v1/tenants/{tenantID}/stages/generic/order",
		Summary:     "Reorder the tenant's visible stages",
		Tags:        []string{"Stages"},
	}, func(ctx context.Context, input *ReorderStagesInput) (*ReorderStagesOutput, error) {
		if err := svc.ReorderGenericStages(ctx, input.TenantID, input.Body.OrderedIDs); err != nil {
			return nil, toHumaError(err)
		}
		return &ReorderStagesOutput{Body: RemovalResponse{Outcome: string(domain.RemovalCommitted)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-tenant-stages",
		Method:      http.MethodPut,
		Path:        "/api/v1/tenants/{tenantID}/stages/own/order",
		Summary:     "Reorder the tenant's own stages",
		Tags:        []string{"Stages"},
	}, func(ctx context.Context, input *ReorderStagesInput) (*ReorderStagesOutput, error) {
		if err := svc.ReorderTenantStages(ctx, input.TenantID, input.Body.OrderedIDs); err != nil {
			return nil, toHumaError(err)
		}
		return &ReorderStagesOutput{Body: RemovalResponse{Outcome: string(domain.RemovalCommitted)}}, nil
	})
}

// toHumaError translates domain errors to Huma HTTP errors. Missing
// categories travel as structured error details so the caller can render an
// actionable message.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrStageNotFound) {
		return huma.Error404NotFound("stage not found")
	}

	var valErr *domain.ValidationError
	if errors.As(err, &valErr) {
		return huma.Error422UnprocessableEntity(valErr.Error())
	}

	var forbErr *domain.ForbiddenError
	if errors.As(err, &forbErr) {
		return huma.Error403Forbidden(forbErr.Error())
	}

	var confErr *domain.CategoryConflictError
	if errors.As(err, &confErr) {
		return huma.Error409Conflict(confErr.Error())
	}

	var covErr *domain.CoverageBreakError
	if errors.As(err, &covErr) {
		details := make([]error, len(covErr.Missing))
		for i, c := range covErr.Missing {
			details[i] = &huma.ErrorDetail{
				Message:  fmt.Sprintf("category %q would have no visible stage", c),
				Location: "category",
				Value:    string(c),
			}
		}
		return huma.Error409Conflict(covErr.Error(), details...)
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
