package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"crowdfill/internal/domain"
	"crowdfill/internal/engine"
	"crowdfill/internal/repo"
)

type claimOutput struct {
	Body domain.Claim `json:"body"`
}

func registerClaims(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-claim",
		Method:        http.MethodPost,
		Path:          "/jobs/{job_id}/claims",
		Summary:       "Claim part of a job",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		JobID string             `path:"job_id"`
		Body  CreateClaimRequest `json:"body"`
	}) (*claimOutput, error) {
		actorID, err := requirePermission(ctx, "claim.create")
		if err != nil {
			return nil, handleError(err)
		}
		workerID := input.Body.WorkerID
		if workerID == "" {
			workerID = actorID
		}
		claim, err := e.CreateClaim(ctx, engine.CreateClaimOptions{
			JobID:    input.JobID,
			WorkerID: workerID,
			Quantity: input.Body.Quantity,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &claimOutput{Body: claim}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-claims",
		Method:      http.MethodGet,
		Path:        "/claims",
		Summary:     "List claims",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		JobID    string `query:"job_id"`
		WorkerID string `query:"worker_id"`
		Status   string `query:"status"`
		Limit    int    `query:"limit" default:"50"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body paginatedClaims `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "claim.read"); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		claims, err := e.ListClaims(ctx, repo.ClaimFilters{
			JobID:    input.JobID,
			WorkerID: input.WorkerID,
			Status:   input.Status,
			Page:     repo.Page{Limit: limit + 1, CursorCreatedAt: cursorCreated, CursorID: cursorID},
		})
		if err != nil {
			return nil, handleError(err)
		}
		items, next := pageOf(claims, limit, func(c domain.Claim) (string, string) { return c.CreatedAt, c.ID })
		return &struct {
			Body paginatedClaims `json:"body"`
		}{Body: paginatedClaims{Items: items, NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-claim",
		Method:      http.MethodGet,
		Path:        "/claims/{claim_id}",
		Summary:     "Get claim",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ClaimID string `path:"claim_id"`
	}) (*claimOutput, error) {
		if _, err := requirePermission(ctx, "claim.read"); err != nil {
			return nil, handleError(err)
		}
		claim, err := e.GetClaim(ctx, input.ClaimID)
		if err != nil {
			return nil, handleError(err)
		}
		return &claimOutput{Body: claim}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-progress",
		Method:      http.MethodPost,
		Path:        "/claims/{claim_id}/progress",
		Summary:     "Log progress on a claim",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ClaimID string          `path:"claim_id"`
		Body    ProgressRequest `json:"body"`
	}) (*claimOutput, error) {
		actorID, err := requirePermission(ctx, "claim.progress")
		if err != nil {
			return nil, handleError(err)
		}
		claim, err := e.ReportProgress(ctx, engine.ProgressOptions{
			ClaimID:        input.ClaimID,
			ActualQuantity: input.Body.ActualQuantity,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &claimOutput{Body: claim}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-claim",
		Method:      http.MethodPost,
		Path:        "/claims/{claim_id}/submit",
		Summary:     "Submit a claim for review",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ClaimID string             `path:"claim_id"`
		Body    *SubmitClaimRequest `json:"body,omitempty"`
	}) (*claimOutput, error) {
		actorID, err := requirePermission(ctx, "claim.progress")
		if err != nil {
			return nil, handleError(err)
		}
		opts := engine.SubmitClaimOptions{ClaimID: input.ClaimID, ActorID: actorID}
		if input.Body != nil {
			opts.ActualQuantity = input.Body.ActualQuantity
		}
		claim, err := e.SubmitClaim(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &claimOutput{Body: claim}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-claim",
		Method:      http.MethodPost,
		Path:        "/claims/{claim_id}/approve",
		Summary:     "Approve a submitted claim",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ClaimID string `path:"claim_id"`
	}) (*claimOutput, error) {
		actorID, err := requirePermission(ctx, "claim.review")
		if err != nil {
			return nil, handleError(err)
		}
		claim, err := e.ApproveClaim(ctx, engine.ReviewClaimOptions{ClaimID: input.ClaimID, ActorID: actorID})
		if err != nil {
			return nil, handleError(err)
		}
		return &claimOutput{Body: claim}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-claim",
		Method:      http.MethodPost,
		Path:        "/claims/{claim_id}/reject",
		Summary:     "Reject a submitted claim",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ClaimID string        `path:"claim_id"`
		Body    ReasonRequest `json:"body"`
	}) (*claimOutput, error) {
		actorID, err := requirePermission(ctx, "claim.review")
		if err != nil {
			return nil, handleError(err)
		}
		claim, err := e.RejectClaim(ctx, engine.ReviewClaimOptions{ClaimID: input.ClaimID, Reason: input.Body.Reason, ActorID: actorID})
		if err != nil {
			return nil, handleError(err)
		}
		return &claimOutput{Body: claim}, nil
	})
}
