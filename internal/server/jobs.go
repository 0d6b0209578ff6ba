package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"crowdfill/internal/domain"
	"crowdfill/internal/engine"
	"crowdfill/internal/repo"
)

type jobOutput struct {
	Body domain.Job `json:"body"`
}

func registerJobs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List jobs",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ItemID  string `query:"item_id"`
		OrderID string `query:"order_id"`
		TeamID  string `query:"team_id"`
		Status  string `query:"status"`
		Limit   int    `query:"limit" default:"50"`
		Cursor  string `query:"cursor"`
	}) (*struct {
		Body paginatedJobs `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "job.read"); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		jobs, err := e.ListJobs(ctx, repo.JobFilters{
			ItemID:  input.ItemID,
			OrderID: input.OrderID,
			TeamID:  input.TeamID,
			Status:  input.Status,
			Page:    repo.Page{Limit: limit + 1, CursorCreatedAt: cursorCreated, CursorID: cursorID},
		})
		if err != nil {
			return nil, handleError(err)
		}
		items, next := pageOf(jobs, limit, func(j domain.Job) (string, string) { return j.CreatedAt, j.ID })
		return &struct {
			Body paginatedJobs `json:"body"`
		}{Body: paginatedJobs{Items: items, NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}",
		Summary:     "Get job",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JobID string `path:"job_id"`
	}) (*jobOutput, error) {
		if _, err := requirePermission(ctx, "job.read"); err != nil {
			return nil, handleError(err)
		}
		job, err := e.GetJob(ctx, input.JobID)
		if err != nil {
			return nil, handleError(err)
		}
		return &jobOutput{Body: job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-job",
		Method:      http.MethodPatch,
		Path:        "/jobs/{job_id}",
		Summary:     "Edit a pending job",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		JobID string         `path:"job_id"`
		Body  EditJobRequest `json:"body"`
	}) (*jobOutput, error) {
		actorID, err := requirePermission(ctx, "job.edit")
		if err != nil {
			return nil, handleError(err)
		}
		price, err := parseOptionalMoney("price_per_unit", input.Body.PricePerUnit)
		if err != nil {
			return nil, err
		}
		job, err := e.EditJob(ctx, engine.EditJobOptions{
			JobID:        input.JobID,
			Quantity:     input.Body.Quantity,
			PricePerUnit: price,
			Instructions: input.Body.Instructions,
			Deadline:     input.Body.Deadline,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &jobOutput{Body: job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-job",
		Method:        http.MethodDelete,
		Path:          "/jobs/{job_id}",
		Summary:       "Delete a pending job without claims",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		JobID string `path:"job_id"`
	}) (*struct{}, error) {
		actorID, err := requirePermission(ctx, "job.edit")
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteJob(ctx, input.JobID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{job_id}/review",
		Summary:     "Move an in-progress job to review",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		JobID string `path:"job_id"`
	}) (*jobOutput, error) {
		actorID, err := requirePermission(ctx, "job.advance")
		if err != nil {
			return nil, handleError(err)
		}
		job, err := e.AdvanceToReview(ctx, input.JobID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &jobOutput{Body: job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "preview-cancel-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}/cancellation",
		Summary:     "Preview what cancelling the job would pay",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		JobID string `path:"job_id"`
	}) (*struct {
		Body domain.Settlement `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "job.cancel"); err != nil {
			return nil, handleError(err)
		}
		s, err := e.PreviewCancellation(ctx, input.JobID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Settlement `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{job_id}/cancel",
		Summary:     "Cancel a job and settle its claims",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		JobID string           `path:"job_id"`
		Body  CancelJobRequest `json:"body"`
	}) (*struct {
		Body engine.CancelResult `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, "job.cancel")
		if err != nil {
			return nil, handleError(err)
		}
		expected, err := parseOptionalMoney("expected_total", input.Body.ExpectedTotal)
		if err != nil {
			return nil, err
		}
		res, err := e.CancelJob(ctx, engine.CancelJobOptions{
			JobID:         input.JobID,
			Reason:        input.Body.Reason,
			ExpectedTotal: expected,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.CancelResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reassign-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{job_id}/reassign",
		Summary:     "Move a job's unclaimed quantity to another team",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		JobID string          `path:"job_id"`
		Body  ReassignRequest `json:"body"`
	}) (*struct {
		Body engine.ReassignResult `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, "item.allocate")
		if err != nil {
			return nil, handleError(err)
		}
		price, err := parseOptionalMoney("price_per_unit", input.Body.PricePerUnit)
		if err != nil {
			return nil, err
		}
		res, err := e.Reassign(ctx, engine.ReassignOptions{
			JobID:        input.JobID,
			TeamID:       input.Body.TeamID,
			PricePerUnit: price,
			Reason:       input.Body.Reason,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ReassignResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-settlement",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}/settlement",
		Summary:     "Get the recorded settlement of a cancelled job",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JobID string `path:"job_id"`
	}) (*struct {
		Body domain.Settlement `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "payout.read"); err != nil {
			return nil, handleError(err)
		}
		s, err := e.GetSettlement(ctx, input.JobID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Settlement `json:"body"`
		}{Body: s}, nil
	})
}
