package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"crowdfill/internal/credibility"
	"crowdfill/internal/domain"
	"crowdfill/internal/engine"
	"crowdfill/internal/repo"
)

func registerPayouts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-payouts",
		Method:      http.MethodGet,
		Path:        "/payouts",
		Summary:     "List payouts with their total",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		WorkerID string `query:"worker_id"`
		JobID    string `query:"job_id"`
		Limit    int    `query:"limit" default:"200"`
	}) (*struct {
		Body engine.PayoutStatement `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "payout.read"); err != nil {
			return nil, handleError(err)
		}
		stmt, err := e.Payouts(ctx, repo.PayoutFilters{
			WorkerID: input.WorkerID,
			JobID:    input.JobID,
			Page:     repo.Page{Limit: normalizeLimit(input.Limit)},
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.PayoutStatement `json:"body"`
		}{Body: stmt}, nil
	})
}

func registerCredibility(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "put-report-stats",
		Method:      http.MethodPut,
		Path:        "/workers/{worker_id}/report-stats",
		Summary:     "Record a worker's report review outcomes",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		WorkerID string             `path:"worker_id"`
		Body     ReportStatsRequest `json:"body"`
	}) (*struct {
		Body domain.WorkerReportStats `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, "credibility.write")
		if err != nil {
			return nil, handleError(err)
		}
		canReport := true
		if input.Body.CanReport != nil {
			canReport = *input.Body.CanReport
		}
		stats, err := e.PutReportStats(ctx, domain.WorkerReportStats{
			WorkerID:          input.WorkerID,
			TotalReports:      input.Body.TotalReports,
			ConfirmedReports:  input.Body.ConfirmedReports,
			DismissedReports:  input.Body.DismissedReports,
			FalseReports:      input.Body.FalseReports,
			CanReport:         canReport,
			ReportBannedUntil: input.Body.ReportBannedUntil,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkerReportStats `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-credibility",
		Method:      http.MethodGet,
		Path:        "/workers/{worker_id}/credibility",
		Summary:     "Score a worker as a reporter",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		WorkerID string `path:"worker_id"`
	}) (*struct {
		Body credibility.Score `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "credibility.read"); err != nil {
			return nil, handleError(err)
		}
		score, err := e.ReporterCredibility(ctx, input.WorkerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body credibility.Score `json:"body"`
		}{Body: score}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "prioritize-reports",
		Method:      http.MethodPost,
		Path:        "/reports/prioritize",
		Summary:     "Order pending reports by reporter credibility",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body PrioritizeRequest `json:"body"`
	}) (*struct {
		Body rankedReports `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "credibility.read"); err != nil {
			return nil, handleError(err)
		}
		ranked, err := e.PrioritizeReports(ctx, input.Body.Reports)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body rankedReports `json:"body"`
		}{Body: rankedReports{Items: ranked}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OrderID    string `query:"order_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "event.read"); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.ListEvents(ctx, limit+1, cursorID, repo.EventFilters{
			OrderID:    input.OrderID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []domain.Event{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}
