package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"crowdfill/internal/domain"
	"crowdfill/internal/engine"
	"crowdfill/internal/repo"
)

func registerOrders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "import-order",
		Method:        http.MethodPost,
		Path:          "/orders",
		Summary:       "Import a paid order",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body ImportOrderRequest `json:"body"`
	}) (*struct {
		Body domain.Order `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, "order.import")
		if err != nil {
			return nil, handleError(err)
		}
		if isNullRaw(rawBodyMap(ctx)["items"]) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "items must be array", map[string]any{"field": "items", "reason": "must be array"})
		}
		opts := engine.ImportOrderOptions{ID: input.Body.ID, SellerID: input.Body.SellerID, ActorID: actorID}
		for i, it := range input.Body.Items {
			unit, err := parseMoney("items.unit_price", it.UnitPrice)
			if err != nil {
				return nil, err
			}
			cost := decimal.Zero
			if strings.TrimSpace(it.CostPerUnit) != "" {
				if cost, err = parseMoney("items.cost_per_unit", it.CostPerUnit); err != nil {
					return nil, err
				}
			}
			if it.Service == "" {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "service is required", map[string]any{"index": i})
			}
			opts.Items = append(opts.Items, engine.ImportItem{
				ID:          it.ID,
				Service:     it.Service,
				Target:      it.Target,
				ServiceMode: domain.ServiceMode(it.ServiceMode),
				Quantity:    it.Quantity,
				UnitPrice:   unit,
				CostPerUnit: cost,
			})
		}
		order, err := e.ImportOrder(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Order `json:"body"`
		}{Body: order}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-orders",
		Method:      http.MethodGet,
		Path:        "/orders",
		Summary:     "List orders",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedOrders `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "order.read"); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		orders, err := e.ListOrders(ctx, input.Status, repo.Page{Limit: limit + 1, CursorCreatedAt: cursorCreated, CursorID: cursorID})
		if err != nil {
			return nil, handleError(err)
		}
		items, next := pageOf(orders, limit, func(o domain.Order) (string, string) { return o.CreatedAt, o.ID })
		return &struct {
			Body paginatedOrders `json:"body"`
		}{Body: paginatedOrders{Items: items, NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-order",
		Method:      http.MethodGet,
		Path:        "/orders/{order_id}",
		Summary:     "Get order with its items",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
	}) (*struct {
		Body domain.Order `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "order.read"); err != nil {
			return nil, handleError(err)
		}
		order, err := e.GetOrder(ctx, input.OrderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Order `json:"body"`
		}{Body: order}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-order",
		Method:      http.MethodPost,
		Path:        "/orders/{order_id}/cancel",
		Summary:     "Cancel an order and settle its live jobs",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		OrderID string        `path:"order_id"`
		Body    ReasonRequest `json:"body"`
	}) (*struct {
		Body domain.Order `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, "order.cancel")
		if err != nil {
			return nil, handleError(err)
		}
		order, err := e.CancelOrder(ctx, input.OrderID, input.Body.Reason, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Order `json:"body"`
		}{Body: order}, nil
	})
}

func registerItems(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-item",
		Method:      http.MethodGet,
		Path:        "/items/{item_id}",
		Summary:     "Get an item with its ledger figures",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body engine.ItemSummary `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "item.read"); err != nil {
			return nil, handleError(err)
		}
		summary, err := e.GetItem(ctx, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ItemSummary `json:"body"`
		}{Body: summary}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "assign-item",
		Method:        http.MethodPost,
		Path:          "/items/{item_id}/assign",
		Summary:       "Assign the item's free quantity to one team",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ItemID string        `path:"item_id"`
		Body   AssignRequest `json:"body"`
	}) (*struct {
		Body domain.Job `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, "item.allocate")
		if err != nil {
			return nil, handleError(err)
		}
		price := decimal.Zero
		if strings.TrimSpace(input.Body.PricePerUnit) != "" {
			if price, err = parseMoney("price_per_unit", input.Body.PricePerUnit); err != nil {
				return nil, err
			}
		}
		job, err := e.AssignDirect(ctx, engine.AssignOptions{
			ItemID:       input.ItemID,
			TeamID:       input.Body.TeamID,
			PricePerUnit: price,
			Instructions: input.Body.Instructions,
			Deadline:     input.Body.Deadline,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Job `json:"body"`
		}{Body: job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "split-item",
		Method:        http.MethodPost,
		Path:          "/items/{item_id}/split",
		Summary:       "Split the item across several teams",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ItemID string       `path:"item_id"`
		Body   SplitRequest `json:"body"`
	}) (*struct {
		Body []domain.Job `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, "item.allocate")
		if err != nil {
			return nil, handleError(err)
		}
		opts := engine.SplitOptions{
			ItemID:       input.ItemID,
			Instructions: input.Body.Instructions,
			Deadline:     input.Body.Deadline,
			ActorID:      actorID,
		}
		for _, part := range input.Body.Parts {
			price := decimal.Zero
			if strings.TrimSpace(part.PricePerUnit) != "" {
				if price, err = parseMoney("parts.price_per_unit", part.PricePerUnit); err != nil {
					return nil, err
				}
			}
			opts.Parts = append(opts.Parts, engine.SplitPart{TeamID: part.TeamID, Quantity: part.Quantity, PricePerUnit: price})
		}
		jobs, err := e.Split(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Job `json:"body"`
		}{Body: jobs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "retry-dispatch",
		Method:      http.MethodPost,
		Path:        "/items/{item_id}/dispatch",
		Summary:     "Retry dispatching a bot item",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body domain.OrderItem `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, "item.dispatch")
		if err != nil {
			return nil, handleError(err)
		}
		item, err := e.RetryDispatch(ctx, input.ItemID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OrderItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-dispatch-failures",
		Method:      http.MethodGet,
		Path:        "/dispatch-failures",
		Summary:     "List bot dispatch failures",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		All bool `query:"all"`
	}) (*struct {
		Body dispatchFailures `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "item.dispatch"); err != nil {
			return nil, handleError(err)
		}
		failures, err := e.ListDispatchFailures(ctx, input.All)
		if err != nil {
			return nil, handleError(err)
		}
		if failures == nil {
			failures = []domain.DispatchFailure{}
		}
		return &struct {
			Body dispatchFailures `json:"body"`
		}{Body: dispatchFailures{Items: failures}}, nil
	})
}
