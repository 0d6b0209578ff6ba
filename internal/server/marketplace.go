package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"crowdfill/internal/domain"
	"crowdfill/internal/engine"
	"crowdfill/internal/repo"
)

type postOutput struct {
	Body domain.OutsourcePost `json:"body"`
}

func registerMarketplace(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-post",
		Method:        http.MethodPost,
		Path:          "/items/{item_id}/posts",
		Summary:       "Post part of an item for outside teams to bid on",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ItemID string            `path:"item_id"`
		Body   CreatePostRequest `json:"body"`
	}) (*postOutput, error) {
		actorID, err := requirePermission(ctx, "post.create")
		if err != nil {
			return nil, handleError(err)
		}
		price, err := parseMoney("suggested_price_per_unit", input.Body.SuggestedPricePerUnit)
		if err != nil {
			return nil, err
		}
		post, err := e.PostOutsource(ctx, engine.PostOptions{
			ItemID:                input.ItemID,
			Quantity:              input.Body.Quantity,
			SuggestedPricePerUnit: price,
			Deadline:              input.Body.Deadline,
			ActorID:               actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &postOutput{Body: post}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-posts",
		Method:      http.MethodGet,
		Path:        "/posts",
		Summary:     "List outsourcing posts",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ItemID string `query:"item_id"`
		Status string `query:"status"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedPosts `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "post.read"); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		posts, err := e.ListPosts(ctx, repo.PostFilters{
			ItemID: input.ItemID,
			Status: input.Status,
			Page:   repo.Page{Limit: limit + 1, CursorCreatedAt: cursorCreated, CursorID: cursorID},
		})
		if err != nil {
			return nil, handleError(err)
		}
		items, next := pageOf(posts, limit, func(p domain.OutsourcePost) (string, string) { return p.CreatedAt, p.ID })
		return &struct {
			Body paginatedPosts `json:"body"`
		}{Body: paginatedPosts{Items: items, NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-post",
		Method:      http.MethodGet,
		Path:        "/posts/{post_id}",
		Summary:     "Get a post with its bids",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PostID string `path:"post_id"`
	}) (*postOutput, error) {
		if _, err := requirePermission(ctx, "post.read"); err != nil {
			return nil, handleError(err)
		}
		post, err := e.GetPost(ctx, input.PostID)
		if err != nil {
			return nil, handleError(err)
		}
		return &postOutput{Body: post}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-post",
		Method:      http.MethodPost,
		Path:        "/posts/{post_id}/cancel",
		Summary:     "Withdraw an open post",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		PostID string `path:"post_id"`
	}) (*postOutput, error) {
		actorID, err := requirePermission(ctx, "post.cancel")
		if err != nil {
			return nil, handleError(err)
		}
		post, err := e.CancelPost(ctx, input.PostID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &postOutput{Body: post}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "place-bid",
		Method:        http.MethodPost,
		Path:          "/posts/{post_id}/bids",
		Summary:       "Bid on an open post; a team's new bid replaces its old one",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		PostID string          `path:"post_id"`
		Body   PlaceBidRequest `json:"body"`
	}) (*struct {
		Body domain.Bid `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, "bid.place")
		if err != nil {
			return nil, handleError(err)
		}
		teamID := input.Body.TeamID
		if teamID == "" {
			p, _ := principalFromContext(ctx)
			teamID = p.TeamID
		}
		if teamID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "team_id is required", map[string]any{"field": "team_id"})
		}
		price, err := parseMoney("price_per_unit", input.Body.PricePerUnit)
		if err != nil {
			return nil, err
		}
		bid, err := e.PlaceBid(ctx, engine.BidOptions{
			PostID:       input.PostID,
			TeamID:       teamID,
			PricePerUnit: price,
			Note:         input.Body.Note,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Bid `json:"body"`
		}{Body: bid}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-bid",
		Method:      http.MethodPost,
		Path:        "/bids/{bid_id}/accept",
		Summary:     "Accept a bid and create the outsourced job",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		BidID string `path:"bid_id"`
	}) (*struct {
		Body engine.AcceptResult `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, "bid.accept")
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.AcceptBid(ctx, input.BidID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.AcceptResult `json:"body"`
		}{Body: res}, nil
	})
}
