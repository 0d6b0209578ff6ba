package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crowdfill/internal/domain"
	"crowdfill/internal/events"
	"crowdfill/internal/repo"
)

type PostOptions struct {
	ItemID                string
	Quantity              int
	SuggestedPricePerUnit decimal.Decimal
	Deadline              *string
	ActorID               string
}

// PostOutsource offers part of an item on the open board. Posted quantity is
// held like a job's until the post is accepted or cancelled.
func (e Engine) PostOutsource(ctx context.Context, opts PostOptions) (domain.OutsourcePost, error) {
	if opts.Quantity <= 0 {
		return domain.OutsourcePost{}, domain.Validation("quantity must be positive")
	}
	if err := validPrice("suggested_price_per_unit", opts.SuggestedPricePerUnit); err != nil {
		return domain.OutsourcePost{}, err
	}
	if err := validDeadline(opts.Deadline); err != nil {
		return domain.OutsourcePost{}, err
	}
	return withItem(ctx, e, "post outsource", opts.ItemID, func(tx *sql.Tx) (domain.OutsourcePost, error) {
		item, err := e.humanItem(ctx, tx, opts.ItemID)
		if err != nil {
			return domain.OutsourcePost{}, err
		}
		snap, err := e.snapshot(ctx, tx, item)
		if err != nil {
			return domain.OutsourcePost{}, err
		}
		if err := snap.Reserve(opts.Quantity); err != nil {
			return domain.OutsourcePost{}, err
		}
		now := e.stamp()
		p := domain.OutsourcePost{
			ID:                    uuid.NewString(),
			ItemID:                item.ID,
			OrderID:               item.OrderID,
			Quantity:              opts.Quantity,
			SuggestedPricePerUnit: opts.SuggestedPricePerUnit,
			Deadline:              opts.Deadline,
			Status:                domain.PostOpen,
			PostedBy:              opts.ActorID,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if err := e.Repo.InsertPost(ctx, tx, p); err != nil {
			return domain.OutsourcePost{}, err
		}
		return p, e.emit(ctx, tx, "post.created", p.OrderID, "post", p.ID, opts.ActorID, events.EventPayload{
			"item_id":                  item.ID,
			"service":                  item.Service,
			"quantity":                 p.Quantity,
			"suggested_price_per_unit": p.SuggestedPricePerUnit.String(),
		})
	})
}

// withPost locks the post's item and rereads the post inside the transaction.
func withPost[T any](ctx context.Context, e Engine, op, postID string, fn func(tx *sql.Tx, p domain.OutsourcePost, item domain.OrderItem) (T, error)) (T, error) {
	var zero T
	pre, err := e.Repo.GetPost(ctx, postID)
	if err != nil {
		return zero, err
	}
	return withItem(ctx, e, op, pre.ItemID, func(tx *sql.Tx) (T, error) {
		item, err := e.humanItem(ctx, tx, pre.ItemID)
		if err != nil {
			return zero, err
		}
		p, err := e.Repo.GetPostTx(ctx, tx, postID)
		if err != nil {
			return zero, err
		}
		return fn(tx, p, item)
	})
}

type BidOptions struct {
	PostID       string
	TeamID       string
	PricePerUnit decimal.Decimal
	Note         string
	ActorID      string
}

// PlaceBid records a team's price for an open post. A team has one bid per
// post; bidding again replaces the price and note.
func (e Engine) PlaceBid(ctx context.Context, opts BidOptions) (domain.Bid, error) {
	if strings.TrimSpace(opts.TeamID) == "" {
		return domain.Bid{}, domain.Validation("team_id is required")
	}
	if err := validPrice("price_per_unit", opts.PricePerUnit); err != nil {
		return domain.Bid{}, err
	}
	return withPost(ctx, e, "place bid", opts.PostID, func(tx *sql.Tx, p domain.OutsourcePost, _ domain.OrderItem) (domain.Bid, error) {
		if p.Status != domain.PostOpen {
			return domain.Bid{}, domain.Invalid("post %s is %s", p.ID, p.Status)
		}
		now := e.stamp()
		if err := e.Repo.UpsertBid(ctx, tx, domain.Bid{
			ID:           uuid.NewString(),
			PostID:       p.ID,
			TeamID:       opts.TeamID,
			PricePerUnit: opts.PricePerUnit,
			Note:         opts.Note,
			Status:       domain.BidOpen,
			CreatedAt:    now,
			UpdatedAt:    now,
		}); err != nil {
			return domain.Bid{}, err
		}
		bid, err := e.Repo.GetTeamBidTx(ctx, tx, p.ID, opts.TeamID)
		if err != nil {
			return domain.Bid{}, err
		}
		return bid, e.emit(ctx, tx, "bid.placed", p.OrderID, "bid", bid.ID, opts.ActorID, events.EventPayload{
			"post_id":        p.ID,
			"team_id":        bid.TeamID,
			"price_per_unit": bid.PricePerUnit.String(),
		})
	})
}

type AcceptResult struct {
	Post domain.OutsourcePost `json:"post"`
	Bid  domain.Bid           `json:"bid"`
	Job  domain.Job           `json:"job"`
}

// AcceptBid turns the post into a job for the bidding team at its price and
// closes every other bid.
func (e Engine) AcceptBid(ctx context.Context, bidID, actorID string) (AcceptResult, error) {
	pre, err := e.Repo.GetBid(ctx, bidID)
	if err != nil {
		return AcceptResult{}, err
	}
	return withPost(ctx, e, "accept bid", pre.PostID, func(tx *sql.Tx, p domain.OutsourcePost, item domain.OrderItem) (AcceptResult, error) {
		bid, err := e.Repo.GetBidTx(ctx, tx, bidID)
		if err != nil {
			return AcceptResult{}, err
		}
		if err := p.Status.Transition(domain.PostAccepted); err != nil {
			return AcceptResult{}, err
		}
		if err := bid.Status.Transition(domain.BidAccepted); err != nil {
			return AcceptResult{}, err
		}
		now := e.stamp()
		// Quantity moves from the post to the new job inside this tx.
		p.Status = domain.PostAccepted
		p.AcceptedBidID = &bid.ID
		p.UpdatedAt = now
		if err := e.Repo.UpdatePost(ctx, tx, p); err != nil {
			return AcceptResult{}, err
		}
		job, err := e.insertJob(ctx, tx, item, newJobSpec{
			TeamID:       bid.TeamID,
			Quantity:     p.Quantity,
			PricePerUnit: bid.PricePerUnit,
			Source:       domain.JobSourceOutsource,
			Deadline:     p.Deadline,
		}, actorID)
		if err != nil {
			return AcceptResult{}, err
		}
		p.JobID = &job.ID
		if err := e.Repo.UpdatePost(ctx, tx, p); err != nil {
			return AcceptResult{}, err
		}

		bids, err := e.Repo.ListBidsTx(ctx, tx, p.ID)
		if err != nil {
			return AcceptResult{}, err
		}
		for _, other := range bids {
			status := domain.BidRejected
			if other.ID == bid.ID {
				status = domain.BidAccepted
			} else if other.Status != domain.BidOpen {
				continue
			}
			if err := e.Repo.SetBidStatus(ctx, tx, other.ID, status, now); err != nil {
				return AcceptResult{}, err
			}
		}
		bid.Status = domain.BidAccepted
		bid.UpdatedAt = now

		if err := e.emit(ctx, tx, "post.accepted", p.OrderID, "post", p.ID, actorID, events.EventPayload{
			"bid_id":         bid.ID,
			"team_id":        bid.TeamID,
			"price_per_unit": bid.PricePerUnit.String(),
			"job_id":         job.ID,
			"rejected_bids":  len(bids) - 1,
		}); err != nil {
			return AcceptResult{}, err
		}
		bids, err = e.Repo.ListBidsTx(ctx, tx, p.ID)
		if err != nil {
			return AcceptResult{}, err
		}
		p.Bids = bids
		return AcceptResult{Post: p, Bid: bid, Job: job}, nil
	})
}

// CancelPost withdraws an open post and returns its quantity to the item.
func (e Engine) CancelPost(ctx context.Context, postID, actorID string) (domain.OutsourcePost, error) {
	return withPost(ctx, e, "cancel post", postID, func(tx *sql.Tx, p domain.OutsourcePost, _ domain.OrderItem) (domain.OutsourcePost, error) {
		p, err := e.cancelPostTx(ctx, tx, p, actorID)
		if err != nil {
			return domain.OutsourcePost{}, err
		}
		return p, e.refreshOrderStatus(ctx, tx, p.OrderID, actorID)
	})
}

func (e Engine) cancelPostTx(ctx context.Context, tx *sql.Tx, p domain.OutsourcePost, actorID string) (domain.OutsourcePost, error) {
	if err := p.Status.Transition(domain.PostCancelled); err != nil {
		return domain.OutsourcePost{}, err
	}
	now := e.stamp()
	p.Status = domain.PostCancelled
	p.UpdatedAt = now
	if err := e.Repo.UpdatePost(ctx, tx, p); err != nil {
		return domain.OutsourcePost{}, err
	}
	bids, err := e.Repo.ListBidsTx(ctx, tx, p.ID)
	if err != nil {
		return domain.OutsourcePost{}, err
	}
	for _, b := range bids {
		if b.Status == domain.BidOpen {
			if err := e.Repo.SetBidStatus(ctx, tx, b.ID, domain.BidRejected, now); err != nil {
				return domain.OutsourcePost{}, err
			}
		}
	}
	if err := e.emit(ctx, tx, "post.cancelled", p.OrderID, "post", p.ID, actorID, events.EventPayload{"quantity": p.Quantity}); err != nil {
		return domain.OutsourcePost{}, err
	}
	p.Bids, err = e.Repo.ListBidsTx(ctx, tx, p.ID)
	return p, err
}

// GetPost returns the post with its bids.
func (e Engine) GetPost(ctx context.Context, id string) (domain.OutsourcePost, error) {
	p, err := e.Repo.GetPost(ctx, id)
	if err != nil {
		return p, err
	}
	p.Bids, err = e.Repo.ListBids(ctx, id)
	return p, err
}

func (e Engine) ListPosts(ctx context.Context, f repo.PostFilters) ([]domain.OutsourcePost, error) {
	return e.Repo.ListPosts(ctx, f)
}
