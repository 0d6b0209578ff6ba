package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/shopspring/decimal"

	"crowdfill/internal/domain"
	"crowdfill/internal/events"
	"crowdfill/internal/ledger"
)

type AssignOptions struct {
	ItemID string
	TeamID string
	// PricePerUnit defaults to the item's cost per unit.
	PricePerUnit decimal.Decimal
	Instructions string
	Deadline     *string
	ActorID      string
}

// AssignDirect gives everything still free on the item to one team.
func (e Engine) AssignDirect(ctx context.Context, opts AssignOptions) (domain.Job, error) {
	if strings.TrimSpace(opts.TeamID) == "" {
		return domain.Job{}, domain.Validation("team_id is required")
	}
	if err := validDeadline(opts.Deadline); err != nil {
		return domain.Job{}, err
	}
	return withItem(ctx, e, "assign", opts.ItemID, func(tx *sql.Tx) (domain.Job, error) {
		item, err := e.humanItem(ctx, tx, opts.ItemID)
		if err != nil {
			return domain.Job{}, err
		}
		price, err := priceOrCost(opts.PricePerUnit, item)
		if err != nil {
			return domain.Job{}, err
		}
		snap, err := e.snapshot(ctx, tx, item)
		if err != nil {
			return domain.Job{}, err
		}
		qty := snap.AvailableToAssign()
		if qty == 0 {
			return domain.Job{}, &domain.CapacityError{Scope: "item", ID: item.ID, Requested: 1, Available: 0}
		}
		return e.insertJob(ctx, tx, item, newJobSpec{
			TeamID:       opts.TeamID,
			Quantity:     qty,
			PricePerUnit: price,
			Source:       domain.JobSourceDirect,
			Instructions: opts.Instructions,
			Deadline:     opts.Deadline,
		}, opts.ActorID)
	})
}

func priceOrCost(price decimal.Decimal, item domain.OrderItem) (decimal.Decimal, error) {
	if price.IsZero() {
		price = item.CostPerUnit
	}
	if err := validPrice("price_per_unit", price); err != nil {
		return decimal.Zero, err
	}
	return price, nil
}

type SplitPart struct {
	TeamID       string
	Quantity     int
	PricePerUnit decimal.Decimal
}

type SplitOptions struct {
	ItemID       string
	Parts        []SplitPart
	Instructions string
	Deadline     *string
	ActorID      string
}

// Split creates one job per part. Either every part fits in the item's free
// quantity or nothing is created.
func (e Engine) Split(ctx context.Context, opts SplitOptions) ([]domain.Job, error) {
	if len(opts.Parts) == 0 {
		return nil, domain.Validation("split needs at least one part")
	}
	seen := map[string]bool{}
	total := 0
	for i, p := range opts.Parts {
		if strings.TrimSpace(p.TeamID) == "" {
			return nil, domain.Validation("parts[%d].team_id is required", i)
		}
		if seen[p.TeamID] {
			return nil, domain.Validation("team %s appears twice in the split", p.TeamID)
		}
		seen[p.TeamID] = true
		if p.Quantity <= 0 {
			return nil, domain.Validation("parts[%d].quantity must be positive", i)
		}
		total += p.Quantity
	}
	if err := validDeadline(opts.Deadline); err != nil {
		return nil, err
	}
	return withItem(ctx, e, "split", opts.ItemID, func(tx *sql.Tx) ([]domain.Job, error) {
		item, err := e.humanItem(ctx, tx, opts.ItemID)
		if err != nil {
			return nil, err
		}
		snap, err := e.snapshot(ctx, tx, item)
		if err != nil {
			return nil, err
		}
		if err := snap.Reserve(total); err != nil {
			return nil, err
		}
		jobs := make([]domain.Job, 0, len(opts.Parts))
		for _, p := range opts.Parts {
			price, err := priceOrCost(p.PricePerUnit, item)
			if err != nil {
				return nil, err
			}
			job, err := e.insertJob(ctx, tx, item, newJobSpec{
				TeamID:       p.TeamID,
				Quantity:     p.Quantity,
				PricePerUnit: price,
				Source:       domain.JobSourceSplit,
				Instructions: opts.Instructions,
				Deadline:     opts.Deadline,
			}, opts.ActorID)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, job)
		}
		return jobs, nil
	})
}

type ReassignOptions struct {
	JobID  string
	TeamID string
	// PricePerUnit overrides the old job's price when set.
	PricePerUnit *decimal.Decimal
	Reason       string
	ActorID      string
}

type ReassignResult struct {
	Previous   domain.Job         `json:"previous"`
	Job        domain.Job         `json:"job"`
	Settlement *domain.Settlement `json:"settlement,omitempty"`
}

// Reassign moves the unclaimed part of a live job to another team. The old
// job keeps what its claims hold, or is cancelled when they hold nothing.
func (e Engine) Reassign(ctx context.Context, opts ReassignOptions) (ReassignResult, error) {
	if strings.TrimSpace(opts.Reason) == "" {
		return ReassignResult{}, domain.Validation("reason is required")
	}
	if strings.TrimSpace(opts.TeamID) == "" {
		return ReassignResult{}, domain.Validation("team_id is required")
	}
	if opts.PricePerUnit != nil {
		if err := validPrice("price_per_unit", *opts.PricePerUnit); err != nil {
			return ReassignResult{}, err
		}
	}
	return withJob(ctx, e, "reassign", opts.JobID, func(tx *sql.Tx, job domain.Job, item domain.OrderItem) (ReassignResult, error) {
		if job.Status.Terminal() {
			return ReassignResult{}, domain.Invalid("job %s is %s", job.ID, job.Status)
		}
		if job.TeamID == opts.TeamID {
			return ReassignResult{}, domain.Validation("job %s already belongs to team %s", job.ID, job.TeamID)
		}
		claims, err := e.Repo.ListJobClaimsTx(ctx, tx, job.ID)
		if err != nil {
			return ReassignResult{}, err
		}
		reserved := ledger.Reserved(claims)
		remainder := job.Quantity - reserved
		if remainder <= 0 {
			return ReassignResult{}, &domain.CapacityError{Scope: "job", ID: job.ID, Requested: 1, Available: 0}
		}

		res := ReassignResult{}
		if reserved == 0 {
			cancelled, s, err := e.cancelJobTx(ctx, tx, job, "reassigned: "+opts.Reason, nil, opts.ActorID)
			if err != nil {
				return ReassignResult{}, err
			}
			res.Previous, res.Settlement = cancelled, &s
		} else {
			job.Quantity = reserved
			job.UpdatedAt = e.stamp()
			if err := e.Repo.UpdateJob(ctx, tx, job); err != nil {
				return ReassignResult{}, err
			}
			if err := e.advanceIfSubmitted(ctx, tx, &job, claims, opts.ActorID); err != nil {
				return ReassignResult{}, err
			}
			// A kept portion that is already fully reviewed completes here;
			// no later review would reach it.
			if err := e.settleReview(ctx, tx, &job, claims, opts.ActorID); err != nil {
				return ReassignResult{}, err
			}
			res.Previous = job
		}

		price := job.PricePerUnit
		if opts.PricePerUnit != nil {
			price = *opts.PricePerUnit
		}
		parent := job.ID
		next, err := e.insertJob(ctx, tx, item, newJobSpec{
			TeamID:       opts.TeamID,
			Quantity:     remainder,
			PricePerUnit: price,
			Source:       domain.JobSourceReassign,
			ParentJobID:  &parent,
			Instructions: job.Instructions,
			Deadline:     job.Deadline,
		}, opts.ActorID)
		if err != nil {
			return ReassignResult{}, err
		}
		res.Job = next
		if err := e.emit(ctx, tx, "job.reassigned", job.OrderID, "job", job.ID, opts.ActorID, events.EventPayload{
			"reason":     opts.Reason,
			"moved":      remainder,
			"kept":       reserved,
			"new_job_id": next.ID,
			"new_team":   opts.TeamID,
		}); err != nil {
			return ReassignResult{}, err
		}
		snap, err := e.snapshot(ctx, tx, item)
		if err != nil {
			return ReassignResult{}, err
		}
		return res, snap.Check()
	})
}
