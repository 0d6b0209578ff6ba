package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crowdfill/internal/domain"
	"crowdfill/internal/events"
	"crowdfill/internal/ledger"
	"crowdfill/internal/repo"
	"crowdfill/internal/settlement"
)

// withJob locks the job's item and hands fn the job as seen inside the
// transaction. The item a job belongs to never changes, so reading it before
// locking is safe.
func withJob[T any](ctx context.Context, e Engine, op, jobID string, fn func(tx *sql.Tx, job domain.Job, item domain.OrderItem) (T, error)) (T, error) {
	var zero T
	pre, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return zero, err
	}
	return withItem(ctx, e, op, pre.ItemID, func(tx *sql.Tx) (T, error) {
		item, err := e.humanItem(ctx, tx, pre.ItemID)
		if err != nil {
			return zero, err
		}
		job, err := e.Repo.GetJobTx(ctx, tx, jobID)
		if err != nil {
			return zero, err
		}
		return fn(tx, job, item)
	})
}

func validDeadline(deadline *string) error {
	if deadline == nil || *deadline == "" {
		return nil
	}
	if _, err := time.Parse(time.RFC3339, *deadline); err != nil {
		return domain.Validation("deadline must be RFC3339, got %q", *deadline)
	}
	return nil
}

func validPrice(field string, p decimal.Decimal) error {
	if !p.IsPositive() {
		return domain.Validation("%s must be positive", field)
	}
	return nil
}

type newJobSpec struct {
	TeamID       string
	Quantity     int
	PricePerUnit decimal.Decimal
	Source       domain.JobSource
	ParentJobID  *string
	Instructions string
	Deadline     *string
}

func (e Engine) insertJob(ctx context.Context, tx *sql.Tx, item domain.OrderItem, spec newJobSpec, actorID string) (domain.Job, error) {
	now := e.stamp()
	job := domain.Job{
		ID:           uuid.NewString(),
		ItemID:       item.ID,
		OrderID:      item.OrderID,
		TeamID:       spec.TeamID,
		Quantity:     spec.Quantity,
		PricePerUnit: spec.PricePerUnit,
		Status:       domain.JobPending,
		Source:       spec.Source,
		ParentJobID:  spec.ParentJobID,
		Instructions: spec.Instructions,
		Deadline:     spec.Deadline,
		CreatedBy:    actorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.Repo.InsertJob(ctx, tx, job); err != nil {
		return domain.Job{}, err
	}
	payload := events.EventPayload{
		"item_id":        item.ID,
		"team_id":        job.TeamID,
		"quantity":       job.Quantity,
		"price_per_unit": job.PricePerUnit.String(),
		"source":         string(job.Source),
	}
	if job.ParentJobID != nil {
		payload["parent_job_id"] = *job.ParentJobID
	}
	if err := e.emit(ctx, tx, "job.created", item.OrderID, "job", job.ID, actorID, payload); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

func (e Engine) setJobStatus(ctx context.Context, tx *sql.Tx, job *domain.Job, to domain.JobStatus, actorID string, payload events.EventPayload) error {
	from := job.Status
	if err := from.Transition(to); err != nil {
		return err
	}
	now := e.stamp()
	job.Status = to
	job.UpdatedAt = now
	switch to {
	case domain.JobCompleted:
		job.CompletedAt = &now
	case domain.JobCancelled:
		job.CancelledAt = &now
	}
	if err := e.Repo.UpdateJob(ctx, tx, *job); err != nil {
		return err
	}
	if payload == nil {
		payload = events.EventPayload{}
	}
	payload["from"] = string(from)
	payload["to"] = string(to)
	return e.emit(ctx, tx, "job.status", job.OrderID, "job", job.ID, actorID, payload)
}

func (e Engine) GetJob(ctx context.Context, id string) (domain.Job, error) {
	return e.Repo.GetJob(ctx, id)
}

func (e Engine) ListJobs(ctx context.Context, f repo.JobFilters) ([]domain.Job, error) {
	return e.Repo.ListJobs(ctx, f)
}

type EditJobOptions struct {
	JobID        string
	Quantity     *int
	PricePerUnit *decimal.Decimal
	Instructions *string
	Deadline     *string
	ActorID      string
}

// EditJob changes a job that nobody has started yet. Growing the quantity
// takes the difference from the item's free quantity.
func (e Engine) EditJob(ctx context.Context, opts EditJobOptions) (domain.Job, error) {
	if opts.Quantity != nil && *opts.Quantity <= 0 {
		return domain.Job{}, domain.Validation("quantity must be positive")
	}
	if opts.PricePerUnit != nil {
		if err := validPrice("price_per_unit", *opts.PricePerUnit); err != nil {
			return domain.Job{}, err
		}
	}
	if err := validDeadline(opts.Deadline); err != nil {
		return domain.Job{}, err
	}
	return withJob(ctx, e, "edit job", opts.JobID, func(tx *sql.Tx, job domain.Job, item domain.OrderItem) (domain.Job, error) {
		if job.Status != domain.JobPending {
			return domain.Job{}, domain.Invalid("job %s can only be edited while pending, it is %s", job.ID, job.Status)
		}
		changes := events.EventPayload{}
		if opts.Quantity != nil && *opts.Quantity != job.Quantity {
			if delta := *opts.Quantity - job.Quantity; delta > 0 {
				snap, err := e.snapshot(ctx, tx, item)
				if err != nil {
					return domain.Job{}, err
				}
				if err := snap.Reserve(delta); err != nil {
					return domain.Job{}, err
				}
			}
			changes["quantity"] = map[string]int{"from": job.Quantity, "to": *opts.Quantity}
			job.Quantity = *opts.Quantity
		}
		if opts.PricePerUnit != nil && !opts.PricePerUnit.Equal(job.PricePerUnit) {
			changes["price_per_unit"] = map[string]string{"from": job.PricePerUnit.String(), "to": opts.PricePerUnit.String()}
			job.PricePerUnit = *opts.PricePerUnit
		}
		if opts.Instructions != nil {
			changes["instructions"] = true
			job.Instructions = *opts.Instructions
		}
		if opts.Deadline != nil {
			changes["deadline"] = *opts.Deadline
			job.Deadline = opts.Deadline
			if *opts.Deadline == "" {
				job.Deadline = nil
			}
		}
		if len(changes) == 0 {
			return job, nil
		}
		job.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateJob(ctx, tx, job); err != nil {
			return domain.Job{}, err
		}
		return job, e.emit(ctx, tx, "job.edited", job.OrderID, "job", job.ID, opts.ActorID, changes)
	})
}

// DeleteJob removes a pending job with no claims, returning its quantity to
// the item. It is not a cancellation and leaves no settlement.
func (e Engine) DeleteJob(ctx context.Context, jobID, actorID string) error {
	_, err := withJob(ctx, e, "delete job", jobID, func(tx *sql.Tx, job domain.Job, item domain.OrderItem) (struct{}, error) {
		if job.Status != domain.JobPending {
			return struct{}{}, domain.Invalid("job %s can only be deleted while pending, it is %s", job.ID, job.Status)
		}
		if job.Source == domain.JobSourceOutsource {
			return struct{}{}, domain.Invalid("job %s came from an accepted bid; cancel it instead", job.ID)
		}
		claims, err := e.Repo.ListJobClaimsTx(ctx, tx, job.ID)
		if err != nil {
			return struct{}{}, err
		}
		if len(claims) > 0 {
			return struct{}{}, domain.Invalid("job %s has claims", job.ID)
		}
		if err := e.Repo.DeleteJob(ctx, tx, job.ID); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, e.emit(ctx, tx, "job.deleted", job.OrderID, "job", job.ID, actorID, events.EventPayload{
			"item_id":  item.ID,
			"quantity": job.Quantity,
		})
	})
	return err
}

// AdvanceToReview moves an in-progress job to review by hand, accepting
// whatever was submitted as a partial result.
func (e Engine) AdvanceToReview(ctx context.Context, jobID, actorID string) (domain.Job, error) {
	return withJob(ctx, e, "advance job", jobID, func(tx *sql.Tx, job domain.Job, item domain.OrderItem) (domain.Job, error) {
		claims, err := e.Repo.ListJobClaimsTx(ctx, tx, job.ID)
		if err != nil {
			return domain.Job{}, err
		}
		if err := e.setJobStatus(ctx, tx, &job, domain.JobPendingReview, actorID, events.EventPayload{
			"manual":    true,
			"submitted": ledger.Submitted(claims),
		}); err != nil {
			return domain.Job{}, err
		}
		if err := e.settleReview(ctx, tx, &job, claims, actorID); err != nil {
			return domain.Job{}, err
		}
		return job, nil
	})
}

// advanceIfSubmitted moves an in-progress job to review once submitted work
// covers its whole quantity.
func (e Engine) advanceIfSubmitted(ctx context.Context, tx *sql.Tx, job *domain.Job, claims []domain.Claim, actorID string) error {
	if job.Status != domain.JobInProgress || job.Quantity == 0 || ledger.Submitted(claims) != job.Quantity {
		return nil
	}
	return e.setJobStatus(ctx, tx, job, domain.JobPendingReview, actorID, events.EventPayload{"submitted": job.Quantity})
}

// settleReview completes a job in review once no claim is outstanding. A
// partial result shrinks the job to what was approved and releases the rest
// to the item.
func (e Engine) settleReview(ctx context.Context, tx *sql.Tx, job *domain.Job, claims []domain.Claim, actorID string) error {
	if job.Status != domain.JobPendingReview || ledger.Outstanding(claims) > 0 {
		return nil
	}
	approved := ledger.Approved(claims)
	released := job.Quantity - approved
	job.CompletedQuantity = approved
	job.Quantity = approved
	if err := e.setJobStatus(ctx, tx, job, domain.JobCompleted, actorID, events.EventPayload{
		"completed": approved,
		"released":  released,
	}); err != nil {
		return err
	}
	if _, err := e.syncCompleted(ctx, tx, job.ItemID, actorID, "job "+job.ID+" completed"); err != nil {
		return err
	}
	return e.refreshOrderStatus(ctx, tx, job.OrderID, actorID)
}

// PreviewCancellation returns what cancelling the job now would pay.
func (e Engine) PreviewCancellation(ctx context.Context, jobID string) (domain.Settlement, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Settlement{}, classify(err)
	}
	defer tx.Rollback()
	job, err := e.Repo.GetJobTx(ctx, tx, jobID)
	if err != nil {
		return domain.Settlement{}, err
	}
	if err := job.Status.Transition(domain.JobCancelled); err != nil {
		return domain.Settlement{}, err
	}
	claims, err := e.Repo.ListJobClaimsTx(ctx, tx, jobID)
	if err != nil {
		return domain.Settlement{}, err
	}
	return settlement.Calculate(job, claims), nil
}

type CancelJobOptions struct {
	JobID  string
	Reason string
	// ExpectedTotal is the previewed settlement. When set, the cancellation
	// fails if the amount changed since the preview.
	ExpectedTotal *decimal.Decimal
	ActorID       string
}

type CancelResult struct {
	Job        domain.Job        `json:"job"`
	Settlement domain.Settlement `json:"settlement"`
}

func (e Engine) CancelJob(ctx context.Context, opts CancelJobOptions) (CancelResult, error) {
	return withJob(ctx, e, "cancel job", opts.JobID, func(tx *sql.Tx, job domain.Job, item domain.OrderItem) (CancelResult, error) {
		job, s, err := e.cancelJobTx(ctx, tx, job, opts.Reason, opts.ExpectedTotal, opts.ActorID)
		if err != nil {
			return CancelResult{}, err
		}
		if err := e.refreshOrderStatus(ctx, tx, job.OrderID, opts.ActorID); err != nil {
			return CancelResult{}, err
		}
		return CancelResult{Job: job, Settlement: s}, nil
	})
}

// cancelJobTx cancels a job and records its settlement and payouts in tx.
// The settlement row is unique per job and payouts per (claim, source), so a
// replay pays nothing twice.
func (e Engine) cancelJobTx(ctx context.Context, tx *sql.Tx, job domain.Job, reason string, expected *decimal.Decimal, actorID string) (domain.Job, domain.Settlement, error) {
	if err := job.Status.Transition(domain.JobCancelled); err != nil {
		return domain.Job{}, domain.Settlement{}, err
	}
	claims, err := e.Repo.ListJobClaimsTx(ctx, tx, job.ID)
	if err != nil {
		return domain.Job{}, domain.Settlement{}, err
	}
	s := settlement.Calculate(job, claims)
	if expected != nil && !expected.Equal(s.Total) {
		return domain.Job{}, domain.Settlement{}, domain.Conflict("settlement for job %s is now %s, previewed %s", job.ID, s.Total.StringFixed(2), expected.StringFixed(2))
	}
	s.CreatedAt = e.stamp()
	inserted, err := e.Repo.InsertSettlement(ctx, tx, s)
	if err != nil {
		return domain.Job{}, domain.Settlement{}, err
	}
	if inserted {
		for _, line := range s.Lines {
			if _, err := e.Repo.InsertPayout(ctx, tx, domain.Payout{
				ID:        uuid.NewString(),
				WorkerID:  line.WorkerID,
				JobID:     job.ID,
				ClaimID:   line.ClaimID,
				Amount:    line.Amount,
				Source:    domain.PayoutSettlement,
				CreatedAt: s.CreatedAt,
			}); err != nil {
				return domain.Job{}, domain.Settlement{}, err
			}
		}
	}

	job.CancelReason = strings.TrimSpace(reason)
	if err := e.setJobStatus(ctx, tx, &job, domain.JobCancelled, actorID, events.EventPayload{
		"reason":           job.CancelReason,
		"settlement_total": s.Total.String(),
		"settled_claims":   len(s.Lines),
	}); err != nil {
		return domain.Job{}, domain.Settlement{}, err
	}
	if _, err := e.syncCompleted(ctx, tx, job.ItemID, actorID, "job "+job.ID+" cancelled"); err != nil {
		return domain.Job{}, domain.Settlement{}, err
	}
	return job, s, nil
}

func (e Engine) GetSettlement(ctx context.Context, jobID string) (domain.Settlement, error) {
	return e.Repo.GetSettlement(ctx, jobID)
}
