package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"crowdfill/internal/domain"
	"crowdfill/internal/events"
	"crowdfill/internal/ledger"
	"crowdfill/internal/repo"
	"crowdfill/internal/settlement"
)

type CreateClaimOptions struct {
	JobID    string
	WorkerID string
	Quantity int
	ActorID  string
}

// CreateClaim reserves part of a job for one worker. The first claim starts
// the job.
func (e Engine) CreateClaim(ctx context.Context, opts CreateClaimOptions) (domain.Claim, error) {
	if strings.TrimSpace(opts.WorkerID) == "" {
		return domain.Claim{}, domain.Validation("worker_id is required")
	}
	if opts.Quantity <= 0 {
		return domain.Claim{}, domain.Validation("quantity must be positive")
	}
	return withJob(ctx, e, "create claim", opts.JobID, func(tx *sql.Tx, job domain.Job, item domain.OrderItem) (domain.Claim, error) {
		if job.Status != domain.JobPending && job.Status != domain.JobInProgress {
			return domain.Claim{}, domain.Invalid("job %s is %s and takes no new claims", job.ID, job.Status)
		}
		claims, err := e.Repo.ListJobClaimsTx(ctx, tx, job.ID)
		if err != nil {
			return domain.Claim{}, err
		}
		if err := ledger.ReserveClaim(job, claims, opts.Quantity); err != nil {
			return domain.Claim{}, err
		}
		if job.Status == domain.JobPending {
			if err := e.setJobStatus(ctx, tx, &job, domain.JobInProgress, opts.ActorID, nil); err != nil {
				return domain.Claim{}, err
			}
		}
		now := e.stamp()
		c := domain.Claim{
			ID:        uuid.NewString(),
			JobID:     job.ID,
			ItemID:    item.ID,
			WorkerID:  opts.WorkerID,
			Quantity:  opts.Quantity,
			Status:    domain.ClaimClaimed,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.Repo.InsertClaim(ctx, tx, c); err != nil {
			return domain.Claim{}, err
		}
		return c, e.emit(ctx, tx, "claim.created", job.OrderID, "claim", c.ID, opts.ActorID, events.EventPayload{
			"job_id":    job.ID,
			"worker_id": c.WorkerID,
			"quantity":  c.Quantity,
		})
	})
}

// withClaim is withJob for operations addressed by claim id.
func withClaim[T any](ctx context.Context, e Engine, op, claimID string, fn func(tx *sql.Tx, c domain.Claim, job domain.Job) (T, error)) (T, error) {
	var zero T
	pre, err := e.Repo.GetClaim(ctx, claimID)
	if err != nil {
		return zero, err
	}
	return withJob(ctx, e, op, pre.JobID, func(tx *sql.Tx, job domain.Job, _ domain.OrderItem) (T, error) {
		c, err := e.Repo.GetClaimTx(ctx, tx, claimID)
		if err != nil {
			return zero, err
		}
		if job.Status.Terminal() {
			return zero, domain.Invalid("job %s is %s", job.ID, job.Status)
		}
		return fn(tx, c, job)
	})
}

func checkActual(c domain.Claim, actual int) error {
	if actual < 0 || actual > c.Quantity {
		return domain.Validation("actual quantity must be between 0 and %d, got %d", c.Quantity, actual)
	}
	return nil
}

type ProgressOptions struct {
	ClaimID        string
	ActualQuantity int
	ActorID        string
}

// ReportProgress logs how much of a claimed reservation is done so far.
func (e Engine) ReportProgress(ctx context.Context, opts ProgressOptions) (domain.Claim, error) {
	return withClaim(ctx, e, "report progress", opts.ClaimID, func(tx *sql.Tx, c domain.Claim, job domain.Job) (domain.Claim, error) {
		if c.Status != domain.ClaimClaimed {
			return domain.Claim{}, domain.Invalid("claim %s is %s; progress is only logged while claimed", c.ID, c.Status)
		}
		if err := checkActual(c, opts.ActualQuantity); err != nil {
			return domain.Claim{}, err
		}
		from := c.ActualQuantity
		c.ActualQuantity = opts.ActualQuantity
		c.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateClaim(ctx, tx, c); err != nil {
			return domain.Claim{}, err
		}
		return c, e.emit(ctx, tx, "claim.progress", job.OrderID, "claim", c.ID, opts.ActorID, events.EventPayload{
			"from": from,
			"to":   c.ActualQuantity,
		})
	})
}

type SubmitClaimOptions struct {
	ClaimID string
	// ActualQuantity defaults to the logged progress.
	ActualQuantity *int
	ActorID        string
}

func (e Engine) SubmitClaim(ctx context.Context, opts SubmitClaimOptions) (domain.Claim, error) {
	return withClaim(ctx, e, "submit claim", opts.ClaimID, func(tx *sql.Tx, c domain.Claim, job domain.Job) (domain.Claim, error) {
		if err := c.Status.Transition(domain.ClaimSubmitted); err != nil {
			return domain.Claim{}, err
		}
		actual := c.ActualQuantity
		if opts.ActualQuantity != nil {
			actual = *opts.ActualQuantity
		}
		if err := checkActual(c, actual); err != nil {
			return domain.Claim{}, err
		}
		now := e.stamp()
		c.Status = domain.ClaimSubmitted
		c.ActualQuantity = actual
		c.EarnAmount = settlement.Earn(job.PricePerUnit, actual)
		c.SubmittedAt = &now
		c.UpdatedAt = now
		if err := e.Repo.UpdateClaim(ctx, tx, c); err != nil {
			return domain.Claim{}, err
		}
		if err := e.emit(ctx, tx, "claim.submitted", job.OrderID, "claim", c.ID, opts.ActorID, events.EventPayload{
			"actual_quantity": actual,
			"earn_amount":     c.EarnAmount.String(),
		}); err != nil {
			return domain.Claim{}, err
		}
		claims, err := e.Repo.ListJobClaimsTx(ctx, tx, job.ID)
		if err != nil {
			return domain.Claim{}, err
		}
		return c, e.advanceIfSubmitted(ctx, tx, &job, claims, opts.ActorID)
	})
}

type ReviewClaimOptions struct {
	ClaimID string
	Reason  string
	ActorID string
}

// ApproveClaim makes submitted work final: it counts toward the job and item
// and becomes a payable payout in the same transaction.
func (e Engine) ApproveClaim(ctx context.Context, opts ReviewClaimOptions) (domain.Claim, error) {
	return withClaim(ctx, e, "approve claim", opts.ClaimID, func(tx *sql.Tx, c domain.Claim, job domain.Job) (domain.Claim, error) {
		if err := c.Status.Transition(domain.ClaimApproved); err != nil {
			return domain.Claim{}, err
		}
		now := e.stamp()
		c.Status = domain.ClaimApproved
		c.EarnAmount = settlement.Earn(job.PricePerUnit, c.ActualQuantity)
		c.ResolvedAt = &now
		c.UpdatedAt = now
		if err := e.Repo.UpdateClaim(ctx, tx, c); err != nil {
			return domain.Claim{}, err
		}
		if c.ActualQuantity > ledger.AvailableToComplete(job) {
			return domain.Claim{}, &domain.CapacityError{Scope: "job", ID: job.ID, Requested: c.ActualQuantity, Available: ledger.AvailableToComplete(job)}
		}
		job.CompletedQuantity += c.ActualQuantity
		job.UpdatedAt = now
		if err := e.Repo.UpdateJob(ctx, tx, job); err != nil {
			return domain.Claim{}, err
		}
		if c.EarnAmount.IsPositive() {
			if _, err := e.Repo.InsertPayout(ctx, tx, domain.Payout{
				ID:        uuid.NewString(),
				WorkerID:  c.WorkerID,
				JobID:     job.ID,
				ClaimID:   c.ID,
				Amount:    c.EarnAmount,
				Source:    domain.PayoutApproval,
				CreatedAt: now,
			}); err != nil {
				return domain.Claim{}, err
			}
		}
		if err := e.emit(ctx, tx, "claim.approved", job.OrderID, "claim", c.ID, opts.ActorID, events.EventPayload{
			"actual_quantity": c.ActualQuantity,
			"earn_amount":     c.EarnAmount.String(),
		}); err != nil {
			return domain.Claim{}, err
		}
		if _, err := e.syncCompleted(ctx, tx, job.ItemID, opts.ActorID, "claim "+c.ID+" approved"); err != nil {
			return domain.Claim{}, err
		}
		return c, e.afterReview(ctx, tx, job, opts.ActorID)
	})
}

// RejectClaim pays nothing; the claim stops holding quantity, so the job can
// be claimed again.
func (e Engine) RejectClaim(ctx context.Context, opts ReviewClaimOptions) (domain.Claim, error) {
	if strings.TrimSpace(opts.Reason) == "" {
		return domain.Claim{}, domain.Validation("reason is required")
	}
	return withClaim(ctx, e, "reject claim", opts.ClaimID, func(tx *sql.Tx, c domain.Claim, job domain.Job) (domain.Claim, error) {
		if err := c.Status.Transition(domain.ClaimRejected); err != nil {
			return domain.Claim{}, err
		}
		now := e.stamp()
		c.Status = domain.ClaimRejected
		c.RejectReason = opts.Reason
		c.ResolvedAt = &now
		c.UpdatedAt = now
		if err := e.Repo.UpdateClaim(ctx, tx, c); err != nil {
			return domain.Claim{}, err
		}
		if err := e.emit(ctx, tx, "claim.rejected", job.OrderID, "claim", c.ID, opts.ActorID, events.EventPayload{
			"reason":   opts.Reason,
			"released": c.ActualQuantity,
		}); err != nil {
			return domain.Claim{}, err
		}
		return c, e.afterReview(ctx, tx, job, opts.ActorID)
	})
}

func (e Engine) afterReview(ctx context.Context, tx *sql.Tx, job domain.Job, actorID string) error {
	claims, err := e.Repo.ListJobClaimsTx(ctx, tx, job.ID)
	if err != nil {
		return err
	}
	return e.settleReview(ctx, tx, &job, claims, actorID)
}

func (e Engine) GetClaim(ctx context.Context, id string) (domain.Claim, error) {
	return e.Repo.GetClaim(ctx, id)
}

func (e Engine) ListClaims(ctx context.Context, f repo.ClaimFilters) ([]domain.Claim, error) {
	return e.Repo.ListClaims(ctx, f)
}
