package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"crowdfill/internal/domain"
	"crowdfill/internal/repo"
)

// PayoutStatement is a worker's payable rows and their sum.
type PayoutStatement struct {
	WorkerID string          `json:"worker_id,omitempty"`
	JobID    string          `json:"job_id,omitempty"`
	Total    decimal.Decimal `json:"total"`
	Payouts  []domain.Payout `json:"payouts"`
}

func (e Engine) Payouts(ctx context.Context, f repo.PayoutFilters) (PayoutStatement, error) {
	payouts, err := e.Repo.ListPayouts(ctx, f)
	if err != nil {
		return PayoutStatement{}, err
	}
	total, err := e.Repo.PayoutTotal(ctx, f)
	if err != nil {
		return PayoutStatement{}, err
	}
	if payouts == nil {
		payouts = []domain.Payout{}
	}
	return PayoutStatement{WorkerID: f.WorkerID, JobID: f.JobID, Total: total, Payouts: payouts}, nil
}

func (e Engine) ListEvents(ctx context.Context, limit int, cursor int64, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, limit, cursor, f)
}
