// Package settlement computes what a job owes its workers when it is cancelled.
// Everything here is a pure function of the job and its claims.
package settlement

import (
	"sort"

	"github.com/shopspring/decimal"

	"crowdfill/internal/domain"
)

// Earn is the pay for qty units at price.
func Earn(price decimal.Decimal, qty int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(qty)))
}

// Calculate returns the settlement for cancelling job in its current status.
// Approved claims were paid on approval and rejected ones earn nothing, so only
// claims with reported but unpaid work produce lines.
func Calculate(job domain.Job, claims []domain.Claim) domain.Settlement {
	s := domain.Settlement{
		JobID:          job.ID,
		StatusAtCancel: job.Status,
		PricePerUnit:   job.PricePerUnit,
		Total:          decimal.Zero,
		Lines:          []domain.SettlementLine{},
	}
	if job.Status != domain.JobInProgress && job.Status != domain.JobPendingReview {
		return s
	}
	for _, c := range claims {
		line, ok := owed(job, c)
		if !ok {
			continue
		}
		s.Lines = append(s.Lines, line)
	}
	sort.Slice(s.Lines, func(i, j int) bool { return s.Lines[i].ClaimID < s.Lines[j].ClaimID })
	for _, l := range s.Lines {
		s.Total = s.Total.Add(l.Amount)
	}
	return s
}

func owed(job domain.Job, c domain.Claim) (domain.SettlementLine, bool) {
	if c.JobID != "" && c.JobID != job.ID {
		return domain.SettlementLine{}, false
	}
	qty := c.ActualQuantity
	if qty > c.Quantity {
		qty = c.Quantity
	}
	if qty <= 0 {
		return domain.SettlementLine{}, false
	}
	var amount decimal.Decimal
	switch c.Status {
	case domain.ClaimClaimed:
		amount = Earn(job.PricePerUnit, qty)
	case domain.ClaimSubmitted:
		amount = c.EarnAmount
		if amount.IsZero() {
			amount = Earn(job.PricePerUnit, qty)
		}
	default:
		return domain.SettlementLine{}, false
	}
	return domain.SettlementLine{
		ClaimID:     c.ID,
		WorkerID:    c.WorkerID,
		ClaimStatus: c.Status,
		Quantity:    qty,
		Amount:      amount,
	}, true
}
