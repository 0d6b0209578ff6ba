package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfill/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		job    domain.Job
		claims []domain.Claim
		want   string
		lines  int
	}{
		{
			name:   "pending job owes nothing",
			job:    domain.Job{ID: "j", Quantity: 100, PricePerUnit: dec("0.5"), Status: domain.JobPending},
			claims: nil,
			want:   "0",
		},
		{
			name: "in progress pays logged progress only",
			job:  domain.Job{ID: "j", Quantity: 100, PricePerUnit: dec("0.5"), Status: domain.JobInProgress},
			claims: []domain.Claim{
				{ID: "c1", WorkerID: "w1", Quantity: 60, ActualQuantity: 30, Status: domain.ClaimClaimed},
				{ID: "c2", WorkerID: "w2", Quantity: 40, Status: domain.ClaimClaimed},
			},
			want:  "15",
			lines: 1,
		},
		{
			name: "pending review pays submitted earnings in full",
			job:  domain.Job{ID: "j", Quantity: 50, PricePerUnit: dec("1.0"), Status: domain.JobPendingReview},
			claims: []domain.Claim{
				{ID: "c1", WorkerID: "w1", Quantity: 50, ActualQuantity: 50, EarnAmount: dec("50"), Status: domain.ClaimSubmitted},
			},
			want:  "50",
			lines: 1,
		},
		{
			name: "in progress also pays submitted earnings",
			job:  domain.Job{ID: "j", Quantity: 100, PricePerUnit: dec("0.5"), Status: domain.JobInProgress},
			claims: []domain.Claim{
				{ID: "c1", WorkerID: "w1", Quantity: 40, ActualQuantity: 40, EarnAmount: dec("20"), Status: domain.ClaimSubmitted},
				{ID: "c2", WorkerID: "w2", Quantity: 30, ActualQuantity: 10, Status: domain.ClaimClaimed},
			},
			want:  "25",
			lines: 2,
		},
		{
			name: "pending review also pays logged progress of open claims",
			job:  domain.Job{ID: "j", Quantity: 60, PricePerUnit: dec("1.0"), Status: domain.JobPendingReview},
			claims: []domain.Claim{
				{ID: "c1", WorkerID: "w1", Quantity: 50, ActualQuantity: 50, EarnAmount: dec("50"), Status: domain.ClaimSubmitted},
				{ID: "c2", WorkerID: "w2", Quantity: 10, ActualQuantity: 4, Status: domain.ClaimClaimed},
			},
			want:  "54",
			lines: 2,
		},
		{
			name: "approved and rejected claims are excluded",
			job:  domain.Job{ID: "j", Quantity: 100, PricePerUnit: dec("0.2"), Status: domain.JobInProgress},
			claims: []domain.Claim{
				{ID: "c1", WorkerID: "w1", Quantity: 20, ActualQuantity: 20, EarnAmount: dec("4"), Status: domain.ClaimApproved},
				{ID: "c2", WorkerID: "w2", Quantity: 20, ActualQuantity: 10, Status: domain.ClaimRejected},
				{ID: "c3", WorkerID: "w3", Quantity: 20, ActualQuantity: 15, EarnAmount: dec("3"), Status: domain.ClaimSubmitted},
			},
			want:  "3",
			lines: 1,
		},
		{
			name:   "terminal jobs owe nothing",
			job:    domain.Job{ID: "j", Quantity: 10, PricePerUnit: dec("1"), Status: domain.JobCompleted},
			claims: []domain.Claim{{ID: "c1", Quantity: 10, ActualQuantity: 10, Status: domain.ClaimSubmitted}},
			want:   "0",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Calculate(tc.job, tc.claims)
			assert.True(t, dec(tc.want).Equal(got.Total), "total %s, want %s", got.Total, tc.want)
			assert.Len(t, got.Lines, tc.lines)
			assert.Equal(t, tc.job.Status, got.StatusAtCancel)
		})
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	t.Parallel()
	job := domain.Job{ID: "j", Quantity: 100, PricePerUnit: dec("0.35"), Status: domain.JobInProgress}
	claims := []domain.Claim{
		{ID: "b", WorkerID: "w2", Quantity: 30, ActualQuantity: 7, Status: domain.ClaimClaimed},
		{ID: "a", WorkerID: "w1", Quantity: 30, ActualQuantity: 30, EarnAmount: dec("10.5"), Status: domain.ClaimSubmitted},
	}
	first := Calculate(job, claims)
	reversed := []domain.Claim{claims[1], claims[0]}
	second := Calculate(job, reversed)
	require.Equal(t, first.Lines, second.Lines)
	assert.True(t, first.Total.Equal(second.Total))
	assert.Equal(t, "12.95", first.Total.StringFixed(2))
	assert.Equal(t, "a", first.Lines[0].ClaimID)
}

func TestEarn(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "15.00", Earn(dec("0.5"), 30).StringFixed(2))
	assert.Equal(t, "7.20", Earn(dec("0.18"), 40).StringFixed(2))
}
