package ledger

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfill/internal/domain"
)

func item(qty int) domain.OrderItem {
	return domain.OrderItem{ID: "item-1", Quantity: qty, ServiceMode: domain.ServiceModeHuman}
}

func TestAvailableToAssign(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		snap Snapshot
		want int
	}{
		{name: "empty", snap: Snapshot{Item: item(100)}, want: 100},
		{
			name: "cancelled jobs free their quantity",
			snap: Snapshot{Item: item(100), Jobs: []domain.Job{
				{Quantity: 60, Status: domain.JobInProgress},
				{Quantity: 30, Status: domain.JobCancelled},
			}},
			want: 40,
		},
		{
			name: "open posts hold quantity",
			snap: Snapshot{Item: item(100), Jobs: []domain.Job{{Quantity: 50, Status: domain.JobPending}},
				OpenPosts: []domain.OutsourcePost{{Quantity: 40, Status: domain.PostOpen}, {Quantity: 10, Status: domain.PostCancelled}}},
			want: 10,
		},
		{
			name: "never negative",
			snap: Snapshot{Item: item(10), Jobs: []domain.Job{{Quantity: 20, Status: domain.JobPending}}},
			want: 0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.snap.AvailableToAssign())
		})
	}
}

func TestReserveSplitOverCommit(t *testing.T) {
	t.Parallel()
	snap := Snapshot{Item: item(200), Jobs: []domain.Job{{Quantity: 150, Status: domain.JobPending}}}
	err := snap.Reserve(80)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientCapacity))
	var ce *domain.CapacityError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 50, ce.Available)
	assert.Equal(t, 80, ce.Requested)

	require.NoError(t, snap.Reserve(50))
}

func TestReserveRejectsNonPositive(t *testing.T) {
	t.Parallel()
	snap := Snapshot{Item: item(10)}
	assert.ErrorIs(t, snap.Reserve(0), domain.ErrValidation)
	assert.ErrorIs(t, snap.Reserve(-3), domain.ErrValidation)
}

func TestCompletedQuantityIgnoresCancelled(t *testing.T) {
	t.Parallel()
	snap := Snapshot{Item: item(100), Jobs: []domain.Job{
		{Quantity: 50, CompletedQuantity: 20, Status: domain.JobInProgress},
		{Quantity: 30, CompletedQuantity: 30, Status: domain.JobCompleted},
		{Quantity: 20, CompletedQuantity: 5, Status: domain.JobCancelled},
	}}
	assert.Equal(t, 50, snap.CompletedQuantity())
	require.NoError(t, snap.Check())
}

func TestClaimable(t *testing.T) {
	t.Parallel()
	job := domain.Job{ID: "job-1", Quantity: 100}
	claims := []domain.Claim{
		{Quantity: 40, Status: domain.ClaimClaimed},
		{Quantity: 30, ActualQuantity: 20, Status: domain.ClaimSubmitted},
		{Quantity: 10, ActualQuantity: 10, Status: domain.ClaimApproved},
		{Quantity: 25, ActualQuantity: 5, Status: domain.ClaimRejected},
	}
	assert.Equal(t, 70, Reserved(claims))
	assert.Equal(t, 30, Claimable(job, claims))
	assert.Equal(t, 30, Submitted(claims))
	assert.Equal(t, 10, Approved(claims))
	assert.Equal(t, 2, Outstanding(claims))

	require.NoError(t, ReserveClaim(job, claims, 30))
	err := ReserveClaim(job, claims, 31)
	assert.ErrorIs(t, err, domain.ErrInsufficientCapacity)
}

func TestLocksSerializePerKey(t *testing.T) {
	t.Parallel()
	locks := NewLocks()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("item-1")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locks.Len())
}
