package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobTransitions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		from, to JobStatus
		ok       bool
	}{
		{JobPending, JobInProgress, true},
		{JobPending, JobCancelled, true},
		{JobPending, JobCompleted, false},
		{JobInProgress, JobPendingReview, true},
		{JobInProgress, JobCancelled, true},
		{JobInProgress, JobPending, false},
		{JobPendingReview, JobCompleted, true},
		{JobPendingReview, JobCancelled, true},
		{JobCompleted, JobCancelled, false},
		{JobCancelled, JobPending, false},
	}
	for _, tc := range tests {
		err := tc.from.Transition(tc.to)
		if tc.ok {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
			continue
		}
		require.Error(t, err, "%s -> %s", tc.from, tc.to)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
		var te *TransitionError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, "job", te.Entity)
	}
	assert.True(t, JobCompleted.Terminal())
	assert.True(t, JobCancelled.Terminal())
	assert.False(t, JobPendingReview.Terminal())
}

func TestClaimTransitions(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ClaimClaimed.Transition(ClaimSubmitted))
	assert.NoError(t, ClaimSubmitted.Transition(ClaimApproved))
	assert.NoError(t, ClaimSubmitted.Transition(ClaimRejected))
	assert.ErrorIs(t, ClaimClaimed.Transition(ClaimApproved), ErrInvalidTransition)
	assert.ErrorIs(t, ClaimApproved.Transition(ClaimRejected), ErrInvalidTransition)
	assert.ErrorIs(t, ClaimRejected.Transition(ClaimClaimed), ErrInvalidTransition)
}

func TestPostAndBidTransitions(t *testing.T) {
	t.Parallel()
	assert.NoError(t, PostOpen.Transition(PostAccepted))
	assert.NoError(t, PostOpen.Transition(PostCancelled))
	assert.ErrorIs(t, PostAccepted.Transition(PostCancelled), ErrInvalidTransition)
	assert.NoError(t, BidOpen.Transition(BidRejected))
	assert.ErrorIs(t, BidRejected.Transition(BidAccepted), ErrInvalidTransition)
	assert.NoError(t, OrderProcessing.Transition(OrderCompleted))
	assert.True(t, OrderCompleted.Terminal())
}

func TestClaimReserved(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 40, Claim{Quantity: 40, ActualQuantity: 10, Status: ClaimClaimed}.Reserved())
	assert.Equal(t, 10, Claim{Quantity: 40, ActualQuantity: 10, Status: ClaimSubmitted}.Reserved())
	assert.Equal(t, 0, Claim{Quantity: 40, ActualQuantity: 10, Status: ClaimRejected}.Reserved())
}
