// Package ledger holds the quantity accounting for one order item: how much was
// ordered, how much is held by jobs and open posts, and how much is done.
package ledger

import (
	"crowdfill/internal/domain"
)

// Snapshot is the state of one item read inside the transaction that mutates it.
type Snapshot struct {
	Item      domain.OrderItem
	Jobs      []domain.Job
	OpenPosts []domain.OutsourcePost
}

// Assigned sums the quantity of every job that is not cancelled.
func (s Snapshot) Assigned() int {
	total := 0
	for _, j := range s.Jobs {
		if j.Status != domain.JobCancelled {
			total += j.Quantity
		}
	}
	return total
}

func (s Snapshot) Posted() int {
	total := 0
	for _, p := range s.OpenPosts {
		if p.Status == domain.PostOpen {
			total += p.Quantity
		}
	}
	return total
}

// AvailableToAssign is the quantity no job or open post holds yet.
func (s Snapshot) AvailableToAssign() int {
	free := s.Item.Quantity - s.Assigned() - s.Posted()
	if free < 0 {
		return 0
	}
	return free
}

// CompletedQuantity derives the item's completed count from its live jobs.
func (s Snapshot) CompletedQuantity() int {
	total := 0
	for _, j := range s.Jobs {
		if j.Status != domain.JobCancelled {
			total += j.CompletedQuantity
		}
	}
	return total
}

// Reserve checks that requested units can be taken from the item.
func (s Snapshot) Reserve(requested int) error {
	if requested <= 0 {
		return domain.Validation("quantity must be positive, got %d", requested)
	}
	if avail := s.AvailableToAssign(); requested > avail {
		return &domain.CapacityError{Scope: "item", ID: s.Item.ID, Requested: requested, Available: avail}
	}
	return nil
}

// Check verifies the item never holds more than was ordered.
func (s Snapshot) Check() error {
	held := s.Assigned() + s.Posted()
	if held > s.Item.Quantity {
		return &domain.CapacityError{Scope: "item", ID: s.Item.ID, Requested: held, Available: s.Item.Quantity}
	}
	return nil
}

func AvailableToComplete(job domain.Job) int {
	return job.Quantity - job.CompletedQuantity
}

// Reserved sums what the claims of one job hold against it.
func Reserved(claims []domain.Claim) int {
	total := 0
	for _, c := range claims {
		total += c.Reserved()
	}
	return total
}

// Claimable is the part of a job that workers can still reserve.
func Claimable(job domain.Job, claims []domain.Claim) int {
	free := job.Quantity - Reserved(claims)
	if free < 0 {
		return 0
	}
	return free
}

func ReserveClaim(job domain.Job, claims []domain.Claim, requested int) error {
	if requested <= 0 {
		return domain.Validation("claim quantity must be positive, got %d", requested)
	}
	if avail := Claimable(job, claims); requested > avail {
		return &domain.CapacityError{Scope: "job", ID: job.ID, Requested: requested, Available: avail}
	}
	return nil
}

// Submitted sums actual quantity reported by submitted and approved claims.
func Submitted(claims []domain.Claim) int {
	total := 0
	for _, c := range claims {
		if c.Status == domain.ClaimSubmitted || c.Status == domain.ClaimApproved {
			total += c.ActualQuantity
		}
	}
	return total
}

func Approved(claims []domain.Claim) int {
	total := 0
	for _, c := range claims {
		if c.Status == domain.ClaimApproved {
			total += c.ActualQuantity
		}
	}
	return total
}

func Outstanding(claims []domain.Claim) int {
	n := 0
	for _, c := range claims {
		if c.Status.Outstanding() {
			n++
		}
	}
	return n
}
