package domain

type OrderStatus string

const (
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

type JobStatus string

const (
	JobPending       JobStatus = "pending"
	JobInProgress    JobStatus = "in_progress"
	JobPendingReview JobStatus = "pending_review"
	JobCompleted     JobStatus = "completed"
	JobCancelled     JobStatus = "cancelled"
)

type ClaimStatus string

const (
	ClaimClaimed   ClaimStatus = "claimed"
	ClaimSubmitted ClaimStatus = "submitted"
	ClaimApproved  ClaimStatus = "approved"
	ClaimRejected  ClaimStatus = "rejected"
)

type PostStatus string

const (
	PostOpen      PostStatus = "open"
	PostAccepted  PostStatus = "accepted"
	PostCancelled PostStatus = "cancelled"
)

type BidStatus string

const (
	BidOpen     BidStatus = "open"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderProcessing: {OrderCompleted, OrderCancelled},
}

var jobTransitions = map[JobStatus][]JobStatus{
	JobPending:       {JobInProgress, JobCancelled},
	JobInProgress:    {JobPendingReview, JobCancelled},
	JobPendingReview: {JobCompleted, JobCancelled},
}

var claimTransitions = map[ClaimStatus][]ClaimStatus{
	ClaimClaimed:   {ClaimSubmitted},
	ClaimSubmitted: {ClaimApproved, ClaimRejected},
}

var postTransitions = map[PostStatus][]PostStatus{
	PostOpen: {PostAccepted, PostCancelled},
}

var bidTransitions = map[BidStatus][]BidStatus{
	BidOpen: {BidAccepted, BidRejected},
}

func transition[S ~string](entity string, table map[S][]S, from, to S) error {
	for _, next := range table[from] {
		if next == to {
			return nil
		}
	}
	return &TransitionError{Entity: entity, From: string(from), To: string(to)}
}

// Transition reports whether the order may move to the given status.
func (s OrderStatus) Transition(to OrderStatus) error {
	return transition("order", orderTransitions, s, to)
}

func (s OrderStatus) Terminal() bool { return len(orderTransitions[s]) == 0 }

// Transition is the only place job status legality is decided.
func (s JobStatus) Transition(to JobStatus) error {
	return transition("job", jobTransitions, s, to)
}

func (s JobStatus) Terminal() bool { return len(jobTransitions[s]) == 0 }

func (s ClaimStatus) Transition(to ClaimStatus) error {
	return transition("claim", claimTransitions, s, to)
}

// Outstanding claims still hold work that has not been reviewed.
func (s ClaimStatus) Outstanding() bool { return s == ClaimClaimed || s == ClaimSubmitted }

func (s PostStatus) Transition(to PostStatus) error {
	return transition("post", postTransitions, s, to)
}

func (s BidStatus) Transition(to BidStatus) error {
	return transition("bid", bidTransitions, s, to)
}
