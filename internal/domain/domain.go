package domain

import "github.com/shopspring/decimal"

type ServiceMode string

const (
	ServiceModeBot   ServiceMode = "bot"
	ServiceModeHuman ServiceMode = "human"
)

type DispatchStatus string

const (
	DispatchNone       DispatchStatus = ""
	DispatchPending    DispatchStatus = "pending"
	DispatchDispatched DispatchStatus = "dispatched"
	DispatchFailed     DispatchStatus = "failed"
)

type JobSource string

const (
	JobSourceDirect    JobSource = "direct"
	JobSourceSplit     JobSource = "split"
	JobSourceReassign  JobSource = "reassign"
	JobSourceOutsource JobSource = "outsource"
)

type Order struct {
	ID        string      `json:"id"`
	SellerID  string      `json:"seller_id"`
	Status    OrderStatus `json:"status" enum:"processing,completed,cancelled"`
	CreatedAt string      `json:"created_at" format:"date-time"`
	UpdatedAt string      `json:"updated_at" format:"date-time"`
	Items     []OrderItem `json:"items,omitempty"`
}

// OrderItem is one paid order line. Only CompletedQuantity, DispatchStatus and
// Version change after import.
type OrderItem struct {
	ID                string          `json:"id"`
	OrderID           string          `json:"order_id"`
	Service           string          `json:"service"`
	Target            string          `json:"target,omitempty"`
	ServiceMode       ServiceMode     `json:"service_mode" enum:"bot,human"`
	Quantity          int             `json:"quantity"`
	CompletedQuantity int             `json:"completed_quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	CostPerUnit       decimal.Decimal `json:"cost_per_unit"`
	DispatchStatus    DispatchStatus  `json:"dispatch_status,omitempty"`
	Version           int64           `json:"version"`
	CreatedAt         string          `json:"created_at" format:"date-time"`
	UpdatedAt         string          `json:"updated_at" format:"date-time"`
}

type Job struct {
	ID                string          `json:"id"`
	ItemID            string          `json:"item_id"`
	OrderID           string          `json:"order_id"`
	TeamID            string          `json:"team_id"`
	Quantity          int             `json:"quantity"`
	CompletedQuantity int             `json:"completed_quantity"`
	PricePerUnit      decimal.Decimal `json:"price_per_unit"`
	Status            JobStatus       `json:"status" enum:"pending,in_progress,pending_review,completed,cancelled"`
	Source            JobSource       `json:"source"`
	ParentJobID       *string         `json:"parent_job_id,omitempty"`
	Instructions      string          `json:"instructions,omitempty"`
	Deadline          *string         `json:"deadline,omitempty" format:"date-time"`
	CreatedBy         string          `json:"created_by"`
	CreatedAt         string          `json:"created_at" format:"date-time"`
	UpdatedAt         string          `json:"updated_at" format:"date-time"`
	CompletedAt       *string         `json:"completed_at,omitempty" format:"date-time"`
	CancelledAt       *string         `json:"cancelled_at,omitempty" format:"date-time"`
	CancelReason      string          `json:"cancel_reason,omitempty"`
}

func (j Job) TotalPayout() decimal.Decimal {
	return j.PricePerUnit.Mul(decimal.NewFromInt(int64(j.Quantity)))
}

type Claim struct {
	ID             string          `json:"id"`
	JobID          string          `json:"job_id"`
	ItemID         string          `json:"item_id"`
	WorkerID       string          `json:"worker_id"`
	Quantity       int             `json:"quantity"`
	ActualQuantity int             `json:"actual_quantity"`
	EarnAmount     decimal.Decimal `json:"earn_amount"`
	Status         ClaimStatus     `json:"status" enum:"claimed,submitted,approved,rejected"`
	RejectReason   string          `json:"reject_reason,omitempty"`
	CreatedAt      string          `json:"created_at" format:"date-time"`
	UpdatedAt      string          `json:"updated_at" format:"date-time"`
	SubmittedAt    *string         `json:"submitted_at,omitempty" format:"date-time"`
	ResolvedAt     *string         `json:"resolved_at,omitempty" format:"date-time"`
}

// Reserved is the quantity the claim holds against its job.
func (c Claim) Reserved() int {
	switch c.Status {
	case ClaimClaimed:
		return c.Quantity
	case ClaimSubmitted, ClaimApproved:
		return c.ActualQuantity
	default:
		return 0
	}
}

type OutsourcePost struct {
	ID                    string          `json:"id"`
	ItemID                string          `json:"item_id"`
	OrderID               string          `json:"order_id"`
	Quantity              int             `json:"quantity"`
	SuggestedPricePerUnit decimal.Decimal `json:"suggested_price_per_unit"`
	Deadline              *string         `json:"deadline,omitempty" format:"date-time"`
	Status                PostStatus      `json:"status" enum:"open,accepted,cancelled"`
	AcceptedBidID         *string         `json:"accepted_bid_id,omitempty"`
	JobID                 *string         `json:"job_id,omitempty"`
	PostedBy              string          `json:"posted_by"`
	CreatedAt             string          `json:"created_at" format:"date-time"`
	UpdatedAt             string          `json:"updated_at" format:"date-time"`
	Bids                  []Bid           `json:"bids,omitempty"`
}

type Bid struct {
	ID           string          `json:"id"`
	PostID       string          `json:"post_id"`
	TeamID       string          `json:"team_id"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Note         string          `json:"note,omitempty"`
	Status       BidStatus       `json:"status" enum:"open,accepted,rejected"`
	CreatedAt    string          `json:"created_at" format:"date-time"`
	UpdatedAt    string          `json:"updated_at" format:"date-time"`
}

type SettlementLine struct {
	ClaimID     string          `json:"claim_id"`
	WorkerID    string          `json:"worker_id"`
	ClaimStatus ClaimStatus     `json:"claim_status"`
	Quantity    int             `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
}

// Settlement is what a cancelled job still owes its workers.
type Settlement struct {
	JobID          string           `json:"job_id"`
	StatusAtCancel JobStatus        `json:"status_at_cancel"`
	PricePerUnit   decimal.Decimal  `json:"price_per_unit"`
	Total          decimal.Decimal  `json:"total"`
	Lines          []SettlementLine `json:"lines"`
	CreatedAt      string           `json:"created_at,omitempty" format:"date-time"`
}

type PayoutSource string

const (
	PayoutApproval   PayoutSource = "approval"
	PayoutSettlement PayoutSource = "settlement"
)

type Payout struct {
	ID        string          `json:"id"`
	WorkerID  string          `json:"worker_id"`
	JobID     string          `json:"job_id"`
	ClaimID   string          `json:"claim_id"`
	Amount    decimal.Decimal `json:"amount"`
	Source    PayoutSource    `json:"source" enum:"approval,settlement"`
	CreatedAt string          `json:"created_at" format:"date-time"`
}

type WorkerReportStats struct {
	WorkerID          string  `json:"worker_id"`
	TotalReports      int     `json:"total_reports"`
	ConfirmedReports  int     `json:"confirmed_reports"`
	DismissedReports  int     `json:"dismissed_reports"`
	FalseReports      int     `json:"false_reports"`
	CanReport         bool    `json:"can_report"`
	ReportBannedUntil *string `json:"report_banned_until,omitempty" format:"date-time"`
	UpdatedAt         string  `json:"updated_at" format:"date-time"`
}

type DispatchFailure struct {
	ID         string  `json:"id"`
	ItemID     string  `json:"item_id"`
	OrderID    string  `json:"order_id"`
	Error      string  `json:"error"`
	Attempts   int     `json:"attempts"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	ResolvedAt *string `json:"resolved_at,omitempty" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrderID    string `json:"order_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
