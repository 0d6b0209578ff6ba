package server

import (
	"crowdfill/internal/credibility"
	"crowdfill/internal/domain"
)

// Request payloads. Money travels as decimal strings.

type ImportItemRequest struct {
	ID          string `json:"id,omitempty"`
	Service     string `json:"service"`
	Target      string `json:"target,omitempty"`
	ServiceMode string `json:"service_mode" enum:"bot,human"`
	Quantity    int    `json:"quantity" minimum:"1"`
	UnitPrice   string `json:"unit_price" example:"1.20"`
	CostPerUnit string `json:"cost_per_unit" example:"0.50"`
}

type ImportOrderRequest struct {
	ID       string              `json:"id,omitempty"`
	SellerID string              `json:"seller_id"`
	Items    []ImportItemRequest `json:"items"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type AssignRequest struct {
	TeamID       string  `json:"team_id"`
	PricePerUnit string  `json:"price_per_unit,omitempty" example:"0.50"`
	Instructions string  `json:"instructions,omitempty"`
	Deadline     *string `json:"deadline,omitempty" format:"date-time"`
}

type SplitPartRequest struct {
	TeamID       string `json:"team_id"`
	Quantity     int    `json:"quantity" minimum:"1"`
	PricePerUnit string `json:"price_per_unit,omitempty"`
}

type SplitRequest struct {
	Parts        []SplitPartRequest `json:"parts"`
	Instructions string             `json:"instructions,omitempty"`
	Deadline     *string            `json:"deadline,omitempty" format:"date-time"`
}

type EditJobRequest struct {
	Quantity     *int    `json:"quantity,omitempty"`
	PricePerUnit *string `json:"price_per_unit,omitempty"`
	Instructions *string `json:"instructions,omitempty"`
	Deadline     *string `json:"deadline,omitempty" format:"date-time"`
}

type CancelJobRequest struct {
	Reason string `json:"reason"`
	// ExpectedTotal is the total the caller saw in the preview.
	ExpectedTotal *string `json:"expected_total,omitempty"`
}

type ReassignRequest struct {
	TeamID       string  `json:"team_id"`
	PricePerUnit *string `json:"price_per_unit,omitempty"`
	Reason       string  `json:"reason"`
}

type CreateClaimRequest struct {
	WorkerID string `json:"worker_id,omitempty"`
	Quantity int    `json:"quantity" minimum:"1"`
}

type ProgressRequest struct {
	ActualQuantity int `json:"actual_quantity" minimum:"0"`
}

type SubmitClaimRequest struct {
	ActualQuantity *int `json:"actual_quantity,omitempty"`
}

type CreatePostRequest struct {
	Quantity              int     `json:"quantity" minimum:"1"`
	SuggestedPricePerUnit string  `json:"suggested_price_per_unit" example:"0.20"`
	Deadline              *string `json:"deadline,omitempty" format:"date-time"`
}

type PlaceBidRequest struct {
	TeamID       string `json:"team_id,omitempty"`
	PricePerUnit string `json:"price_per_unit" example:"0.18"`
	Note         string `json:"note,omitempty"`
}

type ReportStatsRequest struct {
	TotalReports      int     `json:"total_reports"`
	ConfirmedReports  int     `json:"confirmed_reports"`
	DismissedReports  int     `json:"dismissed_reports"`
	FalseReports      int     `json:"false_reports"`
	CanReport         *bool   `json:"can_report,omitempty"`
	ReportBannedUntil *string `json:"report_banned_until,omitempty" format:"date-time"`
}

type PrioritizeRequest struct {
	Reports []credibility.Report `json:"reports"`
}

// Response payloads

type paginatedOrders struct {
	Items      []domain.Order `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedJobs struct {
	Items      []domain.Job `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type paginatedClaims struct {
	Items      []domain.Claim `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedPosts struct {
	Items      []domain.OutsourcePost `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type dispatchFailures struct {
	Items []domain.DispatchFailure `json:"items"`
}

type rankedReports struct {
	Items []credibility.RankedReport `json:"items"`
}
