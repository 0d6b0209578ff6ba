package crowdfillsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client is a minimal Crowdfill HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client for baseURL, which includes the API base path
// (for example http://127.0.0.1:8080/v1).
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

type OrderItem struct {
	ID                string          `json:"id"`
	OrderID           string          `json:"order_id"`
	Service           string          `json:"service"`
	Target            string          `json:"target,omitempty"`
	ServiceMode       string          `json:"service_mode"`
	Quantity          int             `json:"quantity"`
	CompletedQuantity int             `json:"completed_quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	CostPerUnit       decimal.Decimal `json:"cost_per_unit"`
	DispatchStatus    string          `json:"dispatch_status,omitempty"`
}

type Order struct {
	ID       string      `json:"id"`
	SellerID string      `json:"seller_id"`
	Status   string      `json:"status"`
	Items    []OrderItem `json:"items,omitempty"`
}

// NewItem is one line of an order import. Money is sent as strings.
type NewItem struct {
	ID          string `json:"id,omitempty"`
	Service     string `json:"service"`
	Target      string `json:"target,omitempty"`
	ServiceMode string `json:"service_mode"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	CostPerUnit string `json:"cost_per_unit"`
}

type ItemSummary struct {
	Item              OrderItem `json:"item"`
	Assigned          int       `json:"assigned"`
	Posted            int       `json:"posted"`
	AvailableToAssign int       `json:"available_to_assign"`
	Jobs              []Job     `json:"jobs"`
}

type Job struct {
	ID                string          `json:"id"`
	ItemID            string          `json:"item_id"`
	OrderID           string          `json:"order_id"`
	TeamID            string          `json:"team_id"`
	Quantity          int             `json:"quantity"`
	CompletedQuantity int             `json:"completed_quantity"`
	PricePerUnit      decimal.Decimal `json:"price_per_unit"`
	Status            string          `json:"status"`
	Source            string          `json:"source"`
}

type Claim struct {
	ID             string          `json:"id"`
	JobID          string          `json:"job_id"`
	WorkerID       string          `json:"worker_id"`
	Quantity       int             `json:"quantity"`
	ActualQuantity int             `json:"actual_quantity"`
	EarnAmount     decimal.Decimal `json:"earn_amount"`
	Status         string          `json:"status"`
	RejectReason   string          `json:"reject_reason,omitempty"`
}

type SettlementLine struct {
	ClaimID     string          `json:"claim_id"`
	WorkerID    string          `json:"worker_id"`
	ClaimStatus string          `json:"claim_status"`
	Quantity    int             `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
}

type Settlement struct {
	JobID          string           `json:"job_id"`
	StatusAtCancel string           `json:"status_at_cancel"`
	PricePerUnit   decimal.Decimal  `json:"price_per_unit"`
	Total          decimal.Decimal  `json:"total"`
	Lines          []SettlementLine `json:"lines"`
}

type CancelResult struct {
	Job        Job        `json:"job"`
	Settlement Settlement `json:"settlement"`
}

type Bid struct {
	ID           string          `json:"id"`
	PostID       string          `json:"post_id"`
	TeamID       string          `json:"team_id"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Status       string          `json:"status"`
}

type Post struct {
	ID                    string          `json:"id"`
	ItemID                string          `json:"item_id"`
	Quantity              int             `json:"quantity"`
	SuggestedPricePerUnit decimal.Decimal `json:"suggested_price_per_unit"`
	Status                string          `json:"status"`
	JobID                 *string         `json:"job_id,omitempty"`
	Bids                  []Bid           `json:"bids,omitempty"`
}

type AcceptResult struct {
	Post Post `json:"post"`
	Bid  Bid  `json:"bid"`
	Job  Job  `json:"job"`
}

type Payout struct {
	ID       string          `json:"id"`
	WorkerID string          `json:"worker_id"`
	JobID    string          `json:"job_id"`
	ClaimID  string          `json:"claim_id"`
	Amount   decimal.Decimal `json:"amount"`
	Source   string          `json:"source"`
}

type PayoutStatement struct {
	WorkerID string          `json:"worker_id,omitempty"`
	JobID    string          `json:"job_id,omitempty"`
	Total    decimal.Decimal `json:"total"`
	Payouts  []Payout        `json:"payouts"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	OrderID    string `json:"order_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the server sent one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) ImportOrder(ctx context.Context, id, sellerID string, items []NewItem) (Order, error) {
	body := map[string]any{"id": id, "seller_id": sellerID, "items": items}
	var resp Order
	err := c.do(ctx, http.MethodPost, "orders", body, &resp)
	return resp, err
}

func (c *Client) GetOrder(ctx context.Context, id string) (Order, error) {
	var resp Order
	err := c.do(ctx, http.MethodGet, "orders/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) GetItem(ctx context.Context, id string) (ItemSummary, error) {
	var resp ItemSummary
	err := c.do(ctx, http.MethodGet, "items/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Assign gives the item's free quantity to one team. An empty price uses the
// item's cost per unit.
func (c *Client) Assign(ctx context.Context, itemID, teamID, price string) (Job, error) {
	body := map[string]any{"team_id": teamID}
	if price != "" {
		body["price_per_unit"] = price
	}
	var resp Job
	err := c.do(ctx, http.MethodPost, "items/"+url.PathEscape(itemID)+"/assign", body, &resp)
	return resp, err
}

type SplitPart struct {
	TeamID       string `json:"team_id"`
	Quantity     int    `json:"quantity"`
	PricePerUnit string `json:"price_per_unit,omitempty"`
}

func (c *Client) Split(ctx context.Context, itemID string, parts []SplitPart) ([]Job, error) {
	var resp []Job
	err := c.do(ctx, http.MethodPost, "items/"+url.PathEscape(itemID)+"/split", map[string]any{"parts": parts}, &resp)
	return resp, err
}

func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodGet, "jobs/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) PreviewCancellation(ctx context.Context, jobID string) (Settlement, error) {
	var resp Settlement
	err := c.do(ctx, http.MethodGet, "jobs/"+url.PathEscape(jobID)+"/cancellation", nil, &resp)
	return resp, err
}

// CancelJob cancels a job. When expectedTotal is set the server refuses with
// 409 if the settlement no longer matches it.
func (c *Client) CancelJob(ctx context.Context, jobID, reason string, expectedTotal *decimal.Decimal) (CancelResult, error) {
	body := map[string]any{"reason": reason}
	if expectedTotal != nil {
		body["expected_total"] = expectedTotal.String()
	}
	var resp CancelResult
	err := c.do(ctx, http.MethodPost, "jobs/"+url.PathEscape(jobID)+"/cancel", body, &resp)
	return resp, err
}

func (c *Client) CreateClaim(ctx context.Context, jobID, workerID string, quantity int) (Claim, error) {
	body := map[string]any{"quantity": quantity}
	if workerID != "" {
		body["worker_id"] = workerID
	}
	var resp Claim
	err := c.do(ctx, http.MethodPost, "jobs/"+url.PathEscape(jobID)+"/claims", body, &resp)
	return resp, err
}

func (c *Client) ReportProgress(ctx context.Context, claimID string, done int) (Claim, error) {
	var resp Claim
	err := c.do(ctx, http.MethodPost, "claims/"+url.PathEscape(claimID)+"/progress", map[string]any{"actual_quantity": done}, &resp)
	return resp, err
}

// SubmitClaim submits a claim. A nil done keeps the logged progress.
func (c *Client) SubmitClaim(ctx context.Context, claimID string, done *int) (Claim, error) {
	var body any
	if done != nil {
		body = map[string]any{"actual_quantity": *done}
	}
	var resp Claim
	err := c.do(ctx, http.MethodPost, "claims/"+url.PathEscape(claimID)+"/submit", body, &resp)
	return resp, err
}

func (c *Client) ApproveClaim(ctx context.Context, claimID string) (Claim, error) {
	var resp Claim
	err := c.do(ctx, http.MethodPost, "claims/"+url.PathEscape(claimID)+"/approve", nil, &resp)
	return resp, err
}

func (c *Client) RejectClaim(ctx context.Context, claimID, reason string) (Claim, error) {
	var resp Claim
	err := c.do(ctx, http.MethodPost, "claims/"+url.PathEscape(claimID)+"/reject", map[string]any{"reason": reason}, &resp)
	return resp, err
}

func (c *Client) CreatePost(ctx context.Context, itemID string, quantity int, suggestedPrice string) (Post, error) {
	body := map[string]any{"quantity": quantity, "suggested_price_per_unit": suggestedPrice}
	var resp Post
	err := c.do(ctx, http.MethodPost, "items/"+url.PathEscape(itemID)+"/posts", body, &resp)
	return resp, err
}

// PlaceBid bids for the caller's team unless teamID is set.
func (c *Client) PlaceBid(ctx context.Context, postID, teamID, price string) (Bid, error) {
	body := map[string]any{"price_per_unit": price}
	if teamID != "" {
		body["team_id"] = teamID
	}
	var resp Bid
	err := c.do(ctx, http.MethodPost, "posts/"+url.PathEscape(postID)+"/bids", body, &resp)
	return resp, err
}

func (c *Client) AcceptBid(ctx context.Context, bidID string) (AcceptResult, error) {
	var resp AcceptResult
	err := c.do(ctx, http.MethodPost, "bids/"+url.PathEscape(bidID)+"/accept", nil, &resp)
	return resp, err
}

func (c *Client) Payouts(ctx context.Context, workerID, jobID string) (PayoutStatement, error) {
	q := url.Values{}
	if workerID != "" {
		q.Set("worker_id", workerID)
	}
	if jobID != "" {
		q.Set("job_id", jobID)
	}
	var resp PayoutStatement
	err := c.do(ctx, http.MethodGet, withQuery("payouts", q), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

func withQuery(p string, q url.Values) string {
	if len(q) == 0 {
		return p
	}
	return p + "?" + q.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
