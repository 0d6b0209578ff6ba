// Package dispatch hands bot-mode order items to the external automation
// service over HTTP.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"crowdfill/internal/config"
	"crowdfill/internal/domain"
	"crowdfill/internal/resilience"
)

// Error is returned once every attempt to hand an item over has failed.
type Error struct {
	ItemID     string
	StatusCode int
	attempts   int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatch item %s failed after %d attempt(s): %v", e.ItemID, e.attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Attempts is how many requests were made.
func (e *Error) Attempts() int { return e.attempts }

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackoff sets the delay before the first retry.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// Client posts items to the bot service. Requests are throttled by a token
// bucket shared by every caller.
type Client struct {
	url         string
	token       string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
	log         *zap.Logger
}

type request struct {
	ItemID   string `json:"item_id"`
	OrderID  string `json:"order_id"`
	Service  string `json:"service"`
	Target   string `json:"target,omitempty"`
	Quantity int    `json:"quantity"`
}

func New(cfg config.DispatchConfig, opts ...Option) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		url:         cfg.URL,
		token:       cfg.Token,
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: cfg.MaxAttempts,
		backoff:     200 * time.Millisecond,
		log:         zap.L().Named("dispatch"),
	}
	if cfg.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(cfg.Burst, 1))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dispatch sends one item. Network failures and 408/429/5xx responses are
// retried; any other non-2xx status fails at once.
func (c *Client) Dispatch(ctx context.Context, item domain.OrderItem) error {
	if c.url == "" {
		return &Error{ItemID: item.ID, Err: eris.New("dispatch: no url configured")}
	}
	body, err := json.Marshal(request{
		ItemID:   item.ID,
		OrderID:  item.OrderID,
		Service:  item.Service,
		Target:   item.Target,
		Quantity: item.Quantity,
	})
	if err != nil {
		return eris.Wrap(err, "dispatch: encode request")
	}

	attempts := 0
	lastStatus := 0
	err = resilience.Do(ctx, resilience.RetryConfig{
		MaxAttempts:    c.maxAttempts,
		InitialBackoff: c.backoff,
		MaxBackoff:     5 * time.Second,
		JitterFraction: 0.2,
		OnRetry:        resilience.RetryLogger("dispatch", "post item"),
	}, func(ctx context.Context) error {
		attempts++
		status, err := c.post(ctx, item.ID, body)
		lastStatus = status
		return err
	})
	if err != nil {
		c.log.Warn("bot dispatch failed",
			zap.String("item_id", item.ID),
			zap.Int("attempts", attempts),
			zap.Int("status", lastStatus),
			zap.Error(err),
		)
		return &Error{ItemID: item.ID, StatusCode: lastStatus, attempts: attempts, Err: err}
	}
	c.log.Info("bot dispatch accepted", zap.String("item_id", item.ID), zap.Int("attempts", attempts))
	return nil
}

func (c *Client) post(ctx context.Context, itemID string, body []byte) (int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, eris.Wrap(err, "dispatch: rate limit")
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, eris.Wrap(err, "dispatch: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", itemID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, nil
	}
	err = fmt.Errorf("bot service returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resp.StatusCode, resilience.NewTransientError(err, resp.StatusCode)
	}
	return resp.StatusCode, err
}
