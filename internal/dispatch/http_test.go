package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfill/internal/config"
	"crowdfill/internal/domain"
)

func testItem() domain.OrderItem {
	return domain.OrderItem{ID: "it-1", OrderID: "ord-1", Service: "views", Target: "https://example.test/v/1", Quantity: 500}
}

func TestDispatchPostsItem(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "it-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := New(config.DispatchConfig{URL: srv.URL, Token: "tok", MaxAttempts: 3})
	require.NoError(t, c.Dispatch(context.Background(), testItem()))
	assert.Equal(t, "it-1", got.ItemID)
	assert.Equal(t, 500, got.Quantity)
}

func TestDispatchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(config.DispatchConfig{URL: srv.URL, MaxAttempts: 3}, WithBackoff(time.Millisecond))
	require.NoError(t, c.Dispatch(context.Background(), testItem()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDispatchReportsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(config.DispatchConfig{URL: srv.URL, MaxAttempts: 2}, WithBackoff(time.Millisecond))
	err := c.Dispatch(context.Background(), testItem())
	require.Error(t, err)
	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 2, de.Attempts())
	assert.Equal(t, http.StatusBadGateway, de.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDispatchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown service", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(config.DispatchConfig{URL: srv.URL, MaxAttempts: 5}, WithBackoff(time.Millisecond))
	err := c.Dispatch(context.Background(), testItem())
	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 1, de.Attempts())
	assert.Contains(t, de.Error(), "unknown service")
}

func TestDispatchWithoutURL(t *testing.T) {
	err := New(config.DispatchConfig{}).Dispatch(context.Background(), testItem())
	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 0, de.Attempts())
}
