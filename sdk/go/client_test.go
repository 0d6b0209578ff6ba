package crowdfillsdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendsTokenAndDecodes(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"job-1","item_id":"it-1","team_id":"team-a","quantity":100,"price_per_unit":"0.50","status":"pending","source":"direct"}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/v1/", "tok")
	job, err := c.Assign(context.Background(), "it-1", "team-a", "")
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/v1/items/it-1/assign", gotPath)
	assert.Equal(t, map[string]any{"team_id": "team-a"}, gotBody)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, "0.50", job.PricePerUnit.StringFixed(2))
}

func TestClientParsesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"code":"insufficient_capacity","message":"not enough","details":{"available":100}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, err := c.Split(context.Background(), "it-1", []SplitPart{{TeamID: "a", Quantity: 60}, {TeamID: "b", Quantity: 60}})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "insufficient_capacity", apiErr.Code)
	assert.EqualValues(t, 100, apiErr.Details["available"])
}

func TestEventsPageQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"items":[{"id":7,"type":"job.created","entity_kind":"job","entity_id":"j","actor_id":"a","payload_json":"{\"quantity\":5}"}],"next_cursor":"7"}`))
	}))
	defer srv.Close()

	page, err := New(srv.URL, "").EventsPage(context.Background(), 1, "9")
	require.NoError(t, err)
	assert.Equal(t, "cursor=9&limit=1", gotQuery)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(7), page.Items[0].ID)
	assert.Equal(t, "7", page.NextCursor)
}
