package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfill/internal/config"
	"crowdfill/internal/db"
	"crowdfill/internal/domain"
	"crowdfill/internal/engine"
	"crowdfill/internal/engine/auth"
	"crowdfill/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
}

func newTestServer(t *testing.T, authCfg AuthConfig) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn, db.SQLite))
	e := engine.New(conn, db.SQLite, config.Default())
	if authCfg.JWTSecret == "" {
		authCfg.JWTSecret = testSecret
	}
	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: authCfg})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
		conn.Close()
	})
	return &testServer{URL: "http://" + ln.Addr().String() + "/v1", client: &http.Client{}}
}

func bearer(t *testing.T, actorID, teamID string, roles ...string) map[string]string {
	t.Helper()
	token, err := IssueToken(testSecret, auth.Principal{ActorID: actorID, TeamID: teamID, Roles: roles}, 0)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env
}

func importOrder(t *testing.T, srv *testServer, qty int) domain.Order {
	t.Helper()
	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/orders", map[string]any{
		"seller_id": "seller-1",
		"items": []map[string]any{{
			"service":       "followers",
			"target":        "@brand",
			"service_mode":  "human",
			"quantity":      qty,
			"unit_price":    "1.50",
			"cost_per_unit": "0.50",
		}},
	}, bearer(t, "orders-bot", "", "system"))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var order domain.Order
	require.NoError(t, json.Unmarshal(data, &order))
	require.Len(t, order.Items, 1)
	return order
}

func TestAllocationAndReviewFlow(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	order := importOrder(t, srv, 100)
	itemID := order.Items[0].ID
	seller := bearer(t, "seller-1", "", "seller")
	worker := bearer(t, "w1", "team-a", "worker")

	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/items/"+itemID+"/split", map[string]any{
		"parts": []map[string]any{
			{"team_id": "team-a", "quantity": 60},
			{"team_id": "team-b", "quantity": 60},
		},
	}, seller)
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
	env := decodeError(t, data)
	assert.Equal(t, "insufficient_capacity", env.Error.Code)
	assert.EqualValues(t, 100, env.Error.Details["available"])
	assert.EqualValues(t, 120, env.Error.Details["requested"])

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/items/"+itemID+"/assign", map[string]any{
		"team_id":        "team-a",
		"price_per_unit": "0.50",
	}, seller)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var job domain.Job
	require.NoError(t, json.Unmarshal(data, &job))
	assert.Equal(t, 100, job.Quantity)

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/jobs/"+job.ID+"/claims", map[string]any{"quantity": 40}, worker)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var claim domain.Claim
	require.NoError(t, json.Unmarshal(data, &claim))
	assert.Equal(t, "w1", claim.WorkerID)

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/claims/"+claim.ID+"/submit", map[string]any{"actual_quantity": 40}, worker)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/claims/"+claim.ID+"/approve", nil, seller)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &claim))
	assert.Equal(t, domain.ClaimApproved, claim.Status)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/items/"+itemID, nil, seller)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var summary engine.ItemSummary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 40, summary.Item.CompletedQuantity)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/payouts?worker_id=w1", nil, worker)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var stmt engine.PayoutStatement
	require.NoError(t, json.Unmarshal(data, &stmt))
	assert.Equal(t, "20.00", stmt.Total.StringFixed(2))
	assert.Len(t, stmt.Payouts, 1)
}

func TestCancelWithStalePreviewConflicts(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	order := importOrder(t, srv, 50)
	seller := bearer(t, "seller-1", "", "seller")

	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/items/"+order.Items[0].ID+"/assign", map[string]any{"team_id": "team-a"}, seller)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var job domain.Job
	require.NoError(t, json.Unmarshal(data, &job))

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/jobs/"+job.ID+"/cancellation", nil, seller)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var preview domain.Settlement
	require.NoError(t, json.Unmarshal(data, &preview))
	assert.True(t, preview.Total.IsZero())

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/jobs/"+job.ID+"/cancel", map[string]any{
		"reason":         "client paused",
		"expected_total": "3.00",
	}, seller)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "concurrent_modification", decodeError(t, data).Error.Code)

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/jobs/"+job.ID+"/cancel", map[string]any{
		"reason":         "client paused",
		"expected_total": "0",
	}, seller)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var out engine.CancelResult
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, domain.JobCancelled, out.Job.Status)

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/jobs/"+job.ID+"/cancel", map[string]any{"reason": "again"}, seller)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "invalid_transition", decodeError(t, data).Error.Code)
}

func TestAuthentication(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})

	res, _ := doJSON(t, srv.client, http.MethodGet, srv.URL+"/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", decodeError(t, data).Error.Code)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/orders", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_credentials", decodeError(t, data).Error.Code)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/orders", nil, map[string]string{"X-Actor-Id": "seller-1"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
}

func TestMissingPermissionIsForbidden(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	order := importOrder(t, srv, 10)

	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/items/"+order.Items[0].ID+"/assign", map[string]any{"team_id": "team-a"}, bearer(t, "w1", "team-a", "worker"))
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
	env := decodeError(t, data)
	assert.Equal(t, "forbidden", env.Error.Code)
	assert.Equal(t, "item.allocate", env.Error.Details["permission"])
}

func TestLegacyActorHeader(t *testing.T) {
	srv := newTestServer(t, AuthConfig{AllowLegacyActorHeader: true})

	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/me", nil, map[string]string{
		"X-Actor-Id":    "lead-1",
		"X-Actor-Roles": "team_lead",
		"X-Team-Id":     "team-b",
	})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var me auth.Principal
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, "lead-1", me.ActorID)
	assert.Equal(t, "team-b", me.TeamID)
	assert.Equal(t, "legacy_header", me.Source)
	assert.Contains(t, me.Permissions, "bid.place")
}

func TestMarketplaceOverHTTP(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	order := importOrder(t, srv, 100)
	seller := bearer(t, "seller-1", "", "seller")
	lead := bearer(t, "lead-1", "team-x", "team_lead")

	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/items/"+order.Items[0].ID+"/posts", map[string]any{
		"quantity":                 30,
		"suggested_price_per_unit": "0.20",
	}, seller)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var post domain.OutsourcePost
	require.NoError(t, json.Unmarshal(data, &post))

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/posts/"+post.ID+"/bids", map[string]any{"price_per_unit": "abc"}, lead)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/posts/"+post.ID+"/bids", map[string]any{"price_per_unit": "0.18"}, lead)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var bid domain.Bid
	require.NoError(t, json.Unmarshal(data, &bid))
	assert.Equal(t, "team-x", bid.TeamID)

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/bids/"+bid.ID+"/accept", nil, seller)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var accepted engine.AcceptResult
	require.NoError(t, json.Unmarshal(data, &accepted))
	assert.Equal(t, domain.JobSourceOutsource, accepted.Job.Source)
	assert.Equal(t, 30, accepted.Job.Quantity)
	assert.Equal(t, "0.18", accepted.Job.PricePerUnit.StringFixed(2))
}

func TestEventsPagination(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	order := importOrder(t, srv, 10)
	seller := bearer(t, "seller-1", "", "seller")
	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/items/"+order.Items[0].ID+"/assign", map[string]any{"team_id": "team-a"}, seller)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/events?limit=1", nil, seller)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var page paginatedEvents
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "job.created", page.Items[0].Type)
	require.NotEmpty(t, page.NextCursor)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/events?limit=1&cursor="+page.NextCursor, nil, seller)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "order.imported", page.Items[0].Type)
}
