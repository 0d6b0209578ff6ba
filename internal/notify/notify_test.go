package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfill/internal/config"
	"crowdfill/internal/domain"
)

type memSource struct {
	events []domain.Event
}

func (m *memSource) LatestEventID(context.Context) (int64, error) {
	if len(m.events) == 0 {
		return 0, nil
	}
	return m.events[len(m.events)-1].ID, nil
}

func (m *memSource) EventsAfter(_ context.Context, limit int, cursor int64) ([]domain.Event, error) {
	var out []domain.Event
	for _, e := range m.events {
		if e.ID > cursor && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memSource) add(typ string) {
	id := int64(len(m.events) + 1)
	m.events = append(m.events, domain.Event{ID: id, Type: typ, OrderID: "ord-1", EntityKind: "job", EntityID: "job-1", Payload: `{"quantity":10}`})
}

type recordingSink struct {
	got  []string
	fail map[int64]bool
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Notify(_ context.Context, evt domain.Event) error {
	if r.fail[evt.ID] {
		return errors.New("sink down")
	}
	r.got = append(r.got, evt.Type)
	return nil
}

func TestTailerStartsAtNewestAndFilters(t *testing.T) {
	src := &memSource{}
	src.add("order.imported")
	sink := &recordingSink{}
	tl := NewTailer(src, sink, []string{"job.created", "post.created"}, 0)

	n, err := tl.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	src.add("job.created")
	src.add("claim.created")
	src.add("post.created")
	n, err = tl.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"job.created", "post.created"}, sink.got)
}

func TestTailerRetriesFailedEvent(t *testing.T) {
	src := &memSource{}
	sink := &recordingSink{fail: map[int64]bool{2: true}}
	tl := NewTailer(src, sink, nil, 0)
	_, err := tl.Poll(context.Background())
	require.NoError(t, err)

	src.add("job.created")
	src.add("post.created")
	n, err := tl.Poll(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)

	sink.fail = nil
	n, err = tl.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"job.created", "post.created"}, sink.got)
}

func TestWebhookNotifier(t *testing.T) {
	var got Message
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhook(config.WebhookConfig{URL: srv.URL, Secret: "s3"})
	err := n.Notify(context.Background(), domain.Event{ID: 7, Type: "post.created", OrderID: "ord-1", Payload: `{"quantity":40}`})
	require.NoError(t, err)
	assert.Equal(t, "post.created", headers.Get("X-Crowdfill-Event"))
	assert.Equal(t, "7", headers.Get("X-Crowdfill-Delivery"))
	assert.Equal(t, "s3", headers.Get("X-Crowdfill-Secret"))
	assert.JSONEq(t, `{"quantity":40}`, string(got.Payload))
	assert.Equal(t, "ord-1", got.OrderID)
}

func TestWebhookNotifierRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewWebhook(config.WebhookConfig{URL: srv.URL}).Notify(context.Background(), domain.Event{ID: 1, Type: "job.created"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

type fakePublisher struct {
	msgs []*pubsub.Message
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, msg *pubsub.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.msgs = append(f.msgs, msg)
	return "srv-1", nil
}

func TestPubSubNotifier(t *testing.T) {
	pub := &fakePublisher{}
	n := &PubSubNotifier{Topic: "crowdfill-events", Publisher: pub}
	require.NoError(t, n.Notify(context.Background(), domain.Event{ID: 3, Type: "job.created", OrderID: "ord-9", EntityKind: "job", EntityID: "job-3", Payload: "not json"}))
	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, "ord-9", msg.OrderingKey)
	assert.Equal(t, "job.created", msg.Attributes["type"])
	assert.Equal(t, "3", msg.Attributes["event_id"])
	var body Message
	require.NoError(t, json.Unmarshal(msg.Data, &body))
	assert.Equal(t, "not json", body.PayloadRaw)

	pub.err = errors.New("unavailable")
	err := n.Notify(context.Background(), domain.Event{ID: 4, Type: "post.created"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crowdfill-events")
}

func TestBuildHonoursConfig(t *testing.T) {
	off := false
	s, err := Build(context.Background(), &memSource{}, config.NotifyConfig{
		Log: true,
		Webhooks: []config.WebhookConfig{
			{URL: "http://hooks.test/a", Events: []string{"job.created"}},
			{URL: "http://hooks.test/b", Enabled: &off},
		},
	})
	require.NoError(t, err)
	require.Len(t, s.Tailers, 2)
	assert.Equal(t, "log", s.Tailers[0].Sink.Name())
	assert.Equal(t, "webhook:http://hooks.test/a", s.Tailers[1].Sink.Name())
	assert.True(t, s.Tailers[1].filter.match("job.created"))
	assert.False(t, s.Tailers[1].filter.match("post.created"))
	require.NoError(t, s.Close())
}

func TestSetupRunStopsWithContext(t *testing.T) {
	src := &memSource{}
	s := &Setup{Tailers: []*Tailer{NewTailer(src, &recordingSink{}, nil, 0)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
}
