package notify

import (
	"context"
	"encoding/json"
	"strconv"

	"cloud.google.com/go/pubsub"
	"github.com/rotisserie/eris"

	"crowdfill/internal/config"
	"crowdfill/internal/domain"
)

// Publisher is the slice of a Pub/Sub topic the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) (string, error)
}

type topicPublisher struct {
	topic *pubsub.Topic
}

// Publish waits for the server to acknowledge the message. A failed ordered
// publish pauses its key until resumed.
func (p topicPublisher) Publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		p.topic.ResumePublish(msg.OrderingKey)
	}
	return id, err
}

// PubSubNotifier publishes events to a Google Cloud Pub/Sub topic, ordered
// per order id.
type PubSubNotifier struct {
	Topic     string
	Publisher Publisher
}

// NewPubSub connects to the configured topic. The returned func stops the
// topic and closes the client.
func NewPubSub(ctx context.Context, cfg config.PubSubConfig) (*PubSubNotifier, func() error, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "pubsub: connect to project %s", cfg.ProjectID)
	}
	topic := client.Topic(cfg.Topic)
	topic.EnableMessageOrdering = true
	closeFn := func() error {
		topic.Stop()
		return client.Close()
	}
	return &PubSubNotifier{Topic: cfg.Topic, Publisher: topicPublisher{topic: topic}}, closeFn, nil
}

func (p *PubSubNotifier) Name() string { return "pubsub:" + p.Topic }

func (p *PubSubNotifier) Notify(ctx context.Context, evt domain.Event) error {
	data, err := json.Marshal(messageFor(evt))
	if err != nil {
		return eris.Wrap(err, "pubsub: encode event")
	}
	msg := &pubsub.Message{
		Data:        data,
		OrderingKey: evt.OrderID,
		Attributes: map[string]string{
			"type":        evt.Type,
			"event_id":    strconv.FormatInt(evt.ID, 10),
			"entity_kind": evt.EntityKind,
			"entity_id":   evt.EntityID,
		},
	}
	if _, err := p.Publisher.Publish(ctx, msg); err != nil {
		return eris.Wrapf(err, "pubsub: publish %s to %s", evt.Type, p.Topic)
	}
	return nil
}
