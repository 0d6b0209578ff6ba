// Package notify tails the event log and forwards selected events to
// advisory sinks: the log, webhooks and a Pub/Sub topic. Delivery is at least
// once per sink; nothing here feeds back into the engine.
package notify

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"crowdfill/internal/domain"
)

// Notifier delivers one event to one sink.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, evt domain.Event) error
}

// Message is the JSON shape every sink sends.
type Message struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	OrderID    string          `json:"order_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
	PayloadRaw string          `json:"payload_raw,omitempty"`
}

func messageFor(evt domain.Event) Message {
	payload := json.RawMessage([]byte("{}"))
	var raw string
	if evt.Payload != "" {
		if json.Valid([]byte(evt.Payload)) {
			payload = json.RawMessage([]byte(evt.Payload))
		} else {
			raw = evt.Payload
		}
	}
	return Message{
		ID:         evt.ID,
		Type:       evt.Type,
		OrderID:    evt.OrderID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
		PayloadRaw: raw,
	}
}

// LogNotifier writes events to a zap logger.
type LogNotifier struct {
	Log *zap.Logger
}

func (LogNotifier) Name() string { return "log" }

func (n LogNotifier) Notify(_ context.Context, evt domain.Event) error {
	log := n.Log
	if log == nil {
		log = zap.L()
	}
	log.Info("event",
		zap.Int64("event_id", evt.ID),
		zap.String("type", evt.Type),
		zap.String("order_id", evt.OrderID),
		zap.String("entity_kind", evt.EntityKind),
		zap.String("entity_id", evt.EntityID),
		zap.String("actor_id", evt.ActorID),
	)
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
