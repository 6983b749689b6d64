package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"copytrader/src/model"
)

type captureWriter struct {
	entries []*model.BracketEventLog
	err     error
}

func (w *captureWriter) CreateEventLog(_ context.Context, entry *model.BracketEventLog) error {
	w.entries = append(w.entries, entry)
	return w.err
}

func sampleEvent() Event {
	return Event{
		Type: TypeBracketOrderCreated,
		Bracket: BracketSnapshot{
			Bracket: model.Bracket{
				ID:       "b-1",
				UserID:   7,
				BrokerID: 3,
				Status:   model.BracketStatusPending,
			},
			Orders: []model.Order{
				{ID: "o-1", BracketID: "b-1", Role: model.OrderRoleParent},
			},
		},
		OccurredAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAuditPublisher_WritesSnapshotRow(t *testing.T) {
	writer := &captureWriter{}
	publisher := NewAuditPublisher(writer)

	publisher.Publish(sampleEvent())

	if len(writer.entries) != 1 {
		t.Fatalf("expected one audit row, got %d", len(writer.entries))
	}

	entry := writer.entries[0]
	if entry.BracketID != "b-1" || entry.UserID != 7 || entry.BrokerID != 3 {
		t.Fatalf("unexpected audit row: %+v", entry)
	}
	if entry.EventType != TypeBracketOrderCreated {
		t.Fatalf("expected event type %s, got %s", TypeBracketOrderCreated, entry.EventType)
	}
	if entry.Status != model.BracketStatusPending {
		t.Fatalf("expected status snapshot, got %s", entry.Status)
	}

	var payload Event
	if err := json.Unmarshal([]byte(entry.Payload), &payload); err != nil {
		t.Fatalf("expected payload to be the marshalled event: %v", err)
	}
	if payload.Type != TypeBracketOrderCreated || len(payload.Bracket.Orders) != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestAuditPublisher_SwallowsWriteFailures(t *testing.T) {
	writer := &captureWriter{err: errors.New("db down")}
	publisher := NewAuditPublisher(writer)

	// must not panic or surface the error
	publisher.Publish(sampleEvent())

	if len(writer.entries) != 1 {
		t.Fatalf("expected the write to be attempted once, got %d", len(writer.entries))
	}
}

func TestFanout_PublishesInOrder(t *testing.T) {
	var order []string
	first := publisherFunc(func(Event) { order = append(order, "first") })
	second := publisherFunc(func(Event) { order = append(order, "second") })

	Fanout{first, second}.Publish(sampleEvent())

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected fan-out in declaration order, got %v", order)
	}
}

type publisherFunc func(Event)

func (f publisherFunc) Publish(event Event) { f(event) }
