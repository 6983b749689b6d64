package events

import (
	"context"
	"encoding/json"

	logger "github.com/sirupsen/logrus"

	"copytrader/src/model"
)

// EventLogWriter persists audit rows. Implemented by the bracket repository.
type EventLogWriter interface {
	CreateEventLog(ctx context.Context, entry *model.BracketEventLog) error
}

// AuditPublisher appends each event to the bracket_event_logs table. Write
// failures are logged and swallowed: audit must never fail the state
// transition that already committed.
type AuditPublisher struct {
	writer EventLogWriter
	log    *logger.Entry
}

func NewAuditPublisher(writer EventLogWriter) *AuditPublisher {
	return &AuditPublisher{
		writer: writer,
		log:    logger.WithField("component", "AuditPublisher"),
	}
}

func (p *AuditPublisher) Publish(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.WithError(err).WithField("event", event.Type).
			Error("Failed to marshal event for audit log")
		return
	}

	entry := &model.BracketEventLog{
		BracketID: event.Bracket.Bracket.ID,
		UserID:    event.Bracket.Bracket.UserID,
		BrokerID:  event.Bracket.Bracket.BrokerID,
		EventType: event.Type,
		Status:    event.Bracket.Bracket.Status,
		Payload:   string(payload),
		CreatedAt: event.OccurredAt,
	}

	if err := p.writer.CreateEventLog(context.Background(), entry); err != nil {
		p.log.WithError(err).WithFields(logger.Fields{
			"event":      event.Type,
			"bracket_id": entry.BracketID,
		}).Error("Failed to persist audit event")
	}
}
