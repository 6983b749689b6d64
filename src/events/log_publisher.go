package events

import (
	logger "github.com/sirupsen/logrus"
)

// LogPublisher writes every event to the structured log. Mostly useful in
// headless deployments and tests.
type LogPublisher struct {
	Log *logger.Entry
}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{Log: logger.WithField("component", "events")}
}

func (p *LogPublisher) Publish(event Event) {
	entry := p.Log
	if entry == nil {
		entry = logger.WithField("component", "events")
	}

	fields := logger.Fields{
		"event":      event.Type,
		"bracket_id": event.Bracket.Bracket.ID,
		"status":     event.Bracket.Bracket.Status,
	}
	if event.Price != nil {
		fields["price"] = event.Price.String()
	}

	entry.WithFields(fields).Info("bracket event published")
}
