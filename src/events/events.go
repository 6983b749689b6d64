package events

import (
	"time"

	"github.com/shopspring/decimal"

	"copytrader/src/model"
)

// Event types emitted by the bracket engine.
const (
	TypeBracketOrderCreated   = "bracketOrderCreated"
	TypeParentOrderExecuted   = "parentOrderExecuted"
	TypeTrailingStopUpdated   = "trailingStopUpdated"
	TypeBracketOrderModified  = "bracketOrderModified"
	TypeBracketOrderCancelled = "bracketOrderCancelled"
)

// BracketSnapshot is the full state of a bracket at the moment an event was
// emitted. Orders carries the parent leg first, then the conditional
// children in role order.
type BracketSnapshot struct {
	Bracket model.Bracket `json:"bracket"`
	Orders  []model.Order `json:"orders"`
}

// Event is what subscribers receive. Price is set only on price-driven
// events (currently trailingStopUpdated).
type Event struct {
	Type       string           `json:"type"`
	Bracket    BracketSnapshot  `json:"bracket"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Publisher delivers events to interested subsystems. Publication is
// fire-and-forget: implementations must never block and their failures must
// never surface to the state transition that produced the event.
type Publisher interface {
	Publish(event Event)
}

// Fanout publishes to every wrapped publisher in order.
type Fanout []Publisher

func (f Fanout) Publish(event Event) {
	for _, p := range f {
		p.Publish(event)
	}
}
