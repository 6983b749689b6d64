package bracket

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"copytrader/src/model"
)

var (
	// ErrInvalidRequest wraps creation-time validation failures so callers
	// can distinguish a bad request from a persistence fault.
	ErrInvalidRequest = errors.New("invalid bracket request")

	// ErrBracketNotFound is returned by modify/cancel when the bracket id is
	// unknown. Lookup-style operations treat the same condition as a no-op.
	ErrBracketNotFound = errors.New("bracket order not found")

	// ErrBracketTerminal is returned when a mutation targets a bracket that
	// already reached completed, cancelled or failed.
	ErrBracketTerminal = errors.New("bracket order is terminal")
)

// Store is the narrow persistence surface the engine consumes. CreateBracket
// and CancelBracket are atomic across every row they touch; the remaining
// writes are single-row.
type Store interface {
	CreateBracket(ctx context.Context, bracket *model.Bracket, orders []*model.Order) error
	UpdateOrderFields(ctx context.Context, orderID string, fields map[string]interface{}) error
	UpdateBracketStatus(ctx context.Context, bracketID string, status string) error
	CancelBracket(ctx context.Context, bracketID string) error
	FindBracketsByStatus(ctx context.Context, statuses []string) ([]model.Bracket, error)
	FindOrdersByBracket(ctx context.Context, bracketID string) ([]model.Order, error)
}

// BracketOrder is the in-memory aggregate: the summary fields plus the parent
// leg and the conditional children keyed by role (at most one per role).
type BracketOrder struct {
	ID       string
	UserID   uint
	BrokerID uint
	Status   string

	Parent   *model.Order
	Children map[string]*model.Order

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Child returns the conditional leg with the given role, or nil.
func (b *BracketOrder) Child(role string) *model.Order {
	return b.Children[role]
}

func (b *BracketOrder) clone() *BracketOrder {
	out := &BracketOrder{
		ID:        b.ID,
		UserID:    b.UserID,
		BrokerID:  b.BrokerID,
		Status:    b.Status,
		Children:  make(map[string]*model.Order, len(b.Children)),
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
	if b.Parent != nil {
		parent := *b.Parent
		out.Parent = &parent
	}
	for role, child := range b.Children {
		c := *child
		out.Children[role] = &c
	}
	return out
}

// TrailingStopSpec configures the optional trailing-stop child at creation.
// Exactly one of TrailAmount/TrailPercent must be set.
type TrailingStopSpec struct {
	TrailAmount         decimal.NullDecimal `json:"trail_amount,omitempty"`
	TrailPercent        decimal.NullDecimal `json:"trail_percent,omitempty"`
	InitialTriggerPrice decimal.Decimal     `json:"initial_trigger_price"`
}

// CreateRequest is the trading intent handed to the creation orchestrator.
type CreateRequest struct {
	UserID     uint   `json:"user_id"`
	BrokerID   uint   `json:"broker_id"`
	Symbol     string `json:"symbol"`
	Underlying string `json:"underlying"`
	Side       string `json:"side"`
	OrderType  string `json:"order_type"`
	Validity   string `json:"validity"`

	Quantity   decimal.Decimal     `json:"quantity"`
	LimitPrice decimal.NullDecimal `json:"limit_price,omitempty"`

	ProfitTargetPrice decimal.NullDecimal `json:"profit_target_price,omitempty"`
	StopLossPrice     decimal.NullDecimal `json:"stop_loss_price,omitempty"`
	TrailingStop      *TrailingStopSpec   `json:"trailing_stop,omitempty"`
}

// FillReport is the execution gateway's cumulative fill state for a bracket's
// parent order.
type FillReport struct {
	BracketID      string          `json:"bracket_id"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	AvgFillPrice   decimal.Decimal `json:"avg_fill_price"`
}

// Modification kinds.
const (
	ModifyProfitTarget = "profit_target"
	ModifyStopLoss     = "stop_loss"
	ModifyTrailingStop = "trailing_stop"
	ModifyCancelAll    = "cancel_all"
)

// Modification is a targeted edit to one bracket. Only the fields relevant
// to Kind are consulted; for trailing_stop every present field is applied and
// absent fields are left untouched.
type Modification struct {
	Kind string `json:"kind"`

	LimitPrice   decimal.NullDecimal `json:"limit_price,omitempty"`
	TriggerPrice decimal.NullDecimal `json:"trigger_price,omitempty"`
	TrailAmount  decimal.NullDecimal `json:"trail_amount,omitempty"`
	TrailPercent decimal.NullDecimal `json:"trail_percent,omitempty"`
}
