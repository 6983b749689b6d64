package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order roles within a bracket. A bracket has exactly one parent leg and at
// most one leg per conditional role.
const (
	OrderRoleParent       = "parent"
	OrderRoleProfitTarget = "profit_target"
	OrderRoleStopLoss     = "stop_loss"
	OrderRoleTrailingStop = "trailing_stop"
)

// Per-leg fill statuses.
const (
	OrderStatusPending   = "pending"
	OrderStatusPartial   = "partial"
	OrderStatusExecuted  = "executed"
	OrderStatusCancelled = "cancelled"
)

const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// OppositeSide returns the side a protective child must carry for a parent
// placed on the given side.
func OppositeSide(side string) string {
	if side == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Order is one leg of a bracket: the entry parent or a conditional exit
// child, tagged by Role. Conditional children are created inactive and only
// become eligible for execution once the parent is fully filled.
type Order struct {
	ID            string `gorm:"primaryKey;size:36" json:"id"`
	BracketID     string `gorm:"size:36;index" json:"bracket_id"`
	ParentOrderID string `gorm:"size:36;index" json:"parent_order_id,omitempty"`
	UserID        uint   `gorm:"index" json:"user_id"`
	BrokerID      uint   `gorm:"index" json:"broker_id"`

	Symbol     string `gorm:"size:100;index" json:"symbol"`
	Underlying string `gorm:"size:100" json:"underlying"`
	Side       string `gorm:"size:20" json:"side"`
	Role       string `gorm:"size:20;not null;index" json:"role"`
	OrderType  string `gorm:"size:50" json:"order_type"`
	Validity   string `gorm:"size:20" json:"validity"`

	Quantity   decimal.Decimal     `gorm:"type:numeric" json:"quantity"`
	LimitPrice decimal.NullDecimal `gorm:"type:numeric" json:"limit_price,omitempty"`
	StopPrice  decimal.NullDecimal `gorm:"type:numeric" json:"stop_price,omitempty"`

	// Trailing-stop fields. TrailAmount and TrailPercent are mutually
	// exclusive; the unused one stays unset. Water marks start unset, never
	// as infinity sentinels.
	TrailAmount       decimal.NullDecimal `gorm:"type:numeric" json:"trail_amount,omitempty"`
	TrailPercent      decimal.NullDecimal `gorm:"type:numeric" json:"trail_percent,omitempty"`
	TrailTriggerPrice decimal.NullDecimal `gorm:"type:numeric" json:"trail_trigger_price,omitempty"`
	HighWaterMark     decimal.NullDecimal `gorm:"type:numeric" json:"high_water_mark,omitempty"`
	LowWaterMark      decimal.NullDecimal `gorm:"type:numeric" json:"low_water_mark,omitempty"`

	FilledQuantity decimal.Decimal     `gorm:"type:numeric" json:"filled_quantity"`
	AvgFillPrice   decimal.NullDecimal `gorm:"type:numeric" json:"avg_fill_price,omitempty"`

	IsActive bool   `gorm:"not null;default:false" json:"is_active"`
	Status   string `gorm:"size:50;not null;default:pending" json:"status"`

	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName allows you to control the exact table name for orders.
func (Order) TableName() string {
	return "orders"
}

// IsChildRole reports whether the role is one of the conditional exit roles.
func IsChildRole(role string) bool {
	switch role {
	case OrderRoleProfitTarget, OrderRoleStopLoss, OrderRoleTrailingStop:
		return true
	}
	return false
}
