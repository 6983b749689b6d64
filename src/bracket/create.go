package bracket

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"copytrader/src/events"
	"copytrader/src/model"
)

// CreateBracketOrder builds the parent leg plus up to three conditional
// children from one trading intent and persists them in a single atomic
// transaction. The in-memory index is updated only after the commit.
func (e *Engine) CreateBracketOrder(ctx context.Context, req CreateRequest) (*BracketOrder, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	now := e.now()
	bracketID := uuid.NewString()

	parent := &model.Order{
		ID:         uuid.NewString(),
		BracketID:  bracketID,
		UserID:     req.UserID,
		BrokerID:   req.BrokerID,
		Symbol:     req.Symbol,
		Underlying: req.Underlying,
		Side:       req.Side,
		Role:       model.OrderRoleParent,
		OrderType:  req.OrderType,
		Validity:   req.Validity,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		Status:     model.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	b := &BracketOrder{
		ID:        bracketID,
		UserID:    req.UserID,
		BrokerID:  req.BrokerID,
		Status:    model.BracketStatusPending,
		Parent:    parent,
		Children:  make(map[string]*model.Order),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if req.ProfitTargetPrice.Valid {
		child := e.newChild(req, parent, model.OrderRoleProfitTarget)
		child.OrderType = model.OrderTypeLimit
		child.LimitPrice = req.ProfitTargetPrice
		b.Children[model.OrderRoleProfitTarget] = child
	}

	if req.StopLossPrice.Valid {
		child := e.newChild(req, parent, model.OrderRoleStopLoss)
		child.StopPrice = req.StopLossPrice
		b.Children[model.OrderRoleStopLoss] = child
	}

	if req.TrailingStop != nil {
		spec := req.TrailingStop
		child := e.newChild(req, parent, model.OrderRoleTrailingStop)
		child.TrailAmount = spec.TrailAmount
		child.TrailPercent = spec.TrailPercent
		child.TrailTriggerPrice = decimal.NewNullDecimal(spec.InitialTriggerPrice)
		child.StopPrice = child.TrailTriggerPrice

		// The water mark on the favorable side starts at the initial
		// trigger; the other side stays unset until the position flips it.
		if req.Side == model.SideBuy {
			child.HighWaterMark = decimal.NewNullDecimal(spec.InitialTriggerPrice)
		} else {
			child.LowWaterMark = decimal.NewNullDecimal(spec.InitialTriggerPrice)
		}

		b.Children[model.OrderRoleTrailingStop] = child
	}

	summary := &model.Bracket{
		ID:            bracketID,
		UserID:        req.UserID,
		BrokerID:      req.BrokerID,
		ParentOrderID: parent.ID,
		Status:        model.BracketStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	orders := []*model.Order{parent}
	for _, role := range childRoleOrder {
		if child := b.Children[role]; child != nil {
			orders = append(orders, child)
		}
	}

	if err := e.store.CreateBracket(ctx, summary, orders); err != nil {
		e.log.WithError(err).WithFields(logger.Fields{
			"bracket_id": bracketID,
			"symbol":     req.Symbol,
		}).Error("Failed to persist new bracket order")
		return nil, fmt.Errorf("failed to create bracket %s: %w", bracketID, err)
	}

	e.mu.Lock()
	e.brackets[bracketID] = b
	addSymbolIndex(e.bySymbol, tickKey(parent), bracketID)
	e.mu.Unlock()

	e.log.WithFields(logger.Fields{
		"bracket_id": bracketID,
		"symbol":     req.Symbol,
		"side":       req.Side,
		"qty":        req.Quantity.String(),
		"children":   len(b.Children),
	}).Info("Bracket order created")

	e.publishEvent(events.TypeBracketOrderCreated, b)

	return b.clone(), nil
}

// newChild stamps the generic fields shared by every conditional leg: the
// inverted side, inactive flag and back-references to bracket and parent.
func (e *Engine) newChild(req CreateRequest, parent *model.Order, role string) *model.Order {
	now := e.now()
	return &model.Order{
		ID:            uuid.NewString(),
		BracketID:     parent.BracketID,
		ParentOrderID: parent.ID,
		UserID:        req.UserID,
		BrokerID:      req.BrokerID,
		Symbol:        req.Symbol,
		Underlying:    req.Underlying,
		Side:          model.OppositeSide(req.Side),
		Role:          role,
		OrderType:     model.OrderTypeMarket,
		Validity:      req.Validity,
		Quantity:      req.Quantity,
		IsActive:      false,
		Status:        model.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func validateCreateRequest(req CreateRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return fmt.Errorf("%w: side must be %q or %q", ErrInvalidRequest, model.SideBuy, model.SideSell)
	}
	if !req.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidRequest)
	}
	if req.OrderType == model.OrderTypeLimit && !req.LimitPrice.Valid {
		return fmt.Errorf("%w: limit orders require a limit price", ErrInvalidRequest)
	}

	if ts := req.TrailingStop; ts != nil {
		if ts.TrailAmount.Valid == ts.TrailPercent.Valid {
			return fmt.Errorf("%w: trailing stop requires exactly one of trail amount or trail percent", ErrInvalidRequest)
		}
		if ts.TrailAmount.Valid && !ts.TrailAmount.Decimal.IsPositive() {
			return fmt.Errorf("%w: trail amount must be positive", ErrInvalidRequest)
		}
		if ts.TrailPercent.Valid && !ts.TrailPercent.Decimal.IsPositive() {
			return fmt.Errorf("%w: trail percent must be positive", ErrInvalidRequest)
		}
		if !ts.InitialTriggerPrice.IsPositive() {
			return fmt.Errorf("%w: trailing stop requires a positive initial trigger price", ErrInvalidRequest)
		}
	}

	return nil
}
