package bracket

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"copytrader/src/events"
	"copytrader/src/model"
)

// ModifyBracketOrder applies one targeted edit to a bracket. Editing a child
// role that was never created is a documented silent no-op; an unknown
// bracket id is an error. cancel_all delegates to CancelBracketOrder.
func (e *Engine) ModifyBracketOrder(ctx context.Context, bracketID string, mod Modification) error {
	if mod.Kind == ModifyCancelAll {
		return e.CancelBracketOrder(ctx, bracketID)
	}

	lock := e.locks.get(bracketID)
	lock.Lock()
	defer lock.Unlock()

	current := e.lookup(bracketID)
	if current == nil {
		return ErrBracketNotFound
	}
	if model.IsTerminalBracketStatus(current.Status) {
		return ErrBracketTerminal
	}

	var role string
	switch mod.Kind {
	case ModifyProfitTarget:
		role = model.OrderRoleProfitTarget
	case ModifyStopLoss:
		role = model.OrderRoleStopLoss
	case ModifyTrailingStop:
		role = model.OrderRoleTrailingStop
	default:
		return fmt.Errorf("unknown modification kind %q", mod.Kind)
	}

	child := current.Child(role)
	if child == nil {
		e.log.WithFields(logger.Fields{
			"bracket_id": bracketID,
			"kind":       mod.Kind,
		}).Debug("Modification targets an absent child, nothing to do")
		return nil
	}

	b := current.clone()
	target := b.Children[role]
	fields := make(map[string]interface{})

	switch mod.Kind {
	case ModifyProfitTarget:
		if mod.LimitPrice.Valid {
			target.LimitPrice = mod.LimitPrice
			fields["limit_price"] = mod.LimitPrice
		}
	case ModifyStopLoss:
		if mod.TriggerPrice.Valid {
			target.StopPrice = mod.TriggerPrice
			fields["stop_price"] = mod.TriggerPrice
		}
	case ModifyTrailingStop:
		if mod.TriggerPrice.Valid {
			target.TrailTriggerPrice = mod.TriggerPrice
			target.StopPrice = mod.TriggerPrice
			fields["trail_trigger_price"] = mod.TriggerPrice
			fields["stop_price"] = mod.TriggerPrice
		}
		if mod.TrailAmount.Valid {
			target.TrailAmount = mod.TrailAmount
			fields["trail_amount"] = mod.TrailAmount
		}
		if mod.TrailPercent.Valid {
			target.TrailPercent = mod.TrailPercent
			fields["trail_percent"] = mod.TrailPercent
		}
	}

	if len(fields) == 0 {
		return nil
	}

	if err := e.store.UpdateOrderFields(ctx, target.ID, fields); err != nil {
		return fmt.Errorf("failed to persist %s modification for bracket %s: %w", mod.Kind, bracketID, err)
	}

	target.UpdatedAt = e.now()
	b.UpdatedAt = target.UpdatedAt
	e.commit(b)

	e.log.WithFields(logger.Fields{
		"bracket_id": bracketID,
		"kind":       mod.Kind,
		"order_id":   target.ID,
	}).Info("Bracket order modified")

	e.publishEvent(events.TypeBracketOrderModified, b)
	return nil
}

// CancelBracketOrder tears down an entire bracket: every leg and the summary
// row flip to cancelled in one transaction, the bracket leaves the live
// index and subscribers are notified.
func (e *Engine) CancelBracketOrder(ctx context.Context, bracketID string) error {
	lock := e.locks.get(bracketID)
	lock.Lock()
	defer lock.Unlock()

	current := e.lookup(bracketID)
	if current == nil {
		return ErrBracketNotFound
	}
	if model.IsTerminalBracketStatus(current.Status) {
		return ErrBracketTerminal
	}

	if err := e.store.CancelBracket(ctx, bracketID); err != nil {
		e.log.WithError(err).WithField("bracket_id", bracketID).
			Error("Failed to cancel bracket order")
		return fmt.Errorf("failed to cancel bracket %s: %w", bracketID, err)
	}

	b := current.clone()
	now := e.now()
	b.Status = model.BracketStatusCancelled
	b.UpdatedAt = now
	b.Parent.Status = model.OrderStatusCancelled
	b.Parent.IsActive = false
	b.Parent.UpdatedAt = now
	for _, child := range b.Children {
		child.Status = model.OrderStatusCancelled
		child.IsActive = false
		child.UpdatedAt = now
	}

	e.mu.Lock()
	delete(e.brackets, bracketID)
	removeSymbolIndex(e.bySymbol, tickKey(b.Parent), bracketID)
	e.mu.Unlock()

	e.log.WithField("bracket_id", bracketID).Info("Bracket order cancelled")

	e.publishEvent(events.TypeBracketOrderCancelled, b)
	return nil
}
