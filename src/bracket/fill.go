package bracket

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"copytrader/src/events"
	"copytrader/src/model"
)

// ApplyFillReport reconciles a cumulative parent-order fill report. A report
// for an unknown bracket is a no-op: the bracket may already be terminal or
// belong to another node. Activation of the conditional children happens
// exactly once, when the parent first becomes fully filled; duplicate
// full-fill reports neither re-activate children nor re-publish the event.
func (e *Engine) ApplyFillReport(ctx context.Context, report FillReport) error {
	lock := e.locks.get(report.BracketID)
	lock.Lock()
	defer lock.Unlock()

	current := e.lookup(report.BracketID)
	if current == nil {
		e.log.WithField("bracket_id", report.BracketID).
			Debug("Fill report for unknown bracket, ignoring")
		return nil
	}

	if model.IsTerminalBracketStatus(current.Status) {
		e.log.WithFields(logger.Fields{
			"bracket_id": current.ID,
			"status":     current.Status,
		}).Warn("Fill report for terminal bracket, ignoring")
		return nil
	}

	b := current.clone()
	parent := b.Parent
	now := e.now()

	fullyFilled := report.FilledQuantity.GreaterThanOrEqual(parent.Quantity)
	wasExecuted := parent.Status == model.OrderStatusExecuted

	parent.FilledQuantity = report.FilledQuantity
	parent.AvgFillPrice = decimal.NewNullDecimal(report.AvgFillPrice)
	parent.UpdatedAt = now
	if fullyFilled {
		parent.Status = model.OrderStatusExecuted
		if parent.ExecutedAt == nil {
			parent.ExecutedAt = &now
		}
	} else {
		parent.Status = model.OrderStatusPartial
	}

	parentFields := map[string]interface{}{
		"filled_quantity": parent.FilledQuantity,
		"avg_fill_price":  parent.AvgFillPrice,
		"status":          parent.Status,
	}
	if parent.ExecutedAt != nil {
		parentFields["executed_at"] = *parent.ExecutedAt
	}
	if err := e.store.UpdateOrderFields(ctx, parent.ID, parentFields); err != nil {
		return fmt.Errorf("failed to persist fill state for parent %s: %w", parent.ID, err)
	}

	newlyActivated := 0
	if fullyFilled {
		for _, role := range childRoleOrder {
			child := b.Children[role]
			if child == nil || child.IsActive {
				continue
			}
			if err := e.store.UpdateOrderFields(ctx, child.ID, map[string]interface{}{
				"is_active": true,
			}); err != nil {
				return fmt.Errorf("failed to activate %s child %s: %w", role, child.ID, err)
			}
			child.IsActive = true
			child.UpdatedAt = now
			newlyActivated++
		}
		b.Status = model.BracketStatusActive
	} else {
		b.Status = model.BracketStatusPartiallyFilled
	}

	if b.Status != current.Status {
		if err := e.store.UpdateBracketStatus(ctx, b.ID, b.Status); err != nil {
			return fmt.Errorf("failed to persist status for bracket %s: %w", b.ID, err)
		}
	}
	b.UpdatedAt = now

	e.commit(b)

	e.log.WithFields(logger.Fields{
		"bracket_id":      b.ID,
		"filled_qty":      report.FilledQuantity.String(),
		"avg_fill_price":  report.AvgFillPrice.String(),
		"status":          b.Status,
		"newly_activated": newlyActivated,
	}).Info("Parent fill report reconciled")

	// Publish only on the transition into executed, never on duplicates.
	if fullyFilled && !wasExecuted {
		e.publishEvent(events.TypeParentOrderExecuted, b)
	}

	return nil
}
