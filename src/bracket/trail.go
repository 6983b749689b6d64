package bracket

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"copytrader/src/events"
	"copytrader/src/model"
)

var hundred = decimal.NewFromInt(100)

// TrailState is the trailing-stop fields the ratchet operates on, detached
// from the order row so the math stays pure and testable.
type TrailState struct {
	TriggerPrice  decimal.NullDecimal
	HighWaterMark decimal.NullDecimal
	LowWaterMark  decimal.NullDecimal
	TrailAmount   decimal.NullDecimal
	TrailPercent  decimal.NullDecimal
}

// ComputeNextTrailingTrigger applies the one-directional trailing ratchet for
// a long or short position.
//
// Long (parent side buy):
// - gate: price must exceed the high-water mark
// - candidate: price - amount, or price * (1 - percent/100)
// - update: trigger = max(trigger, candidate)
//
// Short (parent side sell) mirrors with the low-water mark, price + offset
// and trigger = min(trigger, candidate).
//
// The trigger never moves against the position holder. A state with neither
// offset configured is a permanent no-op.
func ComputeNextTrailingTrigger(parentSide string, st TrailState, price decimal.Decimal) (TrailState, bool) {
	if !st.TrailAmount.Valid && !st.TrailPercent.Valid {
		return st, false
	}

	switch parentSide {
	case model.SideBuy:
		if st.HighWaterMark.Valid && price.LessThanOrEqual(st.HighWaterMark.Decimal) {
			return st, false
		}
		st.HighWaterMark = decimal.NewNullDecimal(price)

		var candidate decimal.Decimal
		if st.TrailAmount.Valid {
			candidate = price.Sub(st.TrailAmount.Decimal)
		} else {
			candidate = price.Mul(hundred.Sub(st.TrailPercent.Decimal)).Div(hundred)
		}

		if !st.TriggerPrice.Valid || candidate.GreaterThan(st.TriggerPrice.Decimal) {
			st.TriggerPrice = decimal.NewNullDecimal(candidate)
			return st, true
		}
		return st, false

	case model.SideSell:
		if st.LowWaterMark.Valid && price.GreaterThanOrEqual(st.LowWaterMark.Decimal) {
			return st, false
		}
		st.LowWaterMark = decimal.NewNullDecimal(price)

		var candidate decimal.Decimal
		if st.TrailAmount.Valid {
			candidate = price.Add(st.TrailAmount.Decimal)
		} else {
			candidate = price.Mul(hundred.Add(st.TrailPercent.Decimal)).Div(hundred)
		}

		if !st.TriggerPrice.Valid || candidate.LessThan(st.TriggerPrice.Decimal) {
			st.TriggerPrice = decimal.NewNullDecimal(candidate)
			return st, true
		}
		return st, false

	default:
		return st, false
	}
}

// RecalculateTrailingStop feeds one market price to a bracket's trailing
// stop. It reports whether the trigger moved. Missing bracket, missing or
// inactive trailing child and an unfavorable price are all quiet no-ops.
func (e *Engine) RecalculateTrailingStop(ctx context.Context, bracketID string, price decimal.Decimal) (bool, error) {
	lock := e.locks.get(bracketID)
	lock.Lock()
	defer lock.Unlock()

	current := e.lookup(bracketID)
	if current == nil {
		return false, nil
	}

	ts := current.Child(model.OrderRoleTrailingStop)
	if ts == nil || !ts.IsActive {
		return false, nil
	}

	st := TrailState{
		TriggerPrice:  ts.TrailTriggerPrice,
		HighWaterMark: ts.HighWaterMark,
		LowWaterMark:  ts.LowWaterMark,
		TrailAmount:   ts.TrailAmount,
		TrailPercent:  ts.TrailPercent,
	}

	next, moved := ComputeNextTrailingTrigger(current.Parent.Side, st, price)
	if !moved {
		// The water mark may still have advanced (trigger pinned elsewhere);
		// keep it in memory only, it re-ratchets after a restart.
		if next.HighWaterMark != st.HighWaterMark || next.LowWaterMark != st.LowWaterMark {
			b := current.clone()
			mark := b.Children[model.OrderRoleTrailingStop]
			mark.HighWaterMark = next.HighWaterMark
			mark.LowWaterMark = next.LowWaterMark
			e.commit(b)
		}
		e.log.WithFields(logger.Fields{
			"bracket_id": bracketID,
			"price":      price.String(),
		}).Debug("Trailing stop unchanged")
		return false, nil
	}

	fields := map[string]interface{}{
		"trail_trigger_price": next.TriggerPrice,
		"stop_price":          next.TriggerPrice,
		"high_water_mark":     next.HighWaterMark,
		"low_water_mark":      next.LowWaterMark,
	}
	if err := e.store.UpdateOrderFields(ctx, ts.ID, fields); err != nil {
		return false, fmt.Errorf("failed to persist trailing trigger for bracket %s: %w", bracketID, err)
	}

	b := current.clone()
	child := b.Children[model.OrderRoleTrailingStop]
	child.TrailTriggerPrice = next.TriggerPrice
	child.StopPrice = next.TriggerPrice
	child.HighWaterMark = next.HighWaterMark
	child.LowWaterMark = next.LowWaterMark
	child.UpdatedAt = e.now()
	e.commit(b)

	e.log.WithFields(logger.Fields{
		"bracket_id": bracketID,
		"price":      price.String(),
		"trigger":    next.TriggerPrice.Decimal.String(),
	}).Info("Trailing stop trigger ratcheted")

	e.publisher.Publish(events.Event{
		Type:       events.TypeTrailingStopUpdated,
		Bracket:    e.snapshot(b),
		Price:      &price,
		OccurredAt: e.now(),
	})

	return true, nil
}

// OnPriceTick routes one market price to every bracket indexed under the
// symbol and returns how many trailing triggers moved. Per-bracket errors
// are logged and do not stop the fan-out.
func (e *Engine) OnPriceTick(ctx context.Context, symbol string, price decimal.Decimal) int {
	e.mu.RLock()
	ids := make([]string, 0, len(e.bySymbol[symbol]))
	for id := range e.bySymbol[symbol] {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	updated := 0
	for _, id := range ids {
		moved, err := e.RecalculateTrailingStop(ctx, id, price)
		if err != nil {
			e.log.WithError(err).WithFields(logger.Fields{
				"bracket_id": id,
				"symbol":     symbol,
			}).Error("Trailing stop recalculation failed")
			continue
		}
		if moved {
			updated++
		}
	}
	return updated
}
