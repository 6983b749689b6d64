package bracket

import (
	"context"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"copytrader/src/events"
	"copytrader/src/model"
)

// childRoleOrder is the fixed ordering used for snapshots and persistence.
var childRoleOrder = []string{
	model.OrderRoleProfitTarget,
	model.OrderRoleStopLoss,
	model.OrderRoleTrailingStop,
}

// Engine is the derivatives bracket order engine. It owns the authoritative
// in-memory index of all non-terminal brackets, funnels every mutation
// through a per-bracket lock, writes through to the persistence gateway and
// publishes state-transition events.
type Engine struct {
	store     Store
	publisher events.Publisher
	log       *logger.Entry
	now       func() time.Time

	locks *keyedLocks

	mu       sync.RWMutex
	brackets map[string]*BracketOrder
	bySymbol map[string]map[string]struct{}
}

// NewEngine wires the engine to its collaborators. Pass a nil publisher to
// run without event delivery (tests, one-shot tools).
func NewEngine(store Store, publisher events.Publisher) *Engine {
	if publisher == nil {
		publisher = events.Fanout{}
	}

	return &Engine{
		store:     store,
		publisher: publisher,
		log:       logger.WithField("component", "BracketEngine"),
		now:       time.Now,
		locks:     newKeyedLocks(),
		brackets:  make(map[string]*BracketOrder),
		bySymbol:  make(map[string]map[string]struct{}),
	}
}

// Reload rebuilds the in-memory index from the store. Terminal brackets are
// immutable history and stay out of the index. Called once at startup before
// any traffic is accepted.
func (e *Engine) Reload(ctx context.Context) error {
	statuses := []string{
		model.BracketStatusPending,
		model.BracketStatusActive,
		model.BracketStatusPartiallyFilled,
	}

	rows, err := e.store.FindBracketsByStatus(ctx, statuses)
	if err != nil {
		return fmt.Errorf("failed to load bracket summaries: %w", err)
	}

	brackets := make(map[string]*BracketOrder, len(rows))
	bySymbol := make(map[string]map[string]struct{})

	for i := range rows {
		row := rows[i]

		orders, err := e.store.FindOrdersByBracket(ctx, row.ID)
		if err != nil {
			return fmt.Errorf("failed to load orders for bracket %s: %w", row.ID, err)
		}

		b := &BracketOrder{
			ID:        row.ID,
			UserID:    row.UserID,
			BrokerID:  row.BrokerID,
			Status:    row.Status,
			Children:  make(map[string]*model.Order),
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		}

		for j := range orders {
			order := orders[j]
			if order.Role == model.OrderRoleParent {
				b.Parent = &order
				continue
			}
			if model.IsChildRole(order.Role) {
				b.Children[order.Role] = &order
			}
		}

		if b.Parent == nil {
			e.log.WithField("bracket_id", row.ID).
				Warn("Bracket summary has no parent order row, skipping")
			continue
		}

		brackets[b.ID] = b
		addSymbolIndex(bySymbol, tickKey(b.Parent), b.ID)
	}

	e.mu.Lock()
	e.brackets = brackets
	e.bySymbol = bySymbol
	e.mu.Unlock()

	e.log.WithField("brackets", len(brackets)).Info("Bracket index reloaded from store")
	return nil
}

// GetBracket returns a copy of the bracket, or nil when it is not indexed.
func (e *Engine) GetBracket(bracketID string) *BracketOrder {
	e.mu.RLock()
	defer e.mu.RUnlock()

	b, ok := e.brackets[bracketID]
	if !ok {
		return nil
	}
	return b.clone()
}

// ListBrackets returns copies of every indexed (non-terminal) bracket.
func (e *Engine) ListBrackets() []*BracketOrder {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*BracketOrder, 0, len(e.brackets))
	for _, b := range e.brackets {
		out = append(out, b.clone())
	}
	return out
}

// TrailingSymbols returns the tick keys of brackets currently holding an
// active trailing stop. Used by price feeds to decide what to subscribe to.
func (e *Engine) TrailingSymbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, b := range e.brackets {
		ts := b.Child(model.OrderRoleTrailingStop)
		if ts == nil || !ts.IsActive {
			continue
		}
		seen[tickKey(b.Parent)] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	return out
}

// CloseBracket applies an externally reported terminal disposition
// (completed or failed). The engine records it and drops the bracket from
// the live index; the per-leg final state is the gateway's to report.
func (e *Engine) CloseBracket(ctx context.Context, bracketID string, status string) error {
	if status != model.BracketStatusCompleted && status != model.BracketStatusFailed {
		return fmt.Errorf("status %q is not a reportable terminal status", status)
	}

	lock := e.locks.get(bracketID)
	lock.Lock()
	defer lock.Unlock()

	b := e.lookup(bracketID)
	if b == nil {
		return ErrBracketNotFound
	}

	if err := e.store.UpdateBracketStatus(ctx, bracketID, status); err != nil {
		return fmt.Errorf("failed to persist terminal status for bracket %s: %w", bracketID, err)
	}

	e.mu.Lock()
	delete(e.brackets, bracketID)
	removeSymbolIndex(e.bySymbol, tickKey(b.Parent), bracketID)
	e.mu.Unlock()

	e.log.WithFields(logger.Fields{
		"bracket_id": bracketID,
		"status":     status,
	}).Info("Bracket closed by external report")

	return nil
}

// lookup returns the live (shared) aggregate; callers must hold the
// per-bracket lock before mutating anything derived from it.
func (e *Engine) lookup(bracketID string) *BracketOrder {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.brackets[bracketID]
}

// commit swaps the mutated copy into the index.
func (e *Engine) commit(b *BracketOrder) {
	e.mu.Lock()
	e.brackets[b.ID] = b
	e.mu.Unlock()
}

func (e *Engine) snapshot(b *BracketOrder) events.BracketSnapshot {
	snap := events.BracketSnapshot{
		Bracket: model.Bracket{
			ID:            b.ID,
			UserID:        b.UserID,
			BrokerID:      b.BrokerID,
			ParentOrderID: b.Parent.ID,
			Status:        b.Status,
			CreatedAt:     b.CreatedAt,
			UpdatedAt:     b.UpdatedAt,
		},
	}

	snap.Orders = append(snap.Orders, *b.Parent)
	for _, role := range childRoleOrder {
		if child := b.Children[role]; child != nil {
			snap.Orders = append(snap.Orders, *child)
		}
	}
	return snap
}

func (e *Engine) publishEvent(eventType string, b *BracketOrder) {
	e.publisher.Publish(events.Event{
		Type:       eventType,
		Bracket:    e.snapshot(b),
		OccurredAt: e.now(),
	})
}

// tickKey is the symbol a price tick is routed by: the underlying when the
// contract has one, otherwise the tradable symbol itself.
func tickKey(parent *model.Order) string {
	if parent.Underlying != "" {
		return parent.Underlying
	}
	return parent.Symbol
}

func addSymbolIndex(index map[string]map[string]struct{}, key, bracketID string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[bracketID] = struct{}{}
}

func removeSymbolIndex(index map[string]map[string]struct{}, key, bracketID string) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, bracketID)
	if len(set) == 0 {
		delete(index, key)
	}
}
