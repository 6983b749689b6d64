package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"copytrader/src/bracket"
	"copytrader/src/model"
)

type bracketCreator interface {
	CreateBracketOrder(ctx context.Context, req bracket.CreateRequest) (*bracket.BracketOrder, error)
}

type bracketReader interface {
	GetBracket(bracketID string) *bracket.BracketOrder
	ListBrackets() []*bracket.BracketOrder
}

type bracketModifier interface {
	ModifyBracketOrder(ctx context.Context, bracketID string, mod bracket.Modification) error
	CancelBracketOrder(ctx context.Context, bracketID string) error
}

type fillApplier interface {
	ApplyFillReport(ctx context.Context, report bracket.FillReport) error
}

type tickRouter interface {
	OnPriceTick(ctx context.Context, symbol string, price decimal.Decimal) int
}

// bracketResponse is the wire shape of one bracket: summary fields plus the
// parent leg and the conditional children keyed by role.
type bracketResponse struct {
	ID        string                  `json:"id"`
	UserID    uint                    `json:"user_id"`
	BrokerID  uint                    `json:"broker_id"`
	Status    string                  `json:"status"`
	Parent    *model.Order            `json:"parent_order"`
	Children  map[string]*model.Order `json:"children,omitempty"`
	CreatedAt string                  `json:"created_at"`
	UpdatedAt string                  `json:"updated_at"`
}

func toBracketResponse(b *bracket.BracketOrder) bracketResponse {
	resp := bracketResponse{
		ID:        b.ID,
		UserID:    b.UserID,
		BrokerID:  b.BrokerID,
		Status:    b.Status,
		Parent:    b.Parent,
		CreatedAt: b.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		UpdatedAt: b.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if len(b.Children) > 0 {
		resp.Children = b.Children
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("Failed to encode response")
	}
}

// CreateBracketHandler returns a handler that creates a new bracket order
// from a JSON trading intent.
func CreateBracketHandler(engine bracketCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bracket.CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		b, err := engine.CreateBracketOrder(r.Context(), req)
		if err != nil {
			if errors.Is(err, bracket.ErrInvalidRequest) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			logger.WithError(err).Error("Bracket creation failed")
			http.Error(w, "bracket creation failed", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, toBracketResponse(b))
	}
}

// GetBracketHandler returns one live bracket by id.
func GetBracketHandler(engine bracketReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bracketID := chi.URLParam(r, "bracketID")

		b := engine.GetBracket(bracketID)
		if b == nil {
			http.Error(w, "bracket not found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, toBracketResponse(b))
	}
}

// ListBracketsHandler returns every live (non-terminal) bracket.
func ListBracketsHandler(engine bracketReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		brackets := engine.ListBrackets()

		out := make([]bracketResponse, 0, len(brackets))
		for _, b := range brackets {
			out = append(out, toBracketResponse(b))
		}

		writeJSON(w, http.StatusOK, out)
	}
}

// ModifyBracketHandler applies a targeted modification descriptor.
func ModifyBracketHandler(engine bracketModifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bracketID := chi.URLParam(r, "bracketID")

		var mod bracket.Modification
		if err := json.NewDecoder(r.Body).Decode(&mod); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if err := engine.ModifyBracketOrder(r.Context(), bracketID, mod); err != nil {
			writeMutationError(w, err, "bracket modification failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// CancelBracketHandler tears down the whole bracket.
func CancelBracketHandler(engine bracketModifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bracketID := chi.URLParam(r, "bracketID")

		if err := engine.CancelBracketOrder(r.Context(), bracketID); err != nil {
			writeMutationError(w, err, "bracket cancellation failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

// ApplyFillHandler is the push-style callback for execution gateways that
// deliver fill reports over HTTP instead of being polled.
func ApplyFillHandler(engine fillApplier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var report bracket.FillReport
		if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if report.BracketID == "" {
			http.Error(w, "bracket_id is required", http.StatusBadRequest)
			return
		}

		if err := engine.ApplyFillReport(r.Context(), report); err != nil {
			logger.WithError(err).Error("Fill reconciliation failed")
			http.Error(w, "fill reconciliation failed", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

type tickRequest struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// PriceTickHandler routes one pushed price tick through the trailing-stop
// recalculator and reports how many triggers moved.
func PriceTickHandler(engine tickRouter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tick tickRequest
		if err := json.NewDecoder(r.Body).Decode(&tick); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if tick.Symbol == "" {
			http.Error(w, "symbol is required", http.StatusBadRequest)
			return
		}

		updated := engine.OnPriceTick(r.Context(), tick.Symbol, tick.Price)
		writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
	}
}

func writeMutationError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, bracket.ErrBracketNotFound):
		http.Error(w, "bracket not found", http.StatusNotFound)
	case errors.Is(err, bracket.ErrBracketTerminal):
		http.Error(w, "bracket is terminal", http.StatusConflict)
	default:
		logger.WithError(err).Error(msg)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}
