package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"copytrader/src/bracket"
	"copytrader/src/model"
)

type mockEngine struct {
	brackets map[string]*bracket.BracketOrder

	createErr error
	modifyErr error
	cancelErr error
	fillErr   error

	createdReq   *bracket.CreateRequest
	modification *bracket.Modification
	fillReport   *bracket.FillReport
	tickSymbol   string
	tickPrice    decimal.Decimal
	tickUpdated  int
}

func (m *mockEngine) CreateBracketOrder(_ context.Context, req bracket.CreateRequest) (*bracket.BracketOrder, error) {
	m.createdReq = &req
	if m.createErr != nil {
		return nil, m.createErr
	}
	return sampleBracket("b-1"), nil
}

func (m *mockEngine) GetBracket(bracketID string) *bracket.BracketOrder {
	return m.brackets[bracketID]
}

func (m *mockEngine) ListBrackets() []*bracket.BracketOrder {
	out := make([]*bracket.BracketOrder, 0, len(m.brackets))
	for _, b := range m.brackets {
		out = append(out, b)
	}
	return out
}

func (m *mockEngine) ModifyBracketOrder(_ context.Context, bracketID string, mod bracket.Modification) error {
	m.modification = &mod
	return m.modifyErr
}

func (m *mockEngine) CancelBracketOrder(_ context.Context, bracketID string) error {
	return m.cancelErr
}

func (m *mockEngine) ApplyFillReport(_ context.Context, report bracket.FillReport) error {
	m.fillReport = &report
	return m.fillErr
}

func (m *mockEngine) OnPriceTick(_ context.Context, symbol string, price decimal.Decimal) int {
	m.tickSymbol = symbol
	m.tickPrice = price
	return m.tickUpdated
}

func sampleBracket(id string) *bracket.BracketOrder {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &bracket.BracketOrder{
		ID:     id,
		UserID: 7,
		Status: model.BracketStatusPending,
		Parent: &model.Order{
			ID:        "o-1",
			BracketID: id,
			Symbol:    "NIFTY24SEPFUT",
			Side:      model.SideBuy,
			Role:      model.OrderRoleParent,
		},
		Children: map[string]*model.Order{
			model.OrderRoleStopLoss: {
				ID:        "o-2",
				BracketID: id,
				Side:      model.SideSell,
				Role:      model.OrderRoleStopLoss,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateBracketHandler_Success(t *testing.T) {
	mock := &mockEngine{}
	handler := CreateBracketHandler(mock)

	body := `{"symbol":"NIFTY24SEPFUT","side":"buy","quantity":"50","stop_loss_price":"95"}`
	req := httptest.NewRequest(http.MethodPost, "/brackets", strings.NewReader(body))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if mock.createdReq == nil || mock.createdReq.Symbol != "NIFTY24SEPFUT" {
		t.Fatalf("expected the decoded request forwarded to the engine, got %+v", mock.createdReq)
	}
	if !strings.Contains(rr.Body.String(), `"id":"b-1"`) {
		t.Fatalf("expected bracket payload in response, got %s", rr.Body.String())
	}
}

func TestCreateBracketHandler_InvalidBody(t *testing.T) {
	handler := CreateBracketHandler(&mockEngine{})

	req := httptest.NewRequest(http.MethodPost, "/brackets", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCreateBracketHandler_ValidationError(t *testing.T) {
	mock := &mockEngine{createErr: fmt.Errorf("%w: quantity must be positive", bracket.ErrInvalidRequest)}
	handler := CreateBracketHandler(mock)

	req := httptest.NewRequest(http.MethodPost, "/brackets", strings.NewReader(`{"symbol":"X"}`))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCreateBracketHandler_EngineError(t *testing.T) {
	mock := &mockEngine{createErr: assert.AnError}
	handler := CreateBracketHandler(mock)

	req := httptest.NewRequest(http.MethodPost, "/brackets", strings.NewReader(`{"symbol":"X"}`))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

func TestGetBracketHandler(t *testing.T) {
	mock := &mockEngine{brackets: map[string]*bracket.BracketOrder{"b-1": sampleBracket("b-1")}}
	handler := GetBracketHandler(mock)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/brackets/b-1", nil), "bracketID", "b-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"parent_order"`) {
		t.Fatalf("expected parent leg in payload, got %s", rr.Body.String())
	}

	req = withURLParam(httptest.NewRequest(http.MethodGet, "/brackets/missing", nil), "bracketID", "missing")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestListBracketsHandler(t *testing.T) {
	mock := &mockEngine{brackets: map[string]*bracket.BracketOrder{
		"b-1": sampleBracket("b-1"),
		"b-2": sampleBracket("b-2"),
	}}
	handler := ListBracketsHandler(mock)

	req := httptest.NewRequest(http.MethodGet, "/brackets", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"b-1"`) || !strings.Contains(rr.Body.String(), `"b-2"`) {
		t.Fatalf("expected both brackets listed, got %s", rr.Body.String())
	}
}

func TestModifyBracketHandler(t *testing.T) {
	mock := &mockEngine{}
	handler := ModifyBracketHandler(mock)

	body := `{"kind":"stop_loss","trigger_price":"92"}`
	req := withURLParam(httptest.NewRequest(http.MethodPatch, "/brackets/b-1", strings.NewReader(body)), "bracketID", "b-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if mock.modification == nil || mock.modification.Kind != bracket.ModifyStopLoss {
		t.Fatalf("expected stop_loss modification forwarded, got %+v", mock.modification)
	}
	if !mock.modification.TriggerPrice.Valid || !mock.modification.TriggerPrice.Decimal.Equal(decimal.RequireFromString("92")) {
		t.Fatalf("expected trigger price 92, got %+v", mock.modification.TriggerPrice)
	}
}

func TestModifyBracketHandler_Errors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", bracket.ErrBracketNotFound, http.StatusNotFound},
		{"terminal", bracket.ErrBracketTerminal, http.StatusConflict},
		{"other", assert.AnError, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := ModifyBracketHandler(&mockEngine{modifyErr: tc.err})

			req := withURLParam(httptest.NewRequest(http.MethodPatch, "/brackets/b-1", strings.NewReader(`{"kind":"stop_loss"}`)), "bracketID", "b-1")
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.code {
				t.Fatalf("expected status %d, got %d", tc.code, rr.Code)
			}
		})
	}
}

func TestCancelBracketHandler(t *testing.T) {
	handler := CancelBracketHandler(&mockEngine{})

	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/brackets/b-1", nil), "bracketID", "b-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	handler = CancelBracketHandler(&mockEngine{cancelErr: bracket.ErrBracketNotFound})
	req = withURLParam(httptest.NewRequest(http.MethodDelete, "/brackets/missing", nil), "bracketID", "missing")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestApplyFillHandler(t *testing.T) {
	mock := &mockEngine{}
	handler := ApplyFillHandler(mock)

	body := `{"bracket_id":"b-1","filled_quantity":"50","avg_fill_price":"101.5"}`
	req := httptest.NewRequest(http.MethodPost, "/fills", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}
	if mock.fillReport == nil || mock.fillReport.BracketID != "b-1" {
		t.Fatalf("expected fill report forwarded, got %+v", mock.fillReport)
	}
	if !mock.fillReport.FilledQuantity.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("expected filled qty 50, got %s", mock.fillReport.FilledQuantity.String())
	}
}

func TestApplyFillHandler_MissingBracketID(t *testing.T) {
	handler := ApplyFillHandler(&mockEngine{})

	req := httptest.NewRequest(http.MethodPost, "/fills", strings.NewReader(`{"filled_quantity":"50"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestPriceTickHandler(t *testing.T) {
	mock := &mockEngine{tickUpdated: 2}
	handler := PriceTickHandler(mock)

	req := httptest.NewRequest(http.MethodPost, "/ticks", strings.NewReader(`{"symbol":"NIFTY","price":"120"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if mock.tickSymbol != "NIFTY" || !mock.tickPrice.Equal(decimal.RequireFromString("120")) {
		t.Fatalf("expected tick forwarded, got symbol=%s price=%s", mock.tickSymbol, mock.tickPrice.String())
	}
	if !strings.Contains(rr.Body.String(), `"updated":2`) {
		t.Fatalf("expected updated count in response, got %s", rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/ticks", strings.NewReader(`{"price":"120"}`))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for missing symbol, got %d", rr.Code)
	}
}
