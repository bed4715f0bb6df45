package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/bradspelsmeny/internal/lending"
	"github.com/hitoshi/bradspelsmeny/internal/model"
)

// --- POST /lend/{gameId} ---

func TestLendingHandler_Lend_Success(t *testing.T) {
	var got lending.LendCommand
	svc := &mockLendingService{
		lendFn: func(ctx context.Context, cmd lending.LendCommand) error {
			got = cmd
			return nil
		},
	}
	h := NewLendingHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/lend/9", bytes.NewBufferString(`{"userId": "12", "note": " <b>Bord 4</b> "}`))
	req = withChiURLParam(req, "gameId", "9")
	w := httptest.NewRecorder()

	h.Lend(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if got.GameID != 9 || got.UserID != 12 {
		t.Errorf("cmd = %+v, want GameID=9 UserID=12", got)
	}
	if got.Note != "Bord 4" {
		t.Errorf("note = %q, want %q", got.Note, "Bord 4")
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["message"] == "" {
		t.Error("expected message in response")
	}
}

func TestLendingHandler_Lend_NumericUserID(t *testing.T) {
	var got lending.LendCommand
	svc := &mockLendingService{
		lendFn: func(ctx context.Context, cmd lending.LendCommand) error {
			got = cmd
			return nil
		},
	}
	h := NewLendingHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/lend/3", bytes.NewBufferString(`{"userId": 5}`))
	req = withChiURLParam(req, "gameId", "3")
	w := httptest.NewRecorder()

	h.Lend(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.UserID != 5 {
		t.Errorf("UserID = %d, want 5", got.UserID)
	}
}

func TestLendingHandler_Lend_InvalidUserID(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing", `{}`},
		{"empty body", ``},
		{"null", `{"userId": null}`},
		{"non-numeric", `{"userId": "abc"}`},
		{"zero", `{"userId": 0}`},
		{"negative", `{"userId": -4}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockLendingService{
				lendFn: func(ctx context.Context, cmd lending.LendCommand) error {
					t.Fatal("service should not be called")
					return nil
				},
			}
			h := NewLendingHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/lend/1", strings.NewReader(tt.body))
			req = withChiURLParam(req, "gameId", "1")
			w := httptest.NewRecorder()

			h.Lend(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if code := parseAPIErrorResponse(t, w)["code"]; code != model.ErrCodeInvalidUserID {
				t.Errorf("code = %q, want %q", code, model.ErrCodeInvalidUserID)
			}
		})
	}
}

func TestLendingHandler_Lend_InvalidGameID(t *testing.T) {
	h := NewLendingHandler(&mockLendingService{})

	req := httptest.NewRequest(http.MethodPost, "/lend/abc", bytes.NewBufferString(`{"userId": 1}`))
	req = withChiURLParam(req, "gameId", "abc")
	w := httptest.NewRecorder()

	h.Lend(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := parseAPIErrorResponse(t, w)["code"]; code != model.ErrCodeInvalidGameID {
		t.Errorf("code = %q, want %q", code, model.ErrCodeInvalidGameID)
	}
}

func TestLendingHandler_Lend_MalformedJSON(t *testing.T) {
	h := NewLendingHandler(&mockLendingService{})

	req := httptest.NewRequest(http.MethodPost, "/lend/1", bytes.NewBufferString(`{"userId":`))
	req = withChiURLParam(req, "gameId", "1")
	w := httptest.NewRecorder()

	h.Lend(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := parseAPIErrorResponse(t, w)["code"]; code != model.ErrCodeInvalidRequest {
		t.Errorf("code = %q, want %q", code, model.ErrCodeInvalidRequest)
	}
}

func TestLendingHandler_Lend_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"game not found", model.NewGameNotFoundError(1), http.StatusNotFound, model.ErrCodeGameNotFound},
		{"unknown user", model.NewInvalidUserIDError("ユーザー 1 は存在しません"), http.StatusBadRequest, model.ErrCodeInvalidUserID},
		{"persistence failure", errors.New("pq: connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockLendingService{
				lendFn: func(ctx context.Context, cmd lending.LendCommand) error {
					return tt.err
				},
			}
			h := NewLendingHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/lend/1", bytes.NewBufferString(`{"userId": 1}`))
			req = withChiURLParam(req, "gameId", "1")
			w := httptest.NewRecorder()

			h.Lend(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := parseAPIErrorResponse(t, w)
			if body["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", body["code"], tt.wantCode)
			}
			// 内部エラーの詳細はレスポンスに含めない
			if strings.Contains(body["message"], "pq:") {
				t.Errorf("internal detail leaked: %q", body["message"])
			}
		})
	}
}

// --- POST /return/{gameId} ---

func TestLendingHandler_Return_UsesCallerIdentity(t *testing.T) {
	var got lending.ReturnCommand
	svc := &mockLendingService{
		returnFn: func(ctx context.Context, cmd lending.ReturnCommand) error {
			got = cmd
			return nil
		},
	}
	h := NewLendingHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/return/4", bytes.NewBufferString(`{"returnNotes": "saknar en tärning"}`))
	req = withChiURLParam(req, "gameId", "4")
	req = withIdentity(req, 21, model.RoleUser)
	w := httptest.NewRecorder()

	h.Return(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.GameID != 4 || got.UserID != 21 || got.Notes != "saknar en tärning" {
		t.Errorf("cmd = %+v", got)
	}
}

func TestLendingHandler_Return_EmptyBody(t *testing.T) {
	called := false
	svc := &mockLendingService{
		returnFn: func(ctx context.Context, cmd lending.ReturnCommand) error {
			called = true
			if cmd.Notes != "" {
				t.Errorf("notes = %q, want empty", cmd.Notes)
			}
			return nil
		},
	}
	h := NewLendingHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/return/4", nil)
	req = withChiURLParam(req, "gameId", "4")
	req = withIdentity(req, 2, model.RoleUser)
	w := httptest.NewRecorder()

	h.Return(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !called {
		t.Error("service should be called")
	}
}

func TestLendingHandler_Return_Unauthenticated(t *testing.T) {
	h := NewLendingHandler(&mockLendingService{})

	req := httptest.NewRequest(http.MethodPost, "/return/4", nil)
	req = withChiURLParam(req, "gameId", "4")
	w := httptest.NewRecorder()

	h.Return(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestLendingHandler_Return_PersistenceFailure(t *testing.T) {
	svc := &mockLendingService{
		returnFn: func(ctx context.Context, cmd lending.ReturnCommand) error {
			return errors.New("tx aborted")
		},
	}
	h := NewLendingHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/return/4", nil)
	req = withChiURLParam(req, "gameId", "4")
	req = withIdentity(req, 2, model.RoleUser)
	w := httptest.NewRecorder()

	h.Return(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// --- POST /order-game ---

func TestLendingHandler_PlaceOrder_Success(t *testing.T) {
	var got lending.OrderCommand
	svc := &mockLendingService{
		placeOrderFn: func(ctx context.Context, cmd lending.OrderCommand) (int64, error) {
			got = cmd
			return 77, nil
		},
	}
	h := NewLendingHandler(svc)

	body := `{"gameId": "5", "tableId": 12, "firstName": "Anna", "lastName": "Svensson", "phone": "070-123 45 67"}`
	req := httptest.NewRequest(http.MethodPost, "/order-game", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	h.PlaceOrder(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]int64
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["orderId"] != 77 {
		t.Errorf("orderId = %d, want 77", resp["orderId"])
	}

	want := lending.OrderCommand{GameID: 5, TableID: "12", FirstName: "Anna", LastName: "Svensson", Phone: "070-123 45 67"}
	if got != want {
		t.Errorf("cmd = %+v, want %+v", got, want)
	}
}

func TestLendingHandler_PlaceOrder_MissingFields(t *testing.T) {
	svc := &mockLendingService{
		placeOrderFn: func(ctx context.Context, cmd lending.OrderCommand) (int64, error) {
			if cmd.GameID != 0 {
				t.Errorf("malformed gameId should be passed as 0, got %d", cmd.GameID)
			}
			return 0, model.NewMissingOrderFieldsError([]string{"gameId", "phone"})
		},
	}
	h := NewLendingHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/order-game", bytes.NewBufferString(`{"gameId": "x", "tableId": "1", "firstName": "A", "lastName": "B"}`))
	w := httptest.NewRecorder()

	h.PlaceOrder(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := parseAPIErrorResponse(t, w)["code"]; code != model.ErrCodeMissingOrderFields {
		t.Errorf("code = %q, want %q", code, model.ErrCodeMissingOrderFields)
	}
}

// --- POST /order-game/{orderId}/complete ---

func TestLendingHandler_CompleteOrder_Success(t *testing.T) {
	svc := &mockLendingService{
		completeOrderFn: func(ctx context.Context, orderID int64) (*lending.OrderCompletion, error) {
			return &lending.OrderCompletion{OrderID: orderID, GameID: 3, UserID: 40, GuestCreated: true}, nil
		},
	}
	h := NewLendingHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/order-game/8/complete", nil)
	req = withChiURLParam(req, "orderId", "8")
	w := httptest.NewRecorder()

	h.CompleteOrder(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp orderCompletedResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Message == "" || resp.OrderID != 8 || resp.UserID != 40 || !resp.GuestCreated {
		t.Errorf("response = %+v", resp)
	}
}

func TestLendingHandler_CompleteOrder_Errors(t *testing.T) {
	tests := []struct {
		name       string
		orderID    string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid id", "abc", nil, http.StatusBadRequest, model.ErrCodeInvalidOrderID},
		{"not found", "8", model.NewOrderNotFoundError(8), http.StatusNotFound, model.ErrCodeOrderNotFound},
		{"missing user info", "8", model.NewMissingUserInfoError(), http.StatusBadRequest, model.ErrCodeMissingUserInfo},
		{"persistence failure", "8", errors.New("deadlock detected"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockLendingService{
				completeOrderFn: func(ctx context.Context, orderID int64) (*lending.OrderCompletion, error) {
					return nil, tt.err
				},
			}
			h := NewLendingHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/order-game/"+tt.orderID+"/complete", nil)
			req = withChiURLParam(req, "orderId", tt.orderID)
			w := httptest.NewRecorder()

			h.CompleteOrder(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if code := parseAPIErrorResponse(t, w)["code"]; code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

// --- DELETE /order-game/{orderId}, GET /order-game ---

func TestLendingHandler_CancelOrder(t *testing.T) {
	svc := &mockLendingService{
		cancelOrderFn: func(ctx context.Context, orderID int64) error {
			if orderID == 404 {
				return model.NewOrderNotFoundError(orderID)
			}
			return nil
		},
	}
	h := NewLendingHandler(svc)

	for _, tc := range []struct {
		id   string
		want int
	}{
		{"5", http.StatusNoContent},
		{"404", http.StatusNotFound},
		{"0", http.StatusBadRequest},
	} {
		req := httptest.NewRequest(http.MethodDelete, "/order-game/"+tc.id, nil)
		req = withChiURLParam(req, "orderId", tc.id)
		w := httptest.NewRecorder()

		h.CancelOrder(w, req)

		if w.Code != tc.want {
			t.Errorf("order %s: status = %d, want %d", tc.id, w.Code, tc.want)
		}
	}
}

func TestLendingHandler_ListOrders(t *testing.T) {
	created := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	svc := &mockLendingService{
		listOrdersFn: func(ctx context.Context) ([]*model.GameOrder, error) {
			return []*model.GameOrder{
				{ID: 1, GameID: 2, TableID: "7", FirstName: "Anna", LastName: "S", Phone: "0701234567", CreatedAt: created},
			}, nil
		},
	}
	h := NewLendingHandler(svc)

	w := httptest.NewRecorder()
	h.ListOrders(w, httptest.NewRequest(http.MethodGet, "/order-game", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("len = %d, want 1", len(resp))
	}
	if resp[0]["table_id"] != "7" || resp[0]["game_id"] != float64(2) {
		t.Errorf("order = %v", resp[0])
	}
}

func TestLendingHandler_ListOrders_EmptyIsArray(t *testing.T) {
	h := NewLendingHandler(&mockLendingService{})

	w := httptest.NewRecorder()
	h.ListOrders(w, httptest.NewRequest(http.MethodGet, "/order-game", nil))

	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}
