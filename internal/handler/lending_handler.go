package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/bradspelsmeny/internal/input"
	"github.com/hitoshi/bradspelsmeny/internal/lending"
	"github.com/hitoshi/bradspelsmeny/internal/middleware"
	"github.com/hitoshi/bradspelsmeny/internal/model"
)

// LendingServiceInterface は貸出ハンドラーが必要とするサービスインターフェース。
// lending.Service が実装する。
type LendingServiceInterface interface {
	Lend(ctx context.Context, cmd lending.LendCommand) error
	Return(ctx context.Context, cmd lending.ReturnCommand) error
	PlaceOrder(ctx context.Context, cmd lending.OrderCommand) (int64, error)
	CompleteOrder(ctx context.Context, orderID int64) (*lending.OrderCompletion, error)
	CancelOrder(ctx context.Context, orderID int64) error
	ListOrders(ctx context.Context) ([]*model.GameOrder, error)
}

// LendingHandler は貸出・返却・テーブル注文のHTTPハンドラー。
type LendingHandler struct {
	service LendingServiceInterface
}

// NewLendingHandler はLendingHandlerを生成する。
func NewLendingHandler(service LendingServiceInterface) *LendingHandler {
	return &LendingHandler{service: service}
}

// lendRequest は貸出リクエストのボディ。
type lendRequest struct {
	UserID input.Int64 `json:"userId"`
	Note   string      `json:"note"`
}

// returnRequest は返却リクエストのボディ。
type returnRequest struct {
	ReturnNotes string `json:"returnNotes"`
}

// orderRequest はテーブル注文リクエストのボディ。
type orderRequest struct {
	GameID    input.Int64  `json:"gameId"`
	TableID   input.String `json:"tableId"`
	FirstName string       `json:"firstName"`
	LastName  string       `json:"lastName"`
	Phone     input.String `json:"phone"`
}

// orderCreatedResponse は注文作成のレスポンス。
type orderCreatedResponse struct {
	OrderID int64 `json:"orderId"`
}

// orderCompletedResponse は注文完了のレスポンス。
type orderCompletedResponse struct {
	Message      string `json:"message"`
	OrderID      int64  `json:"orderId"`
	GameID       int64  `json:"gameId"`
	UserID       int64  `json:"userId"`
	GuestCreated bool   `json:"guestCreated"`
}

// orderResponse は未処理注文のAPIレスポンス。
type orderResponse struct {
	ID        int64     `json:"id"`
	GameID    int64     `json:"game_id"`
	TableID   string    `json:"table_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// Lend はゲームを貸し出す。
// POST /lend/{gameId}
func (h *LendingHandler) Lend(w http.ResponseWriter, r *http.Request) {
	gameID, raw, ok := pathID(r, "gameId")
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidGameIDError(raw))
		return
	}

	var req lendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	if !req.UserID.Set {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidUserIDError("userId が指定されていません"))
		return
	}
	if !req.UserID.Valid {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidUserIDError(req.UserID.Raw))
		return
	}

	err := h.service.Lend(r.Context(), lending.LendCommand{
		GameID: gameID,
		UserID: req.UserID.Value,
		Note:   input.Text(req.Note),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Game lent out"})
}

// Return はゲームを返却する。返却者はアクセストークンの利用者。
// POST /return/{gameId}
func (h *LendingHandler) Return(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	gameID, raw, ok := pathID(r, "gameId")
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidGameIDError(raw))
		return
	}

	var req returnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	err = h.service.Return(r.Context(), lending.ReturnCommand{
		GameID: gameID,
		UserID: userID,
		Notes:  input.Text(req.ReturnNotes),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Game returned"})
}

// PlaceOrder はテーブルからのゲーム注文を受け付ける。認証不要。
// POST /order-game
func (h *LendingHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	// 数値として解釈できないgameIdは欠落として扱う
	var gameID int64
	if req.GameID.Valid {
		gameID = req.GameID.Value
	}

	orderID, err := h.service.PlaceOrder(r.Context(), lending.OrderCommand{
		GameID:    gameID,
		TableID:   input.Text(string(req.TableID)),
		FirstName: input.Text(req.FirstName),
		LastName:  input.Text(req.LastName),
		Phone:     input.Text(string(req.Phone)),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, orderCreatedResponse{OrderID: orderID})
}

// CompleteOrder は注文を貸出に変換する。
// POST /order-game/{orderId}/complete
func (h *LendingHandler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, raw, ok := pathID(r, "orderId")
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidOrderIDError(raw))
		return
	}

	result, err := h.service.CompleteOrder(r.Context(), orderID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, orderCompletedResponse{
		Message:      "Order completed and game lent out",
		OrderID:      result.OrderID,
		GameID:       result.GameID,
		UserID:       result.UserID,
		GuestCreated: result.GuestCreated,
	})
}

// CancelOrder は未処理の注文を破棄する。
// DELETE /order-game/{orderId}
func (h *LendingHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, raw, ok := pathID(r, "orderId")
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidOrderIDError(raw))
		return
	}

	if err := h.service.CancelOrder(r.Context(), orderID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListOrders は未処理の注文を古い順に返す。
// GET /order-game
func (h *LendingHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = orderResponse{
			ID:        o.ID,
			GameID:    o.GameID,
			TableID:   o.TableID,
			FirstName: o.FirstName,
			LastName:  o.LastName,
			Phone:     o.Phone,
			CreatedAt: o.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
