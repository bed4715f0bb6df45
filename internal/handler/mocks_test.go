package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bradspelsmeny/internal/auth"
	"github.com/hitoshi/bradspelsmeny/internal/lending"
	"github.com/hitoshi/bradspelsmeny/internal/middleware"
	"github.com/hitoshi/bradspelsmeny/internal/model"
)

// --- モック定義 ---

// mockLendingService はLendingServiceInterfaceのモック実装。
type mockLendingService struct {
	lendFn          func(ctx context.Context, cmd lending.LendCommand) error
	returnFn        func(ctx context.Context, cmd lending.ReturnCommand) error
	placeOrderFn    func(ctx context.Context, cmd lending.OrderCommand) (int64, error)
	completeOrderFn func(ctx context.Context, orderID int64) (*lending.OrderCompletion, error)
	cancelOrderFn   func(ctx context.Context, orderID int64) error
	listOrdersFn    func(ctx context.Context) ([]*model.GameOrder, error)
}

func (m *mockLendingService) Lend(ctx context.Context, cmd lending.LendCommand) error {
	if m.lendFn != nil {
		return m.lendFn(ctx, cmd)
	}
	return nil
}

func (m *mockLendingService) Return(ctx context.Context, cmd lending.ReturnCommand) error {
	if m.returnFn != nil {
		return m.returnFn(ctx, cmd)
	}
	return nil
}

func (m *mockLendingService) PlaceOrder(ctx context.Context, cmd lending.OrderCommand) (int64, error) {
	if m.placeOrderFn != nil {
		return m.placeOrderFn(ctx, cmd)
	}
	return 1, nil
}

func (m *mockLendingService) CompleteOrder(ctx context.Context, orderID int64) (*lending.OrderCompletion, error) {
	if m.completeOrderFn != nil {
		return m.completeOrderFn(ctx, orderID)
	}
	return &lending.OrderCompletion{OrderID: orderID}, nil
}

func (m *mockLendingService) CancelOrder(ctx context.Context, orderID int64) error {
	if m.cancelOrderFn != nil {
		return m.cancelOrderFn(ctx, orderID)
	}
	return nil
}

func (m *mockLendingService) ListOrders(ctx context.Context) ([]*model.GameOrder, error) {
	if m.listOrdersFn != nil {
		return m.listOrdersFn(ctx)
	}
	return nil, nil
}

// mockGameService はGameServiceInterfaceのモック実装。
type mockGameService struct {
	listGamesFn   func(ctx context.Context, filter model.GameFilter) ([]*model.Game, error)
	getGameFn     func(ctx context.Context, gameID int64) (*model.Game, error)
	listHistoryFn func(ctx context.Context, gameID int64) ([]*model.GameHistoryEntry, error)
	importGamesFn func(ctx context.Context, games []*model.Game) ([]int64, error)
}

func (m *mockGameService) ListGames(ctx context.Context, filter model.GameFilter) ([]*model.Game, error) {
	if m.listGamesFn != nil {
		return m.listGamesFn(ctx, filter)
	}
	return nil, nil
}

func (m *mockGameService) GetGame(ctx context.Context, gameID int64) (*model.Game, error) {
	if m.getGameFn != nil {
		return m.getGameFn(ctx, gameID)
	}
	return &model.Game{ID: gameID}, nil
}

func (m *mockGameService) ListHistory(ctx context.Context, gameID int64) ([]*model.GameHistoryEntry, error) {
	if m.listHistoryFn != nil {
		return m.listHistoryFn(ctx, gameID)
	}
	return nil, nil
}

func (m *mockGameService) ImportGames(ctx context.Context, games []*model.Game) ([]int64, error) {
	if m.importGamesFn != nil {
		return m.importGamesFn(ctx, games)
	}
	return nil, errors.New("not implemented")
}

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn  func(ctx context.Context, in auth.RegisterInput) (*auth.Tokens, error)
	loginFn     func(ctx context.Context, email, password string) (*auth.Tokens, error)
	refreshFn   func(ctx context.Context, refreshToken string) (*auth.Tokens, error)
	logoutFn    func(ctx context.Context, refreshToken string) error
	logoutAllFn func(ctx context.Context, userID int64) error
	meFn        func(ctx context.Context, userID int64) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*auth.Tokens, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.Tokens, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*auth.Tokens, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) Logout(ctx context.Context, refreshToken string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, refreshToken)
	}
	return nil
}

func (m *mockAuthService) LogoutAll(ctx context.Context, userID int64) error {
	if m.logoutAllFn != nil {
		return m.logoutAllFn(ctx, userID)
	}
	return nil
}

func (m *mockAuthService) Me(ctx context.Context, userID int64) (*model.User, error) {
	if m.meFn != nil {
		return m.meFn(ctx, userID)
	}
	return &model.User{ID: userID, Role: model.RoleUser}, nil
}

// --- テストヘルパー ---

// withIdentity はテスト用にリクエストコンテキストへ認証済み利用者を注入する。
func withIdentity(r *http.Request, userID int64, role model.Role) *http.Request {
	ctx := middleware.ContextWithIdentity(r.Context(), model.Identity{UserID: userID, Role: role})
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}
