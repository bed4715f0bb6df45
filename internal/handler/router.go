package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/bradspelsmeny/internal/middleware"
	"github.com/hitoshi/bradspelsmeny/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// メトリクス（nilの場合は記録しない）
	HTTPMetrics    middleware.HTTPMetricsRecorder
	MetricsHandler http.Handler

	// ヘルスチェック
	DB Pinger

	// サービス
	AuthService    AuthServiceInterface
	LendingService LendingServiceInterface
	GameService    GameServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → RealIP → Logging → Metrics
//
// 認証が必要なルートではさらに Auth → RateLimit(General) を、
// スタッフ専用ルートでは RequireRole(admin) を適用する。
// 未認証で呼べる書き込みルートには RateLimit(Public) を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "NOT_FOUND",
			Message:  "指定されたエンドポイントは存在しません。",
			Category: "system",
			Action:   "URLを確認してください。",
		})
	})

	systemHandler := NewSystemHandler(deps.DB)
	authHandler := NewAuthHandler(deps.AuthService)
	lendingHandler := NewLendingHandler(deps.LendingService)
	gameHandler := NewGameHandler(deps.GameService)

	authMW := middleware.NewAuthMiddleware(deps.Authenticator)
	adminOnly := middleware.RequireRole(model.RoleAdmin)

	// --- 認証不要のルート ---
	r.Get("/", systemHandler.Root)
	r.Get("/ping", systemHandler.Ping)
	r.Get("/health", systemHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/games", func(r chi.Router) {
		r.Get("/", gameHandler.ListGames)
		r.Get("/{gameId}", gameHandler.GetGame)
		r.Get("/{gameId}/history", gameHandler.ListHistory)
	})

	// 公開の書き込みルート（IP単位のレート制限）
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.PublicMiddleware())

		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/refresh", authHandler.Refresh)

		// テーブルからの注文
		r.Post("/order-game", lendingHandler.PlaceOrder)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(authMW)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/auth/me", authHandler.Me)
		r.Post("/auth/logout", authHandler.Logout)

		r.Post("/return/{gameId}", lendingHandler.Return)

		// スタッフ専用
		r.Group(func(r chi.Router) {
			r.Use(adminOnly)

			r.Post("/lend/{gameId}", lendingHandler.Lend)
			r.Post("/import", gameHandler.ImportGames)

			r.Get("/order-game", lendingHandler.ListOrders)
			r.Post("/order-game/{orderId}/complete", lendingHandler.CompleteOrder)
			r.Delete("/order-game/{orderId}", lendingHandler.CancelOrder)
		})
	})

	return r
}
