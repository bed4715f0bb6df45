package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/bradspelsmeny/internal/auth"
	"github.com/hitoshi/bradspelsmeny/internal/badge"
	"github.com/hitoshi/bradspelsmeny/internal/config"
	"github.com/hitoshi/bradspelsmeny/internal/database"
	"github.com/hitoshi/bradspelsmeny/internal/handler"
	"github.com/hitoshi/bradspelsmeny/internal/lending"
	"github.com/hitoshi/bradspelsmeny/internal/logger"
	"github.com/hitoshi/bradspelsmeny/internal/metrics"
	"github.com/hitoshi/bradspelsmeny/internal/middleware"
	"github.com/hitoshi/bradspelsmeny/internal/notify"
	"github.com/hitoshi/bradspelsmeny/internal/repository"
	"github.com/hitoshi/bradspelsmeny/internal/worker/cleanup"
)

// envFile はローカル開発用の環境変数ファイル。存在しなくてもよい。
const envFile = ".env"

// Init はアプリケーションの初期化を行う。
// .env と環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .env の読み込み（既存の環境変数は上書きしない）
	if err := loadEnvFile(envFile); err != nil {
		slog.Warn("failed to load env file",
			slog.String("file", envFile),
			slog.String("error", err.Error()),
		)
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// loadEnvFile は環境変数ファイルを読み込む。ファイルがない場合はエラーにしない。
func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		return runHealthcheck(healthcheckPort())
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// services はAPIサーバーが使用するサービス群。
type services struct {
	tokens    *auth.TokenService
	auth      *auth.Service
	lending   *lending.Service
	games     handler.GameServiceInterface
	publisher notify.Publisher
}

// buildServices はリポジトリとドメインサービスをワイヤリングする。
func buildServices(db *sql.DB, cfg *config.Config, collector *metrics.Collector, log *slog.Logger) *services {
	// リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	refreshRepo := repository.NewPostgresRefreshTokenRepo(db)
	gameRepo := repository.NewPostgresGameRepo(db)
	orderRepo := repository.NewPostgresOrderRepo(db)
	badgeStore := repository.NewPostgresBadgeStore(db)
	lendingStore := repository.NewPostgresLendingStore(db)

	// イベント配信（NATS未設定時は何もしない）
	publisher := newPublisher(cfg, log)

	// ドメインサービス
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL)
	badgeService := badge.NewService(badgeStore, publisher, collector, log)

	return &services{
		tokens:    tokens,
		auth:      auth.NewService(userRepo, refreshRepo, tokens, cfg.RefreshTokenTTL),
		lending:   lending.NewService(lendingStore, gameRepo, orderRepo, badgeService, collector, log),
		games:     handler.NewGameServiceAdapter(gameRepo),
		publisher: publisher,
	}
}

// newPublisher はNATS_URLが設定されていればNATSに接続する。
// 接続できない場合は警告を出してイベント配信を無効にする。
func newPublisher(cfg *config.Config, log *slog.Logger) notify.Publisher {
	if cfg.NATSURL == "" {
		return notify.NopPublisher{}
	}

	publisher, err := notify.Connect(cfg.NATSURL, cfg.NATSToken, cfg.NATSSubjectPrefix)
	if err != nil {
		log.Warn("NATS unavailable, badge events will not be published",
			slog.String("error", err.Error()),
		)
		return notify.NopPublisher{}
	}

	log.Info("connected to NATS", slog.String("subject", publisher.BadgeAwardedSubject()))
	return publisher
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. サービスの構築
	svc := buildServices(db, cfg, collector, log)
	defer svc.publisher.Close()

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitPublic),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Authenticator:     svc.tokens,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            log,

		HTTPMetrics:    collector,
		MetricsHandler: metrics.Handler(registry),

		DB: db,

		AuthService:    svc.auth,
		LendingService: svc.lending,
		GameService:    svc.games,
	})

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、クリーンアップジョブをCLEANUP_INTERVALごとに実行する。
// ctxがキャンセルされる（SIGINT/SIGTERM）と停止する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("database connection established (worker)")

	// 2. クリーンアップジョブの初期化
	// ワーカーは /metrics を公開しないため削除件数はログのみに記録する
	job := cleanup.NewCleanupJob(db, log, nil)
	job.OrderRetention = cfg.OrderRetention

	log.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("order_retention", cfg.OrderRetention),
	)

	// 3. ctxがキャンセルされるまでブロックする
	job.Start(ctx, cfg.CleanupInterval)

	log.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// healthcheckPort はヘルスチェック先のポートを環境変数から決定する。
func healthcheckPort() string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return "8080"
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
