// Package cleanup は不要になったレコードの定期削除ジョブを提供する。
// 期限切れのリフレッシュトークンと、保持期間を過ぎた未処理のテーブル注文を削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultOrderRetention は未処理注文の保持期間のデフォルト値。
const DefaultOrderRetention = 24 * time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// MetricsRecorder は削除件数を記録する。
type MetricsRecorder interface {
	RecordCleanup(kind string, deleted int64)
}

// 削除対象の種別。ログとメトリクスのラベルに使う。
const (
	KindRefreshTokens = "refresh_tokens"
	KindOrders        = "orders"
)

// CleanupJob は不要レコードの定期削除ジョブ。
// 冪等であり、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	db             Executor
	logger         *slog.Logger
	metrics        MetricsRecorder
	OrderRetention time.Duration // 未処理注文の保持期間（デフォルト: 24時間）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// metrics は nil でもよい。
func NewCleanupJob(db Executor, logger *slog.Logger, metrics MetricsRecorder) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		db:             db,
		logger:         logger,
		metrics:        metrics,
		OrderRetention: DefaultOrderRetention,
	}
}

// Run は期限切れのリフレッシュトークンと古い注文を削除する。
// どちらかが失敗しても残りの削除は実行し、最初のエラーを返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	tokens, tokenErr := j.deleteExpiredRefreshTokens(ctx)
	orders, orderErr := j.deleteStaleOrders(ctx)

	if tokenErr != nil {
		return tokenErr
	}
	if orderErr != nil {
		return orderErr
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_refresh_tokens", tokens),
		slog.Int64("deleted_orders", orders),
		slog.Duration("order_retention", j.OrderRetention),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (j *CleanupJob) deleteExpiredRefreshTokens(ctx context.Context) (int64, error) {
	return j.exec(ctx, KindRefreshTokens,
		`DELETE FROM refresh_tokens WHERE expires_at <= now()`,
	)
}

func (j *CleanupJob) deleteStaleOrders(ctx context.Context) (int64, error) {
	interval := fmt.Sprintf("%d seconds", int64(j.OrderRetention.Seconds()))
	return j.exec(ctx, KindOrders,
		`DELETE FROM game_orders WHERE created_at < now() - $1::interval`,
		interval,
	)
}

func (j *CleanupJob) exec(ctx context.Context, kind, query string, args ...interface{}) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		j.logger.Error("クリーンアップの実行に失敗しました",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("cleanup of %s failed: %w", kind, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count of %s: %w", kind, err)
	}

	if j.metrics != nil {
		j.metrics.RecordCleanup(kind, deleted)
	}
	return deleted, nil
}

// Start はRunを即時に1回実行し、以降intervalごとに繰り返す。
// ctxがキャンセルされると戻る。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *CleanupJob) runOnce(ctx context.Context) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}
