// Package badge はバッジ付与と付与通知を提供する。
package badge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/bradspelsmeny/internal/model"
	"github.com/hitoshi/bradspelsmeny/internal/notify"
	"github.com/hitoshi/bradspelsmeny/internal/repository"
)

// MetricsRecorder はバッジ付与のメトリクスを記録する。
type MetricsRecorder interface {
	RecordBadgeAwarded(key string)
}

// Service はバッジ付与のサービス層。
type Service struct {
	store     repository.BadgeStore
	publisher notify.Publisher
	metrics   MetricsRecorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// publisher が nil の場合は NopPublisher を使用する。
func NewService(
	store repository.BadgeStore,
	publisher notify.Publisher,
	metrics MetricsRecorder,
	logger *slog.Logger,
) *Service {
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AwardFirstBorrow は初回貸出バッジを付与する。
// 付与済みの場合は何もしない。新たに付与した場合のみ同じトランザクションで通知を作成し、
// コミット後にイベントを配信する。通知の作成に失敗した場合は付与もロールバックされ、
// 次回の呼び出しで再度付与を試みる。
func (s *Service) AwardFirstBorrow(ctx context.Context, userID int64) error {
	now := s.now()
	var (
		b *model.Badge
		n *model.Notification
	)
	err := s.store.WithinTx(ctx, func(tx repository.BadgeTx) error {
		badge, awarded, err := tx.AwardByKey(ctx, userID, model.BadgeFirstBorrow, now)
		if err != nil {
			return fmt.Errorf("バッジの付与に失敗しました: %w", err)
		}
		if !awarded {
			return nil
		}

		notification := &model.Notification{
			UserID:    userID,
			Type:      model.NotificationTypeBadge,
			Message:   fmt.Sprintf("Du har fått märket \"%s\"!", badge.Name),
			CreatedAt: now,
		}
		if err := tx.CreateNotification(ctx, notification); err != nil {
			return fmt.Errorf("バッジ通知の作成に失敗しました: %w", err)
		}
		b, n = badge, notification
		return nil
	})
	if err != nil {
		return err
	}
	if n == nil {
		return nil
	}

	if s.metrics != nil {
		s.metrics.RecordBadgeAwarded(b.Key)
	}

	event := notify.BadgeAwardedEvent{
		UserID:         userID,
		BadgeKey:       b.Key,
		BadgeName:      b.Name,
		NotificationID: n.ID,
		AwardedAt:      now,
	}
	if err := s.publisher.PublishBadgeAwarded(ctx, event); err != nil {
		s.logger.Warn("バッジ付与イベントの配信に失敗しました",
			slog.Int64("user_id", userID),
			slog.String("badge", b.Key),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("バッジを付与しました",
		slog.Int64("user_id", userID),
		slog.String("badge", b.Key),
	)
	return nil
}
