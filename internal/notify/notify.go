// Package notify はドメインイベントの外部配信を提供する。
// NATS_URL が設定されている場合は NATS へ、未設定の場合は何もしない Publisher を使う。
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix は NATS_SUBJECT_PREFIX 未設定時のサブジェクト接頭辞。
const DefaultSubjectPrefix = "bradspel"

// BadgeAwardedEvent はバッジ付与イベントのペイロード。
type BadgeAwardedEvent struct {
	UserID         int64     `json:"userId"`
	BadgeKey       string    `json:"badgeKey"`
	BadgeName      string    `json:"badgeName"`
	NotificationID int64     `json:"notificationId"`
	AwardedAt      time.Time `json:"awardedAt"`
}

// Publisher はドメインイベントを配信する。
type Publisher interface {
	PublishBadgeAwarded(ctx context.Context, event BadgeAwardedEvent) error
	Close() error
}

// natsConn は *nats.Conn のうち Publisher が使用するメソッド。
type natsConn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATSPublisher は NATS にイベントを publish する。
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

// Connect は NATS サーバーに接続し、NATSPublisher を返す。
// token が空でない場合はトークン認証を使用する。
func Connect(url, token, prefix string) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("bradspelsmeny"),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATSPublisher(conn, prefix), nil
}

func newNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// BadgeAwardedSubject はバッジ付与イベントのサブジェクトを返す。
func (p *NATSPublisher) BadgeAwardedSubject() string {
	return p.prefix + ".badge.awarded"
}

// PublishBadgeAwarded はバッジ付与イベントを JSON で publish する。
func (p *NATSPublisher) PublishBadgeAwarded(ctx context.Context, event BadgeAwardedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode badge event: %w", err)
	}
	if err := p.conn.Publish(p.BadgeAwardedSubject(), data); err != nil {
		return fmt.Errorf("failed to publish badge event: %w", err)
	}
	return nil
}

// Close は未送信メッセージを送信してから接続を閉じる。
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// NopPublisher はイベントを破棄する Publisher。
type NopPublisher struct{}

// PublishBadgeAwarded は何もしない。
func (NopPublisher) PublishBadgeAwarded(ctx context.Context, event BadgeAwardedEvent) error {
	return nil
}

// Close は何もしない。
func (NopPublisher) Close() error { return nil }

var (
	_ Publisher = (*NATSPublisher)(nil)
	_ Publisher = NopPublisher{}
)
