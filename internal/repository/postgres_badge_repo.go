package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/bradspelsmeny/internal/model"
)

// PostgresBadgeStore はPostgreSQLを使用したバッジ・通知のストア。
type PostgresBadgeStore struct {
	db TxBeginner
}

// NewPostgresBadgeStore はPostgresBadgeStoreを生成する。
func NewPostgresBadgeStore(db TxBeginner) *PostgresBadgeStore {
	return &PostgresBadgeStore{db: db}
}

// WithinTx はfnを1つのトランザクション内で実行する。
func (s *PostgresBadgeStore) WithinTx(ctx context.Context, fn func(tx BadgeTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&postgresBadgeTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// postgresBadgeTx は *sql.Tx 上で BadgeTx を実装する。
type postgresBadgeTx struct {
	tx *sql.Tx
}

// AwardByKey は指定キーのバッジをユーザーに付与する。
// user_badges の主キー (user_id, badge_id) により、2回目以降は何もせず awarded=false を返す。
func (t *postgresBadgeTx) AwardByKey(ctx context.Context, userID int64, key string, at time.Time) (*model.Badge, bool, error) {
	badge := &model.Badge{}
	var awarded bool
	err := t.tx.QueryRowContext(ctx,
		`WITH b AS (
		     SELECT id, key, name, description, icon FROM badges WHERE key = $2
		 ), ins AS (
		     INSERT INTO user_badges (user_id, badge_id, awarded_at)
		     SELECT $1, id, $3 FROM b
		     ON CONFLICT (user_id, badge_id) DO NOTHING
		     RETURNING badge_id
		 )
		 SELECT b.id, b.key, b.name, b.description, b.icon, EXISTS (SELECT 1 FROM ins)
		 FROM b`,
		userID, key, at,
	).Scan(&badge.ID, &badge.Key, &badge.Name, &badge.Description, &badge.Icon, &awarded)

	if err == sql.ErrNoRows {
		return nil, false, fmt.Errorf("badge not defined: %s", key)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to award badge: %w", err)
	}
	return badge, awarded, nil
}

// CreateNotification は通知を作成し、採番されたIDをn.IDに設定する。
func (t *postgresBadgeTx) CreateNotification(ctx context.Context, n *model.Notification) error {
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO notifications (user_id, type, message, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		n.UserID, string(n.Type), n.Message, n.IsRead, n.CreatedAt,
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// compile-time interface checks
var (
	_ BadgeStore = (*PostgresBadgeStore)(nil)
	_ BadgeTx    = (*postgresBadgeTx)(nil)
)
