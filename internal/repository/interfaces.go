// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/bradspelsmeny/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByPhone は正規化済み電話番号でユーザーを検索する。見つからない場合はnilを返す。
	FindByPhone(ctx context.Context, phone string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDをuser.IDに設定する。
	Create(ctx context.Context, user *model.User) error

	// Promote はゲストユーザーにメールアドレスとパスワードを設定し会員にする。
	Promote(ctx context.Context, user *model.User) error
}

// RefreshTokenRepository はリフレッシュトークンの永続化インターフェース。
type RefreshTokenRepository interface {
	// Create はリフレッシュトークンを保存する。
	Create(ctx context.Context, token *model.RefreshToken) error
	// Consume は有効期限内のトークンを削除して返す。
	// 存在しない、期限切れ、または他のリクエストが先に消費した場合はnilを返す。
	Consume(ctx context.Context, id string) (*model.RefreshToken, error)
	// DeleteByID は指定IDのトークンを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全トークンを削除する。
	DeleteByUserID(ctx context.Context, userID int64) error
}

// GameRepository はゲームカタログの永続化インターフェース。
type GameRepository interface {
	// FindByID は指定IDのゲームを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Game, error)

	// List はゲーム一覧をID昇順で返す。
	List(ctx context.Context, filter model.GameFilter) ([]*model.Game, error)

	// ListHistory はゲームの貸出履歴を新しい順に返す。
	ListHistory(ctx context.Context, gameID int64) ([]*model.GameHistoryEntry, error)

	// BulkInsert は複数のゲームを1トランザクションで登録し、採番されたIDを各game.IDに設定する。
	// 1件でも失敗した場合は何も登録しない。
	BulkInsert(ctx context.Context, games []*model.Game) error
}

// OrderRepository はテーブル注文の永続化インターフェース。
type OrderRepository interface {
	// Create は注文を作成し、採番されたIDをorder.IDに設定する。
	Create(ctx context.Context, order *model.GameOrder) error

	// List は未処理の注文を古い順に返す。
	List(ctx context.Context) ([]*model.GameOrder, error)

	// Delete は注文を削除する。削除対象がない場合は false を返す。
	Delete(ctx context.Context, id int64) (bool, error)
}

// BadgeStore はバッジ付与と付与通知を1つのトランザクションで扱う。
type BadgeStore interface {
	// WithinTx はfnを1つのトランザクション内で実行する。
	// fnがエラーを返した場合は付与も通知もロールバックされる。
	WithinTx(ctx context.Context, fn func(tx BadgeTx) error) error
}

// BadgeTx はトランザクション内で使うバッジ・通知の操作。
type BadgeTx interface {
	// AwardByKey は指定キーのバッジをユーザーに付与する。
	// 既に付与済みの場合は何もせず awarded=false を返す（冪等）。
	AwardByKey(ctx context.Context, userID int64, key string, at time.Time) (badge *model.Badge, awarded bool, err error)

	// CreateNotification は通知を作成し、採番されたIDをn.IDに設定する。
	CreateNotification(ctx context.Context, n *model.Notification) error
}

// LendingStore は貸出ワークフローのトランザクション境界を提供する。
type LendingStore interface {
	// WithinTx はfnを1つのトランザクション内で実行する。
	// fnがエラーを返した場合はロールバックし、そのエラーを返す。
	WithinTx(ctx context.Context, fn func(tx LendingTx) error) error
}

// LendingTx は貸出ワークフローがトランザクション内で行う操作。
// games、game_history、game_orders、users、party_sessions を横断して更新する。
type LendingTx interface {
	// FindGameForUpdate はゲームを行ロック付きで取得する。見つからない場合はnilを返す。
	FindGameForUpdate(ctx context.Context, gameID int64) (*model.Game, error)

	// FindUserByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindUserByID(ctx context.Context, userID int64) (*model.User, error)

	// FindUserByPhone は正規化済み電話番号でユーザーを検索する。見つからない場合はnilを返す。
	FindUserByPhone(ctx context.Context, phone string) (*model.User, error)

	// CreateGuestUser はパスワードなしのユーザーを作成し、採番されたIDをuser.IDに設定する。
	// 同じ電話番号のユーザーが既にいる場合は作成せずにそのIDを設定し、created=false を返す。
	CreateGuestUser(ctx context.Context, user *model.User) (created bool, err error)

	// CountLendsByUser はユーザーのlend履歴件数を返す。
	CountLendsByUser(ctx context.Context, userID int64) (int, error)

	// MarkGameLent は lent_out=true、times_lent+1、last_lent=at に更新する。
	MarkGameLent(ctx context.Context, gameID int64, at time.Time) error

	// MarkGameReturned は lent_out=false に更新する。
	MarkGameReturned(ctx context.Context, gameID int64) error

	// InsertHistory は貸出履歴を追記し、採番されたIDをentry.IDに設定する。
	InsertHistory(ctx context.Context, entry *model.GameHistoryEntry) error

	// CloseOpenPartySessions はゲームを参照する未返却のパーティーセッションに返却情報を記録する。
	// 更新した件数を返す。
	CloseOpenPartySessions(ctx context.Context, gameID int64, returnedBy *int64, notes string, at time.Time) (int64, error)

	// FindOrderForUpdate は注文を行ロック付きで取得する。見つからない場合はnilを返す。
	FindOrderForUpdate(ctx context.Context, orderID int64) (*model.GameOrder, error)

	// DeleteOrder は注文を削除する。
	DeleteOrder(ctx context.Context, orderID int64) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
