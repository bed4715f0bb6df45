// Package lending はゲームの貸出・返却・テーブル注文のドメインロジックを提供する。
//
// 貸出・返却・注文完了はそれぞれ1つのトランザクションで実行され、
// games、game_history、game_orders が不整合な状態で残ることはない。
package lending

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/bradspelsmeny/internal/input"
	"github.com/hitoshi/bradspelsmeny/internal/model"
	"github.com/hitoshi/bradspelsmeny/internal/repository"
)

// LendCommand は貸出操作の入力。
type LendCommand struct {
	GameID int64
	UserID int64
	Note   string
}

// ReturnCommand は返却操作の入力。UserID は認証済みの返却者。
type ReturnCommand struct {
	GameID int64
	UserID int64
	Notes  string
}

// OrderCommand はテーブル注文の入力。
type OrderCommand struct {
	GameID    int64
	TableID   string
	FirstName string
	LastName  string
	Phone     string
}

// OrderCompletion は注文完了の結果。
type OrderCompletion struct {
	OrderID      int64
	GameID       int64
	UserID       int64
	GuestCreated bool
}

// BadgeAwarder は初回貸出バッジの付与を行う。
type BadgeAwarder interface {
	AwardFirstBorrow(ctx context.Context, userID int64) error
}

// MetricsRecorder は貸出ワークフローのメトリクスを記録する。
type MetricsRecorder interface {
	RecordLend()
	RecordReturn()
	RecordOrderPlaced()
	RecordOrderCompleted()
}

// Service は貸出ワークフローのサービス層。
type Service struct {
	store   repository.LendingStore
	games   repository.GameRepository
	orders  repository.OrderRepository
	badges  BadgeAwarder
	metrics MetricsRecorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// badges と metrics は nil でもよい。
func NewService(
	store repository.LendingStore,
	games repository.GameRepository,
	orders repository.OrderRepository,
	badges BadgeAwarder,
	metrics MetricsRecorder,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		games:   games,
		orders:  orders,
		badges:  badges,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// OrderNote は注文完了時に履歴へ記録するメモを返す。
func OrderNote(tableID string) string {
	return fmt.Sprintf("Beställning från bord %s", tableID)
}

// Lend はゲームを貸出状態にし、lend履歴を追記する。
// ユーザーの初回貸出であればコミット後にバッジを付与する。
func (s *Service) Lend(ctx context.Context, cmd LendCommand) error {
	if cmd.UserID <= 0 {
		return model.NewInvalidUserIDError("userId が指定されていません")
	}

	var firstLend bool
	err := s.store.WithinTx(ctx, func(tx repository.LendingTx) error {
		user, err := tx.FindUserByID(ctx, cmd.UserID)
		if err != nil {
			return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if user == nil {
			return model.NewInvalidUserIDError(fmt.Sprintf("ユーザー %d は存在しません", cmd.UserID))
		}

		firstLend, err = s.lendInTx(ctx, tx, cmd.GameID, cmd.UserID, cmd.Note)
		return err
	})
	if err != nil {
		return err
	}

	s.afterLend(ctx, cmd.UserID, firstLend)
	return nil
}

// Return はゲームを返却状態にし、return履歴を追記する。
// 未返却のパーティーセッションがあれば返却情報を記録する。
// 貸出中でないゲームの返却も受け付ける。
func (s *Service) Return(ctx context.Context, cmd ReturnCommand) error {
	now := s.now()
	var returnedBy *int64
	if cmd.UserID > 0 {
		id := cmd.UserID
		returnedBy = &id
	}

	err := s.store.WithinTx(ctx, func(tx repository.LendingTx) error {
		game, err := tx.FindGameForUpdate(ctx, cmd.GameID)
		if err != nil {
			return fmt.Errorf("ゲームの取得に失敗しました: %w", err)
		}
		if game == nil {
			return model.NewGameNotFoundError(cmd.GameID)
		}
		if !game.LentOut {
			s.logger.Warn("貸出中でないゲームが返却されました",
				slog.Int64("game_id", cmd.GameID),
				slog.Int64("user_id", cmd.UserID),
			)
		}

		if err := tx.MarkGameReturned(ctx, cmd.GameID); err != nil {
			return fmt.Errorf("返却状態の更新に失敗しました: %w", err)
		}

		entry := &model.GameHistoryEntry{
			GameID:     cmd.GameID,
			UserID:     returnedBy,
			Action:     model.HistoryActionReturn,
			Note:       cmd.Notes,
			Timestamp:  now,
			ReturnedAt: &now,
		}
		if err := tx.InsertHistory(ctx, entry); err != nil {
			return fmt.Errorf("返却履歴の記録に失敗しました: %w", err)
		}

		closed, err := tx.CloseOpenPartySessions(ctx, cmd.GameID, returnedBy, cmd.Notes, now)
		if err != nil {
			return fmt.Errorf("パーティーセッションの更新に失敗しました: %w", err)
		}
		if closed > 0 {
			s.logger.Info("パーティーセッションを返却済みにしました",
				slog.Int64("game_id", cmd.GameID),
				slog.Int64("sessions", closed),
			)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordReturn()
	}
	return nil
}

// PlaceOrder はテーブル注文を作成し、採番された注文IDを返す。
// 同じテーブル・ゲームへの重複注文も受け付ける。
func (s *Service) PlaceOrder(ctx context.Context, cmd OrderCommand) (int64, error) {
	cmd.TableID = strings.TrimSpace(cmd.TableID)
	cmd.FirstName = strings.TrimSpace(cmd.FirstName)
	cmd.LastName = strings.TrimSpace(cmd.LastName)
	cmd.Phone = strings.TrimSpace(cmd.Phone)

	var missing []string
	if cmd.GameID <= 0 {
		missing = append(missing, "gameId")
	}
	if cmd.TableID == "" {
		missing = append(missing, "tableId")
	}
	if cmd.FirstName == "" {
		missing = append(missing, "firstName")
	}
	if cmd.LastName == "" {
		missing = append(missing, "lastName")
	}
	if cmd.Phone == "" {
		missing = append(missing, "phone")
	}
	if len(missing) > 0 {
		return 0, model.NewMissingOrderFieldsError(missing)
	}

	game, err := s.games.FindByID(ctx, cmd.GameID)
	if err != nil {
		return 0, fmt.Errorf("ゲームの取得に失敗しました: %w", err)
	}
	if game == nil {
		return 0, model.NewGameNotFoundError(cmd.GameID)
	}

	order := &model.GameOrder{
		GameID:    cmd.GameID,
		TableID:   cmd.TableID,
		FirstName: cmd.FirstName,
		LastName:  cmd.LastName,
		Phone:     cmd.Phone,
		CreatedAt: s.now(),
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return 0, fmt.Errorf("注文の作成に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordOrderPlaced()
	}
	return order.ID, nil
}

// CompleteOrder は注文を貸出に変換する。
// 電話番号でユーザーを解決（存在しなければゲストを作成）し、
// 貸出と注文の削除を1つのトランザクションで行う。
func (s *Service) CompleteOrder(ctx context.Context, orderID int64) (*OrderCompletion, error) {
	var result *OrderCompletion
	var firstLend bool

	err := s.store.WithinTx(ctx, func(tx repository.LendingTx) error {
		order, err := tx.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			return fmt.Errorf("注文の取得に失敗しました: %w", err)
		}
		if order == nil {
			return model.NewOrderNotFoundError(orderID)
		}

		userID, created, err := s.resolveGuest(ctx, tx, order)
		if err != nil {
			return err
		}

		firstLend, err = s.lendInTx(ctx, tx, order.GameID, userID, OrderNote(order.TableID))
		if err != nil {
			return err
		}

		if err := tx.DeleteOrder(ctx, order.ID); err != nil {
			return fmt.Errorf("注文の削除に失敗しました: %w", err)
		}

		result = &OrderCompletion{
			OrderID:      order.ID,
			GameID:       order.GameID,
			UserID:       userID,
			GuestCreated: created,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCompleted()
	}
	s.afterLend(ctx, result.UserID, firstLend)
	return result, nil
}

// CancelOrder は未処理の注文を破棄する。
func (s *Service) CancelOrder(ctx context.Context, orderID int64) error {
	deleted, err := s.orders.Delete(ctx, orderID)
	if err != nil {
		return fmt.Errorf("注文の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewOrderNotFoundError(orderID)
	}
	return nil
}

// ListOrders は未処理の注文を古い順に返す。
func (s *Service) ListOrders(ctx context.Context) ([]*model.GameOrder, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("注文一覧の取得に失敗しました: %w", err)
	}
	return orders, nil
}

// lendInTx は貸出の状態遷移をトランザクション内で行う。
// ユーザーの初回貸出であった場合に true を返す。
func (s *Service) lendInTx(ctx context.Context, tx repository.LendingTx, gameID, userID int64, note string) (bool, error) {
	game, err := tx.FindGameForUpdate(ctx, gameID)
	if err != nil {
		return false, fmt.Errorf("ゲームの取得に失敗しました: %w", err)
	}
	if game == nil {
		return false, model.NewGameNotFoundError(gameID)
	}

	prior, err := tx.CountLendsByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("貸出履歴件数の取得に失敗しました: %w", err)
	}

	now := s.now()
	if err := tx.MarkGameLent(ctx, gameID, now); err != nil {
		return false, fmt.Errorf("貸出状態の更新に失敗しました: %w", err)
	}

	uid := userID
	entry := &model.GameHistoryEntry{
		GameID:    gameID,
		UserID:    &uid,
		Action:    model.HistoryActionLend,
		Note:      note,
		Timestamp: now,
	}
	if err := tx.InsertHistory(ctx, entry); err != nil {
		return false, fmt.Errorf("貸出履歴の記録に失敗しました: %w", err)
	}

	return prior == 0, nil
}

// resolveGuest は注文の電話番号からユーザーを解決する。
// 該当ユーザーがいなければゲストユーザーを作成し、created=true を返す。
func (s *Service) resolveGuest(ctx context.Context, tx repository.LendingTx, order *model.GameOrder) (int64, bool, error) {
	firstName := strings.TrimSpace(order.FirstName)
	lastName := strings.TrimSpace(order.LastName)
	phone := input.NormalizePhone(order.Phone)
	if firstName == "" || lastName == "" || phone == "" {
		return 0, false, model.NewMissingUserInfoError()
	}

	user, err := tx.FindUserByPhone(ctx, phone)
	if err != nil {
		return 0, false, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if user != nil {
		return user.ID, false, nil
	}

	now := s.now()
	guest := &model.User{
		FirstName: firstName,
		LastName:  lastName,
		Phone:     phone,
		Role:      model.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := tx.CreateGuestUser(ctx, guest)
	if err != nil {
		return 0, false, fmt.Errorf("ゲストユーザーの作成に失敗しました: %w", err)
	}
	if created {
		s.logger.Info("ゲストユーザーを作成しました",
			slog.Int64("user_id", guest.ID),
			slog.Int64("order_id", order.ID),
		)
	}
	return guest.ID, created, nil
}

// afterLend はコミット後の副作用を実行する。失敗はログに記録するのみ。
func (s *Service) afterLend(ctx context.Context, userID int64, firstLend bool) {
	if s.metrics != nil {
		s.metrics.RecordLend()
	}
	if !firstLend || s.badges == nil {
		return
	}
	if err := s.badges.AwardFirstBorrow(ctx, userID); err != nil {
		s.logger.Error("初回貸出バッジの付与に失敗しました",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
