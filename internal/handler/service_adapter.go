package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/bradspelsmeny/internal/model"
	"github.com/hitoshi/bradspelsmeny/internal/repository"
)

// GameServiceAdapterFromRepo は repository.GameRepository を GameServiceInterface に適合させるアダプタ。
type GameServiceAdapterFromRepo struct {
	repo repository.GameRepository
}

// NewGameServiceAdapter は repository.GameRepository から GameServiceInterface を生成する。
func NewGameServiceAdapter(repo repository.GameRepository) GameServiceInterface {
	return &GameServiceAdapterFromRepo{repo: repo}
}

// ListGames はゲーム一覧を返す。
func (a *GameServiceAdapterFromRepo) ListGames(ctx context.Context, filter model.GameFilter) ([]*model.Game, error) {
	games, err := a.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("ゲーム一覧の取得に失敗しました: %w", err)
	}
	return games, nil
}

// GetGame はゲームを返す。存在しない場合は GAME_NOT_FOUND エラーを返す。
func (a *GameServiceAdapterFromRepo) GetGame(ctx context.Context, gameID int64) (*model.Game, error) {
	game, err := a.repo.FindByID(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("ゲームの取得に失敗しました: %w", err)
	}
	if game == nil {
		return nil, model.NewGameNotFoundError(gameID)
	}
	return game, nil
}

// ListHistory はゲームの貸出履歴を返す。存在しないゲームは GAME_NOT_FOUND エラーとする。
func (a *GameServiceAdapterFromRepo) ListHistory(ctx context.Context, gameID int64) ([]*model.GameHistoryEntry, error) {
	if _, err := a.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	entries, err := a.repo.ListHistory(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("貸出履歴の取得に失敗しました: %w", err)
	}
	return entries, nil
}

// ImportGames はゲームを一括登録し、採番されたIDを入力順に返す。
// 1件でも必須項目が欠けていれば何も登録しない。
func (a *GameServiceAdapterFromRepo) ImportGames(ctx context.Context, games []*model.Game) ([]int64, error) {
	if len(games) == 0 {
		return nil, model.NewEmptyImportError()
	}
	for i, g := range games {
		if g == nil {
			return nil, model.NewMissingGameFieldsError(i, []string{"title_sv", "title_en"})
		}
		var missing []string
		if strings.TrimSpace(g.TitleSV) == "" {
			missing = append(missing, "title_sv")
		}
		if strings.TrimSpace(g.TitleEN) == "" {
			missing = append(missing, "title_en")
		}
		if len(missing) > 0 {
			return nil, model.NewMissingGameFieldsError(i, missing)
		}
	}

	if err := a.repo.BulkInsert(ctx, games); err != nil {
		return nil, fmt.Errorf("ゲームの一括登録に失敗しました: %w", err)
	}

	ids := make([]int64, len(games))
	for i, g := range games {
		ids[i] = g.ID
	}
	return ids, nil
}

// --- compile-time interface checks ---

var _ GameServiceInterface = (*GameServiceAdapterFromRepo)(nil)
