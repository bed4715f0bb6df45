package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/bradspelsmeny/internal/input"
	"github.com/hitoshi/bradspelsmeny/internal/model"
)

// GameServiceInterface はゲームハンドラーが必要とするサービスインターフェース。
type GameServiceInterface interface {
	// ListGames はゲーム一覧を返す。
	ListGames(ctx context.Context, filter model.GameFilter) ([]*model.Game, error)
	// GetGame はゲームを返す。存在しない場合は GAME_NOT_FOUND エラーを返す。
	GetGame(ctx context.Context, gameID int64) (*model.Game, error)
	// ListHistory はゲームの貸出履歴を新しい順に返す。
	ListHistory(ctx context.Context, gameID int64) ([]*model.GameHistoryEntry, error)
	// ImportGames はゲームを一括登録し、採番されたIDを入力順に返す。
	ImportGames(ctx context.Context, games []*model.Game) ([]int64, error)
}

// maxImportBodyBytes はカタログ取り込みリクエストボディの上限。
const maxImportBodyBytes = 4 << 20

// GameHandler はゲームカタログ参照のHTTPハンドラー。
type GameHandler struct {
	service GameServiceInterface
}

// NewGameHandler はGameHandlerを生成する。
func NewGameHandler(service GameServiceInterface) *GameHandler {
	return &GameHandler{service: service}
}

// gameResponse はゲーム情報のAPIレスポンス。キーはテーブルのカラム名に合わせる。
type gameResponse struct {
	ID              int64      `json:"id"`
	TitleSV         string     `json:"title_sv"`
	TitleEN         string     `json:"title_en"`
	DescriptionSV   string     `json:"description_sv"`
	DescriptionEN   string     `json:"description_en"`
	Players         string     `json:"players"`
	Time            string     `json:"time"`
	Age             string     `json:"age"`
	Tags            string     `json:"tags"`
	Img             string     `json:"img"`
	Rules           string     `json:"rules"`
	SlowDayOnly     bool       `json:"slow_day_only"`
	TrustedOnly     bool       `json:"trusted_only"`
	MaxTableSize    int        `json:"max_table_size"`
	ConditionRating int        `json:"condition_rating"`
	StaffPicks      string     `json:"staff_picks"`
	LentOut         bool       `json:"lent_out"`
	TimesLent       int        `json:"times_lent"`
	LastLent        *time.Time `json:"last_lent"`
	CreatedAt       time.Time  `json:"created_at"`
}

// historyResponse は貸出履歴1件のAPIレスポンス。
type historyResponse struct {
	ID         int64      `json:"id"`
	GameID     int64      `json:"game_id"`
	UserID     *int64     `json:"user_id"`
	Action     string     `json:"action"`
	Note       string     `json:"note"`
	Timestamp  time.Time  `json:"timestamp"`
	ReturnedAt *time.Time `json:"returned_at"`
}

// importGameRequest はカタログ取り込みの1件分。キーはテーブルのカラム名に合わせる。
type importGameRequest struct {
	TitleSV         string       `json:"title_sv"`
	TitleEN         string       `json:"title_en"`
	DescriptionSV   string       `json:"description_sv"`
	DescriptionEN   string       `json:"description_en"`
	Players         input.String `json:"players"`
	Time            input.String `json:"time"`
	Age             input.String `json:"age"`
	Tags            string       `json:"tags"`
	Img             string       `json:"img"`
	Rules           string       `json:"rules"`
	SlowDayOnly     input.Bool   `json:"slow_day_only"`
	TrustedOnly     input.Bool   `json:"trusted_only"`
	MaxTableSize    input.Int64  `json:"max_table_size"`
	ConditionRating input.Int64  `json:"condition_rating"`
	StaffPicks      string       `json:"staff_picks"`
}

// importResponse はカタログ取り込みのレスポンス。
type importResponse struct {
	Message  string  `json:"message"`
	Imported int     `json:"imported"`
	IDs      []int64 `json:"ids"`
}

// toModel は取り込みリクエストをサニタイズ済みのmodel.Gameに変換する。
func (req importGameRequest) toModel() *model.Game {
	g := &model.Game{
		TitleSV:       input.Text(req.TitleSV),
		TitleEN:       input.Text(req.TitleEN),
		DescriptionSV: input.Text(req.DescriptionSV),
		DescriptionEN: input.Text(req.DescriptionEN),
		Players:       input.Text(string(req.Players)),
		Time:          input.Text(string(req.Time)),
		Age:           input.Text(string(req.Age)),
		Tags:          input.Text(req.Tags),
		Img:           input.Text(req.Img),
		Rules:         input.Text(req.Rules),
		SlowDayOnly:   req.SlowDayOnly.Value,
		TrustedOnly:   req.TrustedOnly.Value,
		StaffPicks:    input.Text(req.StaffPicks),
	}
	// 正の整数として解釈できない値は未設定とする
	if req.MaxTableSize.Valid {
		g.MaxTableSize = int(req.MaxTableSize.Value)
	}
	if req.ConditionRating.Valid {
		g.ConditionRating = int(req.ConditionRating.Value)
	}
	return g
}

// ImportGames はゲームのJSON配列をカタログに一括登録する。スタッフ専用。
// POST /import
func (h *GameHandler) ImportGames(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBodyBytes)

	var req []importGameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	games := make([]*model.Game, len(req))
	for i, g := range req {
		games[i] = g.toModel()
	}

	ids, err := h.service.ImportGames(r.Context(), games)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, importResponse{
		Message:  "Games imported",
		Imported: len(ids),
		IDs:      ids,
	})
}

// ListGames はゲーム一覧を返す。
// GET /games?lent_out=true|false
func (h *GameHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	var filter model.GameFilter
	if raw := r.URL.Query().Get("lent_out"); raw != "" {
		v, ok := input.ParseBool(raw)
		if !ok {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     model.ErrCodeInvalidRequest,
				Message:  "lent_out には true または false を指定してください。",
				Category: "validation",
				Action:   "クエリパラメータを確認してください。",
			})
			return
		}
		filter.LentOut = &v
	}

	games, err := h.service.ListGames(r.Context(), filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]gameResponse, len(games))
	for i, g := range games {
		resp[i] = toGameResponse(g)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetGame はゲーム詳細を返す。
// GET /games/{gameId}
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	gameID, raw, ok := pathID(r, "gameId")
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidGameIDError(raw))
		return
	}

	game, err := h.service.GetGame(r.Context(), gameID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toGameResponse(game))
}

// ListHistory はゲームの貸出履歴を返す。
// GET /games/{gameId}/history
func (h *GameHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	gameID, raw, ok := pathID(r, "gameId")
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidGameIDError(raw))
		return
	}

	entries, err := h.service.ListHistory(r.Context(), gameID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]historyResponse, len(entries))
	for i, e := range entries {
		resp[i] = historyResponse{
			ID:         e.ID,
			GameID:     e.GameID,
			UserID:     e.UserID,
			Action:     string(e.Action),
			Note:       e.Note,
			Timestamp:  e.Timestamp,
			ReturnedAt: e.ReturnedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// toGameResponse はmodel.GameからAPIレスポンスに変換する。
func toGameResponse(g *model.Game) gameResponse {
	return gameResponse{
		ID:              g.ID,
		TitleSV:         g.TitleSV,
		TitleEN:         g.TitleEN,
		DescriptionSV:   g.DescriptionSV,
		DescriptionEN:   g.DescriptionEN,
		Players:         g.Players,
		Time:            g.Time,
		Age:             g.Age,
		Tags:            g.Tags,
		Img:             g.Img,
		Rules:           g.Rules,
		SlowDayOnly:     g.SlowDayOnly,
		TrustedOnly:     g.TrustedOnly,
		MaxTableSize:    g.MaxTableSize,
		ConditionRating: g.ConditionRating,
		StaffPicks:      g.StaffPicks,
		LentOut:         g.LentOut,
		TimesLent:       g.TimesLent,
		LastLent:        g.LastLent,
		CreatedAt:       g.CreatedAt,
	}
}
