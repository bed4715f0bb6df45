package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/bradspelsmeny/internal/model"
)

const gameColumns = `id, title_sv, title_en, COALESCE(description_sv, ''), COALESCE(description_en, ''),
	COALESCE(players, ''), COALESCE(time, ''), COALESCE(age, ''), COALESCE(tags, ''),
	COALESCE(img, ''), COALESCE(rules, ''), slow_day_only, trusted_only,
	COALESCE(max_table_size, 0), COALESCE(condition_rating, 0), COALESCE(staff_picks, ''),
	lent_out, times_lent, last_lent, created_at`

// scanGame は gameColumns の並びでゲームを読み取る。
func scanGame(row rowScanner) (*model.Game, error) {
	g := &model.Game{}
	var lastLent sql.NullTime
	err := row.Scan(
		&g.ID, &g.TitleSV, &g.TitleEN, &g.DescriptionSV, &g.DescriptionEN,
		&g.Players, &g.Time, &g.Age, &g.Tags,
		&g.Img, &g.Rules, &g.SlowDayOnly, &g.TrustedOnly,
		&g.MaxTableSize, &g.ConditionRating, &g.StaffPicks,
		&g.LentOut, &g.TimesLent, &lastLent, &g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastLent.Valid {
		t := lastLent.Time
		g.LastLent = &t
	}
	return g, nil
}

// scanHistory は貸出履歴1行を読み取る。
func scanHistory(row rowScanner) (*model.GameHistoryEntry, error) {
	e := &model.GameHistoryEntry{}
	var userID sql.NullInt64
	var action string
	var returnedAt sql.NullTime
	if err := row.Scan(&e.ID, &e.GameID, &userID, &action, &e.Note, &e.Timestamp, &returnedAt); err != nil {
		return nil, err
	}
	e.Action = model.HistoryAction(action)
	if userID.Valid {
		id := userID.Int64
		e.UserID = &id
	}
	if returnedAt.Valid {
		t := returnedAt.Time
		e.ReturnedAt = &t
	}
	return e, nil
}

// PostgresGameRepo はPostgreSQLを使用したゲームカタログリポジトリ。
type PostgresGameRepo struct {
	db *sql.DB
}

// NewPostgresGameRepo はPostgresGameRepoを生成する。
func NewPostgresGameRepo(db *sql.DB) *PostgresGameRepo {
	return &PostgresGameRepo{db: db}
}

// FindByID は指定IDのゲームを取得する。見つからない場合はnilを返す。
func (r *PostgresGameRepo) FindByID(ctx context.Context, id int64) (*model.Game, error) {
	g, err := scanGame(r.db.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find game by ID: %w", err)
	}
	return g, nil
}

// List はゲーム一覧をID昇順で返す。
// filter.LentOut が指定された場合は貸出状態で絞り込む。
func (r *PostgresGameRepo) List(ctx context.Context, filter model.GameFilter) ([]*model.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games`
	var args []any
	if filter.LentOut != nil {
		query += ` WHERE lent_out = $1`
		args = append(args, *filter.LentOut)
	}
	query += ` ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []*model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate games: %w", err)
	}
	return games, nil
}

// ListHistory はゲームの貸出履歴を新しい順に返す。
func (r *PostgresGameRepo) ListHistory(ctx context.Context, gameID int64) ([]*model.GameHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, game_id, user_id, action, note, timestamp, returned_at
		 FROM game_history
		 WHERE game_id = $1
		 ORDER BY timestamp DESC, id DESC`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list game history: %w", err)
	}
	defer rows.Close()

	var entries []*model.GameHistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game history: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate game history: %w", err)
	}
	return entries, nil
}

// BulkInsert は複数のゲームを1トランザクションで登録する。
// 貸出状態（lent_out, times_lent, last_lent）は常に初期値で登録する。
func (r *PostgresGameRepo) BulkInsert(ctx context.Context, games []*model.Game) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO games (title_sv, title_en, description_sv, description_en,
			players, time, age, tags, img, rules,
			slow_day_only, trusted_only, max_table_size, condition_rating, staff_picks)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING id, created_at`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare game insert: %w", err)
	}
	defer stmt.Close()

	for i, g := range games {
		err := stmt.QueryRowContext(ctx,
			g.TitleSV, g.TitleEN, nullString(g.DescriptionSV), nullString(g.DescriptionEN),
			nullString(g.Players), nullString(g.Time), nullString(g.Age), nullString(g.Tags),
			nullString(g.Img), nullString(g.Rules),
			g.SlowDayOnly, g.TrustedOnly, nullPositiveInt(g.MaxTableSize), nullPositiveInt(g.ConditionRating),
			nullString(g.StaffPicks),
		).Scan(&g.ID, &g.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert game %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nullPositiveInt は0以下をNULLとして扱う。
func nullPositiveInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v > 0}
}

// compile-time interface check
var _ GameRepository = (*PostgresGameRepo)(nil)
