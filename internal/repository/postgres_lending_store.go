package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/bradspelsmeny/internal/model"
)

// PostgresLendingStore はPostgreSQLのトランザクションで貸出ワークフローを実行するストア。
type PostgresLendingStore struct {
	db TxBeginner
}

// NewPostgresLendingStore はPostgresLendingStoreを生成する。
func NewPostgresLendingStore(db TxBeginner) *PostgresLendingStore {
	return &PostgresLendingStore{db: db}
}

// WithinTx はfnを1つのトランザクション内で実行する。
// fnがエラーを返した場合、またはコミットに失敗した場合は全体がロールバックされる。
func (s *PostgresLendingStore) WithinTx(ctx context.Context, fn func(tx LendingTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&postgresLendingTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// postgresLendingTx は *sql.Tx 上で LendingTx を実装する。
type postgresLendingTx struct {
	tx *sql.Tx
}

func (t *postgresLendingTx) FindGameForUpdate(ctx context.Context, gameID int64) (*model.Game, error) {
	g, err := scanGame(t.tx.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE id = $1 FOR UPDATE`,
		gameID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock game: %w", err)
	}
	return g, nil
}

func (t *postgresLendingTx) FindUserByID(ctx context.Context, userID int64) (*model.User, error) {
	u, err := scanUser(t.tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return u, nil
}

func (t *postgresLendingTx) FindUserByPhone(ctx context.Context, phone string) (*model.User, error) {
	u, err := scanUser(t.tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE phone = $1`,
		phone,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by phone: %w", err)
	}
	return u, nil
}

// CreateGuestUser は電話番号の一意インデックスで競合した場合、既存ユーザーのIDを返す。
// 同じ電話番号の注文を同時に完了しても、ユニーク制約違反でトランザクションが失敗しない。
// xmax = 0 は今回のINSERTで作成された行であることを表す。
func (t *postgresLendingTx) CreateGuestUser(ctx context.Context, user *model.User) (bool, error) {
	var (
		created bool
		role    string
	)
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO users (first_name, last_name, phone, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (phone) WHERE phone IS NOT NULL AND phone <> ''
		 DO UPDATE SET phone = EXCLUDED.phone
		 RETURNING id, first_name, last_name, role, (xmax = 0)`,
		user.FirstName, user.LastName, nullString(user.Phone), string(model.RoleUser),
		user.CreatedAt, user.UpdatedAt,
	).Scan(&user.ID, &user.FirstName, &user.LastName, &role, &created)
	if err != nil {
		return false, fmt.Errorf("failed to insert guest user: %w", err)
	}
	user.Role = model.Role(role)
	return created, nil
}

func (t *postgresLendingTx) CountLendsByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := t.tx.QueryRowContext(ctx,
		`SELECT count(*) FROM game_history WHERE user_id = $1 AND action = 'lend'`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count lends: %w", err)
	}
	return count, nil
}

func (t *postgresLendingTx) MarkGameLent(ctx context.Context, gameID int64, at time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE games SET lent_out = true, times_lent = times_lent + 1, last_lent = $2 WHERE id = $1`,
		gameID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to mark game as lent: %w", err)
	}
	return nil
}

func (t *postgresLendingTx) MarkGameReturned(ctx context.Context, gameID int64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE games SET lent_out = false WHERE id = $1`,
		gameID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark game as returned: %w", err)
	}
	return nil
}

func (t *postgresLendingTx) InsertHistory(ctx context.Context, entry *model.GameHistoryEntry) error {
	var userID sql.NullInt64
	if entry.UserID != nil {
		userID = sql.NullInt64{Int64: *entry.UserID, Valid: true}
	}
	var returnedAt sql.NullTime
	if entry.ReturnedAt != nil {
		returnedAt = sql.NullTime{Time: *entry.ReturnedAt, Valid: true}
	}

	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO game_history (game_id, user_id, action, note, timestamp, returned_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		entry.GameID, userID, string(entry.Action), entry.Note, entry.Timestamp, returnedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert game history: %w", err)
	}
	return nil
}

func (t *postgresLendingTx) CloseOpenPartySessions(ctx context.Context, gameID int64, returnedBy *int64, notes string, at time.Time) (int64, error) {
	var by sql.NullInt64
	if returnedBy != nil {
		by = sql.NullInt64{Int64: *returnedBy, Valid: true}
	}

	result, err := t.tx.ExecContext(ctx,
		`UPDATE party_sessions
		 SET returned_at = $2, returned_by_user_id = $3, return_notes = $4
		 WHERE game_id = $1 AND returned_at IS NULL`,
		gameID, at, by, notes,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to close party sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (t *postgresLendingTx) FindOrderForUpdate(ctx context.Context, orderID int64) (*model.GameOrder, error) {
	o, err := scanOrder(t.tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM game_orders WHERE id = $1 FOR UPDATE`,
		orderID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock game order: %w", err)
	}
	return o, nil
}

func (t *postgresLendingTx) DeleteOrder(ctx context.Context, orderID int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM game_orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("failed to delete game order: %w", err)
	}
	return nil
}

// compile-time interface checks
var (
	_ LendingStore = (*PostgresLendingStore)(nil)
	_ LendingTx    = (*postgresLendingTx)(nil)
)
