package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/bradspelsmeny/internal/model"
)

const orderColumns = `id, game_id, table_id, first_name, last_name, phone, created_at`

// scanOrder は orderColumns の並びで注文を読み取る。
func scanOrder(row rowScanner) (*model.GameOrder, error) {
	o := &model.GameOrder{}
	if err := row.Scan(&o.ID, &o.GameID, &o.TableID, &o.FirstName, &o.LastName, &o.Phone, &o.CreatedAt); err != nil {
		return nil, err
	}
	return o, nil
}

// PostgresOrderRepo はPostgreSQLを使用したテーブル注文リポジトリ。
type PostgresOrderRepo struct {
	db *sql.DB
}

// NewPostgresOrderRepo はPostgresOrderRepoを生成する。
func NewPostgresOrderRepo(db *sql.DB) *PostgresOrderRepo {
	return &PostgresOrderRepo{db: db}
}

// Create は注文を作成し、採番されたIDをorder.IDに設定する。
// 同一テーブル・同一ゲームの注文が複数あっても一意制約は設けない。
func (r *PostgresOrderRepo) Create(ctx context.Context, order *model.GameOrder) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO game_orders (game_id, table_id, first_name, last_name, phone, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		order.GameID, order.TableID, order.FirstName, order.LastName, order.Phone, order.CreatedAt,
	).Scan(&order.ID)
	if err != nil {
		return fmt.Errorf("failed to insert game order: %w", err)
	}
	return nil
}

// List は未処理の注文を古い順に返す。
func (r *PostgresOrderRepo) List(ctx context.Context) ([]*model.GameOrder, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM game_orders ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list game orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.GameOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate game orders: %w", err)
	}
	return orders, nil
}

// Delete は注文を削除する。削除対象がない場合は false を返す。
func (r *PostgresOrderRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM game_orders WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete game order: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ OrderRepository = (*PostgresOrderRepo)(nil)
