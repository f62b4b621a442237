package order

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/nao1215/gatekeep/pkg/database"
)

// ordersTable は注文を保存するテーブル名。
const ordersTable = "orders"

// Order は注文エンティティ。UserIDは作成リクエストを認証した利用者のID。
type Order struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"userId"`
	Item     string `json:"item"`
	Quantity int64  `json:"quantity"`
}

// repository はordersテーブルへのアクセスを行う。
type repository struct {
	db *database.DB
}

// create は注文を挿入し、採番されたIDを含むエンティティを返す。
func (r *repository) create(ctx context.Context, userID int64, item string, quantity int64) (Order, error) {
	query, args, err := r.db.Builder.Insert(ordersTable).
		Columns("user_id", "item", "quantity").
		Values(userID, item, quantity).
		Suffix("RETURNING id, user_id, item, quantity").
		ToSql()
	if err != nil {
		return Order{}, fmt.Errorf("INSERTクエリの構築に失敗: %w", err)
	}

	var o Order
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&o.ID, &o.UserID, &o.Item, &o.Quantity); err != nil {
		return Order{}, fmt.Errorf("注文の作成に失敗: %w", err)
	}
	return o, nil
}

// findByUser は指定ユーザーの注文をID順に返す。該当がなければ空のスライスを返す。
func (r *repository) findByUser(ctx context.Context, userID int64) ([]Order, error) {
	query, args, err := r.db.Builder.Select("id", "user_id", "item", "quantity").
		From(ordersTable).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("SELECTクエリの構築に失敗: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("注文の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	orders := make([]Order, 0)
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Item, &o.Quantity); err != nil {
			return nil, fmt.Errorf("注文の読み取りに失敗: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("注文の読み取りに失敗: %w", err)
	}
	return orders, nil
}

