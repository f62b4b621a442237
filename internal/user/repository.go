package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/nao1215/gatekeep/pkg/database"
)

// usersTable はユーザーを保存するテーブル名。
const usersTable = "users"

// errNotFound はユーザーが存在しないことを表す。
var errNotFound = errors.New("user not found")

// User はユーザーエンティティ。作成後は変更されない。
type User struct {
	// ID はストアが採番する識別子。
	ID int64 `json:"id"`
	// Name は空でない表示名。
	Name string `json:"name"`
	// Email は任意のメールアドレス。未指定ならnull。
	Email *string `json:"email"`
}

// repository はusersテーブルへのアクセスを行う。
type repository struct {
	db *database.DB
}

// create はユーザーを挿入し、採番されたIDを含むエンティティを返す。
func (r *repository) create(ctx context.Context, name string, email *string) (User, error) {
	query, args, err := r.db.Builder.Insert(usersTable).
		Columns("name", "email").
		Values(name, email).
		Suffix("RETURNING id, name, email").
		ToSql()
	if err != nil {
		return User{}, fmt.Errorf("INSERTクエリの構築に失敗: %w", err)
	}

	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return User{}, fmt.Errorf("ユーザーの作成に失敗: %w", err)
	}
	return u, nil
}

// findByID はIDでユーザーを取得する。存在しなければerrNotFoundを返す。
func (r *repository) findByID(ctx context.Context, id int64) (User, error) {
	query, args, err := r.db.Builder.Select("id", "name", "email").
		From(usersTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return User{}, fmt.Errorf("SELECTクエリの構築に失敗: %w", err)
	}

	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, errNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	return u, nil
}

// scanUser は1行をUserに読み込む。
func scanUser(row *sql.Row) (User, error) {
	var (
		u     User
		email sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Name, &email); err != nil {
		return User{}, err
	}
	if email.Valid {
		u.Email = &email.String
	}
	return u, nil
}
