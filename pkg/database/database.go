// Package database はDSNに応じてSQLiteまたはPostgreSQLへの接続を開く。
//
// 接続と一緒にプレースホルダ形式を合わせたsquirrelのステートメントビルダーを返すので、
// リポジトリはどちらのデータベースかを意識せずにクエリを組み立てられる。
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib" // "pgx" ドライバを登録
	_ "modernc.org/sqlite"             // "sqlite" ドライバを登録
)

// Dialect はデータベースの種類。マイグレーションのディレクトリ名にも使う。
type Dialect string

const (
	// DialectSQLite はSQLite。
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres はPostgreSQL。
	DialectPostgres Dialect = "postgres"
)

// DB はデータベース接続とクエリビルダーの組。
type DB struct {
	*sql.DB
	// Dialect は接続先の種類。
	Dialect Dialect
	// Builder は接続先のプレースホルダ形式に合わせたクエリビルダー。
	Builder sq.StatementBuilderType
}

// DialectOf はDSNから接続先の種類を判定する。
// "postgres://" または "postgresql://" で始まればPostgreSQL、それ以外はSQLite。
func DialectOf(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open はDSNに応じたドライバで接続を開き、疎通を確認する。
func Open(ctx context.Context, dsn string) (*DB, error) {
	dialect := DialectOf(dsn)

	var (
		driver      string
		placeholder sq.PlaceholderFormat
	)
	switch dialect {
	case DialectPostgres:
		driver, placeholder = "pgx", sq.Dollar
	default:
		driver, placeholder = "sqlite", sq.Question
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("データベースのオープンに失敗: %w", err)
	}
	if dialect == DialectSQLite {
		// SQLiteは書き込みが直列化されるため接続を1本に絞る。:memory: でも接続ごとに別DBにならない。
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("データベースへの接続確認に失敗: %w", err)
	}

	return &DB{
		DB:      sqlDB,
		Dialect: dialect,
		Builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}, nil
}
