// Package migration はembedされたSQLファイルによるスキーマのマイグレーションを管理する。
//
// gooseのProviderを使い、データベースの種類ごとのディレクトリ（sqlite, postgres）から
// 未適用のマイグレーションだけを順に適用する。
package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/nao1215/gatekeep/pkg/database"
)

// Run はfsys内の dir/<dialect> にあるマイグレーションを適用する。
// 適用済みのものはスキップする。ファイル名形式: 00001_description.sql（goose形式）
func Run(ctx context.Context, db *database.DB, fsys fs.FS, dir string, log *zap.Logger) error {
	sub, err := fs.Sub(fsys, path.Join(dir, string(db.Dialect)))
	if err != nil {
		return fmt.Errorf("マイグレーションディレクトリの取得に失敗: %w", err)
	}

	provider, err := goose.NewProvider(gooseDialect(db.Dialect), db.DB, sub)
	if err != nil {
		return fmt.Errorf("マイグレーションの準備に失敗: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		var partial *goose.PartialError
		if errors.As(err, &partial) && partial.Failed != nil {
			return fmt.Errorf("マイグレーション %05d の適用に失敗: %w", partial.Failed.Source.Version, partial.Err)
		}
		return fmt.Errorf("マイグレーションの適用に失敗: %w", err)
	}

	for _, r := range results {
		log.Info("マイグレーションを適用しました",
			zap.Int64("version", r.Source.Version),
			zap.String("file", r.Source.Path),
			zap.Duration("duration", r.Duration),
		)
	}
	return nil
}

// gooseDialect はDialectをgooseの方言に変換する。
func gooseDialect(d database.Dialect) goose.Dialect {
	if d == database.DialectPostgres {
		return goose.DialectPostgres
	}
	return goose.DialectSQLite3
}
