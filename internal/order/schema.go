package order

import (
	"context"
	"embed"

	"go.uber.org/zap"

	"github.com/nao1215/gatekeep/pkg/database"
	"github.com/nao1215/gatekeep/pkg/migration"
)

// migrations はデータベースの種類ごとのスキーマ定義。
//
//go:embed migrations
var migrations embed.FS

// initSchema はordersテーブルのマイグレーションを適用する。
func initSchema(ctx context.Context, db *database.DB, log *zap.Logger) error {
	return migration.Run(ctx, db, migrations, "migrations", log)
}
