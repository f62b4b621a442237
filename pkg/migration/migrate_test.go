package migration

import (
	"context"
	"testing"
	"testing/fstest"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nao1215/gatekeep/pkg/database"
)

// testMigrations はテスト用のマイグレーション群。
var testMigrations = fstest.MapFS{
	"migrations/sqlite/00001_create_items.sql": {Data: []byte(`-- +goose Up
CREATE TABLE items (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL
);

-- +goose Down
DROP TABLE items;
`)},
	"migrations/sqlite/00002_add_note.sql": {Data: []byte(`-- +goose Up
ALTER TABLE items ADD COLUMN note TEXT;

-- +goose Down
ALTER TABLE items DROP COLUMN note;
`)},
	"migrations/postgres/00001_create_items.sql": {Data: []byte(`-- +goose Up
CREATE TABLE items (id BIGSERIAL PRIMARY KEY, name TEXT NOT NULL);

-- +goose Down
DROP TABLE items;
`)},
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("データベースのオープンに失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRun はマイグレーションの適用を検証する。
func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("方言のディレクトリのマイグレーションがすべて適用されること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		core, logs := observer.New(zap.InfoLevel)
		if err := Run(context.Background(), db, testMigrations, "migrations", zap.New(core)); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if _, err := db.Exec(`INSERT INTO items (name, note) VALUES ('a', 'b')`); err != nil {
			t.Errorf("マイグレーション後のテーブルに書き込めない: %v", err)
		}
		if got := logs.FilterMessage("マイグレーションを適用しました").Len(); got != 2 {
			t.Errorf("適用ログ件数 = %d, want 2", got)
		}
	})

	t.Run("2回目の実行では何も適用されないこと", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		if err := Run(context.Background(), db, testMigrations, "migrations", zap.NewNop()); err != nil {
			t.Fatalf("1回目のRun() error = %v", err)
		}

		core, logs := observer.New(zap.InfoLevel)
		if err := Run(context.Background(), db, testMigrations, "migrations", zap.New(core)); err != nil {
			t.Fatalf("2回目のRun() error = %v", err)
		}
		if got := logs.Len(); got != 0 {
			t.Errorf("2回目の適用ログ件数 = %d, want 0", got)
		}
	})

	t.Run("不正なSQLはエラーになること", func(t *testing.T) {
		t.Parallel()

		broken := fstest.MapFS{
			"m/sqlite/00001_broken.sql": {Data: []byte("-- +goose Up\nCREATE TABLE (;\n")},
		}
		if err := Run(context.Background(), openTestDB(t), broken, "m", zap.NewNop()); err == nil {
			t.Fatal("不正なSQLでエラーが返されなかった")
		}
	})
}
