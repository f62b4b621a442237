// ユーザーサービスのエントリポイント。
// ユーザーの作成・取得とuser:createdイベントの発行を担当する。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/gatekeep/internal/user"
	"github.com/nao1215/gatekeep/pkg/authclient"
	"github.com/nao1215/gatekeep/pkg/config"
	"github.com/nao1215/gatekeep/pkg/database"
	"github.com/nao1215/gatekeep/pkg/eventbus"
	"github.com/nao1215/gatekeep/pkg/httpclient"
	"github.com/nao1215/gatekeep/pkg/logger"
)

func main() {
	var cfg config.User
	if err := config.Load(&cfg); err != nil {
		log.Fatalf("ユーザーサービスの設定に失敗: %v", err)
	}
	lg, err := logger.New("user", cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	gin.SetMode(gin.ReleaseMode)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Error("ユーザーサービスが異常終了しました", zap.Error(err))
		stop()
		os.Exit(1)
	}
}

// run は依存リソースを生成してサーバーを起動し、終了時に解放する。
func run(ctx context.Context, cfg config.User, lg *zap.Logger) error {
	db, err := database.Open(ctx, cfg.DatabaseURLOr("file:user.db"))
	if err != nil {
		return err
	}
	defer db.Close()

	bus := eventbus.Open(ctx, cfg.Redis, lg)
	defer bus.Close()

	deps := user.Deps{DB: db, Bus: bus, Log: lg}
	if cfg.RequireAuth {
		deps.Verifier = authclient.New(httpclient.New(cfg.AuthServiceURL,
			httpclient.WithTimeout(cfg.Upstream.Timeout),
			httpclient.WithRetry(cfg.Upstream.Retries, cfg.Upstream.RetryBase),
		))
	}

	server, err := user.NewServer(ctx, cfg, deps)
	if err != nil {
		return err
	}

	lg.Info("ユーザーサービスを起動します",
		zap.String("port", cfg.Port),
		zap.String("database", string(db.Dialect)),
		zap.Bool("require_auth", cfg.RequireAuth),
	)
	return server.Run(ctx)
}
