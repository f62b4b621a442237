// 認証サービスのエントリポイント。
// デモ用資格情報でのログインとJWTの発行・検証を担当する。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/gatekeep/internal/auth"
	"github.com/nao1215/gatekeep/pkg/config"
	"github.com/nao1215/gatekeep/pkg/logger"
)

func main() {
	var cfg config.Auth
	if err := config.Load(&cfg); err != nil {
		log.Fatalf("認証サービスの設定に失敗: %v", err)
	}
	lg, err := logger.New("auth", cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	gin.SetMode(gin.ReleaseMode)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := auth.NewServer(cfg, lg)
	if err != nil {
		lg.Fatal("認証サーバーの初期化に失敗", zap.Error(err))
	}

	lg.Info("認証サービスを起動します", zap.String("port", cfg.Port))
	if err := server.Run(ctx); err != nil {
		lg.Fatal("認証サービスの起動に失敗", zap.Error(err))
	}
}
