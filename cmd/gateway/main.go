// API Gatewayサービスのエントリポイント。
// 認証サービスへのトークン検証の委譲とリクエストルーティングを担当する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/gatekeep/internal/gateway"
	"github.com/nao1215/gatekeep/pkg/config"
	"github.com/nao1215/gatekeep/pkg/logger"
)

func main() {
	var cfg config.Gateway
	if err := config.Load(&cfg); err != nil {
		log.Fatalf("Gatewayサービスの設定に失敗: %v", err)
	}
	lg, err := logger.New("gateway", cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	gin.SetMode(gin.ReleaseMode)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := gateway.NewServer(cfg, lg)

	lg.Info("Gatewayサービスを起動します",
		zap.String("port", cfg.Port),
		zap.String("auth", cfg.AuthServiceURL),
		zap.String("user", cfg.UserServiceURL),
		zap.String("order", cfg.OrderServiceURL),
	)
	if err := server.Run(ctx); err != nil {
		lg.Fatal("Gatewayサービスの起動に失敗", zap.Error(err))
	}
}
