// Package httpserver は全サービス共通のGinルーター構成とHTTPサーバーの起動・停止を提供する。
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/gatekeep/pkg/apperror"
	"github.com/nao1215/gatekeep/pkg/config"
	"github.com/nao1215/gatekeep/pkg/metrics"
	"github.com/nao1215/gatekeep/pkg/middleware"
)

// NewRouter は共通ミドルウェアと /health, /metrics を設定したルーターを生成する。
// extraは共通ミドルウェアの後、/health と /metrics を含むすべてのルートに適用される。
func NewRouter(service string, log *zap.Logger, m *metrics.Metrics, extra ...gin.HandlerFunc) *gin.Engine {
	apperror.RegisterJSONFieldNames()

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(log))
	router.Use(middleware.AccessLog(log))
	router.Use(m.Middleware())
	router.Use(extra...)

	// ヘルスチェック（依存先は確認しない）
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": service})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))
	return router
}

// Run はaddrでhandlerを提供し、ctxがキャンセルされたらグレースフルシャットダウンする。
// シャットダウンが完了するまで戻らない。
func Run(ctx context.Context, addr string, handler http.Handler, cfg config.HTTP, log *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("リッスンに失敗: %w", err)
	}
	return Serve(ctx, ln, handler, cfg, log)
}

// Serve は既存のリスナーでhandlerを提供する。テストでは任意ポートのリスナーを渡す。
func Serve(ctx context.Context, ln net.Listener, handler http.Handler, cfg config.HTTP, log *zap.Logger) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTPサーバーを起動します", zap.String("addr", ln.Addr().String()))
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTPサーバーが異常終了: %w", err)
	case <-ctx.Done():
	}

	log.Info("HTTPサーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("グレースフルシャットダウンに失敗: %w", err)
	}
	return nil
}
