package gateway

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/gatekeep/pkg/authclient"
	"github.com/nao1215/gatekeep/pkg/config"
	"github.com/nao1215/gatekeep/pkg/httpclient"
	"github.com/nao1215/gatekeep/pkg/httpserver"
	"github.com/nao1215/gatekeep/pkg/metrics"
	"github.com/nao1215/gatekeep/pkg/middleware"
)

// serviceName はログとメトリクスに使うサービス名。
const serviceName = "gateway"

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// addr はサーバーのリッスンアドレス。
	addr string
	// http はHTTPサーバーの共通設定。
	http config.HTTP
	// upstreams は転送先サービスのクライアント。
	upstreams upstreams
	// verifier は認証サービスへのトークン検証の委譲先。
	verifier middleware.Verifier
	// metrics はサービスのメトリクス。
	metrics *metrics.Metrics
	// log は構造化ロガー。
	log *zap.Logger
}

// upstreams は転送先サービスごとのHTTPクライアント。
type upstreams struct {
	Auth  *httpclient.Client
	User  *httpclient.Client
	Order *httpclient.Client
}

// NewServer は新しいGatewayサーバーを生成する。
// 上流呼び出しにはタイムアウトを設け、冪等な呼び出しだけをリトライする。
func NewServer(cfg config.Gateway, log *zap.Logger) *Server {
	opts := []httpclient.Option{
		httpclient.WithTimeout(cfg.Upstream.Timeout),
		httpclient.WithRetry(cfg.Upstream.Retries, cfg.Upstream.RetryBase),
	}
	ups := upstreams{
		Auth:  httpclient.New(cfg.AuthServiceURL, opts...),
		User:  httpclient.New(cfg.UserServiceURL, opts...),
		Order: httpclient.New(cfg.OrderServiceURL, opts...),
	}

	m := metrics.New(serviceName)
	router := httpserver.NewRouter(serviceName, log, m, middleware.CORS(cfg.AllowedOrigins))

	s := &Server{
		router:    router,
		addr:      ":" + cfg.Port,
		http:      cfg.HTTP,
		upstreams: ups,
		verifier:  authclient.New(ups.Auth),
		metrics:   m,
		log:       log,
	}
	s.setupRoutes()

	return s
}

// Handler はルーティング済みのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるまで提供する。
func (s *Server) Run(ctx context.Context) error {
	return httpserver.Run(ctx, s.addr, s.router, s.http, s.log)
}

// setupRoutes はAPIルーティングを設定する。
// /health と /metrics は共通ルーターで登録済み。
func (s *Server) setupRoutes() {
	// ログイン（認証不要。トークンを得るための入口）
	s.router.POST("/login", s.handleLogin())

	// 認証必須のエンドポイント
	api := s.router.Group("")
	api.Use(middleware.Authenticate(s.verifier, s.log, s.metrics.ObserveAuth))
	{
		api.POST("/users", s.handleCreateUser())
		api.GET("/users/:userId", s.handleGetUser())
		api.POST("/orders", middleware.RequireIdentity(s.log, s.handleCreateOrder))
		api.GET("/orders/user", middleware.RequireIdentity(s.log, s.handleListMyOrders))
	}
}
