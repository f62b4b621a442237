package order

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/gatekeep/pkg/apperror"
	"github.com/nao1215/gatekeep/pkg/config"
	"github.com/nao1215/gatekeep/pkg/database"
	"github.com/nao1215/gatekeep/pkg/event"
	"github.com/nao1215/gatekeep/pkg/eventbus"
	"github.com/nao1215/gatekeep/pkg/httpserver"
	"github.com/nao1215/gatekeep/pkg/metrics"
	"github.com/nao1215/gatekeep/pkg/middleware"
)

// serviceName はログとメトリクスに使うサービス名。
const serviceName = "order"

// Deps はサーバーが使用する外部リソース。起動時に一度だけ生成して渡す。
type Deps struct {
	DB       *database.DB
	Bus      eventbus.Bus
	Verifier middleware.Verifier
	Log      *zap.Logger
}

// Server は注文サービスのHTTPサーバー。
type Server struct {
	router          *gin.Engine
	addr            string
	http            config.HTTP
	repo            *repository
	bus             eventbus.Subscriber
	emitter         *eventbus.Emitter
	metrics         *metrics.Metrics
	log             *zap.Logger
	// resubscribeBase はイベントログ購読の再試行の初期待ち時間。
	resubscribeBase time.Duration
}

// NewServer は新しい注文サーバーを生成する。スキーマのマイグレーションもここで行う。
func NewServer(ctx context.Context, cfg config.Order, deps Deps) (*Server, error) {
	if err := initSchema(ctx, deps.DB, deps.Log); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	m := metrics.New(serviceName)
	s := &Server{
		router:          httpserver.NewRouter(serviceName, deps.Log, m),
		addr:            ":" + cfg.Port,
		http:            cfg.HTTP,
		repo:            &repository{db: deps.DB},
		bus:             deps.Bus,
		emitter:         eventbus.NewEmitter(deps.Bus, deps.Log, m.ObservePublish),
		metrics:         m,
		log:             deps.Log,
		resubscribeBase: eventbus.DefaultResubscribeBase,
	}
	s.setupRoutes(deps.Verifier)

	return s, nil
}

// Handler はルーティング済みのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はイベントログの購読を維持しながらHTTPサーバーを起動し、ctxがキャンセルされるまで提供する。
// バスに接続できない間も起動は続け、購読はバックグラウンドで再試行する。
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		eventbus.Keep(ctx, s.bus, event.ChannelOrderCreated, s.eventLogHandler(), s.resubscribeBase, s.log)
	}()

	err := httpserver.Run(ctx, s.addr, s.router, s.http, s.log)
	cancel()
	<-done
	return err
}

// StartEventLog はorder:createdを購読して受信内容をログに記録する。
func (s *Server) StartEventLog(ctx context.Context) (eventbus.Subscription, error) {
	return s.bus.Subscribe(ctx, event.ChannelOrderCreated, s.eventLogHandler())
}

// eventLogHandler は受信したイベントをログとメトリクスに記録するハンドラを返す。
func (s *Server) eventLogHandler() eventbus.Handler {
	return eventbus.LogHandler(s.log, s.metrics.ObserveEvent)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(verifier middleware.Verifier) {
	orders := s.router.Group("/orders")
	if verifier != nil {
		orders.Use(middleware.Authenticate(verifier, s.log, s.metrics.ObserveAuth))
	}
	orders.POST("", s.handleCreateOrder())
	orders.GET("/user/:userId", s.handleListByUser())
}

// createOrderRequest は注文作成リクエストのボディ。
// userIdはゲートウェイが検証済みの識別情報で上書きして転送する。
type createOrderRequest struct {
	UserID   int64  `json:"userId" binding:"required,gt=0"`
	Item     string `json:"item" binding:"required,min=1"`
	Quantity int64  `json:"quantity" binding:"required,gt=0"`
}

// handleCreateOrder は注文を作成してorder:createdを発行するハンドラを返す。
func (s *Server) handleCreateOrder() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrderRequest
		if err := apperror.BindJSON(c, "Invalid request payload", &req); err != nil {
			apperror.Respond(c, s.log, err)
			return
		}

		o, err := s.repo.create(c.Request.Context(), req.UserID, req.Item, req.Quantity)
		if err != nil {
			apperror.Respond(c, s.log, apperror.Internal("Internal server error", err))
			return
		}

		s.emitter.Emit(c.Request.Context(), event.ChannelOrderCreated, o)
		c.JSON(http.StatusCreated, o)
	}
}

// handleListByUser は指定ユーザーの注文一覧を返すハンドラを返す。
// 該当がなくても404ではなく空配列を返す。
func (s *Server) handleListByUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
		if err != nil {
			apperror.Respond(c, s.log, apperror.Validation("userId must be a number",
				apperror.FieldError{Field: "userId", Rule: "number", Message: "must be an integer"}))
			return
		}

		orders, err := s.repo.findByUser(c.Request.Context(), userID)
		if err != nil {
			apperror.Respond(c, s.log, apperror.Internal("Internal server error", err))
			return
		}

		c.JSON(http.StatusOK, orders)
	}
}
