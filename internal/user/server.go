package user

import (
	"context"
	"errors"
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
const serviceName = "user"

// Deps はサーバーが使用する外部リソース。起動時に一度だけ生成して渡す。
type Deps struct {
	// DB はユーザーを保存するデータベース。
	DB *database.DB
	// Bus はイベントの発行と購読に使う。
	Bus eventbus.Bus
	// Verifier が設定されていれば、全APIでトークン検証を認証サービスへ委譲する。
	Verifier middleware.Verifier
	// Log は構造化ロガー。
	Log *zap.Logger
}

// Server はユーザーサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router          *gin.Engine
	// addr はサーバーのリッスンアドレス。
	addr            string
	// http はHTTPサーバーの共通設定。
	http            config.HTTP
	// repo はusersテーブルへのアクセス。
	repo            *repository
	// bus はイベントの購読に使う。
	bus             eventbus.Subscriber
	// emitter は作成イベントを発行する。
	emitter         *eventbus.Emitter
	// resubscribeBase はイベントログ購読の再試行の初期待ち時間。
	resubscribeBase time.Duration
	// metrics はサービスのメトリクス。
	metrics         *metrics.Metrics
	// log は構造化ロガー。
	log             *zap.Logger
}

// NewServer は新しいユーザーサーバーを生成する。スキーマのマイグレーションもここで行う。
func NewServer(ctx context.Context, cfg config.User, deps Deps) (*Server, error) {
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
		eventbus.Keep(ctx, s.bus, event.ChannelUserCreated, s.eventLogHandler(), s.resubscribeBase, s.log)
	}()

	err := httpserver.Run(ctx, s.addr, s.router, s.http, s.log)
	cancel()
	<-done
	return err
}

// StartEventLog はuser:createdを購読して受信内容をログに記録する。
func (s *Server) StartEventLog(ctx context.Context) (eventbus.Subscription, error) {
	return s.bus.Subscribe(ctx, event.ChannelUserCreated, s.eventLogHandler())
}

// eventLogHandler は受信したイベントをログとメトリクスに記録するハンドラを返す。
func (s *Server) eventLogHandler() eventbus.Handler {
	return eventbus.LogHandler(s.log, s.metrics.ObserveEvent)
}

// setupRoutes はAPIルーティングを設定する。
// verifierがnilでなければゲートウェイと同じ方法で認証を要求する。
func (s *Server) setupRoutes(verifier middleware.Verifier) {
	users := s.router.Group("/users")
	if verifier != nil {
		users.Use(middleware.Authenticate(verifier, s.log, s.metrics.ObserveAuth))
	}
	users.POST("", s.handleCreateUser())
	users.GET("/:userId", s.handleGetUser())
}

// createUserRequest はユーザー作成リクエストのボディ。
type createUserRequest struct {
	Name  string  `json:"name" binding:"required,min=1"`
	Email *string `json:"email" binding:"omitempty,email"`
}

// handleCreateUser はユーザーを作成してuser:createdを発行するハンドラを返す。
// 発行の失敗は作成結果に影響しない。
func (s *Server) handleCreateUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createUserRequest
		if err := apperror.BindJSON(c, "Invalid request payload", &req); err != nil {
			apperror.Respond(c, s.log, err)
			return
		}

		u, err := s.repo.create(c.Request.Context(), req.Name, req.Email)
		if err != nil {
			apperror.Respond(c, s.log, apperror.Internal("Internal server error", err))
			return
		}

		s.emitter.Emit(c.Request.Context(), event.ChannelUserCreated, u)
		c.JSON(http.StatusCreated, u)
	}
}

// handleGetUser はIDでユーザーを返すハンドラを返す。
func (s *Server) handleGetUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param("userId")
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			apperror.Respond(c, s.log, apperror.Validation("userId must be a number",
				apperror.FieldError{Field: "userId", Rule: "number", Message: "must be an integer"}))
			return
		}

		u, err := s.repo.findByID(c.Request.Context(), id)
		if errors.Is(err, errNotFound) {
			apperror.Respond(c, s.log, apperror.NotFound(fmt.Sprintf("User %d not found", id)))
			return
		}
		if err != nil {
			apperror.Respond(c, s.log, apperror.Internal("Internal server error", err))
			return
		}

		c.JSON(http.StatusOK, u)
	}
}
