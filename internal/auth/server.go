package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/gatekeep/pkg/apperror"
	"github.com/nao1215/gatekeep/pkg/config"
	"github.com/nao1215/gatekeep/pkg/httpserver"
	"github.com/nao1215/gatekeep/pkg/metrics"
	"github.com/nao1215/gatekeep/pkg/middleware"
	"github.com/nao1215/gatekeep/pkg/token"
)

// serviceName はログとメトリクスに使うサービス名。
const serviceName = "auth"

// Server は認証サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// addr はサーバーのリッスンアドレス。
	addr string
	// http はHTTPサーバーの共通設定。
	http config.HTTP
	// tokens はトークンの署名と検証を行う。
	tokens *token.Service
	// demo はログイン可能な唯一の資格情報。
	demo credential
	// log は構造化ロガー。
	log *zap.Logger
}

// credential は静的に設定された資格情報。パスワードはハッシュ化して保持する。
type credential struct {
	identity     token.Identity
	passwordHash []byte
}

// NewServer は新しい認証サーバーを生成する。
// 秘密鍵が空の場合は起動時エラーとする。
func NewServer(cfg config.Auth, log *zap.Logger) (*Server, error) {
	tokens, err := token.New(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("トークンサービスの初期化に失敗: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.DemoUser.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("資格情報のハッシュ化に失敗: %w", err)
	}

	m := metrics.New(serviceName)
	s := &Server{
		router: httpserver.NewRouter(serviceName, log, m),
		addr:   ":" + cfg.Port,
		http:   cfg.HTTP,
		tokens: tokens,
		demo: credential{
			identity: token.Identity{
				ID:       cfg.DemoUser.ID,
				Username: cfg.DemoUser.Username,
				Role:     cfg.DemoUser.Role,
			},
			passwordHash: hash,
		},
		log: log,
	}
	s.setupRoutes()

	return s, nil
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
func (s *Server) setupRoutes() {
	s.router.POST("/login", s.handleLogin())
	s.router.GET("/validate", s.handleValidate())
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleLogin は資格情報を照合してトークンを発行するハンドラを返す。
// ユーザー名とパスワードのどちらが誤っていても同じ401を返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := apperror.BindJSON(c, "Invalid request payload", &req); err != nil {
			apperror.Respond(c, s.log, err)
			return
		}

		if !s.demo.matches(req.Username, req.Password) {
			s.log.Info("ログイン失敗", zap.String("request_id", middleware.GetRequestID(c)))
			apperror.Respond(c, s.log, apperror.Authentication("Invalid credentials"))
			return
		}

		signed, err := s.tokens.Sign(s.demo.identity)
		if err != nil {
			apperror.Respond(c, s.log, apperror.Internal("Internal server error", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"token": signed})
	}
}

// handleValidate はBearerトークンを検証してクレームを返すハンドラを返す。
// 署名不正・形式不正・期限切れはクライアントから区別できない同じ401になる。
func (s *Server) handleValidate() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := middleware.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			apperror.Respond(c, s.log, apperror.Authentication("Missing or malformed authorization header"))
			return
		}

		claims, err := s.tokens.Verify(raw)
		if err != nil {
			s.log.Debug("トークン検証失敗",
				zap.Bool("expired", errors.Is(err, token.ErrExpiredToken)),
				zap.Error(err),
			)
			apperror.Respond(c, s.log, apperror.Authentication("Invalid or expired token"))
			return
		}

		c.JSON(http.StatusOK, claims)
	}
}

// matches はユーザー名を定数時間で比較し、パスワードをbcryptで照合する。
// ユーザー名が一致しなくてもbcryptの照合は必ず行う。
func (cr credential) matches(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(cr.identity.Username)) == 1
	passOK := bcrypt.CompareHashAndPassword(cr.passwordHash, []byte(password)) == nil
	return userOK && passOK
}
