// Package config は各サービスの設定を環境変数から読み込む。
//
// .envファイルが存在すれば先に読み込み、その後cleanenvで構造体に展開する。
// 既定値は docker-compose 構成（auth:3000, user:3001, order:3002, gateway:3003）に合わせている。
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// HTTP はHTTPサーバーの共通設定。
type HTTP struct {
	// ShutdownTimeout はグレースフルシャットダウンの待ち時間。
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	// ReadHeaderTimeout はリクエストヘッダー読み取りのタイムアウト。
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" env-default:"5s"`
}

// Log はロガーの設定。
type Log struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"json"`
}

// Redis はイベントバスの接続設定。
type Redis struct {
	// Bus は "redis" または "memory"（単一プロセス用）。
	Bus      string `env:"EVENT_BUS" env-default:"redis"`
	Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

// Upstream はサービス間HTTP呼び出しの設定。
type Upstream struct {
	// Timeout は1回の呼び出しのタイムアウト。
	Timeout time.Duration `env:"UPSTREAM_TIMEOUT" env-default:"10s"`
	// Retries は冪等な呼び出しの最大リトライ回数。
	Retries uint64 `env:"UPSTREAM_RETRIES" env-default:"2"`
	// RetryBase は指数バックオフの初期待ち時間。
	RetryBase time.Duration `env:"UPSTREAM_RETRY_BASE" env-default:"100ms"`
}

// Gateway はGatewayサービスの設定。
type Gateway struct {
	Port            string   `env:"GATEWAY_PORT" env-default:"3003"`
	AuthServiceURL  string   `env:"AUTH_SERVICE_URL" env-default:"http://auth-service:3000"`
	UserServiceURL  string   `env:"USER_SERVICE_URL" env-default:"http://user-service:3001"`
	OrderServiceURL string   `env:"ORDER_SERVICE_URL" env-default:"http://order-service:3002"`
	AllowedOrigins  []string `env:"ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`
	HTTP            HTTP
	Upstream        Upstream
	Log             Log
}

// Auth はAuthサービスの設定。
type Auth struct {
	Port      string        `env:"PORT" env-default:"3000"`
	JWTSecret string        `env:"JWT_SECRET" env-default:"secret"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" env-default:"1h"`
	// DemoUser はログイン可能な唯一の資格情報。
	DemoUser DemoUser
	HTTP     HTTP
	Log      Log
}

// DemoUser は静的に設定されたデモ用資格情報。
type DemoUser struct {
	ID       int64  `env:"DEMO_USER_ID" env-default:"1"`
	Username string `env:"DEMO_USERNAME" env-default:"admin"`
	Password string `env:"DEMO_PASSWORD" env-default:"password"`
	Role     string `env:"DEMO_ROLE" env-default:"user"`
}

// Domain はUser/Orderサービス共通の設定。
type Domain struct {
	// DatabaseURL は "postgres://" で始まればPostgreSQL、それ以外はSQLiteのDSNとして扱う。
	DatabaseURL string `env:"DATABASE_URL"`
	// RequireAuth がtrueの場合、サービス自身もAuthサービスへトークン検証を委譲する。
	RequireAuth    bool   `env:"REQUIRE_AUTH" env-default:"false"`
	AuthServiceURL string `env:"AUTH_SERVICE_URL" env-default:"http://auth-service:3000"`
	Redis          Redis
	Upstream       Upstream
	HTTP           HTTP
	Log            Log
}

// User はUserサービスの設定。
type User struct {
	Port string `env:"USER_SERVICE_PORT" env-default:"3001"`
	Domain
}

// Order はOrderサービスの設定。
type Order struct {
	Port string `env:"ORDER_SERVICE_PORT" env-default:"3002"`
	Domain
}

// Load は.envファイル（任意）と環境変数からcfgを読み込む。
func Load[T any](cfg *T) error {
	// .envは任意。存在しなければ環境変数のみを使う。
	_ = godotenv.Load()

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	return nil
}

// DatabaseURLOr は未設定の場合にfallbackを返す。
func (d Domain) DatabaseURLOr(fallback string) string {
	if d.DatabaseURL == "" {
		return fallback
	}
	return d.DatabaseURL
}
