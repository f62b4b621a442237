// Package token は共有秘密鍵による署名付き識別トークンの発行と検証を提供する。
//
// トークンはHS256で署名したJWTで、識別情報（id, username, role）と有効期限を含む。
// 失効リストは持たず、期限切れによってのみ無効になる。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken は署名不一致や形式不正など、期限切れ以外の検証失敗を表す。
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken は有効期限切れを表す。
	ErrExpiredToken = errors.New("expired token")
	// ErrEmptySecret は秘密鍵が設定されていないことを表す。起動時の致命的エラーとして扱う。
	ErrEmptySecret = errors.New("token secret is empty")
)

// DefaultTTL はトークンの既定の有効期間。
const DefaultTTL = time.Hour

// Identity はトークンに埋め込む識別情報。
type Identity struct {
	// ID はユーザーの数値ID。
	ID int64 `json:"id"`
	// Username はユーザー名。
	Username string `json:"username"`
	// Role はユーザーのロール。
	Role string `json:"role"`
}

// Claims はJWTのクレーム。
type Claims struct {
	// UserID はIdentity.IDに対応する。JSON上は "id"。
	UserID int64 `json:"id"`
	// Username はユーザー名。
	Username string `json:"username"`
	// Role はユーザーのロール。
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Identity はクレームから識別情報を取り出す。
func (c *Claims) Identity() Identity {
	return Identity{ID: c.UserID, Username: c.Username, Role: c.Role}
}

// Service はトークンの署名と検証を行う。並行利用しても安全。
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option はServiceの設定を変更する。
type Option func(*Service)

// WithClock は現在時刻の取得方法を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New は新しいServiceを生成する。ttlが0以下の場合はDefaultTTLを使用する。
func New(secret string, ttl time.Duration, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Service{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL は既定の有効期間を返す。
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Sign は既定の有効期間でトークンを発行する。
func (s *Service) Sign(id Identity) (string, error) {
	return s.SignWithTTL(id, s.ttl)
}

// SignWithTTL は有効期間 now+ttl のトークンを発行する。
func (s *Service) SignWithTTL(id Identity, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:   id.ID,
		Username: id.Username,
		Role:     id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証してクレームを返す。
// 期限切れはErrExpiredToken、それ以外の失敗はErrInvalidTokenでラップして返す。
// issuer/audienceの検証は行わない。
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpiredToken, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
