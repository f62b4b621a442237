// Package authclient は認証サービスへトークン検証を委譲するクライアントを提供する。
//
// 識別情報の唯一の出所は認証サービスであり、呼び出し側はトークンを自分で検証しない。
package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nao1215/gatekeep/pkg/apperror"
	"github.com/nao1215/gatekeep/pkg/httpclient"
	"github.com/nao1215/gatekeep/pkg/token"
)

// validatePath は認証サービスの検証エンドポイント。
const validatePath = "/validate"

// Client は認証サービスの検証エンドポイントを呼び出す。
type Client struct {
	http *httpclient.Client
}

// New は認証サービス向けのhttpclientから検証クライアントを生成する。
func New(c *httpclient.Client) *Client {
	return &Client{http: c}
}

// Verify はAuthorizationヘッダーをそのまま認証サービスへ転送し、検証済みの識別情報を返す。
// 認証サービスが401を返した場合はAuthenticationエラー、到達不能や想定外の応答はInternalエラーを返す。
func (c *Client) Verify(ctx context.Context, authHeader string) (token.Identity, error) {
	header := http.Header{}
	header.Set("Authorization", authHeader)

	resp, err := c.http.Do(ctx, http.MethodGet, validatePath, header, nil)
	if err != nil {
		return token.Identity{}, apperror.Internal("Internal server error", fmt.Errorf("認証サービスの呼び出しに失敗: %w", err))
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var id token.Identity
		if err := json.Unmarshal(resp.Body, &id); err != nil {
			return token.Identity{}, apperror.Internal("Internal server error", fmt.Errorf("認証サービスの応答の解析に失敗: %w", err))
		}
		return id, nil
	case http.StatusUnauthorized:
		return token.Identity{}, apperror.Authentication("Unauthorized")
	default:
		return token.Identity{}, apperror.Internal("Internal server error",
			fmt.Errorf("認証サービスが想定外のステータスを返した: status=%d", resp.StatusCode))
	}
}
