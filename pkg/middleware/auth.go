package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/gatekeep/pkg/apperror"
	"github.com/nao1215/gatekeep/pkg/token"
)

// Verifier はAuthorizationヘッダーを検証して識別情報を返す。
// 実装は認証サービスへの委譲（authclient.Client）。
type Verifier interface {
	Verify(ctx context.Context, authHeader string) (token.Identity, error)
}

// AuthObserver は認証の結果を受け取る。メトリクスの記録に使う。
type AuthObserver func(outcome string)

// 認証結果の区分。
const (
	AuthAuthenticated = "authenticated"
	AuthRejected      = "rejected"
	AuthFailed        = "failed"
)

// errMissingIdentity は識別情報が必要なハンドラにAuthenticateを通らずに到達したことを表す。
var errMissingIdentity = errors.New("リクエストに識別情報がない")

// identityKey はcontext.Contextに識別情報を格納するキーの型。
type identityKey struct{}

// WithIdentity はctxに検証済みの識別情報を設定する。
// Authenticateミドルウェア以外から呼ぶのはテストに限る。
func WithIdentity(ctx context.Context, id token.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom はctxから検証済みの識別情報を取り出す。
func IdentityFrom(ctx context.Context) (token.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(token.Identity)
	return id, ok
}

// Authenticate は認証サービスへトークン検証を委譲するGinミドルウェアを返す。
// ヘッダーが欠落・形式不正なら委譲せずに401を返す。
// 検証に成功した場合、識別情報をリクエストのcontext.Contextに設定する。
// observeがnilでなければ認証結果ごとに呼び出す。
func Authenticate(verifier Verifier, log *zap.Logger, observe AuthObserver) gin.HandlerFunc {
	if observe == nil {
		observe = func(string) {}
	}
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if _, ok := BearerToken(authHeader); !ok {
			observe(AuthRejected)
			apperror.Respond(c, log, apperror.Authentication("Missing or malformed authorization header"))
			return
		}

		id, err := verifier.Verify(c.Request.Context(), authHeader)
		if err != nil {
			if apperror.Is(err, apperror.KindAuthentication) {
				observe(AuthRejected)
			} else {
				observe(AuthFailed)
			}
			apperror.Respond(c, log, err)
			return
		}

		observe(AuthAuthenticated)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// RequireIdentity は識別情報を引数として受け取るハンドラをGinハンドラに変換する。
// Authenticateが適用されていないルートでは500を返す。
func RequireIdentity(log *zap.Logger, h func(c *gin.Context, id token.Identity)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c.Request.Context())
		if !ok {
			apperror.Respond(c, log, apperror.Internal("Internal server error", errMissingIdentity))
			return
		}
		h(c, id)
	}
}

// BearerToken は "Bearer <token>" 形式のヘッダーからトークン部分を取り出す。
// スキーム名の大文字小文字は区別しない。
func BearerToken(header string) (string, bool) {
	scheme, tok, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
