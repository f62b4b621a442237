package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// corsAllowedMethods はプリフライトで許可を返すメソッド。Gatewayが公開するのはGETとPOSTのみ。
var corsAllowedMethods = []string{http.MethodGet, http.MethodPost}

// corsAllowedHeaders はクライアントが送信してよいヘッダー。
var corsAllowedHeaders = []string{"Authorization", "Content-Type", HeaderRequestID}

// corsPolicy は許可するオリジンの集合。"*" を含む場合はすべて許可する。
type corsPolicy struct {
	any     bool
	origins map[string]struct{}
}

func newCORSPolicy(allowedOrigins []string) corsPolicy {
	p := corsPolicy{origins: make(map[string]struct{}, len(allowedOrigins))}
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			p.any = true
			continue
		}
		if o != "" {
			p.origins[o] = struct{}{}
		}
	}
	return p
}

// allowOrigin はAccess-Control-Allow-Originに返す値を返す。許可しない場合はfalse。
func (p corsPolicy) allowOrigin(origin string) (string, bool) {
	if origin == "" {
		return "", false
	}
	if p.any {
		return "*", true
	}
	_, ok := p.origins[origin]
	return origin, ok
}

// CORS は許可されたオリジンからのクロスオリジンリクエストを受け付けるGinミドルウェアを返す。
// プリフライトはここで応答し、許可されていないオリジンのプリフライトは403で拒否する。
// 通常のリクエストは許可の有無に関わらず後続へ渡し、ブラウザ側の判定に委ねる。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	policy := newCORSPolicy(allowedOrigins)
	methods := strings.Join(corsAllowedMethods, ", ")
	headers := strings.Join(corsAllowedHeaders, ", ")

	return func(c *gin.Context) {
		c.Writer.Header().Add("Vary", "Origin")
		allowed, ok := policy.allowOrigin(c.GetHeader("Origin"))
		if ok {
			c.Header("Access-Control-Allow-Origin", allowed)
			c.Header("Access-Control-Expose-Headers", HeaderRequestID)
		}

		if !isPreflight(c.Request) {
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", headers)
		c.Header("Access-Control-Max-Age", "86400")
		c.AbortWithStatus(http.StatusNoContent)
	}
}

// isPreflight はCORSのプリフライトリクエストかを判定する。
func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get("Origin") != "" &&
		r.Header.Get("Access-Control-Request-Method") != ""
}
