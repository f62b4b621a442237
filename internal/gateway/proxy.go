package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/gatekeep/pkg/apperror"
	"github.com/nao1215/gatekeep/pkg/httpclient"
	"github.com/nao1215/gatekeep/pkg/metrics"
	"github.com/nao1215/gatekeep/pkg/token"
)

// maxBodyBytes は転送するリクエストボディの上限。
const maxBodyBytes = 1 << 20

// ルートごとの転送失敗メッセージ。
const (
	msgLoginFailed       = "Gateway encountered an error during login."
	msgCreateUserFailed  = "Gateway error creating user."
	msgGetUserFailed     = "Gateway error fetching user."
	msgCreateOrderFailed = "Gateway error creating order."
	msgListOrdersFailed  = "Gateway error fetching orders."
)

// proxyRequest は上流へ転送する1件のリクエスト。
type proxyRequest struct {
	// route はメトリクスとログに使うルート名。
	route string
	// upstream は転送先サービス。
	upstream *httpclient.Client
	// method はHTTPメソッド。
	method string
	// path はパスパラメータを置換済みの上流パス。
	path string
	// body は転送するボディ。nilなら送らない。
	body []byte
	// failMessage は上流に到達できなかった場合にクライアントへ返すメッセージ。
	failMessage string
}

// handleLogin はログインを認証サービスへそのまま転送するハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := readBody(c)
		if err != nil {
			apperror.Respond(c, s.log, err)
			return
		}
		s.doProxy(c, proxyRequest{
			route:       "/login",
			upstream:    s.upstreams.Auth,
			method:      http.MethodPost,
			path:        "/login",
			body:        body,
			failMessage: msgLoginFailed,
		})
	}
}

// handleCreateUser はユーザー作成をユーザーサービスへ転送するハンドラを返す。
func (s *Server) handleCreateUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := readBody(c)
		if err != nil {
			apperror.Respond(c, s.log, err)
			return
		}
		s.doProxy(c, proxyRequest{
			route:       "/users",
			upstream:    s.upstreams.User,
			method:      http.MethodPost,
			path:        "/users",
			body:        body,
			failMessage: msgCreateUserFailed,
		})
	}
}

// handleGetUser はユーザー取得をユーザーサービスへ転送するハンドラを返す。
func (s *Server) handleGetUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.doProxy(c, proxyRequest{
			route:       "/users/:userId",
			upstream:    s.upstreams.User,
			method:      http.MethodGet,
			path:        "/users/" + url.PathEscape(c.Param("userId")),
			failMessage: msgGetUserFailed,
		})
	}
}

// handleCreateOrder は検証済みの利用者IDをuserIdに設定して注文作成を転送する。
// クライアントが送ったuserIdは必ず上書きする。
func (s *Server) handleCreateOrder(c *gin.Context, id token.Identity) {
	raw, err := readBody(c)
	if err != nil {
		apperror.Respond(c, s.log, err)
		return
	}
	body, err := injectUserID(raw, id.ID)
	if err != nil {
		apperror.Respond(c, s.log, err)
		return
	}
	s.doProxy(c, proxyRequest{
		route:       "/orders",
		upstream:    s.upstreams.Order,
		method:      http.MethodPost,
		path:        "/orders",
		body:        body,
		failMessage: msgCreateOrderFailed,
	})
}

// handleListMyOrders は呼び出し元自身の注文一覧を注文サービスから取得する。
func (s *Server) handleListMyOrders(c *gin.Context, id token.Identity) {
	s.doProxy(c, proxyRequest{
		route:       "/orders/user",
		upstream:    s.upstreams.Order,
		method:      http.MethodGet,
		path:        "/orders/user/" + strconv.FormatInt(id.ID, 10),
		failMessage: msgListOrdersFailed,
	})
}

// doProxy はリクエストを上流サービスへ転送し、応答のステータスとボディをそのまま返す。
// AuthorizationヘッダーとContent-Typeを転送し、リクエストIDはcontext経由で伝播する。
// 上流に到達できなければルートごとのメッセージで500を返す。
func (s *Server) doProxy(c *gin.Context, p proxyRequest) {
	header := http.Header{}
	if ct := c.GetHeader("Content-Type"); ct != "" && p.body != nil {
		header.Set("Content-Type", ct)
	}
	if authz := c.GetHeader("Authorization"); authz != "" {
		header.Set("Authorization", authz)
	}

	path := p.path
	if c.Request.URL.RawQuery != "" {
		path += "?" + c.Request.URL.RawQuery
	}

	resp, err := p.upstream.Do(c.Request.Context(), p.method, path, header, p.body)
	if err != nil {
		s.metrics.ObserveProxy(p.route, metrics.ProxyFailed)
		apperror.Respond(c, s.log, apperror.Internal(p.failMessage, fmt.Errorf("上流サービスとの通信に失敗: route=%s: %w", p.route, err)))
		return
	}
	s.metrics.ObserveProxy(p.route, metrics.ProxyRelayed)

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode >= http.StatusBadRequest {
		body := resp.Body
		if len(body) == 0 {
			// 上流がボディなしで失敗した場合はルートごとのメッセージを補う
			body, _ = json.Marshal(gin.H{"error": p.failMessage})
			contentType = "application/json"
		}
		apperror.Respond(c, s.log, apperror.Upstream(resp.StatusCode, contentType, body))
		return
	}

	if len(resp.Body) == 0 {
		c.Status(resp.StatusCode)
		return
	}
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, resp.Body)
}

// readBody はリクエストボディを上限付きで読み取る。
func readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperror.Validation("Invalid request payload",
				apperror.FieldError{Rule: "body", Message: "request body is too large"})
		}
		return nil, apperror.Internal("Internal server error", fmt.Errorf("リクエストボディの読み取りに失敗: %w", err))
	}
	return body, nil
}

// injectUserID はJSONオブジェクトのuserIdをuserIDで上書きする。大文字小文字違いのキーも除去し、他のフィールドはそのまま残す。
// 空のボディは空オブジェクトとして扱い、オブジェクト以外のJSONはValidationエラーにする。
func injectUserID(raw []byte, userID int64) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			return nil, apperror.Validation("Invalid request payload",
				apperror.FieldError{Rule: "json", Message: "request body must be a JSON object"})
		}
	}

	// encoding/jsonはキーを大文字小文字を区別せずに照合するため、表記揺れも取り除く
	for k := range fields {
		if strings.EqualFold(k, "userId") {
			delete(fields, k)
		}
	}
	fields["userId"] = json.RawMessage(strconv.FormatInt(userID, 10))
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, apperror.Internal("Internal server error", fmt.Errorf("転送ボディの生成に失敗: %w", err))
	}
	return body, nil
}

