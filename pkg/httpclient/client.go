package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// headerKeyRequestID はリクエストIDを伝播するHTTPヘッダーキー。
const headerKeyRequestID = "X-Request-ID"

// Client はサービス間通信用のHTTPクライアント。
// タイムアウトとリトライの設定を持つ。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サービスのベースURL。
	baseURL string
	// retries は冪等なリクエストの最大リトライ回数。0ならリトライしない。
	retries uint64
	// retryBase は指数バックオフの初期待ち時間。
	retryBase time.Duration
}

// Option はClientの設定を変更する。
type Option func(*Client)

// WithTimeout は1回の呼び出しのタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetry は冪等なリクエスト（GET/HEAD）の最大リトライ回数と初期待ち時間を設定する。
func WithRetry(maxRetries uint64, base time.Duration) Option {
	return func(c *Client) {
		c.retries = maxRetries
		c.retryBase = base
	}
}

// New は新しいサービス間通信用HTTPクライアントを生成する。
// baseURLには接続先サービスのベースURL（例: "http://auth-service:3000"）を指定する。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:   baseURL,
		retryBase: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response は上流サービスの応答。ボディは読み取り済み。
type Response struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Header はレスポンスヘッダー。
	Header http.Header
	// Body はレスポンスボディ。
	Body []byte
}

// StatusError は2xx以外の応答を表す。
type StatusError struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Body はレスポンスボディ。
	Body []byte
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTPエラー: status=%d, body=%s", e.StatusCode, string(e.Body))
}

// errRetryableStatus はリトライ対象のステータスを受け取ったことを表す内部エラー。
var errRetryableStatus = errors.New("retryable status")

// Do はリクエストを送信し、ステータスに関わらず応答をそのまま返す。
// エラーになるのは送信自体が失敗した場合のみ。
// GET/HEADは通信エラーと502/503/504の場合に指数バックオフでリトライする。
func (c *Client) Do(ctx context.Context, method, path string, header http.Header, body []byte) (*Response, error) {
	if !isIdempotent(method) || c.retries == 0 {
		return c.once(ctx, method, path, header, body)
	}

	var last *Response
	backoff := retry.WithMaxRetries(c.retries, retry.NewExponential(c.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.once(ctx, method, path, header, body)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		last = resp
		if isRetryableStatus(resp.StatusCode) {
			return retry.RetryableError(errRetryableStatus)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errRetryableStatus) {
		return nil, err
	}
	return last, nil
}

// once は1回だけリクエストを送信する。
func (c *Client) once(ctx context.Context, method, path string, header http.Header, body []byte) (*Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	// コンテキストからリクエストIDを伝播する
	if requestID, ok := RequestIDFrom(ctx); ok && req.Header.Get(headerKeyRequestID) == "" {
		req.Header.Set(headerKeyRequestID, requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

// PostJSON は指定パスにJSONボディでPOSTリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) PostJSON(ctx context.Context, path string, body any, result any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, result)
}

// GetJSON は指定パスにGETリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, result)
}

// doJSON はJSON形式のHTTPリクエストを実行する共通処理。
// 2xx以外の応答は*StatusErrorとして返す。
func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var payload []byte
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		payload = jsonBody
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	resp, err := c.Do(ctx, method, path, header, payload)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	if result != nil {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}

// isIdempotent はリトライしてよいメソッドかを判定する。
func isIdempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// isRetryableStatus は一時的な障害を示すステータスかを判定する。
func isRetryableStatus(status int) bool {
	return status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyRequestID はコンテキストにリクエストIDを格納するためのキー。
const contextKeyRequestID contextKey = "request_id"

// WithRequestID はコンテキストにリクエストIDを設定する。
// サービス間通信時にリクエストIDを伝播するために使用する。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// RequestIDFrom はコンテキストからリクエストIDを取り出す。
func RequestIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKeyRequestID).(string)
	return id, ok && id != ""
}
