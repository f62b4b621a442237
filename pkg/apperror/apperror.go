// Package apperror はサービス境界で使用するエラー分類とHTTPレスポンスへの変換を提供する。
//
// 分類は Validation(400), Authentication(401), NotFound(404), Upstream(上流の応答をそのまま中継),
// Internal(500) の5種類。Internalは原因をログにのみ記録し、クライアントには汎用メッセージを返す。
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind はエラーの分類。
type Kind int

const (
	// KindInternal は想定外の障害。内部情報はクライアントに返さない。
	KindInternal Kind = iota
	// KindValidation はクライアントが修正可能な入力不正。
	KindValidation
	// KindAuthentication は資格情報またはトークンの欠落・不正・期限切れ。
	KindAuthentication
	// KindNotFound は参照先エンティティが存在しないこと。
	KindNotFound
	// KindUpstream は委譲先サービスの応答をそのまま中継すべきエラー。
	KindUpstream
)

// String はログ出力用の分類名を返す。
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// FieldError は1つのフィールドの検証違反。
type FieldError struct {
	// Field はJSON上のフィールド名。
	Field string `json:"field"`
	// Rule は違反した検証ルール名（required, email, gt など）。
	Rule string `json:"rule"`
	// Message は人が読むための説明。
	Message string `json:"message"`
}

// Error はサービス境界で扱うエラー。
type Error struct {
	// Kind はエラーの分類。
	Kind Kind
	// Message はクライアントに返すメッセージ。
	Message string
	// Details はValidationエラーのフィールド別詳細。
	Details []FieldError
	// Status はUpstreamエラーで中継するステータスコード。
	Status int
	// Body はUpstreamエラーで中継するレスポンスボディ。
	Body []byte
	// ContentType はUpstreamエラーで中継するContent-Type。
	ContentType string
	// Err は原因となったエラー。ログにのみ出力する。
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus はエラーに対応するHTTPステータスコードを返す。
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		if e.Status != 0 {
			return e.Status
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Validation は入力不正エラーを生成する。
func Validation(message string, details ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

// Authentication は認証失敗エラーを生成する。
// 原因の種類（欠落・署名不正・期限切れ）はメッセージに含めない。
func Authentication(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

// NotFound はエンティティ不在エラーを生成する。
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Upstream は上流サービスの応答を中継するエラーを生成する。
func Upstream(status int, contentType string, body []byte) *Error {
	return &Error{Kind: KindUpstream, Message: http.StatusText(status), Status: status, ContentType: contentType, Body: body}
}

// Internal は想定外の障害を生成する。messageはクライアントに返る汎用文言。
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// As はerrを*Errorとして取り出す。*Errorでなければ汎用のInternalエラーに包む。
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("Internal server error", err)
}

// Is はerrが指定した分類の*Errorかを判定する。
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
