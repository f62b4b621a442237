package apperror

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Respond はerrを分類に応じたHTTPレスポンスとしてクライアントに返す。
// Upstreamは上流のステータスとボディをそのまま返し、Internalは原因をログに記録して汎用メッセージを返す。
func Respond(c *gin.Context, log *zap.Logger, err error) {
	appErr := As(err)

	switch appErr.Kind {
	case KindUpstream:
		contentType := appErr.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		c.Data(appErr.HTTPStatus(), contentType, appErr.Body)
	case KindValidation:
		body := gin.H{"error": appErr.Message}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		c.JSON(appErr.HTTPStatus(), body)
	case KindInternal:
		log.Error("内部エラー",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(appErr),
		)
		c.JSON(appErr.HTTPStatus(), gin.H{"error": appErr.Message})
	default:
		c.JSON(appErr.HTTPStatus(), gin.H{"error": appErr.Message})
	}
	c.Abort()
}

var registerOnce sync.Once

// RegisterJSONFieldNames はginのバリデータがJSONタグ名でフィールドを報告するよう設定する。
// 複数回呼び出しても1度だけ登録される。
func RegisterJSONFieldNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
}

// ruleMessage は検証ルールごとの説明文を返す。
func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	default:
		return fmt.Sprintf("failed on the %q rule", fe.Tag())
	}
}
