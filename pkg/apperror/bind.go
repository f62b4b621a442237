package apperror

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// BindJSON はリクエストボディをdstに読み込み、検証する。
// 型不一致と検証ルール違反を区別せずに集め、違反したフィールドをすべてDetailsに列挙したValidationエラーを返す。
// dstはJSONタグとbindingタグを持つ構造体へのポインタ。
func BindJSON(c *gin.Context, message string, dst any) error {
	RegisterJSONFieldNames()

	raw, err := c.GetRawData()
	if err != nil {
		return Internal("Internal server error", fmt.Errorf("リクエストボディの読み取りに失敗: %w", err))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return Validation(message, FieldError{Rule: "body", Message: "request body is empty"})
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Validation(message, FieldError{Rule: "json", Message: "request body must be a JSON object"})
	}

	details, typed, err := decodeFields(fields, dst)
	if err != nil {
		return Validation(message, FieldError{Rule: "json", Message: "request body is not valid JSON"})
	}

	if err := binding.Validator.ValidateStruct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return Internal("Internal server error", fmt.Errorf("検証に失敗: %w", err))
		}
		for _, fe := range verrs {
			// 型不一致のフィールドはゼロ値のため、重ねて報告しない
			if typed[fe.Field()] {
				continue
			}
			details = append(details, FieldError{
				Field:   fe.Field(),
				Rule:    fe.Tag(),
				Message: ruleMessage(fe),
			})
		}
	}

	if len(details) == 0 {
		return nil
	}
	sortByDeclaration(details, dst)
	return Validation(message, details...)
}

// decodeFields はfieldsをdstにデコードする。
// encoding/jsonは最初の型不一致しか返さないため、不一致のキーを除いてデコードし直し、すべての不一致を集める。
func decodeFields(fields map[string]json.RawMessage, dst any) ([]FieldError, map[string]bool, error) {
	target := reflect.ValueOf(dst).Elem()
	var details []FieldError
	typed := map[string]bool{}

	for {
		body, err := json.Marshal(fields)
		if err != nil {
			return nil, nil, err
		}
		target.Set(reflect.Zero(target.Type()))

		err = json.Unmarshal(body, dst)
		if err == nil {
			return details, typed, nil
		}
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nil, nil, err
		}

		name, _, _ := strings.Cut(typeErr.Field, ".")
		removed := false
		for k := range fields {
			if strings.EqualFold(k, name) {
				delete(fields, k)
				removed = true
			}
		}
		if !removed {
			return nil, nil, err
		}
		typed[name] = true
		details = append(details, FieldError{
			Field:   name,
			Rule:    "type",
			Message: fmt.Sprintf("must be of type %s", typeErr.Type.String()),
		})
	}
}

// sortByDeclaration はdetailsを構造体のフィールド宣言順に並べる。
func sortByDeclaration(details []FieldError, dst any) {
	t := reflect.TypeOf(dst).Elem()
	order := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "" {
			name = t.Field(i).Name
		}
		order[name] = i
	}
	rank := func(field string) int {
		if i, ok := order[field]; ok {
			return i
		}
		return t.NumField()
	}
	sort.SliceStable(details, func(i, j int) bool {
		return rank(details[i].Field) < rank(details[j].Field)
	})
}
