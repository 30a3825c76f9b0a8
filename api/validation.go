package api

import (
	"errors"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/samber/lo"
)

var (
	trans     ut.Translator
	transOnce sync.Once
	transErr  error
)

// InitTrans 讓 gin 的驗證器使用 json 欄位名稱並註冊英文錯誤訊息
func InitTrans() error {
	transOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			transErr = errors.New("gin validator engine is not go-playground/validator")
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		locale := en.New()
		uni := ut.New(locale, locale)
		trans, _ = uni.GetTranslator("en")
		transErr = enTranslations.RegisterDefaultTranslations(v, trans)
	})
	return transErr
}

// bindingMessage 把綁定錯誤轉為可以回傳給客戶端的訊息
func bindingMessage(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || trans == nil {
		return "Invalid request body"
	}
	messages := lo.Values(errs.Translate(trans))
	sort.Strings(messages)
	return strings.Join(messages, "; ")
}

// bindJSON 綁定 JSON，失敗時直接回應 400
func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		respondError(c, http.StatusBadRequest, bindingMessage(err))
		return false
	}
	return true
}
