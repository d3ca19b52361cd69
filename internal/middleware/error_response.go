package middleware

import (
	"fmt"
	"net/http"

	"github.com/hitoshi/authdesk/internal/model"
)

// ErrorWriter はミドルウェアがエラーページを書き込むための関数。
// ハンドラー層のHTMLレンダラーを注入する。
type ErrorWriter func(w http.ResponseWriter, r *http.Request, statusCode int, appErr *model.AppError)

// WritePlainError はプレーンテキストでエラーを書き込むErrorWriter。
// レンダラーが注入されていない場合のフォールバック。
func WritePlainError(w http.ResponseWriter, r *http.Request, statusCode int, appErr *model.AppError) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	fmt.Fprintf(w, "%s %s\n", appErr.Message, appErr.Action)
}

// orPlain はnilの場合にWritePlainErrorを返す。
func orPlain(ew ErrorWriter) ErrorWriter {
	if ew == nil {
		return WritePlainError
	}
	return ew
}
