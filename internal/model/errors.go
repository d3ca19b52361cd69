package model

import (
	"fmt"
	"sort"
	"strings"
)

// AppError は画面に表示する統一エラーフォーマットを表す。
// 原因カテゴリと対処方法を含む。
type AppError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeCSRF               = "CSRF_FAILED"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
)

// NewServiceUnavailableError は認証サービスに到達できない場合のエラーを生成する。
func NewServiceUnavailableError() *AppError {
	return &AppError{
		Code:     ErrCodeServiceUnavailable,
		Message:  "The authentication service is temporarily unavailable.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *AppError {
	return &AppError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many attempts.",
		Category: "auth",
		Action:   "Please wait a minute before trying again.",
	}
}

// NewCSRFError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFError() *AppError {
	return &AppError{
		Code:     ErrCodeCSRF,
		Message:  "Your form has expired.",
		Category: "validation",
		Action:   "Reload the page and submit the form again.",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *AppError {
	return &AppError{
		Code:     ErrCodeInternal,
		Message:  "Something went wrong.",
		Category: "system",
		Action:   "Please try again later.",
	}
}

// NewNotFoundError はページ未検出エラーを生成する。
func NewNotFoundError() *AppError {
	return &AppError{
		Code:     ErrCodeNotFound,
		Message:  "The page you are looking for does not exist.",
		Category: "system",
		Action:   "Check the address or go back to the home page.",
	}
}

// NewMethodNotAllowedError は許可されていないHTTPメソッドのエラーを生成する。
func NewMethodNotAllowedError() *AppError {
	return &AppError{
		Code:     ErrCodeMethodNotAllowed,
		Message:  "Method Not Allowed",
		Category: "system",
	}
}

// ValidationError はフォーム入力のフィールド単位の検証エラーを表す。
// Fieldsのキーはフォームのフィールド名（email, password 等）。
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError は空のValidationErrorを生成する。
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add はフィールドにメッセージを設定する。既にメッセージがある場合は上書きしない。
func (e *ValidationError) Add(field, message string) {
	if _, exists := e.Fields[field]; exists {
		return
	}
	e.Fields[field] = message
}

// Has はフィールドにエラーがあるかを返す。
func (e *ValidationError) Has(field string) bool {
	_, ok := e.Fields[field]
	return ok
}

// Empty はエラーが1件もない場合にtrueを返す。
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// Error はerrorインターフェースを実装する。フィールド名順に連結する。
func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
