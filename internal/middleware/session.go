// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// UserIDReader はリクエストからサインイン中のユーザーIDを読み取るインターフェース。
// auth.Gateの部分集合として定義する。
type UserIDReader interface {
	CurrentUserID(r *http.Request) (string, bool)
}

// NewSessionContextMiddleware はセッションCookieを読み取り、
// サインイン中であればユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// 未サインインのリクエストもそのまま通す（アクセス制御はハンドラー側で行う）。
// 外部サービスへの問い合わせは行わない。
func NewSessionContextMiddleware(reader UserIDReader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, ok := reader.CurrentUserID(r); ok {
				r = r.WithContext(ContextWithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
