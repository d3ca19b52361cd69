package identity

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnavailable は認証サービスに一時的に到達できないことを表す。
// 通信エラー、タイムアウト、5xx、429、解釈できない2xx応答、サーキットブレーカー開放時にラップされる。
// 認証の拒否（誤ったパスワード、無効なトークン等）とは区別される。
var ErrUnavailable = errors.New("identity service unavailable")

// Error は認証サービスが返した確定的なエラーを表す。
// Messageはそのまま画面に表示してよい文字列。
type Error struct {
	Status  int
	Code    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity service error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("identity service error %d: %s", e.Status, e.Message)
}

// Unauthorized はトークンが拒否されたことを示すステータスかを返す。
func (e *Error) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// IsUnavailable はエラーが一時的な到達不能を表すかを返す。
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Message はエラーから画面表示用のメッセージを取り出す。
// 認証サービスのエラーでない場合は汎用メッセージを返す。
func Message(err error) string {
	if IsUnavailable(err) {
		return "The authentication service is temporarily unavailable. Please try again."
	}
	var ierr *Error
	if errors.As(err, &ierr) && ierr.Message != "" {
		return ierr.Message
	}
	return "Authentication failed"
}

// isTransientStatus はHTTPステータスが一時的な失敗を表すかを判定する。
func isTransientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// unavailable は原因をErrUnavailableでラップする。
func unavailable(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, cause)
}
