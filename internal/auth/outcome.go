package auth

import "net/http"

// Outcome は認証ゲートの判定結果を表す。
// 処理を続行する（Proceed）か、リダイレクトする（Redirect）かのいずれかで、
// どちらの場合もレスポンスに付与すべきCookieを保持できる。
type Outcome[T any] struct {
	value    T
	location string
	cookies  []*http.Cookie
}

// Proceed は処理を続行するOutcomeを生成する。
func Proceed[T any](value T, cookies ...*http.Cookie) Outcome[T] {
	return Outcome[T]{value: value, cookies: cookies}
}

// Redirect はlocationへリダイレクトするOutcomeを生成する。
func Redirect[T any](location string, cookies ...*http.Cookie) Outcome[T] {
	return Outcome[T]{location: location, cookies: cookies}
}

// IsRedirect はリダイレクトかを返す。
func (o Outcome[T]) IsRedirect() bool {
	return o.location != ""
}

// Location はリダイレクト先を返す。続行の場合は空文字列。
func (o Outcome[T]) Location() string {
	return o.location
}

// Value は続行時の値を返す。
func (o Outcome[T]) Value() T {
	return o.value
}

// Cookies はレスポンスに付与するCookieを返す。
func (o Outcome[T]) Cookies() []*http.Cookie {
	return o.cookies
}

// Resolve は保留中のCookieをレスポンスに書き込む。
// リダイレクトの場合は303を書き込み、falseを返す。呼び出し元はそこで処理を終えること。
func (o Outcome[T]) Resolve(w http.ResponseWriter, r *http.Request) (T, bool) {
	for _, c := range o.cookies {
		http.SetCookie(w, c)
	}
	if o.IsRedirect() {
		http.Redirect(w, r, o.location, http.StatusSeeOther)
		var zero T
		return zero, false
	}
	return o.value, true
}
