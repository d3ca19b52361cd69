package view

import (
	"net/http"

	"github.com/hitoshi/authdesk/internal/middleware"
	"github.com/hitoshi/authdesk/internal/model"
)

// Base は全ページ共通のデータ。
type Base struct {
	Title     string
	CSRFToken string
	SignedIn  bool
}

// NewBase はリクエストコンテキスト（CSRFトークン、サインイン状態）からBaseを生成する。
func NewBase(r *http.Request, title string) Base {
	_, err := middleware.UserIDFromContext(r.Context())
	return Base{
		Title:     title,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		SignedIn:  err == nil,
	}
}

// IndexPage はトップページ。
type IndexPage struct {
	Base
}

// SignInPage はサインインフォーム。
type SignInPage struct {
	Base
	Email      string
	RedirectTo string
	Message    string
	Errors     map[string]string
}

// SignUpPage はサインアップフォーム。Pendingの場合はメール確認の案内を表示する。
type SignUpPage struct {
	Base
	Email             string
	Message           string
	Errors            map[string]string
	Pending           bool
	Notice            string
	MinPasswordLength int
}

// DashboardPage はダッシュボード。
type DashboardPage struct {
	Base
	UserID string
}

// ProfilePage はプロフィール編集ページ。
// フォームの値は送信値の再表示にも使うため、Profileとは別に保持する。
type ProfilePage struct {
	Base
	User        *model.User
	Profile     *model.Profile
	DisplayName string
	AvatarSrc   string
	FullName    string
	Email       string
	AvatarURL   string
	Success     string
	Message     string
	Errors      map[string]string
}

// ErrorPage はエラーページ。
type ErrorPage struct {
	Base
	Status  int
	Message string
	Action  string
}
