package model

import "time"

// Session はクライアントのCookieに保持されるログインセッションを表す。
// サーバー側にセッションテーブルは持たない。
type Session struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
}

// HasAccessToken はアクセストークンを保持しているかを返す。
func (s Session) HasAccessToken() bool {
	return s.AccessToken != ""
}

// HasRefreshToken はリフレッシュトークンを保持しているかを返す。
func (s Session) HasRefreshToken() bool {
	return s.RefreshToken != ""
}

// AuthSession は認証サービスが発行したトークンの組を表す。
type AuthSession struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *User
}
