// Package session はクライアント側Cookieに保持するログインセッションを提供する。
// サーバー側にセッションテーブルは持たず、Cookieの内容を暗号化・認証して保持する。
package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/authdesk/internal/model"
)

const (
	// DefaultCookieName はセッションCookieのデフォルト名。
	DefaultCookieName = "session"
	// DefaultMaxAge はセッションCookieのデフォルト有効期間（30日）。
	DefaultMaxAge = 60 * 60 * 24 * 30
)

// Options はセッションストアの設定。
type Options struct {
	CookieName string
	Secrets    []string // 先頭で封緘し、全てで開封を試みる
	MaxAge     int      // 秒
	Secure     bool
	Domain     string
}

// Store はセッションCookieの生成・読み取り・破棄を行う。
// レスポンスへの書き込みは行わず、呼び出し元が返されたCookieを付与する。
type Store struct {
	name   string
	maxAge time.Duration
	cookie http.Cookie // 属性のテンプレート
	codec  *codec
	now    func() time.Time
}

// NewStore はStoreを生成する。シークレットが1つもない場合はエラーを返す。
func NewStore(opts Options) (*Store, error) {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}

	c, err := newCodec(opts.Secrets, opts.CookieName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session codec: %w", err)
	}

	return &Store{
		name:   opts.CookieName,
		maxAge: time.Duration(opts.MaxAge) * time.Second,
		cookie: http.Cookie{
			Name:     opts.CookieName,
			Path:     "/",
			Domain:   opts.Domain,
			MaxAge:   opts.MaxAge,
			HttpOnly: true,
			Secure:   opts.Secure,
			SameSite: http.SameSiteLaxMode,
		},
		codec: c,
		now:   time.Now,
	}, nil
}

// CookieName はセッションCookieの名前を返す。
func (s *Store) CookieName() string {
	return s.name
}

// Create は新しいセッションを封緘したSet-Cookie用のCookieを返す。
func (s *Store) Create(userID, accessToken, refreshToken string) (*http.Cookie, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	value, err := s.codec.seal(payload{
		UserID:       userID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IssuedAt:     s.now().Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seal session: %w", err)
	}

	c := s.cookie
	c.Value = value
	return &c, nil
}

// Read はリクエストのCookieからセッションを読み取る。
// Cookieが存在しない・壊れている・改ざんされている・期限切れの場合は
// いずれも (空のSession, false) を返し、エラーにはしない。
func (s *Store) Read(r *http.Request) (model.Session, bool) {
	cookie, err := r.Cookie(s.name)
	if err != nil || cookie.Value == "" {
		return model.Session{}, false
	}
	return s.Decode(cookie.Value)
}

// Decode はCookie値を開封してセッションを返す。
func (s *Store) Decode(value string) (model.Session, bool) {
	p, err := s.codec.open(value)
	if err != nil {
		return model.Session{}, false
	}
	if p.UserID == "" {
		return model.Session{}, false
	}

	issuedAt := time.Unix(p.IssuedAt, 0)
	if s.now().Sub(issuedAt) > s.maxAge {
		return model.Session{}, false
	}

	return model.Session{
		UserID:       p.UserID,
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		IssuedAt:     issuedAt,
	}, true
}

// Destroy はクライアントにセッションCookieの削除を指示するCookieを返す。
func (s *Store) Destroy() *http.Cookie {
	c := s.cookie
	c.Value = ""
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return &c
}
