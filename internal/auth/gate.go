// Package auth はセッションCookieと認証サービスを組み合わせた認証ゲートを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/authdesk/internal/identity"
	"github.com/hitoshi/authdesk/internal/model"
	"github.com/hitoshi/authdesk/internal/session"
)

const (
	// SignInPath はサインインページのパス。
	SignInPath = "/signin"
	// DefaultRedirect はサインイン後のデフォルトの遷移先。
	DefaultRedirect = "/dashboard"

	// expirySkew はアクセストークンの期限切れ判定に持たせる余裕。
	expirySkew = 10 * time.Second
)

// IdentityClient は認証ゲートが必要とする認証サービスのインターフェース。
// identity.Clientの部分集合として定義する。
type IdentityClient interface {
	GetUser(ctx context.Context, accessToken string) (*model.User, error)
	RefreshSession(ctx context.Context, refreshToken string) (*identity.AuthResult, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Gate はリクエストの認証状態を判定する。
// レスポンスへの書き込みは行わず、判定結果をOutcomeとして返す。
type Gate struct {
	store    *session.Store
	identity IdentityClient
	parser   *jwt.Parser
	now      func() time.Time
}

// NewGate はGateを生成する。
func NewGate(store *session.Store, client IdentityClient) *Gate {
	return &Gate{
		store:    store,
		identity: client,
		parser:   jwt.NewParser(),
		now:      time.Now,
	}
}

// SignInURL はサインイン後にredirectToへ戻るサインインページのURLを返す。
func SignInURL(redirectTo string) string {
	if redirectTo == "" {
		return SignInPath
	}
	return SignInPath + "?" + url.Values{"redirectTo": {redirectTo}}.Encode()
}

// SafeRedirect はサインイン後の遷移先として安全なローカルパスを返す。
// 外部URLやプロトコル相対URLの場合はDefaultRedirectを返す。
func SafeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") {
		return DefaultRedirect
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return DefaultRedirect
	}
	if strings.ContainsAny(target, "\r\n\t") {
		return DefaultRedirect
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return DefaultRedirect
	}
	return target
}

// CurrentUserID はセッションCookieからユーザーIDを取得する。外部呼び出しは行わない。
func (g *Gate) CurrentUserID(r *http.Request) (string, bool) {
	sess, ok := g.store.Read(r)
	if !ok {
		return "", false
	}
	return sess.UserID, true
}

// CreateSession は認証サービスが発行したトークンからセッションCookieを生成する。
func (g *Gate) CreateSession(as *model.AuthSession) (*http.Cookie, error) {
	if as == nil || as.User == nil {
		return nil, fmt.Errorf("auth session has no user")
	}
	return g.store.Create(as.User.ID, as.AccessToken, as.RefreshToken)
}

// RequireUserID はサインイン済みであることを要求する。
// 未サインインの場合はサインインページへのリダイレクトを返す。
// redirectToが空の場合はリクエストのパスを戻り先とする。
func (g *Gate) RequireUserID(r *http.Request, redirectTo string) Outcome[string] {
	userID, ok := g.CurrentUserID(r)
	if !ok {
		if redirectTo == "" {
			redirectTo = r.URL.Path
		}
		return Redirect[string](SignInURL(redirectTo))
	}
	return Proceed(userID)
}

// RequireUser はセッションのアクセストークンを認証サービスで検証し、ユーザーを返す。
//
// アクセストークンが期限切れでリフレッシュトークンがある場合は先にリフレッシュする。
// トークンが無い・拒否された場合はCookieを破棄してサインインページへリダイレクトする。
// 認証サービスに到達できない場合はidentity.ErrUnavailableをラップしたエラーを返し、
// セッションは保持する。
func (g *Gate) RequireUser(ctx context.Context, r *http.Request) (Outcome[*model.User], error) {
	signIn := SignInURL(r.URL.Path)

	sess, ok := g.store.Read(r)
	if !ok {
		return Redirect[*model.User](signIn), nil
	}
	if !sess.HasAccessToken() {
		return Redirect[*model.User](signIn, g.store.Destroy()), nil
	}

	if g.accessTokenExpired(sess.AccessToken) && sess.HasRefreshToken() {
		result, cookie, err := g.exchange(ctx, sess)
		if err != nil {
			if identity.IsUnavailable(err) {
				return Outcome[*model.User]{}, fmt.Errorf("failed to refresh session: %w", err)
			}
			if errors.Is(err, errRejected) {
				return Redirect[*model.User](signIn, g.store.Destroy()), nil
			}
			return Outcome[*model.User]{}, err
		}
		return Proceed(result.User, cookie), nil
	}

	user, err := g.identity.GetUser(ctx, sess.AccessToken)
	if err != nil {
		if identity.IsUnavailable(err) {
			return Outcome[*model.User]{}, fmt.Errorf("failed to verify session: %w", err)
		}
		logRejection("access token rejected", sess.UserID, err)
		return Redirect[*model.User](signIn, g.store.Destroy()), nil
	}
	if user == nil || user.ID != sess.UserID {
		slog.Warn("session user mismatch", slog.String("user_id", sess.UserID))
		return Redirect[*model.User](signIn, g.store.Destroy()), nil
	}

	return Proceed(user), nil
}

// RefreshSession はリフレッシュトークンを新しいトークンの組に交換し、
// セッションCookieを置き換える。
// 拒否された場合、または別ユーザーのトークンが返った場合はCookieを破棄して
// サインインページへリダイレクトする。
func (g *Gate) RefreshSession(ctx context.Context, r *http.Request) (Outcome[model.Session], error) {
	signIn := SignInURL(r.URL.Path)

	sess, ok := g.store.Read(r)
	if !ok {
		return Redirect[model.Session](signIn), nil
	}
	if !sess.HasRefreshToken() {
		return Redirect[model.Session](signIn, g.store.Destroy()), nil
	}

	result, cookie, err := g.exchange(ctx, sess)
	if err != nil {
		if identity.IsUnavailable(err) {
			return Outcome[model.Session]{}, fmt.Errorf("failed to refresh session: %w", err)
		}
		if errors.Is(err, errRejected) {
			return Redirect[model.Session](signIn, g.store.Destroy()), nil
		}
		return Outcome[model.Session]{}, err
	}

	return Proceed(model.Session{
		UserID:       result.User.ID,
		AccessToken:  result.Session.AccessToken,
		RefreshToken: result.Session.RefreshToken,
		IssuedAt:     g.now(),
	}, cookie), nil
}

// errRejected はリフレッシュが確定的に拒否されたことを表す。
var errRejected = errors.New("session refresh rejected")

// exchange はリフレッシュトークンを交換し、置き換え用のCookieを生成する。
// 返されたユーザーがセッションのユーザーと異なる場合も拒否として扱う。
func (g *Gate) exchange(ctx context.Context, sess model.Session) (*identity.AuthResult, *http.Cookie, error) {
	result, err := g.identity.RefreshSession(ctx, sess.RefreshToken)
	if err != nil {
		if identity.IsUnavailable(err) {
			return nil, nil, err
		}
		logRejection("session refresh rejected", sess.UserID, err)
		return nil, nil, fmt.Errorf("%w: %w", errRejected, err)
	}
	if result == nil || result.Session == nil || result.User == nil || result.User.ID != sess.UserID {
		slog.Warn("session user mismatch after refresh", slog.String("user_id", sess.UserID))
		return nil, nil, errRejected
	}

	cookie, err := g.CreateSession(result.Session)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create refreshed session: %w", err)
	}
	return result, cookie, nil
}

// logRejection は認証サービスによる拒否を記録する。
// トークンの失効（401/403）は通常の事象としてInfo、それ以外はWarnとする。
func logRejection(msg, userID string, err error) {
	level := slog.LevelWarn
	var ierr *identity.Error
	if errors.As(err, &ierr) && ierr.Unauthorized() {
		level = slog.LevelInfo
	}
	slog.Log(context.Background(), level, msg,
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
}

// ClearSession は認証サービスを呼ばずにCookie削除用のCookieを返す。
// CSRF検証に失敗したサインアウト要求など、トークンを信用できない場合に使う。
func (g *Gate) ClearSession() *http.Cookie {
	return g.store.Destroy()
}

// Logout は認証サービス側のセッションを無効化し、Cookie削除用のCookieを返す。
// 認証サービスの失敗はログに記録するのみで、Cookieは必ず削除する。
func (g *Gate) Logout(ctx context.Context, r *http.Request) *http.Cookie {
	if sess, ok := g.store.Read(r); ok && sess.HasAccessToken() {
		if err := g.identity.SignOut(ctx, sess.AccessToken); err != nil {
			slog.Warn("failed to sign out from identity service",
				slog.String("user_id", sess.UserID),
				slog.String("error", err.Error()),
			)
		}
	}
	return g.store.Destroy()
}

// accessTokenExpired はアクセストークンのexpクレームが過ぎているかを判定する。
// 署名は検証しない（検証は認証サービスが行う）。解析できない場合はfalseを返す。
func (g *Gate) accessTokenExpired(token string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := g.parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !g.now().Add(expirySkew).Before(claims.ExpiresAt.Time)
}
