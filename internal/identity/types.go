package identity

import (
	"time"

	"github.com/hitoshi/authdesk/internal/model"
)

// AuthResult はサインアップ・サインイン・リフレッシュの結果。
// Sessionはメール確認待ちのサインアップではnilとなる。
type AuthResult struct {
	User    *model.User
	Session *model.AuthSession
}

// userResponse はGoTrueのユーザーオブジェクト。
type userResponse struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	CreatedAt        time.Time  `json:"created_at"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	LastSignInAt     *time.Time `json:"last_sign_in_at"`
}

// sessionResponse はGoTrueのトークンレスポンス。
// メール確認待ちのサインアップではユーザーオブジェクトがトップレベルに返るため、
// ユーザーのフィールドも同じ構造体で受ける。
type sessionResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	RefreshToken string        `json:"refresh_token"`
	User         *userResponse `json:"user"`

	userResponse
}

// errorResponse はGoTrueのエラーレスポンス。バージョンによりフィールド名が異なる。
type errorResponse struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (r *errorResponse) message() string {
	switch {
	case r.Msg != "":
		return r.Msg
	case r.ErrorDescription != "":
		return r.ErrorDescription
	case r.Message != "":
		return r.Message
	default:
		return r.Error
	}
}

func (r *errorResponse) code() string {
	if r.ErrorCode != "" {
		return r.ErrorCode
	}
	if s, ok := r.Code.(string); ok {
		return s
	}
	return r.Error
}

func (u *userResponse) toModel() *model.User {
	if u == nil || u.ID == "" {
		return nil
	}
	return &model.User{
		ID:               u.ID,
		Email:            u.Email,
		CreatedAt:        u.CreatedAt,
		EmailConfirmedAt: u.EmailConfirmedAt,
		LastSignInAt:     u.LastSignInAt,
	}
}

// toResult はトークンレスポンスをAuthResultに変換する。
func (r *sessionResponse) toResult(now time.Time) *AuthResult {
	user := r.User.toModel()
	if user == nil {
		user = r.userResponse.toModel()
	}

	result := &AuthResult{User: user}
	if r.AccessToken == "" {
		return result
	}

	expiresAt := time.Unix(r.ExpiresAt, 0)
	if r.ExpiresAt == 0 && r.ExpiresIn > 0 {
		expiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	result.Session = &model.AuthSession{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    expiresAt,
		User:         user,
	}
	return result
}
