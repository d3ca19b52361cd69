// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authdesk/internal/identity"
	"github.com/hitoshi/authdesk/internal/model"
	"github.com/hitoshi/authdesk/internal/validation"
)

// IdentityService はサインイン・サインアップで使用する認証サービスのインターフェース。
// identity.Clientの部分集合として定義する。
type IdentityService interface {
	SignUp(ctx context.Context, email, password string) (*identity.AuthResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*identity.AuthResult, error)
}

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Get(ctx context.Context, userID string) (*model.Profile, error)
	CreateForNewUser(ctx context.Context, user *model.User) error
	Update(ctx context.Context, userID string, in validation.ProfileInput) (*model.Profile, error)
}

// PageRenderer はHTMLページを書き込むインターフェース。
type PageRenderer interface {
	Render(w http.ResponseWriter, status int, page string, data any)
	Error(w http.ResponseWriter, r *http.Request, status int, appErr *model.AppError)
}

// AuthRecorder は認証操作の結果を記録するインターフェース。
type AuthRecorder interface {
	RecordAuthAttempt(action, result string)
}

type noopRecorder struct{}

func (noopRecorder) RecordAuthAttempt(string, string) {}

func orNoop(rec AuthRecorder) AuthRecorder {
	if rec == nil {
		return noopRecorder{}
	}
	return rec
}

// writeGateError は認証ゲートのエラーをエラーページとして書き込む。
// 認証サービスに到達できない場合は503、それ以外は500とする。
// いずれの場合もセッションCookieは変更しない。
func writeGateError(w http.ResponseWriter, r *http.Request, renderer PageRenderer, err error) {
	if identity.IsUnavailable(err) {
		slog.Warn("identity service unavailable",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		renderer.Error(w, r, http.StatusServiceUnavailable, model.NewServiceUnavailableError())
		return
	}
	slog.Error("failed to authenticate request",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	renderer.Error(w, r, http.StatusInternalServerError, model.NewInternalError())
}

// fieldErrors はValidationErrorからテンプレート用のフィールドエラーを取り出す。
func fieldErrors(err error) (map[string]string, bool) {
	var verr *model.ValidationError
	if errors.As(err, &verr) && !verr.Empty() {
		return verr.Fields, true
	}
	return nil, false
}
