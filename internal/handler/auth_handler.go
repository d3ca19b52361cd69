package handler

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/authdesk/internal/auth"
	"github.com/hitoshi/authdesk/internal/identity"
	"github.com/hitoshi/authdesk/internal/metrics"
	"github.com/hitoshi/authdesk/internal/model"
	"github.com/hitoshi/authdesk/internal/validation"
	"github.com/hitoshi/authdesk/internal/view"
)

const (
	msgSessionFailed = "Failed to create session"
	msgConfirmEmail  = "Please check your email to confirm your account."
)

// AuthHandler はサインイン・サインアップ・サインアウトのHTTPハンドラー。
type AuthHandler struct {
	gate     *auth.Gate
	identity IdentityService
	profiles ProfileServiceInterface
	renderer PageRenderer
	recorder AuthRecorder
}

// NewAuthHandler はAuthHandlerを生成する。recorderはnilでもよい。
func NewAuthHandler(
	gate *auth.Gate,
	client IdentityService,
	profiles ProfileServiceInterface,
	renderer PageRenderer,
	recorder AuthRecorder,
) *AuthHandler {
	return &AuthHandler{
		gate:     gate,
		identity: client,
		profiles: profiles,
		renderer: renderer,
		recorder: orNoop(recorder),
	}
}

// SignInForm はサインインフォームを表示する。サインイン済みの場合はダッシュボードへ遷移する。
// GET /signin?redirectTo=/profile
func (h *AuthHandler) SignInForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.gate.CurrentUserID(r); ok {
		http.Redirect(w, r, auth.DefaultRedirect, http.StatusSeeOther)
		return
	}

	page := signInPage(r)
	if target := r.URL.Query().Get("redirectTo"); target != "" {
		page.RedirectTo = auth.SafeRedirect(target)
	}
	h.renderer.Render(w, http.StatusOK, view.PageSignIn, page)
}

// SignIn はメールアドレスとパスワードでサインインし、セッションCookieを発行する。
// POST /signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	page := signInPage(r)
	page.Email = r.PostFormValue("email")
	page.RedirectTo = auth.SafeRedirect(r.PostFormValue("redirectTo"))

	// 1. 入力の形式検証（認証サービスへの呼び出し前）
	in, verr := validation.ValidateSignIn(page.Email, r.PostFormValue("password"))
	if verr != nil {
		h.recorder.RecordAuthAttempt(metrics.ActionSignIn, metrics.ResultInvalid)
		page.Errors = verr.Fields
		h.renderer.Render(w, http.StatusBadRequest, view.PageSignIn, page)
		return
	}
	page.Email = in.Email

	// 2. 認証サービスでサインイン
	result, err := h.identity.SignInWithPassword(r.Context(), in.Email, in.Password)
	if err != nil {
		page.Message = identity.Message(err)
		if identity.IsUnavailable(err) {
			h.recorder.RecordAuthAttempt(metrics.ActionSignIn, metrics.ResultUnavailable)
			slog.Warn("sign in unavailable", slog.String("error", err.Error()))
			h.renderer.Render(w, http.StatusServiceUnavailable, view.PageSignIn, page)
			return
		}
		h.recorder.RecordAuthAttempt(metrics.ActionSignIn, metrics.ResultRejected)
		slog.Info("sign in rejected", slog.String("error", err.Error()))
		h.renderer.Render(w, http.StatusBadRequest, view.PageSignIn, page)
		return
	}
	if result.Session == nil {
		h.recorder.RecordAuthAttempt(metrics.ActionSignIn, metrics.ResultRejected)
		page.Message = msgSessionFailed
		h.renderer.Render(w, http.StatusBadRequest, view.PageSignIn, page)
		return
	}

	// 3. セッションCookieを発行して遷移
	cookie, err := h.gate.CreateSession(result.Session)
	if err != nil {
		slog.Error("failed to create session", slog.String("error", err.Error()))
		h.renderer.Error(w, r, http.StatusInternalServerError, model.NewInternalError())
		return
	}

	h.recorder.RecordAuthAttempt(metrics.ActionSignIn, metrics.ResultSuccess)
	slog.Info("user signed in", slog.String("user_id", result.Session.User.ID))
	http.SetCookie(w, cookie)
	http.Redirect(w, r, page.RedirectTo, http.StatusSeeOther)
}

// SignUpForm はサインアップフォームを表示する。サインイン済みの場合はダッシュボードへ遷移する。
// GET /signup
func (h *AuthHandler) SignUpForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.gate.CurrentUserID(r); ok {
		http.Redirect(w, r, auth.DefaultRedirect, http.StatusSeeOther)
		return
	}
	h.renderer.Render(w, http.StatusOK, view.PageSignUp, signUpPage(r))
}

// SignUp はアカウントを作成する。
// メール確認が必要な場合は案内を表示し、セッションが発行された場合は
// プロフィールを作成してダッシュボードへ遷移する。
// POST /signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	page := signUpPage(r)
	page.Email = r.PostFormValue("email")

	in, verr := validation.ValidateSignUp(
		page.Email,
		r.PostFormValue("password"),
		r.PostFormValue("confirmPassword"),
	)
	if verr != nil {
		h.recorder.RecordAuthAttempt(metrics.ActionSignUp, metrics.ResultInvalid)
		page.Errors = verr.Fields
		h.renderer.Render(w, http.StatusBadRequest, view.PageSignUp, page)
		return
	}
	page.Email = in.Email

	result, err := h.identity.SignUp(r.Context(), in.Email, in.Password)
	if err != nil {
		page.Message = identity.Message(err)
		if identity.IsUnavailable(err) {
			h.recorder.RecordAuthAttempt(metrics.ActionSignUp, metrics.ResultUnavailable)
			slog.Warn("sign up unavailable", slog.String("error", err.Error()))
			h.renderer.Render(w, http.StatusServiceUnavailable, view.PageSignUp, page)
			return
		}
		h.recorder.RecordAuthAttempt(metrics.ActionSignUp, metrics.ResultRejected)
		slog.Info("sign up rejected", slog.String("error", err.Error()))
		h.renderer.Render(w, http.StatusBadRequest, view.PageSignUp, page)
		return
	}

	// メール確認待ち
	if result.Session == nil {
		h.recorder.RecordAuthAttempt(metrics.ActionSignUp, metrics.ResultPending)
		page.Title = "Check your email"
		page.Pending = true
		page.Notice = msgConfirmEmail
		h.renderer.Render(w, http.StatusOK, view.PageSignUp, page)
		return
	}

	// プロフィール作成の失敗はログのみ（サインアップは継続する）
	if err := h.profiles.CreateForNewUser(r.Context(), result.Session.User); err != nil {
		slog.Error("failed to create profile on sign up", slog.String("error", err.Error()))
	}

	cookie, err := h.gate.CreateSession(result.Session)
	if err != nil {
		slog.Error("failed to create session", slog.String("error", err.Error()))
		h.renderer.Error(w, r, http.StatusInternalServerError, model.NewInternalError())
		return
	}

	h.recorder.RecordAuthAttempt(metrics.ActionSignUp, metrics.ResultSuccess)
	slog.Info("user signed up", slog.String("user_id", result.Session.User.ID))
	http.SetCookie(w, cookie)
	http.Redirect(w, r, auth.DefaultRedirect, http.StatusSeeOther)
}

// Logout はセッションを破棄してサインインページへ遷移する。
// 認証サービス側の失敗に関わらずCookieは必ず削除する。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.gate.Logout(r.Context(), r))
	h.recorder.RecordAuthAttempt(metrics.ActionSignOut, metrics.ResultSuccess)
	http.Redirect(w, r, auth.SignInPath, http.StatusSeeOther)
}

// signInPage はリクエストからサインインページの初期データを生成する。
func signInPage(r *http.Request) view.SignInPage {
	return view.SignInPage{Base: view.NewBase(r, "Sign in")}
}

// signUpPage はリクエストからサインアップページの初期データを生成する。
func signUpPage(r *http.Request) view.SignUpPage {
	return view.SignUpPage{
		Base:              view.NewBase(r, "Sign up"),
		MinPasswordLength: validation.MinPasswordLength,
	}
}
