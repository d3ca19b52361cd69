package handler

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/authdesk/internal/auth"
	"github.com/hitoshi/authdesk/internal/metrics"
	"github.com/hitoshi/authdesk/internal/model"
	"github.com/hitoshi/authdesk/internal/profile"
	"github.com/hitoshi/authdesk/internal/validation"
	"github.com/hitoshi/authdesk/internal/view"
)

const (
	msgProfileUpdated = "Profile updated successfully!"
	msgProfileFailed  = "Failed to update profile. Please try again."
)

// PageHandler はトップページ・ダッシュボード・プロフィールのHTTPハンドラー。
type PageHandler struct {
	gate     *auth.Gate
	profiles ProfileServiceInterface
	renderer PageRenderer
	recorder AuthRecorder
}

// NewPageHandler はPageHandlerを生成する。recorderはnilでもよい。
func NewPageHandler(gate *auth.Gate, profiles ProfileServiceInterface, renderer PageRenderer, recorder AuthRecorder) *PageHandler {
	return &PageHandler{
		gate:     gate,
		profiles: profiles,
		renderer: renderer,
		recorder: orNoop(recorder),
	}
}

// Index はトップページを表示する。
// GET /
func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, http.StatusOK, view.PageIndex, view.IndexPage{
		Base: view.NewBase(r, "Home"),
	})
}

// Dashboard はサインイン中のユーザーIDを表示する。
// セッションCookieの存在のみを確認し、認証サービスには問い合わせない。
// GET /dashboard
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.gate.RequireUserID(r, "").Resolve(w, r)
	if !ok {
		return
	}

	h.renderer.Render(w, http.StatusOK, view.PageDashboard, view.DashboardPage{
		Base:   view.NewBase(r, "Dashboard"),
		UserID: userID,
	})
}

// Profile はプロフィールとアカウント情報を表示する。
// アクセストークンを認証サービスで検証する。
// GET /profile
func (h *PageHandler) Profile(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.gate.RequireUser(r.Context(), r)
	if err != nil {
		writeGateError(w, r, h.renderer, err)
		return
	}
	user, ok := outcome.Resolve(w, r)
	if !ok {
		return
	}

	p, err := h.profiles.Get(r.Context(), user.ID)
	if err != nil {
		// プロフィールが読めなくてもアカウント情報は表示する
		slog.Error("failed to load profile",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	page := h.profilePage(r, user, p)
	page.FullName, page.Email, page.AvatarURL = formValues(user, p)
	h.renderer.Render(w, http.StatusOK, view.PageProfile, page)
}

// UpdateProfile はプロフィールを更新する。
// POST /profile
func (h *PageHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.gate.RequireUser(r.Context(), r)
	if err != nil {
		writeGateError(w, r, h.renderer, err)
		return
	}
	user, ok := outcome.Resolve(w, r)
	if !ok {
		return
	}

	fullName := r.PostFormValue("fullName")
	email := r.PostFormValue("email")
	avatarURL := r.PostFormValue("avatarUrl")

	in, verr := validation.ValidateProfile(fullName, email, avatarURL)
	if verr != nil {
		h.recorder.RecordAuthAttempt(metrics.ActionProfile, metrics.ResultInvalid)
		h.renderProfileFailure(w, r, user, http.StatusBadRequest, fullName, email, avatarURL, verr.Fields, "")
		return
	}

	updated, err := h.profiles.Update(r.Context(), user.ID, in)
	if err != nil {
		if fields, ok := fieldErrors(err); ok {
			h.recorder.RecordAuthAttempt(metrics.ActionProfile, metrics.ResultInvalid)
			h.renderProfileFailure(w, r, user, http.StatusBadRequest, fullName, email, avatarURL, fields, "")
			return
		}
		slog.Error("failed to update profile",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		h.renderProfileFailure(w, r, user, http.StatusInternalServerError, fullName, email, avatarURL, nil, msgProfileFailed)
		return
	}

	h.recorder.RecordAuthAttempt(metrics.ActionProfile, metrics.ResultSuccess)
	page := h.profilePage(r, user, updated)
	page.FullName, page.Email, page.AvatarURL = formValues(user, updated)
	page.Success = msgProfileUpdated
	h.renderer.Render(w, http.StatusOK, view.PageProfile, page)
}

// renderProfileFailure は送信値を保持したままプロフィールページを再表示する。
func (h *PageHandler) renderProfileFailure(
	w http.ResponseWriter,
	r *http.Request,
	user *model.User,
	status int,
	fullName, email, avatarURL string,
	errs map[string]string,
	message string,
) {
	p, err := h.profiles.Get(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to load profile",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	page := h.profilePage(r, user, p)
	page.FullName, page.Email, page.AvatarURL = fullName, email, avatarURL
	page.Errors = errs
	page.Message = message
	h.renderer.Render(w, status, view.PageProfile, page)
}

func (h *PageHandler) profilePage(r *http.Request, user *model.User, p *model.Profile) view.ProfilePage {
	name := user.Email
	if p != nil {
		name = p.DisplayName()
	}
	return view.ProfilePage{
		Base:        view.NewBase(r, "Profile"),
		User:        user,
		Profile:     p,
		DisplayName: name,
		AvatarSrc:   profile.DisplayAvatar(p, name),
	}
}

// formValues は保存済みのプロフィールからフォームの初期値を返す。
// メールアドレスが未設定の場合はアカウントのメールアドレスを使う。
func formValues(user *model.User, p *model.Profile) (fullName, email, avatarURL string) {
	email = user.Email
	if p == nil {
		return "", email, ""
	}
	if p.FullName != nil {
		fullName = *p.FullName
	}
	if p.Email != "" {
		email = p.Email
	}
	if p.AvatarURL != nil {
		avatarURL = *p.AvatarURL
	}
	return fullName, email, avatarURL
}
