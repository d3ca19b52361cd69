package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/authdesk/internal/auth"
	"github.com/hitoshi/authdesk/internal/metrics"
	"github.com/hitoshi/authdesk/internal/middleware"
	"github.com/hitoshi/authdesk/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 認証
	Gate     *auth.Gate
	Identity IdentityService

	// プロフィール
	ProfileService ProfileServiceInterface

	// 表示
	Renderer PageRenderer

	// ミドルウェア依存
	Logger       *slog.Logger
	RateLimiter  *middleware.RateLimiter
	CookieSecure bool
	CookieDomain string

	// 運用（nilの場合は無効）
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
	Health   HealthChecker
}

const logoutPath = "/logout"

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → SessionContext → Logging → Metrics → CSRF → (RateLimit)
//
// /health と /metrics はCSRFミドルウェアの外に配置する。
// レート制限はサインイン・サインアップのフォーム送信のみに適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var recorder AuthRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}

	r.Use(middleware.NewRecoveryMiddleware(deps.Renderer.Error))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CookieSecure))
	r.Use(middleware.NewSessionContextMiddleware(deps.Gate))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		deps.Renderer.Error(w, req, http.StatusNotFound, model.NewNotFoundError())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		deps.Renderer.Error(w, req, http.StatusMethodNotAllowed, model.NewMethodNotAllowedError())
	})

	// --- 運用エンドポイント ---
	r.Get("/health", Health(deps.Health))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	authHandler := NewAuthHandler(deps.Gate, deps.Identity, deps.ProfileService, deps.Renderer, recorder)
	pageHandler := NewPageHandler(deps.Gate, deps.ProfileService, deps.Renderer, recorder)

	// --- HTMLページ ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(middleware.CSRFConfig{
			CookieSecure: deps.CookieSecure,
			CookieDomain: deps.CookieDomain,
			ErrorWriter:  csrfErrorWriter(deps),
		}))

		r.Get("/", pageHandler.Index)

		r.Get("/signin", authHandler.SignInForm)
		r.Get("/signup", authHandler.SignUpForm)
		r.Group(func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.AuthMiddleware())
			}
			r.Post("/signin", authHandler.SignIn)
			r.Post("/signup", authHandler.SignUp)
		})

		// GET /logout はMethodNotAllowedハンドラーで405を返す
		r.Post(logoutPath, authHandler.Logout)

		r.Get("/dashboard", pageHandler.Dashboard)
		r.Get("/profile", pageHandler.Profile)
		r.Post("/profile", pageHandler.UpdateProfile)
	})

	return r
}

// csrfErrorWriter はCSRF検証失敗時のエラーページを書き込む。
// サインアウト要求の場合は、拒否してもセッションCookieだけは削除する。
// 認証サービスへのサインアウト呼び出しは行わない。
func csrfErrorWriter(deps *RouterDeps) middleware.ErrorWriter {
	return func(w http.ResponseWriter, r *http.Request, statusCode int, appErr *model.AppError) {
		if r.Method == http.MethodPost && r.URL.Path == logoutPath {
			http.SetCookie(w, deps.Gate.ClearSession())
		}
		deps.Renderer.Error(w, r, statusCode, appErr)
	}
}
