// Package view はサーバーレンダリングのHTMLページを提供する。
// テンプレートはバイナリに埋め込み、起動時に1回だけパースする。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authdesk/internal/model"
	"github.com/hitoshi/authdesk/internal/profile"
)

//go:embed templates/*.html
var templateFS embed.FS

// ページ名（templates/<name>.html）
const (
	PageIndex     = "index"
	PageSignIn    = "signin"
	PageSignUp    = "signup"
	PageDashboard = "dashboard"
	PageProfile   = "profile"
	PageError     = "error"
)

var pageNames = []string{PageIndex, PageSignIn, PageSignUp, PageDashboard, PageProfile, PageError}

var funcs = template.FuncMap{
	"initials":       profile.Initials,
	"formatDate":     profile.FormatDate,
	"formatDateTime": profile.FormatDateTime,
}

// Renderer はページテンプレートを保持し、HTMLレスポンスを書き込む。
// 並行利用して安全。
type Renderer struct {
	pages map[string]*template.Template
}

// New は埋め込みテンプレートをパースしてRendererを生成する。
func New() (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Renderer{pages: pages}, nil
}

// Render はページをステータスコード付きで書き込む。
// 実行エラー時に途中まで書かれたHTMLを返さないよう、バッファに描画してから送信する。
func (rd *Renderer) Render(w http.ResponseWriter, status int, page string, data any) {
	tmpl, ok := rd.pages[page]
	if !ok {
		slog.Error("unknown page template", slog.String("page", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Debug("failed to write response", slog.String("error", err.Error()))
	}
}

// Error はエラーページを書き込む。middleware.ErrorWriterとして注入できる。
func (rd *Renderer) Error(w http.ResponseWriter, r *http.Request, status int, appErr *model.AppError) {
	rd.Render(w, status, PageError, ErrorPage{
		Base:    NewBase(r, http.StatusText(status)),
		Status:  status,
		Message: appErr.Message,
		Action:  appErr.Action,
	})
}
