// Package app はアプリケーションの起動とワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/authdesk/internal/auth"
	"github.com/hitoshi/authdesk/internal/config"
	"github.com/hitoshi/authdesk/internal/database"
	"github.com/hitoshi/authdesk/internal/handler"
	"github.com/hitoshi/authdesk/internal/identity"
	"github.com/hitoshi/authdesk/internal/logger"
	"github.com/hitoshi/authdesk/internal/metrics"
	"github.com/hitoshi/authdesk/internal/middleware"
	"github.com/hitoshi/authdesk/internal/profile"
	"github.com/hitoshi/authdesk/internal/repository"
	"github.com/hitoshi/authdesk/internal/security"
	"github.com/hitoshi/authdesk/internal/session"
	"github.com/hitoshi/authdesk/internal/telemetry"
	"github.com/hitoshi/authdesk/internal/view"
)

const (
	serviceName     = "authdesk"
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	if cfg.UsingInsecureSecret {
		slog.Warn("SESSION_SECRET is not set; using an insecure development secret")
	}

	return cfg, nil
}

// Server はワイヤリング済みのHTTPハンドラーと、停止時に解放するリソースを保持する。
type Server struct {
	Handler http.Handler
	closers []func()
}

// Close はバックグラウンド処理を停止する。
func (s *Server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// NewServer は全依存関係をワイヤリングしたServerを構築する。
// dbがnilの場合、ヘルスチェックはDBを確認しない（テスト用）。
func NewServer(cfg *config.Config, db *sql.DB) (*Server, error) {
	srv := &Server{}

	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. セッションと認証サービス
	store, err := session.NewStore(session.Options{
		CookieName: cfg.SessionCookieName,
		Secrets:    cfg.SessionSecrets,
		MaxAge:     cfg.SessionMaxAge,
		Secure:     cfg.CookieSecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	identityClient := identity.NewClient(identity.Config{
		BaseURL:  cfg.SupabaseURL,
		AnonKey:  cfg.SupabaseAnonKey,
		Timeout:  cfg.IdentityTimeout,
		Recorder: collector,
		Logger:   slog.Default(),
	})
	gate := auth.NewGate(store, identityClient)

	// 3. プロフィール
	profileService := profile.NewService(
		repository.NewPostgresProfileRepo(db),
		security.NewTextSanitizer(),
		security.NewAvatarGuard(nil),
		profile.Config{ProbeAvatars: cfg.AvatarCheck},
	)

	// 4. 表示
	renderer, err := view.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	// 5. レート制限
	rateLimiter := middleware.NewRateLimiter(
		middleware.DefaultRateLimiterConfig(cfg.RateLimitAuth),
		renderer.Error,
		collector,
	)
	srv.closers = append(srv.closers, rateLimiter.Stop)

	deps := &handler.RouterDeps{
		Gate:           gate,
		Identity:       identityClient,
		ProfileService: profileService,
		Renderer:       renderer,
		Logger:         slog.Default(),
		RateLimiter:    rateLimiter,
		CookieSecure:   cfg.CookieSecure,
		Metrics:        collector,
		Gatherer:       reg,
	}
	if db != nil {
		deps.Health = db
	}

	srv.Handler = handler.NewRouter(deps)
	return srv, nil
}

// runServe はHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. トレース（OTEL_ENDPOINT未設定の場合は無効）
	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("failed to shut down tracing", slog.String("error", err.Error()))
		}
	}()

	// 2. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Ping(ctx, db); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	// 3. ワイヤリング
	srv, err := NewServer(cfg, db)
	if err != nil {
		return err
	}
	defer srv.Close()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// 認証サービスの呼び出しを含むため、そのタイムアウトより長くする
		WriteTimeout: cfg.IdentityTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", server.Addr),
			slog.String("base_url", cfg.BaseURL),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTP server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, direction string) error {
	slog.Info("running database migrations",
		slog.String("direction", direction),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch direction {
	case "up":
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case "down":
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown migration direction: %q", direction)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build health check request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
