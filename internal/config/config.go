package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvDevelopment はローカル開発環境を表すAPP_ENVの値。
const EnvDevelopment = "development"

// insecureDevSecret は開発環境でSESSION_SECRETが未設定の場合に使う固定値。
// 本番では使用されない（Loadがエラーを返す）。
const insecureDevSecret = "authdesk-insecure-development-secret-change-me"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Environment
	AppEnv string `env:"APP_ENV" envDefault:"production"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	// BaseURL は起動ログに出す公開URL。動作には影響しない。
	BaseURL    string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Identity service (Supabase Auth)
	SupabaseURL     string        `env:"SUPABASE_URL,required,notEmpty"`
	SupabaseAnonKey string        `env:"SUPABASE_ANON_KEY,required,notEmpty"`
	IdentityTimeout time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"10s"`

	// Session
	// SessionSecrets は先頭の値で封緘し、全ての値で開封を試みる（ローテーション用）。
	SessionSecrets    []string `env:"SESSION_SECRET" envSeparator:","`
	SessionCookieName string   `env:"SESSION_COOKIE_NAME" envDefault:"session"`
	SessionMaxAge     int      `env:"SESSION_MAX_AGE" envDefault:"2592000"` // 30日

	// Rate Limit
	RateLimitAuth int `env:"RATE_LIMIT_AUTH" envDefault:"10"` // req/min/IP

	// Profile
	AvatarCheck bool `env:"AVATAR_CHECK" envDefault:"false"`

	// Observability
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`

	// Cookie（派生値）
	CookieSecure bool `env:"-"`
	// UsingInsecureSecret は開発用の固定シークレットを使用している場合にtrueとなる。
	UsingInsecureSecret bool `env:"-"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.applySecretPolicy(); err != nil {
		return nil, err
	}

	cfg.SupabaseURL = strings.TrimRight(cfg.SupabaseURL, "/")
	cfg.CookieSecure = !cfg.IsDevelopment()

	if cfg.SessionMaxAge <= 0 {
		return nil, fmt.Errorf("SESSION_MAX_AGE must be positive: %d", cfg.SessionMaxAge)
	}

	return cfg, nil
}

// IsDevelopment はローカル開発環境で起動しているかを返す。
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, EnvDevelopment)
}

// applySecretPolicy はセッションシークレットの検証を行う。
// 開発環境のみ未設定時に固定値へフォールバックし、それ以外はエラーとする。
func (c *Config) applySecretPolicy() error {
	secrets := make([]string, 0, len(c.SessionSecrets))
	for _, s := range c.SessionSecrets {
		if s = strings.TrimSpace(s); s != "" {
			secrets = append(secrets, s)
		}
	}
	c.SessionSecrets = secrets

	if len(c.SessionSecrets) > 0 {
		return nil
	}
	if !c.IsDevelopment() {
		return fmt.Errorf("required environment variables are not set: [SESSION_SECRET]")
	}
	c.SessionSecrets = []string{insecureDevSecret}
	c.UsingInsecureSecret = true
	return nil
}
