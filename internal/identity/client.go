// Package identity は外部の認証サービス（Supabase Auth / GoTrue互換）のクライアントを提供する。
// サインアップ、パスワードによるサインイン、トークンのリフレッシュ、サインアウト、
// アクセストークンの検証を行う。パスワードのハッシュ化やトークンの発行は認証サービス側の責務。
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/authdesk/internal/model"
)

const (
	// maxResponseSize はレスポンスボディの読み取り上限（1MB）。
	maxResponseSize = 1 << 20
	// defaultTimeout は1回の呼び出しのタイムアウト。
	defaultTimeout = 10 * time.Second

	tracerName = "github.com/hitoshi/authdesk/internal/identity"
)

// 呼び出し種別。メトリクスとトレースのラベルに使う。
const (
	OpSignUp      = "sign_up"
	OpSignIn      = "sign_in"
	OpRefresh     = "refresh"
	OpSignOut     = "sign_out"
	OpGetUser     = "get_user"
	outcomeOK     = "ok"
	outcomeReject = "rejected"
	outcomeError  = "unavailable"
)

// Recorder は認証サービス呼び出しのメトリクスを記録するインターフェース。
type Recorder interface {
	ObserveIdentityRequest(operation, outcome string, duration time.Duration)
}

// Config はClientの設定。
type Config struct {
	BaseURL    string // 例: https://xxxx.supabase.co
	AnonKey    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Recorder   Recorder
	Logger     *slog.Logger
}

// Client はGoTrue REST APIのクライアント。
// 全ての呼び出しはサーキットブレーカーを経由し、一時的な障害が続く間は即座に失敗する。
// 自動リトライは行わない。
type Client struct {
	httpClient *http.Client
	baseURL    string
	anonKey    string
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker
	recorder   Recorder
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		anonKey:    cfg.AnonKey,
		timeout:    timeout,
		recorder:   cfg.Recorder,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "identity",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		// 認証の拒否はサービスの健全性とは無関係なので失敗として数えない
		IsSuccessful: func(err error) bool {
			return err == nil || !IsUnavailable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("identity circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return c
}

// SignUp はメールアドレスとパスワードでアカウントを作成する。
// メール確認が必要な設定の場合、AuthResult.Sessionはnilとなる。
func (c *Client) SignUp(ctx context.Context, email, password string) (*AuthResult, error) {
	body := map[string]string{"email": email, "password": password}

	var resp sessionResponse
	if err := c.call(ctx, OpSignUp, http.MethodPost, "/auth/v1/signup", "", body, &resp); err != nil {
		return nil, err
	}

	result := resp.toResult(c.now())
	if result.User == nil {
		return nil, fmt.Errorf("%s: response did not include a user", OpSignUp)
	}
	return result, nil
}

// SignInWithPassword はメールアドレスとパスワードでサインインする。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*AuthResult, error) {
	body := map[string]string{"email": email, "password": password}

	var resp sessionResponse
	if err := c.call(ctx, OpSignIn, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &resp); err != nil {
		return nil, err
	}

	result := resp.toResult(c.now())
	if result.Session == nil || result.User == nil {
		return nil, &Error{Status: http.StatusOK, Message: "Failed to create session"}
	}
	return result, nil
}

// RefreshSession はリフレッシュトークンを新しいアクセストークン・リフレッシュトークンの組に交換する。
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*AuthResult, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var resp sessionResponse
	if err := c.call(ctx, OpRefresh, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &resp); err != nil {
		return nil, err
	}

	result := resp.toResult(c.now())
	if result.Session == nil || result.User == nil {
		return nil, &Error{Status: http.StatusOK, Message: "Failed to refresh session"}
	}
	return result, nil
}

// SignOut はアクセストークンに紐づくセッションを認証サービス側で無効化する。
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.call(ctx, OpSignOut, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

// GetUser はアクセストークンを検証し、対応するユーザーを返す。
// ユーザーが存在しない場合は401相当のErrorを返す。
func (c *Client) GetUser(ctx context.Context, accessToken string) (*model.User, error) {
	var resp userResponse
	if err := c.call(ctx, OpGetUser, http.MethodGet, "/auth/v1/user", accessToken, nil, &resp); err != nil {
		return nil, err
	}

	user := resp.toModel()
	if user == nil {
		return nil, &Error{Status: http.StatusUnauthorized, Message: "User not found"}
	}
	return user, nil
}

// call はサーキットブレーカー・トレース・メトリクスを通してHTTPリクエストを実行する。
func (c *Client) call(ctx context.Context, op, method, path, bearer string, body, out any) error {
	ctx, span := c.tracer.Start(ctx, "identity."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("identity.operation", op),
		),
	)
	defer span.End()

	start := c.now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, op, method, path, bearer, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = unavailable(op, err)
	}

	outcome := outcomeOK
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case IsUnavailable(err):
		outcome = outcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, "unavailable")
	default:
		outcome = outcomeReject
		span.SetStatus(codes.Error, "rejected")
	}

	if c.recorder != nil {
		c.recorder.ObserveIdentityRequest(op, outcome, c.now().Sub(start))
	}
	return err
}

// do は1回のHTTPリクエストを実行する。
func (c *Client) do(ctx context.Context, op, method, path, bearer string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("identity service request failed",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		return unavailable(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return unavailable(op, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return c.responseError(op, resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	// 2xxでもJSONでない応答（プロキシのメンテナンスページ等）は経路上の障害として扱う
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Error("identity service returned malformed response",
			slog.String("operation", op),
			slog.Int("http_status", resp.StatusCode),
			slog.String("content_type", resp.Header.Get("Content-Type")),
		)
		return unavailable(op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// responseError はエラーレスポンスを一時的障害と確定的な拒否に分類する。
func (c *Client) responseError(op string, status int, raw []byte) error {
	var body errorResponse
	_ = json.Unmarshal(raw, &body)

	ierr := &Error{
		Status:  status,
		Code:    body.code(),
		Message: body.message(),
	}
	if ierr.Message == "" {
		ierr.Message = http.StatusText(status)
	}

	if isTransientStatus(status) {
		c.logger.Error("identity service returned transient error",
			slog.String("operation", op),
			slog.Int("http_status", status),
		)
		return unavailable(op, ierr)
	}

	c.logger.Info("identity service rejected request",
		slog.String("operation", op),
		slog.Int("http_status", status),
		slog.String("code", ierr.Code),
	)
	return ierr
}
