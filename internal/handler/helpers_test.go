package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/authdesk/internal/auth"
	"github.com/hitoshi/authdesk/internal/identity"
	"github.com/hitoshi/authdesk/internal/model"
	"github.com/hitoshi/authdesk/internal/session"
	"github.com/hitoshi/authdesk/internal/validation"
	"github.com/hitoshi/authdesk/internal/view"
)

// --- モック定義 ---

// mockIdentity はIdentityServiceとauth.IdentityClientのモック実装。
type mockIdentity struct {
	signUpFn  func(ctx context.Context, email, password string) (*identity.AuthResult, error)
	signInFn  func(ctx context.Context, email, password string) (*identity.AuthResult, error)
	getUserFn func(ctx context.Context, accessToken string) (*model.User, error)
	refreshFn func(ctx context.Context, refreshToken string) (*identity.AuthResult, error)
	signOutFn func(ctx context.Context, accessToken string) error

	mu    sync.Mutex
	calls []string
}

func (m *mockIdentity) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op)
}

func (m *mockIdentity) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockIdentity) SignUp(ctx context.Context, email, password string) (*identity.AuthResult, error) {
	m.record("sign_up")
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password)
	}
	return nil, &identity.Error{Status: http.StatusBadRequest, Message: "sign up not configured"}
}

func (m *mockIdentity) SignInWithPassword(ctx context.Context, email, password string) (*identity.AuthResult, error) {
	m.record("sign_in")
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, &identity.Error{Status: http.StatusBadRequest, Code: "invalid_credentials", Message: "Invalid login credentials"}
}

func (m *mockIdentity) GetUser(ctx context.Context, accessToken string) (*model.User, error) {
	m.record("get_user")
	if m.getUserFn != nil {
		return m.getUserFn(ctx, accessToken)
	}
	return nil, &identity.Error{Status: http.StatusUnauthorized, Message: "invalid JWT"}
}

func (m *mockIdentity) RefreshSession(ctx context.Context, refreshToken string) (*identity.AuthResult, error) {
	m.record("refresh")
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return nil, &identity.Error{Status: http.StatusBadRequest, Message: "Invalid Refresh Token"}
}

func (m *mockIdentity) SignOut(ctx context.Context, accessToken string) error {
	m.record("sign_out")
	if m.signOutFn != nil {
		return m.signOutFn(ctx, accessToken)
	}
	return nil
}

// mockProfileService はProfileServiceInterfaceのモック実装。
type mockProfileService struct {
	getFn    func(ctx context.Context, userID string) (*model.Profile, error)
	createFn func(ctx context.Context, user *model.User) error
	updateFn func(ctx context.Context, userID string, in validation.ProfileInput) (*model.Profile, error)
}

func (m *mockProfileService) Get(ctx context.Context, userID string) (*model.Profile, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockProfileService) CreateForNewUser(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockProfileService) Update(ctx context.Context, userID string, in validation.ProfileInput) (*model.Profile, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, in)
	}
	return &model.Profile{ID: userID, Email: in.Email}, nil
}

// mockAuthRecorder はAuthRecorderのモック実装。
type mockAuthRecorder struct {
	attempts []string
}

func (m *mockAuthRecorder) RecordAuthAttempt(action, result string) {
	m.attempts = append(m.attempts, action+":"+result)
}

// --- ヘルパー ---

const (
	testUserID    = "7f1c2a8e-1111-4c4c-9a9a-000000000001"
	testEmail     = "user@example.com"
	testCSRFToken = "test-csrf-token"
)

// testEnv はハンドラーテスト用の依存関係一式。
type testEnv struct {
	store    *session.Store
	gate     *auth.Gate
	identity *mockIdentity
	profiles *mockProfileService
	renderer *view.Renderer
	deps     *RouterDeps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := session.NewStore(session.Options{Secrets: []string{"handler-test-secret"}})
	if err != nil {
		t.Fatalf("failed to create session store: %v", err)
	}
	renderer, err := view.New()
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}

	idp := &mockIdentity{}
	profiles := &mockProfileService{}
	gate := auth.NewGate(store, idp)

	return &testEnv{
		store:    store,
		gate:     gate,
		identity: idp,
		profiles: profiles,
		renderer: renderer,
		deps: &RouterDeps{
			Gate:           gate,
			Identity:       idp,
			ProfileService: profiles,
			Renderer:       renderer,
		},
	}
}

func (e *testEnv) router() http.Handler {
	return NewRouter(e.deps)
}

// sessionCookie はテスト用のセッションCookieを生成する。
func (e *testEnv) sessionCookie(t *testing.T, userID, accessToken, refreshToken string) *http.Cookie {
	t.Helper()
	c, err := e.store.Create(userID, accessToken, refreshToken)
	if err != nil {
		t.Fatalf("failed to create session cookie: %v", err)
	}
	return c
}

// postForm はCSRFトークン付きのフォームPOSTリクエストを生成する。
func postForm(path string, form url.Values, cookies ...*http.Cookie) *http.Request {
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", testCSRFToken)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func getWith(path string, cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// findCookie はレスポンスから指定名のSet-Cookieを探す。
func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func testUser() *model.User {
	return &model.User{ID: testUserID, Email: testEmail}
}

func authResult() *identity.AuthResult {
	user := testUser()
	return &identity.AuthResult{
		User: user,
		Session: &model.AuthSession{
			AccessToken:  "access-token",
			RefreshToken: "refresh-token",
			User:         user,
		},
	}
}

func unavailableErr() error {
	return identity.ErrUnavailable
}
