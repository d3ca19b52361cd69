package session

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T, secrets ...string) *Store {
	t.Helper()
	if len(secrets) == 0 {
		secrets = []string{"test-session-secret-32bytes-long!"}
	}
	s, err := NewStore(Options{
		CookieName: "session",
		Secrets:    secrets,
		MaxAge:     DefaultMaxAge,
		Secure:     true,
	})
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	return s
}

func requestWithCookie(c *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	if c != nil {
		req.AddCookie(c)
	}
	return req
}

func TestStore_CreateThenRead_RoundTrips(t *testing.T) {
	s := newTestStore(t)

	cookie, err := s.Create("user-123", "access-abc", "refresh-xyz")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	sess, ok := s.Read(requestWithCookie(cookie))
	if !ok {
		t.Fatal("expected session to be readable")
	}
	if sess.UserID != "user-123" {
		t.Errorf("UserID = %q, want %q", sess.UserID, "user-123")
	}
	if sess.AccessToken != "access-abc" {
		t.Errorf("AccessToken = %q, want %q", sess.AccessToken, "access-abc")
	}
	if sess.RefreshToken != "refresh-xyz" {
		t.Errorf("RefreshToken = %q, want %q", sess.RefreshToken, "refresh-xyz")
	}
}

func TestStore_Create_CookieAttributes(t *testing.T) {
	s := newTestStore(t)

	cookie, err := s.Create("user-123", "a", "r")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if cookie.Name != "session" {
		t.Errorf("Name = %q, want %q", cookie.Name, "session")
	}
	if !cookie.HttpOnly {
		t.Error("cookie should be HttpOnly")
	}
	if !cookie.Secure {
		t.Error("cookie should be Secure when configured")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", cookie.SameSite)
	}
	if cookie.Path != "/" {
		t.Errorf("Path = %q, want /", cookie.Path)
	}
	if cookie.MaxAge != 2592000 {
		t.Errorf("MaxAge = %d, want 2592000", cookie.MaxAge)
	}
	// トークンは平文で含まれない
	if strings.Contains(cookie.Value, "access") || strings.Contains(cookie.Value, "user-123") {
		t.Errorf("cookie value leaks plaintext: %q", cookie.Value)
	}
}

func TestStore_Read_NoCookie_ReturnsAbsent(t *testing.T) {
	s := newTestStore(t)

	if _, ok := s.Read(requestWithCookie(nil)); ok {
		t.Fatal("expected no session without cookie")
	}
}

func TestStore_Read_CorruptedCookie_ReturnsAbsent(t *testing.T) {
	s := newTestStore(t)
	valid, err := s.Create("user-123", "a", "r")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	// 暗号文の1バイトを反転
	raw, err := base64.RawURLEncoding.DecodeString(valid.Value)
	if err != nil {
		t.Fatalf("cookie value is not base64url: %v", err)
	}
	raw[len(raw)-1] ^= 0x01
	tampered := base64.RawURLEncoding.EncodeToString(raw)

	tests := map[string]string{
		"garbage":   "not-a-session",
		"empty b64": "",
		"bad b64":   "%%%%",
		"short":     "AAAA",
		"tampered":  tampered,
	}

	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			req := requestWithCookie(&http.Cookie{Name: "session", Value: value})
			if _, ok := s.Read(req); ok {
				t.Fatalf("expected corrupted cookie %q to read as absent", value)
			}
		})
	}
}

func TestStore_DestroyThenRead_ReturnsAbsent(t *testing.T) {
	s := newTestStore(t)

	destroyed := s.Destroy()
	if destroyed.MaxAge != -1 {
		t.Errorf("MaxAge = %d, want -1", destroyed.MaxAge)
	}
	if destroyed.Value != "" {
		t.Errorf("Value = %q, want empty", destroyed.Value)
	}
	if destroyed.Name != "session" || destroyed.Path != "/" {
		t.Errorf("destroy cookie must match name/path, got %q %q", destroyed.Name, destroyed.Path)
	}

	if _, ok := s.Read(requestWithCookie(destroyed)); ok {
		t.Fatal("expected destroyed cookie to read as absent")
	}
}

func TestStore_SecretRotation_OldSecretStillOpens(t *testing.T) {
	oldStore := newTestStore(t, "old-secret")
	cookie, err := oldStore.Create("user-123", "a", "r")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	rotated := newTestStore(t, "new-secret", "old-secret")
	sess, ok := rotated.Read(requestWithCookie(cookie))
	if !ok {
		t.Fatal("expected cookie sealed with old secret to open after rotation")
	}
	if sess.UserID != "user-123" {
		t.Errorf("UserID = %q, want user-123", sess.UserID)
	}

	// 新しいCookieは新しいシークレットで封緘される
	fresh, err := rotated.Create("user-123", "a", "r")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, ok := oldStore.Read(requestWithCookie(fresh)); ok {
		t.Fatal("cookie sealed with new secret should not open with old secret only")
	}
}

func TestStore_DifferentSecret_ReturnsAbsent(t *testing.T) {
	a := newTestStore(t, "secret-a")
	b := newTestStore(t, "secret-b")

	cookie, err := a.Create("user-123", "a", "r")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, ok := b.Read(requestWithCookie(cookie)); ok {
		t.Fatal("expected cookie from another secret to be rejected")
	}
}

func TestStore_CookieNameIsBound(t *testing.T) {
	a, err := NewStore(Options{CookieName: "session_a", Secrets: []string{"same"}})
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	b, err := NewStore(Options{CookieName: "session_b", Secrets: []string{"same"}})
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}

	cookie, err := a.Create("user-123", "a", "r")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, ok := b.Decode(cookie.Value); ok {
		t.Fatal("cookie sealed under another name should not open")
	}
}

func TestStore_ExpiredByAge_ReturnsAbsent(t *testing.T) {
	s := newTestStore(t)
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return issued }

	cookie, err := s.Create("user-123", "a", "r")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	s.now = func() time.Time { return issued.Add(29 * 24 * time.Hour) }
	if _, ok := s.Decode(cookie.Value); !ok {
		t.Fatal("expected cookie within max age to be valid")
	}

	s.now = func() time.Time { return issued.Add(31 * 24 * time.Hour) }
	if _, ok := s.Decode(cookie.Value); ok {
		t.Fatal("expected cookie older than max age to be rejected")
	}
}

func TestStore_Create_RequiresUserID(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("", "a", "r"); err == nil {
		t.Fatal("expected error for empty user ID")
	}
}

func TestNewStore_RequiresSecret(t *testing.T) {
	if _, err := NewStore(Options{}); err == nil {
		t.Fatal("expected error without secrets")
	}
	if _, err := NewStore(Options{Secrets: []string{""}}); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestStore_Create_NonceMakesValuesDistinct(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.Create("user-123", "a", "r")
	b, _ := s.Create("user-123", "a", "r")
	if a.Value == b.Value {
		t.Fatal("expected distinct cookie values for identical sessions")
	}
}
