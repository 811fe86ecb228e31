package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cvbuilder/internal/database"
)

func registerAndLogin(t *testing.T, srv *testServer, email, password string) (string, *httptest.ResponseRecorder) {
	t.Helper()
	w := srv.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name":     "Ada",
		"email":    email,
		"password": password,
	})
	expectStatus(t, w, http.StatusCreated)

	w = srv.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": email, "password": password})
	expectStatus(t, w, http.StatusOK)
	token, _ := decodeBody(t, w)["accessToken"].(string)
	if token == "" {
		t.Fatalf("login returned no access token: %s", w.Body.String())
	}
	return token, w
}

func TestRegisterLoginAndProfile(t *testing.T) {
	srv := newTestServer(t)
	token, login := registerAndLogin(t, srv, "Ada@Example.com", "correct-horse")

	var refresh *http.Cookie
	for _, c := range login.Result().Cookies() {
		if c.Name == refreshTokenCookieName {
			refresh = c
		}
	}
	if refresh == nil || !refresh.HttpOnly || refresh.Value == "" {
		t.Fatalf("expected http-only refresh cookie, got %+v", refresh)
	}

	w := srv.do(t, http.MethodGet, "/v1/auth/me", token, nil)
	expectStatus(t, w, http.StatusOK)
	user := decodeBody(t, w)["user"].(map[string]any)
	if user["email"] != "ada@example.com" || user["role"] != database.RoleUser {
		t.Fatalf("unexpected profile %v", user)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Fatalf("profile leaks password field: %s", w.Body.String())
	}
}

func TestRegisterRejectsDuplicateAndWeakPassword(t *testing.T) {
	srv := newTestServer(t)
	registerAndLogin(t, srv, "dup@example.com", "correct-horse")

	w := srv.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name": "Again", "email": "DUP@example.com", "password": "correct-horse",
	})
	expectStatus(t, w, http.StatusConflict)

	w = srv.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name": "Short", "email": "short@example.com", "password": "abc",
	})
	expectStatus(t, w, http.StatusBadRequest)
}

func TestLoginFailuresAndLockout(t *testing.T) {
	srv := newTestServer(t)
	registerAndLogin(t, srv, "lock@example.com", "correct-horse")

	for i := 0; i < 3; i++ {
		w := srv.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "lock@example.com", "password": "wrong-pass"})
		expectStatus(t, w, http.StatusUnauthorized)
	}
	w := srv.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "lock@example.com", "password": "correct-horse"})
	expectStatus(t, w, http.StatusTooManyRequests)
}

func TestLoginRejectsSuspendedAccount(t *testing.T) {
	srv := newTestServer(t)
	registerAndLogin(t, srv, "sus@example.com", "correct-horse")
	if err := srv.db.Model(&database.User{}).Where("email = ?", "sus@example.com").
		Update("status", database.StatusSuspended).Error; err != nil {
		t.Fatalf("suspend: %v", err)
	}

	w := srv.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "sus@example.com", "password": "correct-horse"})
	expectStatus(t, w, http.StatusForbidden)
	if got := decodeBody(t, w)["error"]; got != "account is suspended" {
		t.Fatalf("unexpected error %v", got)
	}
}

func TestRefreshRotatesAndRevokes(t *testing.T) {
	srv := newTestServer(t)
	_, login := registerAndLogin(t, srv, "rot@example.com", "correct-horse")
	var refresh string
	for _, c := range login.Result().Cookies() {
		if c.Name == refreshTokenCookieName {
			refresh = c.Value
		}
	}

	w := srv.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refreshToken": refresh})
	expectStatus(t, w, http.StatusOK)

	// 旧令牌已进入黑名单。
	w = srv.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refreshToken": refresh})
	expectStatus(t, w, http.StatusUnauthorized)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/v1/auth/me", "/v1/cvs", "/v1/subscriptions/me"} {
		w := srv.do(t, http.MethodGet, path, "", nil)
		expectStatus(t, w, http.StatusUnauthorized)
	}
	w := srv.do(t, http.MethodGet, "/v1/cvs", "not-a-token", nil)
	expectStatus(t, w, http.StatusUnauthorized)
}

func TestCORSPreflightOnAuthRoutes(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/auth/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	expectStatus(t, w, http.StatusNoContent)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("expected echoed origin, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/v1/auth/login", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin %q for foreign origin", got)
	}
}
