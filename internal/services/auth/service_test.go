package auth_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ivankudzin/daycare-admin/internal/apitest"
	"github.com/ivankudzin/daycare-admin/internal/notify"
	"github.com/ivankudzin/daycare-admin/internal/repo/memory"
	"github.com/ivankudzin/daycare-admin/internal/services/auth"
	"github.com/ivankudzin/daycare-admin/internal/services/tokenstore"
	"github.com/ivankudzin/daycare-admin/internal/transport/apihttp"
)

const (
	adminEmail    = "director@daycare.test"
	adminPassword = "s3cret-pass"
)

type harness struct {
	server   *apitest.Server
	store    *tokenstore.Store
	service  *auth.Service
	notified *notifications
}

type notifications struct {
	mu   sync.Mutex
	list []notify.Notification
}

func (n *notifications) add(item notify.Notification) {
	n.mu.Lock()
	n.list = append(n.list, item)
	n.mu.Unlock()
}

func (n *notifications) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.list)
}

func newHarness(t *testing.T, cfg auth.Config) *harness {
	t.Helper()

	server := apitest.NewServer(t)
	server.AddUser(t, adminEmail, adminPassword, map[string]interface{}{
		"id":        7,
		"email":     adminEmail,
		"firstName": "Olga",
		"lastName":  "Petrova",
		"isActive":  true,
		"role":      map[string]interface{}{"id": 1, "name": "admin"},
	})

	store := tokenstore.New(memory.NewKVRepo(), tokenstore.Options{})
	sink := notify.NewSink(nil)
	recorded := &notifications{}
	sink.Register(recorded.add)

	client, err := apihttp.NewClient(server.APIURL(), store, sink, apihttp.Options{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	return &harness{
		server:   server,
		store:    store,
		service:  auth.NewService(client, store, cfg, nil),
		notified: recorded,
	}
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	result := h.service.Login(context.Background(), auth.Credentials{Email: adminEmail, Password: adminPassword})
	if !result.Success {
		t.Fatalf("login failed: %+v", result.Error)
	}
}

func TestLoginPersistsSessionAndRedirects(t *testing.T) {
	h := newHarness(t, auth.Config{LoginRedirect: "/dashboard"})
	ctx := context.Background()

	result := h.service.Login(ctx, auth.Credentials{Email: adminEmail, Password: adminPassword})
	if !result.Success || result.RedirectTo != "/dashboard" {
		t.Fatalf("unexpected login result: %+v", result)
	}

	token, ok, err := h.store.GetToken(ctx)
	if err != nil || !ok || token == "" {
		t.Fatalf("expected stored token, got %q ok=%v err=%v", token, ok, err)
	}

	user, ok := h.service.Identity(ctx)
	if !ok || user.ID.String() != "7" || user.FullName() != "Olga Petrova" {
		t.Fatalf("unexpected identity: %+v ok=%v", user, ok)
	}

	if got := h.server.LastRequest().Authorization; got != "" {
		t.Fatalf("login must not send a bearer token, got %q", got)
	}
}

func TestLoginRejectedByServer(t *testing.T) {
	h := newHarness(t, auth.Config{})
	ctx := context.Background()

	result := h.service.Login(ctx, auth.Credentials{Email: adminEmail, Password: "wrong"})
	if result.Success {
		t.Fatal("expected login failure")
	}
	if result.Error == nil || result.Error.Message != "Invalid credentials" {
		t.Fatalf("unexpected error: %+v", result.Error)
	}
	if !result.Error.Notified {
		t.Fatal("expected server rejection to be marked as notified")
	}
	if h.notified.count() != 1 {
		t.Fatalf("expected exactly one notification, got %d", h.notified.count())
	}
	if _, ok, _ := h.store.GetToken(ctx); ok {
		t.Fatal("failed login must not store a token")
	}
}

func TestLoginValidatesCredentialsLocally(t *testing.T) {
	h := newHarness(t, auth.Config{})

	result := h.service.Login(context.Background(), auth.Credentials{Email: "not-an-email", Password: ""})
	if result.Success {
		t.Fatal("expected validation failure")
	}
	if !errors.Is(result.Error.Err, auth.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", result.Error.Err)
	}
	if len(h.server.Requests()) != 0 {
		t.Fatal("invalid credentials must not reach the server")
	}
}

func TestLoginIncompleteReplyStoresNothing(t *testing.T) {
	tests := []struct {
		name  string
		reply map[string]interface{}
	}{
		{name: "missing user", reply: map[string]interface{}{"accessToken": "abc"}},
		{name: "missing token", reply: map[string]interface{}{"user": map[string]interface{}{"id": 1}}},
		{name: "empty token", reply: map[string]interface{}{"accessToken": "", "user": map[string]interface{}{"id": 1}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, auth.Config{})
			h.server.OverrideLoginReply(tc.reply)
			ctx := context.Background()

			result := h.service.Login(ctx, auth.Credentials{Email: adminEmail, Password: adminPassword})
			if result.Success {
				t.Fatal("expected failure")
			}
			if !errors.Is(result.Error.Err, auth.ErrInvalidLoginReply) {
				t.Fatalf("unexpected error: %v", result.Error.Err)
			}
			if _, ok, _ := h.store.GetToken(ctx); ok {
				t.Fatal("token must not be stored")
			}
			if _, ok, _ := h.store.GetUser(ctx); ok {
				t.Fatal("user must not be stored")
			}
		})
	}
}

func TestLogoutClearsSessionAndCallsServer(t *testing.T) {
	h := newHarness(t, auth.Config{LogoutRedirect: "/bye"})
	h.login(t)
	ctx := context.Background()

	result := h.service.Logout(ctx)
	if !result.Success || result.RedirectTo != "/bye" {
		t.Fatalf("unexpected logout result: %+v", result)
	}
	if _, ok, _ := h.store.GetToken(ctx); ok {
		t.Fatal("token should be cleared")
	}
	if _, ok := h.service.Identity(ctx); ok {
		t.Fatal("identity should be cleared")
	}

	last := h.server.LastRequest()
	if last.Method != http.MethodPost || last.Path != "/api/auth/logout" {
		t.Fatalf("unexpected last request: %s %s", last.Method, last.Path)
	}
}

func TestLogoutSucceedsWhenServerFails(t *testing.T) {
	h := newHarness(t, auth.Config{})
	h.login(t)
	h.server.FailNext(http.MethodPost, "/auth/logout", http.StatusInternalServerError, `{"message":"boom"}`)
	ctx := context.Background()

	if result := h.service.Logout(ctx); !result.Success {
		t.Fatalf("logout should always succeed: %+v", result)
	}
	if _, ok, _ := h.store.GetToken(ctx); ok {
		t.Fatal("token should be cleared even when the server fails")
	}
}

func TestLogoutWithoutSessionSkipsServer(t *testing.T) {
	h := newHarness(t, auth.Config{})

	if result := h.service.Logout(context.Background()); !result.Success {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(h.server.Requests()) != 0 {
		t.Fatal("expected no server call without a session")
	}
}

func TestCheckWithoutTokenLogsOut(t *testing.T) {
	h := newHarness(t, auth.Config{})

	result := h.service.Check(context.Background())
	if result.Authenticated || !result.Logout || result.RedirectTo != "/login" {
		t.Fatalf("unexpected check result: %+v", result)
	}
	if !errors.Is(result.Error.Err, auth.ErrNotAuthenticated) {
		t.Fatalf("unexpected error: %v", result.Error.Err)
	}
}

func TestCheckValidSessionRefreshesUser(t *testing.T) {
	h := newHarness(t, auth.Config{})
	h.login(t)

	result := h.service.Check(context.Background())
	if !result.Authenticated || result.Logout {
		t.Fatalf("unexpected check result: %+v", result)
	}
	last := h.server.LastRequest()
	if last.Path != "/api/auth/profile" || last.Authorization == "" {
		t.Fatalf("expected authenticated profile request, got %+v", last)
	}
}

func TestCheckExpiredTokenClearsWithoutServerCall(t *testing.T) {
	h := newHarness(t, auth.Config{})
	h.server.SetTokenTTL(-time.Minute)
	h.login(t)
	before := len(h.server.Requests())
	ctx := context.Background()

	result := h.service.Check(ctx)
	if result.Authenticated || !result.Logout {
		t.Fatalf("unexpected check result: %+v", result)
	}
	if !errors.Is(result.Error.Err, auth.ErrSessionExpired) {
		t.Fatalf("unexpected error: %v", result.Error.Err)
	}
	if len(h.server.Requests()) != before {
		t.Fatal("expired token must not reach the server")
	}
	if _, ok, _ := h.store.GetToken(ctx); ok {
		t.Fatal("expired token should be cleared")
	}
}

func TestCheckRevokedTokenNotifiesOnce(t *testing.T) {
	h := newHarness(t, auth.Config{})
	h.login(t)
	h.server.RevokeAll()
	ctx := context.Background()

	result := h.service.Check(ctx)
	if result.Authenticated || !result.Logout {
		t.Fatalf("unexpected check result: %+v", result)
	}
	if !result.Error.Notified {
		t.Fatal("expected the 401 to be marked as notified")
	}
	if h.notified.count() != 1 {
		t.Fatalf("expected one notification, got %d", h.notified.count())
	}
	if _, ok, _ := h.store.GetToken(ctx); ok {
		t.Fatal("token should be cleared after 401")
	}
}

func TestCheckNetworkErrorKeepsSessionWhenConfigured(t *testing.T) {
	tests := []struct {
		name       string
		keep       bool
		wantToken  bool
		wantLogout bool
	}{
		{name: "keep", keep: true, wantToken: true, wantLogout: false},
		{name: "drop", keep: false, wantToken: false, wantLogout: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, auth.Config{KeepSessionOnNetworkError: tc.keep})
			h.login(t)
			h.server.Close()
			ctx := context.Background()

			result := h.service.Check(ctx)
			if result.Authenticated {
				t.Fatal("unreachable backend must not authenticate")
			}
			if result.Logout != tc.wantLogout {
				t.Fatalf("logout = %v, want %v", result.Logout, tc.wantLogout)
			}
			if _, ok, _ := h.store.GetToken(ctx); ok != tc.wantToken {
				t.Fatalf("token present = %v, want %v", ok, tc.wantToken)
			}
		})
	}
}

func TestCheckCanceledContextKeepsSession(t *testing.T) {
	h := newHarness(t, auth.Config{KeepSessionOnNetworkError: false})
	h.login(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := h.service.Check(ctx)
	if result.Authenticated || result.Logout {
		t.Fatalf("unexpected check result: %+v", result)
	}
	if _, ok, _ := h.store.GetToken(context.Background()); !ok {
		t.Fatal("canceled check must not drop the session")
	}
}

func TestPermissionsAndHasRole(t *testing.T) {
	h := newHarness(t, auth.Config{})
	ctx := context.Background()

	if _, ok := h.service.Permissions(ctx); ok {
		t.Fatal("no permissions before login")
	}
	if h.service.HasRole(ctx, "admin") {
		t.Fatal("no role before login")
	}

	h.login(t)

	role, ok := h.service.Permissions(ctx)
	if !ok || role != "admin" {
		t.Fatalf("unexpected role: %q ok=%v", role, ok)
	}
	if !h.service.HasRole(ctx, "teacher", " ADMIN ") {
		t.Fatal("expected case-insensitive role match")
	}
	if h.service.HasRole(ctx, "parent") {
		t.Fatal("unexpected role match")
	}
}

func TestOnError(t *testing.T) {
	h := newHarness(t, auth.Config{})
	h.login(t)
	ctx := context.Background()

	if result := h.service.OnError(ctx, nil); result.Logout || result.Err != nil {
		t.Fatalf("nil error should be a no-op: %+v", result)
	}

	conflict := &apihttp.APIError{StatusCode: http.StatusConflict, Kind: apihttp.KindConflict, Message: "taken"}
	if result := h.service.OnError(ctx, conflict); result.Logout {
		t.Fatalf("409 must not log out: %+v", result)
	}
	if _, ok, _ := h.store.GetToken(ctx); !ok {
		t.Fatal("409 must not clear the session")
	}

	unauthorized := &apihttp.APIError{StatusCode: http.StatusUnauthorized, Kind: apihttp.KindUnauthorized, Err: apihttp.ErrUnauthorized}
	result := h.service.OnError(ctx, unauthorized)
	if !result.Logout || result.RedirectTo != "/login" {
		t.Fatalf("401 should log out: %+v", result)
	}
	if _, ok, _ := h.store.GetToken(ctx); ok {
		t.Fatal("401 should clear the session")
	}
}
