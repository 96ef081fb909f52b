package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nerrad567/gray-logic-fx/internal/auth"
	"github.com/nerrad567/gray-logic-fx/internal/infrastructure/config"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def", "abc.def"},
		{"Bearer  padded ", "padded"},
		{"Basic dXNlcg==", ""},
		{"", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", tt.header)
		if got := bearerToken(req); got != tt.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestQueryTokenOnlyForWebSocket(t *testing.T) {
	env := newTestEnv(t)
	token := testToken(t, "player", auth.RoleClient)

	w := env.do(t, http.MethodGet, "/api/v1/effects?token="+token, "", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("query token on plain request status = %d, want 401", w.Code)
	}
}

func TestRequirePermission(t *testing.T) {
	env := newTestEnv(t)
	client := testToken(t, "player", auth.RoleClient)
	admin := testToken(t, "ops", auth.RoleAdmin)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"client reads effects", http.MethodGet, "/api/v1/effects", client, http.StatusOK},
		{"client reads patches", http.MethodGet, "/api/v1/patches", client, http.StatusOK},
		{"client cannot dump", http.MethodGet, "/api/v1/effects/dump", client, http.StatusForbidden},
		{"client cannot release patch", http.MethodDelete, "/api/v1/patches/3", client, http.StatusForbidden},
		{"admin dumps", http.MethodGet, "/api/v1/effects/dump", admin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, tt.method, tt.path, tt.token, ""); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	env := newTestEnv(t)
	env.srv.cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"https://console.example"}}
	handler := env.srv.Handler()

	tests := []struct {
		origin    string
		wantAllow string
	}{
		{"https://console.example", "https://console.example"},
		{"https://evil.example", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
		req.Header.Set("Origin", tt.origin)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("preflight status = %d, want 204", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
			t.Errorf("origin %s: Allow-Origin = %q, want %q", tt.origin, got, tt.wantAllow)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	env := newTestEnv(t)
	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
