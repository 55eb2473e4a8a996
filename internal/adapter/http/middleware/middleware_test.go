package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/infrastructure/auth"
)

func captureUser(got **domain.User) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := domain.UserFromContext(r.Context())
		*got = u
	})
}

func TestAuthMiddleware(t *testing.T) {
	jwtManager := auth.NewJWTManager("secret", time.Minute)
	token, err := jwtManager.Generate(&domain.User{ID: "cashier-1", Role: domain.RoleCashier})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid token", header: "Bearer " + token, want: http.StatusOK},
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, want: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var user *domain.User
			req := httptest.NewRequest(http.MethodGet, "/api/v1/sales/s1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			AuthMiddleware(jwtManager)(captureUser(&user)).ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusOK && (user == nil || user.ID != "cashier-1" || user.Role != domain.RoleCashier) {
				t.Fatalf("user on context = %+v", user)
			}
		})
	}
}

func TestTrustedActor(t *testing.T) {
	var user *domain.User
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cash-sessions", nil)
	req.Header.Set(ActorHeader, " caja-2 ")
	TrustedActor(captureUser(&user)).ServeHTTP(httptest.NewRecorder(), req)
	if user == nil || user.ID != "caja-2" || user.Role != domain.RoleAdmin {
		t.Fatalf("user = %+v", user)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/cash-sessions", nil)
	TrustedActor(captureUser(&user)).ServeHTTP(httptest.NewRecorder(), req)
	if user.ID != anonymousActor {
		t.Fatalf("default actor = %q", user.ID)
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name  string
		guard func(http.Handler) http.Handler
		user  *domain.User
		want  int
	}{
		{name: "operator allows cashier", guard: RequireOperator, user: &domain.User{ID: "c", Role: domain.RoleCashier}, want: http.StatusOK},
		{name: "operator rejects viewer", guard: RequireOperator, user: &domain.User{ID: "v", Role: domain.RoleViewer}, want: http.StatusForbidden},
		{name: "admin rejects cashier", guard: RequireAdmin, user: &domain.User{ID: "c", Role: domain.RoleCashier}, want: http.StatusForbidden},
		{name: "admin allows admin", guard: RequireAdmin, user: &domain.User{ID: "a", Role: domain.RoleAdmin}, want: http.StatusOK},
		{name: "no user", guard: RequireOperator, want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.user != nil {
				req = req.WithContext(domain.ContextWithUser(req.Context(), tt.user))
			}
			rr := httptest.NewRecorder()
			tt.guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestRequestMeta(t *testing.T) {
	var meta domain.RequestMeta
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "192.0.2.10:5500"
	req.Header.Set("User-Agent", "pos/1.0")

	RequestMeta(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta = domain.RequestMetaFromContext(r.Context())
	})).ServeHTTP(httptest.NewRecorder(), req)

	if meta.IPAddress != "192.0.2.10" || meta.UserAgent != "pos/1.0" {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestRecoveryWritesJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	Recovery(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError || rr.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("status = %d content-type = %q", rr.Code, rr.Header().Get("Content-Type"))
	}
}
