package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/auth"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/config"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/database"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

type stubStore struct {
	creds map[string]*models.Credential
}

func (s *stubStore) GetCredentialByKey(_ context.Context, key string) (*models.Credential, error) {
	if c, ok := s.creds[key]; ok {
		return c, nil
	}
	return nil, database.ErrNotFound
}

func (s *stubStore) TouchCredentialUsage(_ context.Context, _ int64) error { return nil }

func testRouter(svc *auth.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", Auth(svc), func(c *gin.Context) {
		identity, _ := GetIdentity(c)
		c.JSON(http.StatusOK, gin.H{"client": identity.ClientName})
	})
	r.GET("/admin", Auth(svc), RequireAdmin(svc), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func newAuthService() *auth.Service {
	store := &stubStore{creds: map[string]*models.Credential{
		"api-user":  {ID: 1, Key: "api-user", Name: "plex", Active: true, RateLimit: 100},
		"api-admin": {ID: 2, Key: "api-admin", Name: "admin-client", Active: true, RateLimit: 100},
	}}
	return auth.NewService(store, config.AuthConfig{
		SecretKey:    "test-secret",
		TokenTTL:     time.Hour,
		AdminClients: []string{"admin-client"},
	})
}

func TestAuth_AcceptsRawKeyAndToken(t *testing.T) {
	svc := newAuthService()
	router := testRouter(svc)

	// Raw key
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer api-user")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("raw key rejected: %d %s", w.Code, w.Body.String())
	}

	// Signed token
	token, err := svc.Login(context.Background(), "api-user", "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("token rejected: %d %s", w.Code, w.Body.String())
	}
}

func TestAuth_RejectsMissingAndBadCredentials(t *testing.T) {
	router := testRouter(newAuthService())

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"bad format", "api-user"},
		{"unknown key", "Bearer api-nope"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			router.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", w.Code)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	router := testRouter(newAuthService())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer api-admin")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("admin rejected: %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer api-user")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", w.Code)
	}
}

func TestRateLimit_PerClientBudget(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(60)

	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		c.Set(IdentityContextKey, &models.ClientIdentity{KeyID: 1, ClientName: "plex", RateLimit: 2})
		c.Next()
	}, RateLimit(rl), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("requests within burst should pass: %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once burst exhausted: %v", codes)
	}
}
