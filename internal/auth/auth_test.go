package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/config"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/database"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

type fakeStore struct {
	creds   map[string]*models.Credential
	touched []int64
}

func (f *fakeStore) GetCredentialByKey(_ context.Context, key string) (*models.Credential, error) {
	if c, ok := f.creds[key]; ok {
		return c, nil
	}
	return nil, database.ErrNotFound
}

func (f *fakeStore) TouchCredentialUsage(_ context.Context, id int64) error {
	f.touched = append(f.touched, id)
	return nil
}

func newTestService(creds ...*models.Credential) (*Service, *fakeStore) {
	store := &fakeStore{creds: make(map[string]*models.Credential)}
	for _, c := range creds {
		store.creds[c.Key] = c
	}
	svc := NewService(store, config.AuthConfig{
		SecretKey:    "test-secret",
		TokenTTL:     720 * time.Hour,
		AdminClients: []string{"admin-client"},
	})
	return svc, store
}

func TestLogin_Success(t *testing.T) {
	svc, store := newTestService(&models.Credential{
		ID: 1, Key: "api-good", Name: "plex", Active: true, RateLimit: 100,
	})

	token, err := svc.Login(context.Background(), "api-good", "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a token")
	}
	if len(store.touched) != 1 || store.touched[0] != 1 {
		t.Fatalf("expected usage touch for key 1, got %v", store.touched)
	}

	claims, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if claims.ClientName != "plex" || claims.RateLimit != 100 || claims.KeyID != 1 {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestLogin_UniformFailures(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	svc, _ := newTestService(
		&models.Credential{ID: 1, Key: "api-inactive", Name: "off", Active: false},
		&models.Credential{ID: 2, Key: "api-expired", Name: "old", Active: true, ExpiresAt: &past},
		&models.Credential{ID: 3, Key: "api-pinned", Name: "pin", Active: true, RequiresPIN: true, PIN: "1234"},
	)

	cases := []struct {
		name string
		key  string
		pin  string
	}{
		{"unknown key", "api-nope", ""},
		{"inactive", "api-inactive", ""},
		{"expired", "api-expired", ""},
		{"wrong pin", "api-pinned", "9999"},
		{"missing pin", "api-pinned", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tc.key, tc.pin)
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestLogin_WithPIN(t *testing.T) {
	svc, _ := newTestService(&models.Credential{
		ID: 3, Key: "api-pinned", Name: "pin", Active: true, RequiresPIN: true, PIN: "1234",
	})

	token, err := svc.Login(context.Background(), "api-pinned", "1234")
	if err != nil {
		t.Fatalf("Login with correct PIN failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a token")
	}
}

func TestAuthenticate_TokenFirst(t *testing.T) {
	cred := &models.Credential{ID: 7, Key: "api-good", Name: "plex", Active: true, RateLimit: 50}
	svc, _ := newTestService(cred)

	token, err := svc.IssueToken(cred)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	identity, err := svc.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !identity.TokenAuth {
		t.Fatal("expected token-based identity")
	}
	if identity.ClientName != "plex" || identity.KeyID != 7 {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestAuthenticate_RawKeyFallback(t *testing.T) {
	svc, store := newTestService(&models.Credential{
		ID: 8, Key: "api-raw", Name: "direct", Active: true, RateLimit: 25,
	})

	identity, err := svc.Authenticate(context.Background(), "api-raw")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if identity.TokenAuth {
		t.Fatal("expected raw-key identity")
	}
	if identity.KeyID != 8 || identity.RateLimit != 25 {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	if len(store.touched) != 1 {
		t.Fatalf("expected usage touch, got %v", store.touched)
	}
}

func TestAuthenticate_PINKeyCannotBypassLogin(t *testing.T) {
	svc, _ := newTestService(&models.Credential{
		ID: 9, Key: "api-pinned", Name: "pin", Active: true, RequiresPIN: true, PIN: "1234",
	})

	if _, err := svc.Authenticate(context.Background(), "api-pinned"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	cred := &models.Credential{ID: 1, Key: "api-good", Name: "plex", Active: true}
	store := &fakeStore{creds: map[string]*models.Credential{cred.Key: cred}}
	svc := NewService(store, config.AuthConfig{
		SecretKey: "test-secret",
		TokenTTL:  -time.Minute,
	})

	token, err := svc.IssueToken(cred)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	if _, err := svc.VerifyToken(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}
}

func TestRequireAdmin(t *testing.T) {
	svc, _ := newTestService()

	if err := svc.RequireAdmin(&models.ClientIdentity{ClientName: "admin-client"}); err != nil {
		t.Fatalf("admin client rejected: %v", err)
	}
	if err := svc.RequireAdmin(&models.ClientIdentity{ClientName: "plex"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.RequireAdmin(nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for nil identity, got %v", err)
	}
}
