package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/config"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/database"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

var (
	// ErrUnauthorized covers every authentication failure. Login reports
	// the same error for unknown keys, bad PINs and expired credentials so
	// responses do not leak which part was wrong.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates an authenticated client lacks admin rights
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidToken marks bearer tokens that fail parsing or validation.
	// It matches ErrUnauthorized so handlers treat both uniformly.
	ErrInvalidToken = fmt.Errorf("invalid token: %w", ErrUnauthorized)
)

// CredentialStore is the persistence surface the authenticator needs
type CredentialStore interface {
	GetCredentialByKey(ctx context.Context, key string) (*models.Credential, error)
	TouchCredentialUsage(ctx context.Context, id int64) error
}

// Claims is the JWT payload issued to authenticated clients
type Claims struct {
	ClientName string `json:"client_name"`
	RateLimit  int    `json:"rate_limit"`
	KeyID      int64  `json:"key_id"`
	jwt.RegisteredClaims
}

// Service authenticates clients against the credential store and issues
// bearer tokens.
type Service struct {
	store        CredentialStore
	secret       []byte
	tokenTTL     time.Duration
	adminClients map[string]bool
}

// NewService creates an authenticator
func NewService(store CredentialStore, cfg config.AuthConfig) *Service {
	admins := make(map[string]bool, len(cfg.AdminClients))
	for _, name := range cfg.AdminClients {
		admins[name] = true
	}

	return &Service{
		store:        store,
		secret:       []byte(cfg.SecretKey),
		tokenTTL:     cfg.TokenTTL,
		adminClients: admins,
	}
}

// Login verifies an api key (and PIN when the credential demands one) and
// returns a signed bearer token.
func (s *Service) Login(ctx context.Context, apiKey, pin string) (string, error) {
	cred, err := s.store.GetCredentialByKey(ctx, apiKey)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			log.Error().Err(err).Msg("credential lookup failed")
		}
		return "", ErrUnauthorized
	}

	if !cred.IsValid() {
		return "", ErrUnauthorized
	}
	if cred.RequiresPIN && pin != cred.PIN {
		return "", ErrUnauthorized
	}

	if err := s.store.TouchCredentialUsage(ctx, cred.ID); err != nil {
		log.Warn().Err(err).Int64("key_id", cred.ID).Msg("failed to record credential usage")
	}

	return s.IssueToken(cred)
}

// IssueToken signs a bearer token for a verified credential
func (s *Service) IssueToken(cred *models.Credential) (string, error) {
	now := time.Now()
	claims := Claims{
		ClientName: cred.Name,
		RateLimit:  cred.RateLimit,
		KeyID:      cred.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   cred.Name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// VerifyToken parses and validates a bearer token
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Authenticate resolves a bearer value to a client identity. Tokens are
// tried first; a value that does not parse as a token falls back to a raw
// api key lookup so direct-key clients keep working.
func (s *Service) Authenticate(ctx context.Context, bearer string) (*models.ClientIdentity, error) {
	if bearer == "" {
		return nil, ErrUnauthorized
	}

	if claims, err := s.VerifyToken(bearer); err == nil {
		return &models.ClientIdentity{
			ClientName: claims.ClientName,
			RateLimit:  claims.RateLimit,
			KeyID:      claims.KeyID,
			TokenAuth:  true,
		}, nil
	}

	cred, err := s.store.GetCredentialByKey(ctx, bearer)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			log.Error().Err(err).Msg("credential lookup failed")
		}
		return nil, ErrUnauthorized
	}
	if !cred.IsValid() || cred.RequiresPIN {
		// PIN-protected keys must go through login to present the PIN
		return nil, ErrUnauthorized
	}

	if err := s.store.TouchCredentialUsage(ctx, cred.ID); err != nil {
		log.Warn().Err(err).Int64("key_id", cred.ID).Msg("failed to record credential usage")
	}

	return &models.ClientIdentity{
		Key:        cred.Key,
		ClientName: cred.Name,
		RateLimit:  cred.RateLimit,
		KeyID:      cred.ID,
	}, nil
}

// RequireAdmin checks the identity against the configured admin allow-list
func (s *Service) RequireAdmin(identity *models.ClientIdentity) error {
	if identity == nil || !s.adminClients[identity.ClientName] {
		return ErrForbidden
	}
	return nil
}
