package models

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// Credential represents an issued API credential
type Credential struct {
	ID            int64      `json:"id" db:"id"`
	Key           string     `json:"key,omitempty" db:"key"`
	Name          string     `json:"name" db:"name"`
	Description   string     `json:"description,omitempty" db:"description"`
	Active        bool       `json:"active" db:"active"`
	RateLimit     int        `json:"rate_limit" db:"rate_limit"` // requests per minute
	RequiresPIN   bool       `json:"requires_pin" db:"requires_pin"`
	PIN           string     `json:"-" db:"pin"`
	LastUsed      *time.Time `json:"last_used,omitempty" db:"last_used"`
	TotalRequests int64      `json:"total_requests" db:"total_requests"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedBy     string     `json:"created_by,omitempty" db:"created_by"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// GenerateKey generates a secure API key with the given prefix
func GenerateKey(prefix string) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return fmt.Sprintf("%s-%s", prefix, base64.RawURLEncoding.EncodeToString(buf)), nil
}

// IsExpired reports whether the credential has passed its expiry
func (c *Credential) IsExpired() bool {
	if c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Before(time.Now())
}

// IsValid reports whether the credential is active and not expired
func (c *Credential) IsValid() bool {
	return c.Active && !c.IsExpired()
}

// KeyPreview returns the last four characters of the key for display
func (c *Credential) KeyPreview() string {
	if len(c.Key) < 4 {
		return ""
	}
	return "..." + c.Key[len(c.Key)-4:]
}

// ClientIdentity is the resolved identity of an authenticated caller
type ClientIdentity struct {
	Key        string `json:"key"`
	ClientName string `json:"client_name"`
	RateLimit  int    `json:"rate_limit"`
	KeyID      int64  `json:"key_id,omitempty"`
	TokenAuth  bool   `json:"token_auth"`
}
