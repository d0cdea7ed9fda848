package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/config"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

const credentialColumns = `
	id, key, name, description, active, rate_limit, requires_pin,
	COALESCE(pin, ''), last_used, total_requests, expires_at,
	COALESCE(created_by, ''), created_at, updated_at
`

func scanCredential(row pgx.Row) (*models.Credential, error) {
	var c models.Credential
	err := row.Scan(
		&c.ID, &c.Key, &c.Name, &c.Description, &c.Active, &c.RateLimit,
		&c.RequiresPIN, &c.PIN, &c.LastUsed, &c.TotalRequests, &c.ExpiresAt,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan credential: %w", err)
	}
	return &c, nil
}

// CreateCredential inserts a new credential. A fresh secret is generated
// when cred.Key is empty.
func (r *Repository) CreateCredential(ctx context.Context, cred *models.Credential) error {
	if cred.Key == "" {
		key, err := models.GenerateKey("api")
		if err != nil {
			return err
		}
		cred.Key = key
	}

	query := `
		INSERT INTO api_keys (key, name, description, active, rate_limit, requires_pin, pin, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''))
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		cred.Key, cred.Name, cred.Description, cred.Active, cred.RateLimit,
		cred.RequiresPIN, cred.PIN, cred.ExpiresAt, cred.CreatedBy,
	).Scan(&cred.ID, &cred.CreatedAt, &cred.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}

	return nil
}

// GetCredentialByKey looks up a credential by its secret
func (r *Repository) GetCredentialByKey(ctx context.Context, key string) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM api_keys WHERE key = $1`
	return scanCredential(r.db.Pool.QueryRow(ctx, query, key))
}

// GetCredential looks up a credential by id
func (r *Repository) GetCredential(ctx context.Context, id int64) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM api_keys WHERE id = $1`
	return scanCredential(r.db.Pool.QueryRow(ctx, query, id))
}

// ListCredentials returns all credentials ordered by creation time
func (r *Repository) ListCredentials(ctx context.Context) ([]*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM api_keys ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}

	return creds, rows.Err()
}

// UpdateCredential updates the mutable administrative fields of a credential
func (r *Repository) UpdateCredential(ctx context.Context, cred *models.Credential) error {
	query := `
		UPDATE api_keys
		SET name = $2, description = $3, active = $4, rate_limit = $5,
		    requires_pin = $6, pin = NULLIF($7, ''), expires_at = $8, updated_at = now()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		cred.ID, cred.Name, cred.Description, cred.Active, cred.RateLimit,
		cred.RequiresPIN, cred.PIN, cred.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteCredential removes a credential permanently
func (r *Repository) DeleteCredential(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateCredential replaces the secret and resets usage counters. The new
// secret is returned on the credential.
func (r *Repository) RotateCredential(ctx context.Context, id int64) (*models.Credential, error) {
	key, err := models.GenerateKey("api")
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE api_keys
		SET key = $2, total_requests = 0, last_used = NULL, updated_at = now()
		WHERE id = $1
		RETURNING ` + credentialColumns

	return scanCredential(r.db.Pool.QueryRow(ctx, query, id, key))
}

// TouchCredentialUsage records a successful authentication: the request
// counter and last-used timestamp advance in a single statement so the
// update cannot be lost between concurrent callers.
func (r *Repository) TouchCredentialUsage(ctx context.Context, id int64) error {
	query := `
		UPDATE api_keys
		SET total_requests = total_requests + 1, last_used = now()
		WHERE id = $1
	`
	if _, err := r.db.Pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to record credential usage: %w", err)
	}
	return nil
}

// SeedCredentials inserts configured seed keys that are not present yet.
// This replaces hardcoded fallback keys with regular database records
// created once at startup.
func (r *Repository) SeedCredentials(ctx context.Context, seeds []config.SeedKey) error {
	for _, seed := range seeds {
		query := `
			INSERT INTO api_keys (key, name, active, rate_limit, created_by)
			VALUES ($1, $2, true, $3, 'seed')
			ON CONFLICT (key) DO NOTHING
		`
		if _, err := r.db.Pool.Exec(ctx, query, seed.Key, seed.Name, seed.RateLimit); err != nil {
			return fmt.Errorf("failed to seed credential %q: %w", seed.Name, err)
		}
	}
	return nil
}
