package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/tvdb"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

// UpsertPerson reconciles an upstream person record and returns the local
// surrogate id.
func (r *Repository) UpsertPerson(ctx context.Context, rec *tvdb.PersonRecord) (int64, error) {
	if rec.ID == 0 {
		return 0, fmt.Errorf("person record has no upstream id")
	}

	query := `
		INSERT INTO people (
			tvdb_id, name, slug, overview, birth_date, death_date, birth_place,
			image, aliases, last_synced, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (tvdb_id) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, people.name),
			slug = COALESCE(EXCLUDED.slug, people.slug),
			overview = COALESCE(EXCLUDED.overview, people.overview),
			birth_date = COALESCE(EXCLUDED.birth_date, people.birth_date),
			death_date = COALESCE(EXCLUDED.death_date, people.death_date),
			birth_place = COALESCE(EXCLUDED.birth_place, people.birth_place),
			image = COALESCE(EXCLUDED.image, people.image),
			aliases = COALESCE(EXCLUDED.aliases, people.aliases),
			last_synced = now(),
			updated_at = now()
		RETURNING id
	`

	var id int64
	err := r.db.Pool.QueryRow(ctx, query,
		rec.ID, rec.Name, rec.Slug, rec.Overview,
		parseDate(rec.BirthDate), parseDate(rec.DeathDate), rec.BirthPlace,
		rec.Image, rec.AliasNames(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert person %d: %w", rec.ID, err)
	}

	return id, nil
}

// GetPersonByTVDBID retrieves a person by their upstream id
func (r *Repository) GetPersonByTVDBID(ctx context.Context, tvdbID int64) (*models.Person, error) {
	query := `
		SELECT id, tvdb_id, COALESCE(name, ''), COALESCE(slug, ''), COALESCE(overview, ''),
		       birth_date, death_date, COALESCE(birth_place, ''),
		       type_id, gender_id,
		       COALESCE(image, ''), COALESCE(local_image_url, ''),
		       aliases, last_synced, needs_full_sync, created_at, updated_at
		FROM people WHERE tvdb_id = $1
	`

	var p models.Person
	err := r.db.Pool.QueryRow(ctx, query, tvdbID).Scan(
		&p.ID, &p.TVDBID, &p.Name, &p.Slug, &p.Overview,
		&p.BirthDate, &p.DeathDate, &p.BirthPlace,
		&p.TypeID, &p.GenderID,
		&p.Image, &p.LocalImageURL,
		&p.Aliases, &p.LastSynced, &p.NeedsFullSync, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person %d: %w", tvdbID, err)
	}

	return &p, nil
}
