package database

import (
	"context"
	"fmt"

	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/tvdb"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

var artworkParentColumns = map[string]string{
	models.EntitySeries:  "series_id",
	models.EntitySeason:  "season_id",
	models.EntityEpisode: "episode_id",
	models.EntityMovie:   "movie_id",
	models.EntityPerson:  "person_id",
}

// UpsertArtwork reconciles an upstream artwork record under one parent
// entity. parentID is the parent's local surrogate id.
func (r *Repository) UpsertArtwork(ctx context.Context, rec *tvdb.ArtworkRecord, parentType string, parentID int64) (int64, error) {
	if rec.ID == 0 {
		return 0, fmt.Errorf("artwork record has no upstream id")
	}

	parentCol, ok := artworkParentColumns[parentType]
	if !ok {
		return 0, fmt.Errorf("artwork cannot belong to entity type %q", parentType)
	}

	typeID, err := r.artworkTypeIDByTVDBID(ctx, rec.Type)
	if err != nil {
		return 0, err
	}

	var languageID *int64
	if rec.Language != nil && *rec.Language != "" {
		id, err := r.languageIDByCode(ctx, *rec.Language)
		if err != nil {
			return 0, err
		}
		languageID = &id
	}

	query := fmt.Sprintf(`
		INSERT INTO artwork (
			tvdb_id, %s, type_id, language_id, image_url, thumbnail_url,
			width, height, score, last_synced, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (tvdb_id) DO UPDATE SET
			%s = EXCLUDED.%s,
			type_id = EXCLUDED.type_id,
			language_id = COALESCE(EXCLUDED.language_id, artwork.language_id),
			image_url = COALESCE(NULLIF(EXCLUDED.image_url, ''), artwork.image_url),
			thumbnail_url = COALESCE(EXCLUDED.thumbnail_url, artwork.thumbnail_url),
			width = COALESCE(EXCLUDED.width, artwork.width),
			height = COALESCE(EXCLUDED.height, artwork.height),
			score = COALESCE(EXCLUDED.score, artwork.score),
			last_synced = now(),
			updated_at = now()
		RETURNING id
	`, parentCol, parentCol, parentCol)

	var id int64
	err = r.db.Pool.QueryRow(ctx, query,
		rec.ID, parentID, typeID, languageID, rec.Image, rec.Thumbnail,
		rec.Width, rec.Height, rec.Score,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert artwork %d: %w", rec.ID, err)
	}

	return id, nil
}

const artworkColumns = `
	id, tvdb_id, series_id, season_id, episode_id, movie_id, person_id,
	type_id, language_id, image_url, COALESCE(thumbnail_url, ''),
	width, height, COALESCE(resolution, ''), score, is_primary,
	COALESCE(local_image_url, ''), COALESCE(local_thumbnail_url, ''),
	COALESCE(storage_path, ''), processed_at,
	last_synced, created_at, updated_at
`

func scanArtworkRows(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]*models.Artwork, error) {
	var out []*models.Artwork
	for rows.Next() {
		var a models.Artwork
		if err := rows.Scan(
			&a.ID, &a.TVDBID, &a.SeriesID, &a.SeasonID, &a.EpisodeID, &a.MovieID, &a.PersonID,
			&a.TypeID, &a.LanguageID, &a.ImageURL, &a.ThumbnailURL,
			&a.Width, &a.Height, &a.Resolution, &a.Score, &a.IsPrimary,
			&a.LocalImageURL, &a.LocalThumbnailURL,
			&a.StoragePath, &a.ProcessedAt,
			&a.LastSynced, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan artwork: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ArtworkForEntity returns the mirrored artwork rows belonging to one
// parent, best score first.
func (r *Repository) ArtworkForEntity(ctx context.Context, entityType string, parentID int64) ([]*models.Artwork, error) {
	parentCol, ok := artworkParentColumns[entityType]
	if !ok {
		return nil, fmt.Errorf("artwork cannot belong to entity type %q", entityType)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM artwork WHERE %s = $1 ORDER BY score DESC NULLS LAST, id`,
		artworkColumns, parentCol,
	)

	rows, err := r.db.Pool.Query(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artwork: %w", err)
	}
	defer rows.Close()

	return scanArtworkRows(rows)
}

// PendingArtwork returns artwork rows that have not been stored locally yet
func (r *Repository) PendingArtwork(ctx context.Context, limit int) ([]*models.Artwork, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM artwork WHERE processed_at IS NULL AND image_url <> '' ORDER BY id LIMIT $1`,
		artworkColumns,
	)

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending artwork: %w", err)
	}
	defer rows.Close()

	return scanArtworkRows(rows)
}

// MarkArtworkStored records where an artwork file was persisted and the
// locally served URLs for it.
func (r *Repository) MarkArtworkStored(ctx context.Context, id int64, storagePath, localImageURL, localThumbnailURL string) error {
	query := `
		UPDATE artwork
		SET storage_path = $2,
		    local_image_url = NULLIF($3, ''),
		    local_thumbnail_url = NULLIF($4, ''),
		    processed_at = now(),
		    updated_at = now()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, storagePath, localImageURL, localThumbnailURL)
	if err != nil {
		return fmt.Errorf("failed to mark artwork stored: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
