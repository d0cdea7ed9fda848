package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/tvdb"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

// UpsertSeason reconciles an upstream season record. The parent series must
// already be mirrored; ErrMissingParent is returned otherwise so callers can
// skip the record and pick it up on a later pass.
func (r *Repository) UpsertSeason(ctx context.Context, rec *tvdb.SeasonRecord) (int64, error) {
	if rec.ID == 0 {
		return 0, fmt.Errorf("season record has no upstream id")
	}

	seriesID, err := r.seriesIDByTVDBID(ctx, rec.SeriesID)
	if err != nil {
		return 0, err
	}

	var seasonType *string
	if rec.Type != nil && rec.Type.Type != "" {
		seasonType = &rec.Type.Type
	}

	query := `
		INSERT INTO seasons (
			tvdb_id, series_id, name, overview, number, season_type, year,
			image, poster, last_synced, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (tvdb_id) DO UPDATE SET
			series_id = EXCLUDED.series_id,
			name = COALESCE(EXCLUDED.name, seasons.name),
			overview = COALESCE(EXCLUDED.overview, seasons.overview),
			number = EXCLUDED.number,
			season_type = COALESCE(EXCLUDED.season_type, seasons.season_type),
			year = COALESCE(EXCLUDED.year, seasons.year),
			image = COALESCE(EXCLUDED.image, seasons.image),
			poster = COALESCE(EXCLUDED.poster, seasons.poster),
			last_synced = now(),
			updated_at = now()
		RETURNING id
	`

	var id int64
	err = r.db.Pool.QueryRow(ctx, query,
		rec.ID, seriesID, rec.Name, rec.Overview, rec.Number, seasonType,
		rec.Year, rec.Image, rec.Poster,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert season %d: %w", rec.ID, err)
	}

	return id, nil
}

// UpsertEpisode reconciles an upstream episode record under its parent
// series. The season link is resolved by season number when that season has
// been mirrored, and left null otherwise.
func (r *Repository) UpsertEpisode(ctx context.Context, rec *tvdb.EpisodeRecord) (int64, error) {
	if rec.ID == 0 {
		return 0, fmt.Errorf("episode record has no upstream id")
	}

	seriesID, err := r.seriesIDByTVDBID(ctx, rec.SeriesID)
	if err != nil {
		return 0, err
	}

	var seasonID *int64
	if rec.SeasonNumber != nil {
		if id, err := r.seasonIDByNumber(ctx, seriesID, *rec.SeasonNumber); err == nil {
			seasonID = &id
		} else if !errors.Is(err, ErrNotFound) {
			return 0, err
		}
	}

	query := `
		INSERT INTO episodes (
			tvdb_id, series_id, season_id, name, overview,
			number, absolute_number, season_number, year, aired, runtime,
			image, thumbnail, production_code, finale_type, last_synced, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now())
		ON CONFLICT (tvdb_id) DO UPDATE SET
			series_id = EXCLUDED.series_id,
			season_id = COALESCE(EXCLUDED.season_id, episodes.season_id),
			name = COALESCE(EXCLUDED.name, episodes.name),
			overview = COALESCE(EXCLUDED.overview, episodes.overview),
			number = COALESCE(EXCLUDED.number, episodes.number),
			absolute_number = COALESCE(EXCLUDED.absolute_number, episodes.absolute_number),
			season_number = COALESCE(EXCLUDED.season_number, episodes.season_number),
			year = COALESCE(EXCLUDED.year, episodes.year),
			aired = COALESCE(EXCLUDED.aired, episodes.aired),
			runtime = COALESCE(EXCLUDED.runtime, episodes.runtime),
			image = COALESCE(EXCLUDED.image, episodes.image),
			thumbnail = COALESCE(EXCLUDED.thumbnail, episodes.thumbnail),
			production_code = COALESCE(EXCLUDED.production_code, episodes.production_code),
			finale_type = COALESCE(EXCLUDED.finale_type, episodes.finale_type),
			last_synced = now(),
			updated_at = now()
		RETURNING id
	`

	var id int64
	err = r.db.Pool.QueryRow(ctx, query,
		rec.ID, seriesID, seasonID, rec.Name, rec.Overview,
		rec.Number, rec.AbsoluteNumber, rec.SeasonNumber, rec.Year,
		parseDate(rec.Aired), rec.Runtime,
		rec.Image, rec.Thumbnail, rec.ProductionCode, rec.FinaleType,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert episode %d: %w", rec.ID, err)
	}

	return id, nil
}

func (r *Repository) seasonIDByNumber(ctx context.Context, seriesID int64, number int) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id FROM seasons WHERE series_id = $1 AND number = $2 ORDER BY id LIMIT 1`,
		seriesID, number,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve season %d of series %d: %w", number, seriesID, err)
	}
	return id, nil
}

// GetSeasonByTVDBID retrieves a season by its upstream id
func (r *Repository) GetSeasonByTVDBID(ctx context.Context, tvdbID int64) (*models.Season, error) {
	query := `
		SELECT id, tvdb_id, series_id, COALESCE(name, ''), COALESCE(overview, ''),
		       number, COALESCE(season_type, ''), year, air_date,
		       COALESCE(image, ''), COALESCE(poster, ''),
		       COALESCE(local_image_url, ''), COALESCE(local_poster_url, ''),
		       last_synced, needs_full_sync, created_at, updated_at
		FROM seasons WHERE tvdb_id = $1
	`

	var s models.Season
	err := r.db.Pool.QueryRow(ctx, query, tvdbID).Scan(
		&s.ID, &s.TVDBID, &s.SeriesID, &s.Name, &s.Overview,
		&s.Number, &s.SeasonType, &s.Year, &s.AirDate,
		&s.Image, &s.Poster, &s.LocalImageURL, &s.LocalPosterURL,
		&s.LastSynced, &s.NeedsFullSync, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get season %d: %w", tvdbID, err)
	}

	return &s, nil
}

// GetEpisodeByTVDBID retrieves an episode by its upstream id
func (r *Repository) GetEpisodeByTVDBID(ctx context.Context, tvdbID int64) (*models.Episode, error) {
	query := `
		SELECT id, tvdb_id, series_id, season_id, COALESCE(name, ''), COALESCE(overview, ''),
		       number, absolute_number, season_number, year, aired, runtime, rating,
		       COALESCE(image, ''), COALESCE(thumbnail, ''),
		       COALESCE(local_image_url, ''), COALESCE(local_thumbnail_url, ''),
		       COALESCE(production_code, ''), COALESCE(finale_type, ''),
		       last_synced, needs_full_sync, created_at, updated_at
		FROM episodes WHERE tvdb_id = $1
	`

	var e models.Episode
	err := r.db.Pool.QueryRow(ctx, query, tvdbID).Scan(
		&e.ID, &e.TVDBID, &e.SeriesID, &e.SeasonID, &e.Name, &e.Overview,
		&e.Number, &e.AbsoluteNumber, &e.SeasonNumber, &e.Year, &e.Aired, &e.Runtime, &e.Rating,
		&e.Image, &e.Thumbnail, &e.LocalImageURL, &e.LocalThumbnailURL,
		&e.ProductionCode, &e.FinaleType,
		&e.LastSynced, &e.NeedsFullSync, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get episode %d: %w", tvdbID, err)
	}

	return &e, nil
}

// ListSeriesEpisodes returns the mirrored episodes of a series ordered by
// season and episode number.
func (r *Repository) ListSeriesEpisodes(ctx context.Context, seriesID int64) ([]*models.Episode, error) {
	query := `
		SELECT id, tvdb_id, series_id, season_id, COALESCE(name, ''), COALESCE(overview, ''),
		       number, absolute_number, season_number, year, aired, runtime, rating,
		       COALESCE(image, ''), COALESCE(thumbnail, ''),
		       COALESCE(local_image_url, ''), COALESCE(local_thumbnail_url, ''),
		       COALESCE(production_code, ''), COALESCE(finale_type, ''),
		       last_synced, needs_full_sync, created_at, updated_at
		FROM episodes
		WHERE series_id = $1
		ORDER BY season_number NULLS LAST, number NULLS LAST
	`

	rows, err := r.db.Pool.Query(ctx, query, seriesID)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*models.Episode
	for rows.Next() {
		var e models.Episode
		if err := rows.Scan(
			&e.ID, &e.TVDBID, &e.SeriesID, &e.SeasonID, &e.Name, &e.Overview,
			&e.Number, &e.AbsoluteNumber, &e.SeasonNumber, &e.Year, &e.Aired, &e.Runtime, &e.Rating,
			&e.Image, &e.Thumbnail, &e.LocalImageURL, &e.LocalThumbnailURL,
			&e.ProductionCode, &e.FinaleType,
			&e.LastSynced, &e.NeedsFullSync, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		episodes = append(episodes, &e)
	}

	return episodes, rows.Err()
}
