package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/tvdb"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

// Upserts match rows by the upstream-assigned tvdb_id, never by surrogate
// key. Incoming fields are merged with COALESCE so that a field absent from
// this sync's payload never clears a previously stored value.

// UpsertSeries reconciles an upstream series record into the mirror and
// returns the local surrogate id.
func (r *Repository) UpsertSeries(ctx context.Context, rec *tvdb.SeriesRecord) (int64, error) {
	if rec.ID == 0 {
		return 0, fmt.Errorf("series record has no upstream id")
	}

	var statusID *int64
	if rec.Status != nil {
		id, err := r.UpsertLookup(ctx, models.LookupSeriesStatus, rec.Status.ID, rec.Status.Name)
		if err != nil {
			return 0, err
		}
		statusID = &id
	}

	query := `
		INSERT INTO series (
			tvdb_id, name, slug, overview, year, first_aired, last_aired, next_aired,
			original_country, original_language, average_runtime, score,
			image, banner, poster, fanart, imdb_id, aliases, status_id, last_synced, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, now(), now())
		ON CONFLICT (tvdb_id) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, series.name),
			slug = COALESCE(EXCLUDED.slug, series.slug),
			overview = COALESCE(EXCLUDED.overview, series.overview),
			year = COALESCE(EXCLUDED.year, series.year),
			first_aired = COALESCE(EXCLUDED.first_aired, series.first_aired),
			last_aired = COALESCE(EXCLUDED.last_aired, series.last_aired),
			next_aired = COALESCE(EXCLUDED.next_aired, series.next_aired),
			original_country = COALESCE(EXCLUDED.original_country, series.original_country),
			original_language = COALESCE(EXCLUDED.original_language, series.original_language),
			average_runtime = COALESCE(EXCLUDED.average_runtime, series.average_runtime),
			score = COALESCE(EXCLUDED.score, series.score),
			image = COALESCE(EXCLUDED.image, series.image),
			banner = COALESCE(EXCLUDED.banner, series.banner),
			poster = COALESCE(EXCLUDED.poster, series.poster),
			fanart = COALESCE(EXCLUDED.fanart, series.fanart),
			imdb_id = COALESCE(EXCLUDED.imdb_id, series.imdb_id),
			aliases = COALESCE(EXCLUDED.aliases, series.aliases),
			status_id = COALESCE(EXCLUDED.status_id, series.status_id),
			last_synced = now(),
			updated_at = now()
		RETURNING id
	`

	var id int64
	err := r.db.Pool.QueryRow(ctx, query,
		rec.ID, rec.Name, rec.Slug, rec.Overview, rec.Year,
		parseDate(rec.FirstAired), parseDate(rec.LastAired), parseDate(rec.NextAired),
		rec.OriginalCountry, rec.OriginalLanguage, rec.AverageRuntime, rec.Score,
		rec.Image, rec.Banner, rec.Poster, rec.Fanart,
		rec.IMDBID(), rec.AliasNames(), statusID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert series %d: %w", rec.ID, err)
	}

	return id, nil
}

// GetSeries retrieves a series by surrogate id
func (r *Repository) GetSeries(ctx context.Context, id int64) (*models.Series, error) {
	return r.getSeries(ctx, `WHERE id = $1`, id)
}

// GetSeriesByTVDBID retrieves a series by its upstream id
func (r *Repository) GetSeriesByTVDBID(ctx context.Context, tvdbID int64) (*models.Series, error) {
	return r.getSeries(ctx, `WHERE tvdb_id = $1`, tvdbID)
}

func (r *Repository) getSeries(ctx context.Context, where string, arg interface{}) (*models.Series, error) {
	query := `
		SELECT id, tvdb_id, COALESCE(imdb_id, ''), COALESCE(name, ''), COALESCE(slug, ''),
		       COALESCE(overview, ''), year, first_aired, last_aired, next_aired,
		       status_id, COALESCE(original_country, ''), COALESCE(original_language, ''),
		       average_runtime, rating, score, popularity,
		       COALESCE(image, ''), COALESCE(banner, ''), COALESCE(poster, ''), COALESCE(fanart, ''),
		       COALESCE(local_image_url, ''), COALESCE(local_banner_url, ''),
		       COALESCE(local_poster_url, ''), COALESCE(local_fanart_url, ''),
		       aliases, last_synced, needs_full_sync, created_at, updated_at
		FROM series ` + where

	var s models.Series
	err := r.db.Pool.QueryRow(ctx, query, arg).Scan(
		&s.ID, &s.TVDBID, &s.IMDBID, &s.Name, &s.Slug,
		&s.Overview, &s.Year, &s.FirstAired, &s.LastAired, &s.NextAired,
		&s.StatusID, &s.OriginalCountry, &s.OriginalLanguage,
		&s.AverageRuntime, &s.Rating, &s.Score, &s.Popularity,
		&s.Image, &s.Banner, &s.Poster, &s.Fanart,
		&s.LocalImageURL, &s.LocalBannerURL, &s.LocalPosterURL, &s.LocalFanartURL,
		&s.Aliases, &s.LastSynced, &s.NeedsFullSync, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get series: %w", err)
	}

	return &s, nil
}

// seriesIDByTVDBID resolves a series surrogate id from its upstream id
func (r *Repository) seriesIDByTVDBID(ctx context.Context, tvdbID int64) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx, `SELECT id FROM series WHERE tvdb_id = $1`, tvdbID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrMissingParent
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve series %d: %w", tvdbID, err)
	}
	return id, nil
}

// PopularSeriesTVDBIDs returns the upstream ids of the highest ranked
// mirrored series. Prefetch warms the cache for these.
func (r *Repository) PopularSeriesTVDBIDs(ctx context.Context, limit int) ([]int64, error) {
	query := `
		SELECT tvdb_id FROM series
		ORDER BY popularity DESC NULLS LAST, score DESC NULLS LAST, tvdb_id
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list popular series: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// SetSeriesGenres replaces the genre associations of a series
func (r *Repository) SetSeriesGenres(ctx context.Context, seriesID int64, genres []tvdb.GenreRecord) error {
	return r.setAssociations(ctx, "series_genres", "series_id", seriesID, func(tx pgx.Tx) ([]int64, error) {
		ids := make([]int64, 0, len(genres))
		for _, g := range genres {
			id, err := r.upsertGenreTx(ctx, tx, &g)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	}, "genre_id")
}

// SetSeriesCompanies replaces the company associations of a series
func (r *Repository) SetSeriesCompanies(ctx context.Context, seriesID int64, companies []tvdb.CompanyRecord) error {
	return r.setAssociations(ctx, "series_companies", "series_id", seriesID, func(tx pgx.Tx) ([]int64, error) {
		ids := make([]int64, 0, len(companies))
		for _, c := range companies {
			id, err := r.upsertCompanyTx(ctx, tx, &c)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	}, "company_id")
}

// setAssociations rewrites a many-to-many link table for one owning row
// inside a single transaction.
func (r *Repository) setAssociations(ctx context.Context, table, ownerCol string, ownerID int64,
	resolve func(pgx.Tx) ([]int64, error), refCol string) error {

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	refIDs, err := resolve(tx)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, ownerCol), ownerID); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}

	for _, refID := range refIDs {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING`, table, ownerCol, refCol),
			ownerID, refID); err != nil {
			return fmt.Errorf("failed to link %s: %w", table, err)
		}
	}

	return tx.Commit(ctx)
}
