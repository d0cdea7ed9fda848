package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/tvdb"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

// UpsertMovie reconciles an upstream movie record and returns the local
// surrogate id.
func (r *Repository) UpsertMovie(ctx context.Context, rec *tvdb.MovieRecord) (int64, error) {
	if rec.ID == 0 {
		return 0, fmt.Errorf("movie record has no upstream id")
	}

	var statusID *int64
	if rec.Status != nil {
		id, err := r.UpsertLookup(ctx, models.LookupMovieStatus, rec.Status.ID, rec.Status.Name)
		if err != nil {
			return 0, err
		}
		statusID = &id
	}

	query := `
		INSERT INTO movies (
			tvdb_id, name, slug, overview, year, release_date, runtime,
			original_country, original_language, score, budget, revenue,
			image, poster, fanart, banner, imdb_id, aliases, status_id, last_synced, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, now(), now())
		ON CONFLICT (tvdb_id) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, movies.name),
			slug = COALESCE(EXCLUDED.slug, movies.slug),
			overview = COALESCE(EXCLUDED.overview, movies.overview),
			year = COALESCE(EXCLUDED.year, movies.year),
			release_date = COALESCE(EXCLUDED.release_date, movies.release_date),
			runtime = COALESCE(EXCLUDED.runtime, movies.runtime),
			original_country = COALESCE(EXCLUDED.original_country, movies.original_country),
			original_language = COALESCE(EXCLUDED.original_language, movies.original_language),
			score = COALESCE(EXCLUDED.score, movies.score),
			budget = COALESCE(EXCLUDED.budget, movies.budget),
			revenue = COALESCE(EXCLUDED.revenue, movies.revenue),
			image = COALESCE(EXCLUDED.image, movies.image),
			poster = COALESCE(EXCLUDED.poster, movies.poster),
			fanart = COALESCE(EXCLUDED.fanart, movies.fanart),
			banner = COALESCE(EXCLUDED.banner, movies.banner),
			imdb_id = COALESCE(EXCLUDED.imdb_id, movies.imdb_id),
			aliases = COALESCE(EXCLUDED.aliases, movies.aliases),
			status_id = COALESCE(EXCLUDED.status_id, movies.status_id),
			last_synced = now(),
			updated_at = now()
		RETURNING id
	`

	var id int64
	err := r.db.Pool.QueryRow(ctx, query,
		rec.ID, rec.Name, rec.Slug, rec.Overview, rec.Year,
		parseDate(rec.ReleaseDate), rec.Runtime,
		rec.OriginalCountry, rec.OriginalLanguage, rec.Score,
		rec.Budget, rec.Revenue,
		rec.Image, rec.Poster, rec.Fanart, rec.Banner,
		rec.IMDBID(), rec.AliasNames(), statusID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert movie %d: %w", rec.ID, err)
	}

	return id, nil
}

// GetMovieByTVDBID retrieves a movie by its upstream id
func (r *Repository) GetMovieByTVDBID(ctx context.Context, tvdbID int64) (*models.Movie, error) {
	query := `
		SELECT id, tvdb_id, COALESCE(imdb_id, ''), COALESCE(name, ''), COALESCE(slug, ''),
		       COALESCE(overview, ''), year, release_date, runtime,
		       status_id, COALESCE(original_country, ''), COALESCE(original_language, ''),
		       rating, score, popularity, COALESCE(budget, ''), COALESCE(revenue, ''),
		       COALESCE(image, ''), COALESCE(poster, ''), COALESCE(fanart, ''), COALESCE(banner, ''),
		       COALESCE(local_image_url, ''), COALESCE(local_poster_url, ''),
		       COALESCE(local_fanart_url, ''), COALESCE(local_banner_url, ''),
		       aliases, last_synced, needs_full_sync, created_at, updated_at
		FROM movies WHERE tvdb_id = $1
	`

	var m models.Movie
	err := r.db.Pool.QueryRow(ctx, query, tvdbID).Scan(
		&m.ID, &m.TVDBID, &m.IMDBID, &m.Name, &m.Slug,
		&m.Overview, &m.Year, &m.ReleaseDate, &m.Runtime,
		&m.StatusID, &m.OriginalCountry, &m.OriginalLanguage,
		&m.Rating, &m.Score, &m.Popularity, &m.Budget, &m.Revenue,
		&m.Image, &m.Poster, &m.Fanart, &m.Banner,
		&m.LocalImageURL, &m.LocalPosterURL, &m.LocalFanartURL, &m.LocalBannerURL,
		&m.Aliases, &m.LastSynced, &m.NeedsFullSync, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get movie %d: %w", tvdbID, err)
	}

	return &m, nil
}

// SetMovieGenres replaces the genre associations of a movie
func (r *Repository) SetMovieGenres(ctx context.Context, movieID int64, genres []tvdb.GenreRecord) error {
	return r.setAssociations(ctx, "movie_genres", "movie_id", movieID, func(tx pgx.Tx) ([]int64, error) {
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

// SetMovieCompanies replaces the company associations of a movie
func (r *Repository) SetMovieCompanies(ctx context.Context, movieID int64, companies []tvdb.CompanyRecord) error {
	return r.setAssociations(ctx, "movie_companies", "movie_id", movieID, func(tx pgx.Tx) ([]int64, error) {
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
