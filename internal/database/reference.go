package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/tvdb"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

var lookupTables = map[string]bool{
	models.LookupSeriesStatus:   true,
	models.LookupMovieStatus:    true,
	models.LookupPersonTypes:    true,
	models.LookupGenders:        true,
	models.LookupContentRatings: true,
}

// UpsertLookup reconciles one row of an enumerated lookup table and returns
// the local surrogate id. The table name must be one of the declared lookup
// tables since it is interpolated into the statement.
func (r *Repository) UpsertLookup(ctx context.Context, table string, tvdbID int64, name string) (int64, error) {
	if !lookupTables[table] {
		return 0, fmt.Errorf("unknown lookup table %q", table)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (tvdb_id, name)
		VALUES ($1, $2)
		ON CONFLICT (tvdb_id) DO UPDATE SET name = COALESCE(NULLIF(EXCLUDED.name, ''), %s.name)
		RETURNING id
	`, table, table)

	var id int64
	if err := r.db.Pool.QueryRow(ctx, query, tvdbID, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert %s %d: %w", table, tvdbID, err)
	}
	return id, nil
}

type execer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const upsertGenreSQL = `
	INSERT INTO genres (tvdb_id, name, slug)
	VALUES ($1, $2, NULLIF($3, ''))
	ON CONFLICT (tvdb_id) DO UPDATE SET
		name = COALESCE(NULLIF(EXCLUDED.name, ''), genres.name),
		slug = COALESCE(EXCLUDED.slug, genres.slug)
	RETURNING id
`

// UpsertGenre reconciles an upstream genre entry
func (r *Repository) UpsertGenre(ctx context.Context, rec *tvdb.GenreRecord) (int64, error) {
	return upsertGenre(ctx, r.db.Pool, rec)
}

func (r *Repository) upsertGenreTx(ctx context.Context, tx pgx.Tx, rec *tvdb.GenreRecord) (int64, error) {
	return upsertGenre(ctx, tx, rec)
}

func upsertGenre(ctx context.Context, q execer, rec *tvdb.GenreRecord) (int64, error) {
	var id int64
	if err := q.QueryRow(ctx, upsertGenreSQL, rec.ID, rec.Name, rec.Slug).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert genre %d: %w", rec.ID, err)
	}
	return id, nil
}

const upsertCompanySQL = `
	INSERT INTO companies (tvdb_id, name, slug, country)
	VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
	ON CONFLICT (tvdb_id) DO UPDATE SET
		name = COALESCE(NULLIF(EXCLUDED.name, ''), companies.name),
		slug = COALESCE(EXCLUDED.slug, companies.slug),
		country = COALESCE(EXCLUDED.country, companies.country)
	RETURNING id
`

// UpsertCompany reconciles an upstream company entry
func (r *Repository) UpsertCompany(ctx context.Context, rec *tvdb.CompanyRecord) (int64, error) {
	return upsertCompany(ctx, r.db.Pool, rec)
}

func (r *Repository) upsertCompanyTx(ctx context.Context, tx pgx.Tx, rec *tvdb.CompanyRecord) (int64, error) {
	return upsertCompany(ctx, tx, rec)
}

func upsertCompany(ctx context.Context, q execer, rec *tvdb.CompanyRecord) (int64, error) {
	var id int64
	if err := q.QueryRow(ctx, upsertCompanySQL, rec.ID, rec.Name, rec.Slug, rec.Country).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert company %d: %w", rec.ID, err)
	}
	return id, nil
}

// UpsertLanguage reconciles an upstream language entry. Languages are keyed
// by their ISO code, which upstream uses as the record id.
func (r *Repository) UpsertLanguage(ctx context.Context, code, name, nativeName string) (int64, error) {
	query := `
		INSERT INTO languages (tvdb_id, name, native_name)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''))
		ON CONFLICT (tvdb_id) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, languages.name),
			native_name = COALESCE(EXCLUDED.native_name, languages.native_name)
		RETURNING id
	`

	var id int64
	if err := r.db.Pool.QueryRow(ctx, query, code, name, nativeName).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert language %q: %w", code, err)
	}
	return id, nil
}

// UpsertArtworkType reconciles an upstream artwork type entry
func (r *Repository) UpsertArtworkType(ctx context.Context, at *models.ArtworkType) (int64, error) {
	query := `
		INSERT INTO artwork_types (tvdb_id, name, slug, width, height)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5)
		ON CONFLICT (tvdb_id) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, artwork_types.name),
			slug = COALESCE(EXCLUDED.slug, artwork_types.slug),
			width = COALESCE(EXCLUDED.width, artwork_types.width),
			height = COALESCE(EXCLUDED.height, artwork_types.height)
		RETURNING id
	`

	var id int64
	err := r.db.Pool.QueryRow(ctx, query, at.TVDBID, at.Name, at.Slug, at.Width, at.Height).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert artwork type %d: %w", at.TVDBID, err)
	}
	return id, nil
}

// artworkTypeIDByTVDBID resolves a local artwork type id, creating a stub
// row when the static data sync has not mirrored the type yet.
func (r *Repository) artworkTypeIDByTVDBID(ctx context.Context, tvdbID int64) (int64, error) {
	query := `
		INSERT INTO artwork_types (tvdb_id)
		VALUES ($1)
		ON CONFLICT (tvdb_id) DO UPDATE SET tvdb_id = EXCLUDED.tvdb_id
		RETURNING id
	`
	var id int64
	if err := r.db.Pool.QueryRow(ctx, query, tvdbID).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to resolve artwork type %d: %w", tvdbID, err)
	}
	return id, nil
}

// languageIDByCode resolves a local language id, creating a stub row when
// needed. Artwork rows reference languages before static data may have run.
func (r *Repository) languageIDByCode(ctx context.Context, code string) (int64, error) {
	query := `
		INSERT INTO languages (tvdb_id)
		VALUES ($1)
		ON CONFLICT (tvdb_id) DO UPDATE SET tvdb_id = EXCLUDED.tvdb_id
		RETURNING id
	`
	var id int64
	if err := r.db.Pool.QueryRow(ctx, query, code).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to resolve language %q: %w", code, err)
	}
	return id, nil
}
