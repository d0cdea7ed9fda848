package models

import "time"

// Movie represents a mirrored TVDB movie record
type Movie struct {
	ID     int64  `json:"id" db:"id"`
	TVDBID int64  `json:"tvdb_id" db:"tvdb_id"`
	IMDBID string `json:"imdb_id,omitempty" db:"imdb_id"`

	Name     string `json:"name" db:"name"`
	Slug     string `json:"slug,omitempty" db:"slug"`
	Overview string `json:"overview,omitempty" db:"overview"`

	Year        *int       `json:"year,omitempty" db:"year"`
	ReleaseDate *time.Time `json:"release_date,omitempty" db:"release_date"`
	Runtime     *int       `json:"runtime,omitempty" db:"runtime"`

	StatusID         *int64 `json:"status_id,omitempty" db:"status_id"`
	OriginalCountry  string `json:"original_country,omitempty" db:"original_country"`
	OriginalLanguage string `json:"original_language,omitempty" db:"original_language"`

	Rating     *float64 `json:"rating,omitempty" db:"rating"`
	Score      *float64 `json:"score,omitempty" db:"score"`
	Popularity *float64 `json:"popularity,omitempty" db:"popularity"`

	// Stored as strings upstream to carry currency formatting
	Budget  string `json:"budget,omitempty" db:"budget"`
	Revenue string `json:"revenue,omitempty" db:"revenue"`

	Image  string `json:"image,omitempty" db:"image"`
	Poster string `json:"poster,omitempty" db:"poster"`
	Fanart string `json:"fanart,omitempty" db:"fanart"`
	Banner string `json:"banner,omitempty" db:"banner"`

	LocalImageURL  string `json:"local_image_url,omitempty" db:"local_image_url"`
	LocalPosterURL string `json:"local_poster_url,omitempty" db:"local_poster_url"`
	LocalFanartURL string `json:"local_fanart_url,omitempty" db:"local_fanart_url"`
	LocalBannerURL string `json:"local_banner_url,omitempty" db:"local_banner_url"`

	Aliases []string `json:"aliases,omitempty" db:"aliases"`

	LastSynced    *time.Time `json:"last_synced,omitempty" db:"last_synced"`
	NeedsFullSync bool       `json:"needs_full_sync" db:"needs_full_sync"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}
