package models

import "time"

// Season represents a mirrored TVDB season record
type Season struct {
	ID       int64 `json:"id" db:"id"`
	TVDBID   int64 `json:"tvdb_id" db:"tvdb_id"`
	SeriesID int64 `json:"series_id" db:"series_id"`

	Name       string `json:"name,omitempty" db:"name"`
	Overview   string `json:"overview,omitempty" db:"overview"`
	Number     int    `json:"number" db:"number"`
	SeasonType string `json:"season_type,omitempty" db:"season_type"`

	Year    *int       `json:"year,omitempty" db:"year"`
	AirDate *time.Time `json:"air_date,omitempty" db:"air_date"`

	Image  string `json:"image,omitempty" db:"image"`
	Poster string `json:"poster,omitempty" db:"poster"`

	LocalImageURL  string `json:"local_image_url,omitempty" db:"local_image_url"`
	LocalPosterURL string `json:"local_poster_url,omitempty" db:"local_poster_url"`

	LastSynced    *time.Time `json:"last_synced,omitempty" db:"last_synced"`
	NeedsFullSync bool       `json:"needs_full_sync" db:"needs_full_sync"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}
