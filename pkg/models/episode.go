package models

import "time"

// Episode represents a mirrored TVDB episode record
type Episode struct {
	ID       int64  `json:"id" db:"id"`
	TVDBID   int64  `json:"tvdb_id" db:"tvdb_id"`
	SeriesID int64  `json:"series_id" db:"series_id"`
	SeasonID *int64 `json:"season_id,omitempty" db:"season_id"`

	Name     string `json:"name,omitempty" db:"name"`
	Overview string `json:"overview,omitempty" db:"overview"`

	Number         *int `json:"number,omitempty" db:"number"`
	AbsoluteNumber *int `json:"absolute_number,omitempty" db:"absolute_number"`
	SeasonNumber   *int `json:"season_number,omitempty" db:"season_number"`

	Year    *int       `json:"year,omitempty" db:"year"`
	Aired   *time.Time `json:"aired,omitempty" db:"aired"`
	Runtime *int       `json:"runtime,omitempty" db:"runtime"`
	Rating  *float64   `json:"rating,omitempty" db:"rating"`

	Image     string `json:"image,omitempty" db:"image"`
	Thumbnail string `json:"thumbnail,omitempty" db:"thumbnail"`

	LocalImageURL     string `json:"local_image_url,omitempty" db:"local_image_url"`
	LocalThumbnailURL string `json:"local_thumbnail_url,omitempty" db:"local_thumbnail_url"`

	ProductionCode string `json:"production_code,omitempty" db:"production_code"`
	FinaleType     string `json:"finale_type,omitempty" db:"finale_type"`

	LastSynced    *time.Time `json:"last_synced,omitempty" db:"last_synced"`
	NeedsFullSync bool       `json:"needs_full_sync" db:"needs_full_sync"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}
