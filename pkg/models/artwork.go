package models

import "time"

// Artwork represents a mirrored TVDB artwork record. Each row belongs to
// exactly one of series, season, episode, movie or person.
type Artwork struct {
	ID     int64 `json:"id" db:"id"`
	TVDBID int64 `json:"tvdb_id" db:"tvdb_id"`

	SeriesID  *int64 `json:"series_id,omitempty" db:"series_id"`
	SeasonID  *int64 `json:"season_id,omitempty" db:"season_id"`
	EpisodeID *int64 `json:"episode_id,omitempty" db:"episode_id"`
	MovieID   *int64 `json:"movie_id,omitempty" db:"movie_id"`
	PersonID  *int64 `json:"person_id,omitempty" db:"person_id"`

	TypeID     int64  `json:"type_id" db:"type_id"`
	LanguageID *int64 `json:"language_id,omitempty" db:"language_id"`

	ImageURL     string `json:"image_url" db:"image_url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty" db:"thumbnail_url"`

	Width      *int   `json:"width,omitempty" db:"width"`
	Height     *int   `json:"height,omitempty" db:"height"`
	Resolution string `json:"resolution,omitempty" db:"resolution"`

	Score     *float64 `json:"score,omitempty" db:"score"`
	IsPrimary bool     `json:"is_primary" db:"is_primary"`

	LocalImageURL     string     `json:"local_image_url,omitempty" db:"local_image_url"`
	LocalThumbnailURL string     `json:"local_thumbnail_url,omitempty" db:"local_thumbnail_url"`
	StoragePath       string     `json:"storage_path,omitempty" db:"storage_path"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty" db:"processed_at"`

	LastSynced *time.Time `json:"last_synced,omitempty" db:"last_synced"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}
