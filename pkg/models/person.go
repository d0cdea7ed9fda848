package models

import "time"

// Person represents a mirrored TVDB person record
type Person struct {
	ID     int64 `json:"id" db:"id"`
	TVDBID int64 `json:"tvdb_id" db:"tvdb_id"`

	Name     string `json:"name" db:"name"`
	Slug     string `json:"slug,omitempty" db:"slug"`
	Overview string `json:"overview,omitempty" db:"overview"`

	BirthDate  *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	DeathDate  *time.Time `json:"death_date,omitempty" db:"death_date"`
	BirthPlace string     `json:"birth_place,omitempty" db:"birth_place"`

	TypeID   *int64 `json:"type_id,omitempty" db:"type_id"`
	GenderID *int64 `json:"gender_id,omitempty" db:"gender_id"`

	Image         string `json:"image,omitempty" db:"image"`
	LocalImageURL string `json:"local_image_url,omitempty" db:"local_image_url"`

	Aliases []string `json:"aliases,omitempty" db:"aliases"`

	LastSynced    *time.Time `json:"last_synced,omitempty" db:"last_synced"`
	NeedsFullSync bool       `json:"needs_full_sync" db:"needs_full_sync"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}
