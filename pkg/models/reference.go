package models

// Reference and lookup tables mirrored from the upstream static data
// endpoints. All are keyed by their upstream tvdb_id for upsert matching.

// Genre is a content genre
type Genre struct {
	ID     int64  `json:"id" db:"id"`
	TVDBID int64  `json:"tvdb_id" db:"tvdb_id"`
	Name   string `json:"name" db:"name"`
	Slug   string `json:"slug,omitempty" db:"slug"`
}

// Language is an upstream language entry
type Language struct {
	ID         int64  `json:"id" db:"id"`
	TVDBID     string `json:"tvdb_id" db:"tvdb_id"` // upstream uses ISO codes as ids
	Name       string `json:"name" db:"name"`
	NativeName string `json:"native_name,omitempty" db:"native_name"`
}

// Company is a production or distribution company
type Company struct {
	ID      int64  `json:"id" db:"id"`
	TVDBID  int64  `json:"tvdb_id" db:"tvdb_id"`
	Name    string `json:"name" db:"name"`
	Slug    string `json:"slug,omitempty" db:"slug"`
	Country string `json:"country,omitempty" db:"country"`
}

// Character links a person to a series, episode or movie
type Character struct {
	ID        int64  `json:"id" db:"id"`
	TVDBID    int64  `json:"tvdb_id" db:"tvdb_id"`
	Name      string `json:"name" db:"name"`
	PersonID  *int64 `json:"person_id,omitempty" db:"person_id"`
	SeriesID  *int64 `json:"series_id,omitempty" db:"series_id"`
	EpisodeID *int64 `json:"episode_id,omitempty" db:"episode_id"`
	MovieID   *int64 `json:"movie_id,omitempty" db:"movie_id"`
	Image     string `json:"image,omitempty" db:"image"`
	Sort      *int   `json:"sort,omitempty" db:"sort"`
}

// ArtworkType classifies artwork (poster, banner, fanart, ...)
type ArtworkType struct {
	ID     int64  `json:"id" db:"id"`
	TVDBID int64  `json:"tvdb_id" db:"tvdb_id"`
	Name   string `json:"name" db:"name"`
	Slug   string `json:"slug,omitempty" db:"slug"`
	Width  *int   `json:"width,omitempty" db:"width"`
	Height *int   `json:"height,omitempty" db:"height"`
}

// LookupEntry is a generic enumerated lookup row (statuses, genders,
// person types, content ratings)
type LookupEntry struct {
	ID     int64  `json:"id" db:"id"`
	TVDBID int64  `json:"tvdb_id" db:"tvdb_id"`
	Name   string `json:"name" db:"name"`
}

// Lookup table names accepted by the entity store
const (
	LookupSeriesStatus   = "series_status"
	LookupMovieStatus    = "movie_status"
	LookupPersonTypes    = "person_types"
	LookupGenders        = "genders"
	LookupContentRatings = "content_ratings"
)
