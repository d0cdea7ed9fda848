package tvdb

import "encoding/json"

// envelope is the standard upstream response wrapper
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Links  *PageLinks      `json:"links,omitempty"`
}

// PageLinks carries link-based pagination metadata. Pagination is followed
// until Next is absent.
type PageLinks struct {
	Prev       *string `json:"prev,omitempty"`
	Self       *string `json:"self,omitempty"`
	Next       *string `json:"next,omitempty"`
	TotalItems int     `json:"total_items,omitempty"`
	TotalPages int     `json:"totalPages,omitempty"`
}

// HasNext reports whether another page follows
func (l *PageLinks) HasNext() bool {
	return l != nil && l.Next != nil && *l.Next != ""
}

// Page wraps one page of a paginated collection
type Page[T any] struct {
	Data  []T        `json:"data"`
	Links *PageLinks `json:"links,omitempty"`
}

// RemoteID is an external identifier attached to upstream records.
// Type 2 is IMDB, matching the upstream enumeration.
type RemoteID struct {
	ID         string `json:"id"`
	Type       int    `json:"type"`
	SourceName string `json:"sourceName,omitempty"`
}

const remoteIDTypeIMDB = 2

// Alias is an alternate name entry
type Alias struct {
	Language string `json:"language,omitempty"`
	Name     string `json:"name"`
}

// SeriesRecord is an upstream series payload, basic or extended. Pointer
// fields distinguish "absent this sync" from explicit values so partial
// updates never clear stored data.
type SeriesRecord struct {
	ID               int64      `json:"id"`
	Name             *string    `json:"name,omitempty"`
	Slug             *string    `json:"slug,omitempty"`
	Overview         *string    `json:"overview,omitempty"`
	Year             *int       `json:"year,omitempty"`
	FirstAired       *string    `json:"firstAired,omitempty"`
	LastAired        *string    `json:"lastAired,omitempty"`
	NextAired        *string    `json:"nextAired,omitempty"`
	OriginalCountry  *string    `json:"originalCountry,omitempty"`
	OriginalLanguage *string    `json:"originalLanguage,omitempty"`
	AverageRuntime   *int       `json:"averageRuntime,omitempty"`
	Score            *float64   `json:"score,omitempty"`
	Image            *string    `json:"image,omitempty"`
	Banner           *string    `json:"banner,omitempty"`
	Poster           *string    `json:"poster,omitempty"`
	Fanart           *string    `json:"fanart,omitempty"`
	Status           *Status    `json:"status,omitempty"`
	RemoteIDs        []RemoteID `json:"remoteIds,omitempty"`
	Aliases          []Alias    `json:"aliases,omitempty"`

	// Extended-only associations
	Genres    []GenreRecord    `json:"genres,omitempty"`
	Companies []CompanyRecord  `json:"companies,omitempty"`
	Artworks  []ArtworkRecord  `json:"artworks,omitempty"`
	Seasons   []SeasonRecord   `json:"seasons,omitempty"`
}

// IMDBID extracts the IMDB remote id, if reported
func (r *SeriesRecord) IMDBID() *string {
	for _, rid := range r.RemoteIDs {
		if rid.Type == remoteIDTypeIMDB {
			id := rid.ID
			return &id
		}
	}
	return nil
}

// AliasNames flattens alias entries to their names
func (r *SeriesRecord) AliasNames() []string {
	if len(r.Aliases) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.Aliases))
	for _, a := range r.Aliases {
		names = append(names, a.Name)
	}
	return names
}

// Status is an embedded status reference
type Status struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SeasonRecord is an upstream season payload
type SeasonRecord struct {
	ID           int64   `json:"id"`
	SeriesID     int64   `json:"seriesId"`
	Name         *string `json:"name,omitempty"`
	Overview     *string `json:"overview,omitempty"`
	Number       int     `json:"number"`
	Type         *SeasonType `json:"type,omitempty"`
	Year         *int    `json:"year,omitempty"`
	Image        *string `json:"image,omitempty"`
	Poster       *string `json:"poster,omitempty"`
	Artworks     []ArtworkRecord `json:"artwork,omitempty"`
}

// SeasonType classifies a season grouping (official, dvd, absolute)
type SeasonType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// EpisodeRecord is an upstream episode payload
type EpisodeRecord struct {
	ID             int64    `json:"id"`
	SeriesID       int64    `json:"seriesId"`
	Name           *string  `json:"name,omitempty"`
	Overview       *string  `json:"overview,omitempty"`
	Number         *int     `json:"number,omitempty"`
	AbsoluteNumber *int     `json:"absoluteNumber,omitempty"`
	SeasonNumber   *int     `json:"seasonNumber,omitempty"`
	Year           *int     `json:"year,omitempty"`
	Aired          *string  `json:"aired,omitempty"`
	Runtime        *int     `json:"runtime,omitempty"`
	Image          *string  `json:"image,omitempty"`
	Thumbnail      *string  `json:"thumbnail,omitempty"`
	ProductionCode *string  `json:"productionCode,omitempty"`
	FinaleType     *string  `json:"finaleType,omitempty"`
}

// MovieRecord is an upstream movie payload
type MovieRecord struct {
	ID               int64      `json:"id"`
	Name             *string    `json:"name,omitempty"`
	Slug             *string    `json:"slug,omitempty"`
	Overview         *string    `json:"overview,omitempty"`
	Year             *int       `json:"year,omitempty"`
	ReleaseDate      *string    `json:"releaseDate,omitempty"`
	Runtime          *int       `json:"runtime,omitempty"`
	OriginalCountry  *string    `json:"originalCountry,omitempty"`
	OriginalLanguage *string    `json:"originalLanguage,omitempty"`
	Score            *float64   `json:"score,omitempty"`
	Budget           *string    `json:"budget,omitempty"`
	Revenue          *string    `json:"boxOffice,omitempty"`
	Image            *string    `json:"image,omitempty"`
	Poster           *string    `json:"poster,omitempty"`
	Fanart           *string    `json:"fanart,omitempty"`
	Banner           *string    `json:"banner,omitempty"`
	Status           *Status    `json:"status,omitempty"`
	RemoteIDs        []RemoteID `json:"remoteIds,omitempty"`
	Aliases          []Alias    `json:"aliases,omitempty"`

	Genres    []GenreRecord   `json:"genres,omitempty"`
	Companies []CompanyRecord `json:"companies,omitempty"`
	Artworks  []ArtworkRecord `json:"artworks,omitempty"`
}

// IMDBID extracts the IMDB remote id, if reported
func (r *MovieRecord) IMDBID() *string {
	for _, rid := range r.RemoteIDs {
		if rid.Type == remoteIDTypeIMDB {
			id := rid.ID
			return &id
		}
	}
	return nil
}

// AliasNames flattens alias entries to their names
func (r *MovieRecord) AliasNames() []string {
	if len(r.Aliases) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.Aliases))
	for _, a := range r.Aliases {
		names = append(names, a.Name)
	}
	return names
}

// PersonRecord is an upstream person payload
type PersonRecord struct {
	ID         int64           `json:"id"`
	Name       *string         `json:"name,omitempty"`
	Slug       *string         `json:"slug,omitempty"`
	Overview   *string         `json:"overview,omitempty"`
	BirthDate  *string         `json:"birth,omitempty"`
	DeathDate  *string         `json:"death,omitempty"`
	BirthPlace *string         `json:"birthPlace,omitempty"`
	Image      *string         `json:"image,omitempty"`
	Aliases    []Alias         `json:"aliases,omitempty"`
	Artworks   []ArtworkRecord `json:"artworks,omitempty"`
}

// AliasNames flattens alias entries to their names
func (r *PersonRecord) AliasNames() []string {
	if len(r.Aliases) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.Aliases))
	for _, a := range r.Aliases {
		names = append(names, a.Name)
	}
	return names
}

// ArtworkRecord is an upstream artwork payload
type ArtworkRecord struct {
	ID        int64    `json:"id"`
	Image     string   `json:"image"`
	Thumbnail *string  `json:"thumbnail,omitempty"`
	Type      int64    `json:"type"`
	Language  *string  `json:"language,omitempty"`
	Width     *int     `json:"width,omitempty"`
	Height    *int     `json:"height,omitempty"`
	Score     *float64 `json:"score,omitempty"`
}

// GenreRecord is an upstream genre reference entry
type GenreRecord struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// CompanyRecord is an upstream company reference entry
type CompanyRecord struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug,omitempty"`
	Country string `json:"country,omitempty"`
}

// ArtworkTypeRecord is an upstream artwork type reference entry
type ArtworkTypeRecord struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug,omitempty"`
	Width  *int   `json:"width,omitempty"`
	Height *int   `json:"height,omitempty"`
}

// LanguageRecord is an upstream language reference entry. IDs are ISO codes.
type LanguageRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	NativeName string `json:"nativeName,omitempty"`
}

// UpdateRecord is a change-log entry from the updates endpoint
type UpdateRecord struct {
	RecordID   int64  `json:"recordId"`
	EntityType string `json:"entityType"`
	Method     string `json:"method"`
	Timestamp  int64  `json:"timeStamp"`
}
