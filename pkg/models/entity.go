package models

// Entity type identifiers used in cache namespaces, storage keys and job
// payloads. These match the upstream path segments.
const (
	EntitySeries  = "series"
	EntitySeason  = "season"
	EntityEpisode = "episode"
	EntityMovie   = "movie"
	EntityPerson  = "person"
	EntityArtwork = "artwork"
)

// ContentEntityTypes lists the entity types that carry image-slot fields
// and can be targets of image sync jobs.
var ContentEntityTypes = []string{
	EntitySeries, EntityMovie, EntityEpisode, EntitySeason, EntityPerson,
}

// ValidContentEntity reports whether t names a syncable content entity type
func ValidContentEntity(t string) bool {
	for _, v := range ContentEntityTypes {
		if v == t {
			return true
		}
	}
	return false
}

// imageSlots enumerates, per entity type, the image-slot fields carried by
// that entity in slot order. Slot names double as storage path segments and
// as column names in the mirror schema.
var imageSlots = map[string][]string{
	EntitySeries:  {"image", "banner", "poster", "fanart"},
	EntityMovie:   {"image", "poster", "fanart", "banner"},
	EntityEpisode: {"image", "thumbnail"},
	EntitySeason:  {"image", "poster"},
	EntityPerson:  {"image"},
	EntityArtwork: {"image", "thumbnail"},
}

// ImageSlots returns the ordered image-slot names for an entity type
func ImageSlots(entityType string) []string {
	return imageSlots[entityType]
}

// ValidImageSlot reports whether slot is a declared image slot of entityType
func ValidImageSlot(entityType, slot string) bool {
	for _, s := range imageSlots[entityType] {
		if s == slot {
			return true
		}
	}
	return false
}
