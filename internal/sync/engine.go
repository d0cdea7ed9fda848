package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/config"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/database"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/jobs"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/monitoring"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/tvdb"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

// watermarkTTL keeps the incremental sync watermark alive far past the
// sync cadence so it never vanishes between runs.
const watermarkTTL = 30 * 24 * time.Hour

// Upstream is the metadata API surface the engine consumes
type Upstream interface {
	GetSeriesExtended(ctx context.Context, id int64) (*tvdb.SeriesRecord, error)
	GetSeriesEpisodes(ctx context.Context, id int64, page int) ([]tvdb.EpisodeRecord, *tvdb.PageLinks, error)
	GetSeasonExtended(ctx context.Context, id int64) (*tvdb.SeasonRecord, error)
	GetSeries(ctx context.Context, id int64) (*tvdb.SeriesRecord, error)
	GetEpisode(ctx context.Context, id int64) (*tvdb.EpisodeRecord, error)
	GetMovie(ctx context.Context, id int64) (*tvdb.MovieRecord, error)
	GetMovieExtended(ctx context.Context, id int64) (*tvdb.MovieRecord, error)
	GetPersonExtended(ctx context.Context, id int64) (*tvdb.PersonRecord, error)
	ListSeries(ctx context.Context, page int) ([]tvdb.SeriesRecord, *tvdb.PageLinks, error)
	ListMovies(ctx context.Context, page int) ([]tvdb.MovieRecord, *tvdb.PageLinks, error)
	ListPeople(ctx context.Context, page int) ([]tvdb.PersonRecord, *tvdb.PageLinks, error)
	UpdatesSince(ctx context.Context, since int64, page int) ([]tvdb.UpdateRecord, *tvdb.PageLinks, error)
	ListGenres(ctx context.Context) ([]tvdb.GenreRecord, error)
	ListArtworkTypes(ctx context.Context) ([]tvdb.ArtworkTypeRecord, error)
	ListLanguages(ctx context.Context) ([]tvdb.LanguageRecord, error)
}

// EntityStore is the persistence surface the engine writes to
type EntityStore interface {
	UpsertSeries(ctx context.Context, rec *tvdb.SeriesRecord) (int64, error)
	SetSeriesGenres(ctx context.Context, seriesID int64, genres []tvdb.GenreRecord) error
	SetSeriesCompanies(ctx context.Context, seriesID int64, companies []tvdb.CompanyRecord) error
	UpsertSeason(ctx context.Context, rec *tvdb.SeasonRecord) (int64, error)
	UpsertEpisode(ctx context.Context, rec *tvdb.EpisodeRecord) (int64, error)
	UpsertMovie(ctx context.Context, rec *tvdb.MovieRecord) (int64, error)
	SetMovieGenres(ctx context.Context, movieID int64, genres []tvdb.GenreRecord) error
	SetMovieCompanies(ctx context.Context, movieID int64, companies []tvdb.CompanyRecord) error
	UpsertPerson(ctx context.Context, rec *tvdb.PersonRecord) (int64, error)
	UpsertArtwork(ctx context.Context, rec *tvdb.ArtworkRecord, parentType string, parentID int64) (int64, error)
	UpsertGenre(ctx context.Context, rec *tvdb.GenreRecord) (int64, error)
	UpsertLanguage(ctx context.Context, code, name, nativeName string) (int64, error)
	UpsertArtworkType(ctx context.Context, at *models.ArtworkType) (int64, error)
	FindMissingImages(ctx context.Context, entityType string, limit int) ([]int64, error)
	PopularSeriesTVDBIDs(ctx context.Context, limit int) ([]int64, error)
}

// ImageSyncer mirrors entity images into object storage
type ImageSyncer interface {
	SyncEntityImages(ctx context.Context, entityType string, tvdbID int64) (int, error)
	SyncPendingArtwork(ctx context.Context, limit int) (int, error)
	CleanupOrphans(ctx context.Context) (int, error)
}

// JobTracker records job state transitions
type JobTracker interface {
	Create(ctx context.Context, jobType string) (*models.SyncJob, error)
	Start(ctx context.Context, id string) error
	SetProgress(ctx context.Context, id string, progress int, status string) error
	Succeed(ctx context.Context, id string, result map[string]interface{}) error
	Fail(ctx context.Context, id string, errMsg string) error
}

// Enqueuer publishes follow-up jobs
type Enqueuer interface {
	Publish(ctx context.Context, msg *models.SyncMessage) error
}

// Watermarks persists the incremental sync position
type Watermarks interface {
	Get(ctx context.Context, namespace, identifier string, dest interface{}) bool
	Set(ctx context.Context, namespace, identifier string, value interface{}, ttl time.Duration) bool
	CleanupPersistent(ctx context.Context) int
}

// Engine executes sync jobs. Every public Run* method drives one job type
// end to end, updating the tracker as it goes.
type Engine struct {
	upstream Upstream
	store    EntityStore
	images   ImageSyncer
	tracker  JobTracker
	enqueue  Enqueuer
	marks    Watermarks
	cfg      config.SyncConfig
}

// NewEngine creates a sync engine
func NewEngine(upstream Upstream, store EntityStore, images ImageSyncer, tracker JobTracker,
	enqueue Enqueuer, marks Watermarks, cfg config.SyncConfig) *Engine {
	return &Engine{
		upstream: upstream,
		store:    store,
		images:   images,
		tracker:  tracker,
		enqueue:  enqueue,
		marks:    marks,
		cfg:      cfg,
	}
}

// Handle dispatches one queued sync message under the configured job
// deadline. The soft deadline only warns; the hard deadline cancels.
func (e *Engine) Handle(ctx context.Context, msg *models.SyncMessage) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.JobHardTimeout)
	defer cancel()

	soft := time.AfterFunc(e.cfg.JobSoftTimeout, func() {
		log.Warn().Str("job_id", msg.JobID).Str("type", msg.Type).
			Dur("soft_timeout", e.cfg.JobSoftTimeout).Msg("sync job exceeded soft deadline")
	})
	defer soft.Stop()

	if err := e.tracker.Start(ctx, msg.JobID); err != nil {
		// A message whose job is gone or already finished can never make
		// progress; requeueing it would poison the queue.
		if errors.Is(err, jobs.ErrNotFound) || errors.Is(err, jobs.ErrTerminal) {
			log.Warn().Err(err).Str("job_id", msg.JobID).Str("type", msg.Type).
				Msg("dropping sync message for unstartable job")
			return nil
		}
		return err
	}
	monitoring.JobsStartedTotal.WithLabelValues(msg.Type).Inc()
	started := time.Now()

	var err error
	switch msg.Type {
	case models.JobFullSync:
		err = e.RunFullSync(ctx, msg.JobID)
	case models.JobIncrementalSync:
		err = e.RunIncrementalSync(ctx, msg.JobID)
	case models.JobSyncStaticData:
		err = e.RunStaticDataSync(ctx, msg.JobID)
	case models.JobSyncSeriesDetailed:
		err = e.RunSeriesDetailed(ctx, msg.JobID, msg.EntityID)
	case models.JobSyncContentImages:
		err = e.RunContentImages(ctx, msg)
	case models.JobSyncAllMissingImages:
		err = e.RunAllMissingImages(ctx, msg.JobID, msg.Limit)
	case models.JobCleanupOrphans:
		err = e.RunCleanupOrphans(ctx, msg.JobID)
	case models.JobCleanupExpiredCache:
		err = e.RunCleanupExpiredCache(ctx, msg.JobID)
	case models.JobPrefetchPopular:
		err = e.RunPrefetchPopular(ctx, msg.JobID, msg.Limit)
	default:
		err = fmt.Errorf("unknown job type %q", msg.Type)
	}

	monitoring.JobDuration.WithLabelValues(msg.Type).Observe(time.Since(started).Seconds())
	if err != nil {
		monitoring.JobsCompletedTotal.WithLabelValues(msg.Type, models.JobStateFailure).Inc()
		if ferr := e.tracker.Fail(ctx, msg.JobID, err.Error()); ferr != nil {
			log.Error().Err(ferr).Str("job_id", msg.JobID).Msg("failed to record job failure")
		}
	} else {
		monitoring.JobsCompletedTotal.WithLabelValues(msg.Type, models.JobStateSuccess).Inc()
	}

	// Image jobs retry through the queue instead of a broker redelivery
	if err != nil && msg.Type == models.JobSyncContentImages {
		return nil
	}

	return err
}

// RunFullSync mirrors static data and the whole catalog
func (e *Engine) RunFullSync(ctx context.Context, jobID string) error {
	if err := e.syncStaticData(ctx); err != nil {
		return err
	}
	if err := e.tracker.SetProgress(ctx, jobID, 20, "static data synced"); err != nil {
		return err
	}

	seriesCount, err := e.syncSeriesPages(ctx, jobID)
	if err != nil {
		return err
	}
	if err := e.tracker.SetProgress(ctx, jobID, 60, "series synced"); err != nil {
		return err
	}

	movieCount, err := e.syncMoviePages(ctx, jobID)
	if err != nil {
		return err
	}
	if err := e.tracker.SetProgress(ctx, jobID, 80, "movies synced"); err != nil {
		return err
	}

	peopleCount, err := e.syncPeoplePages(ctx, jobID)
	if err != nil {
		return err
	}

	e.setWatermark(ctx, time.Now().UTC().Unix())

	return e.tracker.Succeed(ctx, jobID, map[string]interface{}{
		"series": seriesCount,
		"movies": movieCount,
		"people": peopleCount,
	})
}

func (e *Engine) syncSeriesPages(ctx context.Context, jobID string) (int, error) {
	count := 0
	for page := 0; ; page++ {
		records, links, err := e.upstream.ListSeries(ctx, page)
		if err != nil {
			return count, fmt.Errorf("series page %d: %w", page, err)
		}

		for i := range records {
			if _, err := e.store.UpsertSeries(ctx, &records[i]); err != nil {
				log.Error().Err(err).Int64("tvdb_id", records[i].ID).Msg("series upsert failed")
				continue
			}
			count++
		}

		if (page+1)%e.cfg.BatchPages == 0 {
			e.checkpoint(ctx, jobID, fmt.Sprintf("series page %d, %d records", page, count))
		}
		if !links.HasNext() {
			return count, nil
		}
	}
}

func (e *Engine) syncMoviePages(ctx context.Context, jobID string) (int, error) {
	count := 0
	for page := 0; ; page++ {
		records, links, err := e.upstream.ListMovies(ctx, page)
		if err != nil {
			return count, fmt.Errorf("movies page %d: %w", page, err)
		}

		for i := range records {
			if _, err := e.store.UpsertMovie(ctx, &records[i]); err != nil {
				log.Error().Err(err).Int64("tvdb_id", records[i].ID).Msg("movie upsert failed")
				continue
			}
			count++
		}

		if (page+1)%e.cfg.BatchPages == 0 {
			e.checkpoint(ctx, jobID, fmt.Sprintf("movies page %d, %d records", page, count))
		}
		if !links.HasNext() {
			return count, nil
		}
	}
}

func (e *Engine) syncPeoplePages(ctx context.Context, jobID string) (int, error) {
	count := 0
	for page := 0; ; page++ {
		records, links, err := e.upstream.ListPeople(ctx, page)
		if err != nil {
			return count, fmt.Errorf("people page %d: %w", page, err)
		}

		for i := range records {
			if _, err := e.store.UpsertPerson(ctx, &records[i]); err != nil {
				log.Error().Err(err).Int64("tvdb_id", records[i].ID).Msg("person upsert failed")
				continue
			}
			count++
		}

		if (page+1)%e.cfg.BatchPages == 0 {
			e.checkpoint(ctx, jobID, fmt.Sprintf("people page %d, %d records", page, count))
		}
		if !links.HasNext() {
			return count, nil
		}
	}
}

// checkpoint records page-batch progress without failing the sync
func (e *Engine) checkpoint(ctx context.Context, jobID, status string) {
	if err := e.tracker.SetProgress(ctx, jobID, 0, status); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("failed to checkpoint progress")
	}
}

// RunIncrementalSync applies upstream changes since the stored watermark
func (e *Engine) RunIncrementalSync(ctx context.Context, jobID string) error {
	since := e.watermark(ctx)
	started := time.Now().UTC().Unix()

	applied := 0
	skipped := 0
	for page := 0; ; page++ {
		updates, links, err := e.upstream.UpdatesSince(ctx, since, page)
		if err != nil {
			return fmt.Errorf("updates page %d: %w", page, err)
		}

		for _, update := range updates {
			if e.applyUpdate(ctx, update) {
				applied++
			} else {
				skipped++
			}
		}

		if !links.HasNext() {
			break
		}
	}

	e.setWatermark(ctx, started)

	return e.tracker.Succeed(ctx, jobID, map[string]interface{}{
		"since":   since,
		"applied": applied,
		"skipped": skipped,
	})
}

// applyUpdate re-fetches one changed record and reconciles it. Unsupported
// entity types and fetch failures are skipped, never fatal.
func (e *Engine) applyUpdate(ctx context.Context, update tvdb.UpdateRecord) bool {
	var err error
	switch update.EntityType {
	case models.EntitySeries:
		var rec *tvdb.SeriesRecord
		if rec, err = e.upstream.GetSeries(ctx, update.RecordID); err == nil {
			_, err = e.store.UpsertSeries(ctx, rec)
		}
	case models.EntityEpisode:
		var rec *tvdb.EpisodeRecord
		if rec, err = e.upstream.GetEpisode(ctx, update.RecordID); err == nil {
			_, err = e.store.UpsertEpisode(ctx, rec)
		}
	case models.EntityMovie:
		var rec *tvdb.MovieRecord
		if rec, err = e.upstream.GetMovie(ctx, update.RecordID); err == nil {
			_, err = e.store.UpsertMovie(ctx, rec)
		}
	case models.EntityPerson:
		var rec *tvdb.PersonRecord
		if rec, err = e.upstream.GetPersonExtended(ctx, update.RecordID); err == nil {
			_, err = e.store.UpsertPerson(ctx, rec)
		}
	default:
		return false
	}

	if err != nil {
		if errors.Is(err, database.ErrMissingParent) {
			log.Warn().Int64("record_id", update.RecordID).Str("entity", update.EntityType).
				Msg("skipping update for record without mirrored parent")
		} else {
			log.Error().Err(err).Int64("record_id", update.RecordID).Str("entity", update.EntityType).
				Msg("failed to apply update")
		}
		return false
	}

	return true
}

// RunStaticDataSync mirrors the upstream reference lists
func (e *Engine) RunStaticDataSync(ctx context.Context, jobID string) error {
	if err := e.syncStaticData(ctx); err != nil {
		return err
	}
	return e.tracker.Succeed(ctx, jobID, map[string]interface{}{"synced": true})
}

func (e *Engine) syncStaticData(ctx context.Context) error {
	genres, err := e.upstream.ListGenres(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch genres: %w", err)
	}
	for i := range genres {
		if _, err := e.store.UpsertGenre(ctx, &genres[i]); err != nil {
			return err
		}
	}

	types, err := e.upstream.ListArtworkTypes(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch artwork types: %w", err)
	}
	for _, at := range types {
		record := models.ArtworkType{
			TVDBID: at.ID,
			Name:   at.Name,
			Slug:   at.Slug,
			Width:  at.Width,
			Height: at.Height,
		}
		if _, err := e.store.UpsertArtworkType(ctx, &record); err != nil {
			return err
		}
	}

	languages, err := e.upstream.ListLanguages(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch languages: %w", err)
	}
	for _, lang := range languages {
		if _, err := e.store.UpsertLanguage(ctx, lang.ID, lang.Name, lang.NativeName); err != nil {
			return err
		}
	}

	return nil
}

// RunSeriesDetailed mirrors one series in depth: the extended record with
// its associations, every season, every episode page, and the embedded
// artwork.
func (e *Engine) RunSeriesDetailed(ctx context.Context, jobID string, seriesTVDBID int64) error {
	rec, err := e.upstream.GetSeriesExtended(ctx, seriesTVDBID)
	if err != nil {
		return fmt.Errorf("failed to fetch series %d: %w", seriesTVDBID, err)
	}

	seriesID, err := e.store.UpsertSeries(ctx, rec)
	if err != nil {
		return err
	}
	if err := e.tracker.SetProgress(ctx, jobID, 20, "series record synced"); err != nil {
		return err
	}

	if len(rec.Genres) > 0 {
		if err := e.store.SetSeriesGenres(ctx, seriesID, rec.Genres); err != nil {
			return err
		}
	}
	if len(rec.Companies) > 0 {
		if err := e.store.SetSeriesCompanies(ctx, seriesID, rec.Companies); err != nil {
			return err
		}
	}

	seasons := 0
	for i := range rec.Seasons {
		if _, err := e.store.UpsertSeason(ctx, &rec.Seasons[i]); err != nil {
			if errors.Is(err, database.ErrMissingParent) {
				log.Warn().Int64("season", rec.Seasons[i].ID).Msg("skipping season without mirrored series")
				continue
			}
			return err
		}
		seasons++
	}
	if err := e.tracker.SetProgress(ctx, jobID, 40, "seasons synced"); err != nil {
		return err
	}

	episodes := 0
	for page := 0; ; page++ {
		records, links, err := e.upstream.GetSeriesEpisodes(ctx, seriesTVDBID, page)
		if err != nil {
			return fmt.Errorf("episodes page %d: %w", page, err)
		}

		for i := range records {
			if _, err := e.store.UpsertEpisode(ctx, &records[i]); err != nil {
				if errors.Is(err, database.ErrMissingParent) {
					log.Warn().Int64("episode", records[i].ID).Msg("skipping episode without mirrored series")
					continue
				}
				return err
			}
			episodes++
		}

		if !links.HasNext() {
			break
		}
	}
	if err := e.tracker.SetProgress(ctx, jobID, 80, "episodes synced"); err != nil {
		return err
	}

	artworks := 0
	for i := range rec.Artworks {
		if _, err := e.store.UpsertArtwork(ctx, &rec.Artworks[i], models.EntitySeries, seriesID); err != nil {
			log.Error().Err(err).Int64("artwork", rec.Artworks[i].ID).Msg("artwork upsert failed")
			continue
		}
		artworks++
	}

	return e.tracker.Succeed(ctx, jobID, map[string]interface{}{
		"series_id": seriesTVDBID,
		"seasons":   seasons,
		"episodes":  episodes,
		"artworks":  artworks,
	})
}

// RunContentImages mirrors the images of one entity. A failed pass
// re-enqueues the same job with an incremented attempt counter and keeps it
// in PROGRESS; the job only fails once the retry budget is spent.
func (e *Engine) RunContentImages(ctx context.Context, msg *models.SyncMessage) error {
	if !models.ValidContentEntity(msg.EntityType) {
		return fmt.Errorf("cannot sync images for entity type %q", msg.EntityType)
	}

	stored, err := e.images.SyncEntityImages(ctx, msg.EntityType, msg.EntityID)
	if err != nil {
		if msg.Attempt+1 >= e.cfg.ImageRetryLimit {
			return fmt.Errorf("image sync for %s %d: %w", msg.EntityType, msg.EntityID, err)
		}

		retry := *msg
		retry.Attempt++
		retry.EnqueuedAt = time.Now().UTC().Add(e.cfg.ImageRetryDelay)
		if perr := e.enqueue.Publish(ctx, &retry); perr != nil {
			log.Error().Err(perr).Str("job_id", msg.JobID).Msg("failed to enqueue image retry")
			return fmt.Errorf("image sync for %s %d: %w", msg.EntityType, msg.EntityID, err)
		}

		status := fmt.Sprintf("retrying, attempt %d of %d", retry.Attempt+1, e.cfg.ImageRetryLimit)
		if terr := e.tracker.SetProgress(ctx, msg.JobID, 0, status); terr != nil {
			log.Error().Err(terr).Str("job_id", msg.JobID).Msg("failed to record retry state")
		}
		log.Warn().Err(err).Str("job_id", msg.JobID).Str("entity", msg.EntityType).
			Int64("id", msg.EntityID).Int("attempt", retry.Attempt).Msg("image sync retry scheduled")
		return nil
	}

	return e.tracker.Succeed(ctx, msg.JobID, map[string]interface{}{
		"entity_type": msg.EntityType,
		"entity_id":   msg.EntityID,
		"stored":      stored,
	})
}

// RunAllMissingImages fans out image sync jobs for every entity missing a
// local image copy, then mirrors artwork rows not yet stored. Each fan-out
// child is a tracked job of its own so its retries and state survive
// independently of this parent.
func (e *Engine) RunAllMissingImages(ctx context.Context, jobID string, limit int) error {
	if limit <= 0 {
		limit = e.cfg.MissingImageLimit
	}

	enqueued := 0
	for _, entityType := range models.ContentEntityTypes {
		ids, err := e.store.FindMissingImages(ctx, entityType, limit)
		if err != nil {
			return err
		}

		for _, id := range ids {
			child, err := e.tracker.Create(ctx, models.JobSyncContentImages)
			if err != nil {
				return fmt.Errorf("failed to create image sync job: %w", err)
			}
			msg := &models.SyncMessage{
				JobID:      child.ID,
				Type:       models.JobSyncContentImages,
				EntityType: entityType,
				EntityID:   id,
			}
			if err := e.enqueue.Publish(ctx, msg); err != nil {
				return fmt.Errorf("failed to enqueue image sync: %w", err)
			}
			enqueued++
		}
	}

	artworks, err := e.images.SyncPendingArtwork(ctx, limit)
	if err != nil {
		return fmt.Errorf("artwork sync: %w", err)
	}

	return e.tracker.Succeed(ctx, jobID, map[string]interface{}{
		"enqueued": enqueued,
		"artworks": artworks,
	})
}

// RunCleanupOrphans removes stored images whose entities are gone
func (e *Engine) RunCleanupOrphans(ctx context.Context, jobID string) error {
	removed, err := e.images.CleanupOrphans(ctx)
	if err != nil {
		return err
	}
	return e.tracker.Succeed(ctx, jobID, map[string]interface{}{"removed": removed})
}

// RunCleanupExpiredCache collects cache entries stuck without an expiry
func (e *Engine) RunCleanupExpiredCache(ctx context.Context, jobID string) error {
	removed := e.marks.CleanupPersistent(ctx)
	return e.tracker.Succeed(ctx, jobID, map[string]interface{}{"removed": removed})
}

// RunPrefetchPopular warms the cache for the highest ranked series
func (e *Engine) RunPrefetchPopular(ctx context.Context, jobID string, limit int) error {
	if limit <= 0 {
		limit = e.cfg.MissingImageLimit
	}

	ids, err := e.store.PopularSeriesTVDBIDs(ctx, limit)
	if err != nil {
		return err
	}

	warmed := 0
	for _, id := range ids {
		if _, err := e.upstream.GetSeriesExtended(ctx, id); err != nil {
			log.Warn().Err(err).Int64("tvdb_id", id).Msg("prefetch fetch failed")
			continue
		}
		warmed++
	}

	return e.tracker.Succeed(ctx, jobID, map[string]interface{}{"warmed": warmed})
}

func (e *Engine) watermark(ctx context.Context) int64 {
	var since int64
	if e.marks.Get(ctx, "sync", "last_sync", &since) {
		return since
	}
	// No watermark yet: look back one day rather than replaying history
	return time.Now().UTC().Add(-24 * time.Hour).Unix()
}

func (e *Engine) setWatermark(ctx context.Context, ts int64) {
	e.marks.Set(ctx, "sync", "last_sync", ts, watermarkTTL)
}
