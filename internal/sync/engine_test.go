package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/config"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/database"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/jobs"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/tvdb"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

func strptr(s string) *string { return &s }

type fakeUpstream struct {
	seriesPages  [][]tvdb.SeriesRecord
	moviePages   [][]tvdb.MovieRecord
	peoplePages  [][]tvdb.PersonRecord
	episodePages [][]tvdb.EpisodeRecord
	updates      []tvdb.UpdateRecord
	extended     map[int64]*tvdb.SeriesRecord
	genres       []tvdb.GenreRecord
	artTypes     []tvdb.ArtworkTypeRecord
	languages    []tvdb.LanguageRecord
	extendedHits int
}

func pageLinks(page, total int) *tvdb.PageLinks {
	if page+1 < total {
		next := fmt.Sprintf("?page=%d", page+1)
		return &tvdb.PageLinks{Next: &next}
	}
	return &tvdb.PageLinks{}
}

func (f *fakeUpstream) ListSeries(_ context.Context, page int) ([]tvdb.SeriesRecord, *tvdb.PageLinks, error) {
	if page >= len(f.seriesPages) {
		return nil, &tvdb.PageLinks{}, nil
	}
	return f.seriesPages[page], pageLinks(page, len(f.seriesPages)), nil
}

func (f *fakeUpstream) ListMovies(_ context.Context, page int) ([]tvdb.MovieRecord, *tvdb.PageLinks, error) {
	if page >= len(f.moviePages) {
		return nil, &tvdb.PageLinks{}, nil
	}
	return f.moviePages[page], pageLinks(page, len(f.moviePages)), nil
}

func (f *fakeUpstream) ListPeople(_ context.Context, page int) ([]tvdb.PersonRecord, *tvdb.PageLinks, error) {
	if page >= len(f.peoplePages) {
		return nil, &tvdb.PageLinks{}, nil
	}
	return f.peoplePages[page], pageLinks(page, len(f.peoplePages)), nil
}

func (f *fakeUpstream) GetSeriesEpisodes(_ context.Context, _ int64, page int) ([]tvdb.EpisodeRecord, *tvdb.PageLinks, error) {
	if page >= len(f.episodePages) {
		return nil, &tvdb.PageLinks{}, nil
	}
	return f.episodePages[page], pageLinks(page, len(f.episodePages)), nil
}

func (f *fakeUpstream) UpdatesSince(_ context.Context, _ int64, page int) ([]tvdb.UpdateRecord, *tvdb.PageLinks, error) {
	if page > 0 {
		return nil, &tvdb.PageLinks{}, nil
	}
	return f.updates, &tvdb.PageLinks{}, nil
}

func (f *fakeUpstream) GetSeries(_ context.Context, id int64) (*tvdb.SeriesRecord, error) {
	return &tvdb.SeriesRecord{ID: id, Name: strptr("updated")}, nil
}

func (f *fakeUpstream) GetSeriesExtended(_ context.Context, id int64) (*tvdb.SeriesRecord, error) {
	f.extendedHits++
	if rec, ok := f.extended[id]; ok {
		return rec, nil
	}
	return nil, tvdb.ErrNotFound
}

func (f *fakeUpstream) GetSeasonExtended(_ context.Context, id int64) (*tvdb.SeasonRecord, error) {
	return &tvdb.SeasonRecord{ID: id}, nil
}

func (f *fakeUpstream) GetEpisode(_ context.Context, id int64) (*tvdb.EpisodeRecord, error) {
	return &tvdb.EpisodeRecord{ID: id, SeriesID: 1}, nil
}

func (f *fakeUpstream) GetMovie(_ context.Context, id int64) (*tvdb.MovieRecord, error) {
	return &tvdb.MovieRecord{ID: id}, nil
}

func (f *fakeUpstream) GetMovieExtended(_ context.Context, id int64) (*tvdb.MovieRecord, error) {
	return &tvdb.MovieRecord{ID: id}, nil
}

func (f *fakeUpstream) GetPersonExtended(_ context.Context, id int64) (*tvdb.PersonRecord, error) {
	return &tvdb.PersonRecord{ID: id}, nil
}

func (f *fakeUpstream) ListGenres(_ context.Context) ([]tvdb.GenreRecord, error) {
	return f.genres, nil
}

func (f *fakeUpstream) ListArtworkTypes(_ context.Context) ([]tvdb.ArtworkTypeRecord, error) {
	return f.artTypes, nil
}

func (f *fakeUpstream) ListLanguages(_ context.Context) ([]tvdb.LanguageRecord, error) {
	return f.languages, nil
}

type fakeStore struct {
	series       map[int64]int64
	episodes     []int64
	seasons      []int64
	movies       []int64
	people       []int64
	artworks     []int64
	genres       []string
	languages    []string
	artTypes     []int64
	missing      map[string][]int64
	popular      []int64
	nextID       int64
	missingParent map[int64]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		series:        make(map[int64]int64),
		missing:       make(map[string][]int64),
		missingParent: make(map[int64]bool),
	}
}

func (s *fakeStore) UpsertSeries(_ context.Context, rec *tvdb.SeriesRecord) (int64, error) {
	if id, ok := s.series[rec.ID]; ok {
		return id, nil
	}
	s.nextID++
	s.series[rec.ID] = s.nextID
	return s.nextID, nil
}

func (s *fakeStore) SetSeriesGenres(_ context.Context, _ int64, genres []tvdb.GenreRecord) error {
	for _, g := range genres {
		s.genres = append(s.genres, g.Name)
	}
	return nil
}

func (s *fakeStore) SetSeriesCompanies(_ context.Context, _ int64, _ []tvdb.CompanyRecord) error {
	return nil
}

func (s *fakeStore) UpsertSeason(_ context.Context, rec *tvdb.SeasonRecord) (int64, error) {
	if s.missingParent[rec.SeriesID] {
		return 0, database.ErrMissingParent
	}
	s.seasons = append(s.seasons, rec.ID)
	return rec.ID, nil
}

func (s *fakeStore) UpsertEpisode(_ context.Context, rec *tvdb.EpisodeRecord) (int64, error) {
	if s.missingParent[rec.SeriesID] {
		return 0, database.ErrMissingParent
	}
	s.episodes = append(s.episodes, rec.ID)
	return rec.ID, nil
}

func (s *fakeStore) UpsertMovie(_ context.Context, rec *tvdb.MovieRecord) (int64, error) {
	s.movies = append(s.movies, rec.ID)
	return rec.ID, nil
}

func (s *fakeStore) SetMovieGenres(_ context.Context, _ int64, _ []tvdb.GenreRecord) error {
	return nil
}

func (s *fakeStore) SetMovieCompanies(_ context.Context, _ int64, _ []tvdb.CompanyRecord) error {
	return nil
}

func (s *fakeStore) UpsertPerson(_ context.Context, rec *tvdb.PersonRecord) (int64, error) {
	s.people = append(s.people, rec.ID)
	return rec.ID, nil
}

func (s *fakeStore) UpsertArtwork(_ context.Context, rec *tvdb.ArtworkRecord, _ string, _ int64) (int64, error) {
	s.artworks = append(s.artworks, rec.ID)
	return rec.ID, nil
}

func (s *fakeStore) UpsertGenre(_ context.Context, rec *tvdb.GenreRecord) (int64, error) {
	s.genres = append(s.genres, rec.Name)
	return rec.ID, nil
}

func (s *fakeStore) UpsertLanguage(_ context.Context, code, _, _ string) (int64, error) {
	s.languages = append(s.languages, code)
	return int64(len(s.languages)), nil
}

func (s *fakeStore) UpsertArtworkType(_ context.Context, at *models.ArtworkType) (int64, error) {
	s.artTypes = append(s.artTypes, at.TVDBID)
	return at.TVDBID, nil
}

func (s *fakeStore) FindMissingImages(_ context.Context, entityType string, _ int) ([]int64, error) {
	return s.missing[entityType], nil
}

func (s *fakeStore) PopularSeriesTVDBIDs(_ context.Context, limit int) ([]int64, error) {
	if limit < len(s.popular) {
		return s.popular[:limit], nil
	}
	return s.popular, nil
}

type fakeImages struct {
	synced   []string
	failFor  map[string]bool
	orphans  int
	artworks int
}

func (f *fakeImages) SyncEntityImages(_ context.Context, entityType string, id int64) (int, error) {
	key := fmt.Sprintf("%s:%d", entityType, id)
	if f.failFor[key] {
		return 0, errors.New("download failed")
	}
	f.synced = append(f.synced, key)
	return 1, nil
}

func (f *fakeImages) SyncPendingArtwork(_ context.Context, _ int) (int, error) {
	return f.artworks, nil
}

func (f *fakeImages) CleanupOrphans(_ context.Context) (int, error) {
	return f.orphans, nil
}

type fakeTracker struct {
	created  []string
	progress []int
	statuses []string
	state    string
	result   map[string]interface{}
	errMsg   string
}

func (f *fakeTracker) Create(_ context.Context, jobType string) (*models.SyncJob, error) {
	id := fmt.Sprintf("child-%d", len(f.created)+1)
	f.created = append(f.created, id)
	return &models.SyncJob{ID: id, Type: jobType, State: models.JobStatePending}, nil
}

func (f *fakeTracker) Start(_ context.Context, _ string) error {
	f.state = models.JobStateProgress
	return nil
}

func (f *fakeTracker) SetProgress(_ context.Context, _ string, progress int, status string) error {
	f.progress = append(f.progress, progress)
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeTracker) Succeed(_ context.Context, _ string, result map[string]interface{}) error {
	f.state = models.JobStateSuccess
	f.result = result
	return nil
}

func (f *fakeTracker) Fail(_ context.Context, _ string, errMsg string) error {
	f.state = models.JobStateFailure
	f.errMsg = errMsg
	return nil
}

type fakeEnqueuer struct {
	published []*models.SyncMessage
}

func (f *fakeEnqueuer) Publish(_ context.Context, msg *models.SyncMessage) error {
	f.published = append(f.published, msg)
	return nil
}

type fakeMarks struct {
	values map[string]int64
}

func newFakeMarks() *fakeMarks {
	return &fakeMarks{values: make(map[string]int64)}
}

func (f *fakeMarks) Get(_ context.Context, ns, id string, dest interface{}) bool {
	v, ok := f.values[ns+":"+id]
	if !ok {
		return false
	}
	*(dest.(*int64)) = v
	return true
}

func (f *fakeMarks) Set(_ context.Context, ns, id string, value interface{}, _ time.Duration) bool {
	f.values[ns+":"+id] = value.(int64)
	return true
}

func (f *fakeMarks) CleanupPersistent(_ context.Context) int { return 2 }

func testConfig() config.SyncConfig {
	return config.SyncConfig{
		BatchPages:        10,
		ImageFanout:       4,
		JobHardTimeout:    30 * time.Minute,
		JobSoftTimeout:    25 * time.Minute,
		ImageRetryLimit:   3,
		ImageRetryDelay:   time.Millisecond,
		MissingImageLimit: 100,
	}
}

func newTestEngine(upstream *fakeUpstream, store *fakeStore) (*Engine, *fakeTracker, *fakeEnqueuer, *fakeImages, *fakeMarks) {
	tracker := &fakeTracker{}
	enqueuer := &fakeEnqueuer{}
	images := &fakeImages{failFor: make(map[string]bool)}
	marks := newFakeMarks()
	engine := NewEngine(upstream, store, images, tracker, enqueuer, marks, testConfig())
	return engine, tracker, enqueuer, images, marks
}

func TestFullSync(t *testing.T) {
	upstream := &fakeUpstream{
		seriesPages: [][]tvdb.SeriesRecord{
			{{ID: 1}, {ID: 2}},
			{{ID: 3}},
		},
		moviePages:  [][]tvdb.MovieRecord{{{ID: 10}, {ID: 11}}},
		peoplePages: [][]tvdb.PersonRecord{{{ID: 20}}},
		genres:      []tvdb.GenreRecord{{ID: 1, Name: "Drama"}},
		artTypes:    []tvdb.ArtworkTypeRecord{{ID: 2, Name: "Poster"}},
		languages:   []tvdb.LanguageRecord{{ID: "eng", Name: "English"}},
	}
	store := newFakeStore()
	engine, tracker, _, _, marks := newTestEngine(upstream, store)

	if err := engine.RunFullSync(context.Background(), "job-1"); err != nil {
		t.Fatalf("RunFullSync failed: %v", err)
	}

	if tracker.state != models.JobStateSuccess {
		t.Fatalf("job not successful: %s (%s)", tracker.state, tracker.errMsg)
	}
	if tracker.result["series"] != 3 || tracker.result["movies"] != 2 || tracker.result["people"] != 1 {
		t.Fatalf("unexpected result: %v", tracker.result)
	}

	wantProgress := []int{20, 60, 80}
	if len(tracker.progress) != len(wantProgress) {
		t.Fatalf("unexpected progress trail: %v", tracker.progress)
	}
	for i, p := range wantProgress {
		if tracker.progress[i] != p {
			t.Fatalf("progress[%d] = %d, want %d", i, tracker.progress[i], p)
		}
	}

	if len(store.genres) != 1 || len(store.artTypes) != 1 || len(store.languages) != 1 {
		t.Fatal("static data not mirrored")
	}
	if _, ok := marks.values["sync:last_sync"]; !ok {
		t.Fatal("watermark not recorded after full sync")
	}
}

func TestIncrementalSync(t *testing.T) {
	upstream := &fakeUpstream{
		updates: []tvdb.UpdateRecord{
			{RecordID: 1, EntityType: models.EntitySeries, Method: "update"},
			{RecordID: 2, EntityType: models.EntityMovie, Method: "update"},
			{RecordID: 3, EntityType: "award", Method: "update"},
		},
	}
	store := newFakeStore()
	engine, tracker, _, _, marks := newTestEngine(upstream, store)

	marks.values["sync:last_sync"] = 1700000000

	if err := engine.RunIncrementalSync(context.Background(), "job-2"); err != nil {
		t.Fatalf("RunIncrementalSync failed: %v", err)
	}

	if tracker.result["applied"] != 2 || tracker.result["skipped"] != 1 {
		t.Fatalf("unexpected result: %v", tracker.result)
	}
	if tracker.result["since"] != int64(1700000000) {
		t.Fatalf("wrong watermark used: %v", tracker.result["since"])
	}
	if marks.values["sync:last_sync"] == 1700000000 {
		t.Fatal("watermark not advanced")
	}
}

func TestIncrementalSync_NoUpdates(t *testing.T) {
	upstream := &fakeUpstream{}
	store := newFakeStore()
	engine, tracker, _, _, _ := newTestEngine(upstream, store)

	if err := engine.RunIncrementalSync(context.Background(), "job-3"); err != nil {
		t.Fatalf("RunIncrementalSync failed: %v", err)
	}
	if tracker.state != models.JobStateSuccess || tracker.result["applied"] != 0 {
		t.Fatalf("empty sync should still succeed: %s %v", tracker.state, tracker.result)
	}
}

func TestSeriesDetailed(t *testing.T) {
	upstream := &fakeUpstream{
		extended: map[int64]*tvdb.SeriesRecord{
			121361: {
				ID:   121361,
				Name: strptr("Game of Thrones"),
				Genres: []tvdb.GenreRecord{
					{ID: 1, Name: "Drama"}, {ID: 2, Name: "Fantasy"},
				},
				Seasons: []tvdb.SeasonRecord{
					{ID: 500, SeriesID: 121361, Number: 1},
					{ID: 501, SeriesID: 121361, Number: 2},
				},
				Artworks: []tvdb.ArtworkRecord{
					{ID: 900, Image: "/banners/a.jpg", Type: 2},
				},
			},
		},
		episodePages: [][]tvdb.EpisodeRecord{
			{{ID: 1000, SeriesID: 121361}, {ID: 1001, SeriesID: 121361}},
			{{ID: 1002, SeriesID: 121361}},
		},
	}
	store := newFakeStore()
	engine, tracker, _, _, _ := newTestEngine(upstream, store)

	if err := engine.RunSeriesDetailed(context.Background(), "job-4", 121361); err != nil {
		t.Fatalf("RunSeriesDetailed failed: %v", err)
	}

	if tracker.result["episodes"] != 3 || tracker.result["seasons"] != 2 || tracker.result["artworks"] != 1 {
		t.Fatalf("unexpected result: %v", tracker.result)
	}
	if len(store.genres) != 2 {
		t.Fatalf("genre associations not written: %v", store.genres)
	}
}

func TestSeriesDetailed_SkipsEpisodesWithoutParent(t *testing.T) {
	upstream := &fakeUpstream{
		extended: map[int64]*tvdb.SeriesRecord{
			5: {ID: 5},
		},
		episodePages: [][]tvdb.EpisodeRecord{
			{{ID: 1, SeriesID: 5}, {ID: 2, SeriesID: 404}},
		},
	}
	store := newFakeStore()
	store.missingParent[404] = true
	engine, tracker, _, _, _ := newTestEngine(upstream, store)

	if err := engine.RunSeriesDetailed(context.Background(), "job-5", 5); err != nil {
		t.Fatalf("RunSeriesDetailed failed: %v", err)
	}
	if tracker.result["episodes"] != 1 {
		t.Fatalf("expected orphan episode to be skipped: %v", tracker.result)
	}
}

func TestContentImages_RetriesThroughQueue(t *testing.T) {
	store := newFakeStore()
	engine, tracker, enqueuer, images, _ := newTestEngine(&fakeUpstream{}, store)
	images.failFor["series:7"] = true

	msg := &models.SyncMessage{
		JobID:      "job-6",
		Type:       models.JobSyncContentImages,
		EntityType: models.EntitySeries,
		EntityID:   7,
	}

	// A failed attempt with budget left schedules a retry and reports no error
	if err := engine.RunContentImages(context.Background(), msg); err != nil {
		t.Fatalf("retryable failure should not error: %v", err)
	}
	if len(enqueuer.published) != 1 {
		t.Fatalf("expected a retry message, got %d", len(enqueuer.published))
	}
	if enqueuer.published[0].Attempt != 1 {
		t.Fatalf("retry attempt = %d, want 1", enqueuer.published[0].Attempt)
	}
	if !enqueuer.published[0].EnqueuedAt.After(time.Now().UTC().Add(-time.Second)) {
		t.Fatalf("retry not stamped for later delivery: %v", enqueuer.published[0].EnqueuedAt)
	}
	if tracker.state == models.JobStateFailure {
		t.Fatal("job must stay live while retries remain")
	}
	if len(tracker.statuses) == 0 {
		t.Fatal("retry should be recorded as job progress")
	}

	// Final attempt must not re-enqueue
	msg.Attempt = 2
	if err := engine.RunContentImages(context.Background(), msg); err == nil {
		t.Fatal("expected image sync failure")
	}
	if len(enqueuer.published) != 1 {
		t.Fatalf("exhausted retries should not enqueue again, got %d", len(enqueuer.published))
	}
}

func TestContentImages_Success(t *testing.T) {
	store := newFakeStore()
	engine, tracker, _, images, _ := newTestEngine(&fakeUpstream{}, store)

	msg := &models.SyncMessage{
		JobID:      "job-7",
		Type:       models.JobSyncContentImages,
		EntityType: models.EntityMovie,
		EntityID:   42,
	}

	if err := engine.RunContentImages(context.Background(), msg); err != nil {
		t.Fatalf("RunContentImages failed: %v", err)
	}
	if tracker.state != models.JobStateSuccess {
		t.Fatalf("job not successful: %s", tracker.state)
	}
	if len(images.synced) != 1 || images.synced[0] != "movie:42" {
		t.Fatalf("unexpected sync calls: %v", images.synced)
	}
}

func TestAllMissingImages_FansOut(t *testing.T) {
	store := newFakeStore()
	store.missing[models.EntitySeries] = []int64{1, 2}
	store.missing[models.EntityMovie] = []int64{3}
	engine, tracker, enqueuer, images, _ := newTestEngine(&fakeUpstream{}, store)
	images.artworks = 5

	if err := engine.RunAllMissingImages(context.Background(), "job-8", 0); err != nil {
		t.Fatalf("RunAllMissingImages failed: %v", err)
	}
	if tracker.result["enqueued"] != 3 || tracker.result["artworks"] != 5 {
		t.Fatalf("unexpected result: %v", tracker.result)
	}
	if len(enqueuer.published) != 3 {
		t.Fatalf("expected 3 enqueued messages, got %d", len(enqueuer.published))
	}
	if len(tracker.created) != 3 {
		t.Fatalf("every fan-out child must be a tracked job, got %d", len(tracker.created))
	}

	seen := make(map[string]bool)
	for i, msg := range enqueuer.published {
		if msg.Type != models.JobSyncContentImages {
			t.Fatalf("unexpected message type %s", msg.Type)
		}
		if msg.JobID == "" || msg.JobID == "job-8" {
			t.Fatalf("child message carries no job of its own: %q", msg.JobID)
		}
		if seen[msg.JobID] {
			t.Fatalf("duplicate child job id %q", msg.JobID)
		}
		seen[msg.JobID] = true
		if msg.JobID != tracker.created[i] {
			t.Fatalf("child %d published under %q, created as %q", i, msg.JobID, tracker.created[i])
		}
	}
}

func TestPrefetchPopular(t *testing.T) {
	upstream := &fakeUpstream{
		extended: map[int64]*tvdb.SeriesRecord{1: {ID: 1}, 2: {ID: 2}},
	}
	store := newFakeStore()
	store.popular = []int64{1, 2, 3}
	engine, tracker, _, _, _ := newTestEngine(upstream, store)

	if err := engine.RunPrefetchPopular(context.Background(), "job-9", 10); err != nil {
		t.Fatalf("RunPrefetchPopular failed: %v", err)
	}
	// Series 3 is not fetchable upstream and is skipped
	if tracker.result["warmed"] != 2 {
		t.Fatalf("unexpected result: %v", tracker.result)
	}
	if upstream.extendedHits != 3 {
		t.Fatalf("expected 3 fetch attempts, got %d", upstream.extendedHits)
	}
}

func TestHandle_UnknownTypeFailsJob(t *testing.T) {
	store := newFakeStore()
	engine, tracker, _, _, _ := newTestEngine(&fakeUpstream{}, store)

	msg := &models.SyncMessage{JobID: "job-10", Type: "mystery"}
	if err := engine.Handle(context.Background(), msg); err == nil {
		t.Fatal("expected error for unknown job type")
	}
	if tracker.state != models.JobStateFailure {
		t.Fatalf("job should be failed, got %s", tracker.state)
	}
}

func TestHandle_ImageFailureDoesNotRequeueBrokerMessage(t *testing.T) {
	store := newFakeStore()
	engine, tracker, enqueuer, images, _ := newTestEngine(&fakeUpstream{}, store)
	images.failFor["person:9"] = true

	msg := &models.SyncMessage{
		JobID:      "job-11",
		Type:       models.JobSyncContentImages,
		EntityType: models.EntityPerson,
		EntityID:   9,
	}

	// Handle returns nil so the broker acks; the retry rides its own message
	if err := engine.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle should swallow image sync failures: %v", err)
	}
	if tracker.state != models.JobStateProgress {
		t.Fatalf("job should stay live until retries are spent, got %s", tracker.state)
	}
	if len(enqueuer.published) != 1 {
		t.Fatalf("expected retry enqueue, got %d", len(enqueuer.published))
	}
}

// newRedisEngine wires the engine to a real job tracker over miniredis so
// the tests below exercise the full job state machine.
func newRedisEngine(t *testing.T, store *fakeStore) (*Engine, *jobs.Tracker, *fakeEnqueuer, *fakeImages) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	tracker := jobs.NewTracker(client)
	enqueuer := &fakeEnqueuer{}
	images := &fakeImages{failFor: make(map[string]bool)}
	engine := NewEngine(&fakeUpstream{}, store, images, tracker, enqueuer, newFakeMarks(), testConfig())
	return engine, tracker, enqueuer, images
}

func TestHandle_RetriedImageJobRunsToCompletion(t *testing.T) {
	engine, tracker, enqueuer, images := newRedisEngine(t, newFakeStore())
	images.failFor["series:7"] = true

	ctx := context.Background()
	job, err := tracker.Create(ctx, models.JobSyncContentImages)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	msg := &models.SyncMessage{
		JobID:      job.ID,
		Type:       models.JobSyncContentImages,
		EntityType: models.EntitySeries,
		EntityID:   7,
	}

	if err := engine.Handle(ctx, msg); err != nil {
		t.Fatalf("Handle should ack a retried image job: %v", err)
	}
	if len(enqueuer.published) != 1 {
		t.Fatalf("expected one retry message, got %d", len(enqueuer.published))
	}

	got, err := tracker.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != models.JobStateProgress {
		t.Fatalf("job must survive the first failed attempt, got %s", got.State)
	}

	// The retry is delivered against a now-healthy image store
	delete(images.failFor, "series:7")
	if err := engine.Handle(ctx, enqueuer.published[0]); err != nil {
		t.Fatalf("retry delivery failed: %v", err)
	}

	got, err = tracker.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != models.JobStateSuccess {
		t.Fatalf("retried job should complete, got %s (%s)", got.State, got.Error)
	}
}

func TestHandle_ExhaustedImageRetriesFailJob(t *testing.T) {
	engine, tracker, enqueuer, images := newRedisEngine(t, newFakeStore())
	images.failFor["movie:3"] = true

	ctx := context.Background()
	job, err := tracker.Create(ctx, models.JobSyncContentImages)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	msg := &models.SyncMessage{
		JobID:      job.ID,
		Type:       models.JobSyncContentImages,
		EntityType: models.EntityMovie,
		EntityID:   3,
		Attempt:    2,
	}

	if err := engine.Handle(ctx, msg); err != nil {
		t.Fatalf("Handle must ack the final attempt: %v", err)
	}
	if len(enqueuer.published) != 0 {
		t.Fatalf("spent retry budget must not enqueue, got %d", len(enqueuer.published))
	}

	got, err := tracker.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != models.JobStateFailure || got.Error == "" {
		t.Fatalf("expected failed job with an error, got %s (%q)", got.State, got.Error)
	}
}

func TestHandle_DropsMessageForUnknownJob(t *testing.T) {
	engine, _, enqueuer, images := newRedisEngine(t, newFakeStore())

	msg := &models.SyncMessage{
		JobID:      "long-gone",
		Type:       models.JobSyncContentImages,
		EntityType: models.EntitySeries,
		EntityID:   1,
	}

	if err := engine.Handle(context.Background(), msg); err != nil {
		t.Fatalf("unknown job must be dropped, not requeued: %v", err)
	}
	if len(images.synced) != 0 || len(enqueuer.published) != 0 {
		t.Fatal("dropped message must not do any work")
	}
}

func TestHandle_DropsMessageForFinishedJob(t *testing.T) {
	engine, tracker, enqueuer, images := newRedisEngine(t, newFakeStore())

	ctx := context.Background()
	job, err := tracker.Create(ctx, models.JobSyncContentImages)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := tracker.Fail(ctx, job.ID, "gave up"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	msg := &models.SyncMessage{
		JobID:      job.ID,
		Type:       models.JobSyncContentImages,
		EntityType: models.EntitySeries,
		EntityID:   1,
	}

	if err := engine.Handle(ctx, msg); err != nil {
		t.Fatalf("message for a finished job must be dropped: %v", err)
	}
	if len(images.synced) != 0 || len(enqueuer.published) != 0 {
		t.Fatal("dropped message must not do any work")
	}

	got, err := tracker.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != models.JobStateFailure || got.Error != "gave up" {
		t.Fatalf("terminal job mutated by dropped message: %+v", got)
	}
}

func TestHandle_FanOutChildrenAreTrackedJobs(t *testing.T) {
	store := newFakeStore()
	store.missing[models.EntitySeries] = []int64{11, 12}
	engine, tracker, enqueuer, _ := newRedisEngine(t, store)

	ctx := context.Background()
	parent, err := tracker.Create(ctx, models.JobSyncAllMissingImages)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	msg := &models.SyncMessage{JobID: parent.ID, Type: models.JobSyncAllMissingImages}
	if err := engine.Handle(ctx, msg); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(enqueuer.published) != 2 {
		t.Fatalf("expected 2 child messages, got %d", len(enqueuer.published))
	}

	for _, child := range enqueuer.published {
		got, err := tracker.Get(ctx, child.JobID)
		if err != nil {
			t.Fatalf("child job %q not tracked: %v", child.JobID, err)
		}
		if got.State != models.JobStatePending {
			t.Fatalf("unconsumed child should be pending, got %s", got.State)
		}
	}

	// Each child runs to completion once delivered
	for _, child := range enqueuer.published[:2] {
		if err := engine.Handle(ctx, child); err != nil {
			t.Fatalf("child delivery failed: %v", err)
		}
		got, err := tracker.Get(ctx, child.JobID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.State != models.JobStateSuccess {
			t.Fatalf("child job should succeed, got %s (%s)", got.State, got.Error)
		}
	}
}
