package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/monitoring"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/storage"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

const (
	userAgent       = "TVDB-Proxy/1.0"
	downloadTimeout = 30 * time.Second

	// Relative upstream image paths resolve against the artwork CDN
	artworkBaseURL = "https://artworks.thetvdb.com"

	defaultExt = "jpg"
)

// probeExts is the order in which Get looks for a stored image when the
// extension is unknown.
var probeExts = []string{"jpg", "jpeg", "png", "gif", "webp"}

var extContentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

var contentTypeExts = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Catalog is the persistence surface the pipeline writes local URLs to
type Catalog interface {
	ContentImageURLs(ctx context.Context, entityType string, tvdbID int64) (map[string]string, error)
	SetLocalImageURL(ctx context.Context, entityType string, tvdbID int64, slot, localURL string) error
	ListEntityTVDBIDs(ctx context.Context, entityType string) ([]int64, error)
	PendingArtwork(ctx context.Context, limit int) ([]*models.Artwork, error)
	MarkArtworkStored(ctx context.Context, id int64, storagePath, localImageURL, localThumbnailURL string) error
}

// Service downloads entity images from upstream and mirrors them into
// object storage. Per-image failures never propagate: an image that cannot
// be fetched or stored is simply not mirrored this pass.
type Service struct {
	store      storage.Store
	catalog    Catalog
	httpClient *http.Client
	baseURL    string
	fanout     int
}

// NewService creates an image pipeline. baseURL is the externally visible
// server address local image URLs are built from.
func NewService(store storage.Store, catalog Catalog, baseURL string, fanout int) *Service {
	if fanout <= 0 {
		fanout = 4
	}
	return &Service{
		store:      store,
		catalog:    catalog,
		httpClient: &http.Client{Timeout: downloadTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		fanout:     fanout,
	}
}

// Download fetches one image and returns its bytes with the resolved file
// extension. Non-image responses are rejected.
func (s *Service) Download(ctx context.Context, imageURL string) ([]byte, string, error) {
	imageURL = AbsoluteURL(imageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build image request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("unexpected content type %q", contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image body: %w", err)
	}

	return data, resolveExt(imageURL, contentType), nil
}

// resolveExt picks the file extension from the URL path, falling back to
// the response content type, then to jpg.
func resolveExt(imageURL, contentType string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(stripQuery(imageURL))), ".")
	if _, ok := extContentTypes[ext]; ok {
		return ext
	}
	if ext, ok := contentTypeExts[strings.ToLower(contentType)]; ok {
		return ext
	}
	return defaultExt
}

// AbsoluteURL resolves a possibly relative upstream image path against the
// artwork CDN
func AbsoluteURL(imageURL string) string {
	if strings.HasPrefix(imageURL, "/") {
		return artworkBaseURL + imageURL
	}
	return imageURL
}

func stripQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}

// ObjectKey builds the storage key for one image slot
func ObjectKey(entityType string, tvdbID int64, slot, ext string) string {
	return fmt.Sprintf("%s/%d/%s.%s", entityType, tvdbID, slot, ext)
}

// LocalURL builds the externally served URL for one image slot
func (s *Service) LocalURL(entityType string, tvdbID int64, slot string) string {
	return fmt.Sprintf("%s/api/images/%s/%d/%s", s.baseURL, entityType, tvdbID, slot)
}

// Store persists image bytes under the slot key with provenance metadata
func (s *Service) Store(ctx context.Context, entityType string, tvdbID int64, slot, ext, sourceURL string, data []byte) (string, error) {
	key := ObjectKey(entityType, tvdbID, slot, ext)
	metadata := map[string]string{
		"source-url":  sourceURL,
		"entity-type": entityType,
		"entity-id":   strconv.FormatInt(tvdbID, 10),
		"slot":        slot,
	}

	if err := s.store.Put(ctx, key, data, extContentTypes[ext], metadata); err != nil {
		return "", err
	}

	return key, nil
}

// SyncEntityImages mirrors every populated image slot of one entity,
// downloading concurrently with bounded fan-out. Returns the number of
// slots stored this pass.
func (s *Service) SyncEntityImages(ctx context.Context, entityType string, tvdbID int64) (int, error) {
	urls, err := s.catalog.ContentImageURLs(ctx, entityType, tvdbID)
	if err != nil {
		return 0, err
	}
	if len(urls) == 0 {
		return 0, nil
	}

	var (
		wg     sync.WaitGroup
		sem    = make(chan struct{}, s.fanout)
		mu     sync.Mutex
		stored int
	)

	for slot, imageURL := range urls {
		wg.Add(1)
		go func(slot, imageURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if s.syncSlot(ctx, entityType, tvdbID, slot, imageURL) {
				mu.Lock()
				stored++
				mu.Unlock()
			}
		}(slot, imageURL)
	}
	wg.Wait()

	return stored, nil
}

func (s *Service) syncSlot(ctx context.Context, entityType string, tvdbID int64, slot, imageURL string) bool {
	data, ext, err := s.Download(ctx, imageURL)
	if err != nil {
		monitoring.ImageDownloadFailuresTotal.Inc()
		log.Warn().Err(err).Str("entity", entityType).Int64("id", tvdbID).Str("slot", slot).
			Msg("image download failed")
		return false
	}

	if _, err := s.Store(ctx, entityType, tvdbID, slot, ext, imageURL, data); err != nil {
		log.Warn().Err(err).Str("entity", entityType).Int64("id", tvdbID).Str("slot", slot).
			Msg("image store failed")
		return false
	}

	localURL := s.LocalURL(entityType, tvdbID, slot)
	if err := s.catalog.SetLocalImageURL(ctx, entityType, tvdbID, slot, localURL); err != nil {
		log.Warn().Err(err).Str("entity", entityType).Int64("id", tvdbID).Str("slot", slot).
			Msg("failed to record local image url")
		return false
	}

	monitoring.ImagesStoredTotal.WithLabelValues(entityType).Inc()
	return true
}

// SyncPendingArtwork mirrors artwork rows that have no stored copy yet,
// with the same bounded fan-out as entity slots. The image and its
// thumbnail download independently; the row is marked processed once the
// primary image is stored. Returns the number of rows stored this pass.
func (s *Service) SyncPendingArtwork(ctx context.Context, limit int) (int, error) {
	pending, err := s.catalog.PendingArtwork(ctx, limit)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	var (
		wg     sync.WaitGroup
		sem    = make(chan struct{}, s.fanout)
		mu     sync.Mutex
		stored int
	)

	for _, art := range pending {
		wg.Add(1)
		go func(art *models.Artwork) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if s.syncArtwork(ctx, art) {
				mu.Lock()
				stored++
				mu.Unlock()
			}
		}(art)
	}
	wg.Wait()

	return stored, nil
}

func (s *Service) syncArtwork(ctx context.Context, art *models.Artwork) bool {
	data, ext, err := s.Download(ctx, art.ImageURL)
	if err != nil {
		monitoring.ImageDownloadFailuresTotal.Inc()
		log.Warn().Err(err).Int64("artwork", art.TVDBID).Msg("artwork download failed")
		return false
	}

	key, err := s.Store(ctx, models.EntityArtwork, art.TVDBID, "image", ext, art.ImageURL, data)
	if err != nil {
		log.Warn().Err(err).Int64("artwork", art.TVDBID).Msg("artwork store failed")
		return false
	}
	localImage := s.LocalURL(models.EntityArtwork, art.TVDBID, "image")

	// Thumbnail failures do not hold up the row
	localThumb := ""
	if art.ThumbnailURL != "" {
		if tdata, text, terr := s.Download(ctx, art.ThumbnailURL); terr != nil {
			monitoring.ImageDownloadFailuresTotal.Inc()
			log.Warn().Err(terr).Int64("artwork", art.TVDBID).Msg("artwork thumbnail download failed")
		} else if _, serr := s.Store(ctx, models.EntityArtwork, art.TVDBID, "thumbnail", text, art.ThumbnailURL, tdata); serr != nil {
			log.Warn().Err(serr).Int64("artwork", art.TVDBID).Msg("artwork thumbnail store failed")
		} else {
			localThumb = s.LocalURL(models.EntityArtwork, art.TVDBID, "thumbnail")
		}
	}

	if err := s.catalog.MarkArtworkStored(ctx, art.ID, key, localImage, localThumb); err != nil {
		log.Warn().Err(err).Int64("artwork", art.TVDBID).Msg("failed to record stored artwork")
		return false
	}

	monitoring.ImagesStoredTotal.WithLabelValues(models.EntityArtwork).Inc()
	return true
}

// Get retrieves a stored image, probing known extensions in order
func (s *Service) Get(ctx context.Context, entityType string, tvdbID int64, slot string) ([]byte, string, error) {
	for _, ext := range probeExts {
		data, info, err := s.store.Get(ctx, ObjectKey(entityType, tvdbID, slot, ext))
		if err != nil {
			continue
		}
		contentType := info.ContentType
		if contentType == "" {
			contentType = extContentTypes[ext]
		}
		return data, contentType, nil
	}
	return nil, "", fmt.Errorf("image %s/%d/%s not stored", entityType, tvdbID, slot)
}

// CleanupOrphans removes stored images whose entity no longer exists in the
// mirror. Object keys carry the entity id as their second path segment.
func (s *Service) CleanupOrphans(ctx context.Context) (int, error) {
	removed := 0

	for _, entityType := range models.ContentEntityTypes {
		ids, err := s.catalog.ListEntityTVDBIDs(ctx, entityType)
		if err != nil {
			return removed, err
		}
		active := make(map[int64]bool, len(ids))
		for _, id := range ids {
			active[id] = true
		}

		objects, err := s.store.List(ctx, entityType+"/")
		if err != nil {
			return removed, err
		}

		for _, obj := range objects {
			parts := strings.Split(obj.Key, "/")
			if len(parts) < 3 {
				continue
			}
			id, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				continue
			}
			if active[id] {
				continue
			}

			if err := s.store.Delete(ctx, obj.Key); err != nil {
				log.Warn().Err(err).Str("key", obj.Key).Msg("failed to delete orphaned image")
				continue
			}
			removed++
		}
	}

	return removed, nil
}
