package tvdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/config"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/monitoring"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

var (
	// ErrNotFound indicates the upstream record does not exist
	ErrNotFound = errors.New("upstream record not found")
	// ErrNotImplemented marks operations the proxy does not serve yet
	ErrNotImplemented = errors.New("operation not implemented")
)

// staleTTL keeps a second copy of every fetched payload long enough to
// serve through an upstream outage.
const staleTTL = 7 * 24 * time.Hour

// Store is the cache surface the client uses. All operations are
// best-effort: a miss and a backend failure look the same.
type Store interface {
	Get(ctx context.Context, namespace, identifier string, dest interface{}) bool
	Set(ctx context.Context, namespace, identifier string, value interface{}, ttl time.Duration) bool
	Delete(ctx context.Context, namespace, identifier string) bool
	FlushPattern(ctx context.Context, pattern string) int
}

// Client fetches records from the upstream metadata API, caching every
// successful response and serving stale copies when upstream is down.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	pin        string

	cache Store
	retry RetryPolicy
	ttl   config.CacheConfig

	mu    sync.Mutex
	token string
}

// NewClient creates an upstream client
func NewClient(cfg config.TVDBConfig, ttl config.CacheConfig, cache Store, retry RetryPolicy) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		pin:        cfg.PIN,
		cache:      cache,
		retry:      retry,
		ttl:        ttl,
	}
}

// login acquires an upstream bearer token
func (c *Client) login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{"apikey": c.apiKey, "pin": c.pin})
	if err != nil {
		return fmt.Errorf("failed to encode login payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transient(fmt.Errorf("upstream login failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("upstream login returned status %d", resp.StatusCode)
		if resp.StatusCode >= 500 {
			return transient(err)
		}
		return err
	}

	var env struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}
	if env.Data.Token == "" {
		return fmt.Errorf("upstream login returned no token")
	}

	c.mu.Lock()
	c.token = env.Data.Token
	c.mu.Unlock()

	return nil
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token != "" {
		return token, nil
	}
	if err := c.login(ctx); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, nil
}

// request performs one authenticated GET. A 401 triggers a single token
// refresh and re-send within the same attempt.
func (c *Client) request(ctx context.Context, path string, query url.Values) (json.RawMessage, *PageLinks, error) {
	data, links, err := c.send(ctx, path, query)
	if errors.Is(err, errTokenExpired) {
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		data, links, err = c.send(ctx, path, query)
	}
	return data, links, err
}

var errTokenExpired = errors.New("upstream token expired")

func (c *Client) send(ctx context.Context, path string, query url.Values) (json.RawMessage, *PageLinks, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, nil, err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		monitoring.UpstreamRequestsTotal.WithLabelValues("error").Inc()
		return nil, nil, transient(fmt.Errorf("upstream request failed: %w", err))
	}
	defer resp.Body.Close()

	monitoring.UpstreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, nil, errTokenExpired
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil, ErrNotFound
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, nil, transient(fmt.Errorf("upstream returned status %d", resp.StatusCode))
	default:
		return nil, nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, nil, transient(fmt.Errorf("failed to decode upstream response: %w", err))
	}

	return env.Data, env.Links, nil
}

// fetch is the cache-first fetch path shared by every read operation:
// cache hit wins, otherwise the request runs under the retry policy, a
// success is cached fresh plus a long-lived stale copy, and exhausted
// retries fall back to the stale copy before reporting failure.
func (c *Client) fetch(ctx context.Context, namespace, identifier, path string, query url.Values, ttl time.Duration) (json.RawMessage, *PageLinks, error) {
	type cached struct {
		Data  json.RawMessage `json:"data"`
		Links *PageLinks      `json:"links,omitempty"`
	}

	var hit cached
	if c.cache.Get(ctx, namespace, identifier, &hit) {
		return hit.Data, hit.Links, nil
	}

	var data json.RawMessage
	var links *PageLinks
	attempts := 0
	err := c.retry.Do(ctx, func() error {
		attempts++
		if attempts > 1 {
			monitoring.UpstreamRetriesTotal.Inc()
		}
		var ferr error
		data, links, ferr = c.request(ctx, path, query)
		return ferr
	})
	if err == nil {
		entry := cached{Data: data, Links: links}
		c.cache.Set(ctx, namespace, identifier, entry, ttl)
		c.cache.Set(ctx, "stale:"+namespace, identifier, entry, staleTTL)
		return data, links, nil
	}
	if errors.Is(err, ErrNotFound) {
		return nil, nil, err
	}

	if c.cache.Get(ctx, "stale:"+namespace, identifier, &hit) {
		monitoring.StaleServesTotal.Inc()
		log.Warn().Err(err).Str("namespace", namespace).Str("id", identifier).
			Msg("upstream unavailable, serving stale cached copy")
		return hit.Data, hit.Links, nil
	}

	return nil, nil, err
}

func decodeInto[T any](data json.RawMessage) (*T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode upstream payload: %w", err)
	}
	return &out, nil
}

// GetSeries fetches a basic series record
func (c *Client) GetSeries(ctx context.Context, id int64) (*SeriesRecord, error) {
	data, _, err := c.fetch(ctx, models.EntitySeries, strconv.FormatInt(id, 10),
		fmt.Sprintf("/series/%d", id), nil, c.ttl.TTLDynamic)
	if err != nil {
		return nil, err
	}
	return decodeInto[SeriesRecord](data)
}

// GetSeriesExtended fetches a series record with embedded associations
func (c *Client) GetSeriesExtended(ctx context.Context, id int64) (*SeriesRecord, error) {
	data, _, err := c.fetch(ctx, models.EntitySeries, fmt.Sprintf("%d_extended", id),
		fmt.Sprintf("/series/%d/extended", id), nil, c.ttl.TTLDynamic)
	if err != nil {
		return nil, err
	}
	return decodeInto[SeriesRecord](data)
}

// GetSeriesEpisodes fetches one page of a series' episodes
func (c *Client) GetSeriesEpisodes(ctx context.Context, id int64, page int) ([]EpisodeRecord, *PageLinks, error) {
	query := url.Values{"page": {strconv.Itoa(page)}}
	data, links, err := c.fetch(ctx, models.EntitySeries,
		fmt.Sprintf("%d:episodes:%d", id, page),
		fmt.Sprintf("/series/%d/episodes/default", id), query, c.ttl.TTLDynamic)
	if err != nil {
		return nil, nil, err
	}

	var payload struct {
		Episodes []EpisodeRecord `json:"episodes"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil, fmt.Errorf("failed to decode episodes page: %w", err)
	}

	return payload.Episodes, links, nil
}

// GetSeasonExtended fetches a season record with embedded episodes and
// artwork.
func (c *Client) GetSeasonExtended(ctx context.Context, id int64) (*SeasonRecord, error) {
	data, _, err := c.fetch(ctx, models.EntitySeason, fmt.Sprintf("%d_extended", id),
		fmt.Sprintf("/seasons/%d/extended", id), nil, c.ttl.TTLDynamic)
	if err != nil {
		return nil, err
	}
	return decodeInto[SeasonRecord](data)
}

// GetEpisode fetches a basic episode record
func (c *Client) GetEpisode(ctx context.Context, id int64) (*EpisodeRecord, error) {
	data, _, err := c.fetch(ctx, models.EntityEpisode, strconv.FormatInt(id, 10),
		fmt.Sprintf("/episodes/%d", id), nil, c.ttl.TTLDynamic)
	if err != nil {
		return nil, err
	}
	return decodeInto[EpisodeRecord](data)
}

// GetMovie fetches a basic movie record
func (c *Client) GetMovie(ctx context.Context, id int64) (*MovieRecord, error) {
	data, _, err := c.fetch(ctx, models.EntityMovie, strconv.FormatInt(id, 10),
		fmt.Sprintf("/movies/%d", id), nil, c.ttl.TTLDynamic)
	if err != nil {
		return nil, err
	}
	return decodeInto[MovieRecord](data)
}

// GetMovieExtended fetches a movie record with embedded associations
func (c *Client) GetMovieExtended(ctx context.Context, id int64) (*MovieRecord, error) {
	data, _, err := c.fetch(ctx, models.EntityMovie, fmt.Sprintf("%d_extended", id),
		fmt.Sprintf("/movies/%d/extended", id), nil, c.ttl.TTLDynamic)
	if err != nil {
		return nil, err
	}
	return decodeInto[MovieRecord](data)
}

// GetPersonExtended fetches a person record with embedded artwork
func (c *Client) GetPersonExtended(ctx context.Context, id int64) (*PersonRecord, error) {
	data, _, err := c.fetch(ctx, models.EntityPerson, fmt.Sprintf("%d_extended", id),
		fmt.Sprintf("/people/%d/extended", id), nil, c.ttl.TTLDynamic)
	if err != nil {
		return nil, err
	}
	return decodeInto[PersonRecord](data)
}

// ListSeries fetches one page of the full series catalog
func (c *Client) ListSeries(ctx context.Context, page int) ([]SeriesRecord, *PageLinks, error) {
	query := url.Values{"page": {strconv.Itoa(page)}}
	data, links, err := c.fetch(ctx, models.EntitySeries, fmt.Sprintf("all:%d", page),
		"/series", query, c.ttl.TTLDynamic)
	if err != nil {
		return nil, nil, err
	}

	var records []SeriesRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, nil, fmt.Errorf("failed to decode series page: %w", err)
	}

	return records, links, nil
}

// ListMovies fetches one page of the full movie catalog
func (c *Client) ListMovies(ctx context.Context, page int) ([]MovieRecord, *PageLinks, error) {
	query := url.Values{"page": {strconv.Itoa(page)}}
	data, links, err := c.fetch(ctx, models.EntityMovie, fmt.Sprintf("all:%d", page),
		"/movies", query, c.ttl.TTLDynamic)
	if err != nil {
		return nil, nil, err
	}

	var records []MovieRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, nil, fmt.Errorf("failed to decode movies page: %w", err)
	}

	return records, links, nil
}

// ListPeople fetches one page of the full people catalog
func (c *Client) ListPeople(ctx context.Context, page int) ([]PersonRecord, *PageLinks, error) {
	query := url.Values{"page": {strconv.Itoa(page)}}
	data, links, err := c.fetch(ctx, models.EntityPerson, fmt.Sprintf("all:%d", page),
		"/people", query, c.ttl.TTLDynamic)
	if err != nil {
		return nil, nil, err
	}

	var records []PersonRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, nil, fmt.Errorf("failed to decode people page: %w", err)
	}

	return records, links, nil
}

// UpdatesSince fetches one page of the upstream change log starting at a
// unix timestamp.
func (c *Client) UpdatesSince(ctx context.Context, since int64, page int) ([]UpdateRecord, *PageLinks, error) {
	query := url.Values{
		"since": {strconv.FormatInt(since, 10)},
		"page":  {strconv.Itoa(page)},
	}

	// Change-log pages are not cached: each sync needs the live view.
	var records []UpdateRecord
	var links *PageLinks
	err := c.retry.Do(ctx, func() error {
		data, l, ferr := c.request(ctx, "/updates", query)
		if ferr != nil {
			return ferr
		}
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("failed to decode updates page: %w", err)
		}
		links = l
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return records, links, nil
}

// ListGenres fetches the genre reference list
func (c *Client) ListGenres(ctx context.Context) ([]GenreRecord, error) {
	data, _, err := c.fetch(ctx, "genres", "all", "/genres", nil, c.ttl.TTLStatic)
	if err != nil {
		return nil, err
	}

	var records []GenreRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode genres: %w", err)
	}
	return records, nil
}

// ListArtworkTypes fetches the artwork type reference list
func (c *Client) ListArtworkTypes(ctx context.Context) ([]ArtworkTypeRecord, error) {
	data, _, err := c.fetch(ctx, "artwork_types", "all", "/artwork/types", nil, c.ttl.TTLStatic)
	if err != nil {
		return nil, err
	}

	var records []ArtworkTypeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode artwork types: %w", err)
	}
	return records, nil
}

// ListLanguages fetches the language reference list
func (c *Client) ListLanguages(ctx context.Context) ([]LanguageRecord, error) {
	data, _, err := c.fetch(ctx, "languages", "all", "/languages", nil, c.ttl.TTLStatic)
	if err != nil {
		return nil, err
	}

	var records []LanguageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode languages: %w", err)
	}
	return records, nil
}

// Search is reserved for a future release
func (c *Client) Search(ctx context.Context, query string) error {
	return ErrNotImplemented
}

// Invalidate drops every cached variant of one entity, including episode
// pages and stale copies.
func (c *Client) Invalidate(ctx context.Context, entityType string, id int64) int {
	idStr := strconv.FormatInt(id, 10)

	removed := 0
	for _, ns := range []string{entityType, "stale:" + entityType} {
		if c.cache.Delete(ctx, ns, idStr) {
			removed++
		}
		if c.cache.Delete(ctx, ns, idStr+"_extended") {
			removed++
		}
		removed += c.cache.FlushPattern(ctx, fmt.Sprintf("%s:%s:*", ns, idStr))
	}

	return removed
}
