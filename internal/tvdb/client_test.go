package tvdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/cache"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/config"
)

type upstream struct {
	mux    *http.ServeMux
	logins int32
	hits   int32
	fail   atomic.Bool
}

func newUpstream() *upstream {
	u := &upstream{mux: http.NewServeMux()}
	u.mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.logins, 1)
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{"token": "upstream-token"},
		})
	})
	return u
}

func (u *upstream) handle(path string, payload any) {
	u.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.hits, 1)
		if u.fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": payload})
	})
}

func newTestClient(t *testing.T) (*Client, *upstream, *miniredis.Miniredis) {
	t.Helper()

	u := newUpstream()
	srv := httptest.NewServer(u.mux)
	t.Cleanup(srv.Close)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	store, err := cache.NewCache(mr.Host(), mr.Server().Addr().Port, "", 0)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	client := NewClient(
		config.TVDBConfig{BaseURL: srv.URL, APIKey: "key", PIN: "pin"},
		config.CacheConfig{TTLStatic: 24 * time.Hour, TTLDynamic: time.Hour, TTLPopular: 30 * time.Minute},
		store,
		RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	)

	return client, u, mr
}

func TestClient_FetchCachesResponse(t *testing.T) {
	client, u, _ := newTestClient(t)
	u.handle("/series/121361", map[string]any{"id": 121361, "name": "Game of Thrones"})

	ctx := context.Background()

	rec, err := client.GetSeries(ctx, 121361)
	if err != nil {
		t.Fatalf("GetSeries failed: %v", err)
	}
	if rec.Name == nil || *rec.Name != "Game of Thrones" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if _, err := client.GetSeries(ctx, 121361); err != nil {
		t.Fatalf("cached GetSeries failed: %v", err)
	}
	if n := atomic.LoadInt32(&u.hits); n != 1 {
		t.Fatalf("expected 1 upstream hit, got %d", n)
	}
}

func TestClient_NotFoundIsNotRetried(t *testing.T) {
	client, u, _ := newTestClient(t)
	u.mux.HandleFunc("/series/999", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.hits, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetSeries(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n := atomic.LoadInt32(&u.hits); n != 1 {
		t.Fatalf("expected 1 upstream hit for a 404, got %d", n)
	}
}

func TestClient_ServerErrorsAreRetried(t *testing.T) {
	client, u, _ := newTestClient(t)
	u.handle("/series/5", map[string]any{"id": 5})
	u.fail.Store(true)

	_, err := client.GetSeries(context.Background(), 5)
	if err == nil {
		t.Fatal("expected failure with upstream down")
	}
	if n := atomic.LoadInt32(&u.hits); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestClient_StaleServeAfterExpiry(t *testing.T) {
	client, u, mr := newTestClient(t)
	u.handle("/movies/42", map[string]any{"id": 42, "name": "Blade Runner"})

	ctx := context.Background()

	if _, err := client.GetMovie(ctx, 42); err != nil {
		t.Fatalf("initial GetMovie failed: %v", err)
	}

	// Fresh copy expires, stale copy survives, upstream goes down.
	mr.FastForward(2 * time.Hour)
	u.fail.Store(true)

	rec, err := client.GetMovie(ctx, 42)
	if err != nil {
		t.Fatalf("expected stale serve, got error: %v", err)
	}
	if rec.Name == nil || *rec.Name != "Blade Runner" {
		t.Fatalf("unexpected stale record: %+v", rec)
	}
}

func TestClient_StaleMissReportsUpstreamError(t *testing.T) {
	client, u, _ := newTestClient(t)
	u.handle("/movies/7", map[string]any{"id": 7})
	u.fail.Store(true)

	if _, err := client.GetMovie(context.Background(), 7); err == nil {
		t.Fatal("expected error with no stale copy available")
	}
}

func TestClient_EpisodePagination(t *testing.T) {
	client, u, _ := newTestClient(t)

	u.mux.HandleFunc("/series/11/episodes/default", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		var next *string
		if page != "2" {
			n := fmt.Sprintf("/series/11/episodes/default?page=%d", map[string]int{"0": 1, "1": 2}[page])
			next = &n
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": map[string]any{
				"episodes": []map[string]any{{"id": 100, "seriesId": 11}},
			},
			"links": map[string]any{"next": next},
		})
	})

	ctx := context.Background()
	var total int
	for page := 0; ; page++ {
		episodes, links, err := client.GetSeriesEpisodes(ctx, 11, page)
		if err != nil {
			t.Fatalf("page %d failed: %v", page, err)
		}
		total += len(episodes)
		if !links.HasNext() {
			break
		}
	}

	if total != 3 {
		t.Fatalf("expected 3 episodes across 3 pages, got %d", total)
	}
}

func TestClient_RefreshesTokenOn401(t *testing.T) {
	client, u, _ := newTestClient(t)

	var served atomic.Bool
	u.mux.HandleFunc("/people/9/extended", func(w http.ResponseWriter, r *http.Request) {
		if !served.Swap(true) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]any{"id": 9, "name": "Ridley Scott"},
		})
	})

	rec, err := client.GetPersonExtended(context.Background(), 9)
	if err != nil {
		t.Fatalf("GetPersonExtended failed: %v", err)
	}
	if rec.Name == nil || *rec.Name != "Ridley Scott" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if n := atomic.LoadInt32(&u.logins); n != 2 {
		t.Fatalf("expected a second login after 401, got %d", n)
	}
}

func TestClient_Invalidate(t *testing.T) {
	client, u, _ := newTestClient(t)
	u.handle("/series/77", map[string]any{"id": 77, "name": "Fargo"})
	u.handle("/series/77/extended", map[string]any{"id": 77, "name": "Fargo"})

	ctx := context.Background()
	if _, err := client.GetSeries(ctx, 77); err != nil {
		t.Fatalf("GetSeries failed: %v", err)
	}
	if _, err := client.GetSeriesExtended(ctx, 77); err != nil {
		t.Fatalf("GetSeriesExtended failed: %v", err)
	}

	if removed := client.Invalidate(ctx, "series", 77); removed == 0 {
		t.Fatal("expected Invalidate to remove cached entries")
	}

	// Next read must go upstream again.
	before := atomic.LoadInt32(&u.hits)
	if _, err := client.GetSeries(ctx, 77); err != nil {
		t.Fatalf("GetSeries after invalidate failed: %v", err)
	}
	if atomic.LoadInt32(&u.hits) != before+1 {
		t.Fatal("expected an upstream hit after invalidation")
	}
}

func TestClient_SearchNotImplemented(t *testing.T) {
	client, _, _ := newTestClient(t)
	if err := client.Search(context.Background(), "dune"); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
}
