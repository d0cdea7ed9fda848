package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	cache, err := NewCache(mr.Host(), mr.Server().Addr().Port, "", 0)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create cache: %v", err)
	}

	return cache, mr
}

func TestCache_RoundTrip(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	value := map[string]interface{}{"name": "Doctor Who", "year": float64(2005)}
	if !cache.Set(ctx, "series", "121361", value, time.Hour) {
		t.Fatal("Set should succeed")
	}

	var got map[string]interface{}
	if !cache.Get(ctx, "series", "121361", &got) {
		t.Fatal("Get should hit after Set")
	}
	if got["name"] != "Doctor Who" {
		t.Errorf("Expected name Doctor Who, got %v", got["name"])
	}
	if got["year"] != float64(2005) {
		t.Errorf("Expected year 2005, got %v", got["year"])
	}

	// Raw key uses the service prefix
	if _, err := mr.Get("tvdb:series:121361"); err != nil {
		t.Errorf("Expected namespaced key in redis: %v", err)
	}
}

func TestCache_MissAfterTTL(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	cache.Set(ctx, "series", "42", "cached", time.Minute)

	var got string
	if !cache.Get(ctx, "series", "42", &got) {
		t.Fatal("Get should hit before expiry")
	}

	mr.FastForward(2 * time.Minute)

	if cache.Get(ctx, "series", "42", &got) {
		t.Error("Get should miss after TTL elapses")
	}
}

func TestCache_MissAfterDelete(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	cache.Set(ctx, "movie", "7", "cached", 0)

	if !cache.Delete(ctx, "movie", "7") {
		t.Fatal("Delete should report a removed key")
	}
	if cache.Delete(ctx, "movie", "7") {
		t.Error("Second delete should report nothing removed")
	}

	var got string
	if cache.Get(ctx, "movie", "7", &got) {
		t.Error("Get should miss after delete")
	}
}

func TestCache_Exists(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	if cache.Exists(ctx, "person", "9") {
		t.Error("Exists should be false for missing key")
	}

	cache.Set(ctx, "person", "9", "x", time.Hour)

	if !cache.Exists(ctx, "person", "9") {
		t.Error("Exists should be true after set")
	}
}

func TestCache_TTLRemaining(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	cache.Set(ctx, "episode", "3", "x", time.Hour)

	ttl := cache.TTL(ctx, "episode", "3")
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("Expected TTL in (0, 1h], got %v", ttl)
	}
}

func TestCache_FlushPattern(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	cache.Set(ctx, "series", "121361", "direct", 0)
	cache.Set(ctx, "series", "121361:episodes:page:0", "page0", 0)
	cache.Set(ctx, "series", "121361:episodes:page:1", "page1", 0)
	cache.Set(ctx, "series", "70327", "other", 0)

	removed := cache.FlushPattern(ctx, "series:121361:*")
	if removed != 2 {
		t.Errorf("Expected 2 keys flushed, got %d", removed)
	}

	var got string
	if !cache.Get(ctx, "series", "70327", &got) {
		t.Error("Unrelated key should survive the flush")
	}
	if cache.Get(ctx, "series", "121361:episodes:page:0", &got) {
		t.Error("Flushed key should miss")
	}
}

func TestCache_SetUnserializable(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	// Channels cannot be marshaled; treated as a set-failure, not a panic.
	if cache.Set(ctx, "series", "1", make(chan int), time.Hour) {
		t.Error("Set with unserializable value should return false")
	}
}

func TestCache_BackendDownIsMiss(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer cache.Close()

	ctx := context.Background()
	cache.Set(ctx, "series", "1", "x", 0)

	mr.Close()

	var got string
	if cache.Get(ctx, "series", "1", &got) {
		t.Error("Get against a dead backend should read as miss")
	}
	if cache.Set(ctx, "series", "2", "y", 0) {
		t.Error("Set against a dead backend should return false")
	}
}
