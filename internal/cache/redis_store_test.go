package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/chdsbd/recipeyak/internal/store"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	cache, err := NewRedisStore("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache, s
}

func sampleRecipe() store.Recipe {
	return store.Recipe{
		ID:   7,
		Name: "Miso soup",
		Tags: []string{"soup"},
		Ingredients: []store.Ingredient{
			{ID: 1, RecipeID: 7, Quantity: "2 tbs", Name: "miso", Position: "a0"},
			{ID: 2, RecipeID: 7, Quantity: "1 block", Name: "tofu", Position: "a1"},
		},
		Steps: []store.Step{{ID: 3, RecipeID: 7, Text: "whisk", Position: "a0"}},
	}
}

func TestNewRedisStore(t *testing.T) {
	cache, _ := setupTestRedis(t)
	if err := cache.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url", time.Minute); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestPutAndGetRecipe(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := cache.PutRecipe(ctx, sampleRecipe()); err != nil {
		t.Fatalf("PutRecipe failed: %v", err)
	}

	got, err := cache.GetRecipe(ctx, 7)
	if err != nil {
		t.Fatalf("GetRecipe failed: %v", err)
	}
	if got.Name != "Miso soup" || len(got.Ingredients) != 2 {
		t.Fatalf("unexpected cached recipe: %+v", got)
	}
	if got.Ingredients[1].Position != "a1" {
		t.Errorf("expected positions to survive caching, got %q", got.Ingredients[1].Position)
	}
}

func TestGetRecipeMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	_, err := cache.GetRecipe(context.Background(), 404)
	if !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestCachedRecipeExpires(t *testing.T) {
	cache, s := setupTestRedis(t)
	ctx := context.Background()

	if err := cache.PutRecipe(ctx, sampleRecipe()); err != nil {
		t.Fatalf("PutRecipe failed: %v", err)
	}
	if ttl := s.TTL("recipe:7"); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %s", ttl)
	}

	s.FastForward(2 * time.Minute)

	if _, err := cache.GetRecipe(ctx, 7); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after expiry, got %v", err)
	}
}

func TestInvalidate(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := cache.PutRecipe(ctx, sampleRecipe()); err != nil {
		t.Fatalf("PutRecipe failed: %v", err)
	}
	if err := cache.Invalidate(ctx, 7); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := cache.GetRecipe(ctx, 7); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after invalidate, got %v", err)
	}
	if err := cache.Invalidate(ctx, 7); err != nil {
		t.Errorf("Invalidate of missing key failed: %v", err)
	}
}

func TestCorruptEntry(t *testing.T) {
	cache, s := setupTestRedis(t)

	if err := s.Set("recipe:9", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := cache.GetRecipe(context.Background(), 9)
	if err == nil || errors.Is(err, ErrMiss) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
