// Package cache keeps rendered recipes in Redis between reads.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chdsbd/recipeyak/internal/store"
)

// ErrMiss is returned when a recipe is not cached or has expired.
var ErrMiss = errors.New("cache: miss")

// RedisStore caches recipes with their ordered children.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisStore{
		client: client,
		prefix: "recipe:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(recipeID int64) string {
	return s.prefix + strconv.FormatInt(recipeID, 10)
}

func (s *RedisStore) GetRecipe(ctx context.Context, recipeID int64) (store.Recipe, error) {
	raw, err := s.client.Get(ctx, s.key(recipeID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Recipe{}, ErrMiss
	}
	if err != nil {
		return store.Recipe{}, fmt.Errorf("read cached recipe: %w", err)
	}

	var recipe store.Recipe
	if err := json.Unmarshal(raw, &recipe); err != nil {
		return store.Recipe{}, fmt.Errorf("unmarshal cached recipe: %w", err)
	}
	return recipe, nil
}

func (s *RedisStore) PutRecipe(ctx context.Context, recipe store.Recipe) error {
	raw, err := json.Marshal(recipe)
	if err != nil {
		return fmt.Errorf("marshal recipe: %w", err)
	}
	if err := s.client.Set(ctx, s.key(recipe.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache recipe: %w", err)
	}
	return nil
}

// Invalidate drops the cached copy. Dropping a missing key is not an error.
func (s *RedisStore) Invalidate(ctx context.Context, recipeID int64) error {
	if err := s.client.Del(ctx, s.key(recipeID)).Err(); err != nil {
		return fmt.Errorf("invalidate recipe: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
