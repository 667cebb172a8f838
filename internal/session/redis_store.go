// Package session persists identity custom claims for the local identity
// provider.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rememberme/api/internal/auth"
)

// claimsData is the JSON stored for each uid.
type claimsData struct {
	Claims    auth.CustomClaims `json:"claims"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// RedisStore implements auth.ClaimsStore using Redis
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis-backed claims store
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "claims:",
	}
}

func (s *RedisStore) key(uid string) string {
	return s.prefix + uid
}

// SaveClaims replaces the claims of uid. Claims do not expire.
func (s *RedisStore) SaveClaims(ctx context.Context, uid string, claims auth.CustomClaims) error {
	jsonData, err := json.Marshal(claimsData{Claims: claims, UpdatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal claims: %w", err)
	}
	if err := s.client.Set(ctx, s.key(uid), jsonData, 0).Err(); err != nil {
		return fmt.Errorf("save claims: %w", err)
	}
	return nil
}

// LookupClaims returns the claims of uid and whether any were stored
func (s *RedisStore) LookupClaims(ctx context.Context, uid string) (auth.CustomClaims, bool, error) {
	jsonData, err := s.client.Get(ctx, s.key(uid)).Result()
	if errors.Is(err, redis.Nil) {
		return auth.CustomClaims{}, false, nil
	}
	if err != nil {
		return auth.CustomClaims{}, false, fmt.Errorf("lookup claims: %w", err)
	}

	var data claimsData
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		return auth.CustomClaims{}, false, fmt.Errorf("unmarshal claims: %w", err)
	}
	return data.Claims, true, nil
}

// DeleteClaims removes the claims of uid
func (s *RedisStore) DeleteClaims(ctx context.Context, uid string) error {
	if err := s.client.Del(ctx, s.key(uid)).Err(); err != nil {
		return fmt.Errorf("delete claims: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
