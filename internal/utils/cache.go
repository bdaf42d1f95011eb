package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"strconv"       // Cache key building
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
)

// WalletCacheKey is the cache key for a user's wallet snapshot.
func WalletCacheKey(userID uint) string {
	return "wallet:user:" + strconv.Itoa(int(userID))
}

// HistoryCacheKey is the cache key for one page of a user's transaction
// history.
func HistoryCacheKey(userID uint, page, pageSize int) string {
	return "txhistory:user:" + strconv.Itoa(int(userID)) +
		":page:" + strconv.Itoa(page) + ":size:" + strconv.Itoa(pageSize)
}

// GetCache retrieves a value from Redis and unmarshals it into dest
func GetCache(ctx context.Context, rdb *redis.Client, key string, dest any) (bool, error) {
	val, err := rdb.Get(ctx, key).Result() // Get value from Redis
	if err == redis.Nil {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// SetCache sets a value in Redis with a specified TTL
func SetCache(ctx context.Context, rdb *redis.Client, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err // Return error if marshaling fails
	}
	return rdb.Set(ctx, key, b, ttl).Err() // Set value in Redis with TTL
}

// InvalidateUserCaches drops the wallet snapshot and the first few history
// pages for each user after a balance change. Simple version: only the
// default page size is cached, so only those keys need deleting.
func InvalidateUserCaches(ctx context.Context, rdb *redis.Client, userIDs ...uint) {
	for _, userID := range userIDs {
		_ = rdb.Del(ctx, WalletCacheKey(userID)).Err()
		for page := 1; page <= 5; page++ {
			_ = rdb.Del(ctx, HistoryCacheKey(userID, page, 20)).Err()
		}
	}
}
