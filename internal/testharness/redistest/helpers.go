package redistest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// GetRedisAddress returns the Redis address from REDIS_ADDR.
// If CI environment variable is "true", it defaults to "redis:6379".
func GetRedisAddress() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	if os.Getenv("CI") == "true" {
		return "redis:6379"
	}
	return ""
}

// SetupRedisClient initializes and returns a Redis client for integration tests.
// The test is skipped when no Redis address is configured and fails if the
// configured server cannot be reached.
func SetupRedisClient(t testing.TB) *redis.Client {
	t.Helper()
	redisAddr := GetRedisAddress()
	if redisAddr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis integration test")
	}
	t.Logf("Connecting to Redis for integration tests at %s", redisAddr)

	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		t.Fatalf("Failed to connect to Redis at %s: %v. Ensure Redis is running and accessible.", redisAddr, err)
	}
	return client
}

// CleanupRedisKeys deletes every key under "prefix:*".
func CleanupRedisKeys(t testing.TB, client *redis.Client, prefix string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	scanPattern := prefix + ":*"
	var allKeysToDelete []string
	iter := client.Scan(ctx, 0, scanPattern, 50).Iterator()
	for iter.Next(ctx) {
		allKeysToDelete = append(allKeysToDelete, iter.Val())
	}
	if err := iter.Err(); err != nil {
		t.Fatalf("Failed to SCAN for keys with pattern '%s': %v", scanPattern, err)
	}

	if len(allKeysToDelete) == 0 {
		t.Logf("No keys to delete for pattern '%s'", scanPattern)
		return
	}
	deletedCount, err := client.Del(ctx, allKeysToDelete...).Result()
	if err != nil {
		t.Errorf("Failed to DEL keys during cleanup (pattern: %s): %v. Keys: %v", scanPattern, err, allKeysToDelete)
	}
	t.Logf("Cleaned up %d keys matching pattern '%s'", deletedCount, scanPattern)
}
