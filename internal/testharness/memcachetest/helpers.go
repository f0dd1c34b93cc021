package memcachetest

import (
	"errors"
	"os"
	"testing"

	"github.com/bradfitz/gomemcache/memcache"
)

// GetMemcachedAddress returns the Memcached address from MEMCACHED_ADDR.
// If CI environment variable is "true", it defaults to "memcached:11211" (common in Docker Compose).
func GetMemcachedAddress() string {
	if addr := os.Getenv("MEMCACHED_ADDR"); addr != "" {
		return addr
	}
	if os.Getenv("CI") == "true" {
		return "memcached:11211"
	}
	return ""
}

// SetupMemcachedClient initializes and returns a real *memcache.Client for integration tests.
// The test is skipped when no address is configured.
func SetupMemcachedClient(t testing.TB) *memcache.Client {
	t.Helper()
	memcachedAddr := GetMemcachedAddress()
	if memcachedAddr == "" {
		t.Skip("MEMCACHED_ADDR not set, skipping Memcache integration test")
	}
	t.Logf("Connecting to Memcached for integration tests at %s", memcachedAddr)

	mc := memcache.New(memcachedAddr)

	if err := mc.Ping(); err != nil {
		t.Fatalf("Failed to connect to Memcached at %s: %v. Ensure Memcached is running and accessible.", memcachedAddr, err)
	}

	t.Logf("Successfully connected to Memcached at %s", memcachedAddr)
	return mc
}

// CleanupMemcachedKeys deletes the specified keys from Memcached.
// It logs errors but doesn't fail the test, as cleanup is best-effort.
func CleanupMemcachedKeys(t testing.TB, client *memcache.Client, keys []string) {
	t.Helper()
	for _, key := range keys {
		// memcache.ErrCacheMiss means the key didn't exist, which is fine for cleanup.
		if err := client.Delete(key); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
			t.Logf("Warning: Failed to delete Memcached key '%s': %v", key, err)
		}
	}
}
