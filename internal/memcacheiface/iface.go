package memcacheiface

import "github.com/bradfitz/gomemcache/memcache"

// Client defines the Memcache operations needed by the audit counters.
// This allows for mocking the Memcache client in unit tests.
type Client interface {
	Get(key string) (*memcache.Item, error)
	Add(item *memcache.Item) error
	Increment(key string, delta uint64) (newValue uint64, err error)
	Delete(key string) error
}

var _ Client = (*memcache.Client)(nil)
