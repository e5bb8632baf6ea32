package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/home-maintenance-service/internal/models"
)

const keyPrefix = "zipcache:"

// maxRelativeExp is memcached's limit for relative expirations; larger values are read
// as absolute unix timestamps.
const maxRelativeExp = 30 * 24 * 60 * 60

// MemcachedStore implements Store on memcached. Items carry an absolute expiry so the
// server also drops them; SweepExpired is a no-op because memcached cannot enumerate keys.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		return nil, fmt.Errorf("memcached: no server addresses in %q", addrs)
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedStore) key(zip string) string {
	return keyPrefix + zip
}

// Get implements Store.Get. Returns false, nil on cache miss.
func (c *MemcachedStore) Get(ctx context.Context, zip string) (models.ZipCacheEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.ZipCacheEntry{}, false, err
	}
	item, err := c.client.Get(c.key(zip))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.ZipCacheEntry{}, false, nil
		}
		return models.ZipCacheEntry{}, false, err
	}
	var entry models.ZipCacheEntry
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return models.ZipCacheEntry{}, false, fmt.Errorf("unmarshal zip cache entry: %w", err)
	}
	return entry, true, nil
}

// Set implements Store.Set.
func (c *MemcachedStore) Set(ctx context.Context, entry models.ZipCacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal zip cache entry: %w", err)
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(entry.ZipCode),
		Value:      raw,
		Expiration: expirationFor(entry.ExpiresAt, time.Now()),
	})
}

// Delete implements Store.Delete. A missing key is not an error.
func (c *MemcachedStore) Delete(ctx context.Context, zip string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.client.Delete(c.key(zip)); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return err
	}
	return nil
}

// SweepExpired implements Store.SweepExpired. Memcached evicts by itself.
func (c *MemcachedStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, ctx.Err()
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedStore) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedStore) Close() error {
	return c.client.Close()
}

// expirationFor encodes expiresAt for memcached: relative seconds up to 30 days,
// absolute unix time beyond that. Already-expired entries get 1s so they vanish promptly.
func expirationFor(expiresAt, now time.Time) int32 {
	secs := int64(expiresAt.Sub(now) / time.Second)
	if secs <= 0 {
		return 1
	}
	if secs <= maxRelativeExp {
		return int32(secs)
	}
	return int32(expiresAt.Unix())
}
