package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// remoteKeyPrefix namespaces this service's keys on shared cache servers.
const remoteKeyPrefix = "advisory:"

// maxRelativeExp is memcached's limit for relative expirations; larger values
// are read as absolute unix timestamps.
const maxRelativeExp = 30 * 24 * 60 * 60

// NewMemcachedClient creates a client for a comma-separated server list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns use package defaults if zero.
func NewMemcachedClient(addrs string, timeout time.Duration, maxIdleConns int) *memcache.Client {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return client
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

// maxMemcachedKeyLen is the memcached protocol's key length limit in bytes.
const maxMemcachedKeyLen = 250

// remoteKey escapes key so spaces and non-ASCII city names are legal memcached
// keys. Escaped keys over the protocol limit keep a readable head and end in
// the hex SHA-256 of the unescaped key.
func remoteKey(key string) string {
	escaped := remoteKeyPrefix + url.QueryEscape(key)
	if len(escaped) <= maxMemcachedKeyLen {
		return escaped
	}
	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])
	head := maxMemcachedKeyLen - len(digest) - 1
	return escaped[:head] + ":" + digest
}

// MemcachedCache implements Cache over memcached, storing JSON-encoded values.
// Several MemcachedCache values may share one client.
type MemcachedCache[T any] struct {
	client *memcache.Client
}

func NewMemcachedCache[T any](client *memcache.Client) *MemcachedCache[T] {
	return &MemcachedCache[T]{client: client}
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	item, err := c.client.Get(remoteKey(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return zero, false, nil
		}
		return zero, false, err
	}
	var value T
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return zero, false, err
	}
	return value, true, nil
}

// Set implements Cache.Set. Memcached expirations have one-second resolution;
// sub-second TTLs round up to one second.
func (c *MemcachedCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	expSec := int32((ttl + time.Second - 1) / time.Second)
	if expSec <= 0 || expSec > maxRelativeExp {
		return errors.New("memcached: ttl out of range")
	}
	return c.client.Set(&memcache.Item{
		Key:        remoteKey(key),
		Value:      raw,
		Expiration: expSec,
	})
}
