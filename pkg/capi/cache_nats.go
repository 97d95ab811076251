package capi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fivetwenty-io/capi-facade/internal/constants"
	"github.com/nats-io/nats.go"
)

// Static errors for err113 compliance.
var (
	ErrNATSURLRequired = errors.New("NATS URL or connection is required")
)

// NATSKVConfig configures a JetStream key/value backed cache.
type NATSKVConfig struct {
	// URL of the NATS server. Ignored when Conn is set.
	URL string
	// Conn reuses an existing connection; the cache will not close it.
	Conn *nats.Conn
	// Bucket is created on first use if it does not exist.
	Bucket string
	// TTL applies to the whole bucket when it is created. Zero keeps entries forever.
	TTL time.Duration
}

// kvBucket is the part of a JetStream bucket the cache uses.
type kvBucket interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Keys() ([]string, error)
}

type jetStreamBucket struct {
	kv nats.KeyValue
}

func (b jetStreamBucket) Get(key string) ([]byte, error) {
	entry, err := b.kv.Get(key)
	if err != nil {
		return nil, err
	}

	return entry.Value(), nil
}

func (b jetStreamBucket) Put(key string, value []byte) error {
	_, err := b.kv.Put(key, value)

	return err
}

func (b jetStreamBucket) Delete(key string) error {
	return b.kv.Delete(key)
}

func (b jetStreamBucket) Keys() ([]string, error) {
	keys, err := b.kv.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return nil, nil
	}

	return keys, err
}

// NATSKVCache stores cache entries in a JetStream key/value bucket so several
// processes can share them.
type NATSKVCache struct {
	bucket kvBucket
	conn   *nats.Conn
	owned  bool
	now    func() time.Time
}

// NewNATSKVCache connects to NATS and opens (or creates) the configured bucket.
func NewNATSKVCache(config *NATSKVConfig) (*NATSKVCache, error) {
	if config == nil || (config.Conn == nil && config.URL == "") {
		return nil, ErrNATSURLRequired
	}

	bucketName := config.Bucket
	if bucketName == "" {
		bucketName = constants.DefaultInfoCacheBucket
	}

	conn, owned := config.Conn, false
	if conn == nil {
		var err error

		conn, err = nats.Connect(config.URL, nats.Name("capi-facade"))
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}

		owned = true
	}

	kv, err := openBucket(conn, bucketName, config.TTL)
	if err != nil {
		if owned {
			conn.Close()
		}

		return nil, err
	}

	return &NATSKVCache{
		bucket: jetStreamBucket{kv: kv},
		conn:   conn,
		owned:  owned,
		now:    time.Now,
	}, nil
}

func openBucket(conn *nats.Conn, name string, ttl time.Duration) (nats.KeyValue, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("opening JetStream context: %w", err)
	}

	kv, err := js.KeyValue(name)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      name,
			Description: "capi cache",
			TTL:         ttl,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("opening KV bucket %s: %w", name, err)
	}

	return kv, nil
}

func newNATSKVCacheWithBucket(bucket kvBucket) *NATSKVCache {
	return &NATSKVCache{bucket: bucket, now: time.Now}
}

// encodeKey maps arbitrary keys (URLs included) onto the KV key alphabet.
func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// Get returns the entry for key.
func (c *NATSKVCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	raw, err := c.bucket.Get(encodeKey(key))
	if errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted) {
		return nil, fmt.Errorf("%w: %s", ErrCacheKeyNotFound, key)
	}

	if err != nil {
		return nil, fmt.Errorf("reading %s from KV: %w", key, err)
	}

	var entry CacheEntry

	err = json.Unmarshal(raw, &entry)
	if err != nil {
		return nil, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}

	if entry.IsExpired(c.now()) {
		return nil, fmt.Errorf("%w: %s", ErrCacheExpired, key)
	}

	return &entry, nil
}

// Set stores entry under key.
func (c *NATSKVCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}

	err = c.bucket.Put(encodeKey(key), raw)
	if err != nil {
		return fmt.Errorf("writing %s to KV: %w", key, err)
	}

	return nil
}

// Delete removes key.
func (c *NATSKVCache) Delete(ctx context.Context, key string) error {
	err := c.bucket.Delete(encodeKey(key))
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("deleting %s from KV: %w", key, err)
	}

	return nil
}

// Clear deletes every key in the bucket.
func (c *NATSKVCache) Clear(ctx context.Context) error {
	keys, err := c.bucket.Keys()
	if err != nil {
		return fmt.Errorf("listing KV keys: %w", err)
	}

	for _, key := range keys {
		err = c.bucket.Delete(key)
		if err != nil {
			return fmt.Errorf("deleting KV key: %w", err)
		}
	}

	return nil
}

// Has reports whether a live entry exists for key.
func (c *NATSKVCache) Has(ctx context.Context, key string) bool {
	_, err := c.Get(ctx, key)

	return err == nil
}

// Close releases the NATS connection if the cache opened it.
func (c *NATSKVCache) Close() {
	if c.owned && c.conn != nil {
		c.conn.Close()
	}
}
