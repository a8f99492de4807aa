package memory

import (
	"image"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/omalloc/imago/api/defined/v1/request"
	"github.com/omalloc/imago/cache"
	"github.com/omalloc/imago/pkg/algorithm/lfu"
)

// EncodedCache holds undecoded image payloads keyed by cache key hash.
// Plain LRU: encoded bytes are cheap to re-fetch from disk, recency is a
// good enough signal.
type EncodedCache struct {
	lru *lru.Cache[cache.KeyHash, []byte]
}

func NewEncodedCache(capacity int) (*EncodedCache, error) {
	l, err := lru.New[cache.KeyHash, []byte](capacity)
	if err != nil {
		return nil, err
	}
	return &EncodedCache{lru: l}, nil
}

func (c *EncodedCache) Get(key *cache.Key) ([]byte, bool) {
	return c.lru.Get(key.Hash())
}

func (c *EncodedCache) Set(key *cache.Key, payload []byte) {
	c.lru.Add(key.Hash(), payload)
}

func (c *EncodedCache) Remove(key *cache.Key) {
	c.lru.Remove(key.Hash())
}

func (c *EncodedCache) Len() int {
	return c.lru.Len()
}

// BitmapCache holds decoded images. Decoding is the expensive step, so the
// cache is frequency-based: an image displayed on every screen survives a
// burst of one-off requests.
type BitmapCache struct {
	cache *lfu.Cache[cache.KeyHash, image.Image]
}

func NewBitmapCache(capacity int) *BitmapCache {
	return &BitmapCache{cache: lfu.New[cache.KeyHash, image.Image](capacity)}
}

func (c *BitmapCache) Get(key *cache.Key) (image.Image, bool) {
	if v := c.cache.Get(key.Hash()); v != nil {
		return *v, true
	}
	return nil, false
}

func (c *BitmapCache) Set(key *cache.Key, img image.Image) {
	c.cache.Set(key.Hash(), img)
}

func (c *BitmapCache) Remove(key *cache.Key) {
	c.cache.Remove(key.Hash())
}

func (c *BitmapCache) Len() int {
	return c.cache.Len()
}

// Caches bundles one encoded and one bitmap cache per cache choice, so
// small images (icons, thumbnails) are not evicted by large content
// images competing for the same slots.
type Caches struct {
	defaultEncoded *EncodedCache
	smallEncoded   *EncodedCache
	defaultBitmap  *BitmapCache
	smallBitmap    *BitmapCache
}

// CachesConfig sizes the per-choice caches in entries.
type CachesConfig struct {
	DefaultEncodedEntries int
	SmallEncodedEntries   int
	DefaultBitmapEntries  int
	SmallBitmapEntries    int
}

func DefaultCachesConfig() CachesConfig {
	return CachesConfig{
		DefaultEncodedEntries: 256,
		SmallEncodedEntries:   1024,
		DefaultBitmapEntries:  64,
		SmallBitmapEntries:    512,
	}
}

func NewCaches(cfg CachesConfig) (*Caches, error) {
	de, err := NewEncodedCache(cfg.DefaultEncodedEntries)
	if err != nil {
		return nil, err
	}
	se, err := NewEncodedCache(cfg.SmallEncodedEntries)
	if err != nil {
		return nil, err
	}
	return &Caches{
		defaultEncoded: de,
		smallEncoded:   se,
		defaultBitmap:  NewBitmapCache(cfg.DefaultBitmapEntries),
		smallBitmap:    NewBitmapCache(cfg.SmallBitmapEntries),
	}, nil
}

// Encoded returns the encoded cache serving the given choice.
func (c *Caches) Encoded(choice request.CacheChoice) *EncodedCache {
	if choice == request.CacheChoiceSmall {
		return c.smallEncoded
	}
	return c.defaultEncoded
}

// Bitmap returns the bitmap cache serving the given choice.
func (c *Caches) Bitmap(choice request.CacheChoice) *BitmapCache {
	if choice == request.CacheChoiceSmall {
		return c.smallBitmap
	}
	return c.defaultBitmap
}
