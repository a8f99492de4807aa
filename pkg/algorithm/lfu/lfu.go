package lfu

import (
	"sync"
)

// Eviction is delivered on the EvictionChannel when an entry is dropped.
type Eviction[K comparable, V any] struct {
	Key   K
	Value V
}

// Cache is a least-frequently-used cache. Entries are grouped into
// frequency buckets kept in ascending order; eviction drains the lowest
// bucket first. Safe for concurrent use.
type Cache[K comparable, V any] struct {
	// If len > UpperBound, the cache automatically evicts down to
	// LowerBound. If either value is 0 this behavior is disabled.
	UpperBound int
	LowerBound int
	// EvictionChannel, when set, receives every evicted entry. Sends are
	// non-blocking; a full channel drops the notification.
	EvictionChannel chan<- Eviction[K, V]

	values map[K]*cacheEntry[K, V]
	head   *freqBucket[K, V] // lowest frequency
	len    int
	lock   sync.Mutex
}

type cacheEntry[K comparable, V any] struct {
	key    K
	value  V
	bucket *freqBucket[K, V]
}

type freqBucket[K comparable, V any] struct {
	freq    int
	entries map[*cacheEntry[K, V]]struct{}
	prev    *freqBucket[K, V]
	next    *freqBucket[K, V]
}

func New[K comparable, V any](cap int) *Cache[K, V] {
	c := &Cache[K, V]{
		values: make(map[K]*cacheEntry[K, V]),
	}
	if cap > 0 {
		c.UpperBound = cap
		c.LowerBound = cap
	}
	return c
}

// Has checks whether the key is cached, without touching its frequency.
func (c *Cache[K, V]) Has(key K) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	_, has := c.values[key]
	return has
}

// Get returns the cached value and increments its frequency. It returns
// nil when the key is absent.
func (c *Cache[K, V]) Get(key K) *V {
	c.lock.Lock()
	defer c.lock.Unlock()
	if e, ok := c.values[key]; ok {
		c.increment(e)
		return &e.value
	}
	return nil
}

// Set stores the key-value pair. Overwriting an existing key increments
// its frequency; inserting may trigger eviction down to LowerBound.
func (c *Cache[K, V]) Set(key K, value V) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if e, ok := c.values[key]; ok {
		e.value = value
		c.increment(e)
		return
	}

	e := &cacheEntry[K, V]{key: key, value: value}
	c.values[key] = e
	c.increment(e)
	c.len++
	if c.UpperBound > 0 && c.LowerBound > 0 && c.len > c.UpperBound {
		c.evict(c.len - c.LowerBound)
	}
}

// Remove drops the key if present and reports whether it was there.
func (c *Cache[K, V]) Remove(key K) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	e, ok := c.values[key]
	if !ok {
		return false
	}
	delete(c.values, key)
	c.unlink(e)
	c.len--
	return true
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.len
}

// Frequency returns the access count of the given key, 0 when absent.
func (c *Cache[K, V]) Frequency(key K) int {
	c.lock.Lock()
	defer c.lock.Unlock()
	if e, ok := c.values[key]; ok {
		return e.bucket.freq
	}
	return 0
}

// Keys returns a snapshot of all cached keys in no particular order.
func (c *Cache[K, V]) Keys() []K {
	c.lock.Lock()
	defer c.lock.Unlock()
	keys := make([]K, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	return keys
}

// Evict drops up to count entries, least-frequently-used first, and
// returns how many were dropped.
func (c *Cache[K, V]) Evict(count int) int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.evict(count)
}

func (c *Cache[K, V]) evict(count int) int {
	// No lock here so it can run inside Set.
	var evicted int
	for c.head != nil && evicted < count {
		bucket := c.head
		for e := range bucket.entries {
			if evicted >= count {
				break
			}
			if c.EvictionChannel != nil {
				select {
				case c.EvictionChannel <- Eviction[K, V]{Key: e.key, Value: e.value}:
				default:
				}
			}
			delete(c.values, e.key)
			c.removeFromBucket(bucket, e)
			c.len--
			evicted++
		}
	}
	return evicted
}

func (c *Cache[K, V]) increment(e *cacheEntry[K, V]) {
	current := e.bucket
	var nextFreq int
	var next *freqBucket[K, V]
	if current == nil {
		nextFreq = 1
		next = c.head
	} else {
		nextFreq = current.freq + 1
		next = current.next
	}

	if next == nil || next.freq != nextFreq {
		next = c.insertBucket(nextFreq, current)
	}
	e.bucket = next
	next.entries[e] = struct{}{}
	if current != nil {
		c.removeFromBucket(current, e)
	}
}

// insertBucket places a new frequency bucket right after prev, or at the
// head when prev is nil.
func (c *Cache[K, V]) insertBucket(freq int, prev *freqBucket[K, V]) *freqBucket[K, V] {
	b := &freqBucket[K, V]{
		freq:    freq,
		entries: make(map[*cacheEntry[K, V]]struct{}),
	}
	if prev == nil {
		b.next = c.head
		if c.head != nil {
			c.head.prev = b
		}
		c.head = b
		return b
	}
	b.prev = prev
	b.next = prev.next
	if prev.next != nil {
		prev.next.prev = b
	}
	prev.next = b
	return b
}

func (c *Cache[K, V]) unlink(e *cacheEntry[K, V]) {
	if e.bucket != nil {
		c.removeFromBucket(e.bucket, e)
	}
}

func (c *Cache[K, V]) removeFromBucket(b *freqBucket[K, V], e *cacheEntry[K, V]) {
	delete(b.entries, e)
	if len(b.entries) > 0 {
		return
	}
	if b.prev != nil {
		b.prev.next = b.next
	} else {
		c.head = b.next
	}
	if b.next != nil {
		b.next.prev = b.prev
	}
}
