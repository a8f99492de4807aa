package lfu

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheBasic(t *testing.T) {
	c := New[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)

	assert.Equal(t, 1, *c.Get("a"))
	assert.Equal(t, 2, *c.Get("b"))

	c.Set("c", 3)
	assert.Equal(t, 2, c.Len())
	// "a" and "b" were read, "c" was only written; "c" is the coldest.
	assert.False(t, c.Has("c"))
}

func TestCacheMiss(t *testing.T) {
	c := New[string, int](2)
	assert.Nil(t, c.Get("missing"))
	assert.Equal(t, 0, c.Frequency("missing"))
}

func TestCacheOverwriteIncrementsFrequency(t *testing.T) {
	c := New[string, int](4)
	c.Set("a", 1)
	c.Set("a", 2)

	assert.Equal(t, 2, *c.Get("a"))
	assert.Equal(t, 3, c.Frequency("a"))
	assert.Equal(t, 1, c.Len())
}

func TestCacheRemove(t *testing.T) {
	c := New[string, int](4)
	c.Set("a", 1)

	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.Get("a"))
}

func TestCacheEvictColdestFirst(t *testing.T) {
	c := New[string, int](0)
	c.Set("hot", 1)
	c.Set("cold", 2)
	c.Get("hot")
	c.Get("hot")

	evicted := c.Evict(1)
	assert.Equal(t, 1, evicted)
	assert.True(t, c.Has("hot"))
	assert.False(t, c.Has("cold"))
}

func TestCacheEvictionChannelNonBlocking(t *testing.T) {
	evictCh := make(chan Eviction[string, int]) // unbuffered, never read
	c := New[string, int](1)
	c.EvictionChannel = evictCh

	c.Set("a", 1)
	// must not block even though nobody reads the channel
	c.Set("b", 2)
	assert.Equal(t, 1, c.Len())
}

func TestCacheRace(t *testing.T) {
	c := New[string, int](100)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(strconv.Itoa(i), i)
		}(i)
	}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Keys()
		}()
	}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Get(strconv.Itoa(i))
		}(i)
	}
	wg.Wait()
}

func BenchmarkCacheSet(b *testing.B) {
	c := New[int, int](1024)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(i&1023, i)
	}
}

func BenchmarkCacheGet(b *testing.B) {
	c := New[int, int](1024)
	for i := 0; i < 1024; i++ {
		c.Set(i, i)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(i & 1023)
	}
}
