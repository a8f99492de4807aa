package pebble

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/imago/cache"
	"github.com/omalloc/imago/cache/indexdb"
)

func TestPebbleRoundTrip(t *testing.T) {
	db, err := indexdb.Create("pebble", indexdb.NewOption("mem", indexdb.WithInMemory()))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	key := []byte("abc123")
	meta := &cache.Metadata{
		Key:      "https://cdn.example.com/a.jpg",
		Size:     1234,
		StoredAt: time.Now().Truncate(time.Second),
	}

	require.NoError(t, db.Put(ctx, key, meta))
	assert.True(t, db.Exist(ctx, key))

	got, err := db.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, meta.Key, got.Key)
	assert.Equal(t, meta.Size, got.Size)

	require.NoError(t, db.Delete(ctx, key))
	assert.False(t, db.Exist(ctx, key))

	_, err = db.Get(ctx, key)
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestPebbleIterate(t *testing.T) {
	db, err := indexdb.Create("pebble", indexdb.NewOption("mem", indexdb.WithInMemory()))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.Put(ctx, []byte("a"), &cache.Metadata{Key: "a", Size: 1}))
	require.NoError(t, db.Put(ctx, []byte("b"), &cache.Metadata{Key: "b", Size: 2}))

	var keys []string
	require.NoError(t, db.Iterate(ctx, func(k []byte, m *cache.Metadata) error {
		keys = append(keys, string(k))
		return nil
	}))
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestCreateUnknownDriver(t *testing.T) {
	_, err := indexdb.Create("boltdb", indexdb.NewOption("mem"))
	assert.Error(t, err)
}
