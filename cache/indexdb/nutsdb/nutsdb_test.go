package nutsdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/imago/cache"
	"github.com/omalloc/imago/cache/indexdb"
)

func TestNutsDBRoundTrip(t *testing.T) {
	db, err := indexdb.Create("nutsdb", indexdb.NewOption(t.TempDir()))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	key := []byte("abc123")
	meta := &cache.Metadata{
		Key:      "https://cdn.example.com/a.jpg",
		Size:     1234,
		StoredAt: time.Now().Truncate(time.Second),
	}

	assert.False(t, db.Exist(ctx, key))

	require.NoError(t, db.Put(ctx, key, meta))
	assert.True(t, db.Exist(ctx, key))

	got, err := db.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, meta.Key, got.Key)
	assert.Equal(t, meta.Size, got.Size)

	var seen int
	require.NoError(t, db.Iterate(ctx, func(k []byte, m *cache.Metadata) error {
		seen++
		assert.Equal(t, key, k)
		return nil
	}))
	assert.Equal(t, 1, seen)

	require.NoError(t, db.Delete(ctx, key))
	assert.False(t, db.Exist(ctx, key))

	_, err = db.Get(ctx, key)
	assert.ErrorIs(t, err, cache.ErrNotFound)
}
