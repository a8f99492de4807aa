package nutsdb

import (
	"context"
	"errors"

	"github.com/nutsdb/nutsdb"

	"github.com/omalloc/imago/cache"
	"github.com/omalloc/imago/cache/indexdb"
	"github.com/omalloc/imago/pkg/encoding"
)

const bucketName = "imago"

var _ indexdb.IndexDB = (*NutsDB)(nil)

type NutsDB struct {
	codec encoding.Codec
	db    *nutsdb.DB
}

func init() {
	indexdb.Register("nutsdb", NewNutsDB)
}

func NewNutsDB(path string, option indexdb.Option) (indexdb.IndexDB, error) {
	db, err := nutsdb.Open(
		nutsdb.DefaultOptions,
		nutsdb.WithDir(path),
	)
	if err != nil {
		return nil, err
	}

	// bucket must exist before first Put
	if err := db.Update(func(tx *nutsdb.Tx) error {
		return tx.NewBucket(nutsdb.DataStructureBTree, bucketName)
	}); err != nil && !errors.Is(err, nutsdb.ErrBucketAlreadyExist) {
		_ = db.Close()
		return nil, err
	}

	return &NutsDB{
		codec: option.Codec(),
		db:    db,
	}, nil
}

// Close implements [indexdb.IndexDB].
func (n *NutsDB) Close() error {
	return n.db.Close()
}

// Get implements [indexdb.IndexDB].
func (n *NutsDB) Get(ctx context.Context, key []byte) (*cache.Metadata, error) {
	var meta cache.Metadata
	if err := n.db.View(func(tx *nutsdb.Tx) error {
		v, err := tx.Get(bucketName, key)
		if err != nil {
			return err
		}
		return n.codec.Unmarshal(v, &meta)
	}); err != nil {
		if errors.Is(err, nutsdb.ErrKeyNotFound) {
			return nil, cache.ErrNotFound
		}
		return nil, err
	}
	return &meta, nil
}

// Put implements [indexdb.IndexDB].
func (n *NutsDB) Put(ctx context.Context, key []byte, meta *cache.Metadata) error {
	buf, err := n.codec.Marshal(meta)
	if err != nil {
		return err
	}
	return n.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Put(bucketName, key, buf, nutsdb.Persistent)
	})
}

// Delete implements [indexdb.IndexDB].
func (n *NutsDB) Delete(ctx context.Context, key []byte) error {
	return n.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Delete(bucketName, key)
	})
}

// Exist implements [indexdb.IndexDB].
func (n *NutsDB) Exist(ctx context.Context, key []byte) bool {
	var ret bool
	if err := n.db.View(func(tx *nutsdb.Tx) error {
		v, err := tx.Get(bucketName, key)
		if err != nil {
			return err
		}
		ret = v != nil
		return nil
	}); err != nil {
		return false
	}
	return ret
}

// Iterate implements [indexdb.IndexDB].
func (n *NutsDB) Iterate(ctx context.Context, fn func(key []byte, meta *cache.Metadata) error) error {
	return n.db.View(func(tx *nutsdb.Tx) error {
		keys, err := tx.GetKeys(bucketName)
		if err != nil {
			if errors.Is(err, nutsdb.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := tx.Get(bucketName, key)
			if err != nil {
				return err
			}
			var meta cache.Metadata
			if err := n.codec.Unmarshal(v, &meta); err != nil {
				return err
			}
			if err := fn(key, &meta); err != nil {
				return err
			}
		}
		return nil
	})
}
