package pebble

import (
	"context"
	"errors"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"

	"github.com/omalloc/imago/cache"
	"github.com/omalloc/imago/cache/indexdb"
	"github.com/omalloc/imago/pkg/encoding"
)

var _ indexdb.IndexDB = (*PebbleDB)(nil)

type PebbleDB struct {
	codec encoding.Codec
	db    *pebble.DB
}

func init() {
	indexdb.Register("pebble", NewPebbleDB)
}

func NewPebbleDB(path string, option indexdb.Option) (indexdb.IndexDB, error) {
	opts := &pebble.Options{}
	if option.InMemory() {
		opts.FS = vfs.NewMem()
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}

	return &PebbleDB{
		codec: option.Codec(),
		db:    db,
	}, nil
}

// Close implements [indexdb.IndexDB].
func (p *PebbleDB) Close() error {
	return p.db.Close()
}

// Get implements [indexdb.IndexDB].
func (p *PebbleDB) Get(ctx context.Context, key []byte) (*cache.Metadata, error) {
	v, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, cache.ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	var meta cache.Metadata
	if err := p.codec.Unmarshal(v, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Put implements [indexdb.IndexDB].
func (p *PebbleDB) Put(ctx context.Context, key []byte, meta *cache.Metadata) error {
	buf, err := p.codec.Marshal(meta)
	if err != nil {
		return err
	}
	return p.db.Set(key, buf, pebble.Sync)
}

// Delete implements [indexdb.IndexDB].
func (p *PebbleDB) Delete(ctx context.Context, key []byte) error {
	return p.db.Delete(key, pebble.Sync)
}

// Exist implements [indexdb.IndexDB].
func (p *PebbleDB) Exist(ctx context.Context, key []byte) bool {
	_, closer, err := p.db.Get(key)
	if err != nil {
		return false
	}
	_ = closer.Close()
	return true
}

// Iterate implements [indexdb.IndexDB].
func (p *PebbleDB) Iterate(ctx context.Context, fn func(key []byte, meta *cache.Metadata) error) error {
	iter, err := p.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var meta cache.Metadata
		if err := p.codec.Unmarshal(iter.Value(), &meta); err != nil {
			return err
		}
		key := append([]byte(nil), iter.Key()...)
		if err := fn(key, &meta); err != nil {
			return err
		}
	}
	return iter.Error()
}
