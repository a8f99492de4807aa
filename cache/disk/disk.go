package disk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/omalloc/imago/cache"
	"github.com/omalloc/imago/cache/indexdb"
)

// Cache is the on-disk cache tier: encoded image payloads stored in a
// sharded directory tree, with per-entry metadata kept in a pluggable
// index db next to the blobs.
type Cache struct {
	root     string
	index    indexdb.IndexDB
	fileMode fs.FileMode
	log      *zap.Logger
}

// Options configures one disk cache instance.
type Options struct {
	// Root is the blob directory. Required.
	Root string
	// DBType selects the index driver ("pebble", "nutsdb"). Default pebble.
	DBType string
	// DBPath overrides the index location. Default <root>/.indexdb.
	DBPath string
	// InMemoryIndex keeps the index off disk, for tests.
	InMemoryIndex bool
	// Logger defaults to zap.NewNop.
	Logger *zap.Logger
}

func New(opts Options) (*Cache, error) {
	if opts.Root == "" {
		return nil, errors.New("disk cache root must be set")
	}
	if opts.DBType == "" {
		opts.DBType = "pebble"
	}
	if opts.DBPath == "" {
		opts.DBPath = path.Join(opts.Root, ".indexdb")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("init cache dir: %w", err)
	}

	dbOpts := []indexdb.OptionFunc{}
	if opts.InMemoryIndex {
		dbOpts = append(dbOpts, indexdb.WithInMemory())
	}
	index, err := indexdb.Create(opts.DBType, indexdb.NewOption(opts.DBPath, dbOpts...))
	if err != nil {
		return nil, fmt.Errorf("create %s indexdb: %w", opts.DBType, err)
	}

	return &Cache{
		root:     opts.Root,
		index:    index,
		fileMode: fs.FileMode(0o644),
		log:      opts.Logger,
	}, nil
}

// Get returns the payload and metadata for the key, or cache.ErrNotFound.
// An index entry whose blob has gone missing is dropped and reported as a
// miss.
func (c *Cache) Get(ctx context.Context, key *cache.Key) ([]byte, *cache.Metadata, error) {
	meta, err := c.index.Get(ctx, key.Bytes())
	if err != nil {
		return nil, nil, err
	}

	buf, err := os.ReadFile(key.WPath(c.root))
	if err != nil {
		if os.IsNotExist(err) {
			c.log.Warn("blob missing for indexed entry, dropping",
				zap.String("key", key.HashStr()))
			_ = c.index.Delete(ctx, key.Bytes())
			return nil, nil, cache.ErrNotFound
		}
		return nil, nil, err
	}
	return buf, meta, nil
}

// Has reports whether both the index entry and the blob are present.
func (c *Cache) Has(ctx context.Context, key *cache.Key) bool {
	if !c.index.Exist(ctx, key.Bytes()) {
		return false
	}
	_, err := os.Stat(key.WPath(c.root))
	return err == nil
}

// Put stores the payload and its metadata. The blob lands via a temp file
// and rename so a crash never leaves a half-written entry behind.
func (c *Cache) Put(ctx context.Context, key *cache.Key, payload []byte, contentType string) error {
	dst := key.WPath(c.root)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create shard dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	meta := &cache.Metadata{
		Key:         key.Raw(),
		MediaID:     key.MediaID(),
		Size:        int64(len(payload)),
		ContentType: contentType,
		StoredAt:    time.Now(),
	}
	if err := c.index.Put(ctx, key.Bytes(), meta); err != nil {
		// keep disk and index consistent
		_ = os.Remove(dst)
		return err
	}
	return nil
}

// Remove drops the entry from both the index and the blob tree.
func (c *Cache) Remove(ctx context.Context, key *cache.Key) error {
	if err := c.index.Delete(ctx, key.Bytes()); err != nil && !errors.Is(err, cache.ErrNotFound) {
		return err
	}
	if err := os.Remove(key.WPath(c.root)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Iterate walks every indexed entry.
func (c *Cache) Iterate(ctx context.Context, fn func(key []byte, meta *cache.Metadata) error) error {
	return c.index.Iterate(ctx, fn)
}

func (c *Cache) Close() error {
	return c.index.Close()
}
