package indexdb

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/omalloc/imago/cache"
	"github.com/omalloc/imago/pkg/encoding"
	"github.com/omalloc/imago/pkg/encoding/cbor"
)

// IndexDB stores cache metadata keyed by the cache key hash. Drivers are
// registered by init and selected by name from configuration.
type IndexDB interface {
	io.Closer

	Get(ctx context.Context, key []byte) (*cache.Metadata, error)
	Put(ctx context.Context, key []byte, meta *cache.Metadata) error
	Delete(ctx context.Context, key []byte) error
	Exist(ctx context.Context, key []byte) bool
	Iterate(ctx context.Context, fn func(key []byte, meta *cache.Metadata) error) error
}

// Factory builds an IndexDB at the given path.
type Factory func(path string, option Option) (IndexDB, error)

// Option carries driver-independent construction settings.
type Option struct {
	dbPath   string
	codec    encoding.Codec
	inMemory bool
}

type OptionFunc func(*Option)

// WithCodec overrides the metadata codec. The default is CBOR.
func WithCodec(codec encoding.Codec) OptionFunc {
	return func(o *Option) {
		o.codec = codec
	}
}

// WithInMemory asks the driver to keep everything in memory, for tests
// and for the memory-backed cache tier.
func WithInMemory() OptionFunc {
	return func(o *Option) {
		o.inMemory = true
	}
}

func NewOption(dbPath string, opts ...OptionFunc) Option {
	o := Option{
		dbPath: dbPath,
		codec:  &cbor.CborCodec{},
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o Option) DBPath() string        { return o.dbPath }
func (o Option) Codec() encoding.Codec { return o.codec }
func (o Option) InMemory() bool        { return o.inMemory }

type Registry struct {
	registry map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		registry: make(map[string]Factory),
	}
}

func (r *Registry) Register(name string, factory Factory) {
	r.registry[createTypedName(name)] = factory
}

func (r *Registry) Create(name string, option Option) (IndexDB, error) {
	factory, ok := r.registry[createTypedName(name)]
	if !ok {
		return nil, fmt.Errorf("db type %s not registered", name)
	}
	return factory(option.DBPath(), option)
}

var defaultRegistry = NewRegistry()

func Register(name string, factory Factory) {
	defaultRegistry.Register(name, factory)
}

func Create(name string, option Option) (IndexDB, error) {
	return defaultRegistry.Create(name, option)
}

func createTypedName(name string) string {
	return fmt.Sprintf("imago.indexdb.%s", strings.ToLower(name))
}
