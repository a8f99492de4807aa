package encoding

import (
	"sync"

	"github.com/omalloc/imago/pkg/encoding/json"
)

var (
	mu           sync.Mutex
	defaultCodec Codec = json.JSONCodec{}
)

// Codec serializes cache metadata and similar small records. Implementations
// must be safe for concurrent use.
type Codec interface {
	// Marshal returns the wire format of v.
	Marshal(v any) ([]byte, error)
	// Unmarshal parses the wire format into v.
	Unmarshal(data []byte, v any) error
	// Name returns the static name of the codec implementation.
	Name() string
}

// SetDefaultCodec sets the codec used where no explicit codec is configured.
func SetDefaultCodec(codec Codec) {
	mu.Lock()
	defer mu.Unlock()

	defaultCodec = codec
}

func GetDefaultCodec() Codec {
	mu.Lock()
	defer mu.Unlock()

	return defaultCodec
}

func Marshal(v any) ([]byte, error) {
	return GetDefaultCodec().Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return GetDefaultCodec().Unmarshal(data, v)
}

func Name() string {
	return GetDefaultCodec().Name()
}
