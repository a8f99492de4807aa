package cache

import (
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that miss.
var ErrNotFound = errors.New("cache: entry not found")

// Metadata describes one disk cache entry. It is stored in the index db
// next to the blob file.
type Metadata struct {
	Key         string    `json:"key" cbor:"key"`
	MediaID     string    `json:"media_id,omitempty" cbor:"media_id,omitempty"`
	Size        int64     `json:"size" cbor:"size"`
	ContentType string    `json:"content_type,omitempty" cbor:"content_type,omitempty"`
	StoredAt    time.Time `json:"stored_at" cbor:"stored_at"`
}
