package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/omalloc/imago/api/defined/v1/request"
)

// KeyHashSize is the size of the byte array that holds a key hash.
const KeyHashSize = sha1.Size

// KeyHash is the fixed-width byte array form of a cache key.
type KeyHash [KeyHashSize]byte

// WPath returns the sharded read/write path for the hash under pwd,
// dir layout F/FF/hash.
func (h KeyHash) WPath(pwd string) string {
	hx := hex.EncodeToString(h[:])
	return filepath.Join(pwd, hx[0:1], hx[2:4], hx)
}

// Key identifies one cached rendition of a source image. Two requests map
// to the same key exactly when a cached result for one can serve the other.
type Key struct {
	raw     string
	mediaID string
	hash    KeyHash
	bucket  uint64
}

// KeyForRaw rebuilds a key from its raw composite string, as recorded in
// index metadata. Used to re-address blobs found by iteration.
func KeyForRaw(raw, mediaID string) *Key {
	return newKey(raw, mediaID)
}

func newKey(raw, mediaID string) *Key {
	return &Key{
		raw:     raw,
		mediaID: mediaID,
		hash:    sha1.Sum([]byte(raw)),
		bucket:  xxhash.Sum64String(raw),
	}
}

// EncodedKeyForRequest derives the key of the encoded (undecoded bytes)
// rendition. Only the source URI matters: decode-time options do not
// change the fetched payload.
func EncodedKeyForRequest(req *request.ImageRequest) *Key {
	return newKey(req.SourceURI().String(), mediaID(req))
}

// BitmapKeyForRequest derives the key of the decoded rendition. Every
// option that alters the decoded pixels participates.
func BitmapKeyForRequest(req *request.ImageRequest) *Key {
	var sb strings.Builder
	sb.WriteString(req.SourceURI().String())
	if ro := req.ResizeOptions(); ro != nil {
		fmt.Fprintf(&sb, "|r=%s", ro)
	}
	if rot := req.RotationOptions(); rot != nil {
		fmt.Fprintf(&sb, "|o=%s", rot)
	}
	if pp := req.Postprocessor(); pp != nil {
		fmt.Fprintf(&sb, "|p=%s", pp.CacheKey())
	}
	return newKey(sb.String(), mediaID(req))
}

func mediaID(req *request.ImageRequest) string {
	if v := req.MediaVariations(); v != nil {
		return v.MediaID()
	}
	return ""
}

func (k *Key) String() string {
	return fmt.Sprintf("{%x:%s}", k.hash, k.raw)
}

// Raw returns the composite string the key was derived from.
func (k *Key) Raw() string {
	return k.raw
}

// MediaID returns the media-variations id, empty when the request had none.
func (k *Key) MediaID() string {
	return k.mediaID
}

func (k *Key) Hash() KeyHash {
	return k.hash
}

func (k *Key) HashStr() string {
	return hex.EncodeToString(k.hash[:])
}

func (k *Key) Bytes() []byte {
	return k.hash[:]
}

// Bucket returns a cheap 64-bit hash for in-memory map sharding.
func (k *Key) Bucket() uint64 {
	return k.bucket
}

// WPath returns the sharded on-disk path of the key under pwd.
func (k *Key) WPath(pwd string) string {
	return k.hash.WPath(pwd)
}
