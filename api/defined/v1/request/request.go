package request

import (
	"net/url"

	"github.com/omalloc/imago/pkg/uriutil"
)

// ImageRequest is the frozen form of a Builder: a read-only description of
// how to fetch, decode, transform and cache one image. Once built it is
// never mutated, so it is safe for unsynchronized concurrent reads and may
// be shared freely across goroutines.
type ImageRequest struct {
	sourceURI                     *url.URL
	lowestPermittedLevel          RequestLevel
	resizeOptions                 *ResizeOptions
	rotationOptions               *RotationOptions
	decodeOptions                 *ImageDecodeOptions
	cacheChoice                   CacheChoice
	progressiveRenderingEnabled   bool
	localThumbnailPreviewsEnabled bool
	priority                      Priority
	postprocessor                 Postprocessor
	isDiskCacheExplicitlyEnabled  bool
	isDiskCacheEnabled            bool
	listener                      RequestListener
	mediaVariations               *MediaVariations
	isOrigin                      bool
}

// newImageRequest snapshots every builder field. The derived disk-cache
// flag is computed here, once, against the frozen source URI.
func newImageRequest(b *Builder) *ImageRequest {
	uri := *b.sourceURI
	return &ImageRequest{
		sourceURI:                     &uri,
		lowestPermittedLevel:          b.lowestPermittedLevel,
		resizeOptions:                 b.resizeOptions,
		rotationOptions:               b.rotationOptions,
		decodeOptions:                 b.decodeOptions,
		cacheChoice:                   b.cacheChoice,
		progressiveRenderingEnabled:   b.progressiveRenderingEnabled,
		localThumbnailPreviewsEnabled: b.localThumbnailPreviewsEnabled,
		priority:                      b.priority,
		postprocessor:                 b.postprocessor,
		isDiskCacheExplicitlyEnabled:  b.diskCacheEnabled,
		isDiskCacheEnabled:            b.diskCacheEnabled && uriutil.IsNetworkURI(b.sourceURI),
		listener:                      b.listener,
		mediaVariations:               b.mediaVariations,
		isOrigin:                      b.isOrigin,
	}
}

// SourceURI returns a copy of the source URI. The copy keeps the request
// immutable even if the caller edits the returned value.
func (r *ImageRequest) SourceURI() *url.URL {
	uri := *r.sourceURI
	return &uri
}

func (r *ImageRequest) LowestPermittedRequestLevel() RequestLevel {
	return r.lowestPermittedLevel
}

// ResizeOptions returns the resize options, or nil when none were set.
func (r *ImageRequest) ResizeOptions() *ResizeOptions {
	return r.resizeOptions
}

// RotationOptions returns the rotation options, or nil when none were set.
func (r *ImageRequest) RotationOptions() *RotationOptions {
	return r.rotationOptions
}

func (r *ImageRequest) ImageDecodeOptions() *ImageDecodeOptions {
	return r.decodeOptions
}

func (r *ImageRequest) CacheChoice() CacheChoice {
	return r.cacheChoice
}

func (r *ImageRequest) IsProgressiveRenderingEnabled() bool {
	return r.progressiveRenderingEnabled
}

func (r *ImageRequest) IsLocalThumbnailPreviewsEnabled() bool {
	return r.localThumbnailPreviewsEnabled
}

func (r *ImageRequest) Priority() Priority {
	return r.priority
}

// Postprocessor returns the postprocessor capability, or nil.
func (r *ImageRequest) Postprocessor() Postprocessor {
	return r.postprocessor
}

// IsDiskCacheEnabled reports whether this request may touch the disk
// cache. It is true only for network sources where DisableDiskCache was
// never called; local sources never use the disk cache.
func (r *ImageRequest) IsDiskCacheEnabled() bool {
	return r.isDiskCacheEnabled
}

// RequestListener returns the per-request listener, or nil.
func (r *ImageRequest) RequestListener() RequestListener {
	return r.listener
}

// MediaVariations returns the media-variations descriptor, or nil.
func (r *ImageRequest) MediaVariations() *MediaVariations {
	return r.mediaVariations
}

func (r *ImageRequest) IsOrigin() bool {
	return r.isOrigin
}
