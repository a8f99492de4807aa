package request

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/omalloc/imago/pkg/uriutil"
)

// Builder accumulates the settings of an image request. It is mutable and
// not safe for concurrent use; Build validates the accumulated state and
// snapshots it into an immutable ImageRequest. The builder stays usable
// after Build, so one builder can produce several requests.
type Builder struct {
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
	diskCacheEnabled              bool
	listener                      RequestListener
	mediaVariations               *MediaVariations
	isOrigin                      bool
}

// BuilderError reports why a Build was rejected.
type BuilderError struct {
	Cause string
}

func (e *BuilderError) Error() string {
	return "invalid request builder: " + e.Cause
}

func newBuilder() *Builder {
	return &Builder{
		lowestPermittedLevel:        LevelFullFetch,
		decodeOptions:               DefaultDecodeOptions(),
		cacheChoice:                 CacheChoiceDefault,
		progressiveRenderingEnabled: DefaultRequestConfig().ProgressiveRenderingEnabled,
		priority:                    PriorityHigh,
		diskCacheEnabled:            true,
	}
}

// NewBuilderWithSource creates a builder for the given source URI. Both
// network and local URIs are supported; the effective disk-cache flag of
// the built request depends on the URI kind, see ImageRequest.IsDiskCacheEnabled.
func NewBuilderWithSource(uri *url.URL) *Builder {
	return newBuilder().SetSource(uri)
}

// NewBuilderWithResourceID creates a builder for a packaged resource image.
func NewBuilderWithResourceID(resourceID int) *Builder {
	return NewBuilderWithSource(uriutil.URIForResourceID(resourceID))
}

// FromRequest creates a builder carrying every parameter of an existing
// request. Building it unchanged yields an equivalent request.
func FromRequest(req *ImageRequest) *Builder {
	b := NewBuilderWithSource(req.SourceURI()).
		SetLowestPermittedRequestLevel(req.LowestPermittedRequestLevel()).
		SetResizeOptions(req.ResizeOptions()).
		SetRotationOptions(req.RotationOptions()).
		SetImageDecodeOptions(req.ImageDecodeOptions()).
		SetCacheChoice(req.CacheChoice()).
		SetProgressiveRenderingEnabled(req.IsProgressiveRenderingEnabled()).
		SetLocalThumbnailPreviewsEnabled(req.IsLocalThumbnailPreviewsEnabled()).
		SetRequestPriority(req.Priority()).
		SetPostprocessor(req.Postprocessor()).
		SetRequestListener(req.RequestListener()).
		SetMediaVariations(req.MediaVariations()).
		SetOrigin(req.IsOrigin())
	if !req.isDiskCacheExplicitlyEnabled {
		b.DisableDiskCache()
	}
	return b
}

// SetSource replaces the source URI.
func (b *Builder) SetSource(uri *url.URL) *Builder {
	b.sourceURI = uri
	return b
}

// SourceURI returns the source URI currently staged in the builder.
func (b *Builder) SourceURI() *url.URL {
	return b.sourceURI
}

// SetLowestPermittedRequestLevel sets the floor on how early a cached
// result may satisfy the request.
func (b *Builder) SetLowestPermittedRequestLevel(level RequestLevel) *Builder {
	b.lowestPermittedLevel = level
	return b
}

// SetResizeOptions sets the resize options; nil clears them.
func (b *Builder) SetResizeOptions(opts *ResizeOptions) *Builder {
	b.resizeOptions = opts
	return b
}

// SetRotationOptions sets the rotation options; nil clears them.
func (b *Builder) SetRotationOptions(opts *RotationOptions) *Builder {
	b.rotationOptions = opts
	return b
}

// SetAutoRotate is sugar over SetRotationOptions: enabled selects rotation
// by image metadata, disabled selects no rotation.
func (b *Builder) SetAutoRotate(enabled bool) *Builder {
	if enabled {
		return b.SetRotationOptions(AutoRotate())
	}
	return b.SetRotationOptions(DisableRotation())
}

func (b *Builder) SetImageDecodeOptions(opts *ImageDecodeOptions) *Builder {
	b.decodeOptions = opts
	return b
}

// SetCacheChoice selects which cache and eviction policy the downstream
// machinery applies to this image.
func (b *Builder) SetCacheChoice(choice CacheChoice) *Builder {
	b.cacheChoice = choice
	return b
}

func (b *Builder) SetProgressiveRenderingEnabled(enabled bool) *Builder {
	b.progressiveRenderingEnabled = enabled
	return b
}

func (b *Builder) SetLocalThumbnailPreviewsEnabled(enabled bool) *Builder {
	b.localThumbnailPreviewsEnabled = enabled
	return b
}

func (b *Builder) SetRequestPriority(priority Priority) *Builder {
	b.priority = priority
	return b
}

// SetPostprocessor sets the bitmap postprocessor; nil clears it.
func (b *Builder) SetPostprocessor(p Postprocessor) *Builder {
	b.postprocessor = p
	return b
}

// DisableDiskCache turns the disk cache off for this request regardless of
// where the image comes from. There is no way to re-enable it on the same
// builder.
func (b *Builder) DisableDiskCache() *Builder {
	b.diskCacheEnabled = false
	return b
}

// SetRequestListener sets a listener observing just this request, in
// addition to any pipeline-wide listeners; nil clears it.
func (b *Builder) SetRequestListener(l RequestListener) *Builder {
	b.listener = l
	return b
}

// SetMediaVariations sets the media-variations descriptor; nil clears it.
func (b *Builder) SetMediaVariations(v *MediaVariations) *Builder {
	b.mediaVariations = v
	return b
}

// SetMediaVariationsForMediaID is sugar for SetMediaVariations with a
// descriptor built from a single media id.
func (b *Builder) SetMediaVariationsForMediaID(mediaID string) *Builder {
	return b.SetMediaVariations(VariationsForMediaID(mediaID))
}

func (b *Builder) SetOrigin(origin bool) *Builder {
	b.isOrigin = origin
	return b
}

// Build validates the staged state and returns an immutable snapshot of
// it. On validation failure it returns a *BuilderError and no request.
// The builder itself is untouched either way.
func (b *Builder) Build() (*ImageRequest, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	return newImageRequest(b), nil
}

// isHierarchical reports whether the URI carries a real path component.
// An opaque URI like "res:42" has no path and counts as relative.
func isHierarchical(uri *url.URL) bool {
	return uri.Opaque == ""
}

func (b *Builder) validate() error {
	if b.sourceURI == nil {
		return &BuilderError{Cause: "source must be set"}
	}

	// Packaged resources are addressed by a statically generated numeric
	// id carried as the only path segment.
	if uriutil.IsLocalResourceURI(b.sourceURI) {
		if !isHierarchical(b.sourceURI) {
			return &BuilderError{Cause: "resource URI path must be absolute"}
		}
		if b.sourceURI.Path == "" {
			return &BuilderError{Cause: "resource URI path must not be empty"}
		}
		if _, err := strconv.ParseUint(strings.TrimPrefix(b.sourceURI.Path, "/"), 10, 64); err != nil {
			return &BuilderError{Cause: "resource URI path must be a resource id"}
		}
	}

	// Assets are resolved relative to the configured asset folder and the
	// caller must hand over the rooted path.
	if uriutil.IsLocalAssetURI(b.sourceURI) && !isHierarchical(b.sourceURI) {
		return &BuilderError{Cause: "asset URI path must be absolute"}
	}

	return nil
}
