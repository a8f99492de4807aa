package request

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseURI(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestBuildWithoutSourceFails(t *testing.T) {
	_, err := newBuilder().Build()

	var berr *BuilderError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "source must be set", berr.Cause)
}

func TestBuildNetworkSource(t *testing.T) {
	req, err := NewBuilderWithSource(parseURI(t, "https://cdn.example.com/a.jpg")).Build()

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.jpg", req.SourceURI().String())
}

func TestBuildResourceSource(t *testing.T) {
	req, err := NewBuilderWithResourceID(42).Build()

	require.NoError(t, err)
	assert.Equal(t, "res:///42", req.SourceURI().String())
}

func TestBuildResourceRelativePathFails(t *testing.T) {
	// res:42 parses as an opaque URI with no path component.
	_, err := NewBuilderWithSource(parseURI(t, "res:42")).Build()

	var berr *BuilderError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "resource URI path must be absolute", berr.Cause)
}

func TestBuildResourceEmptyPathFails(t *testing.T) {
	_, err := NewBuilderWithSource(parseURI(t, "res://")).Build()

	var berr *BuilderError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "resource URI path must not be empty", berr.Cause)
}

func TestBuildResourceNonNumericPathFails(t *testing.T) {
	_, err := NewBuilderWithSource(parseURI(t, "res:///abc")).Build()

	var berr *BuilderError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "resource URI path must be a resource id", berr.Cause)
}

func TestBuildResourceNegativeIDFails(t *testing.T) {
	_, err := NewBuilderWithSource(parseURI(t, "res:///-7")).Build()

	var berr *BuilderError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "resource URI path must be a resource id", berr.Cause)
}

func TestBuildAssetSource(t *testing.T) {
	req, err := NewBuilderWithSource(parseURI(t, "asset:///icons/star.png")).Build()

	require.NoError(t, err)
	assert.Equal(t, "asset:///icons/star.png", req.SourceURI().String())
}

func TestBuildAssetRelativePathFails(t *testing.T) {
	_, err := NewBuilderWithSource(parseURI(t, "asset:icons/star.png")).Build()

	var berr *BuilderError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "asset URI path must be absolute", berr.Cause)
}

func TestBuilderErrorMessage(t *testing.T) {
	_, err := newBuilder().Build()
	assert.EqualError(t, err, "invalid request builder: source must be set")
}

func TestSettersChain(t *testing.T) {
	listener := &recordingListener{}
	req, err := NewBuilderWithSource(parseURI(t, "http://cdn.example.com/a.jpg")).
		SetLowestPermittedRequestLevel(LevelDiskCache).
		SetResizeOptions(NewResizeOptions(320, 240)).
		SetRotationOptions(ForceRotation(90)).
		SetCacheChoice(CacheChoiceSmall).
		SetProgressiveRenderingEnabled(true).
		SetLocalThumbnailPreviewsEnabled(true).
		SetRequestPriority(PriorityLow).
		SetRequestListener(listener).
		SetMediaVariationsForMediaID("media-1").
		SetOrigin(true).
		Build()

	require.NoError(t, err)
	assert.Equal(t, LevelDiskCache, req.LowestPermittedRequestLevel())
	assert.Equal(t, 320, req.ResizeOptions().Width)
	assert.Equal(t, 240, req.ResizeOptions().Height)
	assert.Equal(t, 90, req.RotationOptions().ForcedAngle())
	assert.Equal(t, CacheChoiceSmall, req.CacheChoice())
	assert.True(t, req.IsProgressiveRenderingEnabled())
	assert.True(t, req.IsLocalThumbnailPreviewsEnabled())
	assert.Equal(t, PriorityLow, req.Priority())
	assert.Same(t, listener, req.RequestListener().(*recordingListener))
	assert.Equal(t, "media-1", req.MediaVariations().MediaID())
	assert.True(t, req.IsOrigin())
}

func TestDefaults(t *testing.T) {
	req, err := NewBuilderWithSource(parseURI(t, "http://cdn.example.com/a.jpg")).Build()

	require.NoError(t, err)
	assert.Equal(t, LevelFullFetch, req.LowestPermittedRequestLevel())
	assert.Nil(t, req.ResizeOptions())
	assert.Nil(t, req.RotationOptions())
	assert.Same(t, DefaultDecodeOptions(), req.ImageDecodeOptions())
	assert.Equal(t, CacheChoiceDefault, req.CacheChoice())
	assert.False(t, req.IsLocalThumbnailPreviewsEnabled())
	assert.Equal(t, PriorityHigh, req.Priority())
	assert.Nil(t, req.Postprocessor())
	assert.Nil(t, req.RequestListener())
	assert.Nil(t, req.MediaVariations())
	assert.False(t, req.IsOrigin())
}

func TestSetAutoRotate(t *testing.T) {
	b := NewBuilderWithSource(parseURI(t, "http://cdn.example.com/a.jpg"))

	req, err := b.SetAutoRotate(true).Build()
	require.NoError(t, err)
	assert.True(t, req.RotationOptions().UseImageMetadata())
	assert.True(t, req.RotationOptions().RotationEnabled())

	req, err = b.SetAutoRotate(false).Build()
	require.NoError(t, err)
	assert.False(t, req.RotationOptions().UseImageMetadata())
	assert.False(t, req.RotationOptions().RotationEnabled())
}

func TestDiskCacheDerivedFlag(t *testing.T) {
	network := parseURI(t, "https://cdn.example.com/a.jpg")

	req, err := NewBuilderWithSource(network).Build()
	require.NoError(t, err)
	assert.True(t, req.IsDiskCacheEnabled())

	req, err = NewBuilderWithSource(network).DisableDiskCache().Build()
	require.NoError(t, err)
	assert.False(t, req.IsDiskCacheEnabled())

	// Local sources never use the disk cache, whatever the flag says.
	req, err = NewBuilderWithSource(parseURI(t, "file:///tmp/a.jpg")).Build()
	require.NoError(t, err)
	assert.False(t, req.IsDiskCacheEnabled())
}

func TestProgressiveDefaultCapturedAtCreation(t *testing.T) {
	old := DefaultRequestConfig()
	defer SetDefaultRequestConfig(old)

	SetDefaultRequestConfig(RequestConfig{ProgressiveRenderingEnabled: true})
	b := NewBuilderWithSource(parseURI(t, "http://cdn.example.com/a.jpg"))

	// Flipping the pipeline-wide default must not leak into the builder
	// that already exists.
	SetDefaultRequestConfig(RequestConfig{ProgressiveRenderingEnabled: false})

	req, err := b.Build()
	require.NoError(t, err)
	assert.True(t, req.IsProgressiveRenderingEnabled())

	req2, err := NewBuilderWithSource(parseURI(t, "http://cdn.example.com/a.jpg")).Build()
	require.NoError(t, err)
	assert.False(t, req2.IsProgressiveRenderingEnabled())
}

func TestBuilderReusableAfterBuild(t *testing.T) {
	b := NewBuilderWithSource(parseURI(t, "http://cdn.example.com/a.jpg"))

	first, err := b.Build()
	require.NoError(t, err)

	second, err := b.SetRequestPriority(PriorityLow).Build()
	require.NoError(t, err)

	// The first snapshot is unaffected by mutation after the fact.
	assert.Equal(t, PriorityHigh, first.Priority())
	assert.Equal(t, PriorityLow, second.Priority())
}

func TestBuildFailureLeavesBuilderUsable(t *testing.T) {
	b := newBuilder()

	_, err := b.Build()
	require.Error(t, err)

	req, err := b.SetSource(parseURI(t, "http://cdn.example.com/a.jpg")).Build()
	require.NoError(t, err)
	assert.NotNil(t, req)
}
