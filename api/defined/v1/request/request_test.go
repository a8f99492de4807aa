package request

import (
	"context"
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingListener) record(ev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *recordingListener) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *recordingListener) OnRequestStart(requestID string, req *ImageRequest) {
	l.record("start")
}

func (l *recordingListener) OnRequestSuccess(requestID string, req *ImageRequest) {
	l.record("success")
}

func (l *recordingListener) OnRequestFailure(requestID string, req *ImageRequest, err error) {
	l.record("failure")
}

func (l *recordingListener) OnRequestCancellation(requestID string, req *ImageRequest) {
	l.record("cancel")
}

type identityPostprocessor struct{}

func (identityPostprocessor) Name() string     { return "identity" }
func (identityPostprocessor) CacheKey() string { return "identity" }
func (identityPostprocessor) Process(_ context.Context, src image.Image) (image.Image, error) {
	return src, nil
}

func TestFromRequestRoundTrip(t *testing.T) {
	original, err := NewBuilderWithSource(parseURI(t, "https://cdn.example.com/a.jpg")).
		SetLowestPermittedRequestLevel(LevelEncodedMemoryCache).
		SetResizeOptions(NewResizeOptions(640, 480)).
		SetRotationOptions(AutoRotate()).
		SetCacheChoice(CacheChoiceSmall).
		SetProgressiveRenderingEnabled(true).
		SetLocalThumbnailPreviewsEnabled(true).
		SetRequestPriority(PriorityMedium).
		SetPostprocessor(identityPostprocessor{}).
		SetRequestListener(&recordingListener{}).
		SetMediaVariationsForMediaID("media-9").
		SetOrigin(true).
		DisableDiskCache().
		Build()
	require.NoError(t, err)

	copied, err := FromRequest(original).Build()
	require.NoError(t, err)

	assert.Equal(t, original.SourceURI().String(), copied.SourceURI().String())
	assert.Equal(t, original.LowestPermittedRequestLevel(), copied.LowestPermittedRequestLevel())
	assert.Equal(t, original.ResizeOptions(), copied.ResizeOptions())
	assert.Equal(t, original.RotationOptions(), copied.RotationOptions())
	assert.Same(t, original.ImageDecodeOptions(), copied.ImageDecodeOptions())
	assert.Equal(t, original.CacheChoice(), copied.CacheChoice())
	assert.Equal(t, original.IsProgressiveRenderingEnabled(), copied.IsProgressiveRenderingEnabled())
	assert.Equal(t, original.IsLocalThumbnailPreviewsEnabled(), copied.IsLocalThumbnailPreviewsEnabled())
	assert.Equal(t, original.Priority(), copied.Priority())
	assert.Equal(t, original.Postprocessor(), copied.Postprocessor())
	assert.Equal(t, original.RequestListener(), copied.RequestListener())
	assert.Equal(t, original.MediaVariations(), copied.MediaVariations())
	assert.Equal(t, original.IsOrigin(), copied.IsOrigin())
	assert.Equal(t, original.IsDiskCacheEnabled(), copied.IsDiskCacheEnabled())
}

func TestFromRequestPreservesDisabledDiskCacheOnLocalSource(t *testing.T) {
	// A local source yields IsDiskCacheEnabled == false either way; the
	// copy must still carry the caller's explicit opt-out so that
	// re-targeting the copy at a network source keeps it off.
	original, err := NewBuilderWithSource(parseURI(t, "file:///tmp/a.jpg")).
		DisableDiskCache().
		Build()
	require.NoError(t, err)

	retargeted, err := FromRequest(original).
		SetSource(parseURI(t, "https://cdn.example.com/a.jpg")).
		Build()
	require.NoError(t, err)
	assert.False(t, retargeted.IsDiskCacheEnabled())
}

func TestSourceURIReturnsCopy(t *testing.T) {
	req, err := NewBuilderWithSource(parseURI(t, "https://cdn.example.com/a.jpg")).Build()
	require.NoError(t, err)

	uri := req.SourceURI()
	uri.Path = "/mutated.jpg"

	assert.Equal(t, "https://cdn.example.com/a.jpg", req.SourceURI().String())
}

func TestRequestLevelMax(t *testing.T) {
	assert.Equal(t, LevelDiskCache, LevelFullFetch.Max(LevelDiskCache))
	assert.Equal(t, LevelBitmapMemoryCache, LevelBitmapMemoryCache.Max(LevelEncodedMemoryCache))
}

func TestConcurrentReadsOfBuiltRequest(t *testing.T) {
	req, err := NewBuilderWithSource(parseURI(t, "https://cdn.example.com/a.jpg")).
		SetResizeOptions(NewResizeOptions(100, 100)).
		Build()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = req.SourceURI().String()
			_ = req.ResizeOptions().Width
			_ = req.IsDiskCacheEnabled()
		}()
	}
	wg.Wait()
}
