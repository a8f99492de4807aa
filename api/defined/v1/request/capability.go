package request

import (
	"context"
	"image"
)

// Postprocessor transforms the decoded bitmap before it is handed to the
// caller and before it enters the bitmap memory cache.
type Postprocessor interface {
	// Name identifies the postprocessor in logs and metrics.
	Name() string
	// CacheKey distinguishes cache entries produced by different
	// postprocessor configurations of the same source.
	CacheKey() string
	// Process returns the transformed image. It must not mutate src.
	Process(ctx context.Context, src image.Image) (image.Image, error)
}

// RequestListener observes the lifecycle of a single request as it moves
// through the pipeline. Implementations must be safe for concurrent use.
type RequestListener interface {
	OnRequestStart(requestID string, req *ImageRequest)
	OnRequestSuccess(requestID string, req *ImageRequest)
	OnRequestFailure(requestID string, req *ImageRequest, err error)
	OnRequestCancellation(requestID string, req *ImageRequest)
}
