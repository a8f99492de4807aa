package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/google/uuid"
	"github.com/kelindar/bitmap"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/omalloc/imago/api/defined/v1/request"
	"github.com/omalloc/imago/cache"
	"github.com/omalloc/imago/cache/disk"
	"github.com/omalloc/imago/cache/memory"
	"github.com/omalloc/imago/metrics"
)

// ErrNotCached is returned when the request's lowest permitted level rules
// out every tier that could have produced the image.
var ErrNotCached = errors.New("pipeline: image not available at permitted levels")

// Result is the final product of one request.
type Result struct {
	RequestID string
	// Image is the decoded (and postprocessed) bitmap.
	Image  image.Image
	Format string
	// Encoded holds the undecoded payload when the result came from the
	// encoded tiers or a fetch; nil on a bitmap memory hit.
	Encoded     []byte
	ContentType string
	// Level is the tier that produced the image.
	Level request.RequestLevel
}

// Options wires the pipeline's tiers together. Caches is the only
// mandatory field; a nil Disk disables the disk tier entirely.
type Options struct {
	Caches    *memory.Caches
	Disk      *disk.Cache
	DiskSmall *disk.Cache
	Fetcher   *Fetcher
	Decoder   *Decoder
	// Listeners observe every request, in addition to the request's own
	// listener.
	Listeners []request.RequestListener
	// MaxConcurrent bounds concurrent fetch+decode work. Defaults to 16.
	MaxConcurrent int64
	Logger        *zap.Logger
}

// Pipeline resolves image requests through the tiered caches, deduplicating
// concurrent work on the same rendition.
type Pipeline struct {
	caches    *memory.Caches
	disk      *disk.Cache
	diskSmall *disk.Cache
	fetcher   *Fetcher
	decoder   *Decoder
	listeners []request.RequestListener
	sem       *semaphore.Weighted
	capacity  int64
	sf        singleflight.Group
	log       *zap.Logger
}

func New(opts Options) (*Pipeline, error) {
	caches := opts.Caches
	if caches == nil {
		var err error
		if caches, err = memory.NewCaches(memory.DefaultCachesConfig()); err != nil {
			return nil, err
		}
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = NewFetcher(FetcherOptions{Logger: opts.Logger})
	}
	decoder := opts.Decoder
	if decoder == nil {
		decoder = NewDecoder(opts.Logger)
	}
	capacity := opts.MaxConcurrent
	if capacity <= 0 {
		capacity = 16
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		caches:    caches,
		disk:      opts.Disk,
		diskSmall: opts.DiskSmall,
		fetcher:   fetcher,
		decoder:   decoder,
		listeners: opts.Listeners,
		sem:       semaphore.NewWeighted(capacity),
		capacity:  capacity,
		log:       logger,
	}, nil
}

// Close releases the disk tiers.
func (p *Pipeline) Close() error {
	var errs []error
	if p.disk != nil {
		errs = append(errs, p.disk.Close())
	}
	if p.diskSmall != nil && p.diskSmall != p.disk {
		errs = append(errs, p.diskSmall.Close())
	}
	return errors.Join(errs...)
}

// Fetch resolves req, walking the tiers from the bitmap memory cache down
// to a full fetch, bounded below by the request's lowest permitted level.
func (p *Pipeline) Fetch(ctx context.Context, req *request.ImageRequest) (*Result, error) {
	requestID := uuid.NewString()
	p.notifyStart(ctx, requestID, req)

	res, err := p.resolve(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			metrics.RequestsTotal.WithLabelValues(req.LowestPermittedRequestLevel().String(), "cancelled").Inc()
			p.notifyCancellation(requestID, req)
			return nil, err
		}
		metrics.RequestsTotal.WithLabelValues(req.LowestPermittedRequestLevel().String(), "failure").Inc()
		p.notifyFailure(ctx, requestID, req, err)
		return nil, err
	}

	res.RequestID = requestID
	metrics.RequestsTotal.WithLabelValues(res.Level.String(), "success").Inc()
	p.notifySuccess(ctx, requestID, req, res.Level)
	return res, nil
}

func (p *Pipeline) resolve(ctx context.Context, req *request.ImageRequest) (*Result, error) {
	bitmapKey := cache.BitmapKeyForRequest(req)

	// the bitmap memory tier is permitted at every level
	if img, ok := p.caches.Bitmap(req.CacheChoice()).Get(bitmapKey); ok {
		metrics.CacheHitsTotal.WithLabelValues("bitmap", req.CacheChoice().String()).Inc()
		return &Result{Image: img, Level: request.LevelBitmapMemoryCache}, nil
	}

	// concurrent requests for the same rendition share one production
	v, err, _ := p.sf.Do(bitmapKey.HashStr(), func() (any, error) {
		return p.produce(ctx, req, bitmapKey)
	})
	if err != nil {
		return nil, err
	}
	res := v.(*Result)
	// singleflight shares one *Result across callers; copy before the
	// caller-specific fields are set
	out := *res
	return &out, nil
}

func (p *Pipeline) produce(ctx context.Context, req *request.ImageRequest, bitmapKey *cache.Key) (*Result, error) {
	floor := req.LowestPermittedRequestLevel()
	encKey := cache.EncodedKeyForRequest(req)
	encodedMem := p.caches.Encoded(req.CacheChoice())

	if request.LevelEncodedMemoryCache >= floor {
		if payload, ok := encodedMem.Get(encKey); ok {
			metrics.CacheHitsTotal.WithLabelValues("encoded", req.CacheChoice().String()).Inc()
			return p.finish(ctx, req, bitmapKey, payload, "", request.LevelEncodedMemoryCache)
		}
	}

	d := p.diskFor(req.CacheChoice())
	if request.LevelDiskCache >= floor && req.IsDiskCacheEnabled() && d != nil {
		payload, meta, err := d.Get(ctx, encKey)
		switch {
		case err == nil:
			metrics.CacheHitsTotal.WithLabelValues("disk", req.CacheChoice().String()).Inc()
			encodedMem.Set(encKey, payload)
			return p.finish(ctx, req, bitmapKey, payload, meta.ContentType, request.LevelDiskCache)
		case !errors.Is(err, cache.ErrNotFound):
			p.log.Warn("disk cache read failed", zap.String("key", encKey.HashStr()), zap.Error(err))
		}
	}

	if request.LevelFullFetch < floor {
		return nil, ErrNotCached
	}

	weight := priorityWeight(req.Priority())
	if weight > p.capacity {
		weight = p.capacity
	}
	if err := p.sem.Acquire(ctx, weight); err != nil {
		return nil, err
	}
	defer p.sem.Release(weight)

	if res, ok := p.lookupVariant(ctx, req, bitmapKey); ok {
		return res, nil
	}

	fr, err := p.fetcher.Fetch(ctx, req, p.progressFunc(req))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.SourceURI(), err)
	}

	encodedMem.Set(encKey, fr.Payload)
	if req.IsDiskCacheEnabled() && d != nil {
		if err := d.Put(ctx, encKey, fr.Payload, fr.ContentType); err != nil {
			p.log.Warn("disk cache write failed", zap.String("key", encKey.HashStr()), zap.Error(err))
		}
	}
	return p.finish(ctx, req, bitmapKey, fr.Payload, fr.ContentType, request.LevelFullFetch)
}

// finish decodes payload, runs the postprocessor, and installs the bitmap
// into the memory tier.
func (p *Pipeline) finish(ctx context.Context, req *request.ImageRequest, bitmapKey *cache.Key, payload []byte, contentType string, level request.RequestLevel) (*Result, error) {
	decoded, err := p.decoder.Decode(ctx, req, payload)
	if err != nil {
		return nil, err
	}
	img := decoded.Image
	if pp := req.Postprocessor(); pp != nil {
		if img, err = pp.Process(ctx, img); err != nil {
			return nil, fmt.Errorf("postprocess %s: %w", pp.Name(), err)
		}
	}
	p.caches.Bitmap(req.CacheChoice()).Set(bitmapKey, img)

	return &Result{
		Image:       img,
		Format:      decoded.Format,
		Encoded:     payload,
		ContentType: contentType,
		Level:       level,
	}, nil
}

// lookupVariant serves the request from another cached rendition of the
// same media, keyed by the request's media-variations id. Only consulted
// right before a full fetch.
func (p *Pipeline) lookupVariant(ctx context.Context, req *request.ImageRequest, bitmapKey *cache.Key) (*Result, bool) {
	mv := req.MediaVariations()
	if mv == nil {
		return nil, false
	}
	// forced variations never stand in for the final result, unless the
	// caller opted into preview-quality renditions
	if mv.ForceRequestForSpecifiedURI() && !req.IsLocalThumbnailPreviewsEnabled() {
		return nil, false
	}
	d := p.diskFor(req.CacheChoice())
	if d == nil || !req.IsDiskCacheEnabled() {
		return nil, false
	}

	var found *cache.Metadata
	err := d.Iterate(ctx, func(_ []byte, meta *cache.Metadata) error {
		if meta.MediaID == mv.MediaID() {
			found = meta
			return errStopIteration
		}
		return nil
	})
	if found == nil || (err != nil && !errors.Is(err, errStopIteration)) {
		return nil, false
	}

	payload, meta, err := d.Get(ctx, cache.KeyForRaw(found.Key, found.MediaID))
	if err != nil {
		return nil, false
	}
	res, err := p.finish(ctx, req, bitmapKey, payload, meta.ContentType, request.LevelDiskCache)
	if err != nil {
		p.log.Debug("variant decode failed, falling through to fetch",
			zap.String("media_id", mv.MediaID()), zap.Error(err))
		return nil, false
	}
	p.log.Debug("served media variant",
		zap.String("media_id", mv.MediaID()), zap.String("variant_key", found.Key))
	return res, true
}

var errStopIteration = errors.New("stop iteration")

func (p *Pipeline) progressFunc(req *request.ImageRequest) ProgressFunc {
	if !req.IsProgressiveRenderingEnabled() {
		return nil
	}
	uri := req.SourceURI().String()
	return func(received bitmap.Bitmap, total int) {
		p.log.Debug("progressive chunk",
			zap.String("uri", uri),
			zap.Int("received", received.Count()),
			zap.Int("total", total))
	}
}

func (p *Pipeline) diskFor(choice request.CacheChoice) *disk.Cache {
	if choice == request.CacheChoiceSmall && p.diskSmall != nil {
		return p.diskSmall
	}
	return p.disk
}

// priorityWeight maps priority to semaphore weight: lower priorities claim
// more slots, so high-priority work keeps headroom under load.
func priorityWeight(pr request.Priority) int64 {
	switch pr {
	case request.PriorityHigh:
		return 1
	case request.PriorityMedium:
		return 2
	default:
		return 4
	}
}

func (p *Pipeline) notifyStart(ctx context.Context, requestID string, req *request.ImageRequest) {
	if l := req.RequestListener(); l != nil {
		l.OnRequestStart(requestID, req)
	}
	for _, l := range p.listeners {
		l.OnRequestStart(requestID, req)
	}
	publishStarted(ctx, RequestEvent{RequestID: requestID, Request: req})
}

func (p *Pipeline) notifySuccess(ctx context.Context, requestID string, req *request.ImageRequest, level request.RequestLevel) {
	if l := req.RequestListener(); l != nil {
		l.OnRequestSuccess(requestID, req)
	}
	for _, l := range p.listeners {
		l.OnRequestSuccess(requestID, req)
	}
	publishCompleted(ctx, RequestEvent{RequestID: requestID, Request: req, Level: level})
}

func (p *Pipeline) notifyFailure(ctx context.Context, requestID string, req *request.ImageRequest, err error) {
	if l := req.RequestListener(); l != nil {
		l.OnRequestFailure(requestID, req, err)
	}
	for _, l := range p.listeners {
		l.OnRequestFailure(requestID, req, err)
	}
	publishFailed(ctx, RequestEvent{RequestID: requestID, Request: req, Err: err})
}

func (p *Pipeline) notifyCancellation(requestID string, req *request.ImageRequest) {
	if l := req.RequestListener(); l != nil {
		l.OnRequestCancellation(requestID, req)
	}
	for _, l := range p.listeners {
		l.OnRequestCancellation(requestID, req)
	}
}
