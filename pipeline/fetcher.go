package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/kelindar/bitmap"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/omalloc/imago/api/defined/v1/request"
	"github.com/omalloc/imago/metrics"
	"github.com/omalloc/imago/pkg/uriutil"
)

// fetchChunkSize is the granularity of progressive-arrival accounting.
const fetchChunkSize = 16 * 1024

// FetchResult is the raw encoded payload of one source.
type FetchResult struct {
	Payload     []byte
	ContentType string
}

// ProgressFunc is invoked as chunks of a progressive fetch arrive.
// received marks the chunk indexes seen so far; total is the expected
// chunk count, 0 when the length is unknown up front.
type ProgressFunc func(received bitmap.Bitmap, total int)

// Fetcher resolves a request's source URI into encoded bytes. Network
// sources go through a shared rate limiter; local sources are read
// straight from disk.
type Fetcher struct {
	client       *http.Client
	limiter      *rate.Limiter
	assetRoot    string
	resourceRoot string
	maxPayload   uint64
	log          *zap.Logger
}

// ErrPayloadTooLarge is returned when a source exceeds the configured
// payload limit.
var ErrPayloadTooLarge = errors.New("payload exceeds configured limit")

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	// Client defaults to a client with a 30s timeout.
	Client *http.Client
	// RatePerSecond caps outbound fetches. Zero means unlimited.
	RatePerSecond float64
	// Burst is the limiter burst, minimum 1.
	Burst int
	// AssetRoot is the directory asset:// paths resolve under.
	AssetRoot string
	// ResourceRoot is the directory res:// ids resolve under.
	ResourceRoot string
	// MaxPayload rejects payloads larger than this. Zero means no limit.
	MaxPayload uint64
	Logger     *zap.Logger
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:       client,
		limiter:      rate.NewLimiter(limit, burst),
		assetRoot:    opts.AssetRoot,
		resourceRoot: opts.ResourceRoot,
		maxPayload:   opts.MaxPayload,
		log:          logger,
	}
}

// Fetch resolves the request's source. onProgress may be nil; it is only
// invoked for network fetches of progressive requests.
func (f *Fetcher) Fetch(ctx context.Context, req *request.ImageRequest, onProgress ProgressFunc) (*FetchResult, error) {
	uri := req.SourceURI()
	switch {
	case uriutil.IsNetworkURI(uri):
		if !req.IsProgressiveRenderingEnabled() {
			onProgress = nil
		}
		return f.fetchNetwork(ctx, uri, onProgress)
	case uriutil.IsLocalFileURI(uri):
		return f.fetchFile(uri.Path)
	case uriutil.IsLocalResourceURI(uri):
		return f.fetchResource(uri)
	case uriutil.IsLocalAssetURI(uri):
		return f.fetchAsset(uri)
	case uriutil.IsDataURI(uri):
		return fetchData(uri)
	}
	return nil, fmt.Errorf("unsupported source scheme %q", uri.Scheme)
}

func (f *Fetcher) fetchNetwork(ctx context.Context, uri *url.URL, onProgress ProgressFunc) (*FetchResult, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return nil, err
	}
	// explicit Accept-Encoding disables the transport's transparent
	// decompression; both encodings are handled below
	httpReq.Header.Set("Accept-Encoding", "br, gzip")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", uri, resp.StatusCode)
	}

	body, err := f.readAll(ctx, resp, onProgress)
	if err != nil {
		return nil, err
	}

	switch resp.Header.Get("Content-Encoding") {
	case "br":
		if body, err = io.ReadAll(brotli.NewReader(bytes.NewReader(body))); err != nil {
			return nil, fmt.Errorf("brotli decode: %w", err)
		}
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		if body, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
	}

	metrics.MarkFetch()
	metrics.FetchBytes.Observe(float64(len(body)))

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	return &FetchResult{Payload: body, ContentType: contentType}, nil
}

// readAll drains the response body chunk-wise, tracking arrival per chunk
// for progressive rendering callbacks.
func (f *Fetcher) readAll(ctx context.Context, resp *http.Response, onProgress ProgressFunc) ([]byte, error) {
	total := 0
	if resp.ContentLength > 0 {
		total = int((resp.ContentLength + fetchChunkSize - 1) / fetchChunkSize)
	}

	var (
		received bitmap.Bitmap
		body     []byte
		chunk    = make([]byte, fetchChunkSize)
		index    uint32
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := io.ReadFull(resp.Body, chunk)
		if n > 0 {
			body = append(body, chunk[:n]...)
			if f.maxPayload > 0 && uint64(len(body)) > f.maxPayload {
				return nil, ErrPayloadTooLarge
			}
			if onProgress != nil {
				received.Set(index)
				onProgress(received, total)
			}
			index++
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return body, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (f *Fetcher) fetchFile(path string) (*FetchResult, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if f.maxPayload > 0 && uint64(len(buf)) > f.maxPayload {
		return nil, ErrPayloadTooLarge
	}
	return &FetchResult{Payload: buf, ContentType: http.DetectContentType(buf)}, nil
}

func (f *Fetcher) fetchResource(uri *url.URL) (*FetchResult, error) {
	if f.resourceRoot == "" {
		return nil, fmt.Errorf("no resource root configured for %s", uri)
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(uri.Path, "/"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad resource id in %s: %w", uri, err)
	}
	return f.fetchFile(filepath.Join(f.resourceRoot, strconv.FormatUint(id, 10)))
}

func (f *Fetcher) fetchAsset(uri *url.URL) (*FetchResult, error) {
	if f.assetRoot == "" {
		return nil, fmt.Errorf("no asset root configured for %s", uri)
	}
	rel := strings.TrimPrefix(uri.Path, "/")
	dst := filepath.Join(f.assetRoot, filepath.FromSlash(rel))
	// an asset path must stay inside the asset root
	if !strings.HasPrefix(dst, filepath.Clean(f.assetRoot)+string(os.PathSeparator)) {
		return nil, fmt.Errorf("asset path %s escapes asset root", uri.Path)
	}
	return f.fetchFile(dst)
}

func fetchData(uri *url.URL) (*FetchResult, error) {
	// data:[<mediatype>][;base64],<payload>
	meta, payload, ok := strings.Cut(uri.Opaque, ",")
	if !ok {
		return nil, fmt.Errorf("malformed data URI")
	}
	contentType := strings.TrimSuffix(meta, ";base64")
	if strings.HasSuffix(meta, ";base64") {
		buf, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("data URI base64: %w", err)
		}
		return &FetchResult{Payload: buf, ContentType: contentType}, nil
	}
	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return nil, err
	}
	return &FetchResult{Payload: []byte(unescaped), ContentType: contentType}, nil
}
