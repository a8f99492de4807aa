package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"github.com/omalloc/imago/api/defined/v1/request"
	"github.com/omalloc/imago/metrics"
	"github.com/omalloc/imago/pipeline"
	"github.com/omalloc/imago/pkg/encoding"
)

func (s *HTTPServer) handleImage(w http.ResponseWriter, r *http.Request) {
	req, err := s.buildRequest(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.pipe.Fetch(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrNotCached):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, context.Canceled):
			// client went away
		default:
			s.log.Error("image fetch failed", zap.Stringer("src", req.SourceURI()), zap.Error(err))
			http.Error(w, "fetch failed", http.StatusBadGateway)
		}
		return
	}

	format := lo.CoalesceOrEmpty(r.URL.Query().Get("format"), res.Format)
	outFormat, contentType := encodeFormat(format)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Request-Id", res.RequestID)
	w.Header().Set("X-Cache-Level", res.Level.String())
	if err := imaging.Encode(w, res.Image, outFormat); err != nil {
		s.log.Warn("response encode failed", zap.String("request_id", res.RequestID), zap.Error(err))
	}
}

// encodeFormat maps a requested output format to an encoder. Formats we
// can decode but not encode (webp, heic) fall back to png.
func encodeFormat(format string) (imaging.Format, string) {
	switch format {
	case "jpg", "jpeg":
		return imaging.JPEG, "image/jpeg"
	case "gif":
		return imaging.GIF, "image/gif"
	case "bmp":
		return imaging.BMP, "image/bmp"
	case "tiff":
		return imaging.TIFF, "image/tiff"
	default:
		return imaging.PNG, "image/png"
	}
}

func (s *HTTPServer) buildRequest(q url.Values) (*request.ImageRequest, error) {
	src := q.Get("src")
	if src == "" {
		return nil, errors.New("missing src parameter")
	}
	uri, err := url.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("bad src: %w", err)
	}

	b := request.NewBuilderWithSource(uri)

	if ws, hs := q.Get("w"), q.Get("h"); ws != "" || hs != "" {
		width, _ := strconv.Atoi(ws)
		height, _ := strconv.Atoi(hs)
		if width <= 0 || height <= 0 {
			return nil, errors.New("w and h must both be positive")
		}
		b.SetResizeOptions(request.NewResizeOptions(width, height))
	}

	if v := q.Get("rotate"); v != "" {
		angle, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("bad rotate: %w", err)
		}
		b.SetRotationOptions(request.ForceRotation(angle))
	} else if q.Get("auto_rotate") == "true" {
		b.SetAutoRotate(true)
	}

	if q.Get("progressive") == "true" {
		b.SetProgressiveRenderingEnabled(true)
	}
	if q.Get("thumb_previews") == "true" {
		b.SetLocalThumbnailPreviewsEnabled(true)
	}
	if q.Get("choice") == "small" {
		b.SetCacheChoice(request.CacheChoiceSmall)
	}
	if q.Get("no_disk_cache") == "true" {
		b.DisableDiskCache()
	}
	if v := q.Get("media_id"); v != "" {
		b.SetMediaVariationsForMediaID(v)
	}

	switch q.Get("priority") {
	case "", "high":
		b.SetRequestPriority(request.PriorityHigh)
	case "medium":
		b.SetRequestPriority(request.PriorityMedium)
	case "low":
		b.SetRequestPriority(request.PriorityLow)
	default:
		return nil, fmt.Errorf("unknown priority %q", q.Get("priority"))
	}

	switch q.Get("level") {
	case "", "full":
		b.SetLowestPermittedRequestLevel(request.LevelFullFetch)
	case "disk":
		b.SetLowestPermittedRequestLevel(request.LevelDiskCache)
	case "encoded":
		b.SetLowestPermittedRequestLevel(request.LevelEncodedMemoryCache)
	case "bitmap":
		b.SetLowestPermittedRequestLevel(request.LevelBitmapMemoryCache)
	default:
		return nil, fmt.Errorf("unknown level %q", q.Get("level"))
	}

	if name := q.Get("preset"); name != "" {
		pp, ok := s.presets[name]
		if !ok {
			return nil, fmt.Errorf("unknown preset %q", name)
		}
		b.SetPostprocessor(pp)
	}

	return b.Build()
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// processStats is the /debug/statsz payload.
type processStats struct {
	PID        int32                   `json:"pid"`
	CPUPercent float64                 `json:"cpu_percent"`
	RSS        uint64                  `json:"rss"`
	VMS        uint64                  `json:"vms"`
	NumFDs     int32                   `json:"num_fds"`
	NumThreads int32                   `json:"num_threads"`
	UptimeSecs float64                 `json:"uptime_secs"`
	Requests   []*metrics.LevelOutcome `json:"requests"`
}

var startedAt = time.Now()

func (s *HTTPServer) handleStatsz(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	stats := processStats{
		PID:        proc.Pid,
		UptimeSecs: time.Since(startedAt).Seconds(),
		Requests:   metrics.CollectRequestsTotal(),
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		stats.RSS = mem.RSS
		stats.VMS = mem.VMS
	}
	if fds, err := proc.NumFDs(); err == nil {
		stats.NumFDs = fds
	}
	if threads, err := proc.NumThreads(); err == nil {
		stats.NumThreads = threads
	}

	buf, err := encoding.Marshal(stats)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(buf)
}
